// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"errors"

	"github.com/jeranaias/rigrun-toolguard/internal/executor"
	"github.com/jeranaias/rigrun-toolguard/internal/security"
	"github.com/jeranaias/rigrun-toolguard/internal/toolerr"
)

// Status is the outcome reported in a Response.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Request is one tool invocation.
type Request struct {
	ID        string `json:"id,omitempty"`
	Operation string `json:"operation"`
	Params    Params `json:"params,omitempty"`
}

// Response is the uniform envelope returned for every Request.
type Response struct {
	ID       string         `json:"id,omitempty"`
	Status   Status         `json:"status"`
	Data     any            `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// OK reports whether the invocation succeeded.
func (r Response) OK() bool {
	return r.Status == StatusSuccess
}

// Metadata keys.
const (
	MetaOperation  = "operation"
	MetaDuration   = "duration_ms"
	MetaErrorType  = "error_type"
	MetaAttempts   = "attempts"
	MetaRisk       = "risk"
	MetaStack      = "stack"
	internalErrMsg = "Internal error"
)

// errorMessage renders err for the caller. Security failures always get the
// generic message; errors without a classification are not echoed.
func errorMessage(err error) string {
	var cmdErr *security.CommandSecurityError
	if errors.As(err, &cmdErr) {
		return security.RestrictedCommandMessage
	}

	kind := toolerr.KindOf(err)
	if kind == toolerr.KindSecurity {
		return security.PathDeniedMessage
	}

	var kinded toolerr.Kinded
	if errors.As(err, &kinded) {
		return err.Error()
	}

	switch kind {
	case toolerr.KindTimeout:
		return "Operation timed out"
	case toolerr.KindNotFound:
		return "Not found"
	case toolerr.KindPermission:
		return "Permission denied"
	case toolerr.KindTransient:
		return "Resource temporarily unavailable"
	}
	return internalErrMsg
}

// respond builds the envelope. Command results stay attached on failure so
// the caller sees exit codes and stderr.
func respond(req Request, data any, err error) Response {
	resp := Response{
		ID:       req.ID,
		Status:   StatusSuccess,
		Data:     data,
		Metadata: map[string]any{MetaOperation: req.Operation},
	}
	if err == nil {
		return resp
	}

	resp.Status = StatusError
	resp.Error = errorMessage(err)
	resp.Metadata[MetaErrorType] = toolerr.KindOf(err).String()
	if res, ok := data.(executor.ExecutionResult); ok && res.ID != "" {
		if toolerr.KindOf(err) == toolerr.KindSecurity {
			res.Error = resp.Error
		}
		resp.Data = res
	} else {
		resp.Data = nil
	}
	return resp
}
