// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package executor

import (
	"time"

	"github.com/jeranaias/rigrun-toolguard/internal/toolerr"
)

// Status is the outcome of an execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// Exit codes reported when a process could not be started, matching the
// conventions of POSIX shells.
const (
	ExitNotFound      = 127
	ExitNotExecutable = 126
)

// StageResult describes one stage of a pipeline.
type StageResult struct {
	Argv            []string `json:"argv"`
	ExitCode        int      `json:"exit_code"`
	Stderr          string   `json:"stderr,omitempty"`
	StderrTruncated bool     `json:"stderr_truncated,omitempty"`
}

// ExecutionResult is the outcome of Execute or ExecutePiped. It is a value;
// the executor keeps no reference to it.
type ExecutionResult struct {
	ID              string        `json:"id"`
	Command         string        `json:"command"`
	Status          Status        `json:"status"`
	ExitCode        int           `json:"exit_code"`
	Stdout          string        `json:"stdout"`
	Stderr          string        `json:"stderr"`
	StdoutTruncated bool          `json:"stdout_truncated,omitempty"`
	StderrTruncated bool          `json:"stderr_truncated,omitempty"`
	Duration        time.Duration `json:"duration"`
	Error           string        `json:"error,omitempty"`
	ErrorKind       toolerr.Kind  `json:"-"`

	// FailedStage is the index of the first stage that exited non-zero,
	// or -1.
	FailedStage int           `json:"failed_stage"`
	Stages      []StageResult `json:"stages,omitempty"`
}

// Success reports whether the command ran and every stage exited zero.
func (r ExecutionResult) Success() bool {
	return r.Status == StatusSuccess
}

// failed returns a copy of r marked as failed with err, along with err.
func (r ExecutionResult) failed(status Status, err error) (ExecutionResult, error) {
	r.Status = status
	r.Error = err.Error()
	r.ErrorKind = toolerr.KindOf(err)
	return r, err
}
