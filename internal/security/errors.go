// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import "github.com/jeranaias/rigrun-toolguard/internal/toolerr"

// Messages returned to callers. They never name the rule that fired.
const (
	PathDeniedMessage        = "Access denied: path is not permitted"
	RestrictedCommandMessage = "Command contains restricted operations"
)

// SecurityError is a path policy violation. Rule records which check
// rejected the path for operator logs; Error never includes it.
type SecurityError struct {
	Rule string // Which check fired (logged only)
	Path string // Path as supplied by the caller
}

func (e *SecurityError) Error() string {
	return PathDeniedMessage
}

// ErrorKind implements toolerr.Kinded.
func (e *SecurityError) ErrorKind() toolerr.Kind {
	return toolerr.KindSecurity
}

// CommandSecurityError is a command policy violation. All command rules
// collapse to the same message.
type CommandSecurityError struct {
	Rule  string // Which check fired (logged only)
	Stage int    // Pipeline stage index, -1 if not stage specific
}

func (e *CommandSecurityError) Error() string {
	return RestrictedCommandMessage
}

// ErrorKind implements toolerr.Kinded.
func (e *CommandSecurityError) ErrorKind() toolerr.Kind {
	return toolerr.KindSecurity
}
