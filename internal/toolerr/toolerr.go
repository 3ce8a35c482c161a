// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package toolerr defines the error taxonomy shared by the execution layer.
//
// Every failure that can reach the tool boundary is classified into a Kind.
// The boundary turns the Kind into a response message; the retry layer uses it
// to decide whether a failure is terminal.
package toolerr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
)

// Kind classifies an error for the tool boundary and the retry layer.
type Kind int

const (
	// KindInternal is an unexpected failure inside the layer itself.
	KindInternal Kind = iota
	// KindSecurity is a path or command policy violation.
	KindSecurity
	// KindNotFound means the path or program does not exist.
	KindNotFound
	// KindPermission is an OS-level permission refusal.
	KindPermission
	// KindTimeout means execution exceeded its deadline.
	KindTimeout
	// KindInvalidParameter is a malformed request.
	KindInvalidParameter
	// KindTransient is a resource-temporarily-unavailable class failure.
	KindTransient
	// KindExecution is a command that ran and failed.
	KindExecution
)

// String returns the wire name of the kind, used as the error_type metadata.
func (k Kind) String() string {
	switch k {
	case KindSecurity:
		return "security"
	case KindNotFound:
		return "not_found"
	case KindPermission:
		return "permission_denied"
	case KindTimeout:
		return "timeout"
	case KindInvalidParameter:
		return "invalid_parameter"
	case KindTransient:
		return "transient"
	case KindExecution:
		return "execution"
	default:
		return "internal"
	}
}

// Kinded is implemented by errors that carry their own classification.
type Kinded interface {
	ErrorKind() Kind
}

// Error is a classified error.
type Error struct {
	Kind    Kind   // Classification
	Op      string // Operation that failed (e.g. "read_file")
	Path    string // Path involved, if any
	Message string // Human-readable message returned to callers
	Err     error  // Underlying cause, never shown to callers directly
}

// Error implements error. Only Message is rendered; the cause stays reachable
// through Unwrap for logging.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// ErrorKind implements Kinded.
func (e *Error) ErrorKind() Kind { return e.Kind }

// New creates a classified error with a caller-facing message.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Newf is New with formatting.
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. If message is empty the error is rendered from err.
func Wrap(kind Kind, op, path, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Message: message, Err: err}
}

// InvalidParameter is shorthand for a KindInvalidParameter error.
func InvalidParameter(op, format string, args ...interface{}) *Error {
	return Newf(KindInvalidParameter, op, format, args...)
}

// KindOf classifies any error. Errors that carry a Kind win; otherwise the
// chain is inspected for well-known OS and context errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return KindTimeout
	case errors.Is(err, os.ErrNotExist):
		return KindNotFound
	case errors.Is(err, os.ErrPermission):
		return KindPermission
	case IsTransientErrno(err):
		return KindTransient
	}
	return KindInternal
}

// IsTransientErrno reports whether err wraps an errno in the
// resource-temporarily-unavailable class.
func IsTransientErrno(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno {
	case syscall.EAGAIN, syscall.EINTR, syscall.EBUSY, syscall.ETXTBSY, syscall.EMFILE, syscall.ENFILE, syscall.ENOBUFS:
		return true
	}
	// EWOULDBLOCK equals EAGAIN on Linux but not on every platform.
	return errno == syscall.EWOULDBLOCK
}

// IsRetryable reports whether err is eligible for retry. Security and
// invalid-parameter failures are always terminal.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
