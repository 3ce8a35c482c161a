// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Unified error handling for all CLI commands.
//
// STANDARDIZED PATTERN:
//   - Handlers always return errors, never print and return nil
//   - Main decides how to display them and which exit code to use
//   - Tool failures carry their classification through to the exit code

package cli

import (
	"errors"
	"fmt"

	"github.com/jeranaias/rigrun-toolguard/internal/config"
	"github.com/jeranaias/rigrun-toolguard/internal/toolerr"
	"github.com/jeranaias/rigrun-toolguard/internal/tools"
)

// =============================================================================
// EXIT CODES - Specific codes for different error categories
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitPermissionError indicates the OS refused access
	ExitPermissionError = 4
	// ExitExecutionError indicates a command ran and failed
	ExitExecutionError = 5
	// ExitSecurityError indicates a security policy violation
	ExitSecurityError = 6
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
)

// =============================================================================
// ERROR TYPES FOR STRUCTURED ERROR HANDLING
// =============================================================================

// ValidationError represents a validation failure for user input.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   string // Value that was provided
	Reason  string // Why validation failed
	Example string // Example of valid value (optional)
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// ConfigError wraps a failure to load or apply configuration.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ResponseError reports a tool invocation that returned an error response.
// The response itself has already been written.
type ResponseError struct {
	Response tools.Response
}

func (e *ResponseError) Error() string {
	return e.Response.Error
}

// Kind returns the classification recorded in the response metadata.
func (e *ResponseError) Kind() string {
	kind, _ := e.Response.Metadata[tools.MetaErrorType].(string)
	return kind
}

// =============================================================================
// ERROR CONSTRUCTION HELPERS
// =============================================================================

// NewValidationError creates a new validation error.
func NewValidationError(field, value, reason string) error {
	return &ValidationError{
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// NewValidationErrorWithExample creates a validation error with an example.
func NewValidationErrorWithExample(field, value, reason, example string) error {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Reason:  reason,
		Example: example,
	}
}

// ErrMissingArgument creates an error for missing required arguments.
func ErrMissingArgument(argName, usage string) error {
	return NewValidationErrorWithExample(argName, "", "required argument missing", usage)
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

var kindExitCodes = map[string]int{
	toolerr.KindSecurity.String():         ExitSecurityError,
	toolerr.KindNotFound.String():         ExitNotFoundError,
	toolerr.KindPermission.String():       ExitPermissionError,
	toolerr.KindTimeout.String():          ExitTimeoutError,
	toolerr.KindInvalidParameter.String(): ExitUsageError,
	toolerr.KindExecution.String():        ExitExecutionError,
}

// GetExitCode determines the appropriate exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var respErr *ResponseError
	if errors.As(err, &respErr) {
		if code, ok := kindExitCodes[respErr.Kind()]; ok {
			return code
		}
		return ExitGeneralError
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return ExitUsageError
	}

	var configErr *ConfigError
	var validateErrs config.ValidateErrors
	if errors.As(err, &configErr) || errors.As(err, &validateErrs) {
		return ExitConfigError
	}

	var kinded toolerr.Kinded
	if errors.As(err, &kinded) {
		if code, ok := kindExitCodes[kinded.ErrorKind().String()]; ok {
			return code
		}
	}
	return ExitGeneralError
}
