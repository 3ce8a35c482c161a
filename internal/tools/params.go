// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"math"
	"slices"
	"time"

	"github.com/jeranaias/rigrun-toolguard/internal/toolerr"
)

// =============================================================================
// PARAMS
// =============================================================================

// Params are the decoded parameters of a request. Numbers decoded from JSON
// arrive as float64.
type Params map[string]any

// Has reports whether name is present and non-nil.
func (p Params) Has(name string) bool {
	v, ok := p[name]
	return ok && v != nil
}

// GetString gets a string parameter with a default value.
func (p Params) GetString(name, defaultVal string) string {
	if s, ok := p[name].(string); ok {
		return s
	}
	return defaultVal
}

// GetInt gets an integer parameter with a default value.
func (p Params) GetInt(name string, defaultVal int) int {
	switch v := p[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return defaultVal
}

// GetFloat gets a numeric parameter with a default value.
func (p Params) GetFloat(name string, defaultVal float64) float64 {
	switch v := p[name].(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	}
	return defaultVal
}

// GetBool gets a boolean parameter with a default value.
func (p Params) GetBool(name string, defaultVal bool) bool {
	if b, ok := p[name].(bool); ok {
		return b
	}
	return defaultVal
}

// GetSeconds reads a duration given in (possibly fractional) seconds.
// Missing or non-positive values yield zero, which selects the policy default.
func (p Params) GetSeconds(name string) time.Duration {
	secs := p.GetFloat(name, 0)
	if secs <= 0 {
		return 0
	}
	if secs > float64(math.MaxInt64/int64(time.Second)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(secs * float64(time.Second))
}

// GetStrings gets an array-of-strings parameter. ok is false when the value
// is missing or any element is not a string.
func (p Params) GetStrings(name string) ([]string, bool) {
	return toStrings(p[name])
}

func toStrings(v any) ([]string, bool) {
	switch vv := v.(type) {
	case []string:
		return slices.Clone(vv), true
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a parameter validation error.
type ValidationError struct {
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Param + ": " + e.Message
}

// ErrorKind implements toolerr.Kinded.
func (e *ValidationError) ErrorKind() toolerr.Kind {
	return toolerr.KindInvalidParameter
}

const (
	// maxStringLength bounds any single string parameter
	maxStringLength = 10 * 1024 * 1024

	// maxReasonableNumber bounds numeric parameters
	maxReasonableNumber = 1e15
)

// ValidateParams validates params against a schema before execution.
// It performs:
// - Unknown parameter rejection
// - Required parameter checking
// - Type validation
// - Bounds checking for numeric values
// - String length and enum validation
func ValidateParams(schema Schema, params Params) error {
	for name := range params {
		if _, ok := schema.Parameter(name); !ok {
			return &ValidationError{Param: name, Message: "unknown parameter"}
		}
	}

	for _, param := range schema.Parameters {
		val, exists := params[param.Name]

		if param.Required && (!exists || val == nil) {
			return &ValidationError{Param: param.Name, Message: "missing required parameter"}
		}

		// Skip validation for optional parameters that aren't provided
		if !exists || val == nil {
			continue
		}

		if err := validateType(param, val); err != nil {
			return err
		}
	}
	return nil
}

// validateType validates a parameter value against its expected type.
func validateType(param Parameter, val any) error {
	switch param.Type {
	case "string":
		s, ok := val.(string)
		if !ok {
			return &ValidationError{Param: param.Name, Message: "expected string"}
		}
		if len(s) > maxStringLength {
			return &ValidationError{Param: param.Name, Message: "string value exceeds maximum length"}
		}
		if len(param.Enum) > 0 && !slices.Contains(param.Enum, s) {
			return &ValidationError{Param: param.Name, Message: "value is not one of the allowed values"}
		}
	case "number", "integer":
		n, ok := toFloat(val)
		if !ok {
			return &ValidationError{Param: param.Name, Message: "expected " + param.Type}
		}
		if math.IsNaN(n) || n > maxReasonableNumber || n < -maxReasonableNumber {
			return &ValidationError{Param: param.Name, Message: "numeric value out of reasonable bounds"}
		}
		if param.Type == "integer" && n != math.Trunc(n) {
			return &ValidationError{Param: param.Name, Message: "expected integer"}
		}
	case "boolean":
		if _, ok := val.(bool); !ok {
			return &ValidationError{Param: param.Name, Message: "expected boolean"}
		}
	case "array":
		switch val.(type) {
		case []any, []string:
		default:
			return &ValidationError{Param: param.Name, Message: "expected array"}
		}
	}
	return nil
}

func toFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
