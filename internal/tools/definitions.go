// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// =============================================================================
// RISK LEVELS
// =============================================================================

// RiskLevel indicates how dangerous a tool operation is.
type RiskLevel int

const (
	// RiskLow - Read-only operations, no side effects
	RiskLow RiskLevel = iota

	// RiskMedium - Modifies files inside the workspace
	RiskMedium

	// RiskCritical - Runs programs
	RiskCritical
)

// String returns the string representation of a risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// =============================================================================
// TOOL DEFINITION
// =============================================================================

// Handler runs one tool invocation against a backend. Params have already
// been validated against the tool's schema.
type Handler func(ctx context.Context, b *Backend, params Params) (any, error)

// Tool represents an executable tool.
type Tool struct {
	// Name is the operation identifier (e.g., "read_file")
	Name string

	// Description explains what the tool does. The first line doubles as the
	// short description.
	Description string

	// Schema defines the tool's parameters
	Schema Schema

	// RiskLevel indicates how dangerous the tool is
	RiskLevel RiskLevel

	// Retryable allows transient failures to be retried. Tools with side
	// effects that are not idempotent leave this false.
	Retryable bool

	// Handler performs the operation
	Handler Handler
}

// ShortDescription returns the first line of Description.
func (t *Tool) ShortDescription() string {
	if idx := strings.Index(t.Description, "\n"); idx != -1 {
		return t.Description[:idx]
	}
	return t.Description
}

// Schema defines a tool's parameters.
type Schema struct {
	Parameters []Parameter
}

// Parameter returns the named parameter definition.
func (s Schema) Parameter(name string) (Parameter, bool) {
	for _, p := range s.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Parameter defines a single tool parameter.
type Parameter struct {
	// Name of the parameter
	Name string

	// Type is the parameter type ("string", "integer", "number", "boolean", "array")
	Type string

	// Required indicates if the parameter must be provided
	Required bool

	// Description explains the parameter
	Description string

	// Default is the value used when the parameter is omitted
	Default any

	// Enum contains allowed values for string parameters
	Enum []string
}

// JSONSchema renders the tool in the function-calling format used by
// model APIs:
//
//	{
//	  "name": "read_file",
//	  "description": "...",
//	  "parameters": {"type": "object", "properties": {...}, "required": [...]}
//	}
func (t *Tool) JSONSchema() map[string]any {
	properties := make(map[string]any, len(t.Schema.Parameters))
	required := []string{}

	for _, param := range t.Schema.Parameters {
		prop := map[string]any{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Type == "array" {
			prop["items"] = map[string]any{}
		}
		if param.Default != nil {
			prop["default"] = param.Default
		}
		if len(param.Enum) > 0 {
			prop["enum"] = param.Enum
		}
		properties[param.Name] = prop

		if param.Required {
			required = append(required, param.Name)
		}
	}

	return map[string]any{
		"name":        t.Name,
		"description": t.ShortDescription(),
		"parameters": map[string]any{
			"type":                 "object",
			"properties":           properties,
			"required":             required,
			"additionalProperties": false,
		},
	}
}

// =============================================================================
// TOOL REGISTRY
// =============================================================================

// Registry holds all available tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates a new tool registry with built-in tools.
func NewRegistry() *Registry {
	r := &Registry{tools: make(map[string]*Tool)}
	r.RegisterBuiltins()
	return r
}

// RegisterBuiltins registers all built-in tools.
func (r *Registry) RegisterBuiltins() {
	for _, tool := range Builtins() {
		r.Register(tool)
	}
}

// Register adds a tool to the registry, replacing any tool with the same name.
func (r *Registry) Register(tool *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// All returns all registered tools sorted by name.
func (r *Registry) All() []*Tool {
	r.mu.RLock()
	result := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	all := r.All()
	names := make([]string, len(all))
	for i, t := range all {
		names[i] = t.Name
	}
	return names
}
