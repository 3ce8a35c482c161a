// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// audit_cmd.go - Invocation history and tool listing commands.
//
// Command: history [--limit N]
// Short:   Show recent tool invocations from the audit database
//
// Command: tools
// Short:   List the registered tools with their JSON schemas
//
// Examples:
//   toolguard history                 Show the 50 most recent invocations
//   toolguard history -n 200          Show the 200 most recent
//   toolguard tools                   Print every tool schema

package cli

import (
	"context"
	"errors"

	"github.com/jeranaias/rigrun-toolguard/internal/audit"
)

// maxHistoryLimit caps --limit.
const maxHistoryLimit = 10000

// HistoryData is the payload of the history command.
type HistoryData struct {
	Database string         `json:"database"`
	Total    int64          `json:"total"`
	Records  []audit.Record `json:"records"`
}

// HandleHistory handles "history".
func HandleHistory(ctx context.Context, app *App, args Args, streams IO) error {
	if app.Store == nil {
		return &ConfigError{Err: errors.New("audit is disabled; set audit.enabled = true")}
	}
	limit := args.Limit
	if limit <= 0 || limit > maxHistoryLimit {
		return NewValidationErrorWithExample("--limit", "", "must be between 1 and 10000", "toolguard history --limit 100")
	}

	records, err := app.Store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	total, err := app.Store.Count(ctx)
	if err != nil {
		return err
	}
	if records == nil {
		records = []audit.Record{}
	}

	return NewJSONResponse("history", HistoryData{
		Database: app.Store.Path(),
		Total:    total,
		Records:  records,
	}).Write(streams.Out)
}

// HandleTools handles "tools".
func HandleTools(app *App, streams IO) error {
	registered := app.Tools.Registry().All()
	schemas := make([]map[string]any, 0, len(registered))
	for _, tool := range registered {
		schema := tool.JSONSchema()
		schema["risk"] = tool.RiskLevel.String()
		schemas = append(schemas, schema)
	}
	return NewJSONResponse("tools", schemas).Write(streams.Out)
}
