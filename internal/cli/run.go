// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jeranaias/rigrun-toolguard/internal/tools"
)

// maxParamsSize bounds params read from stdin by "run -".
const maxParamsSize = 16 * 1024 * 1024

// HandleRun handles "run <operation> [params]". The response is always
// written to Out; a failed response is also returned as a *ResponseError.
func HandleRun(ctx context.Context, app *App, args Args, streams IO) error {
	if len(args.Raw) == 0 {
		return ErrMissingArgument("operation", `toolguard run read_file '{"path": "go.mod", "whole_file": true}'`)
	}
	if len(args.Raw) > 2 {
		return NewValidationError("arguments", fmt.Sprint(args.Raw[2:]), "run takes an operation and one JSON object")
	}

	params := tools.Params{}
	if len(args.Raw) == 2 {
		data := []byte(args.Raw[1])
		if args.Raw[1] == "-" {
			var err error
			if data, err = io.ReadAll(io.LimitReader(streams.In, maxParamsSize)); err != nil {
				return fmt.Errorf("failed to read params: %w", err)
			}
		}
		if err := decodeParams(data, &params); err != nil {
			return NewValidationErrorWithExample("params", "", err.Error(), `'{"path": "go.mod"}'`)
		}
	}

	resp := app.Tools.Execute(ctx, args.Raw[0], params)
	if err := writeJSON(streams.Out, resp); err != nil {
		return err
	}
	if !resp.OK() {
		return &ResponseError{Response: resp}
	}
	return nil
}

// decodeParams parses a JSON object. Empty input yields no params.
func decodeParams(data []byte, params *tools.Params) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, params); err != nil {
		return fmt.Errorf("params must be a JSON object: %w", err)
	}
	if *params == nil {
		*params = tools.Params{}
	}
	return nil
}
