// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// check.go - Policy dry-run commands.
//
// Command: check-path <path>
// Command: check-command [--shell] <argv...>
//
// Unlike tool responses, these name the rule that rejected the input: they
// exist so operators can debug their policy.

package cli

import (
	"errors"
	"strings"

	"github.com/jeranaias/rigrun-toolguard/internal/security"
)

// PathCheck is the result of check-path.
type PathCheck struct {
	Path     string `json:"path"`
	Allowed  bool   `json:"allowed"`
	Resolved string `json:"resolved,omitempty"`
	Relative string `json:"relative,omitempty"`
	Rule     string `json:"rule,omitempty"`
}

// CommandCheck is the result of check-command.
type CommandCheck struct {
	Command     string     `json:"command"`
	Allowed     bool       `json:"allowed"`
	Stages      [][]string `json:"stages,omitempty"`
	TimeoutSecs float64    `json:"timeout_secs,omitempty"`
	Rule        string     `json:"rule,omitempty"`
	Stage       *int       `json:"stage,omitempty"`
}

// HandleCheckPath handles "check-path <path>".
func HandleCheckPath(app *App, args Args, streams IO) error {
	if len(args.Raw) != 1 {
		return ErrMissingArgument("path", "toolguard check-path src/main.go")
	}
	sec := app.Tools.Security()

	result := PathCheck{Path: args.Raw[0]}
	resolved, err := sec.CheckPathSecurity(args.Raw[0])
	if err != nil {
		var secErr *security.SecurityError
		if !errors.As(err, &secErr) {
			return err
		}
		result.Rule = secErr.Rule
		if err := NewJSONErrorResponseStr("check-path", err.Error(), result).Write(streams.Out); err != nil {
			return err
		}
		return err
	}

	result.Allowed = true
	result.Resolved = resolved
	result.Relative = sec.RelativePath(resolved)
	return NewJSONResponse("check-path", result).Write(streams.Out)
}

// HandleCheckCommand handles "check-command".
func HandleCheckCommand(app *App, args Args, streams IO) error {
	if len(args.Raw) == 0 {
		return ErrMissingArgument("command", "toolguard check-command git status")
	}

	var spec security.CommandSpec
	if args.Shell {
		spec = security.Shell(strings.Join(args.Raw, " "))
	} else {
		spec = security.Argv(args.Raw...)
	}

	result := CommandCheck{Command: spec.String()}
	checked, err := app.Tools.Security().CheckCommandSecurity(spec, 0)
	if err != nil {
		var cmdErr *security.CommandSecurityError
		if !errors.As(err, &cmdErr) {
			return err
		}
		result.Rule = cmdErr.Rule
		if cmdErr.Stage >= 0 {
			stage := cmdErr.Stage
			result.Stage = &stage
		}
		if err := NewJSONErrorResponseStr("check-command", err.Error(), result).Write(streams.Out); err != nil {
			return err
		}
		return err
	}

	result.Allowed = true
	result.Stages = checked.Stages
	result.TimeoutSecs = checked.Timeout.Seconds()
	return NewJSONResponse("check-command", result).Write(streams.Out)
}
