// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the command handlers for
// toolguard.
//
// # Key Types
//
//   - Command: enumeration of the available commands
//   - Args: parsed global and command-specific flags
//   - App: the configured security context, tool executor and audit store
//   - IO: the streams a command reads and writes
//
// # Usage
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	os.Exit(cli.Main(ctx, os.Args[1:], cli.IO{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}))
//
// # Commands Overview
//
//   - run: invoke one tool and print its response
//   - serve: newline-delimited JSON requests and responses over stdio
//   - tools: list tool schemas
//   - history: recent invocations from the audit database
//   - check-path, check-command: dry-run the policy
//   - config: show, validate, init, get, keys
//   - version
//
// # Output
//
// Tool responses are printed as returned by the executor. Other commands
// print a JSONResponse. JSON is indented when stdout is a terminal.
//
// # Exit Codes
//
// Failures map to exit codes by classification: 2 usage, 3 config,
// 4 permission, 5 execution, 6 security, 7 not found, 8 timeout, 1 other.
package cli
