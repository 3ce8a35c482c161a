// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools is the request boundary of toolguard.
//
// A Request names an operation and carries decoded parameters; the Executor
// validates them against the tool's schema, applies the rate limit, runs the
// tool (retrying transient failures) and returns a uniform Response. Every
// invocation is recorded in a bounded in-memory history and handed to an
// audit.Recorder.
//
// # Key Types
//
//   - Tool: name, description, parameter schema and handler
//   - Registry: the set of available tools
//   - Executor: dispatch, rate limiting, retry, history
//   - Backend: command executor and file tools bound to one security context
//   - Response: {status, data, error, metadata}
//
// # Available Tools
//
// Commands:
//   - execute_command: one command or a "|" pipeline, no shell
//   - execute_piped: explicit pipeline of commands
//
// Files:
//   - read_file, write_file, list_directory
//   - check_file_executable, check_file_readable, check_file_writable, file_exists
//
// # Errors
//
// Security rejections are reported with a fixed generic message. Other
// failures carry a specific message and an error_type metadata entry naming
// the toolerr kind.
package tools
