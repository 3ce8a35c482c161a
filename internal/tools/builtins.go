// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"

	"github.com/jeranaias/rigrun-toolguard/internal/fsys"
	"github.com/jeranaias/rigrun-toolguard/internal/security"
	"github.com/jeranaias/rigrun-toolguard/internal/toolerr"
)

// Tool names.
const (
	OpExecuteCommand      = "execute_command"
	OpExecutePiped        = "execute_piped"
	OpReadFile            = "read_file"
	OpWriteFile           = "write_file"
	OpListDirectory       = "list_directory"
	OpCheckFileExecutable = "check_file_executable"
	OpCheckFileReadable   = "check_file_readable"
	OpCheckFileWritable   = "check_file_writable"
	OpFileExists          = "file_exists"
)

// Builtins returns fresh definitions of the built-in tools.
func Builtins() []*Tool {
	return []*Tool{
		ExecuteCommandTool(),
		ExecutePipedTool(),
		ReadFileTool(),
		WriteFileTool(),
		ListDirectoryTool(),
		checkTool(OpCheckFileExecutable, "executable", "Report whether a workspace file exists and is executable.", (*fsys.Tools).CheckFileExecutable),
		checkTool(OpCheckFileReadable, "readable", "Report whether a workspace file exists and is readable.", (*fsys.Tools).CheckFileReadable),
		checkTool(OpCheckFileWritable, "writable", "Report whether a workspace file could be written.", (*fsys.Tools).CheckFileWritable),
		checkTool(OpFileExists, "exists", "Report whether a workspace path exists.", (*fsys.Tools).Exists),
	}
}

var timeoutParam = Parameter{
	Name:        "timeout",
	Type:        "number",
	Description: "Timeout in seconds. Omit for the policy default; values above the policy maximum are clamped.",
}

// =============================================================================
// COMMANDS
// =============================================================================

// ExecuteCommandTool runs one command or one shell-style pipeline.
func ExecuteCommandTool() *Tool {
	return &Tool{
		Name: OpExecuteCommand,
		Description: `Run a command in the workspace without a shell.
Give either "command", a shell-style string that may contain | pipelines but no
other shell syntax, or "argv", an explicit argument vector. Output is captured,
secrets are redacted, and long output is truncated.`,
		Schema: Schema{Parameters: []Parameter{
			{Name: "command", Type: "string", Description: "Command line, e.g. 'git status' or 'ls -la | wc -l'"},
			{Name: "argv", Type: "array", Description: "Program and arguments, e.g. [\"ls\", \"-la\"]"},
			timeoutParam,
		}},
		RiskLevel: RiskCritical,
		Retryable: true,
		Handler:   executeCommand,
	}
}

func executeCommand(ctx context.Context, b *Backend, p Params) (any, error) {
	hasCommand, hasArgv := p.Has("command"), p.Has("argv")
	if hasCommand == hasArgv {
		return nil, toolerr.InvalidParameter(OpExecuteCommand, `exactly one of "command" or "argv" is required`)
	}

	var spec security.CommandSpec
	if hasCommand {
		spec = security.Shell(p.GetString("command", ""))
	} else {
		argv, ok := p.GetStrings("argv")
		if !ok || len(argv) == 0 {
			return nil, &ValidationError{Param: "argv", Message: "expected a non-empty array of strings"}
		}
		spec = security.Argv(argv...)
	}

	return b.Commands.Execute(ctx, spec, p.GetSeconds("timeout"))
}

// ExecutePipedTool runs several commands joined stdout to stdin.
func ExecutePipedTool() *Tool {
	return &Tool{
		Name: OpExecutePiped,
		Description: `Run commands as a pipeline, each one's output feeding the next.
Every element of "commands" is either a command string or an argument vector.
All commands are validated before any starts. Only the last command's output
is returned; a failing command is reported by index with its stderr.`,
		Schema: Schema{Parameters: []Parameter{
			{Name: "commands", Type: "array", Required: true, Description: "Pipeline stages in order"},
			timeoutParam,
		}},
		RiskLevel: RiskCritical,
		Retryable: true,
		Handler:   executePiped,
	}
}

func executePiped(ctx context.Context, b *Backend, p Params) (any, error) {
	var raw []any
	switch v := p["commands"].(type) {
	case []any:
		raw = v
	case []string:
		for _, s := range v {
			raw = append(raw, s)
		}
	}

	specs := make([]security.CommandSpec, 0, len(raw))
	for i, item := range raw {
		if s, ok := item.(string); ok {
			specs = append(specs, security.Shell(s))
			continue
		}
		argv, ok := toStrings(item)
		if !ok || len(argv) == 0 {
			return nil, toolerr.InvalidParameter(OpExecutePiped, "commands[%d]: expected a string or a non-empty array of strings", i)
		}
		specs = append(specs, security.Argv(argv...))
	}

	return b.Commands.ExecutePiped(ctx, specs, p.GetSeconds("timeout"))
}

// =============================================================================
// FILES
// =============================================================================

// ReadFileTool reads a file or a line range of it.
func ReadFileTool() *Tool {
	return &Tool{
		Name: OpReadFile,
		Description: `Read a workspace file or a line range of it.
Set whole_file to read everything, or give start_line (and optionally
end_line) to read a range. Lines are 1-indexed and inclusive; start_line
alone reads through the end.`,
		Schema: Schema{Parameters: []Parameter{
			{Name: "path", Type: "string", Required: true, Description: "File path, relative to the workspace or absolute inside it"},
			{Name: "whole_file", Type: "boolean", Description: "Read the entire file; cannot be combined with a line range"},
			{Name: "start_line", Type: "integer", Description: "First line to read (1-indexed)"},
			{Name: "end_line", Type: "integer", Description: "Last line to read, inclusive"},
		}},
		RiskLevel: RiskLow,
		Retryable: true,
		Handler:   readFile,
	}
}

func readFile(_ context.Context, b *Backend, p Params) (any, error) {
	// Absent bounds never mean "everything"; fsys rejects an empty range.
	r := fsys.Lines(p.GetInt("start_line", 0), p.GetInt("end_line", 0))
	r.Whole = p.GetBool("whole_file", false)
	return b.Files.ReadFile(p.GetString("path", ""), r)
}

// WriteFileTool writes a file atomically.
func WriteFileTool() *Tool {
	return &Tool{
		Name: OpWriteFile,
		Description: `Create or replace a workspace file.
Missing parent directories are created. The write is atomic: readers see the
old content or the new content, never a mix.`,
		Schema: Schema{Parameters: []Parameter{
			{Name: "path", Type: "string", Required: true, Description: "File path inside the workspace"},
			{Name: "content", Type: "string", Required: true, Description: "Complete new file content"},
		}},
		RiskLevel: RiskMedium,
		Retryable: true,
		Handler:   writeFile,
	}
}

func writeFile(_ context.Context, b *Backend, p Params) (any, error) {
	return b.Files.WriteFile(p.GetString("path", ""), p.GetString("content", ""))
}

// ListDirectoryTool lists directory entries.
func ListDirectoryTool() *Tool {
	return &Tool{
		Name: OpListDirectory,
		Description: `List a workspace directory, sorted by path.
Optionally filter names with a glob pattern and walk subdirectories.`,
		Schema: Schema{Parameters: []Parameter{
			{Name: "path", Type: "string", Default: ".", Description: "Directory path; defaults to the workspace root"},
			{Name: "pattern", Type: "string", Description: "Glob applied to entry names, e.g. '*.go'"},
			{Name: "recursive", Type: "boolean", Default: false, Description: "Include subdirectories"},
		}},
		RiskLevel: RiskLow,
		Retryable: true,
		Handler:   listDirectory,
	}
}

func listDirectory(_ context.Context, b *Backend, p Params) (any, error) {
	entries, err := b.Files.ListDirectory(p.GetString("path", "."), fsys.ListOptions{
		Pattern:   p.GetString("pattern", ""),
		Recursive: p.GetBool("recursive", false),
	})
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []fsys.Entry{}
	}
	return entries, nil
}

// checkTool builds a single-path predicate tool.
func checkTool(name, field, description string, check func(*fsys.Tools, string) (bool, error)) *Tool {
	return &Tool{
		Name:        name,
		Description: description,
		Schema: Schema{Parameters: []Parameter{
			{Name: "path", Type: "string", Required: true, Description: "Path inside the workspace"},
		}},
		RiskLevel: RiskLow,
		Retryable: true,
		Handler: func(_ context.Context, b *Backend, p Params) (any, error) {
			path := p.GetString("path", "")
			ok, err := check(b.Files, path)
			if err != nil {
				return nil, err
			}
			return map[string]any{"path": path, field: ok}, nil
		},
	}
}
