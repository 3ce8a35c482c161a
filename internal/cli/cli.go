// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command dispatch for toolguard.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdHelp Command = iota
	CmdRun
	CmdServe
	CmdTools
	CmdHistory
	CmdCheckPath
	CmdCheckCommand
	CmdConfig
	CmdVersion
)

var commandNames = map[string]Command{
	"help":          CmdHelp,
	"run":           CmdRun,
	"serve":         CmdServe,
	"tools":         CmdTools,
	"history":       CmdHistory,
	"check-path":    CmdCheckPath,
	"check-command": CmdCheckCommand,
	"config":        CmdConfig,
	"version":       CmdVersion,
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	ConfigPath string
	Workspace  string
	Sets       []string // key=value config overrides
	LogLevel   string
	LogFormat  string

	// Command-specific
	Subcommand string
	Limit      int  // history
	Shell      bool // check-command: treat the argument as a shell string
	Force      bool // config init

	// Raw holds the positional arguments after the command.
	Raw []string
}

// IO groups the streams a command reads and writes.
type IO struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

const usageText = `toolguard - policy-enforcing tool execution layer

Runs shell commands and file operations for an automated agent, confined to
one workspace directory and filtered through a security policy.

Usage:
  toolguard [global flags] <command> [args]

Commands:
  run <operation> [params]   Invoke one tool; params is a JSON object or "-" for stdin
  serve                      Read JSON requests from stdin, one per line, and
                             write one JSON response per line
  tools                      List available tools and their parameter schemas
  history [--limit N]        Show recent invocations from the audit database
  check-path <path>          Check a path against the policy
  check-command <argv...>    Check a command against the policy
    --shell                  Treat the single argument as a shell command line
  config show                Print the effective configuration
  config validate            Validate the configuration file
  config init [path]         Write a default configuration file
    --force                  Overwrite an existing file
  config get <key>           Print one setting
  config keys                List every setting
  version                    Show version information

Global flags:
  -c, --config FILE          Config file (.toml, .yaml, .yml, .json, .jsonc)
  -w, --workspace DIR        Workspace root (overrides workspace.root)
      --set key=value        Override a setting (repeatable)
      --log-level LEVEL      debug, info, warn or error
      --log-format FORMAT    text or json

Examples:
  toolguard run read_file '{"path": "README.md", "start_line": 1, "end_line": 20}'
  toolguard run execute_command '{"argv": ["go", "version"]}'
  toolguard --set security.max_output_size=4096 serve < requests.ndjson
  toolguard check-command --shell 'cat notes.txt | wc -l'

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "toolguard version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses command-line arguments (without the program name) and
// returns the command and args. Global flags must come before the command.
func Parse(argv []string) (Command, Args, error) {
	var args Args

	global := pflag.NewFlagSet("toolguard", pflag.ContinueOnError)
	global.SetOutput(io.Discard)
	global.SetInterspersed(false)
	global.StringVarP(&args.ConfigPath, "config", "c", "", "config file")
	global.StringVarP(&args.Workspace, "workspace", "w", "", "workspace root")
	global.StringArrayVar(&args.Sets, "set", nil, "override a setting (key=value)")
	global.StringVar(&args.LogLevel, "log-level", "", "log level")
	global.StringVar(&args.LogFormat, "log-format", "", "log format")
	help := global.BoolP("help", "h", false, "show help")
	version := global.Bool("version", false, "show version")

	if err := global.Parse(argv); err != nil {
		return CmdHelp, args, NewValidationError("flags", "", err.Error())
	}
	if *help {
		return CmdHelp, args, nil
	}
	if *version {
		return CmdVersion, args, nil
	}

	rest := global.Args()
	if len(rest) == 0 {
		return CmdHelp, args, nil
	}

	cmd, ok := commandNames[strings.ToLower(rest[0])]
	if !ok {
		return CmdHelp, args, NewValidationErrorWithExample("command", rest[0], "unknown command", "toolguard help")
	}

	flags := pflag.NewFlagSet(rest[0], pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	switch cmd {
	case CmdHistory:
		flags.IntVarP(&args.Limit, "limit", "n", 50, "number of records")
	case CmdCheckCommand:
		// Everything after the flags is the command under test.
		flags.SetInterspersed(false)
		flags.BoolVar(&args.Shell, "shell", false, "shell command line")
	case CmdConfig:
		flags.BoolVar(&args.Force, "force", false, "overwrite an existing file")
	case CmdRun:
		flags.SetInterspersed(false)
	}
	if err := flags.Parse(rest[1:]); err != nil {
		return cmd, args, NewValidationError(rest[0], "", err.Error())
	}

	args.Raw = flags.Args()
	if len(args.Raw) > 0 {
		args.Subcommand = args.Raw[0]
	}
	return cmd, args, nil
}

// =============================================================================
// DISPATCH
// =============================================================================

// Main parses argv, runs the command and returns the process exit code.
// Errors are reported on streams.Err.
func Main(ctx context.Context, argv []string, streams IO) int {
	cmd, args, err := Parse(argv)
	if err != nil {
		return reportError(streams.Err, err)
	}
	if err := Dispatch(ctx, cmd, args, streams); err != nil {
		return reportError(streams.Err, err)
	}
	return ExitSuccess
}

// Dispatch runs one parsed command.
func Dispatch(ctx context.Context, cmd Command, args Args, streams IO) error {
	switch cmd {
	case CmdHelp:
		PrintUsage(streams.Out)
		return nil
	case CmdVersion:
		PrintVersion(streams.Out)
		return nil
	case CmdConfig:
		return HandleConfig(args, streams)
	}

	app, err := NewApp(ctx, args, streams.Err)
	if err != nil {
		return err
	}
	defer app.Close()

	switch cmd {
	case CmdRun:
		return HandleRun(ctx, app, args, streams)
	case CmdServe:
		return HandleServe(ctx, app, streams)
	case CmdTools:
		return HandleTools(app, streams)
	case CmdHistory:
		return HandleHistory(ctx, app, args, streams)
	case CmdCheckPath:
		return HandleCheckPath(app, args, streams)
	case CmdCheckCommand:
		return HandleCheckCommand(app, args, streams)
	}
	return fmt.Errorf("unhandled command %d", cmd)
}

func reportError(w io.Writer, err error) int {
	var respErr *ResponseError
	if !errors.As(err, &respErr) {
		// Failed tool responses are already on stdout.
		fmt.Fprintf(w, "Error: %v\n", err)
	}
	return GetExitCode(err)
}
