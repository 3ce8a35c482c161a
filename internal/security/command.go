// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// command.go implements command specs and command policy checks.
package security

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/rigrun-toolguard/internal/toolerr"
)

// =============================================================================
// COMMAND SPEC
// =============================================================================

type specKind uint8

const (
	shellSpec specKind = iota + 1
	argvSpec
)

// CommandSpec is either a raw shell string or an ordered list of
// argument-vector stages forming a pipeline. The zero value is empty and is
// rejected by CheckCommandSecurity.
type CommandSpec struct {
	kind   specKind
	raw    string
	stages [][]string
}

// Shell wraps a raw shell string. It is never handed to a shell; it is only
// accepted if it decomposes cleanly into stages.
func Shell(command string) CommandSpec {
	return CommandSpec{kind: shellSpec, raw: command}
}

// Argv builds a single-stage spec from a program and its arguments.
func Argv(args ...string) CommandSpec {
	return CommandSpec{kind: argvSpec, stages: [][]string{append([]string(nil), args...)}}
}

// Pipeline builds a multi-stage spec. Each stage is copied.
func Pipeline(stages ...[]string) CommandSpec {
	spec := CommandSpec{kind: argvSpec, stages: make([][]string, 0, len(stages))}
	for _, stage := range stages {
		spec.stages = append(spec.stages, append([]string(nil), stage...))
	}
	return spec
}

// IsShell reports whether the spec is a raw shell string.
func (s CommandSpec) IsShell() bool { return s.kind == shellSpec }

// IsZero reports whether the spec is empty.
func (s CommandSpec) IsZero() bool { return s.kind == 0 }

// Raw returns the shell string of a Shell spec.
func (s CommandSpec) Raw() string { return s.raw }

// Stages returns a copy of the argv stages of an Argv spec.
func (s CommandSpec) Stages() [][]string {
	out := make([][]string, len(s.stages))
	for i, stage := range s.stages {
		out[i] = append([]string(nil), stage...)
	}
	return out
}

// String renders the spec for logs and history.
func (s CommandSpec) String() string {
	if s.kind == shellSpec {
		return s.raw
	}
	parts := make([]string, len(s.stages))
	for i, stage := range s.stages {
		parts[i] = strings.Join(stage, " ")
	}
	return strings.Join(parts, " | ")
}

// CheckedCommand is a command that passed CheckCommandSecurity.
type CheckedCommand struct {
	Stages  [][]string    // Argument vectors, in pipeline order
	Timeout time.Duration // Effective timeout after clamping
}

// =============================================================================
// RULE TABLES
// =============================================================================

// argvMetachars are shell metacharacters that have no business in an
// argument vector.
const argvMetachars = ";&|`$<>\n\r"

// envAssignment matches a NAME=value word.
var envAssignment = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*=`)

// envBuiltins assign, export or remove environment variables.
var envBuiltins = map[string]bool{
	"export": true, "set": true, "unset": true, "declare": true, "typeset": true,
	"setenv": true, "unsetenv": true, "readonly": true, "local": true,
}

// codeBuiltins run code strings or replace the process.
var codeBuiltins = map[string]bool{
	"eval": true, "exec": true, "source": true, ".": true, "builtin": true,
}

// interpreterFlags maps interpreters to the flags that take a program text.
var interpreterFlags = map[string][]string{
	"sh": {"-c"}, "bash": {"-c"}, "zsh": {"-c"}, "ksh": {"-c"}, "mksh": {"-c"},
	"dash": {"-c"}, "ash": {"-c"}, "fish": {"-c", "--command"}, "csh": {"-c"}, "tcsh": {"-c"},
	"python": {"-c"}, "python2": {"-c"}, "python3": {"-c"}, "pypy": {"-c"}, "pypy3": {"-c"},
	"perl": {"-e", "-E"}, "ruby": {"-e"}, "php": {"-r"}, "lua": {"-e"}, "luajit": {"-e"},
	"node": {"-e", "--eval", "-p", "--print"}, "nodejs": {"-e", "--eval", "-p", "--print"},
	"deno": {"eval"}, "bun": {"-e", "--eval"},
	"pwsh": {"-c", "-command", "-encodedcommand", "-ec"}, "powershell": {"-c", "-command", "-encodedcommand", "-ec"},
	"cmd": {"/c", "/k"}, "osascript": {"-e"}, "tclsh": {}, "expect": {"-c"},
}

// shellFamily are interpreters whose combined short flags may hide -c (sh -ec).
var shellFamily = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "ksh": true, "mksh": true,
	"dash": true, "ash": true, "csh": true, "tcsh": true,
}

// wrapperCommands run another program taken from their arguments.
var wrapperCommands = map[string]bool{
	"env": true, "nice": true, "nohup": true, "time": true, "timeout": true,
	"stdbuf": true, "ionice": true, "command": true, "xargs": true,
	"taskset": true, "chrt": true, "unbuffer": true, "watch": true, "busybox": true,
}

// =============================================================================
// CHECK
// =============================================================================

// CheckCommandSecurity validates spec and clamps timeout. timeout <= 0 selects
// the policy default; larger values are capped at the policy maximum. On any
// violation a *CommandSecurityError is returned whose message is always
// RestrictedCommandMessage.
func (c *Context) CheckCommandSecurity(spec CommandSpec, timeout time.Duration) (CheckedCommand, error) {
	var stages [][]string
	switch spec.kind {
	case shellSpec:
		if strings.TrimSpace(spec.raw) == "" {
			return CheckedCommand{}, toolerr.InvalidParameter("check_command", "command is required")
		}
		if !c.policy.ShellDecomposition {
			return CheckedCommand{}, c.commandDenied("shell-disabled", -1, spec)
		}
		if len(spec.raw) > c.policy.MaxCommandLength {
			return CheckedCommand{}, c.commandDenied("too-long", -1, spec)
		}
		decomposed, rule := decomposeShell(spec.raw)
		if rule != "" {
			return CheckedCommand{}, c.commandDenied(rule, -1, spec)
		}
		stages = decomposed
	case argvSpec:
		if len(spec.stages) == 0 {
			return CheckedCommand{}, toolerr.InvalidParameter("check_command", "command list is empty")
		}
		total := 0
		for i, stage := range spec.stages {
			if len(stage) == 0 || strings.TrimSpace(stage[0]) == "" {
				return CheckedCommand{}, toolerr.InvalidParameter("check_command", "stage %d has no program", i)
			}
			for _, arg := range stage {
				total += len(arg) + 1
			}
		}
		if total > c.policy.MaxCommandLength {
			return CheckedCommand{}, c.commandDenied("too-long", -1, spec)
		}
		stages = spec.Stages()
	default:
		return CheckedCommand{}, toolerr.InvalidParameter("check_command", "command is required")
	}

	for i, stage := range stages {
		if rule := c.checkStage(stage, i > 0, 0); rule != "" {
			return CheckedCommand{}, c.commandDenied(rule, i, spec)
		}
	}
	c.logger.Debug("command accepted", "stages", describeStages(stages))

	return CheckedCommand{Stages: stages, Timeout: c.ClampTimeout(timeout)}, nil
}

// ClampTimeout applies the policy default and maximum to timeout.
func (c *Context) ClampTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return c.policy.DefaultTimeout
	}
	if timeout > c.policy.MaxTimeout {
		return c.policy.MaxTimeout
	}
	return timeout
}

func (c *Context) commandDenied(rule string, stage int, spec CommandSpec) error {
	c.reject("command rejected", rule, "stage", stage, "command", spec.String())
	return &CommandSecurityError{Rule: rule, Stage: stage}
}

// maxNesting bounds wrapper and interpreter recursion (env nice sh -c ...).
const maxNesting = 4

// checkStage returns the name of the first rule stage violates, or "".
// piped is true when the stage reads another stage's output on stdin.
func (c *Context) checkStage(stage []string, piped bool, depth int) string {
	if depth > maxNesting {
		return "nesting"
	}
	if len(stage) == 0 {
		return "empty-stage"
	}

	normalized := make([]string, len(stage))
	for i, arg := range stage {
		if strings.ContainsRune(arg, 0) {
			return "null-byte"
		}
		normalized[i] = norm.NFKC.String(arg)
		if strings.ContainsAny(normalized[i], argvMetachars) {
			return "metacharacter"
		}
	}

	if envAssignment.MatchString(normalized[0]) {
		return "env-assignment"
	}

	prog := programName(normalized[0])
	args := normalized[1:]

	if envBuiltins[prog] {
		return "env-assignment"
	}
	if codeBuiltins[prog] {
		return "code-builtin"
	}
	if c.isDisallowedName(prog) {
		return "disallowed-command:" + prog
	}

	// Patterns see the basename so /bin/rm and ./rm match like rm.
	line := strings.ToLower(strings.Join(append([]string{prog}, args...), " "))
	for _, re := range c.commandRules {
		if re.MatchString(line) {
			return "disallowed-pattern:" + re.String()
		}
	}

	if flags, ok := interpreterFlags[prog]; ok {
		if rule := c.checkInterpreter(prog, flags, args, piped, depth); rule != "" {
			return rule
		}
	}

	if wrapperCommands[prog] {
		inner, rule := unwrap(prog, args)
		if rule != "" {
			return rule
		}
		if len(inner) > 0 {
			return c.checkStage(inner, piped, depth+1)
		}
	}
	return ""
}

// checkInterpreter treats a program text passed to an interpreter as a raw
// shell string and re-validates it. An interpreter that would read its
// program from a pipe is rejected outright.
func (c *Context) checkInterpreter(prog string, flags, args []string, piped bool, depth int) string {
	code, flag, hasCode, positional := interpreterCode(prog, flags, args)
	if hasCode {
		if !c.policy.ShellDecomposition {
			return "interpreter-code"
		}
		if strings.Contains(flag, "encoded") || flag == "-ec" {
			return "interpreter-encoded"
		}
		stages, rule := decomposeShell(code)
		if rule != "" {
			return "interpreter-" + rule
		}
		if len(stages) != 1 {
			return "interpreter-pipeline"
		}
		return c.checkStage(stages[0], false, depth+1)
	}
	if piped && (positional == 0) {
		return "interpreter-stdin"
	}
	return ""
}

// interpreterCode finds the program text handed to an interpreter and the
// flag that introduced it. It also returns the number of positional
// arguments (script paths) seen.
func interpreterCode(prog string, flags, args []string) (string, string, bool, int) {
	positional := 0
	for i := 0; i < len(args); i++ {
		arg := args[i]
		lower := strings.ToLower(arg)
		for _, flag := range flags {
			if lower == flag {
				if i+1 < len(args) {
					return args[i+1], flag, true, positional
				}
				return "", flag, true, positional
			}
			// Attached form: -c'code', -eprint(1)
			if len(flag) == 2 && flag[0] == '-' && !shellFamily[prog] && len(arg) > 2 && strings.HasPrefix(arg, flag) {
				return arg[2:], flag, true, positional
			}
		}
		// Combined short flags in the shell family: sh -ec 'cmd'
		if shellFamily[prog] && strings.HasPrefix(arg, "-") && !strings.HasPrefix(arg, "--") && strings.ContainsRune(arg[1:], 'c') {
			if i+1 < len(args) {
				return args[i+1], "-c", true, positional
			}
			return "", "-c", true, positional
		}
		if arg == "-" || arg == "-s" {
			continue
		}
		if !strings.HasPrefix(arg, "-") {
			// Everything after the script path belongs to the script.
			return "", "", false, positional + 1
		}
	}
	return "", "", false, positional
}

// unwrap returns the command a wrapper program would run.
func unwrap(prog string, args []string) ([]string, string) {
	i := 0
	switch prog {
	case "env":
		for ; i < len(args); i++ {
			arg := args[i]
			switch {
			case arg == "-S" || strings.HasPrefix(arg, "--split-string") || strings.HasPrefix(arg, "-S"):
				return nil, "env-split-string"
			case arg == "-u" || arg == "--unset" || arg == "-C" || arg == "--chdir":
				i++
			case strings.Contains(arg, "="):
				return nil, "env-assignment"
			case strings.HasPrefix(arg, "-"):
			default:
				return args[i:], ""
			}
		}
		return nil, ""
	case "xargs":
		for ; i < len(args); i++ {
			arg := args[i]
			switch {
			case arg == "-I" || arg == "-J" || strings.HasPrefix(arg, "-I") || strings.HasPrefix(arg, "--replace") || arg == "-i":
				return nil, "xargs-replace"
			case arg == "-a" || arg == "-d" || arg == "-E" || arg == "-L" || arg == "-n" || arg == "-P" || arg == "-s":
				i++
			case strings.HasPrefix(arg, "-"):
			default:
				return args[i:], ""
			}
		}
		return nil, ""
	case "timeout":
		// timeout [flags] DURATION COMMAND...
		for ; i < len(args) && strings.HasPrefix(args[i], "-"); i++ {
			if args[i] == "-s" || args[i] == "-k" || args[i] == "--signal" || args[i] == "--kill-after" {
				i++
			}
		}
		i++
	case "watch":
		return nil, "watch"
	default:
		for ; i < len(args); i++ {
			arg := args[i]
			if strings.HasPrefix(arg, "-") || isNumeric(arg) {
				continue
			}
			break
		}
	}
	if i >= len(args) {
		return nil, ""
	}
	return args[i:], ""
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '-' && r != '+' && r != ',' {
			return false
		}
	}
	return true
}

// programName returns the lower-cased basename of a program path without a
// Windows executable suffix.
func programName(arg0 string) string {
	name := strings.ToLower(filepath.Base(strings.ReplaceAll(arg0, "\\", "/")))
	for _, ext := range []string{".exe", ".com", ".bat", ".cmd"} {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

func (c *Context) isDisallowedName(prog string) bool {
	for _, pattern := range c.policy.DisallowedCommands {
		if ok, _ := filepath.Match(strings.ToLower(pattern), prog); ok {
			return true
		}
	}
	return false
}

// =============================================================================
// SHELL DECOMPOSITION
// =============================================================================

// decomposeShell splits a raw shell string into argv stages on unquoted '|'.
// Quoting follows POSIX sh closely enough to recover words. Any construct a
// shell would expand or interpret (other operators, substitutions, globs,
// redirections, comments) leaves the string undecomposable and a rule name
// is returned instead.
func decomposeShell(raw string) ([][]string, string) {
	var (
		stages  [][]string
		stage   []string
		current strings.Builder
		inWord  bool
		single  bool
		double  bool
		escaped bool
	)

	flushWord := func() {
		if inWord {
			stage = append(stage, current.String())
			current.Reset()
			inWord = false
		}
	}

	runes := []rune(norm.NFKC.String(raw))
	for i, r := range runes {
		if escaped {
			current.WriteRune(r)
			inWord = true
			escaped = false
			continue
		}
		if single {
			if r == '\'' {
				single = false
				continue
			}
			current.WriteRune(r)
			continue
		}
		if double {
			switch r {
			case '"':
				double = false
			case '\\':
				if i+1 < len(runes) && strings.ContainsRune("$`\"\\", runes[i+1]) {
					escaped = true
				} else {
					current.WriteRune(r)
				}
			case '$', '`':
				return nil, "expansion"
			default:
				current.WriteRune(r)
			}
			continue
		}

		switch r {
		case '\\':
			escaped = true
		case '\'':
			single = true
			inWord = true
		case '"':
			double = true
			inWord = true
		case ' ', '\t':
			flushWord()
		case '|':
			flushWord()
			if len(stage) == 0 || (i+1 < len(runes) && runes[i+1] == '|') {
				return nil, "operator"
			}
			stages = append(stages, stage)
			stage = nil
		case ';', '&', '<', '>', '(', ')', '\n', '\r':
			return nil, "operator"
		case '$', '`':
			return nil, "expansion"
		case '*', '?', '[', '{', '}':
			return nil, "glob"
		case '~', '#':
			if !inWord {
				return nil, "expansion"
			}
			current.WriteRune(r)
		default:
			current.WriteRune(r)
			inWord = true
		}
	}

	if escaped || single || double {
		return nil, "unclosed-quote"
	}
	flushWord()
	if len(stage) == 0 {
		if len(stages) == 0 {
			return nil, "empty"
		}
		return nil, "operator"
	}
	stages = append(stages, stage)
	return stages, ""
}

// ParseShell exposes decomposition for callers that want to show how a raw
// string would be run. The error is a *CommandSecurityError.
func ParseShell(raw string) ([][]string, error) {
	stages, rule := decomposeShell(raw)
	if rule != "" {
		return nil, &CommandSecurityError{Rule: rule, Stage: -1}
	}
	return stages, nil
}

// describeStages renders stages for debug logs.
func describeStages(stages [][]string) string {
	var b strings.Builder
	for i, stage := range stages {
		if i > 0 {
			b.WriteString(" | ")
		}
		fmt.Fprintf(&b, "%q", stage)
	}
	return b.String()
}
