// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// context.go builds the Context and implements environment and output
// sanitization.
package security

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jeranaias/rigrun-toolguard/internal/util"
)

// TruncationSuffix is appended to output cut at MaxOutputSize.
const TruncationSuffix = "... (output truncated)"

// minRedactLen avoids redacting short values that would match ordinary text.
const minRedactLen = 4

// loaderEnvVars are stripped regardless of the protected patterns because
// they change how the child's loader or shell behaves.
var loaderEnvVars = map[string]bool{
	"LD_PRELOAD":      true,
	"LD_LIBRARY_PATH": true,
	"LD_AUDIT":        true,
	"BASH_ENV":        true,
	"ENV":             true,
	"SHELLOPTS":       true,
	"BASHOPTS":        true,
	"PROMPT_COMMAND":  true,
	"IFS":             true,
	"PYTHONSTARTUP":   true,
	"PERL5OPT":        true,
	"RUBYOPT":         true,
	"NODE_OPTIONS":    true,
	"GIT_SSH_COMMAND": true,
}

// loaderEnvPrefixes are stripped by prefix.
var loaderEnvPrefixes = []string{"LD_", "DYLD_", "BASH_FUNC_"}

// Context is the single authority on which paths, commands and environment
// variables are permitted. It is immutable after NewContext and safe for
// concurrent use.
type Context struct {
	root   string
	policy Policy
	logger *slog.Logger

	pathRules    []*regexp.Regexp
	commandRules []*regexp.Regexp
	protectedSub []string
	protectedSet map[string]bool

	// redactor replaces protected values seen in the parent environment.
	redactor *strings.Replacer
}

// NewContext validates p and compiles it into a Context. The workspace root
// must exist and is resolved through symlinks once, here.
func NewContext(p Policy, logger *slog.Logger) (*Context, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p = p.clone()

	if p.WorkspaceRoot == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	abs, err := filepath.Abs(p.WorkspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", root)
	}
	p.WorkspaceRoot = root

	if p.MaxOutputSize < 0 {
		return nil, fmt.Errorf("max output size must not be negative")
	}
	if p.MaxOutputSize == 0 {
		p.MaxOutputSize = DefaultMaxOutputSize
	}
	if p.DefaultTimeout <= 0 {
		p.DefaultTimeout = DefaultCommandTimeout
	}
	if p.MaxTimeout <= 0 {
		p.MaxTimeout = DefaultMaxCommandTimeout
	}
	if p.DefaultTimeout > p.MaxTimeout {
		p.DefaultTimeout = p.MaxTimeout
	}
	if p.MaxCommandLength <= 0 {
		p.MaxCommandLength = DefaultMaxCommandLength
	}

	c := &Context{
		root:         root,
		policy:       p,
		logger:       logger,
		protectedSet: make(map[string]bool, len(p.ProtectedEnvNames)),
	}

	if c.pathRules, err = compileRules(p.DisallowedPathPatterns); err != nil {
		return nil, fmt.Errorf("invalid disallowed path pattern: %w", err)
	}
	if c.commandRules, err = compileRules(p.DisallowedCommandPatterns); err != nil {
		return nil, fmt.Errorf("invalid disallowed command pattern: %w", err)
	}
	for _, name := range p.DisallowedCommands {
		if _, err := filepath.Match(name, ""); err != nil {
			return nil, fmt.Errorf("invalid disallowed command %q: %w", name, err)
		}
	}
	for _, sub := range p.ProtectedEnvPatterns {
		if sub = strings.ToUpper(strings.TrimSpace(sub)); sub != "" {
			c.protectedSub = append(c.protectedSub, sub)
		}
	}
	for _, name := range p.ProtectedEnvNames {
		c.protectedSet[strings.ToUpper(name)] = true
	}
	c.redactor = c.buildRedactor(os.Environ())

	return c, nil
}

func compileRules(patterns []string) ([]*regexp.Regexp, error) {
	rules := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", pattern, err)
		}
		rules = append(rules, re)
	}
	return rules, nil
}

// WorkspaceRoot returns the resolved workspace root.
func (c *Context) WorkspaceRoot() string { return c.root }

// Policy returns a copy of the effective policy.
func (c *Context) Policy() Policy { return c.policy.clone() }

// Logger returns the logger the context reports rejections to.
func (c *Context) Logger() *slog.Logger { return c.logger }

// MaxOutputSize returns the effective output cap in characters.
func (c *Context) MaxOutputSize() int { return c.policy.MaxOutputSize }

// =============================================================================
// ENVIRONMENT
// =============================================================================

// IsProtectedEnv reports whether an environment variable name must be
// withheld from child processes.
func (c *Context) IsProtectedEnv(name string) bool {
	upper := strings.ToUpper(name)
	if c.protectedSet[upper] {
		return true
	}
	for _, sub := range c.protectedSub {
		if strings.Contains(upper, sub) {
			return true
		}
	}
	return false
}

func isLoaderEnv(upper string) bool {
	if loaderEnvVars[upper] {
		return true
	}
	for _, prefix := range loaderEnvPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}

// SanitizeEnvironment returns a copy of env ("NAME=value" entries) without
// protected and loader-hijacking variables. env itself is never modified.
func (c *Context) SanitizeEnvironment(env []string) []string {
	out := make([]string, 0, len(env))
	for _, entry := range env {
		idx := strings.IndexByte(entry, '=')
		if idx <= 0 {
			continue
		}
		name := entry[:idx]
		if c.IsProtectedEnv(name) || isLoaderEnv(strings.ToUpper(name)) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// =============================================================================
// OUTPUT
// =============================================================================

// SanitizeOutput caps text at MaxOutputSize characters. Longer text is cut to
// exactly MaxOutputSize characters and TruncationSuffix is appended. The
// function is idempotent.
func (c *Context) SanitizeOutput(text string) string {
	if utf8.RuneCountInString(text) <= c.policy.MaxOutputSize {
		return text
	}
	return util.TruncateRunesNoEllipsis(text, c.policy.MaxOutputSize) + TruncationSuffix
}

// MarkTruncated is SanitizeOutput for text whose capture was already cut
// short upstream: the suffix is guaranteed even when text fits.
func (c *Context) MarkTruncated(text string) string {
	out := c.SanitizeOutput(text)
	if strings.HasSuffix(out, TruncationSuffix) {
		return out
	}
	return out + TruncationSuffix
}

// buildRedactor snapshots the values of protected variables present in the
// parent environment. Longer values are listed first so they win over any
// value that is a prefix of another.
func (c *Context) buildRedactor(environ []string) *strings.Replacer {
	type secret struct{ name, value string }
	var secrets []secret
	for _, entry := range environ {
		idx := strings.IndexByte(entry, '=')
		if idx <= 0 {
			continue
		}
		name, value := entry[:idx], entry[idx+1:]
		if len(value) < minRedactLen || !c.IsProtectedEnv(name) {
			continue
		}
		secrets = append(secrets, secret{name, value})
	}
	if len(secrets) == 0 {
		return nil
	}
	sort.SliceStable(secrets, func(i, j int) bool {
		return len(secrets[i].value) > len(secrets[j].value)
	})
	pairs := make([]string, 0, 2*len(secrets))
	for _, s := range secrets {
		pairs = append(pairs, s.value, "[REDACTED:"+s.name+"]")
	}
	return strings.NewReplacer(pairs...)
}

// RedactSecrets replaces values of protected environment variables with
// [REDACTED:NAME].
func (c *Context) RedactSecrets(text string) string {
	if c.redactor == nil || text == "" {
		return text
	}
	return c.redactor.Replace(text)
}

// =============================================================================
// REJECTION LOGGING
// =============================================================================

// reject logs a rejection. The rule is only logged when the policy allows it;
// it is never part of the returned error message.
func (c *Context) reject(msg, rule string, attrs ...any) {
	if c.policy.LogRejectionDetail {
		c.logger.Warn(msg, append([]any{"rule", rule}, attrs...)...)
		return
	}
	c.logger.Debug(msg)
}
