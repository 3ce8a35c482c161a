// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// This file contains fuzz tests for the security-critical parsers.
// Run with: go test -fuzz=FuzzCheckPathSecurity ./internal/security/
package security

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// =============================================================================
// PATH FUZZ TESTS
// =============================================================================

// FuzzCheckPathSecurity checks that an accepted path always resolves inside
// the workspace.
func FuzzCheckPathSecurity(f *testing.F) {
	f.Add("file.txt")
	f.Add("a/b/../c")
	f.Add("../../etc/passwd")
	f.Add("/etc/shadow")
	f.Add("./.git/hooks/pre-commit")
	f.Add("~/.ssh/id_rsa")
	f.Add("dir//sub/./x")
	f.Add("\x00")
	f.Add("")
	f.Add(strings.Repeat("a/", 200))

	ctx, err := NewContext(DefaultPolicy(f.TempDir()), nil)
	if err != nil {
		f.Fatal(err)
	}

	f.Fuzz(func(t *testing.T, path string) {
		resolved, err := ctx.CheckPathSecurity(path)
		if err != nil {
			return
		}
		if !ctx.IsWithinWorkspace(resolved) {
			t.Fatalf("path %q resolved outside the workspace: %q", path, resolved)
		}
	})
}

// =============================================================================
// COMMAND FUZZ TESTS
// =============================================================================

// FuzzParseShell checks that decomposition never yields an empty stage and
// that an accepted string also passes or fails the full check without
// panicking.
func FuzzParseShell(f *testing.F) {
	f.Add("ls -la")
	f.Add("cat a.txt | grep foo | wc -l")
	f.Add(`echo "quoted | pipe" 'single'`)
	f.Add("echo $(whoami)")
	f.Add("echo `id`")
	f.Add("a && b; c > d")
	f.Add(`printf '%s\n' "unterminated`)
	f.Add("|")
	f.Add("")

	ctx, err := NewContext(DefaultPolicy(f.TempDir()), nil)
	if err != nil {
		f.Fatal(err)
	}

	f.Fuzz(func(t *testing.T, raw string) {
		stages, err := ParseShell(raw)
		if err != nil {
			return
		}
		for i, stage := range stages {
			if len(stage) == 0 {
				t.Fatalf("stage %d of %q is empty", i, raw)
			}
		}
		_, _ = ctx.CheckCommandSecurity(Shell(raw), 0)
	})
}

// =============================================================================
// TEXT FUZZ TESTS
// =============================================================================

// FuzzCleanText checks that cleaning is idempotent and leaves valid UTF-8
// without control characters other than newline and tab.
func FuzzCleanText(f *testing.F) {
	f.Add("plain text")
	f.Add("line\r\nwith\x1b[31mcolor\x1b[0m")
	f.Add("nul\x00byte")
	f.Add("bidi ‮ override")
	f.Add("invalid \xff\xfe utf8")
	f.Add("")

	f.Fuzz(func(t *testing.T, input string) {
		out := CleanText(input)
		if !utf8.ValidString(out) {
			t.Fatalf("CleanText(%q) is not valid UTF-8", input)
		}
		if again := CleanText(out); again != out {
			t.Fatalf("CleanText is not idempotent: %q -> %q", out, again)
		}
		for _, r := range out {
			if r < 0x20 && r != '\n' && r != '\t' {
				t.Fatalf("CleanText(%q) kept control character %U", input, r)
			}
		}
	})
}

// FuzzSanitizeOutput checks the length bound and the truncation marker.
func FuzzSanitizeOutput(f *testing.F) {
	f.Add("short", 10)
	f.Add("exactly ten", 11)
	f.Add("日本語のテキスト", 3)
	f.Add("", 1)

	f.Fuzz(func(t *testing.T, input string, max int) {
		if max < 1 || max > 1<<16 {
			return
		}
		p := DefaultPolicy(t.TempDir())
		p.MaxOutputSize = max
		ctx, err := NewContext(p, nil)
		if err != nil {
			t.Fatal(err)
		}

		out := ctx.SanitizeOutput(input)
		if utf8.RuneCountInString(input) <= max {
			if out != input {
				t.Fatalf("text within the limit was changed: %q -> %q", input, out)
			}
			return
		}
		if !strings.HasSuffix(out, TruncationSuffix) {
			t.Fatalf("truncated output lacks the marker: %q", out)
		}
		body := strings.TrimSuffix(out, TruncationSuffix)
		if utf8.RuneCountInString(body) != max {
			t.Fatalf("kept %d runes, want %d", utf8.RuneCountInString(body), max)
		}
	})
}
