// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security decides whether a path, a command or an environment
// variable may be used by the execution layer.
//
// A Context is built once from a Policy and never changes afterwards, so it
// can be shared by any number of goroutines without locking.
//
// # Paths
//
// CheckPathSecurity confines every path to the workspace root. Symlinks are
// resolved segment by segment and each link target must stay inside the
// workspace; ".." segments and disallowed patterns (credential stores, shell
// startup files, git hooks) are rejected before resolution.
//
// # Commands
//
// Commands are CommandSpec values: Shell(string) or Argv/Pipeline stages.
// Shell strings are never given to a shell. They are accepted only when they
// split into plain argument vectors. CheckCommandSecurity rejects
// metacharacters, disallowed programs and patterns, environment assignments
// and interpreters handed a program text that fails the same checks.
//
// Every rejection carries the same caller-facing message. The rule that fired
// is logged through slog when Policy.LogRejectionDetail is set.
//
// # Output and Environment
//
//	env := ctx.SanitizeEnvironment(os.Environ())
//	out := ctx.SanitizeOutput(ctx.RedactSecrets(security.CleanText(raw)))
package security
