// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package fsys provides workspace-confined file operations.
//
// Every operation resolves its path through security.Context.CheckPathSecurity
// before touching the filesystem, so a path outside the workspace fails with a
// security error even when the target does not exist.
//
// # Reading
//
// ReadFile takes an explicit LineRange. Reading the entire file requires
// WholeFile(); an empty range is rejected rather than guessed at.
//
//	content, err := tools.ReadFile("main.go", fsys.Lines(10, 20))
//
// # Writing
//
// WriteFile creates missing parent directories one at a time, re-validating
// each one, then replaces the target atomically. A failed write leaves no
// partial file behind.
package fsys
