// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the toolguard packages.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes, TruncateRunesNoEllipsis: UTF-8 safe truncation
//   - FormatSize, FormatDuration: compact human-readable values
//
// File Operations:
//   - AtomicWriteFile, AtomicWriteReader: crash-safe writes with fsync
//
// # Usage
//
//	// Cap output at a character count without splitting runes
//	out := util.TruncateRunesNoEllipsis(text, 1_000_000)
//
//	// Replace a file without ever exposing a partial write
//	err := util.AtomicWriteFile(path, data, 0644)
package util
