// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"time"
	"unicode/utf8"
)

// UNICODE: Rune-aware truncation preserves multi-byte characters.

// TruncateRunes truncates a string to a maximum number of runes (characters).
// If the string is truncated, "..." is appended within the limit.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// TruncateRunesNoEllipsis truncates a string to exactly maxRunes runes
// without appending anything.
func TruncateRunesNoEllipsis(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	// Walk byte offsets instead of converting the whole string to []rune;
	// captured output can be large.
	count := 0
	for i := range s {
		if count == maxRunes {
			return s[:i]
		}
		count++
	}
	return s
}

// FormatSize renders a byte count with a binary unit suffix.
func FormatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return Int64ToStr(bytes/GB) + "GB"
	case bytes >= MB:
		return Int64ToStr(bytes/MB) + "MB"
	case bytes >= KB:
		return Int64ToStr(bytes/KB) + "KB"
	default:
		return Int64ToStr(bytes) + "B"
	}
}

// FormatDuration renders d compactly: 250ms, 12s, 3m, 3m5s.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return IntToStr(int(d.Milliseconds())) + "ms"
	}
	if d < time.Minute {
		return IntToStr(int(d.Seconds())) + "s"
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return IntToStr(mins) + "m"
	}
	return IntToStr(mins) + "m" + IntToStr(secs) + "s"
}
