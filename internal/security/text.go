// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"strings"
	"unicode"
)

// CleanText strips characters that can corrupt a terminal or a log line:
// control characters other than newline and tab, NUL, and separator runes
// other than the ASCII space. Invalid UTF-8 becomes U+FFFD.
func CleanText(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if !needsCleaning(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if keepRune(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func needsCleaning(s string) bool {
	for _, r := range s {
		if !keepRune(r) {
			return true
		}
	}
	return false
}

func keepRune(r rune) bool {
	switch {
	case r == '\n' || r == '\t' || r == ' ':
		return true
	case unicode.IsControl(r):
		return false
	case unicode.Is(unicode.Zs, r), r == '\u2028', r == '\u2029':
		return false
	case unicode.Is(unicode.Cf, r) && r != '\u200d':
		// Bidi overrides and other invisible format characters; ZWJ stays
		// for emoji sequences.
		return false
	}
	return true
}
