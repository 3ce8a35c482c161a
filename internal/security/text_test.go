// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", "hello world\n", "hello world\n"},
		{"tabs kept", "a\tb", "a\tb"},
		{"nul", "a\x00b", "ab"},
		{"ansi escape", "\x1b[31mred\x1b[0m", "[31mred[0m"},
		{"carriage return", "line\r\n", "line\n"},
		{"bell and backspace", "a\x07b\x08c", "abc"},
		{"bidi override", "abc‮def", "abcdef"},
		{"nbsp", "a b", "ab"},
		{"line separator", "a b", "ab"},
		{"invalid utf8", "a\xffb", "a�b"},
		{"unicode kept", "héllo 世界", "héllo 世界"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanText(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, CleanText(got))
		})
	}
}
