// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.txt")
	data := []byte("hello, world")

	require.NoError(t, AtomicWriteFile(path, data, 0644))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
}

func TestAtomicWriteFile_MissingParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "test.txt")
	assert.Error(t, AtomicWriteFile(path, []byte("x"), 0644))

	_, err := os.Stat(filepath.Dir(path))
	assert.True(t, os.IsNotExist(err), "parent must not be created")
}

func TestAtomicWriteFile_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.txt")
	require.NoError(t, AtomicWriteFile(path, []byte("original content that is long"), 0644))
	require.NoError(t, AtomicWriteFile(path, []byte("new"), 0600))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestAtomicWriteFile_EmptyAndLarge(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty")
	require.NoError(t, AtomicWriteFile(empty, nil, 0644))
	info, err := os.Stat(empty)
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	large := filepath.Join(dir, "large")
	data := bytes.Repeat([]byte("0123456789"), 100_000)
	require.NoError(t, AtomicWriteFile(large, data, 0644))
	got, err := os.ReadFile(large)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestAtomicWriteFile_NoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")
	require.NoError(t, AtomicWriteFile(path, []byte("x"), 0644))

	// Renaming over a directory fails and must clean up the temp file.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "adir"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "adir", "f"), []byte("x"), 0644))
	assert.Error(t, AtomicWriteFile(filepath.Join(dir, "adir"), []byte("x"), 0644))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), TempPrefix), "leftover temp file %s", e.Name())
	}
}

func TestAtomicWriteReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.txt")
	n, err := AtomicWriteReader(path, strings.NewReader("streamed"), 0644)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "streamed", string(got))
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxRunes int
		want     string
	}{
		{"short", "hi", 10, "hi"},
		{"exact", "hello", 5, "hello"},
		{"truncated", "hello world", 8, "hello..."},
		{"tiny limit", "hello", 2, "he"},
		{"zero", "hello", 0, ""},
		{"unicode", "日本語テキスト", 5, "日本..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TruncateRunes(tt.input, tt.maxRunes))
		})
	}
}

func TestTruncateRunesNoEllipsis(t *testing.T) {
	tests := []struct {
		input    string
		maxRunes int
		want     string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel"},
		{"hello", 0, ""},
		{"日本語", 2, "日本"},
		{"", 3, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TruncateRunesNoEllipsis(tt.input, tt.maxRunes))
	}
}

func TestIntConversions(t *testing.T) {
	assert.Equal(t, "-7", IntToStr(-7))
	assert.Equal(t, "0", Int64ToStr(0))
	assert.Equal(t, "9223372036854775807", Int64ToStr(1<<63-1))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "0B", FormatSize(0))
	assert.Equal(t, "512B", FormatSize(512))
	assert.Equal(t, "2KB", FormatSize(2048))
	assert.Equal(t, "10MB", FormatSize(10*1024*1024))
	assert.Equal(t, "3GB", FormatSize(3*1024*1024*1024))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond))
	assert.Equal(t, "12s", FormatDuration(12*time.Second))
	assert.Equal(t, "3m", FormatDuration(3*time.Minute))
	assert.Equal(t, "3m5s", FormatDuration(3*time.Minute+5*time.Second))
}
