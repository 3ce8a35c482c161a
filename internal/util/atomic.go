// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// TempPrefix marks temp files created by atomic writes so stale ones can be
// recognised after a crash.
const TempPrefix = ".toolguard-tmp-"

// RELIABILITY: Atomic write with fsync prevents data loss on crash
//
// AtomicWriteFile writes data to path atomically:
// 1. Write to a temporary file in the same directory
// 2. Sync the data to disk using fsync
// 3. Close and chmod the temp file
// 4. Rename the temp file over the target
//
// The parent directory must already exist; callers that confine writes to a
// directory tree create and validate parents themselves. On any failure the
// temp file is removed and the target is left untouched.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	_, err := AtomicWriteReader(path, bytesReader(data), perm)
	return err
}

// AtomicWriteReader is AtomicWriteFile for a stream. It returns the number of
// bytes written.
func AtomicWriteReader(path string, r io.Reader, perm os.FileMode) (int64, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("failed to get absolute path: %w", err)
	}
	dir := filepath.Dir(absPath)

	// Same directory keeps the rename on one filesystem.
	f, err := os.CreateTemp(dir, TempPrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := f.Name()

	success := false
	defer func() {
		if !success {
			f.Close()
			os.Remove(tempPath)
		}
	}()

	n, err := io.Copy(f, r)
	if err != nil {
		return n, fmt.Errorf("failed to write data: %w", err)
	}

	// RELIABILITY: Sync to disk - ensures data is persisted before rename
	if err := f.Sync(); err != nil {
		return n, fmt.Errorf("failed to sync data to disk: %w", err)
	}

	// Close before rename - required on some systems (Windows)
	if err := f.Close(); err != nil {
		return n, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tempPath, perm); err != nil {
		return n, fmt.Errorf("failed to set file permissions: %w", err)
	}

	if err := os.Rename(tempPath, absPath); err != nil {
		return n, fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return n, nil
}

type byteReader struct {
	data []byte
	off  int
}

func bytesReader(data []byte) *byteReader { return &byteReader{data: data} }

func (r *byteReader) Read(p []byte) (int, error) {
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.off:])
	r.off += n
	return n, nil
}
