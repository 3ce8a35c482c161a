// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package fsys

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jeranaias/rigrun-toolguard/internal/toolerr"
)

// =============================================================================
// ACCESS CHECKS
// =============================================================================

// Each check validates the path before looking at the filesystem, so an
// out-of-workspace path fails with a security error whether or not it exists.

// CheckFileExecutable reports whether path is a regular file the process may
// execute.
func (t *Tools) CheckFileExecutable(path string) (bool, error) {
	return t.checkFile("check_file_executable", path, accessExecute)
}

// CheckFileReadable reports whether path is a regular file the process may
// read.
func (t *Tools) CheckFileReadable(path string) (bool, error) {
	return t.checkFile("check_file_readable", path, accessRead)
}

// CheckFileWritable reports whether path may be written. For a file that
// does not exist yet, its parent directory must exist and be writable.
func (t *Tools) CheckFileWritable(path string) (bool, error) {
	const op = "check_file_writable"

	resolved, err := t.sec.CheckPathSecurity(path)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(resolved)
	switch {
	case err == nil && info.IsDir():
		return false, toolerr.InvalidParameter(op, "Not a file: %s", path)
	case err == nil:
		return canAccess(resolved, accessWrite), nil
	case !errors.Is(err, fs.ErrNotExist):
		return false, osError(op, path, err)
	}

	parent := filepath.Dir(resolved)
	pinfo, err := os.Stat(parent)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, toolerr.Wrap(toolerr.KindNotFound, op, path, "Parent directory not found: "+t.sec.RelativePath(parent), err)
		}
		return false, osError(op, path, err)
	}
	if !pinfo.IsDir() {
		return false, toolerr.InvalidParameter(op, "parent is not a directory: %s", t.sec.RelativePath(parent))
	}
	return canAccess(parent, accessWrite|accessExecute), nil
}

// CheckDirReadable reports whether path is a directory the process may list.
func (t *Tools) CheckDirReadable(path string) (bool, error) {
	const op = "check_dir_readable"

	resolved, err := t.sec.CheckPathSecurity(path)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, toolerr.Wrap(toolerr.KindNotFound, op, path, "Directory not found: "+path, err)
		}
		return false, osError(op, path, err)
	}
	if !info.IsDir() {
		return false, toolerr.InvalidParameter(op, "Not a directory: %s", path)
	}
	return canAccess(resolved, accessRead|accessExecute), nil
}

// Exists reports whether path exists. Security failures are returned; other
// lookup failures count as "does not exist".
func (t *Tools) Exists(path string) (bool, error) {
	resolved, err := t.sec.CheckPathSecurity(path)
	if err != nil {
		if toolerr.KindOf(err) == toolerr.KindPermission {
			return false, nil
		}
		return false, err
	}
	_, err = os.Stat(resolved)
	return err == nil, nil
}

func (t *Tools) checkFile(op, path string, mode uint32) (bool, error) {
	resolved, err := t.sec.CheckPathSecurity(path)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return false, osError(op, path, err)
	}
	if info.IsDir() {
		return false, toolerr.InvalidParameter(op, "Not a file: %s", path)
	}
	return canAccess(resolved, mode), nil
}
