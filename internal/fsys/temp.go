// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package fsys

import (
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/jeranaias/rigrun-toolguard/internal/toolerr"
)

// =============================================================================
// TEMP FILES
// =============================================================================

// CreateTempFile creates an empty file in dir (the workspace root when dir
// is empty) and tracks it for CleanupTempFiles. It returns the file's
// workspace-relative path.
func (t *Tools) CreateTempFile(dir, prefix, suffix string) (string, error) {
	const op = "create_temp_file"

	if strings.ContainsAny(prefix+suffix, `/\`) {
		return "", toolerr.InvalidParameter(op, "prefix and suffix must not contain path separators")
	}
	if dir == "" {
		dir = "."
	}
	resolved, err := t.sec.CheckPathSecurity(dir)
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp(resolved, prefix+"*"+suffix)
	if err != nil {
		return "", osError(op, dir, err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", osError(op, dir, err)
	}

	t.mu.Lock()
	t.temps[name] = struct{}{}
	t.mu.Unlock()

	return t.sec.RelativePath(name), nil
}

// TempFiles returns the tracked temp files, workspace-relative and sorted.
func (t *Tools) TempFiles() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.temps))
	for name := range t.temps {
		out = append(out, t.sec.RelativePath(name))
	}
	sort.Strings(out)
	return out
}

// CleanupTempFiles removes every tracked temp file. Files that are already
// gone are forgotten silently; other failures stay tracked and are returned.
func (t *Tools) CleanupTempFiles() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	for name := range t.temps {
		if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			t.logger.Warn("failed to remove temp file", "path", t.sec.RelativePath(name), "error", err)
			errs = append(errs, err)
			continue
		}
		delete(t.temps, name)
	}
	return errors.Join(errs...)
}
