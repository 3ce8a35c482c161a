// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// path.go implements workspace path containment.
package security

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/jeranaias/rigrun-toolguard/internal/toolerr"
)

// maxSymlinkHops matches the Linux MAXSYMLINKS limit.
const maxSymlinkHops = 40

// CheckPathSecurity resolves path to a canonical absolute path inside the
// workspace. Relative paths are taken relative to the workspace root. Every
// existing segment is dereferenced; a symlink whose target leaves the
// workspace is rejected even if a later hop would lead back in. Segments that
// do not exist yet are appended lexically. Nothing is created or opened.
//
// SECURITY: ".." segments are rejected before resolution, independently of
// whether the result would stay inside the workspace.
func (c *Context) CheckPathSecurity(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", toolerr.InvalidParameter("check_path", "path is required")
	}
	if strings.ContainsRune(path, 0) {
		return "", c.pathDenied(path, "null-byte")
	}
	if hasTraversal(path) {
		return "", c.pathDenied(path, "traversal")
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(c.root, abs)
	}
	abs = filepath.Clean(abs)

	if rel, ok := c.relative(abs); ok {
		if rule := c.matchPathRule(rel); rule != "" {
			return "", c.pathDenied(path, "pattern:"+rule)
		}
	}

	resolved, rule, err := c.resolve(abs)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return "", toolerr.Wrap(toolerr.KindPermission, "check_path", path, "Permission denied", err)
		}
		return "", toolerr.Wrap(toolerr.KindInternal, "check_path", path, "failed to resolve path", err)
	}
	if rule != "" {
		return "", c.pathDenied(path, rule)
	}
	if !isPathWithinDir(resolved, c.root) {
		return "", c.pathDenied(path, "outside-workspace")
	}

	rel, _ := c.relative(resolved)
	if rule := c.matchPathRule(rel); rule != "" {
		return "", c.pathDenied(path, "pattern:"+rule)
	}
	return resolved, nil
}

// IsWithinWorkspace reports whether an already resolved path lies inside the
// workspace root.
func (c *Context) IsWithinWorkspace(resolved string) bool {
	return isPathWithinDir(resolved, c.root)
}

// RelativePath returns resolved relative to the workspace root in slash form,
// or "." for the root itself.
func (c *Context) RelativePath(resolved string) string {
	rel, ok := c.relative(resolved)
	if !ok || rel == "" {
		return "."
	}
	return rel
}

func (c *Context) pathDenied(path, rule string) error {
	c.reject("path rejected", rule, "path", path)
	return &SecurityError{Rule: rule, Path: path}
}

// relative returns abs relative to the workspace root in slash form. ok is
// false when abs is not lexically inside the root.
func (c *Context) relative(abs string) (string, bool) {
	if !isPathWithinDir(abs, c.root) {
		return "", false
	}
	rel, err := filepath.Rel(c.root, abs)
	if err != nil {
		return "", false
	}
	if rel == "." {
		return "", true
	}
	return filepath.ToSlash(rel), true
}

func (c *Context) matchPathRule(rel string) string {
	if rel == "" {
		return ""
	}
	if runtime.GOOS == "windows" {
		rel = strings.ToLower(rel)
	}
	for _, re := range c.pathRules {
		if re.MatchString(rel) {
			return re.String()
		}
	}
	return ""
}

// hasTraversal reports whether any segment of path is "..". Both separators
// are checked so a Windows-style path cannot slip through on Unix.
func hasTraversal(path string) bool {
	for _, seg := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}

// resolve walks abs one segment at a time, following symlinks. It returns a
// non-empty rule when a symlink leads outside the workspace. Once a symlink
// has been followed, every intermediate directory must be inside the root or
// one of its ancestors.
func (c *Context) resolve(abs string) (string, string, error) {
	vol := filepath.VolumeName(abs)
	pending := splitSegments(abs[len(vol):])
	current := vol + string(filepath.Separator)
	hops := 0
	followed := false

	for len(pending) > 0 {
		seg := pending[0]
		pending = pending[1:]

		switch seg {
		case "", ".":
			continue
		case "..":
			current = filepath.Dir(current)
			if followed && !c.onRootPath(current) {
				return "", "symlink-escape", nil
			}
			continue
		}

		next := filepath.Join(current, seg)
		info, err := os.Lstat(next)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
				// Nothing below a missing segment can be a symlink.
				return filepath.Join(append([]string{next}, pending...)...), "", nil
			}
			return "", "", err
		}

		if info.Mode()&fs.ModeSymlink == 0 {
			current = next
			if followed && !c.onRootPath(current) {
				return "", "symlink-escape", nil
			}
			continue
		}

		hops++
		if hops > maxSymlinkHops {
			return "", "symlink-loop", nil
		}
		target, err := os.Readlink(next)
		if err != nil {
			return "", "", err
		}
		followed = true
		if filepath.IsAbs(target) {
			tvol := filepath.VolumeName(target)
			current = tvol + string(filepath.Separator)
			target = target[len(tvol):]
		}
		pending = append(splitSegments(target), pending...)
	}
	return current, "", nil
}

// onRootPath reports whether dir is inside the root or is one of its
// ancestors (which a symlink target may pass through on its way in).
func (c *Context) onRootPath(dir string) bool {
	return isPathWithinDir(dir, c.root) || isPathWithinDir(c.root, dir)
}

func splitSegments(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == filepath.Separator || r == '/' })
}

// normalizePath applies filepath.Clean and, on Windows, case folding.
// SECURITY: Consistent normalization prevents path comparison bypasses.
func normalizePath(path string) string {
	cleaned := filepath.Clean(path)
	if runtime.GOOS == "windows" {
		return strings.ToLower(filepath.ToSlash(cleaned))
	}
	return cleaned
}

// isPathWithinDir checks if a path is within a directory, ensuring proper path boundaries.
// SECURITY: Prevents HasPrefix bypass where /home/userEVIL would pass check for /home/user.
func isPathWithinDir(path, dir string) bool {
	normalizedPath := normalizePath(path)
	normalizedDir := normalizePath(dir)

	if normalizedPath == normalizedDir {
		return true
	}

	sep := string(filepath.Separator)
	if runtime.GOOS == "windows" {
		sep = "/"
	}
	dirWithSep := normalizedDir
	if !strings.HasSuffix(dirWithSep, sep) {
		dirWithSep += sep
	}
	return strings.HasPrefix(normalizedPath, dirWithSep)
}
