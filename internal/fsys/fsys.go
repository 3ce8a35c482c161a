// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package fsys

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jeranaias/rigrun-toolguard/internal/security"
	"github.com/jeranaias/rigrun-toolguard/internal/toolerr"
	"github.com/jeranaias/rigrun-toolguard/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultMaxReadSize is the largest file ReadFile will load.
	DefaultMaxReadSize int64 = 10 * 1024 * 1024

	// DefaultMaxListEntries caps recursive listings.
	DefaultMaxListEntries = 10000

	defaultFileMode os.FileMode = 0644
	defaultDirMode  os.FileMode = 0755
)

// Options configure Tools. Zero values select the defaults.
type Options struct {
	MaxReadSize    int64
	MaxListEntries int
}

// =============================================================================
// TOOLS
// =============================================================================

// Tools performs file operations confined to a security context's
// workspace. It is safe for concurrent use.
type Tools struct {
	sec            *security.Context
	logger         *slog.Logger
	maxReadSize    int64
	maxListEntries int

	mu    sync.Mutex
	temps map[string]struct{}
}

// New creates Tools bound to sec. A nil logger discards output.
func New(sec *security.Context, logger *slog.Logger, opts Options) *Tools {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.MaxReadSize <= 0 {
		opts.MaxReadSize = DefaultMaxReadSize
	}
	if opts.MaxListEntries <= 0 {
		opts.MaxListEntries = DefaultMaxListEntries
	}
	return &Tools{
		sec:            sec,
		logger:         logger.With("component", "fsys"),
		maxReadSize:    opts.MaxReadSize,
		maxListEntries: opts.MaxListEntries,
		temps:          make(map[string]struct{}),
	}
}

// Security returns the context paths are validated against.
func (t *Tools) Security() *security.Context {
	return t.sec
}

// =============================================================================
// READ
// =============================================================================

// ReadFile reads the selected lines of a file. Content is capped at the
// security context's output limit.
func (t *Tools) ReadFile(path string, r LineRange) (FileContent, error) {
	const op = "read_file"

	resolved, err := t.sec.CheckPathSecurity(path)
	if err != nil {
		return FileContent{}, err
	}
	if err := r.validate(); err != nil {
		return FileContent{}, err
	}

	f, err := os.Open(resolved)
	if err != nil {
		return FileContent{}, osError(op, path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return FileContent{}, osError(op, path, err)
	}
	if info.IsDir() {
		return FileContent{}, toolerr.InvalidParameter(op, "Not a file: %s", path)
	}
	if info.Size() > t.maxReadSize {
		return FileContent{}, t.tooLarge(op)
	}

	// The file may grow between Stat and Read.
	data, err := io.ReadAll(io.LimitReader(f, t.maxReadSize+1))
	if err != nil {
		return FileContent{}, osError(op, path, err)
	}
	if int64(len(data)) > t.maxReadSize {
		return FileContent{}, t.tooLarge(op)
	}

	lines := splitLines(string(data))
	out := FileContent{
		Path:       t.sec.RelativePath(resolved),
		TotalLines: len(lines),
		Size:       int64(len(data)),
	}

	var content string
	if r.Whole {
		content = string(data)
		if len(lines) > 0 {
			out.StartLine, out.EndLine = 1, len(lines)
		}
	} else {
		if r.Start > len(lines) {
			return FileContent{}, toolerr.InvalidParameter(op, "start line %d is beyond end of file (%d lines)", r.Start, len(lines))
		}
		end := r.End
		if end == 0 || end > len(lines) {
			end = len(lines)
		}
		content = strings.Join(lines[r.Start-1:end], "")
		out.StartLine, out.EndLine = r.Start, end
	}

	out.Content = t.sec.SanitizeOutput(content)
	out.Truncated = out.Content != content
	return out, nil
}

func (t *Tools) tooLarge(op string) error {
	return toolerr.InvalidParameter(op, "file too large (max %s); read a line range instead", util.FormatSize(t.maxReadSize))
}

// splitLines splits s into lines, keeping line terminators. A trailing
// newline does not start another line.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// =============================================================================
// WRITE
// =============================================================================

// WriteFile replaces path with content, creating missing parent directories
// inside the workspace. An existing file keeps its permissions.
func (t *Tools) WriteFile(path, content string) (WriteResult, error) {
	const op = "write_file"

	resolved, err := t.sec.CheckPathSecurity(path)
	if err != nil {
		return WriteResult{}, err
	}
	if resolved == t.sec.WorkspaceRoot() {
		return WriteResult{}, toolerr.InvalidParameter(op, "Not a file: %s", path)
	}

	created, err := t.ensureParents(op, path, filepath.Dir(resolved))
	result := WriteResult{Path: t.sec.RelativePath(resolved), CreatedDirs: created}
	if err != nil {
		return result, err
	}

	perm := defaultFileMode
	info, err := os.Lstat(resolved)
	switch {
	case err == nil && info.IsDir():
		return result, toolerr.InvalidParameter(op, "Not a file: %s", path)
	case err == nil:
		perm = info.Mode().Perm()
	case errors.Is(err, fs.ErrNotExist):
		result.Created = true
	default:
		return result, osError(op, path, err)
	}

	n, err := util.AtomicWriteReader(resolved, strings.NewReader(content), perm)
	if err != nil {
		return result, osError(op, path, err)
	}
	result.BytesWritten = n

	t.logger.Debug("file written", "path", result.Path, "bytes", n, "created", result.Created)
	return result, nil
}

// ensureParents creates dir and any missing ancestors below the workspace
// root, one level at a time. Each directory is validated before it is
// created and again afterwards, so a swapped-in symlink cannot redirect the
// next level outside the workspace.
func (t *Tools) ensureParents(op, path, dir string) ([]string, error) {
	root := t.sec.WorkspaceRoot()
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return nil, toolerr.Wrap(toolerr.KindInternal, op, path, "failed to resolve parent directory", err)
	}
	if rel == "." {
		return nil, nil
	}

	var created []string
	cur := root
	for _, seg := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, seg)

		info, err := os.Lstat(cur)
		switch {
		case err == nil && info.IsDir():
			continue
		case err == nil:
			return created, toolerr.InvalidParameter(op, "parent is not a directory: %s", t.sec.RelativePath(cur))
		case !errors.Is(err, fs.ErrNotExist):
			return created, osError(op, path, err)
		}

		if _, err := t.sec.CheckPathSecurity(cur); err != nil {
			return created, err
		}
		if err := os.Mkdir(cur, defaultDirMode); err != nil && !errors.Is(err, fs.ErrExist) {
			return created, osError(op, path, err)
		}
		checked, err := t.sec.CheckPathSecurity(cur)
		if err != nil {
			return created, err
		}
		if checked != cur {
			return created, &security.SecurityError{Rule: "parent-redirected", Path: cur}
		}
		created = append(created, t.sec.RelativePath(cur))
	}
	return created, nil
}

// =============================================================================
// LIST
// =============================================================================

// ListDirectory lists a directory sorted by path. Entries the caller could
// not access through CheckPathSecurity are omitted.
func (t *Tools) ListDirectory(path string, opts ListOptions) ([]Entry, error) {
	const op = "list_directory"

	resolved, err := t.sec.CheckPathSecurity(path)
	if err != nil {
		return nil, err
	}
	if opts.Pattern != "" {
		if _, err := filepath.Match(opts.Pattern, ""); err != nil {
			return nil, toolerr.InvalidParameter(op, "invalid pattern %q", opts.Pattern)
		}
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, toolerr.Wrap(toolerr.KindNotFound, op, path, "Directory not found: "+path, err)
		}
		return nil, osError(op, path, err)
	}
	if !info.IsDir() {
		return nil, toolerr.InvalidParameter(op, "Not a directory: %s", path)
	}

	if !opts.Recursive {
		dirEntries, err := os.ReadDir(resolved)
		if err != nil {
			return nil, osError(op, path, err)
		}
		entries := make([]Entry, 0, len(dirEntries))
		for _, de := range dirEntries {
			full := filepath.Join(resolved, de.Name())
			if !t.visible(full) || !matchName(opts.Pattern, de.Name()) {
				continue
			}
			if e, ok := t.entry(full, de); ok {
				entries = append(entries, e)
			}
		}
		return entries, nil
	}

	var entries []Entry
	err = filepath.WalkDir(resolved, func(full string, de fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped rather than failing the listing.
			if full != resolved && de != nil && de.IsDir() {
				return fs.SkipDir
			}
			if full == resolved {
				return err
			}
			return nil
		}
		if full == resolved {
			return nil
		}
		if !t.visible(full) {
			if de.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !matchName(opts.Pattern, de.Name()) {
			return nil
		}
		if len(entries) >= t.maxListEntries {
			return toolerr.InvalidParameter(op, "too many entries (max %d); narrow the pattern or list a subdirectory", t.maxListEntries)
		}
		if e, ok := t.entry(full, de); ok {
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		if toolerr.KindOf(err) == toolerr.KindInvalidParameter {
			return nil, err
		}
		return nil, osError(op, path, err)
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// visible reports whether full passes path validation. Symlinks leading
// outside the workspace and disallowed names are hidden.
func (t *Tools) visible(full string) bool {
	_, err := t.sec.CheckPathSecurity(full)
	return err == nil
}

func (t *Tools) entry(full string, de fs.DirEntry) (Entry, bool) {
	info, err := de.Info()
	if err != nil {
		// Removed since the directory was read.
		return Entry{}, false
	}
	e := Entry{
		Name:    de.Name(),
		Path:    t.sec.RelativePath(full),
		Size:    info.Size(),
		Mode:    info.Mode().String(),
		ModTime: info.ModTime(),
	}
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		e.Type = TypeSymlink
	case info.IsDir():
		e.Type = TypeDir
	case info.Mode().IsRegular():
		e.Type = TypeFile
	default:
		e.Type = TypeOther
	}
	return e, true
}

func matchName(pattern, name string) bool {
	if pattern == "" {
		return true
	}
	ok, _ := filepath.Match(pattern, name)
	return ok
}

// =============================================================================
// ERRORS
// =============================================================================

// osError classifies an OS error for the caller. Messages name the path the
// caller supplied, never the resolved one.
func osError(op, path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return toolerr.Wrap(toolerr.KindNotFound, op, path, "File not found: "+path, err)
	case errors.Is(err, fs.ErrPermission):
		return toolerr.Wrap(toolerr.KindPermission, op, path, "Permission denied", err)
	case toolerr.IsTransientErrno(err):
		return toolerr.Wrap(toolerr.KindTransient, op, path, "resource temporarily unavailable", err)
	}
	return toolerr.Wrap(toolerr.KindInternal, op, path, op+" failed", err)
}
