// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package fsys

import (
	"time"

	"github.com/jeranaias/rigrun-toolguard/internal/toolerr"
)

// LineRange selects lines to read. Lines are 1-indexed and inclusive. An End
// of zero means "through the last line".
type LineRange struct {
	Start int
	End   int
	Whole bool
}

// WholeFile selects the entire file.
func WholeFile() LineRange {
	return LineRange{Whole: true}
}

// Lines selects lines start through end.
func Lines(start, end int) LineRange {
	return LineRange{Start: start, End: end}
}

func (r LineRange) validate() error {
	switch {
	case r.Whole && (r.Start != 0 || r.End != 0):
		return toolerr.InvalidParameter("read_file", "a line range cannot be combined with a whole-file read")
	case r.Whole:
		return nil
	case r.Start == 0 && r.End == 0:
		return toolerr.InvalidParameter("read_file", "a line range or a whole-file read is required")
	case r.Start < 1:
		return toolerr.InvalidParameter("read_file", "start line must be >= 1")
	case r.End < 0:
		return toolerr.InvalidParameter("read_file", "end line must be >= 0")
	case r.End != 0 && r.End < r.Start:
		return toolerr.InvalidParameter("read_file", "end line %d is before start line %d", r.End, r.Start)
	}
	return nil
}

// FileContent is the result of ReadFile.
type FileContent struct {
	Path       string `json:"path"`
	Content    string `json:"content"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	TotalLines int    `json:"total_lines"`
	Size       int64  `json:"size"`
	Truncated  bool   `json:"truncated,omitempty"`
}

// WriteResult is the result of WriteFile.
type WriteResult struct {
	Path         string   `json:"path"`
	BytesWritten int64    `json:"bytes_written"`
	Created      bool     `json:"created"`
	CreatedDirs  []string `json:"created_dirs,omitempty"`
}

// EntryType classifies a directory entry.
type EntryType string

const (
	TypeFile    EntryType = "file"
	TypeDir     EntryType = "dir"
	TypeSymlink EntryType = "symlink"
	TypeOther   EntryType = "other"
)

// Entry is one item of a directory listing.
type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"` // workspace-relative, slash separated
	Type    EntryType `json:"type"`
	Size    int64     `json:"size"`
	Mode    string    `json:"mode"`
	ModTime time.Time `json:"mod_time"`
}

// ListOptions refine ListDirectory.
type ListOptions struct {
	// Pattern is a filepath.Match glob applied to entry names.
	Pattern string

	// Recursive walks subdirectories. Symlinked directories are listed but
	// not descended into.
	Recursive bool
}
