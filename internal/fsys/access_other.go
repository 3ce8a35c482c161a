// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !unix

package fsys

import (
	"os"
	"strings"
)

const (
	accessRead    uint32 = 4
	accessWrite   uint32 = 2
	accessExecute uint32 = 1
)

// canAccess approximates access(2) from the file mode and, for execution,
// the file extension.
func canAccess(path string, mode uint32) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if mode&accessWrite != 0 && info.Mode().Perm()&0200 == 0 {
		return false
	}
	if mode&accessExecute != 0 && !info.IsDir() {
		ext := strings.ToLower(path[strings.LastIndexByte(path, '.')+1:])
		switch ext {
		case "exe", "bat", "cmd", "com", "ps1":
		default:
			return false
		}
	}
	return true
}
