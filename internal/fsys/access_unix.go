// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build unix

package fsys

import "golang.org/x/sys/unix"

const (
	accessRead    uint32 = unix.R_OK
	accessWrite   uint32 = unix.W_OK
	accessExecute uint32 = unix.X_OK
)

// canAccess asks the kernel, so ACLs, read-only mounts and the effective
// user are all taken into account.
func canAccess(path string, mode uint32) bool {
	return unix.Access(path, mode) == nil
}
