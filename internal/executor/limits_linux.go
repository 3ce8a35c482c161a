// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package executor

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/jeranaias/rigrun-toolguard/internal/security"
)

// applyLimits sets per-process resource limits on a started process.
// Zero fields are left at the inherited value.
func applyLimits(pid int, limits security.ResourceLimits) error {
	if limits.IsZero() {
		return nil
	}
	set := []struct {
		resource int
		value    uint64
		name     string
	}{
		{unix.RLIMIT_NOFILE, limits.MaxOpenFiles, "RLIMIT_NOFILE"},
		{unix.RLIMIT_FSIZE, limits.MaxFileSizeBytes, "RLIMIT_FSIZE"},
		{unix.RLIMIT_CPU, limits.MaxCPUSeconds, "RLIMIT_CPU"},
		{unix.RLIMIT_AS, limits.MaxAddressSpace, "RLIMIT_AS"},
	}
	for _, l := range set {
		if l.value == 0 {
			continue
		}
		rlim := unix.Rlimit{Cur: l.value, Max: l.value}
		if err := unix.Prlimit(pid, l.resource, &rlim, nil); err != nil {
			return fmt.Errorf("prlimit %s: %w", l.name, err)
		}
	}
	return nil
}
