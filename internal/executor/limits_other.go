// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !linux

package executor

import "github.com/jeranaias/rigrun-toolguard/internal/security"

// applyLimits is a no-op outside Linux.
func applyLimits(pid int, limits security.ResourceLimits) error {
	return nil
}
