// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import "strconv"

// IntToStr converts an int to string.
func IntToStr(i int) string {
	return strconv.Itoa(i)
}

// Int64ToStr converts an int64 to string.
func Int64ToStr(i int64) string {
	return strconv.FormatInt(i, 10)
}
