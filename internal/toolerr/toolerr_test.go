// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package toolerr

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type kindedErr struct{}

func (kindedErr) Error() string   { return "kinded" }
func (kindedErr) ErrorKind() Kind { return KindSecurity }

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindInternal},
		{"classified", New(KindNotFound, "op", "missing"), KindNotFound},
		{"wrapped classified", fmt.Errorf("outer: %w", New(KindTimeout, "op", "slow")), KindTimeout},
		{"kinded interface", kindedErr{}, KindSecurity},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"not exist", &fs.PathError{Op: "open", Path: "x", Err: fs.ErrNotExist}, KindNotFound},
		{"permission", &fs.PathError{Op: "open", Path: "x", Err: os.ErrPermission}, KindPermission},
		{"eagain", &os.SyscallError{Syscall: "fork", Err: syscall.EAGAIN}, KindTransient},
		{"ebusy", syscall.EBUSY, KindTransient},
		{"plain", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(syscall.EAGAIN))
	assert.False(t, IsRetryable(New(KindSecurity, "op", "denied")))
	assert.False(t, IsRetryable(InvalidParameter("op", "bad %s", "value")))
	assert.False(t, IsRetryable(nil))
}

func TestErrorMessageHidesCause(t *testing.T) {
	cause := errors.New("open /etc/shadow: permission denied")
	err := Wrap(KindPermission, "read_file", "/etc/shadow", "Permission denied", cause)

	require.Equal(t, "Permission denied", err.Error())
	require.ErrorIs(t, err, cause)
	assert.Equal(t, "permission_denied", err.Kind.String())
}

func TestErrorFallsBackToCause(t *testing.T) {
	err := Wrap(KindInternal, "op", "", "", errors.New("cause"))
	assert.Equal(t, "cause", err.Error())
	assert.Equal(t, "timeout", New(KindTimeout, "op", "").Error())
}
