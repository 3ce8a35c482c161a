// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	require.NoError(t, SaveTOML(cfg, path))

	changes := make(chan *Config, 4)
	w, err := NewWatcher(path, 20*time.Millisecond, nil, func(c *Config) { changes <- c })
	require.NoError(t, err)
	require.NoError(t, w.Watch())
	defer w.Close()

	// An invalid file keeps the previous configuration.
	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlevel = \"loud\"\n"), 0600))
	select {
	case <-changes:
		t.Fatal("invalid config must not be delivered")
	case <-time.After(300 * time.Millisecond):
	}

	cfg.Security.MaxOutputSize = 4321
	require.NoError(t, SaveTOML(cfg, path))

	select {
	case got := <-changes:
		assert.Equal(t, 4321, got.Security.MaxOutputSize)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, SaveTOML(Default(), path))

	changes := make(chan *Config, 1)
	w, err := NewWatcher(path, 20*time.Millisecond, nil, func(c *Config) { changes <- c })
	require.NoError(t, err)
	require.NoError(t, w.Watch())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x = 1\n"), 0600))
	select {
	case <-changes:
		t.Fatal("unrelated file triggered a reload")
	case <-time.After(200 * time.Millisecond):
	}

	assert.NoError(t, w.Close())
}
