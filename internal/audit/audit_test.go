// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "audit", "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, tool := range []string{"read_file", "write_file", "execute_command"} {
		require.NoError(t, s.Record(ctx, Record{
			RequestID: "req-" + tool,
			Tool:      tool,
			Status:    "success",
			Duration:  time.Duration(i+1) * time.Millisecond,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Metadata:  map[string]any{"index": i},
		}))
	}
	require.NoError(t, s.Record(ctx, Record{
		Tool:      "execute_command",
		Status:    "error",
		ErrorKind: "security",
		Error:     "Command contains restricted operations",
		CreatedAt: base.Add(10 * time.Minute),
	}))

	recs, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "error", recs[0].Status)
	assert.Equal(t, "security", recs[0].ErrorKind)
	assert.NotEmpty(t, recs[0].ID)
	assert.Nil(t, recs[0].Metadata)
	assert.Equal(t, "execute_command", recs[1].Tool)
	assert.Equal(t, "req-execute_command", recs[1].RequestID)
	assert.Equal(t, 3*time.Millisecond, recs[1].Duration)
	assert.Equal(t, float64(2), recs[1].Metadata["index"])

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestStore_Prune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Record(ctx, Record{Tool: "a", Status: "success", CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, s.Record(ctx, Record{Tool: "b", Status: "success", CreatedAt: now.Add(-time.Minute)}))

	removed, err := s.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	recs, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "b", recs[0].Tool)
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(context.Background(), Record{Tool: "read_file", Status: "success"}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStore_Closed(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Record(context.Background(), Record{Tool: "x", Status: "success"}), ErrClosed)
	_, err := s.Recent(context.Background(), 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStore_ConcurrentRecord(t *testing.T) {
	s := openTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Record(context.Background(), Record{Tool: "echo", Status: "success"}))
		}()
	}
	wg.Wait()

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(25), n)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	assert.NoError(t, r.Record(context.Background(), Record{}))
}
