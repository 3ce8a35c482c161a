// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-toolguard/internal/audit"
	"github.com/jeranaias/rigrun-toolguard/internal/executor"
	"github.com/jeranaias/rigrun-toolguard/internal/fsys"
	"github.com/jeranaias/rigrun-toolguard/internal/retry"
	"github.com/jeranaias/rigrun-toolguard/internal/security"
	"github.com/jeranaias/rigrun-toolguard/internal/toolerr"
)

type memRecorder struct {
	mu   sync.Mutex
	recs []audit.Record
}

func (m *memRecorder) Record(_ context.Context, rec audit.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memRecorder) all() []audit.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.Record(nil), m.recs...)
}

func newSecurity(t *testing.T, root string) *security.Context {
	t.Helper()
	sec, err := security.NewContext(security.DefaultPolicy(root), nil)
	require.NoError(t, err)
	return sec
}

func newTestExecutor(t *testing.T, opts Options) (*Executor, string) {
	t.Helper()
	root := t.TempDir()
	if opts.Retry.BaseDelay == 0 {
		opts.Retry.BaseDelay = time.Millisecond
	}
	e := NewExecutor(NewRegistry(), newSecurity(t, root), nil, opts)
	t.Cleanup(func() { e.Close() })
	return e, root
}

func requireTool(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available", name)
	}
}

func TestInvoke_WriteThenRead(t *testing.T) {
	e, root := newTestExecutor(t, Options{})
	ctx := context.Background()

	resp := e.Execute(ctx, OpWriteFile, Params{"path": "newdir/new.txt", "content": "one\ntwo\nthree\n"})
	require.True(t, resp.OK(), resp.Error)
	wr := resp.Data.(fsys.WriteResult)
	assert.True(t, wr.Created)
	assert.Equal(t, "newdir/new.txt", wr.Path)
	assert.Equal(t, []string{"newdir"}, wr.CreatedDirs)
	assert.FileExists(t, filepath.Join(root, "newdir", "new.txt"))

	resp = e.Execute(ctx, OpReadFile, Params{"path": "newdir/new.txt", "start_line": float64(2)})
	require.True(t, resp.OK(), resp.Error)
	fc := resp.Data.(fsys.FileContent)
	assert.Equal(t, "two\nthree\n", fc.Content)
	assert.Equal(t, 2, fc.StartLine)
	assert.Equal(t, 3, fc.EndLine)
	assert.Equal(t, 3, fc.TotalLines)

	resp = e.Execute(ctx, OpReadFile, Params{"path": "newdir/new.txt", "whole_file": true})
	require.True(t, resp.OK(), resp.Error)
	assert.Equal(t, "one\ntwo\nthree\n", resp.Data.(fsys.FileContent).Content)

	assert.Equal(t, OpReadFile, resp.Metadata[MetaOperation])
	assert.Equal(t, "low", resp.Metadata[MetaRisk])
	assert.Contains(t, resp.Metadata, MetaDuration)
	assert.NotEmpty(t, resp.ID)
}

func TestInvoke_ReadFileNeedsExplicitRange(t *testing.T) {
	e, root := newTestExecutor(t, Options{})
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("one\ntwo\n"), 0644))

	tests := []struct {
		name    string
		params  Params
		wantErr string
	}{
		{"no range", Params{"path": "a.txt"}, "a line range or a whole-file read is required"},
		{"whole_file false", Params{"path": "a.txt", "whole_file": false}, "a line range or a whole-file read is required"},
		{"end_line alone", Params{"path": "a.txt", "end_line": float64(1)}, "start line must be >= 1"},
		{"whole_file with range", Params{"path": "a.txt", "whole_file": true, "start_line": float64(1)}, "cannot be combined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := e.Execute(context.Background(), OpReadFile, tt.params)
			assert.False(t, resp.OK())
			assert.Contains(t, resp.Error, tt.wantErr)
			assert.Equal(t, "invalid_parameter", resp.Metadata[MetaErrorType])
			assert.Nil(t, resp.Data)
		})
	}

	resp := e.Execute(context.Background(), OpReadFile, Params{"path": "a.txt", "whole_file": true})
	require.True(t, resp.OK(), resp.Error)
	assert.Equal(t, "one\ntwo\n", resp.Data.(fsys.FileContent).Content)
}

func TestInvoke_PathEscapeGetsGenericMessage(t *testing.T) {
	e, root := newTestExecutor(t, Options{})

	for _, path := range []string{"../outside.txt", "/etc/passwd", "a/../../b"} {
		resp := e.Execute(context.Background(), OpWriteFile, Params{"path": path, "content": "x"})
		assert.False(t, resp.OK())
		assert.Equal(t, security.PathDeniedMessage, resp.Error)
		assert.Equal(t, "security", resp.Metadata[MetaErrorType])
		assert.Nil(t, resp.Data)
	}
	assert.NoFileExists(t, filepath.Join(filepath.Dir(root), "outside.txt"))
}

func TestInvoke_RestrictedCommand(t *testing.T) {
	e, _ := newTestExecutor(t, Options{})

	resp := e.Execute(context.Background(), OpExecuteCommand, Params{"command": "sudo rm -rf /"})
	assert.False(t, resp.OK())
	assert.Equal(t, security.RestrictedCommandMessage, resp.Error)
	assert.Equal(t, "security", resp.Metadata[MetaErrorType])

	res, ok := resp.Data.(executor.ExecutionResult)
	require.True(t, ok)
	assert.Equal(t, executor.StatusError, res.Status)
	assert.Equal(t, security.RestrictedCommandMessage, res.Error)
}

func TestInvoke_ExecuteCommand(t *testing.T) {
	requireTool(t, "echo")
	e, _ := newTestExecutor(t, Options{})

	resp := e.Execute(context.Background(), OpExecuteCommand, Params{"argv": []any{"echo", "hello"}})
	require.True(t, resp.OK(), resp.Error)
	res := resp.Data.(executor.ExecutionResult)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "critical", resp.Metadata[MetaRisk])
}

func TestInvoke_ExecuteCommandFailureKeepsResult(t *testing.T) {
	requireTool(t, "ls")
	e, _ := newTestExecutor(t, Options{})

	resp := e.Execute(context.Background(), OpExecuteCommand, Params{"command": "ls does-not-exist"})
	assert.False(t, resp.OK())
	assert.Equal(t, "execution", resp.Metadata[MetaErrorType])
	res := resp.Data.(executor.ExecutionResult)
	assert.NotEqual(t, 0, res.ExitCode)
	assert.NotEmpty(t, res.Stderr)
}

func TestInvoke_ExecutePiped(t *testing.T) {
	requireTool(t, "echo")
	requireTool(t, "tr")
	e, _ := newTestExecutor(t, Options{})

	resp := e.Execute(context.Background(), OpExecutePiped, Params{
		"commands": []any{"echo hello", []any{"tr", "a-z", "A-Z"}},
	})
	require.True(t, resp.OK(), resp.Error)
	assert.Equal(t, "HELLO\n", resp.Data.(executor.ExecutionResult).Stdout)

	resp = e.Execute(context.Background(), OpExecutePiped, Params{"commands": []any{"echo hi", 5}})
	assert.False(t, resp.OK())
	assert.Equal(t, "invalid_parameter", resp.Metadata[MetaErrorType])
}

func TestInvoke_InvalidRequests(t *testing.T) {
	e, _ := newTestExecutor(t, Options{})

	tests := []struct {
		name    string
		op      string
		params  Params
		wantErr string
	}{
		{"unknown operation", "format_disk", nil, `unknown operation: "format_disk"`},
		{"unknown param", OpReadFile, Params{"path": "x", "bogus": true}, "bogus: unknown parameter"},
		{"missing path", OpReadFile, Params{}, "path: missing required parameter"},
		{"command and argv", OpExecuteCommand, Params{"command": "ls", "argv": []any{"ls"}}, `exactly one of "command" or "argv" is required`},
		{"neither command nor argv", OpExecuteCommand, Params{}, `exactly one of "command" or "argv" is required`},
		{"empty argv", OpExecuteCommand, Params{"argv": []any{}}, "argv: expected a non-empty array of strings"},
		{"empty pipeline", OpExecutePiped, Params{"commands": []any{}}, "at least one command is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := e.Execute(context.Background(), tt.op, tt.params)
			assert.False(t, resp.OK())
			assert.Equal(t, tt.wantErr, resp.Error)
			assert.Equal(t, "invalid_parameter", resp.Metadata[MetaErrorType])
		})
	}
}

func TestInvoke_NotFound(t *testing.T) {
	e, _ := newTestExecutor(t, Options{})

	resp := e.Execute(context.Background(), OpReadFile, Params{"path": "missing.txt", "whole_file": true})
	assert.False(t, resp.OK())
	assert.Equal(t, "File not found: missing.txt", resp.Error)
	assert.Equal(t, "not_found", resp.Metadata[MetaErrorType])
}

func TestInvoke_ChecksAndList(t *testing.T) {
	e, root := newTestExecutor(t, Options{})
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(root, "run.sh"), []byte("#!/bin/sh\n"), 0755))

	resp := e.Execute(ctx, OpFileExists, Params{"path": "nope"})
	require.True(t, resp.OK(), resp.Error)
	assert.Equal(t, map[string]any{"path": "nope", "exists": false}, resp.Data)

	resp = e.Execute(ctx, OpCheckFileExecutable, Params{"path": "run.sh"})
	require.True(t, resp.OK(), resp.Error)
	assert.Equal(t, true, resp.Data.(map[string]any)["executable"])

	resp = e.Execute(ctx, OpListDirectory, Params{})
	require.True(t, resp.OK(), resp.Error)
	entries := resp.Data.([]fsys.Entry)
	require.Len(t, entries, 1)
	assert.Equal(t, "run.sh", entries[0].Name)

	require.NoError(t, os.Mkdir(filepath.Join(root, "empty"), 0755))
	resp = e.Execute(ctx, OpListDirectory, Params{"path": "empty"})
	require.True(t, resp.OK(), resp.Error)
	assert.NotNil(t, resp.Data)
	assert.Empty(t, resp.Data)
}

func TestInvoke_RetriesTransientFailures(t *testing.T) {
	e, _ := newTestExecutor(t, Options{Retry: retry.Policy{MaxAttempts: 3}})

	calls := 0
	e.Registry().Register(&Tool{
		Name:      "flaky",
		Retryable: true,
		Handler: func(context.Context, *Backend, Params) (any, error) {
			calls++
			if calls < 2 {
				return nil, toolerr.New(toolerr.KindTransient, "flaky", "busy")
			}
			return "ok", nil
		},
	})

	resp := e.Execute(context.Background(), "flaky", nil)
	require.True(t, resp.OK(), resp.Error)
	assert.Equal(t, "ok", resp.Data)
	assert.Equal(t, 2, resp.Metadata[MetaAttempts])
	assert.Equal(t, 2, calls)
}

func TestInvoke_NonRetryableToolRunsOnce(t *testing.T) {
	e, _ := newTestExecutor(t, Options{Retry: retry.Policy{MaxAttempts: 5}})

	calls := 0
	e.Registry().Register(&Tool{
		Name: "once",
		Handler: func(context.Context, *Backend, Params) (any, error) {
			calls++
			return nil, toolerr.New(toolerr.KindTransient, "once", "busy")
		},
	})

	resp := e.Execute(context.Background(), "once", nil)
	assert.False(t, resp.OK())
	assert.Equal(t, "busy", resp.Error)
	assert.Equal(t, "transient", resp.Metadata[MetaErrorType])
	assert.NotContains(t, resp.Metadata, MetaAttempts)
	assert.Equal(t, 1, calls)
}

func TestInvoke_RecoversPanics(t *testing.T) {
	e, _ := newTestExecutor(t, Options{DebugMetadata: true})
	e.Registry().Register(&Tool{
		Name: "boom",
		Handler: func(context.Context, *Backend, Params) (any, error) {
			panic("kaboom")
		},
	})

	resp := e.Execute(context.Background(), "boom", nil)
	assert.False(t, resp.OK())
	assert.Equal(t, "Internal error", resp.Error)
	assert.Equal(t, "internal", resp.Metadata[MetaErrorType])
	assert.Contains(t, resp.Metadata[MetaStack], "panic")
	require.Len(t, e.History(), 1)
	assert.Equal(t, "error", e.History()[0].Status)
}

func TestInvoke_PanicStackHiddenByDefault(t *testing.T) {
	e, _ := newTestExecutor(t, Options{})
	e.Registry().Register(&Tool{
		Name:    "boom",
		Handler: func(context.Context, *Backend, Params) (any, error) { panic("kaboom") },
	})

	resp := e.Execute(context.Background(), "boom", nil)
	assert.Equal(t, "Internal error", resp.Error)
	assert.NotContains(t, resp.Metadata, MetaStack)
}

func TestInvoke_UnclassifiedErrorNotEchoed(t *testing.T) {
	e, _ := newTestExecutor(t, Options{})
	e.Registry().Register(&Tool{
		Name: "leaky",
		Handler: func(context.Context, *Backend, Params) (any, error) {
			return nil, assert.AnError
		},
	})

	resp := e.Execute(context.Background(), "leaky", nil)
	assert.Equal(t, "Internal error", resp.Error)
}

func TestInvoke_RateLimit(t *testing.T) {
	e, root := newTestExecutor(t, Options{RateLimit: 1, Burst: 1})
	require.NoError(t, os.WriteFile(filepath.Join(root, "f"), nil, 0644))

	resp := e.Execute(context.Background(), OpFileExists, Params{"path": "f"})
	require.True(t, resp.OK(), resp.Error)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	resp = e.Execute(ctx, OpFileExists, Params{"path": "f"})
	assert.False(t, resp.OK())
	assert.Equal(t, "rate limit exceeded", resp.Error)
	assert.Equal(t, "transient", resp.Metadata[MetaErrorType])
}

func TestInvoke_HistoryAndRecorder(t *testing.T) {
	rec := &memRecorder{}
	e, _ := newTestExecutor(t, Options{Recorder: rec, HistorySize: 3})

	for i := 0; i < 5; i++ {
		e.Invoke(context.Background(), Request{ID: "req", Operation: OpFileExists, Params: Params{"path": "x"}})
	}
	e.Execute(context.Background(), OpReadFile, Params{"path": "../x"})

	history := e.History()
	require.Len(t, history, 3)
	last := history[2]
	assert.Equal(t, OpReadFile, last.Tool)
	assert.Equal(t, "error", last.Status)
	assert.Equal(t, "security", last.ErrorKind)
	assert.Equal(t, security.PathDeniedMessage, last.Error)
	assert.Equal(t, "../x", last.Metadata["path"])

	all := rec.all()
	require.Len(t, all, 6)
	assert.Equal(t, "req", all[0].RequestID)
	assert.NotEmpty(t, all[5].RequestID)

	stats := e.Stats()
	assert.Equal(t, 3, stats.TotalExecutions)
	assert.Equal(t, 2, stats.Successful)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.ByErrorType["security"])

	e.ClearHistory()
	assert.Empty(t, e.History())
}

func TestInvoke_AuditStore(t *testing.T) {
	store, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer store.Close()

	e, _ := newTestExecutor(t, Options{Recorder: store})
	e.Execute(context.Background(), OpWriteFile, Params{"path": "a.txt", "content": "secret content"})
	e.Execute(context.Background(), OpReadFile, Params{"path": "/etc/shadow"})

	recs, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, OpReadFile, recs[0].Tool)
	assert.Equal(t, "security", recs[0].ErrorKind)
	assert.Equal(t, OpWriteFile, recs[1].Tool)
	assert.Equal(t, "success", recs[1].Status)
	assert.NotContains(t, recs[1].Metadata, "content")
}

func TestSetSecurity_SwapsWorkspace(t *testing.T) {
	e, _ := newTestExecutor(t, Options{})
	other := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(other, "a.txt"), []byte("from other"), 0644))

	resp := e.Execute(context.Background(), OpReadFile, Params{"path": "a.txt", "whole_file": true})
	assert.Equal(t, "not_found", resp.Metadata[MetaErrorType])

	before := e.Security()
	e.SetSecurity(newSecurity(t, other))
	assert.NotSame(t, before, e.Security())

	resp = e.Execute(context.Background(), OpReadFile, Params{"path": "a.txt", "whole_file": true})
	require.True(t, resp.OK(), resp.Error)
	assert.Equal(t, "from other", resp.Data.(fsys.FileContent).Content)
}

func TestClose_RemovesTempFilesOfReplacedContexts(t *testing.T) {
	e, root := newTestExecutor(t, Options{})
	first, err := e.backend.Load().Files.CreateTempFile("", "scratch-", ".txt")
	require.NoError(t, err)

	other := t.TempDir()
	e.SetSecurity(newSecurity(t, other))
	second, err := e.backend.Load().Files.CreateTempFile("", "scratch-", ".txt")
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(root, first))
	assert.FileExists(t, filepath.Join(other, second))

	require.NoError(t, e.Close())
	assert.NoFileExists(t, filepath.Join(root, first))
	assert.NoFileExists(t, filepath.Join(other, second))
}

func TestInvoke_Concurrent(t *testing.T) {
	e, root := newTestExecutor(t, Options{})
	require.NoError(t, os.WriteFile(filepath.Join(root, "shared.txt"), []byte("data\n"), 0644))

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := e.Execute(context.Background(), OpReadFile, Params{"path": "shared.txt", "whole_file": true})
			assert.True(t, resp.OK(), resp.Error)
		}()
	}
	wg.Wait()
	assert.Len(t, e.History(), n)
}

func TestResponse_JSON(t *testing.T) {
	resp := respond(Request{ID: "r1", Operation: OpReadFile}, nil, toolerr.InvalidParameter(OpReadFile, "bad"))
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "r1", decoded["id"])
	assert.Equal(t, "error", decoded["status"])
	assert.Equal(t, "bad", decoded["error"])
	assert.NotContains(t, decoded, "data")
	assert.Equal(t, "invalid_parameter", decoded["metadata"].(map[string]any)["error_type"])
}
