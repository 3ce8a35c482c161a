// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jeranaias/rigrun-toolguard/internal/audit"
	"github.com/jeranaias/rigrun-toolguard/internal/executor"
	"github.com/jeranaias/rigrun-toolguard/internal/fsys"
	"github.com/jeranaias/rigrun-toolguard/internal/retry"
	"github.com/jeranaias/rigrun-toolguard/internal/security"
	"github.com/jeranaias/rigrun-toolguard/internal/toolerr"
	"github.com/jeranaias/rigrun-toolguard/internal/util"
)

// DefaultHistorySize bounds the in-memory execution history.
const DefaultHistorySize = 1000

// =============================================================================
// BACKEND
// =============================================================================

// Backend bundles the components bound to one security context. A Backend
// is never modified; a policy change builds a new one.
type Backend struct {
	Security *security.Context
	Commands *executor.Executor
	Files    *fsys.Tools
}

// NewBackend builds the command and file components for sec.
func NewBackend(sec *security.Context, logger *slog.Logger, files fsys.Options) *Backend {
	return &Backend{
		Security: sec,
		Commands: executor.New(sec, logger),
		Files:    fsys.New(sec, logger, files),
	}
}

// =============================================================================
// EXECUTOR
// =============================================================================

// Options configure an Executor. Zero values disable the optional features.
type Options struct {
	// Retry is applied to tools marked Retryable.
	Retry retry.Policy

	// RateLimit caps invocations per second. Zero means unlimited.
	RateLimit rate.Limit
	Burst     int

	// Recorder receives a record of every invocation.
	Recorder audit.Recorder

	// HistorySize bounds the in-memory history. Zero selects DefaultHistorySize.
	HistorySize int

	// DebugMetadata adds panic stack traces to responses.
	DebugMetadata bool

	// Files configures the file tools of every Backend.
	Files fsys.Options
}

// Executor dispatches requests to tools with validation, rate limiting,
// retry and history recording. It is safe for concurrent use.
type Executor struct {
	registry *Registry
	backend  atomic.Pointer[Backend]
	limiter  *rate.Limiter
	retry    retry.Policy
	recorder audit.Recorder
	logger   *slog.Logger
	debug    bool
	files    fsys.Options

	mu          sync.Mutex
	history     []audit.Record
	historySize int
	retired     []*Backend // replaced by SetSecurity; their temp files await Close
}

// NewExecutor creates an executor serving registry against sec. A nil logger
// discards output.
func NewExecutor(registry *Registry, sec *security.Context, logger *slog.Logger, opts Options) *Executor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Recorder == nil {
		opts.Recorder = audit.Nop{}
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}

	e := &Executor{
		registry:    registry,
		retry:       opts.Retry,
		recorder:    opts.Recorder,
		logger:      logger.With("component", "tools"),
		debug:       opts.DebugMetadata,
		files:       opts.Files,
		historySize: opts.HistorySize,
	}
	if e.retry.Logger == nil {
		e.retry.Logger = e.logger
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(opts.RateLimit, burst)
	}
	e.backend.Store(NewBackend(sec, logger, opts.Files))
	return e
}

// Registry returns the tool registry.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Security returns the security context new requests are served with.
func (e *Executor) Security() *security.Context {
	return e.backend.Load().Security
}

// SetSecurity swaps in a new security context. Requests already running
// finish under the context they started with.
func (e *Executor) SetSecurity(sec *security.Context) {
	old := e.backend.Swap(NewBackend(sec, e.logger, e.files))
	e.mu.Lock()
	e.retired = append(e.retired, old)
	e.mu.Unlock()
	e.logger.Info("security context replaced",
		"workspace", sec.WorkspaceRoot(),
		"previous_workspace", old.Security.WorkspaceRoot())
}

// Close removes temp files created through the current backend and through
// every backend SetSecurity replaced.
func (e *Executor) Close() error {
	e.mu.Lock()
	backends := append([]*Backend{e.backend.Load()}, e.retired...)
	e.mu.Unlock()

	var errs []error
	for _, b := range backends {
		if err := b.Files.CleanupTempFiles(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// INVOCATION
// =============================================================================

// Invoke runs req and always returns a response. Panics inside a tool are
// recovered into an internal error.
func (e *Executor) Invoke(ctx context.Context, req Request) (resp Response) {
	start := time.Now()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool panicked", "operation", req.Operation, "request_id", req.ID, "panic", r)
			resp = respond(req, nil, toolerr.New(toolerr.KindInternal, req.Operation, internalErrMsg))
			if e.debug {
				resp.Metadata[MetaStack] = string(debug.Stack())
			}
		}
		duration := time.Since(start)
		resp.Metadata[MetaDuration] = duration.Milliseconds()
		e.record(ctx, req, resp, start, duration)
	}()

	data, attempts, err := e.invoke(ctx, req)
	resp = respond(req, data, err)
	if attempts > 1 {
		resp.Metadata[MetaAttempts] = attempts
	}
	if tool := e.registry.Get(req.Operation); tool != nil {
		resp.Metadata[MetaRisk] = tool.RiskLevel.String()
	}
	if err != nil {
		e.logger.Debug("tool failed", "operation", req.Operation, "request_id", req.ID,
			"error_type", toolerr.KindOf(err).String(), "error", err)
	}
	return resp
}

func (e *Executor) invoke(ctx context.Context, req Request) (any, int, error) {
	tool := e.registry.Get(req.Operation)
	if tool == nil {
		return nil, 0, toolerr.InvalidParameter(req.Operation, "unknown operation: %q", req.Operation)
	}
	if err := ValidateParams(tool.Schema, req.Params); err != nil {
		return nil, 0, err
	}
	if req.Params == nil {
		req.Params = Params{}
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, 0, toolerr.Wrap(toolerr.KindTransient, req.Operation, "", "rate limit exceeded", err)
		}
	}

	b := e.backend.Load()
	policy := e.retry
	if !tool.Retryable {
		policy.MaxAttempts = 1
	}

	attempts := 0
	data, err := retry.Do(ctx, policy, func(ctx context.Context) (any, error) {
		attempts++
		return tool.Handler(ctx, b, req.Params)
	})
	return data, attempts, err
}

// Execute is Invoke for callers that have an operation name and params.
func (e *Executor) Execute(ctx context.Context, operation string, params Params) Response {
	return e.Invoke(ctx, Request{Operation: operation, Params: params})
}

// =============================================================================
// HISTORY
// =============================================================================

func (e *Executor) record(ctx context.Context, req Request, resp Response, start time.Time, d time.Duration) {
	rec := audit.Record{
		ID:        uuid.NewString(),
		RequestID: req.ID,
		Tool:      req.Operation,
		Status:    string(resp.Status),
		Error:     resp.Error,
		Duration:  d,
		CreatedAt: start,
		Metadata:  recordMetadata(req, resp),
	}
	if kind, ok := resp.Metadata[MetaErrorType].(string); ok {
		rec.ErrorKind = kind
	}

	e.mu.Lock()
	if len(e.history) >= e.historySize {
		// Remove oldest entries
		e.history = e.history[len(e.history)-e.historySize+1:]
	}
	e.history = append(e.history, rec)
	e.mu.Unlock()

	if err := e.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		e.logger.Warn("failed to record invocation", "request_id", req.ID, "error", err)
	}
}

// maxRecordedPath bounds the path stored with a record.
const maxRecordedPath = 512

// recordMetadata keeps identifying fields only. File contents and command
// output are never persisted.
func recordMetadata(req Request, resp Response) map[string]any {
	meta := map[string]any{}
	if path, ok := req.Params["path"].(string); ok {
		meta["path"] = util.TruncateRunes(path, maxRecordedPath)
	}
	if n, ok := resp.Metadata[MetaAttempts]; ok {
		meta[MetaAttempts] = n
	}
	if res, ok := resp.Data.(executor.ExecutionResult); ok {
		meta["execution_id"] = res.ID
		meta["exit_code"] = res.ExitCode
		if res.FailedStage >= 0 {
			meta["failed_stage"] = res.FailedStage
		}
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

// History returns a copy of the execution history, oldest first.
func (e *Executor) History() []audit.Record {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := make([]audit.Record, len(e.history))
	copy(result, e.history)
	return result
}

// ClearHistory clears the execution history.
func (e *Executor) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
}

// ExecutionStats provides statistics about tool executions.
type ExecutionStats struct {
	TotalExecutions int            `json:"total_executions"`
	Successful      int            `json:"successful"`
	Failed          int            `json:"failed"`
	ByErrorType     map[string]int `json:"by_error_type,omitempty"`
	TotalDuration   time.Duration  `json:"total_duration"`
	AvgDuration     time.Duration  `json:"avg_duration"`
}

// Stats returns statistics about the execution history.
func (e *Executor) Stats() ExecutionStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := ExecutionStats{TotalExecutions: len(e.history)}
	for _, rec := range e.history {
		if rec.Status == string(StatusSuccess) {
			stats.Successful++
		} else {
			stats.Failed++
			if stats.ByErrorType == nil {
				stats.ByErrorType = make(map[string]int)
			}
			stats.ByErrorType[rec.ErrorKind]++
		}
		stats.TotalDuration += rec.Duration
	}
	if stats.TotalExecutions > 0 {
		stats.AvgDuration = stats.TotalDuration / time.Duration(stats.TotalExecutions)
	}
	return stats
}

// String summarizes the stats on one line.
func (s ExecutionStats) String() string {
	return fmt.Sprintf("%d executions (%d ok, %d failed), avg %s",
		s.TotalExecutions, s.Successful, s.Failed, s.AvgDuration)
}
