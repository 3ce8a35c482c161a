// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/rigrun-toolguard/internal/config"
	"github.com/jeranaias/rigrun-toolguard/internal/toolerr"
	"github.com/jeranaias/rigrun-toolguard/internal/tools"
)

// MaxRequestLine bounds one request line in serve mode.
const MaxRequestLine = 16 * 1024 * 1024

// =============================================================================
// SERVE COMMAND
// =============================================================================

// HandleServe handles "serve": requests are read from In and responses
// written to Out until In is exhausted. When a config file is in use it is
// watched and policy changes are applied without a restart.
func HandleServe(ctx context.Context, app *App, streams IO) error {
	if app.ConfigPath != "" {
		watcher, err := config.NewWatcher(app.ConfigPath, config.DefaultDebounce, app.Logger, func(cfg *config.Config) {
			if err := app.Reload(cfg); err != nil {
				app.Logger.Warn("policy reload rejected", "error", err)
			}
		})
		if err != nil {
			return err
		}
		if err := watcher.Watch(); err != nil {
			return err
		}
		defer watcher.Close()
	}

	app.Logger.Info("serving requests", "workers", app.Config.Server.Workers)
	err := Serve(ctx, app.Tools, streams.In, streams.Out, app.Config.Server.Workers, app.Logger)
	app.Logger.Info("serve finished", "stats", app.Tools.Stats().String())
	return err
}

// Serve reads one JSON request per line from in and writes one JSON
// response per line to out. Up to workers requests run at once, so
// responses arrive in completion order; callers match them by ID. Blank
// lines are skipped. A line that is not a valid request gets an error
// response. Serve returns at end of input, when ctx is cancelled, or when
// out can no longer be written.
func Serve(ctx context.Context, exec *tools.Executor, in io.Reader, out io.Writer, workers int, logger *slog.Logger) error {
	if workers < 1 {
		workers = 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(workers)
	w := &responseWriter{enc: json.NewEncoder(out)}
	w.enc.SetEscapeHTML(false)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), MaxRequestLine)

	var writeErr error
	for scanner.Scan() {
		if gctx.Err() != nil {
			break
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		req, err := decodeRequest(line)
		if err != nil {
			logger.Debug("rejected request line", "error", err)
			if err := w.write(invalidRequest(req.ID, err)); err != nil {
				// Running workers stop on cancel and are waited for below.
				writeErr = err
				cancel()
				break
			}
			continue
		}

		g.Go(func() error {
			return w.write(exec.Invoke(gctx, req))
		})
	}

	waitErr := g.Wait()
	if writeErr != nil {
		return writeErr
	}
	if waitErr != nil {
		return waitErr
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read requests: %w", err)
	}
	return ctx.Err()
}

func decodeRequest(line []byte) (tools.Request, error) {
	var req tools.Request
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		// Recover the ID for the error response when the line is an object.
		var head struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(line, &head)
		return tools.Request{ID: head.ID}, err
	}
	if dec.More() {
		return req, fmt.Errorf("unexpected data after request")
	}
	return req, nil
}

func invalidRequest(id string, err error) tools.Response {
	return tools.Response{
		ID:     id,
		Status: tools.StatusError,
		Error:  "invalid request: " + err.Error(),
		Metadata: map[string]any{
			tools.MetaErrorType: toolerr.KindInvalidParameter.String(),
		},
	}
}

// responseWriter serializes response lines from concurrent workers.
type responseWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (w *responseWriter) write(resp tools.Response) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(resp); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
