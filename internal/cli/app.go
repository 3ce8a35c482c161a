// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/rigrun-toolguard/internal/audit"
	"github.com/jeranaias/rigrun-toolguard/internal/config"
	"github.com/jeranaias/rigrun-toolguard/internal/logging"
	"github.com/jeranaias/rigrun-toolguard/internal/security"
	"github.com/jeranaias/rigrun-toolguard/internal/tools"
)

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// App is the wired tool stack for one CLI invocation.
type App struct {
	Config     *config.Config
	ConfigPath string // empty when running on defaults
	Logger     *slog.Logger
	Tools      *tools.Executor
	Store      *audit.Store // nil when audit is disabled

	args Args
}

// NewApp loads configuration, applies the command-line overrides and builds
// the security context, the audit store and the tool executor.
func NewApp(ctx context.Context, args Args, logOut io.Writer) (*App, error) {
	cfg, path, err := loadConfig(args)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, logOut)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	sec, err := newSecurity(cfg, logger)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:     cfg,
		ConfigPath: path,
		Logger:     logger,
		args:       args,
	}

	opts := tools.Options{
		Retry:         cfg.RetryPolicy(),
		RateLimit:     rate.Limit(cfg.RateLimit.RequestsPerSecond),
		Burst:         cfg.RateLimit.Burst,
		DebugMetadata: cfg.Server.DebugMetadata,
		Files:         cfg.FileOptions(),
	}
	if cfg.Audit.Enabled {
		store, err := openAudit(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		app.Store = store
		opts.Recorder = store
	}

	app.Tools = tools.NewExecutor(tools.NewRegistry(), sec, logger, opts)

	logger.Debug("toolguard ready",
		"config", path,
		"workspace", sec.WorkspaceRoot(),
		"audit", cfg.Audit.Enabled)
	return app, nil
}

// Close releases temp files and the audit database.
func (a *App) Close() error {
	err := a.Tools.Close()
	if a.Store != nil {
		err = errors.Join(err, a.Store.Close())
	}
	return err
}

// Reload rebuilds the security context from cfg and swaps it into the
// executor. The command-line overrides are applied again first. Settings
// outside the security policy keep their startup values.
func (a *App) Reload(cfg *config.Config) error {
	if err := applyOverrides(cfg, a.args); err != nil {
		return err
	}
	sec, err := newSecurity(cfg, a.Logger)
	if err != nil {
		return err
	}
	a.Tools.SetSecurity(sec)
	return nil
}

// loadConfig loads the config file and applies the command-line overrides.
func loadConfig(args Args) (*config.Config, string, error) {
	cfg, path, err := config.Load(args.ConfigPath)
	if err != nil {
		return nil, "", &ConfigError{Err: err}
	}
	if err := applyOverrides(cfg, args); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// applyOverrides applies --workspace, --log-level, --log-format and --set,
// then validates the result.
func applyOverrides(cfg *config.Config, args Args) error {
	if args.Workspace != "" {
		cfg.Workspace.Root = args.Workspace
	}
	if args.LogLevel != "" {
		cfg.Logging.Level = args.LogLevel
	}
	if args.LogFormat != "" {
		cfg.Logging.Format = args.LogFormat
	}
	for _, kv := range args.Sets {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return NewValidationErrorWithExample("--set", kv, "expected key=value", "--set security.max_output_size=4096")
		}
		if err := cfg.Set(strings.TrimSpace(key), value); err != nil {
			return &ConfigError{Err: err}
		}
	}
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Err: err}
	}
	return nil
}

func newSecurity(cfg *config.Config, logger *slog.Logger) (*security.Context, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	sec, err := security.NewContext(policy, logger)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	return sec, nil
}

// openAudit opens the audit database and prunes records past retention.
func openAudit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*audit.Store, error) {
	store, err := audit.Open(cfg.Audit.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if retention := cfg.Retention(); retention > 0 {
		pruned, err := store.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			logger.Warn("audit prune failed", "error", err)
		} else if pruned > 0 {
			logger.Info("pruned audit records", "count", pruned, "retention_days", cfg.Audit.RetentionDays)
		}
	}
	return store, nil
}
