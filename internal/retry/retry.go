// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package retry re-runs operations that fail with transient errors, backing
// off exponentially between attempts.
package retry

import (
	"context"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/jeranaias/rigrun-toolguard/internal/toolerr"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultMaxAttempts is the default total number of attempts.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay is the delay before the first retry.
	DefaultBaseDelay = 100 * time.Millisecond

	// DefaultMaxDelay caps a single backoff delay.
	DefaultMaxDelay = 5 * time.Second
)

// =============================================================================
// POLICY
// =============================================================================

// Policy controls how an operation is retried. The zero value is usable and
// selects the defaults.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the first retry. The delay doubles for
	// each further retry.
	BaseDelay time.Duration

	// MaxDelay caps a single delay. Zero means DefaultMaxDelay; a negative
	// value disables the cap.
	MaxDelay time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Defaults to toolerr.IsRetryable, which accepts transient OS errors only.
	Retryable func(error) bool

	// Logger receives a debug record per retry. Nil discards.
	Logger *slog.Logger
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay == 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.Retryable == nil {
		p.Retryable = toolerr.IsRetryable
	}
	if p.Logger == nil {
		p.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p
}

// Backoff returns the delay before retry number n (1-based):
// BaseDelay * 2^(n-1), capped at MaxDelay.
func (p Policy) Backoff(n int) time.Duration {
	p = p.withDefaults()
	if n < 1 || p.BaseDelay == 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < n; i++ {
		if delay > math.MaxInt64/2 {
			delay = math.MaxInt64
			break
		}
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// =============================================================================
// EXECUTION
// =============================================================================

// Do runs op until it succeeds, fails with an error the policy does not
// retry, runs out of attempts, or ctx is done. The error from the last
// attempt is returned unchanged.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var (
		result T
		err    error
	)
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := p.Backoff(attempt - 1)
			p.Logger.Debug("retrying operation",
				"attempt", attempt,
				"max_attempts", p.MaxAttempts,
				"delay", delay,
				"error", err,
			)
			if !sleep(ctx, delay) {
				// The previous attempt's error is still the most useful one.
				return result, err
			}
		}

		result, err = op(ctx)
		if err == nil || !p.Retryable(err) {
			return result, err
		}
	}
	return result, err
}

// WithRetry is Do with only the attempt count and base delay set.
func WithRetry[T any](ctx context.Context, op func(ctx context.Context) (T, error), maxAttempts int, baseDelay time.Duration) (T, error) {
	return Do(ctx, Policy{MaxAttempts: maxAttempts, BaseDelay: baseDelay, MaxDelay: -1}, op)
}

// sleep waits for d or until ctx is done. It reports whether the full delay
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
