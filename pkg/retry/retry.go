// Package retry runs fallible operations with capped exponential backoff.
package retry

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Task is one attempt of a retried operation. It reports whether a failure
// is worth retrying.
type Task = func(ctx context.Context) (retry bool, err error)

// ExponentialBackoff retries a task with a doubling, capped delay.
type ExponentialBackoff struct {
	// MaxAttempts bounds the number of attempts; 0 means unlimited.
	MaxAttempts uint64

	// MinInterval is the delay after the first failure (default 1/8s).
	MinInterval time.Duration

	// MaxInterval caps the delay (default 30s).
	MaxInterval time.Duration

	// NoJitter disables the ±5% jitter.
	NoJitter bool

	Logger *slog.Logger

	// after is replaced in tests.
	after func(time.Duration) <-chan time.Time
}

// Start runs task until it succeeds, declines a retry, runs out of attempts
// or ctx ends. The last error is returned.
func (e *ExponentialBackoff) Start(ctx context.Context, name string, task Task) error {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	after := e.after
	if after == nil {
		after = time.After
	}

	for attempt := uint64(1); ; attempt++ {
		retry, err := task(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("retry succeeded", "task", name, "attempt", attempt)
			}
			return nil
		}

		interval := e.Interval(ctx, attempt, retry)
		if interval == 0 {
			logger.Error("retry exhausted", "task", name, "attempt", attempt, "err", err)
			return err
		}

		logger.Info("retrying", "task", name, "attempt", attempt, "delay", interval, "err", err)

		select {
		case <-after(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Interval returns the delay before the next attempt, or 0 when no further
// attempt should be made.
func (e *ExponentialBackoff) Interval(ctx context.Context, attempt uint64, retry bool) time.Duration {
	switch {
	case !retry,
		attempt == e.MaxAttempts,
		ctx.Err() != nil:
		return 0
	}

	minInterval := e.MinInterval
	if minInterval == 0 {
		minInterval = time.Second / 8
	}

	maxInterval := e.MaxInterval
	if maxInterval == 0 {
		maxInterval = 30 * time.Second
	}

	factor := math.Pow(2, min(
		float64(attempt-1),
		math.Log2(float64(maxInterval)/float64(minInterval)),
	))
	if !e.NoJitter {
		factor *= .95 + .1*rand.Float64()
	}

	return time.Duration(factor * float64(minInterval))
}
