// Package retry runs operations with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior with exponential backoff.
type Config struct {
	MaxRetries   int // Additional attempts after the first
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0; 0.1 gives +/-10% jitter
}

// DefaultConfig suits connection setup: 3 retries from 100ms, capped at 5s.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// OnceConfig allows a single retry after a short pause. Text generation is
// retried at most once.
func OnceConfig() *Config {
	return &Config{
		MaxRetries:   1,
		InitialDelay: 2 * time.Second,
		MaxDelay:     2 * time.Second,
		Multiplier:   1.0,
		JitterFactor: 0.1,
	}
}

func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// backoff tracks the delay between attempts.
type backoff struct {
	cfg   *Config
	delay time.Duration
}

// wait sleeps for the current delay or until ctx is done.
func (b *backoff) wait(ctx context.Context) error {
	timer := time.NewTimer(applyJitter(b.delay, b.cfg.JitterFactor))
	defer timer.Stop()

	select {
	case <-timer.C:
		next := time.Duration(float64(b.delay) * b.cfg.Multiplier)
		if b.cfg.MaxDelay > 0 && next > b.cfg.MaxDelay {
			next = b.cfg.MaxDelay
		}
		b.delay = next
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DoWithResult retries fn on any error. The last result is returned even on
// error. Context cancellation during a wait returns ctx.Err().
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	return run(ctx, cfg, func(error) bool { return true }, fn)
}

// Do is DoWithResult for functions without a result.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

// DoIfRetryable retries only transient errors; permanent errors return
// immediately.
func DoIfRetryable[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	return run(ctx, cfg, IsRetryable, fn)
}

func run[T any](ctx context.Context, cfg *Config, shouldRetry func(error) bool, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	b := &backoff{cfg: cfg, delay: cfg.InitialDelay}
	var result T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}
		result, lastErr = r, err

		if !shouldRetry(err) || attempt == cfg.MaxRetries {
			break
		}
		if werr := b.wait(ctx); werr != nil {
			return result, werr
		}
	}

	return result, lastErr
}

// RetryableError is implemented by errors that declare their retryability.
type RetryableError interface {
	error
	IsRetryable() bool
}

// retryablePatterns mark transient failures in errors that do not implement
// RetryableError.
var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"timed out",
	"temporary failure",
	"too many connections",
	"deadlock",
	"network is unreachable",
	"429",
	"502",
	"503",
	"504",
	"rate limit",
	"service unavailable",
	"too many requests",
	"overloaded",
}

// IsRetryable determines if an error is transient and worth retrying.
// Errors implementing RetryableError anywhere in the chain decide for
// themselves; cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
