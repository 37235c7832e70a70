// Package retry runs operations against flaky dependencies (datasource pools,
// LLM providers, MCP servers) with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Config controls backoff between attempts.
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// JitterFactor spreads delays by +/- the given fraction.
	JitterFactor float64
	// MaxSameErrorType stops retrying after N consecutive failures of one class.
	MaxSameErrorType int
}

// DefaultConfig returns 3 retries starting at 100ms, doubling, capped at 5s.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       3,
		InitialDelay:     100 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1,
		MaxSameErrorType: 5,
	}
}

// RetryableError lets an error declare whether another attempt can succeed.
type RetryableError interface {
	error
	IsRetryable() bool
}

// backoff tracks the delay between attempts.
type backoff struct {
	cfg   *Config
	delay time.Duration
}

func newBackoff(cfg *Config) *backoff {
	return &backoff{cfg: cfg, delay: cfg.InitialDelay}
}

// wait sleeps for the current delay, then grows it. Returns ctx.Err() on cancellation.
func (b *backoff) wait(ctx context.Context) error {
	d := b.delay
	if b.cfg.JitterFactor > 0 {
		d += time.Duration(float64(d) * b.cfg.JitterFactor * (rand.Float64()*2 - 1))
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	b.delay = time.Duration(float64(b.delay) * b.cfg.Multiplier)
	if b.delay > b.cfg.MaxDelay {
		b.delay = b.cfg.MaxDelay
	}
	return nil
}

// Do calls fn until it succeeds or MaxRetries is exhausted.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult is Do for functions that produce a value.
// The last result is returned alongside the last error.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	b := newBackoff(cfg)
	var (
		result  T
		lastErr error
	)
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, lastErr = fn()
		if lastErr == nil {
			return result, nil
		}
		if attempt == cfg.MaxRetries {
			break
		}
		if err := b.wait(ctx); err != nil {
			return result, err
		}
	}
	return result, lastErr
}

// DoIfRetryable is Do that returns immediately on permanent errors and
// escalates after MaxSameErrorType consecutive failures of one class.
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	b := newBackoff(cfg)
	var (
		lastErr   error
		lastClass string
		sameCount int
	)
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}

		class := classifyError(lastErr)
		if class == lastClass {
			sameCount++
		} else {
			lastClass, sameCount = class, 1
		}
		if cfg.MaxSameErrorType > 0 && sameCount >= cfg.MaxSameErrorType {
			return fmt.Errorf("repeated error (%d times, type=%s): %w", sameCount, class, lastErr)
		}

		if attempt == cfg.MaxRetries {
			break
		}
		if err := b.wait(ctx); err != nil {
			return err
		}
	}
	return lastErr
}

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
	"server closed",
	"eof",
	"429",
	"500",
	"502",
	"503",
	"504",
	"rate limit",
	"overloaded",
	"service unavailable",
	"too many requests",
}

// IsRetryable reports whether err looks transient. Errors implementing
// RetryableError anywhere in the chain decide for themselves.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// classifyError buckets an error so repeated failures of one kind can be detected.
func classifyError(err error) string {
	msg := strings.ToLower(err.Error())

	for _, code := range []string{"503", "502", "504", "500", "429"} {
		if strings.Contains(msg, code) {
			return code
		}
	}
	switch {
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "connection reset"):
		return "connection"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return "timeout"
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return "rate_limit"
	default:
		return "unknown"
	}
}
