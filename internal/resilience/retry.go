// Package resilience provides the fault-tolerance primitives shared by the
// Fetcher and Uploader: bounded exponential
// backoff retry and a circuit breaker for repeatedly failing remotes.
package resilience

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig configures Retry's backoff behavior. Spec §4.1 calls for a
// base of 0.5s capped at N attempts (default 3); DefaultRetryConfig
// reflects that.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // 0-1, adds randomness
}

// DefaultRetryConfig matches the Fetcher's default retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// Retry executes fn with exponential backoff, retrying every error until
// cfg.MaxAttempts is reached or ctx is cancelled. Use RetryIf to stop early
// on errors that are not worth retrying.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	return RetryIf(ctx, cfg, fn, func(error) bool { return true })
}

// RetryIf is Retry with a predicate deciding whether a given error should
// be retried at all; non-retryable errors (404, 401/403, checksum
// mismatch, disk full per spec §4.1) return immediately.
func RetryIf(ctx context.Context, cfg RetryConfig, fn func() error, retryable func(error) bool) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}

		if attempt < cfg.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(addJitter(delay, cfg.Jitter)):
			}
			delay = nextDelay(delay, cfg)
		}
	}
	return lastErr
}

func nextDelay(current time.Duration, cfg RetryConfig) time.Duration {
	next := time.Duration(float64(current) * cfg.Multiplier)
	if next > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return next
}

func addJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	delta := float64(d) * jitter
	return d + time.Duration(rand.Float64()*delta*2-delta)
}
