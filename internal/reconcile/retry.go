package reconcile

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"grimm.is/topoctl/internal/clock"
	"grimm.is/topoctl/internal/kernel"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	Jitter          bool
	RetryableErrors []error
}

// DefaultRetryConfig returns the defaults for kernel operations. Name
// collisions are retried because the object may be mid-creation elsewhere;
// the next attempt re-reads it.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   4,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
		RetryableErrors: []error{
			kernel.ErrTransient,
			kernel.ErrBusy,
			kernel.ErrAlreadyExists,
		},
	}
}

// retrier runs a unit of work with exponential backoff.
type retrier struct {
	cfg   RetryConfig
	clock clock.Clock
	// onRetry is called before each wait.
	onRetry func(attempt int, err error, delay time.Duration)
}

// do runs fn until it succeeds, fails with a non-retryable error or the
// attempts run out, and returns the number of attempts made.
func (r *retrier) do(ctx context.Context, fn func() error) (int, error) {
	attempts := max(r.cfg.MaxAttempts, 1)
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return attempt, lastErr
			}
			return attempt, ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return attempt + 1, nil
		}
		lastErr = err

		if !isRetryable(err, r.cfg.RetryableErrors) {
			return attempt + 1, err
		}

		// Don't sleep after the last attempt
		if attempt == attempts-1 {
			break
		}

		delay := calculateDelay(attempt, r.cfg)
		if r.onRetry != nil {
			r.onRetry(attempt+1, err, delay)
		}

		select {
		case <-ctx.Done():
			return attempt + 1, lastErr
		case <-r.clock.After(delay):
		}
	}

	return attempts, lastErr
}

func calculateDelay(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt))

	if cfg.Jitter {
		// Add up to 25% jitter
		delay += delay * 0.25 * rand.Float64()
	}

	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	return time.Duration(delay)
}

func isRetryable(err error, retryableErrors []error) bool {
	// If no specific errors defined, retry all errors
	if len(retryableErrors) == 0 {
		return true
	}

	for _, retryable := range retryableErrors {
		if errors.Is(err, retryable) {
			return true
		}
	}

	return false
}
