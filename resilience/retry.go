// Package resilience provides composable decorators for outbound calls:
// bounded exponential-backoff retry, a named circuit breaker, and a
// per-call timeout. Every outbound client (ML classifier, GitHub) applies
// all three; this package lets each client compose them with its own
// parameters instead of duplicating the logic.
//
// The circuit breaker wraps github.com/sony/gobreaker: a named breaker per
// dependency, created by each client's constructor.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/coderun/orchestrator/domain/orcherrors"
)

// RetryConfig configures bounded exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first. <=1
	// disables retrying.
	MaxAttempts int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration
	// Multiplier is the exponential growth factor; 2.0 doubles each attempt.
	Multiplier float64
	// Jitter adds up to this fraction of randomness to each delay (0.1 = ±10%).
	Jitter float64
}

// MLClassifierRetryConfig is the ML classifier policy: 2 attempts, 50ms base delay.
func MLClassifierRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 2, BaseDelay: 50 * time.Millisecond, MaxDelay: 1 * time.Second, Multiplier: 2, Jitter: 0.1}
}

// GitHubRetryConfig is the GitHub wrapper policy: 3 attempts, 200ms base delay.
func GitHubRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 2, Jitter: 0.1}
}

// IsRetryable classifies which errors are worth a retry: anything not
// explicitly marked Cancelled/Validation by the orcherrors taxonomy.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if kind, ok := orcherrors.KindOf(err); ok {
		switch kind {
		case orcherrors.KindCancelled, orcherrors.KindValidation:
			return false
		default:
			return true
		}
	}
	return true
}

// Retry executes fn up to cfg.MaxAttempts times, waiting an exponentially
// growing, jittered backoff between attempts, until fn succeeds, the error
// is not retryable, or ctx is cancelled.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	var zero T
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt >= cfg.MaxAttempts {
			break
		}
		delay := backoffDelay(cfg, attempt)
		select {
		case <-ctx.Done():
			return zero, orcherrors.Wrap(orcherrors.KindCancelled, "retry cancelled", ctx.Err())
		case <-time.After(delay):
		}
	}
	return zero, fmt.Errorf("retry exhausted after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	d := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && d > float64(cfg.MaxDelay) {
		d = float64(cfg.MaxDelay)
	}
	if cfg.Jitter > 0 {
		d += d * cfg.Jitter * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
