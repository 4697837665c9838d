package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/coderun/orchestrator/domain/orcherrors"
	"github.com/coderun/orchestrator/telemetry"
)

// CircuitBreakerConfig configures a named breaker: open after N
// consecutive failures, half-open probe after a cooldown.
type CircuitBreakerConfig struct {
	Name             string
	ConsecutiveTrips uint32
	OpenTimeout      time.Duration
}

// MLClassifierCircuitConfig is the default breaker policy for the ML classifier.
func MLClassifierCircuitConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{Name: "ml-classifier", ConsecutiveTrips: 3, OpenTimeout: 30 * time.Second}
}

// GitHubCircuitConfig is the default breaker policy for the GitHub client.
func GitHubCircuitConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{Name: "github", ConsecutiveTrips: 3, OpenTimeout: 30 * time.Second}
}

// CircuitBreaker wraps a named *gobreaker.CircuitBreaker, exposing a typed
// Execute helper and translating gobreaker's open-circuit error into the
// orcherrors taxonomy.
type CircuitBreaker struct {
	mu  sync.Mutex
	cb  *gobreaker.CircuitBreaker
	log telemetry.Logger
}

// NewCircuitBreaker constructs a CircuitBreaker from cfg. logger may be nil,
// in which case a no-op logger is used.
func NewCircuitBreaker(cfg CircuitBreakerConfig, logger telemetry.Logger) *CircuitBreaker {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveTrips
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings), log: logger}
}

// Execute runs fn through the breaker. When the breaker is open, it returns
// a KindServiceUnavailable error without invoking fn.
func Execute[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	result, err := cb.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return zero, orcherrors.Wrap(orcherrors.KindServiceUnavailable, "circuit breaker open", err)
		}
		return zero, err
	}
	v, _ := result.(T)
	return v, nil
}

// State returns the current breaker state name ("closed", "open", "half-open").
func (cb *CircuitBreaker) State() string {
	return cb.cb.State().String()
}
