// Package resilience wraps the LLM and embedding RPCs with a circuit
// breaker, so a stalled collaborator doesn't spin a stage's pool hot
// retrying calls doomed to time out. IMAP calls do not go through a
// breaker.
package resilience

import (
	"time"

	"github.com/sony/gobreaker"

	"github.com/kodelabs/mailrouter/pkg/metrics"
)

// Config is a small, named set of circuit-breaker knobs mapped onto
// gobreaker.Settings.
type Config struct {
	Name             string
	FailureThreshold uint32
	Timeout          time.Duration
}

func DefaultConfig(name string) Config {
	return Config{Name: name, FailureThreshold: 5, Timeout: 30 * time.Second}
}

// New builds a gobreaker.CircuitBreaker that trips after
// FailureThreshold consecutive failures and probes again after
// Timeout.
func New(cfg Config) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	})
}

// Execute runs fn through cb, surfacing gobreaker.ErrOpenState /
// ErrTooManyRequests unwrapped like any other call error — the stage
// runner treats a breaker trip as a transient failure.
func Execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	result, err := cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

// ExecuteTimed is Execute plus a latency sample recorded against
// endpoint in the global latency registry, regardless of outcome —
// used by the LLM/embedding adapter so /healthz-style reporting can
// surface P95/P99 per collaborator.
func ExecuteTimed[T any](cb *gobreaker.CircuitBreaker, endpoint string, fn func() (T, error)) (T, error) {
	start := time.Now()
	result, err := Execute(cb, fn)
	metrics.RecordLatency(endpoint, time.Since(start))
	return result, err
}
