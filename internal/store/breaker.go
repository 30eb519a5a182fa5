package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/qkrun/internal/config"
	"github.com/vyrodovalexey/qkrun/internal/observability"
)

// BreakerStore guards a Store with a circuit breaker. NotFound results and
// cancelled contexts do not count as failures.
type BreakerStore struct {
	next   Store
	cb     *gobreaker.CircuitBreaker
	logger observability.Logger
}

// NewBreakerStore wraps next in a breaker named name.
func NewBreakerStore(next Store, name string, cfg *config.CircuitBreakerConfig, logger observability.Logger) *BreakerStore {
	if logger == nil {
		logger = observability.NopLogger()
	}

	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	b := &BreakerStore{next: next, logger: logger}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval.Duration(),
		Timeout:     cfg.Timeout.Duration(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			b.logger.Warn("store circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			GetStoreMetrics().breakerState.WithLabelValues(name).Set(float64(to))
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, context.Canceled)
		},
	}

	b.cb = gobreaker.NewCircuitBreaker(settings)
	GetStoreMetrics().breakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))
	return b
}

// State returns the breaker's current state.
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerStore) execute(fn func() (string, error)) (string, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err != nil {
		return "", err
	}
	s, _ := res.(string)
	return s, nil
}

// Get delegates to the wrapped store.
func (b *BreakerStore) Get(ctx context.Context, id string) (string, error) {
	return b.execute(func() (string, error) { return b.next.Get(ctx, id) })
}

// Put delegates to the wrapped store.
func (b *BreakerStore) Put(ctx context.Context, text string) (string, error) {
	return b.execute(func() (string, error) { return b.next.Put(ctx, text) })
}

// Ping reports ErrUnavailable while the breaker is open, without touching
// the backend.
func (b *BreakerStore) Ping(ctx context.Context) error {
	if b.cb.State() == gobreaker.StateOpen {
		return fmt.Errorf("%w: circuit breaker %s is open", ErrUnavailable, b.cb.Name())
	}
	return b.next.Ping(ctx)
}

// Close closes the wrapped store.
func (b *BreakerStore) Close() error {
	return b.next.Close()
}
