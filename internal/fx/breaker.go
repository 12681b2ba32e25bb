package fx

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mmynk/pledgeledger/internal/models"
	"github.com/mmynk/pledgeledger/internal/storage"
)

// BreakerConfig tunes the circuit breaker guarding the rate store.
type BreakerConfig struct {
	MaxRequests         uint32        // requests allowed through while half-open
	Interval            time.Duration // closed-state counter reset period
	Timeout             time.Duration // open-state duration before half-open
	ConsecutiveFailures uint32        // failures that trip the breaker
}

// DefaultBreakerConfig returns conservative breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// BreakerStore wraps a RateStore with a circuit breaker so a failing rate store
// degrades lookups to "unavailable" quickly instead of stalling every request.
// A missing row is a successful call and never trips the breaker.
type BreakerStore struct {
	next RateStore
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps next.
func NewBreakerStore(next RateStore, cfg BreakerConfig, logger *slog.Logger) *BreakerStore {
	if logger == nil {
		logger = slog.Default()
	}
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 1
	}
	settings := gobreaker.Settings{
		Name:        "rate-store",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, storage.ErrNotFound)
		},
	}
	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// RateOn implements RateStore.
func (b *BreakerStore) RateOn(ctx context.Context, base, target string, date time.Time) (*models.ExchangeRate, error) {
	return b.execute(func() (*models.ExchangeRate, error) {
		return b.next.RateOn(ctx, base, target, date)
	})
}

// LatestRate implements RateStore.
func (b *BreakerStore) LatestRate(ctx context.Context, base, target string, onOrBefore time.Time) (*models.ExchangeRate, error) {
	return b.execute(func() (*models.ExchangeRate, error) {
		return b.next.LatestRate(ctx, base, target, onOrBefore)
	})
}

// State returns the breaker state name.
func (b *BreakerStore) State() string {
	return b.cb.State().String()
}

func (b *BreakerStore) execute(fn func() (*models.ExchangeRate, error)) (*models.ExchangeRate, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	return res.(*models.ExchangeRate), nil
}
