// Package fx resolves exchange rates between currencies for a given date.
//
// The fallback order is defined once here:
//
//  1. same currency: rate 1
//  2. caller-supplied rate, used verbatim
//  3. exact-date row for (from, to)
//  4. most recent row for (from, to) on or before the date
//  5. step 4 on the reverse pair (to, from), inverted
//
// CrossRate additionally composes from→USD and USD→to legs when both exist.
// A failed lookup is reported as ErrRateNotFound; callers store null rather
// than defaulting to 1.
package fx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/pledgeledger/internal/metrics"
	"github.com/mmynk/pledgeledger/internal/models"
	"github.com/mmynk/pledgeledger/internal/money"
	"github.com/mmynk/pledgeledger/internal/storage"
)

// ErrRateNotFound is returned when no applicable rate exists.
var ErrRateNotFound = errors.New("exchange rate not found")

// Source names the fallback step that produced a rate.
type Source string

const (
	SourceIdentity Source = "identity"
	SourceProvided Source = "provided"
	SourceExact    Source = "exact"
	SourceLatest   Source = "latest"
	SourceInverse  Source = "inverse"
	SourceComposed Source = "composed"
	SourceCache    Source = "cache"
)

// Rate is a resolved conversion rate: 1 From = Value To.
type Rate struct {
	Value  decimal.Decimal
	Source Source

	// Date is the effective date of the stored row the rate came from, if any.
	Date time.Time
}

// Trivial reports whether the rate came from a same-currency identity.
func (r Rate) Trivial() bool {
	return r.Source == SourceIdentity
}

// RateStore is the read side of the external currency-rate store.
// Both methods return storage.ErrNotFound when no row matches.
type RateStore interface {
	RateOn(ctx context.Context, base, target string, date time.Time) (*models.ExchangeRate, error)
	LatestRate(ctx context.Context, base, target string, onOrBefore time.Time) (*models.ExchangeRate, error)
}

// Cache stores resolved rates for a bounded time.
type Cache interface {
	Get(ctx context.Context, key string) (Rate, bool, error)
	Set(ctx context.Context, key string, rate Rate) error
}

// Resolver looks up conversion rates with the package fallback policy.
type Resolver struct {
	store  RateStore
	cache  Cache
	logger *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache sets the rate cache. Without one every lookup hits the store.
func WithCache(c Cache) Option {
	return func(r *Resolver) {
		r.cache = c
	}
}

// WithLogger sets the logger used for lookup diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// NewResolver creates a Resolver backed by store.
func NewResolver(store RateStore, opts ...Option) *Resolver {
	r := &Resolver{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NormalizeCurrency upper-cases and trims a currency code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Resolve returns the rate converting from into to on date.
func (r *Resolver) Resolve(ctx context.Context, from, to string, date time.Time, provided decimal.NullDecimal) (Rate, error) {
	from, to = NormalizeCurrency(from), NormalizeCurrency(to)
	if from == "" || to == "" {
		return Rate{}, fmt.Errorf("%w: currency code required", ErrRateNotFound)
	}
	day := models.DateOf(date)

	if from == to {
		return r.record(Rate{Value: decimal.NewFromInt(1), Source: SourceIdentity}), nil
	}
	if provided.Valid && provided.Decimal.IsPositive() {
		return r.record(Rate{Value: provided.Decimal, Source: SourceProvided}), nil
	}

	key := CacheKey(from, to, day)
	if r.cache != nil {
		cached, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			r.logger.Warn("Rate cache read failed", "key", key, "error", err)
		} else if ok {
			cached.Source = SourceCache
			return r.record(cached), nil
		}
	}

	rate, err := r.lookup(ctx, from, to, day)
	if err != nil {
		metrics.RateLookupFailures.Inc()
		r.logger.Debug("Exchange rate unavailable", "from", from, "to", to, "date", day.Format(models.DateFormat), "error", err)
		return Rate{}, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, rate); err != nil {
			r.logger.Warn("Rate cache write failed", "key", key, "error", err)
		}
	}
	return r.record(rate), nil
}

// CrossRate resolves from→to and, when no direct or reverse row exists, composes
// the from→USD and USD→to legs.
func (r *Resolver) CrossRate(ctx context.Context, from, to string, date time.Time) (Rate, error) {
	rate, err := r.Resolve(ctx, from, to, date, decimal.NullDecimal{})
	if err == nil || !errors.Is(err, ErrRateNotFound) {
		return rate, err
	}

	from, to = NormalizeCurrency(from), NormalizeCurrency(to)
	if from == models.USD || to == models.USD {
		return Rate{}, err
	}

	toUSD, err := r.Resolve(ctx, from, models.USD, date, decimal.NullDecimal{})
	if err != nil {
		return Rate{}, err
	}
	fromUSD, err := r.Resolve(ctx, models.USD, to, date, decimal.NullDecimal{})
	if err != nil {
		return Rate{}, err
	}
	return r.record(Rate{Value: toUSD.Value.Mul(fromUSD.Value), Source: SourceComposed}), nil
}

func (r *Resolver) lookup(ctx context.Context, from, to string, day time.Time) (Rate, error) {
	row, err := r.store.RateOn(ctx, from, to, day)
	if err == nil {
		return Rate{Value: row.Rate, Source: SourceExact, Date: row.Date}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return Rate{}, errors.Join(ErrRateNotFound, err)
	}

	row, err = r.store.LatestRate(ctx, from, to, day)
	if err == nil {
		return Rate{Value: row.Rate, Source: SourceLatest, Date: row.Date}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return Rate{}, errors.Join(ErrRateNotFound, err)
	}

	row, err = r.store.LatestRate(ctx, to, from, day)
	if err == nil {
		inverse, err := money.Invert(row.Rate)
		if err != nil {
			return Rate{}, errors.Join(ErrRateNotFound, err)
		}
		return Rate{Value: inverse, Source: SourceInverse, Date: row.Date}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return Rate{}, errors.Join(ErrRateNotFound, err)
	}

	return Rate{}, fmt.Errorf("%w: %s->%s on %s", ErrRateNotFound, from, to, day.Format(models.DateFormat))
}

func (r *Resolver) record(rate Rate) Rate {
	metrics.RateLookups.WithLabelValues(string(rate.Source)).Inc()
	return rate
}

// CacheKey builds the cache key for a directional pair on a day.
func CacheKey(from, to string, day time.Time) string {
	return "fxrate:" + from + ":" + to + ":" + day.Format(models.DateFormat)
}
