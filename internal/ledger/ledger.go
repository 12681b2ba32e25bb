// Package ledger is the payment-plan and reconciliation engine.
//
// It expands plans into installment schedules, splits payments across pledges,
// keeps pledge and plan totals in step with every mutation, and undoes
// partially applied multi-step writes, since the store offers no transactions.
package ledger

import (
	"errors"
	"log/slog"
	"time"

	"github.com/mmynk/pledgeledger/internal/apperr"
	"github.com/mmynk/pledgeledger/internal/calculator"
	"github.com/mmynk/pledgeledger/internal/fx"
	"github.com/mmynk/pledgeledger/internal/money"
	"github.com/mmynk/pledgeledger/internal/storage"
)

// Config tunes validation tolerances.
type Config struct {
	// MaxPastSkew bounds how old a custom installment date may be.
	MaxPastSkew time.Duration

	// AutoAdjustCents is the largest custom-schedule residual absorbed silently.
	AutoAdjustCents int64

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxPastSkew:     calculator.DefaultMaxPastSkew,
		AutoAdjustCents: money.AutoAdjustCents,
		Now:             time.Now,
	}
}

// Engine bundles the coordinators that share one store and rate resolver.
type Engine struct {
	Plans      *PlanCoordinator
	Payments   *PaymentCoordinator
	Aggregator *Aggregator
	Scheduler  *Scheduler
	Reconciler *Reconciler

	store storage.Store
}

// NewEngine wires the engine components together.
func NewEngine(store storage.Store, rates *fx.Resolver, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	conv := &converter{rates: rates, sink: store, logger: logger}
	agg := NewAggregator(store, logger)
	sched := &Scheduler{conv: conv, cfg: cfg}
	rec := &Reconciler{store: store, conv: conv, sched: sched, logger: logger}

	return &Engine{
		Plans: &PlanCoordinator{
			store:      store,
			scheduler:  sched,
			aggregator: agg,
			conv:       conv,
			cfg:        cfg,
			logger:     logger,
		},
		Payments: &PaymentCoordinator{
			store:      store,
			reconciler: rec,
			aggregator: agg,
			conv:       conv,
			logger:     logger,
		},
		Aggregator: agg,
		Scheduler:  sched,
		Reconciler: rec,
		store:      store,
	}
}

// loadErr maps a store read failure to the engine taxonomy.
func loadErr(entity, id string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound(entity, id)
	}
	return apperr.Persistence("load "+entity, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}

// set is an insertion-ordered string set of affected ids.
type set struct {
	order []string
	seen  map[string]bool
}

func (s *set) add(ids ...string) {
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	for _, id := range ids {
		if id == "" || s.seen[id] {
			continue
		}
		s.seen[id] = true
		s.order = append(s.order, id)
	}
}

func (s *set) list() []string {
	return s.order
}
