package ledger

import (
	"context"
	"log/slog"

	"github.com/mmynk/pledgeledger/internal/metrics"
)

// undoFunc reverses one applied write.
type undoFunc func(ctx context.Context) error

type sagaStep struct {
	entity string
	id     string
	undo   undoFunc
}

// saga records every applied write of a multi-step operation with its inverse so
// a failure can be unwound in reverse order.
type saga struct {
	op     string
	logger *slog.Logger
	steps  []sagaStep
}

func newSaga(op string, logger *slog.Logger) *saga {
	return &saga{op: op, logger: logger}
}

// record registers the inverse of a write that has just succeeded.
func (s *saga) record(entity, id string, undo undoFunc) {
	s.steps = append(s.steps, sagaStep{entity: entity, id: id, undo: undo})
}

// compensate runs every recorded inverse, newest first, and returns cause
// unchanged. A failing inverse is logged and skipped; it never replaces cause.
// Compensation runs even if ctx was cancelled.
func (s *saga) compensate(ctx context.Context, cause error) error {
	if len(s.steps) == 0 {
		return cause
	}
	ctx = context.WithoutCancel(ctx)

	s.logger.Warn("Rolling back partial operation", "op", s.op, "steps", len(s.steps), "cause", cause)

	failed := 0
	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		if err := step.undo(ctx); err != nil {
			failed++
			s.logger.Error("CRITICAL: inconsistency possible",
				"op", s.op, "entity", step.entity, "id", step.id, "error", err, "cause", cause)
		}
	}

	if failed > 0 {
		metrics.Compensations.WithLabelValues("inconsistent").Inc()
	} else {
		metrics.Compensations.WithLabelValues("clean").Inc()
	}
	s.steps = nil
	return cause
}
