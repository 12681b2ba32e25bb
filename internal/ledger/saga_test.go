package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/mmynk/pledgeledger/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSaga_CompensatesNewestFirst(t *testing.T) {
	sg := newSaga("test", discardLogger())

	var order []string
	for _, id := range []string{"a", "b", "c"} {
		sg.record("row", id, func(context.Context) error {
			order = append(order, id)
			return nil
		})
	}

	clean := testutil.ToFloat64(metrics.Compensations.WithLabelValues("clean"))
	cause := errors.New("boom")
	err := sg.compensate(context.Background(), cause)

	assert.Same(t, cause, err)
	assert.Equal(t, []string{"c", "b", "a"}, order)
	assert.Equal(t, clean+1, testutil.ToFloat64(metrics.Compensations.WithLabelValues("clean")))

	// Steps are consumed; a second compensation is a no-op.
	order = nil
	assert.Same(t, cause, sg.compensate(context.Background(), cause))
	assert.Empty(t, order)
}

func TestSaga_FailingUndoContinues(t *testing.T) {
	sg := newSaga("test", discardLogger())

	var ran []string
	sg.record("row", "first", func(context.Context) error {
		ran = append(ran, "first")
		return nil
	})
	sg.record("row", "second", func(context.Context) error {
		ran = append(ran, "second")
		return errors.New("undo failed")
	})

	inconsistent := testutil.ToFloat64(metrics.Compensations.WithLabelValues("inconsistent"))
	cause := errors.New("boom")
	err := sg.compensate(context.Background(), cause)

	assert.Same(t, cause, err)
	assert.Equal(t, []string{"second", "first"}, ran)
	assert.Equal(t, inconsistent+1, testutil.ToFloat64(metrics.Compensations.WithLabelValues("inconsistent")))
}

func TestSaga_RunsAfterCancellation(t *testing.T) {
	sg := newSaga("test", discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ctxErr error
	sg.record("row", "x", func(ctx context.Context) error {
		ctxErr = ctx.Err()
		return nil
	})
	sg.compensate(ctx, context.Canceled)
	assert.NoError(t, ctxErr)
}

func TestSaga_NothingRecorded(t *testing.T) {
	sg := newSaga("test", discardLogger())
	cause := errors.New("boom")
	assert.Same(t, cause, sg.compensate(context.Background(), cause))
}
