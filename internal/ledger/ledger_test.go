package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/pledgeledger/internal/apperr"
	"github.com/mmynk/pledgeledger/internal/fx"
	"github.com/mmynk/pledgeledger/internal/models"
	"github.com/mmynk/pledgeledger/internal/money"
	"github.com/mmynk/pledgeledger/internal/storage"
	"github.com/mmynk/pledgeledger/internal/storage/sqlite"
)

var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

var errInjected = errors.New("injected failure")

// faultStore wraps a real store and fails selected writes.
type faultStore struct {
	storage.Store

	// failCreatePaymentAt fails the nth CreatePayment call (1-based); 0 never fails.
	failCreatePaymentAt int
	createPaymentCalls  int

	failDeleteInstallment bool
	failUpdateInstallment bool

	createdPlans []string
}

func (s *faultStore) CreatePlan(ctx context.Context, plan *models.PaymentPlan) error {
	if err := s.Store.CreatePlan(ctx, plan); err != nil {
		return err
	}
	s.createdPlans = append(s.createdPlans, plan.ID)
	return nil
}

func (s *faultStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	s.createPaymentCalls++
	if s.failCreatePaymentAt > 0 && s.createPaymentCalls == s.failCreatePaymentAt {
		return errInjected
	}
	return s.Store.CreatePayment(ctx, p)
}

func (s *faultStore) DeleteInstallment(ctx context.Context, id string) error {
	if s.failDeleteInstallment {
		return errors.New("delete refused")
	}
	return s.Store.DeleteInstallment(ctx, id)
}

func (s *faultStore) UpdateInstallment(ctx context.Context, inst *models.InstallmentSchedule) error {
	if s.failUpdateInstallment {
		return errInjected
	}
	return s.Store.UpdateInstallment(ctx, inst)
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *sqlite.SQLiteStore
	faults *faultStore
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	faults := &faultStore{Store: store}
	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return testNow }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &fixture{
		t:      t,
		ctx:    context.Background(),
		store:  store,
		faults: faults,
		engine: NewEngine(faults, fx.NewResolver(store), cfg, logger),
	}
}

func (f *fixture) contact(name string) string {
	f.t.Helper()
	c := &models.Contact{Name: name}
	require.NoError(f.t, f.store.CreateContact(f.ctx, c))
	return c.ID
}

func (f *fixture) pledge(amount, currency string) *models.Pledge {
	f.t.Helper()
	p := &models.Pledge{
		ContactID:      f.contact("donor"),
		OriginalAmount: dec(amount),
		Currency:       currency,
		Balance:        dec(amount),
	}
	if currency == models.USD {
		p.OriginalAmountUSD = money.Null(dec(amount))
		p.BalanceUSD = p.OriginalAmountUSD
	}
	require.NoError(f.t, f.store.CreatePledge(f.ctx, p))
	return p
}

func (f *fixture) rate(base, target, date, rate string) {
	f.t.Helper()
	require.NoError(f.t, f.store.UpsertRate(f.ctx, &models.ExchangeRate{
		BaseCurrency:   base,
		TargetCurrency: target,
		Rate:           dec(rate),
		Date:           day(date),
	}))
}

func (f *fixture) fixedPlan(pledge *models.Pledge, total string, n int, start string) *PlanResult {
	f.t.Helper()
	res, err := f.engine.Plans.CreatePlan(f.ctx, CreatePlanInput{
		PledgeID:             pledge.ID,
		Frequency:            models.FrequencyMonthly,
		DistributionType:     models.DistributionFixed,
		TotalPlannedAmount:   dec(total),
		NumberOfInstallments: n,
		StartDate:            day(start),
	})
	require.NoError(f.t, err)
	return res
}

func (f *fixture) getPledge(id string) *models.Pledge {
	f.t.Helper()
	p, err := f.store.GetPledge(f.ctx, id)
	require.NoError(f.t, err)
	return p
}

func (f *fixture) getPlan(id string) *models.PaymentPlan {
	f.t.Helper()
	p, err := f.store.GetPlan(f.ctx, id)
	require.NoError(f.t, err)
	return p
}

func (f *fixture) getInstallment(id string) *models.InstallmentSchedule {
	f.t.Helper()
	inst, err := f.store.GetInstallment(f.ctx, id)
	require.NoError(f.t, err)
	return inst
}

func (f *fixture) complete(paymentID string) {
	f.t.Helper()
	status := models.PaymentCompleted
	_, err := f.engine.Payments.UpdatePayment(f.ctx, paymentID, PaymentPatch{Status: &status})
	require.NoError(f.t, err)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decimalNull(s string) decimal.NullDecimal {
	return money.Null(dec(s))
}

func day(s string) time.Time {
	t, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func assertAmount(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]any{"want %s, got %s", want, got.StringFixed(2)}, msgAndArgs...)...)
}

func TestAggregator_RecomputeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	pledge := f.pledge("1000", models.USD)
	plan := f.fixedPlan(pledge, "1000", 3, "2024-02-01")
	f.complete(plan.Payments[0].ID)

	first, err := f.engine.Aggregator.RecomputePledge(f.ctx, pledge.ID)
	require.NoError(t, err)
	second, err := f.engine.Aggregator.RecomputePledge(f.ctx, pledge.ID)
	require.NoError(t, err)
	assertAmount(t, first.TotalPaid.String(), second.TotalPaid)
	assertAmount(t, first.Balance.String(), second.Balance)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
	assertAmount(t, "333.33", second.TotalPaid)
	assertAmount(t, "666.67", second.Balance)

	p1, err := f.engine.Aggregator.RecomputePlan(f.ctx, plan.Plan.ID)
	require.NoError(t, err)
	p2, err := f.engine.Aggregator.RecomputePlan(f.ctx, plan.Plan.ID)
	require.NoError(t, err)
	assertAmount(t, p1.TotalPaid.String(), p2.TotalPaid)
	assert.Equal(t, p1.UpdatedAt, p2.UpdatedAt)
	assert.Equal(t, p1.PlanStatus, p2.PlanStatus)
	assert.Equal(t, 1, p2.InstallmentsPaid)
	assertAmount(t, "666.67", p2.RemainingAmount)
}

func TestAggregator_UnknownPledge(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Aggregator.RecomputePledge(f.ctx, "missing")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
