package ledger

import (
	"context"
	"log/slog"

	"github.com/mmynk/pledgeledger/internal/apperr"
	"github.com/mmynk/pledgeledger/internal/calculator"
	"github.com/mmynk/pledgeledger/internal/metrics"
	"github.com/mmynk/pledgeledger/internal/models"
	"github.com/mmynk/pledgeledger/internal/storage"
)

// Aggregator recomputes derived pledge and plan totals from persisted state.
// Both recomputations are full rebuilds, so repeating one without an
// intervening mutation is a no-op and concurrent runs converge.
type Aggregator struct {
	store  storage.Store
	logger *slog.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(store storage.Store, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{store: store, logger: logger}
}

// RecomputePledge rebuilds a pledge's paid totals and balances from its settled
// direct payments and allocations.
func (a *Aggregator) RecomputePledge(ctx context.Context, pledgeID string) (*models.Pledge, error) {
	metrics.Recomputations.WithLabelValues("pledge").Inc()

	pledge, err := a.store.GetPledge(ctx, pledgeID)
	if err != nil {
		return nil, loadErr("pledge", pledgeID, err)
	}
	payments, err := a.store.ListPaymentsByPledge(ctx, pledgeID)
	if err != nil {
		return nil, apperr.Persistence("list pledge payments", err)
	}
	allocs, err := a.store.ListAllocationsByPledge(ctx, pledgeID)
	if err != nil {
		return nil, apperr.Persistence("list pledge allocations", err)
	}

	totals := calculator.CalculatePledgeTotals(pledge, payments, allocs)
	if !calculator.ApplyPledgeTotals(pledge, totals) {
		return pledge, nil
	}
	if err := a.store.UpdatePledgeTotals(ctx, pledge); err != nil {
		return nil, apperr.Persistence("update pledge totals", err)
	}

	a.logger.Debug("Recomputed pledge",
		"pledge_id", pledge.ID,
		"total_paid", pledge.TotalPaid.StringFixed(2),
		"balance", pledge.Balance.StringFixed(2),
		"usd_incomplete", pledge.USDIncomplete,
	)
	if pledge.USDIncomplete {
		a.logger.Warn("Pledge USD totals incomplete", "pledge_id", pledge.ID)
	}
	return pledge, nil
}

// RecomputePlan rebuilds a plan's paid totals, remaining amounts, next payment
// date and completion status.
//
// Settled allocations of split payments count toward the plan when they
// reference one of its installments.
func (a *Aggregator) RecomputePlan(ctx context.Context, planID string) (*models.PaymentPlan, error) {
	metrics.Recomputations.WithLabelValues("plan").Inc()

	plan, err := a.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, loadErr("payment plan", planID, err)
	}
	payments, err := a.store.ListPaymentsByPlan(ctx, planID)
	if err != nil {
		return nil, apperr.Persistence("list plan payments", err)
	}
	installments, err := a.store.ListInstallmentsByPlan(ctx, planID)
	if err != nil {
		return nil, apperr.Persistence("list plan installments", err)
	}
	allocs, err := a.store.ListAllocationsByPledge(ctx, plan.PledgeID)
	if err != nil {
		return nil, apperr.Persistence("list pledge allocations", err)
	}
	payments = append(payments, allocationsOnPlan(plan, installments, allocs)...)

	totals := calculator.CalculatePlanTotals(plan, payments, installments)
	if !calculator.ApplyPlanTotals(plan, totals) {
		return plan, nil
	}
	if err := a.store.UpdatePlan(ctx, plan); err != nil {
		return nil, apperr.Persistence("update plan totals", err)
	}

	a.logger.Debug("Recomputed plan",
		"plan_id", plan.ID,
		"total_paid", plan.TotalPaid.StringFixed(2),
		"remaining", plan.RemainingAmount.StringFixed(2),
		"installments_paid", plan.InstallmentsPaid,
		"status", plan.PlanStatus,
	)
	return plan, nil
}

// allocationsOnPlan presents allocations that target installments of plan as
// plan payments, so the plan calculator can sum them.
func allocationsOnPlan(plan *models.PaymentPlan, installments []*models.InstallmentSchedule, allocs []*models.PaymentAllocation) []*models.Payment {
	onPlan := make(map[string]bool, len(installments))
	for _, inst := range installments {
		onPlan[inst.ID] = true
	}

	var out []*models.Payment
	for _, a := range allocs {
		if a.InstallmentScheduleID == "" || !onPlan[a.InstallmentScheduleID] {
			continue
		}
		row := &models.Payment{
			ID:                    a.PaymentID,
			PaymentPlanID:         plan.ID,
			InstallmentScheduleID: a.InstallmentScheduleID,
			Amount:                a.AllocatedAmount,
			Currency:              a.Currency,
			AmountUSD:             a.AllocatedAmountUSD,
			Status:                a.PaymentStatus,
		}
		if a.Currency == plan.Currency {
			row.AmountInPlanCurrency.Decimal = a.AllocatedAmount
			row.AmountInPlanCurrency.Valid = true
		}
		out = append(out, row)
	}
	return out
}

// recomputeAll recomputes every listed plan and then every listed pledge,
// returning the first error.
func (a *Aggregator) recomputeAll(ctx context.Context, pledgeIDs, planIDs []string) error {
	for _, id := range planIDs {
		if _, err := a.RecomputePlan(ctx, id); err != nil {
			return err
		}
	}
	for _, id := range pledgeIDs {
		if _, err := a.RecomputePledge(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
