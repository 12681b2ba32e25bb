package ledger

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/pledgeledger/internal/apperr"
	"github.com/mmynk/pledgeledger/internal/calculator"
	"github.com/mmynk/pledgeledger/internal/fx"
	"github.com/mmynk/pledgeledger/internal/models"
	"github.com/mmynk/pledgeledger/internal/money"
	"github.com/mmynk/pledgeledger/internal/storage"
)

// CreatePlanInput is the normalized request to create a payment plan.
type CreatePlanInput struct {
	PledgeID         string
	Frequency        models.Frequency
	DistributionType models.DistributionType

	TotalPlannedAmount decimal.Decimal

	// Currency defaults to the pledge currency.
	Currency string

	// ExchangeRate optionally overrides the plan-currency to USD rate.
	ExchangeRate decimal.NullDecimal

	// Fixed distribution.
	InstallmentAmount    decimal.NullDecimal
	NumberOfInstallments int
	StartDate            time.Time

	// Custom distribution.
	CustomInstallments []calculator.CustomItem

	// PlanStatus defaults to active.
	PlanStatus models.PlanStatus

	IsThirdParty   bool
	PayerContactID string
	Notes          string
}

// UpdatePlanInput is a partial update. Nil fields are left unchanged.
//
// Changing the frequency, distribution, total, currency, installment amount or
// count, start date, or custom installments restructures the plan: the pending
// schedule is cancelled and a new one covering the outstanding amount is
// generated.
type UpdatePlanInput struct {
	Frequency            *models.Frequency
	DistributionType     *models.DistributionType
	TotalPlannedAmount   *decimal.Decimal
	Currency             *string
	ExchangeRate         *decimal.NullDecimal
	InstallmentAmount    *decimal.Decimal
	NumberOfInstallments *int
	StartDate            *time.Time
	CustomInstallments   []calculator.CustomItem

	PlanStatus     *models.PlanStatus
	IsThirdParty   *bool
	PayerContactID *string
	Notes          *string
}

func (in UpdatePlanInput) restructures() bool {
	return in.Frequency != nil || in.DistributionType != nil || in.TotalPlannedAmount != nil ||
		in.Currency != nil || in.InstallmentAmount != nil || in.NumberOfInstallments != nil ||
		in.StartDate != nil || in.CustomInstallments != nil
}

// PlanResult is a plan with its schedule and payments.
type PlanResult struct {
	Plan         *models.PaymentPlan
	Installments []*models.InstallmentSchedule
	Payments     []*models.Payment
}

// DeletePlanResult reports a soft-deleted plan.
type DeletePlanResult struct {
	PlanID   string
	PledgeID string
}

// PlanCoordinator creates, restructures and deletes payment plans, keeping
// schedules, stub payments and totals consistent.
type PlanCoordinator struct {
	store      storage.Store
	scheduler  *Scheduler
	aggregator *Aggregator
	conv       *converter
	cfg        Config
	logger     *slog.Logger
}

// CreatePlan creates a plan, its installments and one pending payment per
// installment. Either everything is created or, after compensation, nothing is.
func (c *PlanCoordinator) CreatePlan(ctx context.Context, in CreatePlanInput) (*PlanResult, error) {
	pledge, err := c.store.GetPledge(ctx, in.PledgeID)
	if err != nil {
		return nil, loadErr("pledge", in.PledgeID, err)
	}

	plan, req, err := newPlan(pledge, in)
	if err != nil {
		return nil, err
	}
	if err := c.checkPayer(ctx, pledge, plan.IsThirdParty, plan.PayerContactID); err != nil {
		return nil, err
	}
	if err := c.checkSingleOpenPlan(ctx, pledge.ID, ""); err != nil {
		return nil, err
	}

	scheduled, err := c.scheduler.Generate(ctx, plan, pledge, req)
	if err != nil {
		return nil, err
	}
	first, end := planSummary(scheduled)
	plan.InstallmentAmount = first
	plan.EndDate = end
	plan.NumberOfInstallments = len(scheduled)
	plan.StartDate = scheduled[0].Installment.InstallmentDate
	plan.TotalPlannedAmountUSD = c.conv.toUSD(ctx, plan.TotalPlannedAmount, plan.Currency, plan.StartDate, planUSDRate(plan, pledge))
	plan.RemainingAmount = plan.TotalPlannedAmount
	plan.RemainingAmountUSD = plan.TotalPlannedAmountUSD

	sg := newSaga("create plan", c.logger)

	if err := c.store.CreatePlan(ctx, plan); err != nil {
		return nil, apperr.Persistence("create payment plan", err)
	}
	planID := plan.ID
	sg.record("payment_plan", planID, func(ctx context.Context) error {
		return c.store.DeletePlan(ctx, planID)
	})

	insts, payments, err := c.persistSchedule(ctx, sg, plan, scheduled)
	if err != nil {
		return nil, c.fail(ctx, sg, err, pledge.ID)
	}

	if _, err := c.aggregator.RecomputePlan(ctx, planID); err != nil {
		return nil, c.fail(ctx, sg, err, pledge.ID)
	}
	if _, err := c.aggregator.RecomputePledge(ctx, pledge.ID); err != nil {
		return nil, c.fail(ctx, sg, err, pledge.ID)
	}

	for _, s := range scheduled {
		c.conv.log(ctx, s.Payment.ID, s.Payment.PaymentDate, s.conversions)
	}

	c.logger.Info("Created payment plan",
		"plan_id", planID,
		"pledge_id", pledge.ID,
		"distribution", plan.DistributionType,
		"installments", len(insts),
		"total", plan.TotalPlannedAmount.StringFixed(2),
		"currency", plan.Currency,
	)

	stored, err := c.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, loadErr("payment plan", planID, err)
	}
	return &PlanResult{Plan: stored, Installments: insts, Payments: payments}, nil
}

// GetPlan returns a non-deleted plan with its installments and payments.
func (c *PlanCoordinator) GetPlan(ctx context.Context, planID string) (*PlanResult, error) {
	plan, err := c.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, loadErr("payment plan", planID, err)
	}
	if plan.Deleted() {
		return nil, apperr.NotFound("payment plan", planID)
	}
	return c.loadResult(ctx, plan)
}

func (c *PlanCoordinator) loadResult(ctx context.Context, plan *models.PaymentPlan) (*PlanResult, error) {
	insts, err := c.store.ListInstallmentsByPlan(ctx, plan.ID)
	if err != nil {
		return nil, apperr.Persistence("list plan installments", err)
	}
	payments, err := c.store.ListPaymentsByPlan(ctx, plan.ID)
	if err != nil {
		return nil, apperr.Persistence("list plan payments", err)
	}
	return &PlanResult{Plan: plan, Installments: insts, Payments: payments}, nil
}

// UpdatePlan applies a partial update, restructuring the pending schedule when
// the distribution changes and cancelling it when the plan is cancelled.
func (c *PlanCoordinator) UpdatePlan(ctx context.Context, planID string, in UpdatePlanInput) (*PlanResult, error) {
	plan, err := c.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, loadErr("payment plan", planID, err)
	}
	if plan.Deleted() {
		return nil, apperr.NotFound("payment plan", planID)
	}
	pledge, err := c.store.GetPledge(ctx, plan.PledgeID)
	if err != nil {
		return nil, loadErr("pledge", plan.PledgeID, err)
	}
	insts, err := c.store.ListInstallmentsByPlan(ctx, planID)
	if err != nil {
		return nil, apperr.Persistence("list plan installments", err)
	}
	payments, err := c.store.ListPaymentsByPlan(ctx, planID)
	if err != nil {
		return nil, apperr.Persistence("list plan payments", err)
	}

	before := *plan
	restructure := in.restructures()

	if in.Notes != nil {
		plan.Notes = *in.Notes
	}
	payerChanged := false
	if in.IsThirdParty != nil && *in.IsThirdParty != plan.IsThirdParty {
		plan.IsThirdParty = *in.IsThirdParty
		payerChanged = true
	}
	if in.PayerContactID != nil && *in.PayerContactID != plan.PayerContactID {
		plan.PayerContactID = *in.PayerContactID
		payerChanged = true
	}
	if payerChanged && !plan.IsThirdParty {
		plan.PayerContactID = ""
	}
	if payerChanged {
		if err := c.checkPayer(ctx, pledge, plan.IsThirdParty, plan.PayerContactID); err != nil {
			return nil, err
		}
	}
	if in.ExchangeRate != nil {
		if in.ExchangeRate.Valid && !in.ExchangeRate.Decimal.IsPositive() {
			return nil, apperr.Validation("exchangeRate", "must be positive, got %s", in.ExchangeRate.Decimal)
		}
		plan.ExchangeRate = *in.ExchangeRate
	}
	if in.PlanStatus != nil {
		if !in.PlanStatus.Valid() {
			return nil, apperr.Validation("planStatus", "unknown plan status %q", *in.PlanStatus)
		}
		if before.PlanStatus == models.PlanCancelled && *in.PlanStatus != models.PlanCancelled && !restructure {
			return nil, apperr.Conflict("planStatus", "a cancelled plan can only be reactivated with a new schedule")
		}
		plan.PlanStatus = *in.PlanStatus
	}
	if plan.Open() && !before.Open() {
		if err := c.checkSingleOpenPlan(ctx, pledge.ID, plan.ID); err != nil {
			return nil, err
		}
	}

	sg := newSaga("update plan", c.logger)
	var logs []ScheduledInstallment

	switch {
	case restructure:
		if plan.PlanStatus == models.PlanCancelled || plan.PlanStatus == models.PlanCompleted {
			if in.PlanStatus == nil {
				plan.PlanStatus = models.PlanActive
			} else if !plan.Open() {
				return nil, apperr.Conflict("planStatus", "cannot restructure a plan while setting it %s", plan.PlanStatus)
			}
			if err := c.checkSingleOpenPlan(ctx, pledge.ID, plan.ID); err != nil {
				return nil, err
			}
		}
		logs, err = c.restructure(ctx, sg, plan, pledge, in, insts, payments)
		if err != nil {
			return nil, c.fail(ctx, sg, err, pledge.ID)
		}
	case plan.PlanStatus == models.PlanCancelled && before.PlanStatus != models.PlanCancelled:
		if err := c.cancelPending(ctx, sg, insts, payments); err != nil {
			return nil, c.fail(ctx, sg, err, pledge.ID)
		}
	case payerChanged:
		if err := c.reattributeStubs(ctx, sg, plan, payments); err != nil {
			return nil, c.fail(ctx, sg, err, pledge.ID)
		}
	}

	if restructure || in.ExchangeRate != nil {
		plan.TotalPlannedAmountUSD = c.conv.toUSD(ctx, plan.TotalPlannedAmount, plan.Currency, plan.StartDate, planUSDRate(plan, pledge))
	}

	if err := c.store.UpdatePlan(ctx, plan); err != nil {
		return nil, c.fail(ctx, sg, apperr.Persistence("update payment plan", err), pledge.ID)
	}
	sg.record("payment_plan", plan.ID, func(ctx context.Context) error {
		restore := before
		return c.store.UpdatePlan(ctx, &restore)
	})

	if _, err := c.aggregator.RecomputePlan(ctx, plan.ID); err != nil {
		return nil, c.fail(ctx, sg, err, pledge.ID)
	}
	if _, err := c.aggregator.RecomputePledge(ctx, pledge.ID); err != nil {
		return nil, c.fail(ctx, sg, err, pledge.ID)
	}

	for _, s := range logs {
		c.conv.log(ctx, s.Payment.ID, s.Payment.PaymentDate, s.conversions)
	}

	c.logger.Info("Updated payment plan",
		"plan_id", plan.ID,
		"restructured", restructure,
		"status", plan.PlanStatus,
	)

	stored, err := c.store.GetPlan(ctx, plan.ID)
	if err != nil {
		return nil, loadErr("payment plan", plan.ID, err)
	}
	return c.loadResult(ctx, stored)
}

// DeletePlan soft-deletes a plan that has no settled payments. Pending stub
// payments are removed and pending installments cancelled.
func (c *PlanCoordinator) DeletePlan(ctx context.Context, planID string) (*DeletePlanResult, error) {
	plan, err := c.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, loadErr("payment plan", planID, err)
	}
	if plan.Deleted() {
		return nil, apperr.NotFound("payment plan", planID)
	}
	insts, err := c.store.ListInstallmentsByPlan(ctx, planID)
	if err != nil {
		return nil, apperr.Persistence("list plan installments", err)
	}
	payments, err := c.store.ListPaymentsByPlan(ctx, planID)
	if err != nil {
		return nil, apperr.Persistence("list plan payments", err)
	}
	allocs, err := c.store.ListAllocationsByPledge(ctx, plan.PledgeID)
	if err != nil {
		return nil, apperr.Persistence("list pledge allocations", err)
	}

	settled := 0
	for _, p := range append(payments, allocationsOnPlan(plan, insts, allocs)...) {
		if p.Status.Settles() {
			settled++
		}
	}
	if settled > 0 {
		return nil, apperr.Conflict("planId", "plan has %d completed payments", settled).
			WithDetail("completed_payments", strconv.Itoa(settled))
	}

	sg := newSaga("delete plan", c.logger)
	for _, p := range payments {
		if p.Status != models.PaymentPending {
			continue
		}
		if err := c.deletePayment(ctx, sg, p); err != nil {
			return nil, c.fail(ctx, sg, err, plan.PledgeID)
		}
	}
	if err := c.cancelInstallments(ctx, sg, insts); err != nil {
		return nil, c.fail(ctx, sg, err, plan.PledgeID)
	}

	before := *plan
	deletedAt := models.DateOf(c.cfg.Now())
	plan.DeletedAt = &deletedAt
	plan.PlanStatus = models.PlanCancelled
	plan.NextPaymentDate = nil
	if err := c.store.UpdatePlan(ctx, plan); err != nil {
		return nil, c.fail(ctx, sg, apperr.Persistence("delete payment plan", err), plan.PledgeID)
	}
	sg.record("payment_plan", plan.ID, func(ctx context.Context) error {
		restore := before
		return c.store.UpdatePlan(ctx, &restore)
	})

	if _, err := c.aggregator.RecomputePledge(ctx, plan.PledgeID); err != nil {
		return nil, c.fail(ctx, sg, err, plan.PledgeID)
	}

	c.logger.Info("Deleted payment plan", "plan_id", plan.ID, "pledge_id", plan.PledgeID)
	return &DeletePlanResult{PlanID: plan.ID, PledgeID: plan.PledgeID}, nil
}

// persistSchedule writes installments, then their stub payments, then links each
// installment to its stub, recording the inverse of every insert.
func (c *PlanCoordinator) persistSchedule(ctx context.Context, sg *saga, plan *models.PaymentPlan, scheduled []ScheduledInstallment) ([]*models.InstallmentSchedule, []*models.Payment, error) {
	insts := make([]*models.InstallmentSchedule, 0, len(scheduled))
	payments := make([]*models.Payment, 0, len(scheduled))

	for _, s := range scheduled {
		inst := s.Installment
		inst.PaymentPlanID = plan.ID
		if err := c.store.CreateInstallment(ctx, inst); err != nil {
			return nil, nil, apperr.Persistence("create installment", err)
		}
		id := inst.ID
		sg.record("installment", id, func(ctx context.Context) error {
			return c.store.DeleteInstallment(ctx, id)
		})
		insts = append(insts, inst)
	}

	for i, s := range scheduled {
		p := s.Payment
		p.PaymentPlanID = plan.ID
		p.InstallmentScheduleID = insts[i].ID
		if err := c.store.CreatePayment(ctx, p); err != nil {
			return nil, nil, apperr.Persistence("create pending payment", err)
		}
		id := p.ID
		sg.record("payment", id, func(ctx context.Context) error {
			return c.store.DeletePayment(ctx, id)
		})
		payments = append(payments, p)
	}

	for i, inst := range insts {
		inst.PaymentID = payments[i].ID
		if err := c.store.UpdateInstallment(ctx, inst); err != nil {
			return nil, nil, apperr.Persistence("link installment to payment", err)
		}
	}
	return insts, payments, nil
}

// restructure replaces the pending schedule of plan with one covering the
// outstanding amount under the updated distribution. plan is modified in place.
func (c *PlanCoordinator) restructure(ctx context.Context, sg *saga, plan *models.PaymentPlan, pledge *models.Pledge, in UpdatePlanInput, insts []*models.InstallmentSchedule, payments []*models.Payment) ([]ScheduledInstallment, error) {
	if in.Frequency != nil {
		plan.Frequency = *in.Frequency
	}
	if in.DistributionType != nil {
		plan.DistributionType = *in.DistributionType
	}
	if in.TotalPlannedAmount != nil {
		plan.TotalPlannedAmount = *in.TotalPlannedAmount
	}
	currencyChanged := false
	if in.Currency != nil {
		cur := fx.NormalizeCurrency(*in.Currency)
		if cur == "" {
			return nil, apperr.Validation("currency", "must not be empty")
		}
		currencyChanged = cur != plan.Currency
		plan.Currency = cur
	}
	if !plan.Frequency.Valid() {
		return nil, apperr.Validation("frequency", "unknown frequency %q", plan.Frequency)
	}
	if !plan.DistributionType.Valid() {
		return nil, apperr.Validation("distributionType", "unknown distribution type %q", plan.DistributionType)
	}
	if !plan.TotalPlannedAmount.IsPositive() {
		return nil, apperr.Validation("totalPlannedAmount", "must be positive, got %s", plan.TotalPlannedAmount)
	}
	if plan.DistributionType == models.DistributionCustom && in.CustomInstallments == nil {
		return nil, apperr.Validation("customInstallments", "required when restructuring a custom plan")
	}

	var logs []ScheduledInstallment
	if currencyChanged {
		relogged, err := c.reconvertSettled(ctx, sg, plan, pledge, payments)
		if err != nil {
			return nil, err
		}
		logs = append(logs, relogged...)
	}

	allocs, err := c.store.ListAllocationsByPledge(ctx, plan.PledgeID)
	if err != nil {
		return nil, apperr.Persistence("list pledge allocations", err)
	}
	paidSoFar := calculator.CalculatePlanTotals(plan, append(payments, allocationsOnPlan(plan, insts, allocs)...), insts)
	outstanding := money.Round(plan.TotalPlannedAmount).Sub(paidSoFar.TotalPaid)
	if outstanding.IsNegative() {
		return nil, apperr.Validation("totalPlannedAmount", "total %s is below the %s already paid",
			money.Round(plan.TotalPlannedAmount).StringFixed(2), paidSoFar.TotalPaid.StringFixed(2))
	}

	var pending []*models.InstallmentSchedule
	paidCount := 0
	var lastPaid *time.Time
	for _, inst := range insts {
		switch inst.Status {
		case models.InstallmentPending, models.InstallmentOverdue:
			pending = append(pending, inst)
		case models.InstallmentPaid:
			paidCount++
			if lastPaid == nil || inst.InstallmentDate.After(*lastPaid) {
				d := inst.InstallmentDate
				lastPaid = &d
			}
		}
	}

	var scheduled []ScheduledInstallment
	if outstanding.IsPositive() {
		req := ScheduleRequest{
			Distribution: plan.DistributionType,
			Frequency:    plan.Frequency,
			Total:        outstanding,
			Custom:       in.CustomInstallments,
		}
		if plan.DistributionType == models.DistributionFixed {
			n := plan.NumberOfInstallments
			if in.NumberOfInstallments != nil {
				n = *in.NumberOfInstallments
			}
			req.Count = n - paidCount
			if req.Count < 1 {
				return nil, apperr.Validation("numberOfInstallments",
					"must exceed the %d installments already paid, got %d", paidCount, n)
			}
			if in.InstallmentAmount != nil {
				req.InstallmentAmount = money.Null(*in.InstallmentAmount)
			}
			req.StartDate = restructureStart(plan, in, pending, paidCount)
		}

		scheduled, err = c.scheduler.generate(ctx, plan, pledge, req, planUpdateTags)
		if err != nil {
			return nil, err
		}
		if _, _, err := c.persistSchedule(ctx, sg, plan, scheduled); err != nil {
			return nil, err
		}
		logs = append(logs, scheduled...)
	}

	// Retire the old pending schedule only once its replacement exists.
	pendingIDs := make(map[string]bool, len(pending))
	for _, inst := range pending {
		pendingIDs[inst.ID] = true
	}
	for _, p := range payments {
		if p.Status == models.PaymentPending && pendingIDs[p.InstallmentScheduleID] {
			if err := c.deletePayment(ctx, sg, p); err != nil {
				return nil, err
			}
		}
	}
	if err := c.cancelInstallments(ctx, sg, pending); err != nil {
		return nil, err
	}

	if in.StartDate != nil {
		plan.StartDate = models.DateOf(*in.StartDate)
	}
	plan.NumberOfInstallments = paidCount + len(scheduled)
	first, end := planSummary(scheduled)
	if len(scheduled) > 0 {
		plan.InstallmentAmount = first
	}
	switch {
	case end != nil:
		plan.EndDate = end
	case lastPaid != nil:
		plan.EndDate = lastPaid
	}

	c.logger.Info("Restructured payment plan",
		"plan_id", plan.ID,
		"outstanding", outstanding.StringFixed(2),
		"cancelled_installments", len(pending),
		"new_installments", len(scheduled),
	)
	return logs, nil
}

// restructureStart picks the first date of a regenerated fixed schedule: the
// requested start, else the earliest pending installment, else the start
// advanced past the installments already paid.
func restructureStart(plan *models.PaymentPlan, in UpdatePlanInput, pending []*models.InstallmentSchedule, paidCount int) time.Time {
	if in.StartDate != nil {
		return models.DateOf(*in.StartDate)
	}
	if len(pending) > 0 {
		return pending[0].InstallmentDate
	}
	if d, err := calculator.AdvanceDate(plan.StartDate, plan.Frequency, paidCount); err == nil {
		return d
	}
	return plan.StartDate
}

// reconvertSettled re-expresses settled plan payments in the new plan currency.
func (c *PlanCoordinator) reconvertSettled(ctx context.Context, sg *saga, plan *models.PaymentPlan, pledge *models.Pledge, payments []*models.Payment) ([]ScheduledInstallment, error) {
	var logs []ScheduledInstallment
	for _, p := range payments {
		if !p.Status.Settles() {
			continue
		}
		before := *p
		conv := c.conv.convert(ctx, p.Amount, p.Currency, plan.Currency, p.PaymentDate, decimal.NullDecimal{})
		p.AmountInPlanCurrency = conv.Amount
		p.PlanCurrencyExchangeRate = conv.Rate
		if !conv.Resolved() {
			c.logger.Warn("No rate to re-express payment in plan currency",
				"payment_id", p.ID, "from", p.Currency, "to", plan.Currency)
		}
		if err := c.store.UpdatePayment(ctx, p); err != nil {
			return nil, apperr.Persistence("update payment plan currency", err)
		}
		sg.record("payment", p.ID, func(ctx context.Context) error {
			restore := before
			return c.store.UpdatePayment(ctx, &restore)
		})
		logs = append(logs, ScheduledInstallment{
			Payment:     p,
			conversions: []taggedConversion{{conv, models.ConversionPlanUpdatePlan}},
		})
	}
	return logs, nil
}

// cancelPending cancels pending installments and their pending stub payments.
func (c *PlanCoordinator) cancelPending(ctx context.Context, sg *saga, insts []*models.InstallmentSchedule, payments []*models.Payment) error {
	var pending []*models.InstallmentSchedule
	ids := make(map[string]bool)
	for _, inst := range insts {
		if inst.Status == models.InstallmentPending || inst.Status == models.InstallmentOverdue {
			pending = append(pending, inst)
			ids[inst.ID] = true
		}
	}

	for _, p := range payments {
		if p.Status != models.PaymentPending || !ids[p.InstallmentScheduleID] {
			continue
		}
		before := *p
		p.Status = models.PaymentCancelled
		if err := c.store.UpdatePayment(ctx, p); err != nil {
			return apperr.Persistence("cancel pending payment", err)
		}
		sg.record("payment", p.ID, func(ctx context.Context) error {
			restore := before
			return c.store.UpdatePayment(ctx, &restore)
		})
	}
	return c.cancelInstallments(ctx, sg, pending)
}

// reattributeStubs copies the plan's third-party attribution onto its pending stubs.
func (c *PlanCoordinator) reattributeStubs(ctx context.Context, sg *saga, plan *models.PaymentPlan, payments []*models.Payment) error {
	for _, p := range payments {
		if p.Status != models.PaymentPending {
			continue
		}
		before := *p
		p.IsThirdParty = plan.IsThirdParty
		p.PayerContactID = plan.PayerContactID
		if err := c.store.UpdatePayment(ctx, p); err != nil {
			return apperr.Persistence("update pending payment payer", err)
		}
		sg.record("payment", p.ID, func(ctx context.Context) error {
			restore := before
			return c.store.UpdatePayment(ctx, &restore)
		})
	}
	return nil
}

func (c *PlanCoordinator) cancelInstallments(ctx context.Context, sg *saga, insts []*models.InstallmentSchedule) error {
	for _, inst := range insts {
		before := *inst
		if !inst.Cancel() {
			continue
		}
		if err := c.store.UpdateInstallment(ctx, inst); err != nil {
			return apperr.Persistence("cancel installment", err)
		}
		sg.record("installment", inst.ID, func(ctx context.Context) error {
			restore := before
			return c.store.UpdateInstallment(ctx, &restore)
		})
	}
	return nil
}

func (c *PlanCoordinator) deletePayment(ctx context.Context, sg *saga, p *models.Payment) error {
	if err := c.store.DeletePayment(ctx, p.ID); err != nil {
		return apperr.Persistence("delete pending payment", err)
	}
	restore := *p
	sg.record("payment", p.ID, func(ctx context.Context) error {
		again := restore
		return c.store.CreatePayment(ctx, &again)
	})
	return nil
}

// fail compensates sg and recomputes the pledge so its totals match whatever
// state remains. It returns cause.
func (c *PlanCoordinator) fail(ctx context.Context, sg *saga, cause error, pledgeID string) error {
	err := sg.compensate(ctx, cause)
	if _, rerr := c.aggregator.RecomputePledge(context.WithoutCancel(ctx), pledgeID); rerr != nil {
		c.logger.Error("Failed to recompute pledge after rollback", "pledge_id", pledgeID, "error", rerr)
	}
	return err
}

// checkPayer enforces third-party attribution: a payer must exist, and a
// third-party payer must differ from the pledge's own contact.
func (c *PlanCoordinator) checkPayer(ctx context.Context, pledge *models.Pledge, thirdParty bool, payerID string) error {
	return checkPayer(ctx, c.store, pledge, thirdParty, payerID)
}

func checkPayer(ctx context.Context, store storage.ContactStore, pledge *models.Pledge, thirdParty bool, payerID string) error {
	if thirdParty && payerID == "" {
		return apperr.Validation("payerContactId", "is required for third-party payments")
	}
	if payerID == "" {
		return nil
	}
	ok, err := store.ContactExists(ctx, payerID)
	if err != nil {
		return apperr.Persistence("check payer contact", err)
	}
	if !ok {
		return apperr.NotFound("contact", payerID)
	}
	if thirdParty && payerID == pledge.ContactID {
		return apperr.Conflict("payerContactId", "third-party payer %s is the pledge's own contact", payerID)
	}
	return nil
}

// checkSingleOpenPlan rejects a second open plan on a pledge. exceptID is the
// plan being updated, if any.
func (c *PlanCoordinator) checkSingleOpenPlan(ctx context.Context, pledgeID, exceptID string) error {
	plans, err := c.store.ListPlansByPledge(ctx, pledgeID)
	if err != nil {
		return apperr.Persistence("list pledge plans", err)
	}
	for _, p := range plans {
		if p.ID != exceptID && p.Open() {
			return apperr.Conflict("pledgeId", "pledge %s already has an open plan %s", pledgeID, p.ID).
				WithDetail("plan_id", p.ID)
		}
	}
	return nil
}

// newPlan validates a create request and builds the unsaved plan and its
// schedule request.
func newPlan(pledge *models.Pledge, in CreatePlanInput) (*models.PaymentPlan, ScheduleRequest, error) {
	var req ScheduleRequest

	dist := in.DistributionType
	if dist == "" {
		dist = models.DistributionFixed
	}
	if !dist.Valid() {
		return nil, req, apperr.Validation("distributionType", "unknown distribution type %q", dist)
	}
	if !in.Frequency.Valid() {
		return nil, req, apperr.Validation("frequency", "unknown frequency %q", in.Frequency)
	}
	if !in.TotalPlannedAmount.IsPositive() {
		return nil, req, apperr.Validation("totalPlannedAmount", "must be positive, got %s", in.TotalPlannedAmount)
	}
	if in.ExchangeRate.Valid && !in.ExchangeRate.Decimal.IsPositive() {
		return nil, req, apperr.Validation("exchangeRate", "must be positive, got %s", in.ExchangeRate.Decimal)
	}

	status := in.PlanStatus
	if status == "" {
		status = models.PlanActive
	}
	if status != models.PlanActive && status != models.PlanPaused {
		return nil, req, apperr.Validation("planStatus", "a new plan must be active or paused, got %q", status)
	}

	currency := fx.NormalizeCurrency(in.Currency)
	if currency == "" {
		currency = pledge.Currency
	}

	plan := &models.PaymentPlan{
		PledgeID:           pledge.ID,
		Frequency:          in.Frequency,
		DistributionType:   dist,
		TotalPlannedAmount: money.Round(in.TotalPlannedAmount),
		Currency:           currency,
		ExchangeRate:       in.ExchangeRate,
		StartDate:          models.DateOf(in.StartDate),
		PlanStatus:         status,
		IsThirdParty:       in.IsThirdParty,
		PayerContactID:     in.PayerContactID,
		Notes:              in.Notes,
	}

	req = ScheduleRequest{
		Distribution:      dist,
		Frequency:         in.Frequency,
		Total:             plan.TotalPlannedAmount,
		Count:             in.NumberOfInstallments,
		InstallmentAmount: in.InstallmentAmount,
		StartDate:         in.StartDate,
		Custom:            in.CustomInstallments,
	}
	return plan, req, nil
}

// planUSDRate is the recorded plan-currency to USD rate: the plan override, or
// the pledge's rate when the plan shares the pledge currency.
func planUSDRate(plan *models.PaymentPlan, pledge *models.Pledge) decimal.NullDecimal {
	if plan.ExchangeRate.Valid {
		return plan.ExchangeRate
	}
	if plan.Currency == pledge.Currency {
		return pledge.ExchangeRate
	}
	return decimal.NullDecimal{}
}
