package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/pledgeledger/internal/apperr"
	"github.com/mmynk/pledgeledger/internal/calculator"
	"github.com/mmynk/pledgeledger/internal/fx"
	"github.com/mmynk/pledgeledger/internal/models"
	"github.com/mmynk/pledgeledger/internal/money"
	"github.com/mmynk/pledgeledger/internal/storage"
)

// PaymentInput creates a payment. Exactly one of PledgeID and Allocations is
// set: a direct payment names its pledge, a split payment lists allocations.
type PaymentInput struct {
	PledgeID    string
	Allocations []calculator.AllocationInput

	// Direct payments only.
	PaymentPlanID         string
	InstallmentScheduleID string

	Amount   decimal.Decimal
	Currency string

	// Optional caller-supplied rates.
	ExchangeRate               decimal.NullDecimal
	PledgeCurrencyExchangeRate decimal.NullDecimal

	PaymentDate time.Time

	// Status defaults to completed.
	Status models.PaymentStatus

	IsThirdParty   bool
	PayerContactID string
	Notes          string
}

// PaymentPatch is a partial payment update. Nil fields are left unchanged.
//
// Setting Allocations on a direct payment splits it; setting PledgeID on a split
// payment makes it direct again. Changing a split payment's amount without new
// allocations is only possible when it has a single allocation.
type PaymentPatch struct {
	Amount                     *decimal.Decimal
	Currency                   *string
	ExchangeRate               *decimal.NullDecimal
	PledgeCurrencyExchangeRate *decimal.NullDecimal
	PaymentDate                *time.Time
	Status                     *models.PaymentStatus

	PledgeID              *string
	PaymentPlanID         *string
	InstallmentScheduleID *string
	Allocations           []calculator.AllocationInput

	IsThirdParty   *bool
	PayerContactID *string
	Notes          *string
}

// PaymentResult is a payment with its allocations and the totals it touched.
type PaymentResult struct {
	Payment         *models.Payment
	Allocations     []*models.PaymentAllocation
	AffectedPledges []string
	AffectedPlans   []string
}

// DeletePaymentResult reports a deleted payment.
type DeletePaymentResult struct {
	PaymentID       string
	AffectedPledges []string
	AffectedPlan    string
}

// PaymentCoordinator records, edits and deletes payments, re-running the
// aggregator on every pledge and plan a change touches.
type PaymentCoordinator struct {
	store      storage.Store
	reconciler *Reconciler
	aggregator *Aggregator
	conv       *converter
	logger     *slog.Logger
}

// CreatePayment records a direct or split payment.
func (c *PaymentCoordinator) CreatePayment(ctx context.Context, in PaymentInput) (*PaymentResult, error) {
	p, err := newPayment(in)
	if err != nil {
		return nil, err
	}
	split := len(in.Allocations) > 0

	var (
		aff   affected
		rows  []*models.PaymentAllocation
		convs []taggedConversion
	)
	if split {
		if in.PaymentPlanID != "" || in.InstallmentScheduleID != "" {
			return nil, apperr.Validation("installmentScheduleId", "split payments reference installments per allocation")
		}
		convs = c.conv.convertPayment(ctx, p, paymentTargets{}, creationTags)
		if rows, err = c.reconciler.Reconcile(ctx, p, in.Allocations); err != nil {
			return nil, err
		}
	} else {
		pledge, err := c.store.GetPledge(ctx, p.PledgeID)
		if err != nil {
			return nil, loadErr("pledge", p.PledgeID, err)
		}
		plan, err := c.attachDirect(ctx, p, pledge)
		if err != nil {
			return nil, err
		}
		if err := checkPayer(ctx, c.store, pledge, p.IsThirdParty, p.PayerContactID); err != nil {
			return nil, err
		}
		convs = c.conv.convertPayment(ctx, p, targetsFor(pledge, plan), creationTags)
	}

	sg := newSaga("create payment", c.logger)

	if err := c.store.CreatePayment(ctx, p); err != nil {
		return nil, apperr.Persistence("create payment", err)
	}
	paymentID := p.ID
	sg.record("payment", paymentID, func(ctx context.Context) error {
		return c.store.DeletePayment(ctx, paymentID)
	})

	if split {
		if err := c.reconciler.insertAllocations(ctx, sg, p, rows, &aff); err != nil {
			return nil, c.fail(ctx, sg, err, &aff)
		}
	} else {
		aff.pledges.add(p.PledgeID)
		aff.plans.add(p.PaymentPlanID)
		if p.InstallmentScheduleID != "" {
			if err := c.reconciler.syncInstallment(ctx, sg, p.InstallmentScheduleID, p, &aff); err != nil {
				return nil, c.fail(ctx, sg, err, &aff)
			}
		}
	}

	if err := c.aggregator.recomputeAll(ctx, aff.pledges.list(), aff.plans.list()); err != nil {
		return nil, c.fail(ctx, sg, err, &aff)
	}
	c.conv.log(ctx, p.ID, p.PaymentDate, convs)

	c.logger.Info("Created payment",
		"payment_id", p.ID,
		"split", split,
		"amount", p.Amount.StringFixed(2),
		"currency", p.Currency,
		"status", p.Status,
	)
	return c.result(ctx, p.ID, &aff)
}

// UpdatePayment applies a partial update, moving the payment between direct and
// split forms as requested, and recomputes every pledge and plan touched before
// or after the change.
func (c *PaymentCoordinator) UpdatePayment(ctx context.Context, paymentID string, patch PaymentPatch) (*PaymentResult, error) {
	p, err := c.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, loadErr("payment", paymentID, err)
	}
	existing, err := c.store.ListAllocationsByPayment(ctx, paymentID)
	if err != nil {
		return nil, apperr.Persistence("list payment allocations", err)
	}
	before := *p
	wasSplit := p.IsSplit()

	if err := applyPaymentPatch(p, patch); err != nil {
		return nil, err
	}

	toSplit := len(patch.Allocations) > 0
	toDirect := patch.PledgeID != nil && *patch.PledgeID != ""
	switch {
	case toSplit && toDirect:
		return nil, apperr.Validation("pledgeId", "a payment takes either a pledge or allocations, not both")
	case patch.PledgeID != nil && *patch.PledgeID == "" && !toSplit && !wasSplit:
		return nil, apperr.Validation("pledgeId", "cannot be cleared without allocations")
	case (toSplit || wasSplit && !toDirect) && (patch.InstallmentScheduleID != nil || patch.PaymentPlanID != nil):
		return nil, apperr.Validation("installmentScheduleId", "split payments reference installments per allocation")
	}

	var aff affected
	aff.pledges.add(before.PledgeID)
	aff.plans.add(before.PaymentPlanID)
	for _, a := range existing {
		aff.pledges.add(a.PledgeID)
	}

	sg := newSaga("update payment", c.logger)
	var convs []taggedConversion

	switch {
	case wasSplit && toDirect:
		convs, err = c.makeDirect(ctx, sg, p, patch, existing, &aff)
	case !wasSplit && toSplit:
		convs, err = c.makeSplit(ctx, sg, p, &before, patch, &aff)
	case wasSplit:
		convs, err = c.resplit(ctx, sg, p, &before, patch, existing, &aff)
	default:
		convs, err = c.updateDirect(ctx, sg, p, &before, patch, &aff)
	}
	if err != nil {
		return nil, c.fail(ctx, sg, err, &aff)
	}

	if err := c.aggregator.recomputeAll(ctx, aff.pledges.list(), aff.plans.list()); err != nil {
		return nil, c.fail(ctx, sg, err, &aff)
	}
	if moneyChanged(&before, p) {
		c.conv.log(ctx, p.ID, p.PaymentDate, convs)
	}

	c.logger.Info("Updated payment",
		"payment_id", p.ID,
		"was_split", wasSplit,
		"split", p.IsSplit(),
		"affected_pledges", len(aff.pledges.list()),
		"affected_plans", len(aff.plans.list()),
	)
	return c.result(ctx, p.ID, &aff)
}

// DeletePayment removes a payment and its allocations, releases the
// installments it held, and recomputes the affected totals.
func (c *PaymentCoordinator) DeletePayment(ctx context.Context, paymentID string) (*DeletePaymentResult, error) {
	p, err := c.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, loadErr("payment", paymentID, err)
	}
	allocs, err := c.store.ListAllocationsByPayment(ctx, paymentID)
	if err != nil {
		return nil, apperr.Persistence("list payment allocations", err)
	}

	var aff affected
	sg := newSaga("delete payment", c.logger)

	if p.IsSplit() {
		if err := c.reconciler.Detach(ctx, sg, p, allocs, &aff); err != nil {
			return nil, c.fail(ctx, sg, err, &aff)
		}
	} else {
		aff.pledges.add(p.PledgeID)
		aff.plans.add(p.PaymentPlanID)
		if p.InstallmentScheduleID != "" {
			// Deleting an unsettled payment on its own installment leaves no stub behind.
			if err := c.reconciler.release(ctx, sg, p.InstallmentScheduleID, p.ID, p.Status.Settles(), &aff); err != nil {
				return nil, c.fail(ctx, sg, err, &aff)
			}
		}
	}

	if err := c.store.DeletePayment(ctx, p.ID); err != nil {
		return nil, c.fail(ctx, sg, apperr.Persistence("delete payment", err), &aff)
	}
	restore := *p
	sg.record("payment", p.ID, func(ctx context.Context) error {
		again := restore
		return c.store.CreatePayment(ctx, &again)
	})

	if err := c.aggregator.recomputeAll(ctx, aff.pledges.list(), aff.plans.list()); err != nil {
		return nil, c.fail(ctx, sg, err, &aff)
	}

	res := &DeletePaymentResult{
		PaymentID:       p.ID,
		AffectedPledges: aff.pledges.list(),
		AffectedPlan:    p.PaymentPlanID,
	}
	if res.AffectedPlan == "" && len(aff.plans.list()) > 0 {
		res.AffectedPlan = aff.plans.list()[0]
	}

	c.logger.Info("Deleted payment",
		"payment_id", p.ID,
		"affected_pledges", len(res.AffectedPledges),
		"affected_plan", res.AffectedPlan,
	)
	return res, nil
}

// makeDirect collapses a split payment onto a single pledge.
func (c *PaymentCoordinator) makeDirect(ctx context.Context, sg *saga, p *models.Payment, patch PaymentPatch, existing []*models.PaymentAllocation, aff *affected) ([]taggedConversion, error) {
	pledge, err := c.store.GetPledge(ctx, p.PledgeID)
	if err != nil {
		return nil, loadErr("pledge", p.PledgeID, err)
	}
	p.PledgeCurrencyExchangeRate = keepRate(patch.PledgeCurrencyExchangeRate)
	p.PlanCurrencyExchangeRate = decimal.NullDecimal{}

	plan, err := c.attachDirect(ctx, p, pledge)
	if err != nil {
		return nil, err
	}
	if err := checkPayer(ctx, c.store, pledge, p.IsThirdParty, p.PayerContactID); err != nil {
		return nil, err
	}
	convs := c.conv.convertPayment(ctx, p, targetsFor(pledge, plan), creationTags)

	if err := c.reconciler.ToDirect(ctx, sg, p, existing, aff); err != nil {
		return nil, err
	}
	if err := c.save(ctx, sg, p); err != nil {
		return nil, err
	}

	aff.pledges.add(p.PledgeID)
	aff.plans.add(p.PaymentPlanID)
	if p.InstallmentScheduleID != "" {
		if err := c.reconciler.syncInstallment(ctx, sg, p.InstallmentScheduleID, p, aff); err != nil {
			return nil, err
		}
	}
	return convs, nil
}

// makeSplit spreads a direct payment across allocations. The payment loses its
// own pledge, plan and installment references.
func (c *PaymentCoordinator) makeSplit(ctx context.Context, sg *saga, p, before *models.Payment, patch PaymentPatch, aff *affected) ([]taggedConversion, error) {
	p.PledgeID = ""
	p.PaymentPlanID = ""
	p.InstallmentScheduleID = ""
	p.PledgeCurrencyExchangeRate = decimal.NullDecimal{}
	p.PlanCurrencyExchangeRate = decimal.NullDecimal{}
	convs := c.conv.convertPayment(ctx, p, paymentTargets{}, creationTags)

	rows, err := c.reconciler.Reconcile(ctx, p, patch.Allocations)
	if err != nil {
		return nil, err
	}

	// The reconciler releases the installment the direct payment held.
	held := *p
	held.PledgeID = before.PledgeID
	held.PaymentPlanID = before.PaymentPlanID
	held.InstallmentScheduleID = before.InstallmentScheduleID
	if err := c.reconciler.ToSplit(ctx, sg, &held, rows, aff); err != nil {
		return nil, err
	}
	return convs, c.save(ctx, sg, p)
}

// resplit updates a payment that is split before and after the change. Without
// new allocations the existing ones are kept, or rescaled when there is only
// one and the amount changed.
func (c *PaymentCoordinator) resplit(ctx context.Context, sg *saga, p, before *models.Payment, patch PaymentPatch, existing []*models.PaymentAllocation, aff *affected) ([]taggedConversion, error) {
	inputs := patch.Allocations
	if len(inputs) == 0 {
		if !p.Amount.Equal(before.Amount) {
			scaled, err := calculator.ScaleSingle(existing, p.Amount)
			if err != nil {
				return nil, err
			}
			inputs = scaled
		} else {
			inputs = allocationInputs(existing)
		}
		for i := range inputs {
			if inputs[i].Currency == before.Currency {
				inputs[i].Currency = p.Currency
			}
		}
	}

	convs := c.conv.convertPayment(ctx, p, paymentTargets{}, creationTags)
	rows, err := c.reconciler.Reconcile(ctx, p, inputs)
	if err != nil {
		return nil, err
	}
	if err := c.save(ctx, sg, p); err != nil {
		return nil, err
	}
	if err := c.reconciler.Resplit(ctx, sg, p, existing, rows, aff); err != nil {
		return nil, err
	}
	return convs, nil
}

// updateDirect updates a payment that stays direct, possibly moving it to
// another pledge or installment.
func (c *PaymentCoordinator) updateDirect(ctx context.Context, sg *saga, p, before *models.Payment, patch PaymentPatch, aff *affected) ([]taggedConversion, error) {
	pledge, err := c.store.GetPledge(ctx, p.PledgeID)
	if err != nil {
		return nil, loadErr("pledge", p.PledgeID, err)
	}
	if p.PledgeID != before.PledgeID {
		p.PledgeCurrencyExchangeRate = keepRate(patch.PledgeCurrencyExchangeRate)
		if patch.PaymentPlanID == nil {
			p.PaymentPlanID = ""
		}
		if patch.InstallmentScheduleID == nil {
			p.InstallmentScheduleID = ""
		}
	}
	if p.PaymentPlanID != before.PaymentPlanID {
		p.PlanCurrencyExchangeRate = decimal.NullDecimal{}
	}

	plan, err := c.attachDirect(ctx, p, pledge)
	if err != nil {
		return nil, err
	}
	if p.PledgeID != before.PledgeID || p.IsThirdParty != before.IsThirdParty || p.PayerContactID != before.PayerContactID {
		if err := checkPayer(ctx, c.store, pledge, p.IsThirdParty, p.PayerContactID); err != nil {
			return nil, err
		}
	}
	convs := c.conv.convertPayment(ctx, p, targetsFor(pledge, plan), creationTags)

	if before.InstallmentScheduleID != "" && before.InstallmentScheduleID != p.InstallmentScheduleID {
		if err := c.reconciler.releaseInstallment(ctx, sg, before.InstallmentScheduleID, p.ID, aff); err != nil {
			return nil, err
		}
	}
	if err := c.save(ctx, sg, p); err != nil {
		return nil, err
	}

	aff.pledges.add(p.PledgeID)
	aff.plans.add(p.PaymentPlanID)
	if p.InstallmentScheduleID != "" {
		if err := c.reconciler.syncInstallment(ctx, sg, p.InstallmentScheduleID, p, aff); err != nil {
			return nil, err
		}
	}
	return convs, nil
}

// save persists p, recording the stored row as its inverse.
func (c *PaymentCoordinator) save(ctx context.Context, sg *saga, p *models.Payment) error {
	stored, err := c.store.GetPayment(ctx, p.ID)
	if err != nil {
		return loadErr("payment", p.ID, err)
	}
	if err := c.store.UpdatePayment(ctx, p); err != nil {
		return apperr.Persistence("update payment", err)
	}
	sg.record("payment", p.ID, func(ctx context.Context) error {
		return c.store.UpdatePayment(ctx, stored)
	})
	return nil
}

// attachDirect validates the plan and installment references of a direct
// payment against its pledge. An installment implies its plan.
func (c *PaymentCoordinator) attachDirect(ctx context.Context, p *models.Payment, pledge *models.Pledge) (*models.PaymentPlan, error) {
	if p.InstallmentScheduleID != "" {
		inst, err := c.store.GetInstallment(ctx, p.InstallmentScheduleID)
		if err != nil {
			return nil, loadErr("installment", p.InstallmentScheduleID, err)
		}
		if p.PaymentPlanID != "" && p.PaymentPlanID != inst.PaymentPlanID {
			return nil, apperr.Validation("installmentScheduleId", "installment %s is not part of plan %s",
				inst.ID, p.PaymentPlanID)
		}
		p.PaymentPlanID = inst.PaymentPlanID
	}
	if p.PaymentPlanID == "" {
		return nil, nil
	}

	plan, err := c.store.GetPlan(ctx, p.PaymentPlanID)
	if err != nil {
		return nil, loadErr("payment plan", p.PaymentPlanID, err)
	}
	if plan.Deleted() {
		return nil, apperr.NotFound("payment plan", plan.ID)
	}
	if plan.PledgeID != pledge.ID {
		return nil, apperr.Validation("paymentPlanId", "plan %s belongs to pledge %s, not %s",
			plan.ID, plan.PledgeID, pledge.ID)
	}
	return plan, nil
}

// fail compensates sg and recomputes what the mutation touched so totals match
// whatever state remains. It returns cause.
func (c *PaymentCoordinator) fail(ctx context.Context, sg *saga, cause error, aff *affected) error {
	err := sg.compensate(ctx, cause)
	if rerr := c.aggregator.recomputeAll(context.WithoutCancel(ctx), aff.pledges.list(), aff.plans.list()); rerr != nil {
		c.logger.Error("Failed to recompute totals after rollback", "error", rerr)
	}
	return err
}

func (c *PaymentCoordinator) result(ctx context.Context, paymentID string, aff *affected) (*PaymentResult, error) {
	p, err := c.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, loadErr("payment", paymentID, err)
	}
	allocs, err := c.store.ListAllocationsByPayment(ctx, paymentID)
	if err != nil {
		return nil, apperr.Persistence("list payment allocations", err)
	}
	return &PaymentResult{
		Payment:         p,
		Allocations:     allocs,
		AffectedPledges: aff.pledges.list(),
		AffectedPlans:   aff.plans.list(),
	}, nil
}

func newPayment(in PaymentInput) (*models.Payment, error) {
	if len(in.Allocations) > 0 && in.PledgeID != "" {
		return nil, apperr.Validation("pledgeId", "a payment takes either a pledge or allocations, not both")
	}
	if len(in.Allocations) == 0 && in.PledgeID == "" {
		return nil, apperr.Validation("pledgeId", "is required unless allocations are given")
	}
	if !in.Amount.IsPositive() {
		return nil, apperr.Validation("amount", "must be positive, got %s", in.Amount)
	}
	currency := fx.NormalizeCurrency(in.Currency)
	if currency == "" {
		return nil, apperr.Validation("currency", "is required")
	}
	if in.PaymentDate.IsZero() {
		return nil, apperr.Validation("paymentDate", "is required")
	}
	if err := checkRate("exchangeRate", in.ExchangeRate); err != nil {
		return nil, err
	}
	if err := checkRate("pledgeCurrencyExchangeRate", in.PledgeCurrencyExchangeRate); err != nil {
		return nil, err
	}
	status := in.Status
	if status == "" {
		status = models.PaymentCompleted
	}
	if !status.Valid() {
		return nil, apperr.Validation("status", "unknown payment status %q", status)
	}

	return &models.Payment{
		PledgeID:                   in.PledgeID,
		PaymentPlanID:              in.PaymentPlanID,
		InstallmentScheduleID:      in.InstallmentScheduleID,
		Amount:                     money.Round(in.Amount),
		Currency:                   currency,
		ExchangeRate:               in.ExchangeRate,
		PledgeCurrencyExchangeRate: in.PledgeCurrencyExchangeRate,
		PaymentDate:                models.DateOf(in.PaymentDate),
		Status:                     status,
		IsThirdParty:               in.IsThirdParty,
		PayerContactID:             in.PayerContactID,
		Notes:                      in.Notes,
	}, nil
}

// applyPaymentPatch copies patch onto p. Rates derived from a changed currency
// or date are dropped so they are resolved again, unless the patch supplies them.
func applyPaymentPatch(p *models.Payment, patch PaymentPatch) error {
	if patch.Amount != nil {
		if !patch.Amount.IsPositive() {
			return apperr.Validation("amount", "must be positive, got %s", *patch.Amount)
		}
		p.Amount = money.Round(*patch.Amount)
	}

	stale := false
	if patch.Currency != nil {
		cur := fx.NormalizeCurrency(*patch.Currency)
		if cur == "" {
			return apperr.Validation("currency", "must not be empty")
		}
		stale = cur != p.Currency
		p.Currency = cur
	}
	if patch.PaymentDate != nil {
		if patch.PaymentDate.IsZero() {
			return apperr.Validation("paymentDate", "must not be empty")
		}
		day := models.DateOf(*patch.PaymentDate)
		stale = stale || !day.Equal(p.PaymentDate)
		p.PaymentDate = day
	}
	if stale {
		p.ExchangeRate = decimal.NullDecimal{}
		p.PledgeCurrencyExchangeRate = decimal.NullDecimal{}
		p.PlanCurrencyExchangeRate = decimal.NullDecimal{}
	}

	if patch.ExchangeRate != nil {
		if err := checkRate("exchangeRate", *patch.ExchangeRate); err != nil {
			return err
		}
		p.ExchangeRate = *patch.ExchangeRate
	}
	if patch.PledgeCurrencyExchangeRate != nil {
		if err := checkRate("pledgeCurrencyExchangeRate", *patch.PledgeCurrencyExchangeRate); err != nil {
			return err
		}
		p.PledgeCurrencyExchangeRate = *patch.PledgeCurrencyExchangeRate
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return apperr.Validation("status", "unknown payment status %q", *patch.Status)
		}
		p.Status = *patch.Status
	}
	if patch.PledgeID != nil && *patch.PledgeID != "" {
		p.PledgeID = *patch.PledgeID
	}
	if patch.PaymentPlanID != nil {
		p.PaymentPlanID = *patch.PaymentPlanID
	}
	if patch.InstallmentScheduleID != nil {
		p.InstallmentScheduleID = *patch.InstallmentScheduleID
	}
	if patch.IsThirdParty != nil {
		p.IsThirdParty = *patch.IsThirdParty
		if !p.IsThirdParty && patch.PayerContactID == nil {
			p.PayerContactID = ""
		}
	}
	if patch.PayerContactID != nil {
		p.PayerContactID = *patch.PayerContactID
	}
	if patch.Notes != nil {
		p.Notes = *patch.Notes
	}
	return nil
}

func checkRate(field string, rate decimal.NullDecimal) error {
	if rate.Valid && !rate.Decimal.IsPositive() {
		return apperr.Validation(field, "must be positive, got %s", rate.Decimal)
	}
	return nil
}

// keepRate returns the patched rate, or null when the patch has none.
func keepRate(rate *decimal.NullDecimal) decimal.NullDecimal {
	if rate == nil {
		return decimal.NullDecimal{}
	}
	return *rate
}

func targetsFor(pledge *models.Pledge, plan *models.PaymentPlan) paymentTargets {
	t := paymentTargets{pledgeCurrency: pledge.Currency, pledgeRate: pledge.ExchangeRate}
	if plan != nil {
		t.planCurrency = plan.Currency
	}
	return t
}

func allocationInputs(allocs []*models.PaymentAllocation) []calculator.AllocationInput {
	out := make([]calculator.AllocationInput, len(allocs))
	for i, a := range allocs {
		out[i] = calculator.AllocationInput{
			ID:                    a.ID,
			PledgeID:              a.PledgeID,
			Amount:                a.AllocatedAmount,
			Currency:              a.Currency,
			InstallmentScheduleID: a.InstallmentScheduleID,
			PayerContactID:        a.PayerContactID,
			Notes:                 a.Notes,
		}
	}
	return out
}

// moneyChanged reports whether any converted amount of the payment may differ.
func moneyChanged(before, after *models.Payment) bool {
	return !before.Amount.Equal(after.Amount) ||
		before.Currency != after.Currency ||
		!before.PaymentDate.Equal(after.PaymentDate) ||
		before.PledgeID != after.PledgeID ||
		before.PaymentPlanID != after.PaymentPlanID ||
		!nullEq(before.ExchangeRate, after.ExchangeRate) ||
		!nullEq(before.AmountUSD, after.AmountUSD)
}

func nullEq(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}
