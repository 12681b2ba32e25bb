package ledger

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/mmynk/pledgeledger/internal/apperr"
	"github.com/mmynk/pledgeledger/internal/calculator"
	"github.com/mmynk/pledgeledger/internal/fx"
	"github.com/mmynk/pledgeledger/internal/models"
	"github.com/mmynk/pledgeledger/internal/money"
	"github.com/mmynk/pledgeledger/internal/storage"
)

// affected collects the pledges and plans whose totals a mutation touched.
type affected struct {
	pledges set
	plans   set
}

// Reconciler validates split allocations and keeps allocation rows and the
// installments they reference consistent with their parent payment.
type Reconciler struct {
	store  storage.Store
	conv   *converter
	sched  *Scheduler
	logger *slog.Logger
}

// Reconcile validates a requested allocation set for p and returns the rows to
// persist, with USD amounts resolved. Every target pledge must exist and the
// allocated amounts must sum to the payment amount within one cent.
func (r *Reconciler) Reconcile(ctx context.Context, p *models.Payment, inputs []calculator.AllocationInput) ([]*models.PaymentAllocation, error) {
	if err := calculator.ValidateSplit(p.Amount, p.Currency, inputs); err != nil {
		return nil, err
	}

	rows := make([]*models.PaymentAllocation, 0, len(inputs))
	for _, in := range inputs {
		pledge, err := r.store.GetPledge(ctx, in.PledgeID)
		if err != nil {
			return nil, loadErr("pledge", in.PledgeID, err)
		}
		if in.InstallmentScheduleID != "" {
			if err := r.checkInstallmentPledge(ctx, in.InstallmentScheduleID, pledge.ID); err != nil {
				return nil, err
			}
		}

		payer := in.PayerContactID
		if payer == "" {
			payer = p.PayerContactID
		}
		if err := checkPayer(ctx, r.store, pledge, p.IsThirdParty, payer); err != nil {
			return nil, err
		}

		currency := fx.NormalizeCurrency(in.Currency)
		if currency == "" {
			currency = p.Currency
		}
		row := &models.PaymentAllocation{
			ID:                    in.ID,
			PaymentID:             p.ID,
			PledgeID:              pledge.ID,
			AllocatedAmount:       money.Round(in.Amount),
			Currency:              currency,
			InstallmentScheduleID: in.InstallmentScheduleID,
			PayerContactID:        in.PayerContactID,
			Notes:                 in.Notes,
			PaymentStatus:         p.Status,
		}
		row.AllocatedAmountUSD = r.allocationUSD(ctx, p, row)
		rows = append(rows, row)
	}
	return rows, nil
}

// allocationUSD resolves the USD value of an allocation in its own currency,
// falling back to the payment's USD rate.
func (r *Reconciler) allocationUSD(ctx context.Context, p *models.Payment, a *models.PaymentAllocation) decimal.NullDecimal {
	conv := r.conv.rates.Convert(ctx, a.AllocatedAmount, a.Currency, models.USD, p.PaymentDate, decimal.NullDecimal{})
	if conv.Resolved() {
		return conv.Amount
	}
	if p.ExchangeRate.Valid {
		return money.Null(money.Convert(a.AllocatedAmount, p.ExchangeRate.Decimal))
	}
	r.logger.Warn("No USD rate for allocation",
		"payment_id", p.ID, "pledge_id", a.PledgeID, "currency", a.Currency)
	return decimal.NullDecimal{}
}

// checkInstallmentPledge verifies an installment exists on a plan of pledgeID.
func (r *Reconciler) checkInstallmentPledge(ctx context.Context, installmentID, pledgeID string) error {
	inst, err := r.store.GetInstallment(ctx, installmentID)
	if err != nil {
		return loadErr("installment", installmentID, err)
	}
	plan, err := r.store.GetPlan(ctx, inst.PaymentPlanID)
	if err != nil {
		return loadErr("payment plan", inst.PaymentPlanID, err)
	}
	if plan.PledgeID != pledgeID {
		return apperr.Validation("installmentScheduleId", "installment %s belongs to pledge %s, not %s",
			installmentID, plan.PledgeID, pledgeID)
	}
	return nil
}

// ToSplit turns a direct payment into a split one: the direct installment is
// released and the allocation rows inserted. The caller clears the payment's
// own pledge, plan and installment references and persists the payment.
func (r *Reconciler) ToSplit(ctx context.Context, sg *saga, p *models.Payment, rows []*models.PaymentAllocation, aff *affected) error {
	aff.pledges.add(p.PledgeID)
	aff.plans.add(p.PaymentPlanID)
	if p.InstallmentScheduleID != "" {
		if err := r.releaseInstallment(ctx, sg, p.InstallmentScheduleID, p.ID, aff); err != nil {
			return err
		}
	}
	return r.insertAllocations(ctx, sg, p, rows, aff)
}

// ToDirect turns a split payment into a direct one by deleting every
// allocation and releasing the installments they referenced. The caller
// assigns the pledge and persists the payment.
func (r *Reconciler) ToDirect(ctx context.Context, sg *saga, p *models.Payment, existing []*models.PaymentAllocation, aff *affected) error {
	return r.deleteAllocations(ctx, sg, p, existing, aff)
}

// Resplit applies the difference between existing and requested allocations:
// matched rows are updated, new ones inserted and removed ones deleted.
func (r *Reconciler) Resplit(ctx context.Context, sg *saga, p *models.Payment, existing, requested []*models.PaymentAllocation, aff *affected) error {
	inputs := make([]calculator.AllocationInput, len(requested))
	for i, row := range requested {
		inputs[i] = calculator.AllocationInput{
			ID:                    row.ID,
			PledgeID:              row.PledgeID,
			Amount:                row.AllocatedAmount,
			Currency:              row.Currency,
			InstallmentScheduleID: row.InstallmentScheduleID,
			PayerContactID:        row.PayerContactID,
			Notes:                 row.Notes,
		}
	}
	diff, err := calculator.DiffAllocations(existing, inputs)
	if err != nil {
		return err
	}

	if err := r.deleteAllocations(ctx, sg, p, diff.Delete, aff); err != nil {
		return err
	}

	for _, m := range diff.Update {
		row := rowFor(m.Requested, requested)
		row.ID = m.Existing.ID
		if err := r.updateAllocation(ctx, sg, p, m.Existing, row, aff); err != nil {
			return err
		}
	}

	var inserts []*models.PaymentAllocation
	for _, in := range diff.Insert {
		row := rowFor(in, requested)
		row.ID = ""
		inserts = append(inserts, row)
	}
	return r.insertAllocations(ctx, sg, p, inserts, aff)
}

// rowFor finds the requested row an allocation input was built from.
func rowFor(in calculator.AllocationInput, requested []*models.PaymentAllocation) *models.PaymentAllocation {
	for _, row := range requested {
		if in.ID != "" && row.ID == in.ID {
			return row
		}
	}
	for _, row := range requested {
		if row.PledgeID == in.PledgeID && row.InstallmentScheduleID == in.InstallmentScheduleID {
			return row
		}
	}
	return nil
}

// Detach deletes every allocation of p and releases their installments. It is
// used when the payment itself is deleted.
func (r *Reconciler) Detach(ctx context.Context, sg *saga, p *models.Payment, allocs []*models.PaymentAllocation, aff *affected) error {
	return r.deleteAllocations(ctx, sg, p, allocs, aff)
}

func (r *Reconciler) insertAllocations(ctx context.Context, sg *saga, p *models.Payment, rows []*models.PaymentAllocation, aff *affected) error {
	for _, row := range rows {
		row.PaymentID = p.ID
		if err := r.store.CreateAllocation(ctx, row); err != nil {
			return apperr.Persistence("create allocation", err)
		}
		id := row.ID
		sg.record("payment_allocation", id, func(ctx context.Context) error {
			return r.store.DeleteAllocation(ctx, id)
		})
		aff.pledges.add(row.PledgeID)

		if row.InstallmentScheduleID != "" {
			if err := r.syncInstallment(ctx, sg, row.InstallmentScheduleID, p, aff); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Reconciler) updateAllocation(ctx context.Context, sg *saga, p *models.Payment, existing, row *models.PaymentAllocation, aff *affected) error {
	aff.pledges.add(existing.PledgeID, row.PledgeID)
	before := *existing

	if err := r.store.UpdateAllocation(ctx, row); err != nil {
		return apperr.Persistence("update allocation", err)
	}
	sg.record("payment_allocation", row.ID, func(ctx context.Context) error {
		restore := before
		return r.store.UpdateAllocation(ctx, &restore)
	})

	if before.InstallmentScheduleID != "" && before.InstallmentScheduleID != row.InstallmentScheduleID {
		if err := r.releaseInstallment(ctx, sg, before.InstallmentScheduleID, p.ID, aff); err != nil {
			return err
		}
	}
	if row.InstallmentScheduleID != "" {
		return r.syncInstallment(ctx, sg, row.InstallmentScheduleID, p, aff)
	}
	return nil
}

func (r *Reconciler) deleteAllocations(ctx context.Context, sg *saga, p *models.Payment, allocs []*models.PaymentAllocation, aff *affected) error {
	for _, a := range allocs {
		if err := r.store.DeleteAllocation(ctx, a.ID); err != nil {
			return apperr.Persistence("delete allocation", err)
		}
		restore := *a
		sg.record("payment_allocation", a.ID, func(ctx context.Context) error {
			again := restore
			return r.store.CreateAllocation(ctx, &again)
		})
		aff.pledges.add(a.PledgeID)

		if a.InstallmentScheduleID != "" {
			if err := r.releaseInstallment(ctx, sg, a.InstallmentScheduleID, p.ID, aff); err != nil {
				return err
			}
		}
	}
	return nil
}

// syncInstallment attaches an installment to p and sets its status from the
// payment status. A pending stub payment already attached to the installment
// is superseded and removed; a settled one is a conflict.
func (r *Reconciler) syncInstallment(ctx context.Context, sg *saga, installmentID string, p *models.Payment, aff *affected) error {
	inst, err := r.store.GetInstallment(ctx, installmentID)
	if err != nil {
		return loadErr("installment", installmentID, err)
	}
	if inst.Status == models.InstallmentCancelled {
		return apperr.Conflict("installmentScheduleId", "installment %s is cancelled", installmentID)
	}
	aff.plans.add(inst.PaymentPlanID)

	if inst.PaymentID != "" && inst.PaymentID != p.ID {
		if err := r.supersede(ctx, sg, inst); err != nil {
			return err
		}
	}

	before := *inst
	if !inst.ApplyPaymentStatus(p.ID, p.Status, p.PaymentDate) && inst.PaymentID == p.ID {
		return nil
	}
	inst.PaymentID = p.ID
	if err := r.store.UpdateInstallment(ctx, inst); err != nil {
		return apperr.Persistence("update installment", err)
	}
	sg.record("installment", inst.ID, func(ctx context.Context) error {
		restore := before
		return r.store.UpdateInstallment(ctx, &restore)
	})
	return nil
}

// supersede removes the pending stub currently attached to inst so another
// payment can claim it.
func (r *Reconciler) supersede(ctx context.Context, sg *saga, inst *models.InstallmentSchedule) error {
	current, err := r.store.GetPayment(ctx, inst.PaymentID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return apperr.Persistence("load installment payment", err)
	}
	if current.Status.Settles() {
		return apperr.Conflict("installmentScheduleId", "installment %s is already paid by payment %s",
			inst.ID, current.ID).WithDetail("payment_id", current.ID)
	}
	if current.Status != models.PaymentPending || current.InstallmentScheduleID != inst.ID {
		return nil
	}

	if err := r.store.DeletePayment(ctx, current.ID); err != nil {
		return apperr.Persistence("delete superseded payment", err)
	}
	restore := *current
	sg.record("payment", current.ID, func(ctx context.Context) error {
		again := restore
		return r.store.CreatePayment(ctx, &again)
	})
	r.logger.Debug("Superseded pending payment", "payment_id", current.ID, "installment_id", inst.ID)
	return nil
}

// releaseInstallment returns an installment held by paymentID to pending and
// gives it a fresh pending stub.
func (r *Reconciler) releaseInstallment(ctx context.Context, sg *saga, installmentID, paymentID string, aff *affected) error {
	return r.release(ctx, sg, installmentID, paymentID, true, aff)
}

// release returns an installment held by paymentID to pending. With restub set,
// an installment of a live plan is paired with a new pending payment.
func (r *Reconciler) release(ctx context.Context, sg *saga, installmentID, paymentID string, restub bool, aff *affected) error {
	inst, err := r.store.GetInstallment(ctx, installmentID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return apperr.Persistence("load installment", err)
	}
	aff.plans.add(inst.PaymentPlanID)
	if inst.PaymentID != "" && inst.PaymentID != paymentID {
		return nil
	}

	before := *inst
	if !inst.Release() {
		return nil
	}
	if err := r.store.UpdateInstallment(ctx, inst); err != nil {
		return apperr.Persistence("release installment", err)
	}
	sg.record("installment", inst.ID, func(ctx context.Context) error {
		restore := before
		return r.store.UpdateInstallment(ctx, &restore)
	})
	if !restub {
		return nil
	}
	return r.restub(ctx, sg, inst)
}

func (r *Reconciler) restub(ctx context.Context, sg *saga, inst *models.InstallmentSchedule) error {
	plan, err := r.store.GetPlan(ctx, inst.PaymentPlanID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return apperr.Persistence("load payment plan", err)
	}
	if plan.Deleted() || plan.PlanStatus == models.PlanCancelled {
		return nil
	}
	pledge, err := r.store.GetPledge(ctx, plan.PledgeID)
	if err != nil {
		return loadErr("pledge", plan.PledgeID, err)
	}

	stub, _ := r.sched.stub(ctx, plan, pledge, inst, r.sched.usdRateFor(inst.Currency, plan, pledge), creationTags)
	if err := r.store.CreatePayment(ctx, stub); err != nil {
		return apperr.Persistence("create pending payment", err)
	}
	stubID := stub.ID
	sg.record("payment", stubID, func(ctx context.Context) error {
		return r.store.DeletePayment(ctx, stubID)
	})

	released := *inst
	inst.PaymentID = stubID
	if err := r.store.UpdateInstallment(ctx, inst); err != nil {
		return apperr.Persistence("link installment to payment", err)
	}
	sg.record("installment", inst.ID, func(ctx context.Context) error {
		restore := released
		return r.store.UpdateInstallment(ctx, &restore)
	})
	r.logger.Debug("Recreated pending payment", "payment_id", stubID, "installment_id", inst.ID)
	return nil
}
