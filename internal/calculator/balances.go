package calculator

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/pledgeledger/internal/models"
	"github.com/mmynk/pledgeledger/internal/money"
)

// PledgeTotals are the derived fields of a pledge.
type PledgeTotals struct {
	TotalPaid     decimal.Decimal
	TotalPaidUSD  decimal.Decimal
	Balance       decimal.Decimal
	BalanceUSD    decimal.NullDecimal
	USDIncomplete bool // some settled row had no derivable pledge-currency or USD amount
}

// CalculatePledgeTotals sums the settled direct payments and allocations of a
// pledge.
//
// Algorithm:
//   - pledge-currency amount per row: the recorded one, else the raw amount when
//     the row is in the pledge currency, else the USD amount divided by the
//     pledge rate; otherwise the row is left out of the paid sum
//   - USD per row: recorded USD amount, else the raw amount when it is already
//     USD, else the pledge-currency amount converted with the pledge rate;
//     otherwise the row is left out of the USD sum
//   - any row left out flags the result incomplete
//   - balance = max(0, original - paid), USD analogous
//
// A foreign amount is never counted as if it were in the pledge currency or USD.
func CalculatePledgeTotals(pledge *models.Pledge, payments []*models.Payment, allocs []*models.PaymentAllocation) PledgeTotals {
	var paid, paidUSD int64
	incomplete := false

	add := func(r row) {
		amount, ok := r.in(pledge.Currency, pledge.ExchangeRate)
		if ok {
			paid += money.ToCents(amount)
		} else {
			incomplete = true
		}
		usd, ok := r.usd(pledge.Currency, pledge.ExchangeRate, amount, ok)
		if !ok {
			incomplete = true
			return
		}
		paidUSD += money.ToCents(usd)
	}

	for _, p := range payments {
		if !p.Status.Settles() || p.PledgeID != pledge.ID {
			continue
		}
		add(row{amount: p.Amount, currency: p.Currency, converted: p.AmountInPledgeCurrency, recordedUSD: p.AmountUSD})
	}

	for _, a := range allocs {
		if !a.PaymentStatus.Settles() || a.PledgeID != pledge.ID {
			continue
		}
		add(row{amount: a.AllocatedAmount, currency: a.Currency, recordedUSD: a.AllocatedAmountUSD})
	}

	totals := PledgeTotals{
		TotalPaid:     money.FromCents(paid),
		TotalPaidUSD:  money.FromCents(paidUSD),
		USDIncomplete: incomplete,
	}
	totals.Balance = money.ClampZero(money.Round(pledge.OriginalAmount).Sub(totals.TotalPaid))

	switch {
	case pledge.OriginalAmountUSD.Valid:
		totals.BalanceUSD = money.Null(money.ClampZero(money.Round(pledge.OriginalAmountUSD.Decimal).Sub(totals.TotalPaidUSD)))
	case pledge.Currency == models.USD:
		totals.BalanceUSD = money.Null(money.ClampZero(money.Round(pledge.OriginalAmount).Sub(totals.TotalPaidUSD)))
	}
	return totals
}

// row is one settled contribution as seen from a target currency (the pledge's
// or the plan's).
type row struct {
	amount      decimal.Decimal
	currency    string
	converted   decimal.NullDecimal // amount already expressed in the target currency
	recordedUSD decimal.NullDecimal
}

// in returns the row's amount in target, or false when it cannot be derived.
func (r row) in(target string, rate decimal.NullDecimal) (decimal.Decimal, bool) {
	switch {
	case r.converted.Valid:
		return r.converted.Decimal, true
	case r.currency == target:
		return r.amount, true
	case r.recordedUSD.Valid && target == models.USD:
		return r.recordedUSD.Decimal, true
	case r.recordedUSD.Valid && rate.Valid && rate.Decimal.IsPositive():
		return money.Round(r.recordedUSD.Decimal.Div(rate.Decimal)), true
	}
	return decimal.Zero, false
}

// usd returns the row's USD amount. inTarget is the row's amount in target
// when known is true.
func (r row) usd(target string, rate decimal.NullDecimal, inTarget decimal.Decimal, known bool) (decimal.Decimal, bool) {
	switch {
	case r.recordedUSD.Valid:
		return r.recordedUSD.Decimal, true
	case r.currency == models.USD:
		return r.amount, true
	case known && target == models.USD:
		return inTarget, true
	case known && rate.Valid:
		return money.Convert(inTarget, rate.Decimal), true
	}
	return decimal.Zero, false
}

// PlanTotals are the derived fields of a payment plan.
type PlanTotals struct {
	TotalPaid          decimal.Decimal
	TotalPaidUSD       decimal.Decimal
	InstallmentsPaid   int
	RemainingAmount    decimal.Decimal
	RemainingAmountUSD decimal.NullDecimal
	USDIncomplete      bool
	NextPaymentDate    *time.Time
	Status             models.PlanStatus
}

// CalculatePlanTotals sums the settled payments of a plan. The USD remainder is
// the plan's planned USD total minus the USD paid, each independent of the
// pledge currency.
//
// Status follows the totals: an active or overdue plan with nothing remaining
// completes, and a completed plan that owes again reopens as active. Cancelled
// and paused plans keep their status.
func CalculatePlanTotals(plan *models.PaymentPlan, payments []*models.Payment, installments []*models.InstallmentSchedule) PlanTotals {
	var paid, paidUSD int64
	count := 0
	incomplete := false

	for _, p := range payments {
		if !p.Status.Settles() || p.PaymentPlanID != plan.ID {
			continue
		}
		count++
		r := row{amount: p.Amount, currency: p.Currency, converted: p.AmountInPlanCurrency, recordedUSD: p.AmountUSD}
		amount, known := r.in(plan.Currency, plan.ExchangeRate)
		if known {
			paid += money.ToCents(amount)
		} else {
			incomplete = true
		}
		usd, ok := r.usd(plan.Currency, plan.ExchangeRate, amount, known)
		if !ok {
			incomplete = true
			continue
		}
		paidUSD += money.ToCents(usd)
	}

	totals := PlanTotals{
		TotalPaid:        money.FromCents(paid),
		TotalPaidUSD:     money.FromCents(paidUSD),
		InstallmentsPaid: count,
		USDIncomplete:    incomplete,
		Status:           plan.PlanStatus,
	}
	totals.RemainingAmount = money.ClampZero(money.Round(plan.TotalPlannedAmount).Sub(totals.TotalPaid))
	if plan.TotalPlannedAmountUSD.Valid {
		totals.RemainingAmountUSD = money.Null(money.ClampZero(money.Round(plan.TotalPlannedAmountUSD.Decimal).Sub(totals.TotalPaidUSD)))
	}

	for _, inst := range installments {
		if inst.Status != models.InstallmentPending && inst.Status != models.InstallmentOverdue {
			continue
		}
		if totals.NextPaymentDate == nil || inst.InstallmentDate.Before(*totals.NextPaymentDate) {
			d := inst.InstallmentDate
			totals.NextPaymentDate = &d
		}
	}

	switch plan.PlanStatus {
	case models.PlanActive, models.PlanOverdue:
		if totals.RemainingAmount.IsZero() {
			totals.Status = models.PlanCompleted
		}
	case models.PlanCompleted:
		if totals.RemainingAmount.IsPositive() {
			totals.Status = models.PlanActive
		}
	}
	return totals
}

// ApplyPledgeTotals copies totals onto pledge and reports whether anything changed.
func ApplyPledgeTotals(pledge *models.Pledge, t PledgeTotals) bool {
	changed := !pledge.TotalPaid.Equal(t.TotalPaid) ||
		!pledge.TotalPaidUSD.Equal(t.TotalPaidUSD) ||
		!pledge.Balance.Equal(t.Balance) ||
		!nullEqual(pledge.BalanceUSD, t.BalanceUSD) ||
		pledge.USDIncomplete != t.USDIncomplete

	pledge.TotalPaid = t.TotalPaid
	pledge.TotalPaidUSD = t.TotalPaidUSD
	pledge.Balance = t.Balance
	pledge.BalanceUSD = t.BalanceUSD
	pledge.USDIncomplete = t.USDIncomplete
	return changed
}

// ApplyPlanTotals copies totals onto plan and reports whether anything changed.
func ApplyPlanTotals(plan *models.PaymentPlan, t PlanTotals) bool {
	changed := !plan.TotalPaid.Equal(t.TotalPaid) ||
		!plan.TotalPaidUSD.Equal(t.TotalPaidUSD) ||
		plan.InstallmentsPaid != t.InstallmentsPaid ||
		!plan.RemainingAmount.Equal(t.RemainingAmount) ||
		!nullEqual(plan.RemainingAmountUSD, t.RemainingAmountUSD) ||
		plan.USDIncomplete != t.USDIncomplete ||
		!datePtrEqual(plan.NextPaymentDate, t.NextPaymentDate) ||
		plan.PlanStatus != t.Status

	plan.TotalPaid = t.TotalPaid
	plan.TotalPaidUSD = t.TotalPaidUSD
	plan.InstallmentsPaid = t.InstallmentsPaid
	plan.RemainingAmount = t.RemainingAmount
	plan.RemainingAmountUSD = t.RemainingAmountUSD
	plan.USDIncomplete = t.USDIncomplete
	plan.NextPaymentDate = t.NextPaymentDate
	plan.PlanStatus = t.Status
	return changed
}

func nullEqual(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}

func datePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
