package calculator

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmynk/pledgeledger/internal/apperr"
	"github.com/mmynk/pledgeledger/internal/models"
	"github.com/mmynk/pledgeledger/internal/money"
)

// AllocationInput is one requested slice of a split payment.
type AllocationInput struct {
	// ID identifies an existing allocation to update. Empty means match by
	// pledge and installment, or insert.
	ID string

	PledgeID              string
	Amount                decimal.Decimal
	Currency              string
	InstallmentScheduleID string
	PayerContactID        string
	Notes                 string
}

// ValidateSplit checks a requested allocation set against the payment amount.
// The allocated amounts must sum to paymentAmount within one cent; otherwise
// the error carries the discrepancy. An allocation may omit its currency but
// never name one other than the payment's.
func ValidateSplit(paymentAmount decimal.Decimal, currency string, allocs []AllocationInput) error {
	if len(allocs) == 0 {
		return apperr.Validation("allocations", "a split payment needs at least one allocation")
	}

	type slot struct{ pledge, installment string }
	seen := make(map[slot]bool, len(allocs))
	amounts := make([]decimal.Decimal, len(allocs))
	for i, a := range allocs {
		if a.PledgeID == "" {
			return apperr.Validation("allocations", "allocation %d: pledgeId is required", i+1)
		}
		if !a.Amount.IsPositive() {
			return apperr.Validation("allocations", "allocation %d: amount must be positive, got %s", i+1, a.Amount)
		}
		if !SameCurrency(a.Currency, currency) {
			return apperr.Validation("allocations", "allocation %d: currency %s differs from payment currency %s",
				i+1, a.Currency, currency)
		}
		key := slot{a.PledgeID, a.InstallmentScheduleID}
		if seen[key] {
			return apperr.Validation("allocations", "allocation %d duplicates pledge %s", i+1, a.PledgeID)
		}
		seen[key] = true
		amounts[i] = a.Amount
	}

	sum := money.Sum(amounts...)
	if !money.Equal(sum, paymentAmount, money.DefaultToleranceCents) {
		return apperr.Validation("allocations", "allocations sum to %s but payment amount is %s",
			sum.StringFixed(2), money.Round(paymentAmount).StringFixed(2)).
			WithDetail("payment_amount", money.Round(paymentAmount).StringFixed(2)).
			WithDetail("allocated_total", sum.StringFixed(2)).
			WithDetail("discrepancy", money.Round(paymentAmount).Sub(sum).StringFixed(2))
	}
	return nil
}

// AllocationMatch pairs an existing allocation with its requested replacement.
type AllocationMatch struct {
	Existing  *models.PaymentAllocation
	Requested AllocationInput
}

// AllocationDiff is the set of changes turning existing allocations into the
// requested ones.
type AllocationDiff struct {
	Update []AllocationMatch
	Insert []AllocationInput
	Delete []*models.PaymentAllocation
}

// Empty reports whether the diff changes nothing structurally.
func (d AllocationDiff) Empty() bool {
	return len(d.Insert) == 0 && len(d.Delete) == 0
}

// DiffAllocations matches requested allocations to existing ones, first by id
// and then by (pledge, installment). Requests that match nothing are inserted;
// existing rows left unmatched are deleted. Applying the same request twice
// yields an update-only diff.
func DiffAllocations(existing []*models.PaymentAllocation, requested []AllocationInput) (AllocationDiff, error) {
	var diff AllocationDiff

	byID := make(map[string]*models.PaymentAllocation, len(existing))
	for _, e := range existing {
		byID[e.ID] = e
	}
	matched := make(map[string]bool, len(existing))

	var unmatched []AllocationInput
	for _, r := range requested {
		if r.ID == "" {
			unmatched = append(unmatched, r)
			continue
		}
		e, ok := byID[r.ID]
		if !ok {
			return AllocationDiff{}, apperr.Validation("allocations", "allocation %s does not belong to this payment", r.ID)
		}
		if matched[e.ID] {
			return AllocationDiff{}, apperr.Validation("allocations", "allocation %s requested twice", r.ID)
		}
		matched[e.ID] = true
		diff.Update = append(diff.Update, AllocationMatch{Existing: e, Requested: r})
	}

	for _, r := range unmatched {
		var found *models.PaymentAllocation
		for _, e := range existing {
			if matched[e.ID] {
				continue
			}
			if e.PledgeID == r.PledgeID && e.InstallmentScheduleID == r.InstallmentScheduleID {
				found = e
				break
			}
		}
		if found == nil {
			diff.Insert = append(diff.Insert, r)
			continue
		}
		matched[found.ID] = true
		r.ID = found.ID
		diff.Update = append(diff.Update, AllocationMatch{Existing: found, Requested: r})
	}

	for _, e := range existing {
		if !matched[e.ID] {
			diff.Delete = append(diff.Delete, e)
		}
	}
	return diff, nil
}

// ScaleSingle rescales a lone existing allocation to a new payment amount. It is
// used when a split payment's amount changes without new allocations.
func ScaleSingle(existing []*models.PaymentAllocation, amount decimal.Decimal) ([]AllocationInput, error) {
	if len(existing) != 1 {
		return nil, apperr.Validation("allocations",
			"payment is split across %d pledges; supply allocations when changing its amount", len(existing))
	}
	e := existing[0]
	return []AllocationInput{{
		ID:                    e.ID,
		PledgeID:              e.PledgeID,
		Amount:                money.Round(amount),
		Currency:              e.Currency,
		InstallmentScheduleID: e.InstallmentScheduleID,
		PayerContactID:        e.PayerContactID,
		Notes:                 e.Notes,
	}}, nil
}

// SameCurrency reports whether item, when set, names the same currency as want.
func SameCurrency(item, want string) bool {
	item = strings.TrimSpace(item)
	return item == "" || strings.EqualFold(item, strings.TrimSpace(want))
}
