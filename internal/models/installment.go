package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InstallmentStatus is the state of one scheduled installment.
type InstallmentStatus string

const (
	InstallmentPending   InstallmentStatus = "pending"
	InstallmentPaid      InstallmentStatus = "paid"
	InstallmentOverdue   InstallmentStatus = "overdue"
	InstallmentCancelled InstallmentStatus = "cancelled"
)

// InstallmentSchedule is one dated, amount-bearing obligation within a plan.
//
// Transitions:
//
//	pending -> paid        payment completed or processing
//	paid    -> pending     payment degraded, deleted or deallocated
//	*       -> cancelled   plan restructured or cancelled (terminal)
type InstallmentSchedule struct {
	// ID is the unique identifier for the installment (UUID format).
	ID string

	PaymentPlanID string

	InstallmentDate   time.Time
	InstallmentAmount decimal.Decimal

	// Currency is the installment currency; usually the plan currency.
	Currency string

	// InstallmentAmountUSD is null when no USD rate could be resolved.
	InstallmentAmountUSD decimal.NullDecimal

	Status   InstallmentStatus
	PaidDate *time.Time

	// PaymentID back-references the payment covering this installment, if any.
	PaymentID string

	Notes string

	CreatedAt int64
	UpdatedAt int64
}

// ApplyPaymentStatus moves the installment to the state implied by the status of
// the payment covering it. It reports whether anything changed.
func (s *InstallmentSchedule) ApplyPaymentStatus(paymentID string, status PaymentStatus, paidOn time.Time) bool {
	if s.Status == InstallmentCancelled {
		return false
	}
	if status.Settles() {
		day := DateOf(paidOn)
		if s.Status == InstallmentPaid && s.PaymentID == paymentID && s.PaidDate != nil && s.PaidDate.Equal(day) {
			return false
		}
		s.Status = InstallmentPaid
		s.PaidDate = &day
		s.PaymentID = paymentID
		return true
	}
	if s.Status == InstallmentPaid {
		s.Status = InstallmentPending
		s.PaidDate = nil
		return true
	}
	return false
}

// Release detaches the installment from its payment and reopens it.
func (s *InstallmentSchedule) Release() bool {
	if s.Status == InstallmentCancelled {
		return false
	}
	if s.Status == InstallmentPending && s.PaidDate == nil && s.PaymentID == "" {
		return false
	}
	s.Status = InstallmentPending
	s.PaidDate = nil
	s.PaymentID = ""
	return true
}

// Cancel moves the installment to the terminal cancelled state.
func (s *InstallmentSchedule) Cancel() bool {
	if s.Status == InstallmentCancelled {
		return false
	}
	s.Status = InstallmentCancelled
	s.PaidDate = nil
	s.PaymentID = ""
	return true
}
