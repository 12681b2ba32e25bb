package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the processing state of a payment.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentCancelled  PaymentStatus = "cancelled"
	PaymentRefunded   PaymentStatus = "refunded"
	PaymentProcessing PaymentStatus = "processing"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentCancelled, PaymentRefunded, PaymentProcessing:
		return true
	}
	return false
}

// Settles reports whether a payment in this status counts toward paid totals.
func (s PaymentStatus) Settles() bool {
	return s == PaymentCompleted || s == PaymentProcessing
}

// Payment is a received or expected transfer of funds.
//
// A direct payment has PledgeID set and no allocations. A split payment has an
// empty PledgeID and one or more PaymentAllocation rows.
type Payment struct {
	// ID is the unique identifier for the payment (UUID format).
	ID string

	PledgeID              string
	PaymentPlanID         string
	InstallmentScheduleID string

	Amount   decimal.Decimal
	Currency string

	// AmountUSD is the reporting amount; null when no rate resolved.
	AmountUSD decimal.NullDecimal

	AmountInPledgeCurrency decimal.NullDecimal
	AmountInPlanCurrency   decimal.NullDecimal

	// ExchangeRate converts the payment currency to USD.
	ExchangeRate decimal.NullDecimal

	PledgeCurrencyExchangeRate decimal.NullDecimal
	PlanCurrencyExchangeRate   decimal.NullDecimal

	PaymentDate time.Time
	Status      PaymentStatus

	IsThirdParty   bool
	PayerContactID string

	Notes string

	CreatedAt int64
	UpdatedAt int64
}

// IsSplit reports whether the payment is divided across allocations.
func (p *Payment) IsSplit() bool {
	return p.PledgeID == ""
}

// PaymentAllocation is one slice of a split payment applied to one pledge.
type PaymentAllocation struct {
	// ID is the unique identifier for the allocation (UUID format).
	ID string

	PaymentID string
	PledgeID  string

	AllocatedAmount    decimal.Decimal
	AllocatedAmountUSD decimal.NullDecimal
	Currency           string

	InstallmentScheduleID string
	PayerContactID        string
	Notes                 string

	// PaymentStatus is the parent payment's status, populated on pledge-scoped reads.
	PaymentStatus PaymentStatus

	CreatedAt int64
	UpdatedAt int64
}
