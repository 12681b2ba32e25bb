package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is how often installments of a plan fall due.
type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyBiannual  Frequency = "biannual"
	FrequencyAnnual    Frequency = "annual"
	FrequencyOneTime   Frequency = "one_time"
	FrequencyCustom    Frequency = "custom"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyBiannual,
		FrequencyAnnual, FrequencyOneTime, FrequencyCustom:
		return true
	}
	return false
}

// DistributionType selects how a plan total is spread across installments.
type DistributionType string

const (
	// DistributionFixed spreads the total evenly, cent-exact.
	DistributionFixed DistributionType = "fixed"
	// DistributionCustom uses caller-supplied per-installment amounts.
	DistributionCustom DistributionType = "custom"
)

// Valid reports whether d is a known distribution type.
func (d DistributionType) Valid() bool {
	return d == DistributionFixed || d == DistributionCustom
}

// PlanStatus is the lifecycle state of a payment plan.
type PlanStatus string

const (
	PlanActive    PlanStatus = "active"
	PlanCompleted PlanStatus = "completed"
	PlanCancelled PlanStatus = "cancelled"
	PlanPaused    PlanStatus = "paused"
	PlanOverdue   PlanStatus = "overdue"
)

// Valid reports whether s is a known plan status.
func (s PlanStatus) Valid() bool {
	switch s {
	case PlanActive, PlanCompleted, PlanCancelled, PlanPaused, PlanOverdue:
		return true
	}
	return false
}

// PaymentPlan is a schedule for fulfilling exactly one pledge via installments.
type PaymentPlan struct {
	// ID is the unique identifier for the plan (UUID format).
	ID string

	// PledgeID is the pledge this plan pays down.
	PledgeID string

	Frequency        Frequency
	DistributionType DistributionType

	// TotalPlannedAmount is the sum the plan schedules, in the plan currency.
	TotalPlannedAmount decimal.Decimal

	// TotalPlannedAmountUSD is the planned total in USD; null when no rate resolved.
	TotalPlannedAmountUSD decimal.NullDecimal

	// Currency is the plan currency. Defaults to the pledge currency.
	Currency string

	// ExchangeRate is an optional caller-supplied plan-currency→USD override.
	ExchangeRate decimal.NullDecimal

	// InstallmentAmount is the nominal per-installment amount. For fixed plans
	// individual installments may differ from it by one cent.
	InstallmentAmount decimal.Decimal

	NumberOfInstallments int

	StartDate       time.Time
	EndDate         *time.Time
	NextPaymentDate *time.Time

	// Derived totals, owned by the balance aggregator.
	InstallmentsPaid   int
	TotalPaid          decimal.Decimal
	TotalPaidUSD       decimal.Decimal
	RemainingAmount    decimal.Decimal
	RemainingAmountUSD decimal.NullDecimal
	USDIncomplete      bool

	PlanStatus PlanStatus

	// IsThirdParty marks plans paid by someone other than the pledge's donor.
	IsThirdParty   bool
	PayerContactID string

	Notes string

	// DeletedAt is set when the plan is soft-deleted.
	DeletedAt *time.Time

	CreatedAt int64
	UpdatedAt int64
}

// Deleted reports whether the plan has been soft-deleted.
func (p *PaymentPlan) Deleted() bool {
	return p.DeletedAt != nil
}

// Open reports whether the plan still schedules future installments.
func (p *PaymentPlan) Open() bool {
	return !p.Deleted() && (p.PlanStatus == PlanActive || p.PlanStatus == PlanPaused || p.PlanStatus == PlanOverdue)
}
