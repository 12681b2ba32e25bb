package models

import "github.com/shopspring/decimal"

// USD is the reporting currency every amount is also expressed in.
const USD = "USD"

// Pledge represents a donor's promise to give a fixed amount in a given currency.
// Running totals are derived fields owned by the balance aggregator.
type Pledge struct {
	// ID is the unique identifier for the pledge (UUID format).
	ID string

	// ContactID is the donor (beneficiary) the pledge belongs to.
	ContactID string

	// OriginalAmount is the pledged amount in the pledge currency.
	OriginalAmount decimal.Decimal

	// Currency is the ISO code of the pledge currency.
	Currency string

	// ExchangeRate converts the pledge currency to USD, as known at pledge time.
	ExchangeRate decimal.NullDecimal

	// OriginalAmountUSD is the pledged amount in USD, when known.
	OriginalAmountUSD decimal.NullDecimal

	// TotalPaid is the sum of completed/processing payments and allocations, in pledge currency.
	TotalPaid decimal.Decimal

	// TotalPaidUSD is the USD equivalent of TotalPaid, over the rows whose USD value is known.
	TotalPaidUSD decimal.Decimal

	// Balance is max(0, OriginalAmount - TotalPaid).
	Balance decimal.Decimal

	// BalanceUSD is the USD balance; null when the pledge has no USD basis.
	BalanceUSD decimal.NullDecimal

	// USDIncomplete is set when at least one paid row had no resolvable pledge-currency
	// or USD value; such rows are left out of the totals.
	USDIncomplete bool

	// Description is a free-form label.
	Description string

	CreatedAt int64
	UpdatedAt int64
}

// Contact is the minimal view of a contact the engine needs for existence checks.
type Contact struct {
	ID        string
	Name      string
	CreatedAt int64
}
