// Package models defines the core domain models for pledgeledger.
//
// # Models
//
//   - Pledge: a donor's commitment to give a fixed amount in one currency
//   - PaymentPlan: a schedule for fulfilling exactly one pledge
//   - InstallmentSchedule: one dated obligation within a plan
//   - Payment: a received or expected transfer of funds
//   - PaymentAllocation: one slice of a split payment applied to one pledge
//   - ExchangeRate: a dated, directional conversion rate
//   - ConversionLog: audit entry for a conversion applied to a payment
//   - Contact: a person who pledges or pays (existence checks only)
//
// # Conventions
//
// 1. **Money is decimal**: amounts use shopspring/decimal and are rounded to cents
// 2. **Nullable money is NullDecimal**: a conversion that could not be resolved is stored as null, never guessed
// 3. **IDs are strings**: relationships use ID strings, an empty string means "no reference"
// 4. **Dates are calendar days**: date-only fields are normalized to UTC midnight with DateOf
package models

import "time"

// DateFormat is the layout used for date-only fields in storage and on the wire.
const DateFormat = "2006-01-02"

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a UTC calendar day.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateFormat, s, time.UTC)
}
