// Package money provides cent-accurate arithmetic helpers on top of shopspring/decimal.
//
// Sums and validations run on integer cents; stored and displayed values are
// decimals with two fractional digits.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// DefaultToleranceCents is the allowed drift for single-amount comparisons.
	DefaultToleranceCents int64 = 1

	// AutoAdjustCents is the largest residual that is silently absorbed by nudging
	// the last custom installment.
	AutoAdjustCents int64 = 2
)

// ErrDivisionByZero is returned when a rate or count of zero is used as a divisor.
var ErrDivisionByZero = errors.New("division by zero")

var hundred = decimal.NewFromInt(100)

// ToCents converts d to integer cents, rounding half away from zero.
func ToCents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// FromCents converts integer cents to a two-digit decimal.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Round rounds d to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// DistributeCents splits totalCents into n buckets that sum exactly to the total.
// The first n - total%n buckets get floor(total/n); the remaining buckets get one
// extra cent, so earlier installments absorb the shortfall.
func DistributeCents(totalCents int64, n int) ([]int64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("bucket count must be positive, got %d", n)
	}
	if totalCents < 0 {
		return nil, fmt.Errorf("total must not be negative, got %d", totalCents)
	}

	count := int64(n)
	base := totalCents / count
	extra := totalCents % count

	buckets := make([]int64, n)
	for i := range buckets {
		buckets[i] = base
		if int64(i) >= count-extra {
			buckets[i]++
		}
	}
	return buckets, nil
}

// Distribute is DistributeCents over decimal amounts.
func Distribute(total decimal.Decimal, n int) ([]decimal.Decimal, error) {
	cents, err := DistributeCents(ToCents(total), n)
	if err != nil {
		return nil, err
	}
	out := make([]decimal.Decimal, len(cents))
	for i, c := range cents {
		out[i] = FromCents(c)
	}
	return out, nil
}

// WithinTolerance reports whether |a - b| <= toleranceCents.
func WithinTolerance(a, b, toleranceCents int64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= toleranceCents
}

// Equal reports whether two decimal amounts agree within toleranceCents.
func Equal(a, b decimal.Decimal, toleranceCents int64) bool {
	return WithinTolerance(ToCents(a), ToCents(b), toleranceCents)
}

// Sum adds amounts in cents and returns the exact decimal total.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	var cents int64
	for _, a := range amounts {
		cents += ToCents(a)
	}
	return FromCents(cents)
}

// Convert applies rate to amount and rounds to cents.
func Convert(amount, rate decimal.Decimal) decimal.Decimal {
	return Round(amount.Mul(rate))
}

// Invert returns 1/rate with 10 fractional digits.
func Invert(rate decimal.Decimal) (decimal.Decimal, error) {
	if rate.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	return decimal.NewFromInt(1).DivRound(rate, 10), nil
}

// ClampZero returns max(0, d).
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Null wraps d as a valid NullDecimal.
func Null(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
