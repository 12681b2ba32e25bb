package fx

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/pledgeledger/internal/money"
)

// Conversion is an amount converted with a resolved rate. Amount and Rate are
// null when no rate could be resolved.
type Conversion struct {
	From   string
	To     string
	Input  decimal.Decimal
	Amount decimal.NullDecimal
	Rate   decimal.NullDecimal
	Source Source
}

// Resolved reports whether a rate was found.
func (c Conversion) Resolved() bool {
	return c.Amount.Valid
}

// Nontrivial reports whether a real conversion (not identity) was applied.
func (c Conversion) Nontrivial() bool {
	return c.Resolved() && c.Source != SourceIdentity
}

// Convert converts amount from one currency to another using Resolve.
func (r *Resolver) Convert(ctx context.Context, amount decimal.Decimal, from, to string, date time.Time, provided decimal.NullDecimal) Conversion {
	c := Conversion{From: NormalizeCurrency(from), To: NormalizeCurrency(to), Input: amount}
	rate, err := r.Resolve(ctx, from, to, date, provided)
	if err != nil {
		return c
	}
	return c.apply(rate)
}

// ConvertCross converts amount using CrossRate, so a USD leg may be composed.
func (r *Resolver) ConvertCross(ctx context.Context, amount decimal.Decimal, from, to string, date time.Time) Conversion {
	c := Conversion{From: NormalizeCurrency(from), To: NormalizeCurrency(to), Input: amount}
	rate, err := r.CrossRate(ctx, from, to, date)
	if err != nil {
		return c
	}
	return c.apply(rate)
}

func (c Conversion) apply(rate Rate) Conversion {
	c.Amount = money.Null(money.Convert(c.Input, rate.Value))
	c.Rate = money.Null(rate.Value)
	c.Source = rate.Source
	return c
}
