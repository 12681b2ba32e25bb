package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/pledgeledger/internal/fx"
	"github.com/mmynk/pledgeledger/internal/models"
	"github.com/mmynk/pledgeledger/internal/money"
	"github.com/mmynk/pledgeledger/internal/storage"
)

// conversionTags selects the audit tags for a payment's three conversions.
type conversionTags struct {
	usd, pledge, plan models.ConversionType
}

var (
	creationTags   = conversionTags{models.ConversionUSDReporting, models.ConversionPledgeBalance, models.ConversionPlanTracking}
	planUpdateTags = conversionTags{models.ConversionPlanUpdateUSD, models.ConversionPlanUpdatePledge, models.ConversionPlanUpdatePlan}
)

// taggedConversion is a conversion waiting to be written to the audit log.
type taggedConversion struct {
	fx.Conversion
	kind models.ConversionType
}

// converter applies the rate resolver to engine entities and records the
// nontrivial conversions in the audit sink.
type converter struct {
	rates  *fx.Resolver
	sink   storage.ConversionLogStore
	logger *slog.Logger
}

// paymentTargets names the currencies a payment is expressed in besides its own.
type paymentTargets struct {
	pledgeCurrency string
	pledgeRate     decimal.NullDecimal // pledge currency to USD
	planCurrency   string              // empty when the payment has no plan
}

// convertPayment fills the USD, pledge-currency and plan-currency amounts of p.
// Caller-supplied rates already on p are honoured. Unresolvable amounts are
// left null.
func (c *converter) convertPayment(ctx context.Context, p *models.Payment, t paymentTargets, tags conversionTags) []taggedConversion {
	var out []taggedConversion
	date := p.PaymentDate

	pledge := fx.Conversion{}
	if t.pledgeCurrency != "" {
		pledge = c.convert(ctx, p.Amount, p.Currency, t.pledgeCurrency, date, p.PledgeCurrencyExchangeRate)
		p.AmountInPledgeCurrency = pledge.Amount
		p.PledgeCurrencyExchangeRate = pledge.Rate
		out = append(out, taggedConversion{pledge, tags.pledge})
	} else {
		p.AmountInPledgeCurrency = decimal.NullDecimal{}
	}

	usd := c.rates.Convert(ctx, p.Amount, p.Currency, models.USD, date, p.ExchangeRate)
	if !usd.Resolved() && pledge.Resolved() && t.pledgeRate.Valid {
		// Fall back to the pledge's recorded rate through the pledge-currency amount.
		amount := money.Convert(pledge.Amount.Decimal, t.pledgeRate.Decimal)
		usd.Amount = money.Null(amount)
		if !p.Amount.IsZero() {
			usd.Rate = money.Null(amount.DivRound(p.Amount, 10))
		}
		usd.Source = fx.SourceProvided
	}
	p.AmountUSD = usd.Amount
	p.ExchangeRate = usd.Rate
	out = append(out, taggedConversion{usd, tags.usd})

	if t.planCurrency != "" {
		plan := c.convert(ctx, p.Amount, p.Currency, t.planCurrency, date, p.PlanCurrencyExchangeRate)
		p.AmountInPlanCurrency = plan.Amount
		p.PlanCurrencyExchangeRate = plan.Rate
		out = append(out, taggedConversion{plan, tags.plan})
	} else {
		p.AmountInPlanCurrency = decimal.NullDecimal{}
		p.PlanCurrencyExchangeRate = decimal.NullDecimal{}
	}
	return out
}

// convert resolves a pair, composing USD legs when neither direction is stored.
func (c *converter) convert(ctx context.Context, amount decimal.Decimal, from, to string, date time.Time, provided decimal.NullDecimal) fx.Conversion {
	conv := c.rates.Convert(ctx, amount, from, to, date, provided)
	if conv.Resolved() {
		return conv
	}
	return c.rates.ConvertCross(ctx, amount, from, to, date)
}

// toUSD converts amount to USD, using provided as the rate when set.
func (c *converter) toUSD(ctx context.Context, amount decimal.Decimal, currency string, date time.Time, provided decimal.NullDecimal) decimal.NullDecimal {
	return c.rates.Convert(ctx, amount, currency, models.USD, date, provided).Amount
}

// log appends the nontrivial conversions of a payment to the audit sink. Sink
// failures are logged and otherwise ignored.
func (c *converter) log(ctx context.Context, paymentID string, date time.Time, convs []taggedConversion) {
	for _, conv := range convs {
		if !conv.Nontrivial() {
			continue
		}
		entry := &models.ConversionLog{
			PaymentID:      paymentID,
			FromCurrency:   conv.From,
			ToCurrency:     conv.To,
			FromAmount:     conv.Input,
			ToAmount:       conv.Amount.Decimal,
			ExchangeRate:   conv.Rate.Decimal,
			ConversionDate: models.DateOf(date),
			ConversionType: conv.kind,
		}
		if err := c.sink.AppendConversionLog(ctx, entry); err != nil {
			c.logger.Warn("Failed to record currency conversion",
				"payment_id", paymentID, "type", conv.kind, "error", err)
		}
	}
}
