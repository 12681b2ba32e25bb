package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRate is a dated, directional conversion rate: 1 Base = Rate Target.
type ExchangeRate struct {
	ID             string
	BaseCurrency   string
	TargetCurrency string
	Rate           decimal.Decimal
	Date           time.Time
	UpdatedAt      int64
}

// ConversionType tags why a conversion was applied to a payment.
type ConversionType string

const (
	ConversionUSDReporting     ConversionType = "usd_reporting"
	ConversionPledgeBalance    ConversionType = "pledge_balance"
	ConversionPlanTracking     ConversionType = "plan_tracking"
	ConversionPlanUpdateUSD    ConversionType = "plan_update_usd"
	ConversionPlanUpdatePledge ConversionType = "plan_update_pledge"
	ConversionPlanUpdatePlan   ConversionType = "plan_update_plan"
)

// ConversionLog is an append-only audit entry for a conversion applied to a payment.
type ConversionLog struct {
	ID             string
	PaymentID      string
	FromCurrency   string
	ToCurrency     string
	FromAmount     decimal.Decimal
	ToAmount       decimal.Decimal
	ExchangeRate   decimal.Decimal
	ConversionDate time.Time
	ConversionType ConversionType
	CreatedAt      int64
}
