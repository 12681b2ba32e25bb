package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/pledgeledger/internal/apperr"
	"github.com/mmynk/pledgeledger/internal/calculator"
	"github.com/mmynk/pledgeledger/internal/models"
)

// ScheduleRequest describes the installments to generate for a plan.
type ScheduleRequest struct {
	Distribution models.DistributionType
	Frequency    models.Frequency
	Total        decimal.Decimal

	// Fixed distribution.
	Count             int
	InstallmentAmount decimal.NullDecimal
	StartDate         time.Time

	// Custom distribution.
	Custom []calculator.CustomItem
}

// ScheduledInstallment is a generated installment paired with its pending
// payment stub. Neither is persisted yet.
type ScheduledInstallment struct {
	Installment *models.InstallmentSchedule
	Payment     *models.Payment

	conversions []taggedConversion
}

// Scheduler expands plans into dated installments with currency equivalents.
type Scheduler struct {
	conv *converter
	cfg  Config
}

// Generate builds the installments and pending payments for plan. The plan's
// currency, rate and third-party attribution must already be set; the plan and
// pledge IDs are copied onto the stubs.
func (s *Scheduler) Generate(ctx context.Context, plan *models.PaymentPlan, pledge *models.Pledge, req ScheduleRequest) ([]ScheduledInstallment, error) {
	return s.generate(ctx, plan, pledge, req, creationTags)
}

func (s *Scheduler) generate(ctx context.Context, plan *models.PaymentPlan, pledge *models.Pledge, req ScheduleRequest, tags conversionTags) ([]ScheduledInstallment, error) {
	var items []calculator.Installment
	var err error

	switch req.Distribution {
	case models.DistributionFixed:
		items, err = calculator.FixedSchedule(calculator.FixedInput{
			Total:             req.Total,
			Count:             req.Count,
			StartDate:         req.StartDate,
			Frequency:         req.Frequency,
			InstallmentAmount: req.InstallmentAmount,
		})
	case models.DistributionCustom:
		if !req.Frequency.Valid() {
			return nil, apperr.Validation("frequency", "unknown frequency %q", req.Frequency)
		}
		items, err = calculator.CustomSchedule(calculator.CustomInput{
			Total:           req.Total,
			Items:           req.Custom,
			Currency:        plan.Currency,
			Now:             s.cfg.Now(),
			MaxPastSkew:     s.cfg.MaxPastSkew,
			AutoAdjustCents: s.cfg.AutoAdjustCents,
		})
	default:
		return nil, apperr.Validation("distributionType", "unknown distribution type %q", req.Distribution)
	}
	if err != nil {
		return nil, err
	}

	out := make([]ScheduledInstallment, 0, len(items))
	for _, item := range items {
		currency := plan.Currency
		inst := &models.InstallmentSchedule{
			PaymentPlanID:     plan.ID,
			InstallmentDate:   item.Date,
			InstallmentAmount: item.Amount,
			Currency:          currency,
			Status:            models.InstallmentPending,
			Notes:             item.Notes,
		}
		usdRate := s.usdRateFor(currency, plan, pledge)
		inst.InstallmentAmountUSD = s.conv.toUSD(ctx, item.Amount, currency, item.Date, usdRate)

		stub, convs := s.stub(ctx, plan, pledge, inst, usdRate, tags)

		out = append(out, ScheduledInstallment{Installment: inst, Payment: stub, conversions: convs})
	}
	return out, nil
}

// stub builds the pending payment that stands for inst until a real payment
// claims it, with its currency equivalents filled in.
func (s *Scheduler) stub(ctx context.Context, plan *models.PaymentPlan, pledge *models.Pledge, inst *models.InstallmentSchedule, usdRate decimal.NullDecimal, tags conversionTags) (*models.Payment, []taggedConversion) {
	p := &models.Payment{
		PledgeID:              pledge.ID,
		PaymentPlanID:         plan.ID,
		InstallmentScheduleID: inst.ID,
		Amount:                inst.InstallmentAmount,
		Currency:              inst.Currency,
		ExchangeRate:          usdRate,
		PaymentDate:           inst.InstallmentDate,
		Status:                models.PaymentPending,
		IsThirdParty:          plan.IsThirdParty,
		PayerContactID:        plan.PayerContactID,
		Notes:                 inst.Notes,
	}
	convs := s.conv.convertPayment(ctx, p, paymentTargets{
		pledgeCurrency: pledge.Currency,
		pledgeRate:     pledge.ExchangeRate,
		planCurrency:   plan.Currency,
	}, tags)
	return p, convs
}

// usdRateFor returns the recorded USD rate applicable to currency: the plan's
// override for the plan currency, else the pledge's rate for the pledge currency.
func (s *Scheduler) usdRateFor(currency string, plan *models.PaymentPlan, pledge *models.Pledge) decimal.NullDecimal {
	if currency == plan.Currency && plan.ExchangeRate.Valid {
		return plan.ExchangeRate
	}
	if currency == pledge.Currency && pledge.ExchangeRate.Valid {
		return pledge.ExchangeRate
	}
	return decimal.NullDecimal{}
}

// planSummary derives the plan-level schedule fields from generated installments.
func planSummary(scheduled []ScheduledInstallment) (first decimal.Decimal, end *time.Time) {
	items := make([]calculator.Installment, len(scheduled))
	for i, s := range scheduled {
		items[i] = calculator.Installment{Date: s.Installment.InstallmentDate, Amount: s.Installment.InstallmentAmount}
	}
	if len(items) > 0 {
		first = items[0].Amount
	}
	return first, calculator.EndDate(items)
}
