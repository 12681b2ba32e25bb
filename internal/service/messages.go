package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/pledgeledger/internal/apperr"
	"github.com/mmynk/pledgeledger/internal/calculator"
	"github.com/mmynk/pledgeledger/internal/models"
)

// Wire messages. Amounts are decimal strings and dates are YYYY-MM-DD.

type Pledge struct {
	ID                string `json:"id"`
	ContactID         string `json:"contactId"`
	OriginalAmount    string `json:"originalAmount"`
	Currency          string `json:"currency"`
	ExchangeRate      string `json:"exchangeRate,omitempty"`
	OriginalAmountUSD string `json:"originalAmountUsd,omitempty"`
	TotalPaid         string `json:"totalPaid"`
	TotalPaidUSD      string `json:"totalPaidUsd"`
	Balance           string `json:"balance"`
	BalanceUSD        string `json:"balanceUsd,omitempty"`
	USDIncomplete     bool   `json:"usdIncomplete,omitempty"`
	Description       string `json:"description,omitempty"`
}

type Plan struct {
	ID                    string `json:"id"`
	PledgeID              string `json:"pledgeId"`
	Frequency             string `json:"frequency"`
	DistributionType      string `json:"distributionType"`
	TotalPlannedAmount    string `json:"totalPlannedAmount"`
	TotalPlannedAmountUSD string `json:"totalPlannedAmountUsd,omitempty"`
	Currency              string `json:"currency"`
	ExchangeRate          string `json:"exchangeRate,omitempty"`
	InstallmentAmount     string `json:"installmentAmount"`
	NumberOfInstallments  int    `json:"numberOfInstallments"`
	StartDate             string `json:"startDate"`
	EndDate               string `json:"endDate,omitempty"`
	NextPaymentDate       string `json:"nextPaymentDate,omitempty"`
	InstallmentsPaid      int    `json:"installmentsPaid"`
	TotalPaid             string `json:"totalPaid"`
	TotalPaidUSD          string `json:"totalPaidUsd"`
	RemainingAmount       string `json:"remainingAmount"`
	RemainingAmountUSD    string `json:"remainingAmountUsd,omitempty"`
	USDIncomplete         bool   `json:"usdIncomplete,omitempty"`
	PlanStatus            string `json:"planStatus"`
	IsThirdParty          bool   `json:"isThirdParty,omitempty"`
	PayerContactID        string `json:"payerContactId,omitempty"`
	Notes                 string `json:"notes,omitempty"`
}

type Installment struct {
	ID                   string `json:"id"`
	PaymentPlanID        string `json:"paymentPlanId"`
	InstallmentDate      string `json:"installmentDate"`
	InstallmentAmount    string `json:"installmentAmount"`
	Currency             string `json:"currency"`
	InstallmentAmountUSD string `json:"installmentAmountUsd,omitempty"`
	Status               string `json:"status"`
	PaidDate             string `json:"paidDate,omitempty"`
	PaymentID            string `json:"paymentId,omitempty"`
	Notes                string `json:"notes,omitempty"`
}

type Payment struct {
	ID                         string `json:"id"`
	PledgeID                   string `json:"pledgeId,omitempty"`
	PaymentPlanID              string `json:"paymentPlanId,omitempty"`
	InstallmentScheduleID      string `json:"installmentScheduleId,omitempty"`
	Amount                     string `json:"amount"`
	Currency                   string `json:"currency"`
	AmountUSD                  string `json:"amountUsd,omitempty"`
	AmountInPledgeCurrency     string `json:"amountInPledgeCurrency,omitempty"`
	AmountInPlanCurrency       string `json:"amountInPlanCurrency,omitempty"`
	ExchangeRate               string `json:"exchangeRate,omitempty"`
	PledgeCurrencyExchangeRate string `json:"pledgeCurrencyExchangeRate,omitempty"`
	PlanCurrencyExchangeRate   string `json:"planCurrencyExchangeRate,omitempty"`
	PaymentDate                string `json:"paymentDate"`
	Status                     string `json:"status"`
	IsThirdParty               bool   `json:"isThirdParty,omitempty"`
	PayerContactID             string `json:"payerContactId,omitempty"`
	Notes                      string `json:"notes,omitempty"`
}

type Allocation struct {
	ID                    string `json:"id,omitempty"`
	PaymentID             string `json:"paymentId,omitempty"`
	PledgeID              string `json:"pledgeId"`
	AllocatedAmount       string `json:"allocatedAmount"`
	AllocatedAmountUSD    string `json:"allocatedAmountUsd,omitempty"`
	Currency              string `json:"currency,omitempty"`
	InstallmentScheduleID string `json:"installmentScheduleId,omitempty"`
	PayerContactID        string `json:"payerContactId,omitempty"`
	Notes                 string `json:"notes,omitempty"`
}

type CustomInstallment struct {
	Date     string `json:"date"`
	Amount   string `json:"amount"`
	Currency string `json:"currency,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

type CreatePlanRequest struct {
	PledgeID             string              `json:"pledgeId"`
	Frequency            string              `json:"frequency"`
	DistributionType     string              `json:"distributionType"`
	TotalPlannedAmount   string              `json:"totalPlannedAmount"`
	Currency             string              `json:"currency,omitempty"`
	ExchangeRate         string              `json:"exchangeRate,omitempty"`
	InstallmentAmount    string              `json:"installmentAmount,omitempty"`
	NumberOfInstallments int                 `json:"numberOfInstallments,omitempty"`
	StartDate            string              `json:"startDate,omitempty"`
	CustomInstallments   []CustomInstallment `json:"customInstallments,omitempty"`
	PlanStatus           string              `json:"planStatus,omitempty"`
	IsThirdParty         bool                `json:"isThirdParty,omitempty"`
	PayerContactID       string              `json:"payerContactId,omitempty"`
	Notes                string              `json:"notes,omitempty"`
}

// PlanResponse is returned by every plan procedure except DeletePlan.
type PlanResponse struct {
	Plan         *Plan          `json:"plan"`
	Installments []*Installment `json:"installments"`
	Payments     []*Payment     `json:"payments"`
}

type GetPlanRequest struct {
	ID string `json:"id"`
}

// UpdatePlanRequest is a partial update; absent fields are left unchanged.
// An empty ExchangeRate clears the plan's rate.
type UpdatePlanRequest struct {
	ID                   string              `json:"id"`
	Frequency            *string             `json:"frequency,omitempty"`
	DistributionType     *string             `json:"distributionType,omitempty"`
	TotalPlannedAmount   *string             `json:"totalPlannedAmount,omitempty"`
	Currency             *string             `json:"currency,omitempty"`
	ExchangeRate         *string             `json:"exchangeRate,omitempty"`
	InstallmentAmount    *string             `json:"installmentAmount,omitempty"`
	NumberOfInstallments *int                `json:"numberOfInstallments,omitempty"`
	StartDate            *string             `json:"startDate,omitempty"`
	CustomInstallments   []CustomInstallment `json:"customInstallments,omitempty"`
	PlanStatus           *string             `json:"planStatus,omitempty"`
	IsThirdParty         *bool               `json:"isThirdParty,omitempty"`
	PayerContactID       *string             `json:"payerContactId,omitempty"`
	Notes                *string             `json:"notes,omitempty"`
}

type DeletePlanRequest struct {
	ID string `json:"id"`
}

type DeletePlanResponse struct {
	PlanID   string `json:"planId"`
	PledgeID string `json:"pledgeId"`
}

type CreatePaymentRequest struct {
	PledgeID                   string       `json:"pledgeId,omitempty"`
	Allocations                []Allocation `json:"allocations,omitempty"`
	PaymentPlanID              string       `json:"paymentPlanId,omitempty"`
	InstallmentScheduleID      string       `json:"installmentScheduleId,omitempty"`
	Amount                     string       `json:"amount"`
	Currency                   string       `json:"currency"`
	ExchangeRate               string       `json:"exchangeRate,omitempty"`
	PledgeCurrencyExchangeRate string       `json:"pledgeCurrencyExchangeRate,omitempty"`
	PaymentDate                string       `json:"paymentDate"`
	Status                     string       `json:"status,omitempty"`
	IsThirdParty               bool         `json:"isThirdParty,omitempty"`
	PayerContactID             string       `json:"payerContactId,omitempty"`
	Notes                      string       `json:"notes,omitempty"`
}

// UpdatePaymentRequest is a partial update; absent fields are left unchanged.
// Empty rate strings clear the stored rate.
type UpdatePaymentRequest struct {
	ID                         string       `json:"id"`
	Amount                     *string      `json:"amount,omitempty"`
	Currency                   *string      `json:"currency,omitempty"`
	ExchangeRate               *string      `json:"exchangeRate,omitempty"`
	PledgeCurrencyExchangeRate *string      `json:"pledgeCurrencyExchangeRate,omitempty"`
	PaymentDate                *string      `json:"paymentDate,omitempty"`
	Status                     *string      `json:"status,omitempty"`
	PledgeID                   *string      `json:"pledgeId,omitempty"`
	PaymentPlanID              *string      `json:"paymentPlanId,omitempty"`
	InstallmentScheduleID      *string      `json:"installmentScheduleId,omitempty"`
	Allocations                []Allocation `json:"allocations,omitempty"`
	IsThirdParty               *bool        `json:"isThirdParty,omitempty"`
	PayerContactID             *string      `json:"payerContactId,omitempty"`
	Notes                      *string      `json:"notes,omitempty"`
}

type PaymentResponse struct {
	Payment         *Payment      `json:"payment"`
	Allocations     []*Allocation `json:"allocations"`
	AffectedPledges []string      `json:"affectedPledges"`
	AffectedPlans   []string      `json:"affectedPlans"`
}

type DeletePaymentRequest struct {
	ID string `json:"id"`
}

type DeletePaymentResponse struct {
	PaymentID       string   `json:"paymentId"`
	AffectedPledges []string `json:"affectedPledges"`
	AffectedPlan    string   `json:"affectedPlan,omitempty"`
}

type GetPledgeRequest struct {
	ID string `json:"id"`
}

type GetPledgeResponse struct {
	Pledge *Pledge `json:"pledge"`
	Plans  []*Plan `json:"plans"`
}

// Conversion from engine types.

func amount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func nullAmount(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}

func nullRate(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func date(t time.Time) string {
	return t.Format(models.DateFormat)
}

func nullDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return date(*t)
}

func toPledge(p *models.Pledge) *Pledge {
	return &Pledge{
		ID:                p.ID,
		ContactID:         p.ContactID,
		OriginalAmount:    amount(p.OriginalAmount),
		Currency:          p.Currency,
		ExchangeRate:      nullRate(p.ExchangeRate),
		OriginalAmountUSD: nullAmount(p.OriginalAmountUSD),
		TotalPaid:         amount(p.TotalPaid),
		TotalPaidUSD:      amount(p.TotalPaidUSD),
		Balance:           amount(p.Balance),
		BalanceUSD:        nullAmount(p.BalanceUSD),
		USDIncomplete:     p.USDIncomplete,
		Description:       p.Description,
	}
}

func toPlan(p *models.PaymentPlan) *Plan {
	return &Plan{
		ID:                    p.ID,
		PledgeID:              p.PledgeID,
		Frequency:             string(p.Frequency),
		DistributionType:      string(p.DistributionType),
		TotalPlannedAmount:    amount(p.TotalPlannedAmount),
		TotalPlannedAmountUSD: nullAmount(p.TotalPlannedAmountUSD),
		Currency:              p.Currency,
		ExchangeRate:          nullRate(p.ExchangeRate),
		InstallmentAmount:     amount(p.InstallmentAmount),
		NumberOfInstallments:  p.NumberOfInstallments,
		StartDate:             date(p.StartDate),
		EndDate:               nullDate(p.EndDate),
		NextPaymentDate:       nullDate(p.NextPaymentDate),
		InstallmentsPaid:      p.InstallmentsPaid,
		TotalPaid:             amount(p.TotalPaid),
		TotalPaidUSD:          amount(p.TotalPaidUSD),
		RemainingAmount:       amount(p.RemainingAmount),
		RemainingAmountUSD:    nullAmount(p.RemainingAmountUSD),
		USDIncomplete:         p.USDIncomplete,
		PlanStatus:            string(p.PlanStatus),
		IsThirdParty:          p.IsThirdParty,
		PayerContactID:        p.PayerContactID,
		Notes:                 p.Notes,
	}
}

func toInstallment(s *models.InstallmentSchedule) *Installment {
	return &Installment{
		ID:                   s.ID,
		PaymentPlanID:        s.PaymentPlanID,
		InstallmentDate:      date(s.InstallmentDate),
		InstallmentAmount:    amount(s.InstallmentAmount),
		Currency:             s.Currency,
		InstallmentAmountUSD: nullAmount(s.InstallmentAmountUSD),
		Status:               string(s.Status),
		PaidDate:             nullDate(s.PaidDate),
		PaymentID:            s.PaymentID,
		Notes:                s.Notes,
	}
}

func toPayment(p *models.Payment) *Payment {
	return &Payment{
		ID:                         p.ID,
		PledgeID:                   p.PledgeID,
		PaymentPlanID:              p.PaymentPlanID,
		InstallmentScheduleID:      p.InstallmentScheduleID,
		Amount:                     amount(p.Amount),
		Currency:                   p.Currency,
		AmountUSD:                  nullAmount(p.AmountUSD),
		AmountInPledgeCurrency:     nullAmount(p.AmountInPledgeCurrency),
		AmountInPlanCurrency:       nullAmount(p.AmountInPlanCurrency),
		ExchangeRate:               nullRate(p.ExchangeRate),
		PledgeCurrencyExchangeRate: nullRate(p.PledgeCurrencyExchangeRate),
		PlanCurrencyExchangeRate:   nullRate(p.PlanCurrencyExchangeRate),
		PaymentDate:                date(p.PaymentDate),
		Status:                     string(p.Status),
		IsThirdParty:               p.IsThirdParty,
		PayerContactID:             p.PayerContactID,
		Notes:                      p.Notes,
	}
}

func toAllocation(a *models.PaymentAllocation) *Allocation {
	return &Allocation{
		ID:                    a.ID,
		PaymentID:             a.PaymentID,
		PledgeID:              a.PledgeID,
		AllocatedAmount:       amount(a.AllocatedAmount),
		AllocatedAmountUSD:    nullAmount(a.AllocatedAmountUSD),
		Currency:              a.Currency,
		InstallmentScheduleID: a.InstallmentScheduleID,
		PayerContactID:        a.PayerContactID,
		Notes:                 a.Notes,
	}
}

func mapSlice[T, W any](in []T, f func(T) W) []W {
	out := make([]W, len(in))
	for i, v := range in {
		out[i] = f(v)
	}
	return out
}

// Parsing of request fields. Failures are validation errors naming the field.

func parseAmount(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, apperr.Validation(field, "%s is required", field)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, apperr.Validation(field, "invalid decimal %q", s)
	}
	return d, nil
}

func parseNullAmount(field, s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := parseAmount(field, s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := models.ParseDate(s)
	if err != nil {
		return time.Time{}, apperr.Validation(field, "invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

func parseCustom(items []CustomInstallment) ([]calculator.CustomItem, error) {
	out := make([]calculator.CustomItem, 0, len(items))
	for _, it := range items {
		d, err := parseDate("customInstallments.date", it.Date)
		if err != nil {
			return nil, err
		}
		amt, err := parseAmount("customInstallments.amount", it.Amount)
		if err != nil {
			return nil, err
		}
		out = append(out, calculator.CustomItem{Date: d, Amount: amt, Currency: it.Currency, Notes: it.Notes})
	}
	return out, nil
}

func parseAllocations(items []Allocation) ([]calculator.AllocationInput, error) {
	out := make([]calculator.AllocationInput, 0, len(items))
	for _, a := range items {
		amt, err := parseAmount("allocations.allocatedAmount", a.AllocatedAmount)
		if err != nil {
			return nil, err
		}
		out = append(out, calculator.AllocationInput{
			ID:                    a.ID,
			PledgeID:              a.PledgeID,
			Amount:                amt,
			Currency:              a.Currency,
			InstallmentScheduleID: a.InstallmentScheduleID,
			PayerContactID:        a.PayerContactID,
			Notes:                 a.Notes,
		})
	}
	return out, nil
}

// optAmount parses an optional patch amount.
func optAmount(field string, s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := parseAmount(field, *s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// optRate parses an optional patch rate; an empty string clears it.
func optRate(field string, s *string) (*decimal.NullDecimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := parseNullAmount(field, *s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func optDate(field string, s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	if *s == "" {
		return nil, apperr.Validation(field, "%s cannot be empty", field)
	}
	t, err := parseDate(field, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func optString[T ~string](s *string) *T {
	if s == nil {
		return nil
	}
	v := T(*s)
	return &v
}
