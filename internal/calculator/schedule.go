package calculator

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/pledgeledger/internal/apperr"
	"github.com/mmynk/pledgeledger/internal/models"
	"github.com/mmynk/pledgeledger/internal/money"
)

// DefaultMaxPastSkew is how far in the past a custom installment date may lie.
const DefaultMaxPastSkew = 30 * 24 * time.Hour

// Installment is one generated (date, amount) pair, before persistence.
type Installment struct {
	Date     time.Time
	Amount   decimal.Decimal
	Currency string // empty means the plan currency
	Notes    string
}

// FixedInput describes an evenly distributed plan.
type FixedInput struct {
	Total     decimal.Decimal
	Count     int
	StartDate time.Time
	Frequency models.Frequency

	// InstallmentAmount is the caller's nominal amount, if supplied. It must
	// reconcile with Total within one cent per installment.
	InstallmentAmount decimal.NullDecimal
}

// FixedSchedule expands a fixed-distribution plan into dated installments whose
// amounts sum exactly to Total.
//
// Amounts come from money.DistributeCents, so they may differ by one cent and
// the later installments carry the extra cents.
func FixedSchedule(in FixedInput) ([]Installment, error) {
	if !in.Frequency.Valid() {
		return nil, apperr.Validation("frequency", "unknown frequency %q", in.Frequency)
	}
	if in.Frequency == models.FrequencyCustom {
		return nil, apperr.Validation("frequency", "custom frequency requires custom distribution")
	}
	if in.Count < 1 {
		return nil, apperr.Validation("numberOfInstallments", "must be at least 1, got %d", in.Count)
	}
	if in.Frequency == models.FrequencyOneTime && in.Count != 1 {
		return nil, apperr.Validation("numberOfInstallments", "one_time plans have exactly one installment, got %d", in.Count)
	}
	if !in.Total.IsPositive() {
		return nil, apperr.Validation("totalPlannedAmount", "must be positive, got %s", in.Total)
	}
	if in.StartDate.IsZero() {
		return nil, apperr.Validation("startDate", "is required")
	}

	totalCents := money.ToCents(in.Total)
	if in.InstallmentAmount.Valid {
		nominal := money.ToCents(in.InstallmentAmount.Decimal)
		implied := nominal * int64(in.Count)
		if !money.WithinTolerance(implied, totalCents, int64(in.Count)*money.DefaultToleranceCents) {
			return nil, apperr.Validation("installmentAmount",
				"%s x %d does not reconcile with total %s; use custom distribution for uneven amounts",
				money.FromCents(nominal).StringFixed(2), in.Count, money.FromCents(totalCents).StringFixed(2)).
				WithDetail("expected_total", money.FromCents(totalCents).StringFixed(2)).
				WithDetail("implied_total", money.FromCents(implied).StringFixed(2))
		}
	}

	cents, err := money.DistributeCents(totalCents, in.Count)
	if err != nil {
		return nil, apperr.Validation("totalPlannedAmount", "%v", err)
	}

	start := models.DateOf(in.StartDate)
	out := make([]Installment, in.Count)
	for i := range out {
		date, err := AdvanceDate(start, in.Frequency, i)
		if err != nil {
			return nil, err
		}
		out[i] = Installment{Date: date, Amount: money.FromCents(cents[i])}
	}
	return out, nil
}

// CustomItem is one caller-supplied installment.
type CustomItem struct {
	Date     time.Time
	Amount   decimal.Decimal
	Currency string
	Notes    string
}

// CustomInput describes a plan with explicit per-installment amounts.
type CustomInput struct {
	Total decimal.Decimal
	Items []CustomItem

	// Currency is the plan currency; items may only repeat it.
	Currency string

	// Now anchors the past-date check.
	Now time.Time

	// MaxPastSkew bounds how old an installment date may be. Zero uses DefaultMaxPastSkew.
	MaxPastSkew time.Duration

	// AutoAdjustCents is the largest residual absorbed by the last installment.
	// Zero uses money.AutoAdjustCents.
	AutoAdjustCents int64
}

// CustomSchedule validates caller-supplied installments and returns them ordered by
// date. A sum residual of at most AutoAdjustCents is folded into the last
// installment; anything larger is rejected with the discrepancy.
func CustomSchedule(in CustomInput) ([]Installment, error) {
	if len(in.Items) == 0 {
		return nil, apperr.Validation("customInstallments", "at least one installment is required")
	}
	if !in.Total.IsPositive() {
		return nil, apperr.Validation("totalPlannedAmount", "must be positive, got %s", in.Total)
	}
	skew := in.MaxPastSkew
	if skew <= 0 {
		skew = DefaultMaxPastSkew
	}
	adjust := in.AutoAdjustCents
	if adjust <= 0 {
		adjust = money.AutoAdjustCents
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	earliest := models.DateOf(now.Add(-skew))

	seen := make(map[string]int, len(in.Items))
	out := make([]Installment, 0, len(in.Items))
	var sum int64
	for i, item := range in.Items {
		if item.Date.IsZero() {
			return nil, apperr.Validation("customInstallments", "installment %d: date is required", i+1)
		}
		if !item.Amount.IsPositive() {
			return nil, apperr.Validation("customInstallments", "installment %d: amount must be positive, got %s", i+1, item.Amount)
		}
		if !SameCurrency(item.Currency, in.Currency) {
			return nil, apperr.Validation("customInstallments", "installment %d: currency %s differs from plan currency %s",
				i+1, item.Currency, in.Currency)
		}
		date := models.DateOf(item.Date)
		key := date.Format(models.DateFormat)
		if prev, dup := seen[key]; dup {
			return nil, apperr.Validation("customInstallments", "installments %d and %d share date %s", prev, i+1, key)
		}
		seen[key] = i + 1
		if date.Before(earliest) {
			return nil, apperr.Validation("customInstallments",
				"installment %d: date %s is more than %d days in the past", i+1, key, int(skew.Hours()/24))
		}

		cents := money.ToCents(item.Amount)
		sum += cents
		out = append(out, Installment{
			Date:     date,
			Amount:   money.FromCents(cents),
			Currency: item.Currency,
			Notes:    item.Notes,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	totalCents := money.ToCents(in.Total)
	residual := totalCents - sum
	if residual != 0 {
		if !money.WithinTolerance(sum, totalCents, adjust) {
			return nil, apperr.Validation("customInstallments",
				"installments sum to %s but total is %s", money.FromCents(sum).StringFixed(2), money.FromCents(totalCents).StringFixed(2)).
				WithDetail("expected_total", money.FromCents(totalCents).StringFixed(2)).
				WithDetail("actual_total", money.FromCents(sum).StringFixed(2)).
				WithDetail("discrepancy", money.FromCents(residual).StringFixed(2))
		}
		last := &out[len(out)-1]
		adjusted := money.ToCents(last.Amount) + residual
		if adjusted <= 0 {
			return nil, apperr.Validation("customInstallments", "cannot absorb residual %s into last installment",
				money.FromCents(residual).StringFixed(2))
		}
		last.Amount = money.FromCents(adjusted)
	}
	return out, nil
}

// AdvanceDate moves start forward by periods of freq. Month-based frequencies clamp
// to the last day of the target month, so Jan 31 + 1 month is Feb 28 (or 29).
func AdvanceDate(start time.Time, freq models.Frequency, periods int) (time.Time, error) {
	switch freq {
	case models.FrequencyWeekly:
		return start.AddDate(0, 0, 7*periods), nil
	case models.FrequencyMonthly:
		return addMonths(start, periods), nil
	case models.FrequencyQuarterly:
		return addMonths(start, 3*periods), nil
	case models.FrequencyBiannual:
		return addMonths(start, 6*periods), nil
	case models.FrequencyAnnual:
		return addMonths(start, 12*periods), nil
	case models.FrequencyOneTime:
		return start, nil
	}
	return time.Time{}, apperr.Validation("frequency", "cannot advance dates for frequency %q", freq)
}

func addMonths(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, months, 0)
	lastDay := first.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// EndDate returns the date of the last installment, or nil for an empty schedule.
func EndDate(installments []Installment) *time.Time {
	if len(installments) == 0 {
		return nil
	}
	last := installments[0].Date
	for _, inst := range installments[1:] {
		if inst.Date.After(last) {
			last = inst.Date
		}
	}
	return &last
}
