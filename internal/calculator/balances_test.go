package calculator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/pledgeledger/internal/models"
	"github.com/mmynk/pledgeledger/internal/money"
)

func TestCalculatePledgeTotals(t *testing.T) {
	eurPledge := &models.Pledge{
		ID:                "p1",
		OriginalAmount:    d("1000"),
		Currency:          "EUR",
		ExchangeRate:      money.Null(d("1.10")),
		OriginalAmountUSD: money.Null(d("1100")),
	}

	tests := []struct {
		name           string
		pledge         *models.Pledge
		payments       []*models.Payment
		allocs         []*models.PaymentAllocation
		wantPaid       string
		wantPaidUSD    string
		wantBalance    string
		wantBalanceUSD string // empty means null
		wantIncomplete bool
	}{
		{
			name:           "no payments",
			pledge:         eurPledge,
			wantPaid:       "0.00",
			wantPaidUSD:    "0.00",
			wantBalance:    "1000.00",
			wantBalanceUSD: "1100.00",
		},
		{
			name:   "direct and allocated, only settled count",
			pledge: eurPledge,
			payments: []*models.Payment{
				{PledgeID: "p1", Amount: d("100"), Currency: "EUR", AmountUSD: money.Null(d("108")), Status: models.PaymentCompleted},
				{PledgeID: "p1", Amount: d("50"), Currency: "EUR", AmountUSD: money.Null(d("55")), Status: models.PaymentProcessing},
				{PledgeID: "p1", Amount: d("500"), Currency: "EUR", Status: models.PaymentPending},
				{PledgeID: "p1", Amount: d("500"), Currency: "EUR", Status: models.PaymentRefunded},
			},
			allocs: []*models.PaymentAllocation{
				{PledgeID: "p1", AllocatedAmount: d("60"), Currency: "EUR", AllocatedAmountUSD: money.Null(d("66")), PaymentStatus: models.PaymentCompleted},
				{PledgeID: "p1", AllocatedAmount: d("40"), Currency: "EUR", PaymentStatus: models.PaymentFailed},
			},
			wantPaid:       "210.00",
			wantPaidUSD:    "229.00",
			wantBalance:    "790.00",
			wantBalanceUSD: "871.00",
		},
		{
			name:   "pledge-currency amount preferred and USD derived from pledge rate",
			pledge: eurPledge,
			payments: []*models.Payment{
				{PledgeID: "p1", Amount: d("100"), Currency: "GBP", AmountInPledgeCurrency: money.Null(d("115")), Status: models.PaymentCompleted},
			},
			wantPaid:       "115.00",
			wantPaidUSD:    "126.50",
			wantBalance:    "885.00",
			wantBalanceUSD: "973.50",
		},
		{
			name:   "balance never negative",
			pledge: eurPledge,
			payments: []*models.Payment{
				{PledgeID: "p1", Amount: d("1200"), Currency: "EUR", AmountUSD: money.Null(d("1320")), Status: models.PaymentCompleted},
			},
			wantPaid:       "1200.00",
			wantPaidUSD:    "1320.00",
			wantBalance:    "0.00",
			wantBalanceUSD: "0.00",
		},
		{
			name:   "USD unknown is left out and flagged",
			pledge: &models.Pledge{ID: "p2", OriginalAmount: d("500"), Currency: "ILS"},
			payments: []*models.Payment{
				{PledgeID: "p2", Amount: d("100"), Currency: "ILS", Status: models.PaymentCompleted},
				{PledgeID: "p2", Amount: d("50"), Currency: "ILS", AmountUSD: money.Null(d("13.50")), Status: models.PaymentCompleted},
			},
			wantPaid:       "150.00",
			wantPaidUSD:    "13.50",
			wantBalance:    "350.00",
			wantIncomplete: true,
		},
		{
			name:   "foreign rows without conversions are left out",
			pledge: eurPledge,
			payments: []*models.Payment{
				{PledgeID: "p1", Amount: d("100"), Currency: "GBP", Status: models.PaymentCompleted},
			},
			allocs: []*models.PaymentAllocation{
				{PledgeID: "p1", AllocatedAmount: d("40"), Currency: "CHF", PaymentStatus: models.PaymentCompleted},
			},
			wantPaid:       "0.00",
			wantPaidUSD:    "0.00",
			wantBalance:    "1000.00",
			wantBalanceUSD: "1100.00",
			wantIncomplete: true,
		},
		{
			name:   "pledge-currency amount derived from USD and pledge rate",
			pledge: eurPledge,
			allocs: []*models.PaymentAllocation{
				{PledgeID: "p1", AllocatedAmount: d("50"), Currency: "CHF", AllocatedAmountUSD: money.Null(d("55")), PaymentStatus: models.PaymentCompleted},
			},
			wantPaid:       "50.00",
			wantPaidUSD:    "55.00",
			wantBalance:    "950.00",
			wantBalanceUSD: "1045.00",
		},
		{
			name:   "foreign payment on USD pledge",
			pledge: &models.Pledge{ID: "p3", OriginalAmount: d("100"), Currency: "USD"},
			payments: []*models.Payment{
				{PledgeID: "p3", Amount: d("30"), Currency: "EUR", Status: models.PaymentCompleted},
				{PledgeID: "p3", Amount: d("10"), Currency: "EUR", AmountUSD: money.Null(d("11")), Status: models.PaymentCompleted},
			},
			wantPaid:       "11.00",
			wantPaidUSD:    "11.00",
			wantBalance:    "89.00",
			wantBalanceUSD: "89.00",
			wantIncomplete: true,
		},
		{
			name:   "USD pledge",
			pledge: &models.Pledge{ID: "p3", OriginalAmount: d("100"), Currency: "USD"},
			allocs: []*models.PaymentAllocation{
				{PledgeID: "p3", AllocatedAmount: d("40"), Currency: "USD", PaymentStatus: models.PaymentCompleted},
			},
			wantPaid:       "40.00",
			wantPaidUSD:    "40.00",
			wantBalance:    "60.00",
			wantBalanceUSD: "60.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculatePledgeTotals(tt.pledge, tt.payments, tt.allocs)
			assert.Equal(t, tt.wantPaid, got.TotalPaid.StringFixed(2))
			assert.Equal(t, tt.wantPaidUSD, got.TotalPaidUSD.StringFixed(2))
			assert.Equal(t, tt.wantBalance, got.Balance.StringFixed(2))
			if tt.wantBalanceUSD == "" {
				assert.False(t, got.BalanceUSD.Valid)
			} else {
				require.True(t, got.BalanceUSD.Valid)
				assert.Equal(t, tt.wantBalanceUSD, got.BalanceUSD.Decimal.StringFixed(2))
			}
			assert.Equal(t, tt.wantIncomplete, got.USDIncomplete)
		})
	}
}

func TestCalculatePlanTotals(t *testing.T) {
	plan := &models.PaymentPlan{
		ID:                    "plan1",
		Currency:              "USD",
		TotalPlannedAmount:    d("1000"),
		TotalPlannedAmountUSD: money.Null(d("1000")),
		PlanStatus:            models.PlanActive,
	}
	insts := []*models.InstallmentSchedule{
		{InstallmentDate: date("2024-01-15"), Status: models.InstallmentPaid},
		{InstallmentDate: date("2024-03-15"), Status: models.InstallmentPending},
		{InstallmentDate: date("2024-02-15"), Status: models.InstallmentPending},
		{InstallmentDate: date("2024-01-20"), Status: models.InstallmentCancelled},
	}
	payments := []*models.Payment{
		{PaymentPlanID: "plan1", Amount: d("333.33"), Currency: "USD", Status: models.PaymentCompleted},
		{PaymentPlanID: "plan1", Amount: d("333.33"), Currency: "USD", Status: models.PaymentPending},
		{PaymentPlanID: "plan1", Amount: d("333.34"), Currency: "USD", Status: models.PaymentPending},
	}

	got := CalculatePlanTotals(plan, payments, insts)
	assert.Equal(t, "333.33", got.TotalPaid.StringFixed(2))
	assert.Equal(t, 1, got.InstallmentsPaid)
	assert.Equal(t, "666.67", got.RemainingAmount.StringFixed(2))
	require.True(t, got.RemainingAmountUSD.Valid)
	assert.Equal(t, "666.67", got.RemainingAmountUSD.Decimal.StringFixed(2))
	require.NotNil(t, got.NextPaymentDate)
	assert.Equal(t, "2024-02-15", got.NextPaymentDate.Format(models.DateFormat))
	assert.Equal(t, models.PlanActive, got.Status)

	again := CalculatePlanTotals(plan, payments, insts)
	assert.Equal(t, got, again)
}

func TestCalculatePlanTotals_StatusFollowsRemainder(t *testing.T) {
	paidOff := []*models.Payment{{PaymentPlanID: "plan1", Amount: d("100"), Currency: "USD", Status: models.PaymentCompleted}}
	refunded := []*models.Payment{{PaymentPlanID: "plan1", Amount: d("100"), Currency: "USD", Status: models.PaymentRefunded}}

	tests := []struct {
		name     string
		status   models.PlanStatus
		payments []*models.Payment
		want     models.PlanStatus
	}{
		{"active completes", models.PlanActive, paidOff, models.PlanCompleted},
		{"overdue completes", models.PlanOverdue, paidOff, models.PlanCompleted},
		{"completed reopens", models.PlanCompleted, refunded, models.PlanActive},
		{"cancelled stays", models.PlanCancelled, paidOff, models.PlanCancelled},
		{"paused stays", models.PlanPaused, refunded, models.PlanPaused},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := &models.PaymentPlan{ID: "plan1", Currency: "USD", TotalPlannedAmount: d("100"), PlanStatus: tt.status}
			got := CalculatePlanTotals(plan, tt.payments, nil)
			assert.Equal(t, tt.want, got.Status)
		})
	}
}

func TestCalculatePlanTotals_USDIndependentOfPledge(t *testing.T) {
	plan := &models.PaymentPlan{
		ID:                    "plan1",
		Currency:              "GBP",
		TotalPlannedAmount:    d("800"),
		TotalPlannedAmountUSD: money.Null(d("1000")),
		PlanStatus:            models.PlanActive,
	}
	payments := []*models.Payment{
		{PaymentPlanID: "plan1", Amount: d("200"), Currency: "GBP", AmountUSD: money.Null(d("254")), Status: models.PaymentCompleted},
		{PaymentPlanID: "plan1", Amount: d("100"), Currency: "CHF", AmountInPlanCurrency: money.Null(d("90")), Status: models.PaymentCompleted},
	}

	got := CalculatePlanTotals(plan, payments, nil)
	assert.Equal(t, "290.00", got.TotalPaid.StringFixed(2))
	assert.Equal(t, "510.00", got.RemainingAmount.StringFixed(2))
	assert.Equal(t, "254.00", got.TotalPaidUSD.StringFixed(2))
	assert.Equal(t, "746.00", got.RemainingAmountUSD.Decimal.StringFixed(2))
	assert.True(t, got.USDIncomplete)
}

func TestCalculatePlanTotals_ForeignRowWithoutConversion(t *testing.T) {
	plan := &models.PaymentPlan{
		ID:                 "plan1",
		Currency:           "GBP",
		ExchangeRate:       money.Null(d("1.25")),
		TotalPlannedAmount: d("300"),
		PlanStatus:         models.PlanActive,
	}
	payments := []*models.Payment{
		{PaymentPlanID: "plan1", Amount: d("100"), Currency: "GBP", Status: models.PaymentCompleted},
		{PaymentPlanID: "plan1", Amount: d("100"), Currency: "EUR", Status: models.PaymentCompleted},
	}

	got := CalculatePlanTotals(plan, payments, nil)
	assert.Equal(t, 2, got.InstallmentsPaid)
	assert.Equal(t, "100.00", got.TotalPaid.StringFixed(2))
	assert.Equal(t, "125.00", got.TotalPaidUSD.StringFixed(2))
	assert.Equal(t, "200.00", got.RemainingAmount.StringFixed(2))
	assert.True(t, got.USDIncomplete)
}

func TestApplyTotals(t *testing.T) {
	pledge := &models.Pledge{ID: "p1", OriginalAmount: d("100"), Currency: "USD"}
	totals := CalculatePledgeTotals(pledge, []*models.Payment{
		{PledgeID: "p1", Amount: d("10"), Currency: "USD", Status: models.PaymentCompleted},
	}, nil)

	assert.True(t, ApplyPledgeTotals(pledge, totals))
	assert.False(t, ApplyPledgeTotals(pledge, totals), "second apply changes nothing")
	assert.Equal(t, "90.00", pledge.Balance.StringFixed(2))

	next := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	plan := &models.PaymentPlan{ID: "plan1", Currency: "USD", TotalPlannedAmount: d("100"), PlanStatus: models.PlanActive}
	pt := CalculatePlanTotals(plan, nil, []*models.InstallmentSchedule{{InstallmentDate: next, Status: models.InstallmentPending}})
	assert.True(t, ApplyPlanTotals(plan, pt))
	assert.False(t, ApplyPlanTotals(plan, pt))
	assert.Equal(t, next, *plan.NextPaymentDate)
}
