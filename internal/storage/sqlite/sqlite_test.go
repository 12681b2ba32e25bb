package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/pledgeledger/internal/models"
	"github.com/mmynk/pledgeledger/internal/storage"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	// Create temp directory for test database
	tempDir, err := os.MkdirTemp("", "pledgeledger-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(s string) time.Time {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestSQLiteStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	contact := &models.Contact{Name: "Donor"}
	if err := store.CreateContact(ctx, contact); err != nil {
		t.Fatalf("CreateContact failed: %v", err)
	}

	pledge := &models.Pledge{
		ContactID:      contact.ID,
		OriginalAmount: dec("1000"),
		Currency:       "EUR",
		ExchangeRate:   decimal.NewNullDecimal(dec("1.10")),
		Balance:        dec("1000"),
	}
	if err := store.CreatePledge(ctx, pledge); err != nil {
		t.Fatalf("CreatePledge failed: %v", err)
	}

	t.Run("CreatePledge generates ID and round-trips decimals", func(t *testing.T) {
		if pledge.ID == "" {
			t.Fatal("Expected pledge ID to be generated")
		}
		got, err := store.GetPledge(ctx, pledge.ID)
		if err != nil {
			t.Fatalf("GetPledge failed: %v", err)
		}
		if !got.OriginalAmount.Equal(dec("1000")) {
			t.Errorf("OriginalAmount = %s, want 1000", got.OriginalAmount)
		}
		if !got.ExchangeRate.Valid || !got.ExchangeRate.Decimal.Equal(dec("1.10")) {
			t.Errorf("ExchangeRate = %v, want 1.10", got.ExchangeRate)
		}
		if got.OriginalAmountUSD.Valid {
			t.Errorf("OriginalAmountUSD should be null, got %s", got.OriginalAmountUSD.Decimal)
		}
	})

	t.Run("UpdatePledgeTotals", func(t *testing.T) {
		pledge.TotalPaid = dec("100")
		pledge.Balance = dec("900")
		pledge.BalanceUSD = decimal.NewNullDecimal(dec("990"))
		pledge.USDIncomplete = true
		if err := store.UpdatePledgeTotals(ctx, pledge); err != nil {
			t.Fatalf("UpdatePledgeTotals failed: %v", err)
		}
		got, err := store.GetPledge(ctx, pledge.ID)
		if err != nil {
			t.Fatalf("GetPledge failed: %v", err)
		}
		if !got.Balance.Equal(dec("900")) || !got.BalanceUSD.Decimal.Equal(dec("990")) || !got.USDIncomplete {
			t.Errorf("totals not persisted: %+v", got)
		}
	})

	t.Run("missing rows are ErrNotFound", func(t *testing.T) {
		if _, err := store.GetPledge(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetPledge error = %v, want ErrNotFound", err)
		}
		if _, err := store.GetPlan(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetPlan error = %v, want ErrNotFound", err)
		}
		if err := store.DeletePayment(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("DeletePayment error = %v, want ErrNotFound", err)
		}
		ok, err := store.ContactExists(ctx, "nope")
		if err != nil || ok {
			t.Errorf("ContactExists = %v, %v; want false, nil", ok, err)
		}
	})

	next := day("2024-02-15")
	plan := &models.PaymentPlan{
		PledgeID:             pledge.ID,
		Frequency:            models.FrequencyMonthly,
		DistributionType:     models.DistributionFixed,
		TotalPlannedAmount:   dec("1000"),
		Currency:             "EUR",
		InstallmentAmount:    dec("333.33"),
		NumberOfInstallments: 3,
		StartDate:            day("2024-01-15"),
		NextPaymentDate:      &next,
		RemainingAmount:      dec("1000"),
		PlanStatus:           models.PlanActive,
	}
	if err := store.CreatePlan(ctx, plan); err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	t.Run("plans round-trip and soft delete hides them from lists", func(t *testing.T) {
		got, err := store.GetPlan(ctx, plan.ID)
		if err != nil {
			t.Fatalf("GetPlan failed: %v", err)
		}
		if got.Frequency != models.FrequencyMonthly || got.NumberOfInstallments != 3 {
			t.Errorf("plan fields not persisted: %+v", got)
		}
		if got.NextPaymentDate == nil || !got.NextPaymentDate.Equal(next) {
			t.Errorf("NextPaymentDate = %v, want %v", got.NextPaymentDate, next)
		}
		if !got.StartDate.Equal(day("2024-01-15")) {
			t.Errorf("StartDate = %v", got.StartDate)
		}

		plans, err := store.ListPlansByPledge(ctx, pledge.ID)
		if err != nil {
			t.Fatalf("ListPlansByPledge failed: %v", err)
		}
		if len(plans) != 1 {
			t.Fatalf("Expected 1 plan, got %d", len(plans))
		}

		deleted := &models.PaymentPlan{
			PledgeID: pledge.ID, Frequency: models.FrequencyOneTime, DistributionType: models.DistributionFixed,
			TotalPlannedAmount: dec("5"), Currency: "EUR", InstallmentAmount: dec("5"), NumberOfInstallments: 1,
			StartDate: day("2024-01-01"), PlanStatus: models.PlanCancelled,
		}
		if err := store.CreatePlan(ctx, deleted); err != nil {
			t.Fatalf("CreatePlan failed: %v", err)
		}
		at := day("2024-01-02")
		deleted.DeletedAt = &at
		if err := store.UpdatePlan(ctx, deleted); err != nil {
			t.Fatalf("UpdatePlan failed: %v", err)
		}

		plans, err = store.ListPlansByPledge(ctx, pledge.ID)
		if err != nil {
			t.Fatalf("ListPlansByPledge failed: %v", err)
		}
		if len(plans) != 1 || plans[0].ID != plan.ID {
			t.Errorf("soft-deleted plan still listed: %d plans", len(plans))
		}
		if got, err := store.GetPlan(ctx, deleted.ID); err != nil || !got.Deleted() {
			t.Errorf("GetPlan should return the soft-deleted plan, got %v, %v", got, err)
		}
	})

	var insts []*models.InstallmentSchedule
	for _, d := range []string{"2024-03-15", "2024-01-15", "2024-02-15"} {
		inst := &models.InstallmentSchedule{
			PaymentPlanID:     plan.ID,
			InstallmentDate:   day(d),
			InstallmentAmount: dec("333.33"),
			Currency:          "EUR",
			Status:            models.InstallmentPending,
		}
		if err := store.CreateInstallment(ctx, inst); err != nil {
			t.Fatalf("CreateInstallment failed: %v", err)
		}
		insts = append(insts, inst)
	}

	t.Run("installments list by date", func(t *testing.T) {
		got, err := store.ListInstallmentsByPlan(ctx, plan.ID)
		if err != nil {
			t.Fatalf("ListInstallmentsByPlan failed: %v", err)
		}
		want := []string{"2024-01-15", "2024-02-15", "2024-03-15"}
		if len(got) != len(want) {
			t.Fatalf("Expected %d installments, got %d", len(want), len(got))
		}
		for i, inst := range got {
			if inst.InstallmentDate.Format(models.DateFormat) != want[i] {
				t.Errorf("installment %d date = %s, want %s", i, inst.InstallmentDate.Format(models.DateFormat), want[i])
			}
		}
	})

	payment := &models.Payment{
		PledgeID:              pledge.ID,
		PaymentPlanID:         plan.ID,
		InstallmentScheduleID: insts[1].ID,
		Amount:                dec("333.33"),
		Currency:              "EUR",
		AmountUSD:             decimal.NewNullDecimal(dec("366.66")),
		PaymentDate:           day("2024-01-15"),
		Status:                models.PaymentCompleted,
	}
	if err := store.CreatePayment(ctx, payment); err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}

	t.Run("installment back-reference", func(t *testing.T) {
		inst := insts[1]
		inst.ApplyPaymentStatus(payment.ID, payment.Status, payment.PaymentDate)
		if err := store.UpdateInstallment(ctx, inst); err != nil {
			t.Fatalf("UpdateInstallment failed: %v", err)
		}
		got, err := store.GetInstallment(ctx, inst.ID)
		if err != nil {
			t.Fatalf("GetInstallment failed: %v", err)
		}
		if got.Status != models.InstallmentPaid || got.PaymentID != payment.ID || got.PaidDate == nil {
			t.Errorf("installment not marked paid: %+v", got)
		}
	})

	t.Run("split payments and allocations", func(t *testing.T) {
		other := &models.Pledge{ContactID: contact.ID, OriginalAmount: dec("50"), Currency: "USD"}
		if err := store.CreatePledge(ctx, other); err != nil {
			t.Fatalf("CreatePledge failed: %v", err)
		}

		split := &models.Payment{Amount: dec("100"), Currency: "USD", PaymentDate: day("2024-01-20"), Status: models.PaymentCompleted}
		if err := store.CreatePayment(ctx, split); err != nil {
			t.Fatalf("CreatePayment failed: %v", err)
		}
		for _, a := range []*models.PaymentAllocation{
			{PaymentID: split.ID, PledgeID: pledge.ID, AllocatedAmount: dec("60"), Currency: "USD"},
			{PaymentID: split.ID, PledgeID: other.ID, AllocatedAmount: dec("40"), Currency: "USD"},
		} {
			if err := store.CreateAllocation(ctx, a); err != nil {
				t.Fatalf("CreateAllocation failed: %v", err)
			}
		}

		got, err := store.GetPayment(ctx, split.ID)
		if err != nil {
			t.Fatalf("GetPayment failed: %v", err)
		}
		if !got.IsSplit() {
			t.Error("Expected split payment to have no pledge")
		}

		byPledge, err := store.ListAllocationsByPledge(ctx, other.ID)
		if err != nil {
			t.Fatalf("ListAllocationsByPledge failed: %v", err)
		}
		if len(byPledge) != 1 || byPledge[0].PaymentStatus != models.PaymentCompleted {
			t.Errorf("allocation should carry parent status, got %+v", byPledge)
		}

		direct, err := store.ListPaymentsByPledge(ctx, pledge.ID)
		if err != nil {
			t.Fatalf("ListPaymentsByPledge failed: %v", err)
		}
		if len(direct) != 1 || direct[0].ID != payment.ID {
			t.Errorf("split payment must not be listed as direct: %d payments", len(direct))
		}

		if err := store.DeletePayment(ctx, split.ID); err != nil {
			t.Fatalf("DeletePayment failed: %v", err)
		}
		left, err := store.ListAllocationsByPayment(ctx, split.ID)
		if err != nil {
			t.Fatalf("ListAllocationsByPayment failed: %v", err)
		}
		if len(left) != 0 {
			t.Errorf("allocations should cascade, %d left", len(left))
		}
	})

	t.Run("foreign keys are enforced", func(t *testing.T) {
		bad := &models.Payment{PledgeID: "missing", Amount: dec("1"), Currency: "USD", PaymentDate: day("2024-01-01"), Status: models.PaymentPending}
		if err := store.CreatePayment(ctx, bad); err == nil {
			t.Error("Expected foreign key violation for unknown pledge")
		}
	})
}

func TestRates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, r := range []*models.ExchangeRate{
		{BaseCurrency: "EUR", TargetCurrency: "USD", Rate: dec("1.10"), Date: day("2024-01-01")},
		{BaseCurrency: "EUR", TargetCurrency: "USD", Rate: dec("1.09"), Date: day("2024-01-15")},
		{BaseCurrency: "USD", TargetCurrency: "EUR", Rate: dec("0.90"), Date: day("2024-01-10")},
	} {
		if err := store.UpsertRate(ctx, r); err != nil {
			t.Fatalf("UpsertRate failed: %v", err)
		}
	}

	tests := []struct {
		name     string
		exact    bool
		base     string
		target   string
		date     string
		wantRate string
		wantErr  bool
	}{
		{"exact hit", true, "EUR", "USD", "2024-01-15", "1.09", false},
		{"exact miss", true, "EUR", "USD", "2024-01-10", "", true},
		{"latest on or before", false, "EUR", "USD", "2024-01-10", "1.1", false},
		{"latest includes the date", false, "EUR", "USD", "2024-01-15", "1.09", false},
		{"latest before first row", false, "EUR", "USD", "2023-12-31", "", true},
		{"other pair", false, "USD", "EUR", "2024-01-15", "0.9", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *models.ExchangeRate
			var err error
			if tt.exact {
				got, err = store.RateOn(ctx, tt.base, tt.target, day(tt.date))
			} else {
				got, err = store.LatestRate(ctx, tt.base, tt.target, day(tt.date))
			}
			if tt.wantErr {
				if !errors.Is(err, storage.ErrNotFound) {
					t.Errorf("error = %v, want ErrNotFound", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("lookup failed: %v", err)
			}
			if !got.Rate.Equal(dec(tt.wantRate)) {
				t.Errorf("rate = %s, want %s", got.Rate, tt.wantRate)
			}
		})
	}

	t.Run("upsert replaces", func(t *testing.T) {
		if err := store.UpsertRate(ctx, &models.ExchangeRate{BaseCurrency: "EUR", TargetCurrency: "USD", Rate: dec("1.2"), Date: day("2024-01-15")}); err != nil {
			t.Fatalf("UpsertRate failed: %v", err)
		}
		got, err := store.RateOn(ctx, "EUR", "USD", day("2024-01-15"))
		if err != nil {
			t.Fatalf("RateOn failed: %v", err)
		}
		if !got.Rate.Equal(dec("1.2")) {
			t.Errorf("rate = %s, want 1.2", got.Rate)
		}
	})
}

func TestConversionLogs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := &models.ConversionLog{
		PaymentID:      "pay-1",
		FromCurrency:   "EUR",
		ToCurrency:     "USD",
		FromAmount:     dec("100"),
		ToAmount:       dec("110"),
		ExchangeRate:   dec("1.1"),
		ConversionDate: day("2024-01-15"),
		ConversionType: models.ConversionUSDReporting,
	}
	if err := store.AppendConversionLog(ctx, entry); err != nil {
		t.Fatalf("AppendConversionLog failed: %v", err)
	}

	got, err := store.ListConversionLogs(ctx, "pay-1")
	if err != nil {
		t.Fatalf("ListConversionLogs failed: %v", err)
	}
	if len(got) != 1 || got[0].ConversionType != models.ConversionUSDReporting || !got[0].ToAmount.Equal(dec("110")) {
		t.Errorf("unexpected conversion logs: %+v", got)
	}
}

func TestSchemaVersion(t *testing.T) {
	store := newTestStore(t)

	version, dirty, err := store.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("SchemaVersion = %d, %v; want 1, false", version, dirty)
	}
}
