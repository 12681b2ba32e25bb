package calculator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/pledgeledger/internal/apperr"
	"github.com/mmynk/pledgeledger/internal/models"
)

func TestValidateSplit(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		allocs  []AllocationInput
		wantErr bool
	}{
		{
			name:   "60/40",
			amount: "100",
			allocs: []AllocationInput{{PledgeID: "p1", Amount: d("60")}, {PledgeID: "p2", Amount: d("40")}},
		},
		{
			name:   "one cent short is tolerated",
			amount: "100",
			allocs: []AllocationInput{{PledgeID: "p1", Amount: d("33.33")}, {PledgeID: "p2", Amount: d("66.66")}},
		},
		{
			name:    "two cents short",
			amount:  "100",
			allocs:  []AllocationInput{{PledgeID: "p1", Amount: d("33.33")}, {PledgeID: "p2", Amount: d("66.65")}},
			wantErr: true,
		},
		{
			name:    "no allocations",
			amount:  "100",
			wantErr: true,
		},
		{
			name:    "missing pledge",
			amount:  "100",
			allocs:  []AllocationInput{{Amount: d("100")}},
			wantErr: true,
		},
		{
			name:    "negative slice",
			amount:  "100",
			allocs:  []AllocationInput{{PledgeID: "p1", Amount: d("110")}, {PledgeID: "p2", Amount: d("-10")}},
			wantErr: true,
		},
		{
			name:    "same pledge twice",
			amount:  "100",
			allocs:  []AllocationInput{{PledgeID: "p1", Amount: d("50")}, {PledgeID: "p1", Amount: d("50")}},
			wantErr: true,
		},
		{
			name:   "allocation currency matches payment",
			amount: "100",
			allocs: []AllocationInput{
				{PledgeID: "p1", Amount: d("60"), Currency: "usd"},
				{PledgeID: "p2", Amount: d("40")},
			},
		},
		{
			name:   "allocation in another currency",
			amount: "100",
			allocs: []AllocationInput{
				{PledgeID: "p1", Amount: d("60"), Currency: "EUR"},
				{PledgeID: "p2", Amount: d("40")},
			},
			wantErr: true,
		},
		{
			name:   "same pledge for different installments",
			amount: "100",
			allocs: []AllocationInput{
				{PledgeID: "p1", Amount: d("50"), InstallmentScheduleID: "i1"},
				{PledgeID: "p1", Amount: d("50"), InstallmentScheduleID: "i2"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSplit(d(tt.amount), "USD", tt.allocs)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.Is(err, apperr.KindValidation))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateSplit_ReportsDiscrepancy(t *testing.T) {
	err := ValidateSplit(d("100"), "USD", []AllocationInput{{PledgeID: "p1", Amount: d("60")}, {PledgeID: "p2", Amount: d("30")}})
	require.Error(t, err)

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "10.00", appErr.Details["discrepancy"])
	assert.Equal(t, "90.00", appErr.Details["allocated_total"])
}

func TestDiffAllocations(t *testing.T) {
	existing := []*models.PaymentAllocation{
		{ID: "a1", PledgeID: "p1", AllocatedAmount: d("60")},
		{ID: "a2", PledgeID: "p2", AllocatedAmount: d("40"), InstallmentScheduleID: "i2"},
	}

	t.Run("match by id, insert new, delete missing", func(t *testing.T) {
		diff, err := DiffAllocations(existing, []AllocationInput{
			{ID: "a1", PledgeID: "p1", Amount: d("50")},
			{PledgeID: "p3", Amount: d("50")},
		})
		require.NoError(t, err)

		require.Len(t, diff.Update, 1)
		assert.Equal(t, "a1", diff.Update[0].Existing.ID)
		require.Len(t, diff.Insert, 1)
		assert.Equal(t, "p3", diff.Insert[0].PledgeID)
		require.Len(t, diff.Delete, 1)
		assert.Equal(t, "a2", diff.Delete[0].ID)
	})

	t.Run("same request twice is update only", func(t *testing.T) {
		req := []AllocationInput{
			{PledgeID: "p1", Amount: d("60")},
			{PledgeID: "p2", Amount: d("40"), InstallmentScheduleID: "i2"},
		}
		diff, err := DiffAllocations(existing, req)
		require.NoError(t, err)

		assert.True(t, diff.Empty())
		require.Len(t, diff.Update, 2)
		assert.Equal(t, "a1", diff.Update[0].Requested.ID)
		assert.Equal(t, "a2", diff.Update[1].Requested.ID)
	})

	t.Run("installment change is a replacement", func(t *testing.T) {
		diff, err := DiffAllocations(existing, []AllocationInput{
			{PledgeID: "p1", Amount: d("60")},
			{PledgeID: "p2", Amount: d("40"), InstallmentScheduleID: "i3"},
		})
		require.NoError(t, err)

		assert.Len(t, diff.Update, 1)
		require.Len(t, diff.Insert, 1)
		assert.Equal(t, "i3", diff.Insert[0].InstallmentScheduleID)
		require.Len(t, diff.Delete, 1)
		assert.Equal(t, "i2", diff.Delete[0].InstallmentScheduleID)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := DiffAllocations(existing, []AllocationInput{{ID: "zz", PledgeID: "p1", Amount: d("100")}})
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})

	t.Run("from nothing", func(t *testing.T) {
		diff, err := DiffAllocations(nil, []AllocationInput{{PledgeID: "p1", Amount: d("100")}})
		require.NoError(t, err)
		assert.Len(t, diff.Insert, 1)
		assert.Empty(t, diff.Update)
		assert.Empty(t, diff.Delete)
	})
}

func TestScaleSingle(t *testing.T) {
	one := []*models.PaymentAllocation{{ID: "a1", PledgeID: "p1", AllocatedAmount: d("60"), InstallmentScheduleID: "i1"}}
	got, err := ScaleSingle(one, d("75.5"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ID)
	assert.Equal(t, "i1", got[0].InstallmentScheduleID)
	assert.Equal(t, "75.50", got[0].Amount.StringFixed(2))

	two := append(one, &models.PaymentAllocation{ID: "a2", PledgeID: "p2"})
	_, err = ScaleSingle(two, d("75.5"))
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
