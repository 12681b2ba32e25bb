package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/mmynk/pledgeledger/internal/models"
)

const allocationColumns = `a.id, a.payment_id, a.pledge_id, a.allocated_amount, a.allocated_amount_usd, a.currency,
 a.installment_schedule_id, a.payer_contact_id, a.notes, a.created_at, a.updated_at, p.payment_status`

// CreateAllocation persists a new payment allocation.
func (s *SQLiteStore) CreateAllocation(ctx context.Context, alloc *models.PaymentAllocation) error {
	if alloc.ID == "" {
		alloc.ID = uuid.New().String()
	}
	if alloc.CreatedAt == 0 {
		alloc.CreatedAt = now()
	}
	alloc.UpdatedAt = alloc.CreatedAt

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payment_allocations (id, payment_id, pledge_id, allocated_amount, allocated_amount_usd,
		 currency, installment_schedule_id, payer_contact_id, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alloc.ID, alloc.PaymentID, alloc.PledgeID, alloc.AllocatedAmount, alloc.AllocatedAmountUSD,
		alloc.Currency, nullString(alloc.InstallmentScheduleID), nullString(alloc.PayerContactID),
		nullString(alloc.Notes), alloc.CreatedAt, alloc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert allocation: %w", err)
	}
	return nil
}

// ListAllocationsByPayment retrieves the allocations of a split payment.
func (s *SQLiteStore) ListAllocationsByPayment(ctx context.Context, paymentID string) ([]*models.PaymentAllocation, error) {
	return s.listAllocations(ctx,
		`SELECT `+allocationColumns+` FROM payment_allocations a JOIN payments p ON p.id = a.payment_id
		 WHERE a.payment_id = ? ORDER BY a.created_at, a.id`,
		paymentID,
	)
}

// ListAllocationsByPledge retrieves allocations targeting a pledge along with the
// parent payment's status.
func (s *SQLiteStore) ListAllocationsByPledge(ctx context.Context, pledgeID string) ([]*models.PaymentAllocation, error) {
	return s.listAllocations(ctx,
		`SELECT `+allocationColumns+` FROM payment_allocations a JOIN payments p ON p.id = a.payment_id
		 WHERE a.pledge_id = ? ORDER BY a.created_at, a.id`,
		pledgeID,
	)
}

func (s *SQLiteStore) listAllocations(ctx context.Context, query, arg string) ([]*models.PaymentAllocation, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list allocations: %w", err)
	}
	defer rows.Close()

	var allocs []*models.PaymentAllocation
	for rows.Next() {
		alloc := &models.PaymentAllocation{}
		var installmentID, payer, notes sql.NullString
		var status string

		if err := rows.Scan(&alloc.ID, &alloc.PaymentID, &alloc.PledgeID, &alloc.AllocatedAmount,
			&alloc.AllocatedAmountUSD, &alloc.Currency, &installmentID, &payer, &notes,
			&alloc.CreatedAt, &alloc.UpdatedAt, &status); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}

		alloc.InstallmentScheduleID = installmentID.String
		alloc.PayerContactID = payer.String
		alloc.Notes = notes.String
		alloc.PaymentStatus = models.PaymentStatus(status)
		allocs = append(allocs, alloc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate allocations: %w", err)
	}
	return allocs, nil
}

// UpdateAllocation writes the mutable columns of an allocation.
func (s *SQLiteStore) UpdateAllocation(ctx context.Context, alloc *models.PaymentAllocation) error {
	alloc.UpdatedAt = now()

	res, err := s.db.ExecContext(ctx,
		`UPDATE payment_allocations SET pledge_id = ?, allocated_amount = ?, allocated_amount_usd = ?,
		 currency = ?, installment_schedule_id = ?, payer_contact_id = ?, notes = ?, updated_at = ?
		 WHERE id = ?`,
		alloc.PledgeID, alloc.AllocatedAmount, alloc.AllocatedAmountUSD, alloc.Currency,
		nullString(alloc.InstallmentScheduleID), nullString(alloc.PayerContactID), nullString(alloc.Notes),
		alloc.UpdatedAt, alloc.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update allocation: %w", err)
	}
	return checkAffected(res, "allocation", alloc.ID)
}

// DeleteAllocation removes an allocation row.
func (s *SQLiteStore) DeleteAllocation(ctx context.Context, allocationID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM payment_allocations WHERE id = ?", allocationID)
	if err != nil {
		return fmt.Errorf("failed to delete allocation: %w", err)
	}
	return checkAffected(res, "allocation", allocationID)
}
