package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/mmynk/pledgeledger/internal/models"
)

const installmentColumns = `id, payment_plan_id, installment_date, installment_amount, currency,
 installment_amount_usd, status, paid_date, payment_id, notes, created_at, updated_at`

// CreateInstallment persists a new installment schedule row.
func (s *SQLiteStore) CreateInstallment(ctx context.Context, inst *models.InstallmentSchedule) error {
	if inst.ID == "" {
		inst.ID = uuid.New().String()
	}
	if inst.CreatedAt == 0 {
		inst.CreatedAt = now()
	}
	inst.UpdatedAt = inst.CreatedAt

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO installment_schedules (`+installmentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID, inst.PaymentPlanID, dateValue(inst.InstallmentDate), inst.InstallmentAmount, inst.Currency,
		inst.InstallmentAmountUSD, string(inst.Status), nullDateValue(inst.PaidDate), nullString(inst.PaymentID),
		nullString(inst.Notes), inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert installment: %w", err)
	}
	return nil
}

// GetInstallment retrieves an installment by ID.
func (s *SQLiteStore) GetInstallment(ctx context.Context, installmentID string) (*models.InstallmentSchedule, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+installmentColumns+" FROM installment_schedules WHERE id = ?", installmentID)
	inst, err := scanInstallment(row)
	if isNoRows(err) {
		return nil, notFound("installment", installmentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get installment: %w", err)
	}
	return inst, nil
}

// ListInstallmentsByPlan retrieves a plan's installments ordered by date.
func (s *SQLiteStore) ListInstallmentsByPlan(ctx context.Context, planID string) ([]*models.InstallmentSchedule, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+installmentColumns+" FROM installment_schedules WHERE payment_plan_id = ? ORDER BY installment_date, created_at, id",
		planID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list installments by plan: %w", err)
	}
	defer rows.Close()

	var insts []*models.InstallmentSchedule
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installment: %w", err)
		}
		insts = append(insts, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate installments: %w", err)
	}
	return insts, nil
}

// UpdateInstallment writes the mutable columns of an installment.
func (s *SQLiteStore) UpdateInstallment(ctx context.Context, inst *models.InstallmentSchedule) error {
	inst.UpdatedAt = now()

	res, err := s.db.ExecContext(ctx,
		`UPDATE installment_schedules SET installment_date = ?, installment_amount = ?, currency = ?,
		 installment_amount_usd = ?, status = ?, paid_date = ?, payment_id = ?, notes = ?, updated_at = ?
		 WHERE id = ?`,
		dateValue(inst.InstallmentDate), inst.InstallmentAmount, inst.Currency, inst.InstallmentAmountUSD,
		string(inst.Status), nullDateValue(inst.PaidDate), nullString(inst.PaymentID), nullString(inst.Notes),
		inst.UpdatedAt, inst.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update installment: %w", err)
	}
	return checkAffected(res, "installment", inst.ID)
}

// DeleteInstallment removes an installment row.
func (s *SQLiteStore) DeleteInstallment(ctx context.Context, installmentID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM installment_schedules WHERE id = ?", installmentID)
	if err != nil {
		return fmt.Errorf("failed to delete installment: %w", err)
	}
	return checkAffected(res, "installment", installmentID)
}

func scanInstallment(row rowScanner) (*models.InstallmentSchedule, error) {
	inst := &models.InstallmentSchedule{}
	var date, status string
	var paidDate, paymentID, notes sql.NullString

	err := row.Scan(&inst.ID, &inst.PaymentPlanID, &date, &inst.InstallmentAmount, &inst.Currency,
		&inst.InstallmentAmountUSD, &status, &paidDate, &paymentID, &notes, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, err
	}

	inst.Status = models.InstallmentStatus(status)
	inst.PaymentID = paymentID.String
	inst.Notes = notes.String
	if inst.InstallmentDate, err = parseDate(date); err != nil {
		return nil, err
	}
	if inst.PaidDate, err = parseNullDate(paidDate); err != nil {
		return nil, err
	}
	return inst, nil
}
