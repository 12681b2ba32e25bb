package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/mmynk/pledgeledger/internal/models"
)

const planColumns = `id, pledge_id, frequency, distribution_type, total_planned_amount, total_planned_amount_usd,
 currency, exchange_rate, installment_amount, number_of_installments, start_date, end_date, next_payment_date,
 installments_paid, total_paid, total_paid_usd, remaining_amount, remaining_amount_usd, usd_incomplete,
 plan_status, is_third_party, payer_contact_id, notes, deleted_at, created_at, updated_at`

// CreatePlan persists a new payment plan.
func (s *SQLiteStore) CreatePlan(ctx context.Context, plan *models.PaymentPlan) error {
	if plan.ID == "" {
		plan.ID = uuid.New().String()
	}
	if plan.CreatedAt == 0 {
		plan.CreatedAt = now()
	}
	plan.UpdatedAt = plan.CreatedAt

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payment_plans (`+planColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID, plan.PledgeID, string(plan.Frequency), string(plan.DistributionType),
		plan.TotalPlannedAmount, plan.TotalPlannedAmountUSD, plan.Currency, plan.ExchangeRate,
		plan.InstallmentAmount, plan.NumberOfInstallments, dateValue(plan.StartDate),
		nullDateValue(plan.EndDate), nullDateValue(plan.NextPaymentDate), plan.InstallmentsPaid,
		plan.TotalPaid, plan.TotalPaidUSD, plan.RemainingAmount, plan.RemainingAmountUSD,
		boolInt(plan.USDIncomplete), string(plan.PlanStatus), boolInt(plan.IsThirdParty),
		nullString(plan.PayerContactID), nullString(plan.Notes), nullDateValue(plan.DeletedAt),
		plan.CreatedAt, plan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment plan: %w", err)
	}
	return nil
}

// GetPlan retrieves a payment plan by ID, including soft-deleted plans.
func (s *SQLiteStore) GetPlan(ctx context.Context, planID string) (*models.PaymentPlan, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+planColumns+" FROM payment_plans WHERE id = ?", planID)
	plan, err := scanPlan(row)
	if isNoRows(err) {
		return nil, notFound("payment plan", planID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment plan: %w", err)
	}
	return plan, nil
}

// ListPlansByPledge retrieves the non-deleted plans of a pledge, oldest first.
func (s *SQLiteStore) ListPlansByPledge(ctx context.Context, pledgeID string) ([]*models.PaymentPlan, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+planColumns+" FROM payment_plans WHERE pledge_id = ? AND deleted_at IS NULL ORDER BY created_at, id",
		pledgeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment plans by pledge: %w", err)
	}
	defer rows.Close()

	var plans []*models.PaymentPlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment plan: %w", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payment plans: %w", err)
	}
	return plans, nil
}

// UpdatePlan writes every mutable column of a plan.
func (s *SQLiteStore) UpdatePlan(ctx context.Context, plan *models.PaymentPlan) error {
	plan.UpdatedAt = now()

	res, err := s.db.ExecContext(ctx,
		`UPDATE payment_plans SET frequency = ?, distribution_type = ?, total_planned_amount = ?,
		 total_planned_amount_usd = ?, currency = ?, exchange_rate = ?, installment_amount = ?,
		 number_of_installments = ?, start_date = ?, end_date = ?, next_payment_date = ?,
		 installments_paid = ?, total_paid = ?, total_paid_usd = ?, remaining_amount = ?,
		 remaining_amount_usd = ?, usd_incomplete = ?, plan_status = ?, is_third_party = ?,
		 payer_contact_id = ?, notes = ?, deleted_at = ?, updated_at = ?
		 WHERE id = ?`,
		string(plan.Frequency), string(plan.DistributionType), plan.TotalPlannedAmount,
		plan.TotalPlannedAmountUSD, plan.Currency, plan.ExchangeRate, plan.InstallmentAmount,
		plan.NumberOfInstallments, dateValue(plan.StartDate), nullDateValue(plan.EndDate),
		nullDateValue(plan.NextPaymentDate), plan.InstallmentsPaid, plan.TotalPaid, plan.TotalPaidUSD,
		plan.RemainingAmount, plan.RemainingAmountUSD, boolInt(plan.USDIncomplete), string(plan.PlanStatus),
		boolInt(plan.IsThirdParty), nullString(plan.PayerContactID), nullString(plan.Notes),
		nullDateValue(plan.DeletedAt), plan.UpdatedAt, plan.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment plan: %w", err)
	}
	return checkAffected(res, "payment plan", plan.ID)
}

// DeletePlan removes a plan row.
func (s *SQLiteStore) DeletePlan(ctx context.Context, planID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM payment_plans WHERE id = ?", planID)
	if err != nil {
		return fmt.Errorf("failed to delete payment plan: %w", err)
	}
	return checkAffected(res, "payment plan", planID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*models.PaymentPlan, error) {
	plan := &models.PaymentPlan{}
	var frequency, distribution, status, startDate string
	var endDate, nextDate, deletedAt, payer, notes sql.NullString
	var incomplete, thirdParty int

	err := row.Scan(&plan.ID, &plan.PledgeID, &frequency, &distribution, &plan.TotalPlannedAmount,
		&plan.TotalPlannedAmountUSD, &plan.Currency, &plan.ExchangeRate, &plan.InstallmentAmount,
		&plan.NumberOfInstallments, &startDate, &endDate, &nextDate, &plan.InstallmentsPaid,
		&plan.TotalPaid, &plan.TotalPaidUSD, &plan.RemainingAmount, &plan.RemainingAmountUSD,
		&incomplete, &status, &thirdParty, &payer, &notes, &deletedAt, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		return nil, err
	}

	plan.Frequency = models.Frequency(frequency)
	plan.DistributionType = models.DistributionType(distribution)
	plan.PlanStatus = models.PlanStatus(status)
	plan.USDIncomplete = incomplete != 0
	plan.IsThirdParty = thirdParty != 0
	plan.PayerContactID = payer.String
	plan.Notes = notes.String

	if plan.StartDate, err = parseDate(startDate); err != nil {
		return nil, err
	}
	if plan.EndDate, err = parseNullDate(endDate); err != nil {
		return nil, err
	}
	if plan.NextPaymentDate, err = parseNullDate(nextDate); err != nil {
		return nil, err
	}
	if plan.DeletedAt, err = parseNullDate(deletedAt); err != nil {
		return nil, err
	}
	return plan, nil
}
