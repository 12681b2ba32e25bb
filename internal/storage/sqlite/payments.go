package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/mmynk/pledgeledger/internal/models"
)

const paymentColumns = `id, pledge_id, payment_plan_id, installment_schedule_id, amount, currency, amount_usd,
 amount_in_pledge_currency, amount_in_plan_currency, exchange_rate, pledge_currency_exchange_rate,
 plan_currency_exchange_rate, payment_date, payment_status, is_third_party, payer_contact_id, notes,
 created_at, updated_at`

// CreatePayment persists a new payment.
func (s *SQLiteStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.New().String()
	}
	if payment.CreatedAt == 0 {
		payment.CreatedAt = now()
	}
	payment.UpdatedAt = payment.CreatedAt

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID, nullString(payment.PledgeID), nullString(payment.PaymentPlanID),
		nullString(payment.InstallmentScheduleID), payment.Amount, payment.Currency, payment.AmountUSD,
		payment.AmountInPledgeCurrency, payment.AmountInPlanCurrency, payment.ExchangeRate,
		payment.PledgeCurrencyExchangeRate, payment.PlanCurrencyExchangeRate, dateValue(payment.PaymentDate),
		string(payment.Status), boolInt(payment.IsThirdParty), nullString(payment.PayerContactID),
		nullString(payment.Notes), payment.CreatedAt, payment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// GetPayment retrieves a payment by ID.
func (s *SQLiteStore) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id = ?", paymentID)
	payment, err := scanPayment(row)
	if isNoRows(err) {
		return nil, notFound("payment", paymentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return payment, nil
}

// ListPaymentsByPledge retrieves the direct payments of a pledge.
func (s *SQLiteStore) ListPaymentsByPledge(ctx context.Context, pledgeID string) ([]*models.Payment, error) {
	return s.listPayments(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE pledge_id = ? ORDER BY payment_date, created_at, id",
		pledgeID,
	)
}

// ListPaymentsByPlan retrieves every payment attached to a plan.
func (s *SQLiteStore) ListPaymentsByPlan(ctx context.Context, planID string) ([]*models.Payment, error) {
	return s.listPayments(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE payment_plan_id = ? ORDER BY payment_date, created_at, id",
		planID,
	)
}

func (s *SQLiteStore) listPayments(ctx context.Context, query string, arg string) ([]*models.Payment, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}
	return payments, nil
}

// UpdatePayment writes every mutable column of a payment.
func (s *SQLiteStore) UpdatePayment(ctx context.Context, payment *models.Payment) error {
	payment.UpdatedAt = now()

	res, err := s.db.ExecContext(ctx,
		`UPDATE payments SET pledge_id = ?, payment_plan_id = ?, installment_schedule_id = ?, amount = ?,
		 currency = ?, amount_usd = ?, amount_in_pledge_currency = ?, amount_in_plan_currency = ?,
		 exchange_rate = ?, pledge_currency_exchange_rate = ?, plan_currency_exchange_rate = ?,
		 payment_date = ?, payment_status = ?, is_third_party = ?, payer_contact_id = ?, notes = ?,
		 updated_at = ?
		 WHERE id = ?`,
		nullString(payment.PledgeID), nullString(payment.PaymentPlanID), nullString(payment.InstallmentScheduleID),
		payment.Amount, payment.Currency, payment.AmountUSD, payment.AmountInPledgeCurrency,
		payment.AmountInPlanCurrency, payment.ExchangeRate, payment.PledgeCurrencyExchangeRate,
		payment.PlanCurrencyExchangeRate, dateValue(payment.PaymentDate), string(payment.Status),
		boolInt(payment.IsThirdParty), nullString(payment.PayerContactID), nullString(payment.Notes),
		payment.UpdatedAt, payment.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return checkAffected(res, "payment", payment.ID)
}

// DeletePayment removes a payment row. Its allocations cascade.
func (s *SQLiteStore) DeletePayment(ctx context.Context, paymentID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM payments WHERE id = ?", paymentID)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	return checkAffected(res, "payment", paymentID)
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	payment := &models.Payment{}
	var pledgeID, planID, installmentID, payer, notes sql.NullString
	var date, status string
	var thirdParty int

	err := row.Scan(&payment.ID, &pledgeID, &planID, &installmentID, &payment.Amount, &payment.Currency,
		&payment.AmountUSD, &payment.AmountInPledgeCurrency, &payment.AmountInPlanCurrency,
		&payment.ExchangeRate, &payment.PledgeCurrencyExchangeRate, &payment.PlanCurrencyExchangeRate,
		&date, &status, &thirdParty, &payer, &notes, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return nil, err
	}

	payment.PledgeID = pledgeID.String
	payment.PaymentPlanID = planID.String
	payment.InstallmentScheduleID = installmentID.String
	payment.Status = models.PaymentStatus(status)
	payment.IsThirdParty = thirdParty != 0
	payment.PayerContactID = payer.String
	payment.Notes = notes.String
	if payment.PaymentDate, err = parseDate(date); err != nil {
		return nil, err
	}
	return payment, nil
}
