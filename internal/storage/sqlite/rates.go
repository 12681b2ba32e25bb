package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/pledgeledger/internal/models"
)

// RateOn retrieves the (base, target) rate effective exactly on date.
func (s *SQLiteStore) RateOn(ctx context.Context, base, target string, date time.Time) (*models.ExchangeRate, error) {
	return s.getRate(ctx,
		`SELECT id, base_currency, target_currency, rate, date, updated_at FROM exchange_rates
		 WHERE base_currency = ? AND target_currency = ? AND date = ?`,
		base, target, date,
	)
}

// LatestRate retrieves the most recent (base, target) rate on or before date.
func (s *SQLiteStore) LatestRate(ctx context.Context, base, target string, onOrBefore time.Time) (*models.ExchangeRate, error) {
	return s.getRate(ctx,
		`SELECT id, base_currency, target_currency, rate, date, updated_at FROM exchange_rates
		 WHERE base_currency = ? AND target_currency = ? AND date <= ?
		 ORDER BY date DESC LIMIT 1`,
		base, target, onOrBefore,
	)
}

func (s *SQLiteStore) getRate(ctx context.Context, query, base, target string, date time.Time) (*models.ExchangeRate, error) {
	rate := &models.ExchangeRate{}
	var day string

	err := s.db.QueryRowContext(ctx, query, base, target, dateValue(date)).
		Scan(&rate.ID, &rate.BaseCurrency, &rate.TargetCurrency, &rate.Rate, &day, &rate.UpdatedAt)
	if isNoRows(err) {
		return nil, notFound("exchange rate", fmt.Sprintf("%s/%s@%s", base, target, dateValue(date)))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get exchange rate: %w", err)
	}
	if rate.Date, err = parseDate(day); err != nil {
		return nil, err
	}
	return rate, nil
}

// UpsertRate inserts or replaces the rate for (base, target, date).
func (s *SQLiteStore) UpsertRate(ctx context.Context, rate *models.ExchangeRate) error {
	if rate.ID == "" {
		rate.ID = uuid.New().String()
	}
	rate.UpdatedAt = now()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exchange_rates (id, base_currency, target_currency, rate, date, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (base_currency, target_currency, date)
		 DO UPDATE SET rate = excluded.rate, updated_at = excluded.updated_at`,
		rate.ID, rate.BaseCurrency, rate.TargetCurrency, rate.Rate, dateValue(rate.Date), rate.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert exchange rate: %w", err)
	}
	return nil
}

// AppendConversionLog persists a conversion audit entry.
func (s *SQLiteStore) AppendConversionLog(ctx context.Context, entry *models.ConversionLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt == 0 {
		entry.CreatedAt = now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO currency_conversion_logs (id, payment_id, from_currency, to_currency, from_amount,
		 to_amount, exchange_rate, conversion_date, conversion_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.PaymentID, entry.FromCurrency, entry.ToCurrency, entry.FromAmount,
		entry.ToAmount, entry.ExchangeRate, dateValue(entry.ConversionDate), string(entry.ConversionType),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversion log: %w", err)
	}
	return nil
}

// ListConversionLogs retrieves the conversion entries recorded for a payment.
func (s *SQLiteStore) ListConversionLogs(ctx context.Context, paymentID string) ([]*models.ConversionLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payment_id, from_currency, to_currency, from_amount, to_amount, exchange_rate,
		 conversion_date, conversion_type, created_at
		 FROM currency_conversion_logs WHERE payment_id = ? ORDER BY created_at, id`,
		paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversion logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.ConversionLog
	for rows.Next() {
		entry := &models.ConversionLog{}
		var day, kind string
		if err := rows.Scan(&entry.ID, &entry.PaymentID, &entry.FromCurrency, &entry.ToCurrency,
			&entry.FromAmount, &entry.ToAmount, &entry.ExchangeRate, &day, &kind, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversion log: %w", err)
		}
		entry.ConversionType = models.ConversionType(kind)
		if entry.ConversionDate, err = parseDate(day); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversion logs: %w", err)
	}
	return entries, nil
}
