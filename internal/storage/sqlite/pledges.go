package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/mmynk/pledgeledger/internal/models"
)

// CreateContact persists a new contact.
func (s *SQLiteStore) CreateContact(ctx context.Context, contact *models.Contact) error {
	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}
	if contact.CreatedAt == 0 {
		contact.CreatedAt = now()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO contacts (id, name, created_at) VALUES (?, ?, ?)",
		contact.ID, contact.Name, contact.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert contact: %w", err)
	}
	return nil
}

// ContactExists reports whether a contact with the given ID exists.
func (s *SQLiteStore) ContactExists(ctx context.Context, contactID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM contacts WHERE id = ?", contactID).Scan(&exists)
	if isNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check contact existence: %w", err)
	}
	return true, nil
}

// CreatePledge persists a new pledge. Derived totals start from the given values.
func (s *SQLiteStore) CreatePledge(ctx context.Context, pledge *models.Pledge) error {
	if pledge.ID == "" {
		pledge.ID = uuid.New().String()
	}
	if pledge.CreatedAt == 0 {
		pledge.CreatedAt = now()
	}
	pledge.UpdatedAt = pledge.CreatedAt

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pledges (id, contact_id, original_amount, currency, exchange_rate, original_amount_usd,
		 total_paid, total_paid_usd, balance, balance_usd, usd_incomplete, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pledge.ID, pledge.ContactID, pledge.OriginalAmount, pledge.Currency, pledge.ExchangeRate, pledge.OriginalAmountUSD,
		pledge.TotalPaid, pledge.TotalPaidUSD, pledge.Balance, pledge.BalanceUSD, boolInt(pledge.USDIncomplete),
		nullString(pledge.Description), pledge.CreatedAt, pledge.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert pledge: %w", err)
	}
	return nil
}

// GetPledge retrieves a pledge by ID.
func (s *SQLiteStore) GetPledge(ctx context.Context, pledgeID string) (*models.Pledge, error) {
	pledge := &models.Pledge{}
	var description sql.NullString
	var incomplete int

	err := s.db.QueryRowContext(ctx,
		`SELECT id, contact_id, original_amount, currency, exchange_rate, original_amount_usd,
		 total_paid, total_paid_usd, balance, balance_usd, usd_incomplete, description, created_at, updated_at
		 FROM pledges WHERE id = ?`,
		pledgeID,
	).Scan(&pledge.ID, &pledge.ContactID, &pledge.OriginalAmount, &pledge.Currency, &pledge.ExchangeRate,
		&pledge.OriginalAmountUSD, &pledge.TotalPaid, &pledge.TotalPaidUSD, &pledge.Balance, &pledge.BalanceUSD,
		&incomplete, &description, &pledge.CreatedAt, &pledge.UpdatedAt)

	if isNoRows(err) {
		return nil, notFound("pledge", pledgeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pledge: %w", err)
	}

	pledge.USDIncomplete = incomplete != 0
	if description.Valid {
		pledge.Description = description.String
	}
	return pledge, nil
}

// UpdatePledgeTotals writes the derived totals of a pledge.
func (s *SQLiteStore) UpdatePledgeTotals(ctx context.Context, pledge *models.Pledge) error {
	pledge.UpdatedAt = now()

	res, err := s.db.ExecContext(ctx,
		`UPDATE pledges SET total_paid = ?, total_paid_usd = ?, balance = ?, balance_usd = ?,
		 usd_incomplete = ?, updated_at = ? WHERE id = ?`,
		pledge.TotalPaid, pledge.TotalPaidUSD, pledge.Balance, pledge.BalanceUSD,
		boolInt(pledge.USDIncomplete), pledge.UpdatedAt, pledge.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update pledge totals: %w", err)
	}
	return checkAffected(res, "pledge", pledge.ID)
}
