package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/johniman211/payssd-sub003/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MerchantRepo implements ports.MerchantRepository. The balance columns are
// only ever mutated through guarded single-statement UPDATEs, never through
// read-modify-write.
type MerchantRepo struct {
	pool Pool
}

// NewMerchantRepo creates a new MerchantRepo.
func NewMerchantRepo(pool Pool) *MerchantRepo {
	return &MerchantRepo{pool: pool}
}

// Create inserts a new merchant into the database.
func (r *MerchantRepo) Create(ctx context.Context, m *domain.Merchant) error {
	query := `INSERT INTO merchants (id, business_name, email, webhook_url, webhook_secret,
		balance_available, balance_pending, balance_currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		m.ID, m.BusinessName, m.Email, m.WebhookURL, m.WebhookSecret,
		m.Balance.Available, m.Balance.Pending, m.Balance.Currency,
		m.Status, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert merchant: %w", err)
	}
	return nil
}

// GetByID fetches a merchant by its UUID.
func (r *MerchantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error) {
	query := `SELECT id, business_name, email, webhook_url, webhook_secret,
		balance_available, balance_pending, balance_currency, status, created_at, updated_at
		FROM merchants WHERE id = $1`

	m := &domain.Merchant{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.BusinessName, &m.Email, &m.WebhookURL, &m.WebhookSecret,
		&m.Balance.Available, &m.Balance.Pending, &m.Balance.Currency,
		&m.Status, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get merchant by id: %w", err)
	}
	return m, nil
}

// CreditAvailable atomically adds amount to the available balance.
func (r *MerchantRepo) CreditAvailable(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, amount int64) error {
	query := `UPDATE merchants
		SET balance_available = balance_available + $1, updated_at = NOW()
		WHERE id = $2`

	tag, err := tx.Exec(ctx, query, amount, merchantID)
	if err != nil {
		return fmt.Errorf("credit available balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("merchant not found: %s", merchantID)
	}
	return nil
}

// HoldFunds moves amount from available to pending in one guarded statement.
// The WHERE clause is the balance check: zero rows affected means the
// available balance was short and nothing changed.
func (r *MerchantRepo) HoldFunds(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, amount int64) (bool, error) {
	query := `UPDATE merchants
		SET balance_available = balance_available - $1,
		    balance_pending = balance_pending + $1,
		    updated_at = NOW()
		WHERE id = $2 AND balance_available >= $1`

	tag, err := tx.Exec(ctx, query, amount, merchantID)
	if err != nil {
		return false, fmt.Errorf("hold funds: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseHold refunds a hold back to the available balance.
func (r *MerchantRepo) ReleaseHold(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, amount int64) error {
	query := `UPDATE merchants
		SET balance_available = balance_available + $1,
		    balance_pending = balance_pending - $1,
		    updated_at = NOW()
		WHERE id = $2`

	tag, err := tx.Exec(ctx, query, amount, merchantID)
	if err != nil {
		return fmt.Errorf("release hold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("merchant not found: %s", merchantID)
	}
	return nil
}

// SettleHold removes a completed payout's hold from the pending balance.
func (r *MerchantRepo) SettleHold(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, amount int64) error {
	query := `UPDATE merchants
		SET balance_pending = balance_pending - $1, updated_at = NOW()
		WHERE id = $2`

	tag, err := tx.Exec(ctx, query, amount, merchantID)
	if err != nil {
		return fmt.Errorf("settle hold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("merchant not found: %s", merchantID)
	}
	return nil
}
