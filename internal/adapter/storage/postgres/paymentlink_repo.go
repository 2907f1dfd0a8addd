package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/johniman211/payssd-sub003/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const paymentLinkColumns = `id, reference, merchant_id, title, amount, allow_custom_amount, min_amount, max_amount,
	currency, is_multi_use, max_uses, current_uses, never_expires, expires_at, status, is_active,
	views, unique_views, conversions, total_collected, created_at, updated_at`

// PaymentLinkRepo implements ports.PaymentLinkRepository.
type PaymentLinkRepo struct {
	pool Pool
}

// NewPaymentLinkRepo creates a new PaymentLinkRepo.
func NewPaymentLinkRepo(pool Pool) *PaymentLinkRepo {
	return &PaymentLinkRepo{pool: pool}
}

// Create inserts a new payment link.
func (r *PaymentLinkRepo) Create(ctx context.Context, l *domain.PaymentLink) error {
	query := `INSERT INTO payment_links (id, reference, merchant_id, title, amount, allow_custom_amount, min_amount, max_amount,
		currency, is_multi_use, max_uses, current_uses, never_expires, expires_at, status, is_active,
		views, unique_views, conversions, total_collected, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

	_, err := r.pool.Exec(ctx, query,
		l.ID, l.Reference, l.MerchantID, l.Title,
		l.Amount, l.AllowCustomAmount, l.MinAmount, l.MaxAmount,
		l.Currency, l.IsMultiUse, l.MaxUses, l.CurrentUses,
		l.NeverExpires, l.ExpiresAt, l.Status, l.IsActive,
		l.Views, l.UniqueViews, l.Conversions, l.TotalCollected,
		l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment link: %w", err)
	}
	return nil
}

// GetByID fetches a payment link by UUID.
func (r *PaymentLinkRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentLink, error) {
	query := fmt.Sprintf(`SELECT %s FROM payment_links WHERE id = $1`, paymentLinkColumns)
	return r.scanLink(r.pool.QueryRow(ctx, query, id))
}

// GetByReference fetches a payment link by its public reference.
func (r *PaymentLinkRepo) GetByReference(ctx context.Context, reference string) (*domain.PaymentLink, error) {
	query := fmt.Sprintf(`SELECT %s FROM payment_links WHERE reference = $1`, paymentLinkColumns)
	return r.scanLink(r.pool.QueryRow(ctx, query, reference))
}

// Update persists mutable link fields.
func (r *PaymentLinkRepo) Update(ctx context.Context, l *domain.PaymentLink) error {
	query := `UPDATE payment_links
		SET title = $1, status = $2, is_active = $3, expires_at = $4, max_uses = $5, updated_at = NOW()
		WHERE id = $6`

	tag, err := r.pool.Exec(ctx, query, l.Title, l.Status, l.IsActive, l.ExpiresAt, l.MaxUses, l.ID)
	if err != nil {
		return fmt.Errorf("update payment link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment link not found: %s", l.ID)
	}
	return nil
}

// ApplyPayment records a successful payment against the link in one
// statement: usage and takings counters move together, and the link is
// completed when it is single-use or its cap is reached.
func (r *PaymentLinkRepo) ApplyPayment(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error {
	query := `UPDATE payment_links
		SET current_uses = current_uses + 1,
		    conversions = conversions + 1,
		    total_collected = total_collected + $1,
		    status = CASE
		        WHEN NOT is_multi_use OR (max_uses > 0 AND current_uses + 1 >= max_uses) THEN 'COMPLETED'
		        ELSE status
		    END,
		    is_active = CASE
		        WHEN NOT is_multi_use OR (max_uses > 0 AND current_uses + 1 >= max_uses) THEN FALSE
		        ELSE is_active
		    END,
		    updated_at = NOW()
		WHERE id = $2`

	tag, err := tx.Exec(ctx, query, amount, id)
	if err != nil {
		return fmt.Errorf("apply payment to link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment link not found: %s", id)
	}
	return nil
}

// IncrementViews bumps the view counters.
func (r *PaymentLinkRepo) IncrementViews(ctx context.Context, id uuid.UUID, unique bool) error {
	query := `UPDATE payment_links
		SET views = views + 1,
		    unique_views = unique_views + CASE WHEN $1 THEN 1 ELSE 0 END
		WHERE id = $2`

	if _, err := r.pool.Exec(ctx, query, unique, id); err != nil {
		return fmt.Errorf("increment link views: %w", err)
	}
	return nil
}

// DemoteStale expires/completes ACTIVE links whose expiry passed or whose
// usage cap is reached.
func (r *PaymentLinkRepo) DemoteStale(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE payment_links
		SET status = CASE
		        WHEN NOT never_expires AND expires_at IS NOT NULL AND expires_at < $1 THEN 'EXPIRED'
		        ELSE 'COMPLETED'
		    END,
		    is_active = FALSE,
		    updated_at = NOW()
		WHERE status = 'ACTIVE'
		  AND ((NOT never_expires AND expires_at IS NOT NULL AND expires_at < $1)
		       OR (max_uses > 0 AND current_uses >= max_uses))`

	tag, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("demote stale links: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanLink scans a single row into a PaymentLink.
func (r *PaymentLinkRepo) scanLink(row pgx.Row) (*domain.PaymentLink, error) {
	l := &domain.PaymentLink{}
	err := row.Scan(
		&l.ID, &l.Reference, &l.MerchantID, &l.Title,
		&l.Amount, &l.AllowCustomAmount, &l.MinAmount, &l.MaxAmount,
		&l.Currency, &l.IsMultiUse, &l.MaxUses, &l.CurrentUses,
		&l.NeverExpires, &l.ExpiresAt, &l.Status, &l.IsActive,
		&l.Views, &l.UniqueViews, &l.Conversions, &l.TotalCollected,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment link: %w", err)
	}
	return l, nil
}
