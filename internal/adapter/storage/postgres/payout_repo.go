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

const payoutColumns = `id, reference, merchant_id, amount, currency, method,
	bank_name, account_name, account_number, mobile_network, mobile_number, pickup_location, id_number,
	status, processing_fee, bank_fee, total_fees, net_amount, funds_held,
	requires_verification, verification_code_hash, processed_by, processed_at,
	external_reference, failure_reason, created_at, updated_at`

// PayoutRepo implements ports.PayoutRepository. Every state transition is a
// guarded UPDATE keyed on the current status.
type PayoutRepo struct {
	pool Pool
}

// NewPayoutRepo creates a new PayoutRepo.
func NewPayoutRepo(pool Pool) *PayoutRepo {
	return &PayoutRepo{pool: pool}
}

// Create inserts a new payout inside the hold transaction.
func (r *PayoutRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.Payout) error {
	query := `INSERT INTO payouts (id, reference, merchant_id, amount, currency, method,
		bank_name, account_name, account_number, mobile_network, mobile_number, pickup_location, id_number,
		status, processing_fee, bank_fee, total_fees, net_amount, funds_held,
		requires_verification, verification_code_hash, processed_by, processed_at,
		external_reference, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)`

	d := p.Destination
	_, err := tx.Exec(ctx, query,
		p.ID, p.Reference, p.MerchantID, p.Amount, p.Currency, p.Method,
		d.BankName, d.AccountName, d.AccountNumber, d.MobileNetwork, d.MobileNumber, d.PickupLocation, d.IDNumber,
		p.Status, p.Fees.ProcessingFee, p.Fees.BankFee, p.Fees.TotalFees, p.Fees.NetAmount, p.FundsHeld,
		p.RequiresVerification, p.VerificationCodeHash, p.ProcessedBy, p.ProcessedAt,
		p.ExternalReference, p.FailureReason, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payout: %w", err)
	}
	return nil
}

// GetByID fetches a payout by UUID.
func (r *PayoutRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payout, error) {
	query := fmt.Sprintf(`SELECT %s FROM payouts WHERE id = $1`, payoutColumns)

	p := &domain.Payout{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Reference, &p.MerchantID, &p.Amount, &p.Currency, &p.Method,
		&p.Destination.BankName, &p.Destination.AccountName, &p.Destination.AccountNumber,
		&p.Destination.MobileNetwork, &p.Destination.MobileNumber,
		&p.Destination.PickupLocation, &p.Destination.IDNumber,
		&p.Status, &p.Fees.ProcessingFee, &p.Fees.BankFee, &p.Fees.TotalFees, &p.Fees.NetAmount, &p.FundsHeld,
		&p.RequiresVerification, &p.VerificationCodeHash, &p.ProcessedBy, &p.ProcessedAt,
		&p.ExternalReference, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payout by id: %w", err)
	}
	return p, nil
}

// CountOpen counts the merchant's PENDING/PROCESSING payouts.
func (r *PayoutRepo) CountOpen(ctx context.Context, merchantID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM payouts WHERE merchant_id = $1 AND status = ANY($2)`

	statuses := []string{string(domain.PayoutStatusPending), string(domain.PayoutStatusProcessing)}
	var n int
	if err := r.pool.QueryRow(ctx, query, merchantID, statuses).Scan(&n); err != nil {
		return 0, fmt.Errorf("count open payouts: %w", err)
	}
	return n, nil
}

// MarkProcessing transitions PENDING → PROCESSING.
func (r *PayoutRepo) MarkProcessing(ctx context.Context, tx pgx.Tx, id uuid.UUID, operator uuid.UUID, at time.Time) (bool, error) {
	query := `UPDATE payouts
		SET status = $1, processed_by = $2, processed_at = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5`

	tag, err := tx.Exec(ctx, query, domain.PayoutStatusProcessing, operator, at, id, domain.PayoutStatusPending)
	if err != nil {
		return false, fmt.Errorf("mark payout processing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCompleted transitions PROCESSING → COMPLETED.
func (r *PayoutRepo) MarkCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID, externalReference string, at time.Time) (bool, error) {
	query := `UPDATE payouts
		SET status = $1, external_reference = $2, updated_at = $3
		WHERE id = $4 AND status = $5`

	tag, err := tx.Exec(ctx, query, domain.PayoutStatusCompleted, externalReference, at, id, domain.PayoutStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("mark payout completed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed transitions PENDING/PROCESSING → FAILED.
func (r *PayoutRepo) MarkFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string, at time.Time) (bool, error) {
	query := `UPDATE payouts
		SET status = $1, failure_reason = $2, updated_at = $3
		WHERE id = $4 AND status = ANY($5)`

	statuses := []string{string(domain.PayoutStatusPending), string(domain.PayoutStatusProcessing)}
	tag, err := tx.Exec(ctx, query, domain.PayoutStatusFailed, reason, at, id, statuses)
	if err != nil {
		return false, fmt.Errorf("mark payout failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCancelled transitions PENDING → CANCELLED.
func (r *PayoutRepo) MarkCancelled(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string, at time.Time) (bool, error) {
	query := `UPDATE payouts
		SET status = $1, failure_reason = $2, updated_at = $3
		WHERE id = $4 AND status = $5`

	tag, err := tx.Exec(ctx, query, domain.PayoutStatusCancelled, reason, at, id, domain.PayoutStatusPending)
	if err != nil {
		return false, fmt.Errorf("mark payout cancelled: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetFundsHeld flips the hold guard exactly once.
func (r *PayoutRepo) SetFundsHeld(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	query := `UPDATE payouts
		SET funds_held = TRUE, updated_at = NOW()
		WHERE id = $1 AND NOT funds_held`

	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("set payout funds held: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
