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

const transactionColumns = `id, reference, external_transaction_id, merchant_id, link_id, amount, currency,
	payment_method, customer_name, customer_phone, customer_email, status,
	platform_fee, provider_fee, total_fees, merchant_receives,
	provider_transaction_id, provider_response, instructions, expires_at,
	dispatch_attempts, webhook_attempts, last_webhook_at, created_at, updated_at, processed_at`

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a new transaction.
func (r *TransactionRepo) Create(ctx context.Context, t *domain.Transaction) error {
	query := `INSERT INTO transactions (id, reference, external_transaction_id, merchant_id, link_id, amount, currency,
		payment_method, customer_name, customer_phone, customer_email, status,
		platform_fee, provider_fee, total_fees, merchant_receives,
		provider_transaction_id, provider_response, instructions, expires_at,
		dispatch_attempts, webhook_attempts, last_webhook_at, created_at, updated_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`

	_, err := r.pool.Exec(ctx, query,
		t.ID, t.Reference, t.ExternalTransactionID, t.MerchantID, t.LinkID,
		t.Amount, t.Currency, t.PaymentMethod,
		t.Customer.Name, t.Customer.Phone, t.Customer.Email, t.Status,
		t.Fees.PlatformFee, t.Fees.ProviderFee, t.Fees.TotalFees, t.Fees.MerchantReceives,
		t.ProviderTransactionID, t.ProviderResponse, t.Instructions, t.ExpiresAt,
		t.DispatchAttempts, t.WebhookAttempts, t.LastWebhookAt,
		t.CreatedAt, t.UpdatedAt, t.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID fetches a transaction by UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE id = $1`, transactionColumns)
	return r.scanTransaction(r.pool.QueryRow(ctx, query, id))
}

// GetByReference fetches a transaction by its public reference.
func (r *TransactionRepo) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE reference = $1`, transactionColumns)
	return r.scanTransaction(r.pool.QueryRow(ctx, query, reference))
}

// GetByProviderTransactionID fetches a transaction by the provider's ID.
func (r *TransactionRepo) GetByProviderTransactionID(ctx context.Context, providerTxID string) (*domain.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE provider_transaction_id = $1`, transactionColumns)
	return r.scanTransaction(r.pool.QueryRow(ctx, query, providerTxID))
}

// UpdateDispatch persists the gateway initiation outcome.
func (r *TransactionRepo) UpdateDispatch(ctx context.Context, t *domain.Transaction) error {
	query := `UPDATE transactions
		SET status = $1, provider_transaction_id = $2, provider_response = $3,
		    instructions = $4, dispatch_attempts = $5, processed_at = $6, updated_at = NOW()
		WHERE id = $7`

	tag, err := r.pool.Exec(ctx, query,
		t.Status, t.ProviderTransactionID, t.ProviderResponse,
		t.Instructions, t.DispatchAttempts, t.ProcessedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("update transaction dispatch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction not found: %s", t.ID)
	}
	return nil
}

// CompareAndSetStatus transitions the transaction only from one of the given
// statuses. The guard in the WHERE clause is what makes duplicate provider
// callbacks harmless.
func (r *TransactionRepo) CompareAndSetStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from []domain.TransactionStatus, to domain.TransactionStatus) (bool, error) {
	query := `UPDATE transactions
		SET status = $1, processed_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND status = ANY($3)`

	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}

	tag, err := tx.Exec(ctx, query, to, id, statuses)
	if err != nil {
		return false, fmt.Errorf("transaction status cas: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ExpirePending sweeps PENDING transactions past their payment window.
func (r *TransactionRepo) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE transactions
		SET status = $1, updated_at = NOW()
		WHERE status = $2 AND expires_at < $3`

	tag, err := r.pool.Exec(ctx, query, domain.TransactionStatusExpired, domain.TransactionStatusPending, now)
	if err != nil {
		return 0, fmt.Errorf("expire pending transactions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListUnresolved returns PENDING/PROCESSING transactions older than the
// cutoff, oldest first.
func (r *TransactionRepo) ListUnresolved(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions
		WHERE status = ANY($1) AND created_at < $2
		ORDER BY created_at ASC LIMIT $3`, transactionColumns)

	statuses := []string{string(domain.TransactionStatusPending), string(domain.TransactionStatusProcessing)}
	rows, err := r.pool.Query(ctx, query, statuses, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list unresolved transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := r.scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, nil
}

// RecordWebhookAttempt increments the delivery counter.
func (r *TransactionRepo) RecordWebhookAttempt(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE transactions
		SET webhook_attempts = webhook_attempts + 1, last_webhook_at = $1, updated_at = NOW()
		WHERE id = $2`

	if _, err := r.pool.Exec(ctx, query, at, id); err != nil {
		return fmt.Errorf("record webhook attempt: %w", err)
	}
	return nil
}

// scanTransaction scans a single row into a Transaction.
func (r *TransactionRepo) scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	err := row.Scan(
		&t.ID, &t.Reference, &t.ExternalTransactionID, &t.MerchantID, &t.LinkID,
		&t.Amount, &t.Currency, &t.PaymentMethod,
		&t.Customer.Name, &t.Customer.Phone, &t.Customer.Email, &t.Status,
		&t.Fees.PlatformFee, &t.Fees.ProviderFee, &t.Fees.TotalFees, &t.Fees.MerchantReceives,
		&t.ProviderTransactionID, &t.ProviderResponse, &t.Instructions, &t.ExpiresAt,
		&t.DispatchAttempts, &t.WebhookAttempts, &t.LastWebhookAt,
		&t.CreatedAt, &t.UpdatedAt, &t.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return t, nil
}
