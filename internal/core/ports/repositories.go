package ports

import (
	"context"
	"time"

	"github.com/johniman211/payssd-sub003/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MerchantRepository defines persistence operations for merchants and their
// embedded balance ledger. Balance mutations are single guarded UPDATEs, not
// read-modify-write; methods accepting pgx.Tx run inside transaction blocks.
type MerchantRepository interface {
	Create(ctx context.Context, merchant *domain.Merchant) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error)

	// CreditAvailable atomically adds amount to the available balance.
	CreditAvailable(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, amount int64) error
	// HoldFunds atomically moves amount from available to pending, but only
	// when available >= amount. Returns false when the balance is short; no
	// partial mutation happens in that case.
	HoldFunds(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, amount int64) (bool, error)
	// ReleaseHold atomically moves amount from pending back to available.
	ReleaseHold(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, amount int64) error
	// SettleHold atomically removes amount from pending. The funds have left
	// the platform.
	SettleHold(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, amount int64) error
}

// TransactionRepository defines persistence operations for transactions.
type TransactionRepository interface {
	Create(ctx context.Context, t *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	GetByProviderTransactionID(ctx context.Context, providerTxID string) (*domain.Transaction, error)

	// UpdateDispatch persists the gateway initiation outcome: status,
	// provider transaction id, customer instructions, raw response and the
	// dispatch attempt counter.
	UpdateDispatch(ctx context.Context, t *domain.Transaction) error

	// CompareAndSetStatus transitions the transaction to the given terminal
	// status only if its current status is one of from. Returns false when
	// the guard does not match (transaction already terminal) — this is the
	// safeguard against double-crediting on duplicate provider callbacks.
	CompareAndSetStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from []domain.TransactionStatus, to domain.TransactionStatus) (bool, error)

	// ExpirePending moves every PENDING transaction past its expiry to
	// EXPIRED. Returns the number of transactions expired.
	ExpirePending(ctx context.Context, now time.Time) (int64, error)

	// ListUnresolved returns PENDING/PROCESSING transactions created before
	// the cutoff, for the reconciliation polling sweep.
	ListUnresolved(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Transaction, error)

	// RecordWebhookAttempt increments the delivery counter.
	RecordWebhookAttempt(ctx context.Context, id uuid.UUID, at time.Time) error
}

// PaymentLinkRepository defines persistence operations for payment links.
type PaymentLinkRepository interface {
	Create(ctx context.Context, link *domain.PaymentLink) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentLink, error)
	GetByReference(ctx context.Context, reference string) (*domain.PaymentLink, error)
	Update(ctx context.Context, link *domain.PaymentLink) error

	// ApplyPayment atomically increments current_uses, conversions and
	// total_collected and completes the link when it is single-use or its
	// usage cap is reached.
	ApplyPayment(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error

	// IncrementViews bumps the view counters.
	IncrementViews(ctx context.Context, id uuid.UUID, unique bool) error

	// DemoteStale expires/completes ACTIVE links whose expiry passed or
	// whose usage cap is reached. Returns the number of links demoted.
	DemoteStale(ctx context.Context, now time.Time) (int64, error)
}

// PayoutRepository defines persistence operations for payouts. Every state
// transition is a guarded UPDATE keyed on the current status; a false return
// means the payout was not in a state that permits the transition.
type PayoutRepository interface {
	Create(ctx context.Context, tx pgx.Tx, payout *domain.Payout) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payout, error)
	CountOpen(ctx context.Context, merchantID uuid.UUID) (int, error)

	MarkProcessing(ctx context.Context, tx pgx.Tx, id uuid.UUID, operator uuid.UUID, at time.Time) (bool, error)
	MarkCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID, externalReference string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string, at time.Time) (bool, error)
	MarkCancelled(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string, at time.Time) (bool, error)

	// SetFundsHeld flips the hold guard. Returns false when the hold was
	// already recorded, making repeated hold application a no-op.
	SetFundsHeld(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
}

// WebhookRepository persists outbound webhook delivery attempts.
type WebhookRepository interface {
	Create(ctx context.Context, log *domain.WebhookDeliveryLog) error
	Update(ctx context.Context, log *domain.WebhookDeliveryLog) error
	GetByTransactionID(ctx context.Context, txID uuid.UUID) ([]domain.WebhookDeliveryLog, error)
}

// SettingsRepository reads/writes the platform settings row.
type SettingsRepository interface {
	Get(ctx context.Context) (*domain.PlatformSettings, error)
	Update(ctx context.Context, settings *domain.PlatformSettings) error
}

// ViewTracker decides whether a payment-link view is the first from a given
// viewer within the tracking window.
type ViewTracker interface {
	// MarkViewed returns true when this viewer had not seen the link yet.
	MarkViewed(ctx context.Context, linkID uuid.UUID, viewerKey string, ttl time.Duration) (bool, error)
}

// CallbackDedupe is a best-effort fast path that drops duplicate provider
// callbacks before they reach the engine. The status compare-and-set remains
// the authoritative safeguard.
type CallbackDedupe interface {
	// CheckAndSet returns true when the callback key is new.
	CheckAndSet(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
