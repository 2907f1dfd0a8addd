package ports

import (
	"context"
	"time"

	"github.com/johniman211/payssd-sub003/internal/core/domain"

	"github.com/google/uuid"
)

// FeeService computes platform and payout fees. Pure, no side effects.
type FeeService interface {
	// TransactionFees returns the fee breakdown for a payment of the given
	// amount (minor units).
	TransactionFees(amount int64) domain.FeeBreakdown
	// PayoutFees returns the per-method payout fee breakdown.
	PayoutFees(method domain.PayoutMethod, amount int64) (domain.PayoutFees, error)
}

// CreateTransactionRequest holds validated input for creating a transaction
// against a payment link.
type CreateTransactionRequest struct {
	LinkReference string
	Amount        *int64 // required for custom-amount links, ignored otherwise
	PaymentMethod domain.PaymentMethod
	Customer      domain.Customer
}

// TransactionService is the transaction engine: create, dispatch, reconcile.
type TransactionService interface {
	// Create validates the payment link, computes fees and persists a
	// PENDING transaction.
	Create(ctx context.Context, req CreateTransactionRequest) (*domain.Transaction, error)

	// Dispatch sends the transaction to its provider gateway. Adapter
	// success moves it to PROCESSING; adapter failure moves it to FAILED.
	Dispatch(ctx context.Context, t *domain.Transaction) (*domain.Transaction, error)

	Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByReference(ctx context.Context, reference string) (*domain.Transaction, error)

	// Reconcile applies a provider-reported status exactly once. Reconciling
	// an already-terminal transaction is a silent no-op.
	Reconcile(ctx context.Context, transactionID uuid.UUID, providerStatus string) error

	// HandleProviderCallback verifies the inbound webhook signature against
	// the transaction merchant's secret before reconciling. Rejects on
	// mismatch with no state mutation.
	HandleProviderCallback(ctx context.Context, rawBody []byte, signature string) error

	// ExpirePending sweeps PENDING transactions past their expiry.
	ExpirePending(ctx context.Context) (int64, error)

	// PollUnresolved polls provider status for transactions stuck in
	// PENDING/PROCESSING longer than the staleness cutoff.
	PollUnresolved(ctx context.Context) error
}

// CreatePaymentLinkRequest holds validated input for creating a payment link.
type CreatePaymentLinkRequest struct {
	MerchantID        uuid.UUID
	Title             string
	Amount            int64
	AllowCustomAmount bool
	MinAmount         int64
	MaxAmount         int64
	Currency          domain.Currency
	IsMultiUse        bool
	MaxUses           int
	NeverExpires      bool
	ExpiresAt         *time.Time
}

// PaymentLinkService manages payable offers.
type PaymentLinkService interface {
	Create(ctx context.Context, req CreatePaymentLinkRequest) (*domain.PaymentLink, error)
	GetByReference(ctx context.Context, reference string) (*domain.PaymentLink, error)

	// View records a link view (unique per viewerKey within the tracking
	// window) and returns the link for rendering. Demotes stale links
	// before returning.
	View(ctx context.Context, reference string, viewerKey string) (*domain.PaymentLink, error)

	// Pause/Resume toggle an active link.
	Pause(ctx context.Context, merchantID, linkID uuid.UUID) error
	Resume(ctx context.Context, merchantID, linkID uuid.UUID) error

	// DemoteStale sweeps expired/exhausted links.
	DemoteStale(ctx context.Context) (int64, error)
}

// PayoutRequest holds validated input for a payout request.
type PayoutRequest struct {
	MerchantID  uuid.UUID
	Amount      int64
	Currency    domain.Currency
	Method      domain.PayoutMethod
	Destination domain.PayoutDestination
}

// PayoutService drives payouts through their lifecycle. Process/Complete/
// Fail map to the admin approve/complete/reject actions.
type PayoutService interface {
	Request(ctx context.Context, req PayoutRequest) (*domain.Payout, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Payout, error)
	Process(ctx context.Context, payoutID, operator uuid.UUID) (*domain.Payout, error)
	Complete(ctx context.Context, payoutID uuid.UUID, externalReference string) (*domain.Payout, error)
	Fail(ctx context.Context, payoutID uuid.UUID, reason string) (*domain.Payout, error)
	Cancel(ctx context.Context, payoutID uuid.UUID, reason string) (*domain.Payout, error)
}

// WebhookService delivers signed state-change notifications to merchant
// endpoints. Delivery is asynchronous and never blocks or reverses the
// triggering state change.
type WebhookService interface {
	NotifyTransaction(ctx context.Context, t *domain.Transaction, event string)
	NotifyPayout(ctx context.Context, p *domain.Payout, event string)
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secret string, payload string) string
	Verify(secret string, payload string, signature string) bool
}

// TokenService handles dashboard JWT operations.
type TokenService interface {
	Generate(merchantID uuid.UUID) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	MerchantID uuid.UUID
}

// VerificationService issues and checks payout verification codes.
type VerificationService interface {
	GenerateCode() (string, error)
	Hash(code string) (string, error)
	Verify(code string, hash string) (bool, error)
}

// SettingsService is the cached accessor over platform settings.
type SettingsService interface {
	Get(ctx context.Context) (*domain.PlatformSettings, error)
	Invalidate()
}

// Notifier is the boundary to the excluded email/SMS subsystem.
type Notifier interface {
	AdminPaymentReceived(ctx context.Context, t *domain.Transaction) error
	PayoutVerificationCode(ctx context.Context, p *domain.Payout, code string) error
}
