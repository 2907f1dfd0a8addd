package ports

import (
	"context"

	"github.com/johniman211/payssd-sub003/internal/core/domain"
)

// InitiateResult is the outcome of asking a provider to start a payment.
type InitiateResult struct {
	Success               bool
	ProviderTransactionID string
	Instructions          string // shown to the customer (e.g. USSD prompt)
	ResponseCode          string
	ResponseMessage       string
	Raw                   []byte // opaque provider payload, stored as-is
}

// StatusResult is the outcome of polling a provider for a transaction status.
type StatusResult struct {
	Status string // provider-specific token, normalized by the engine
	Raw    []byte
}

// PaymentGateway abstracts one external mobile-money provider.
type PaymentGateway interface {
	Method() domain.PaymentMethod
	Initiate(ctx context.Context, t *domain.Transaction) (*InitiateResult, error)
	CheckStatus(ctx context.Context, providerTransactionID string) (*StatusResult, error)

	// IsSuccess reports whether the provider token means the payment went
	// through. Each provider uses a different vocabulary.
	IsSuccess(token string) bool
	// IsPending reports whether the provider token means the payment is
	// still in flight (no reconciliation should happen).
	IsPending(token string) bool
}

// GatewaySelector resolves the gateway for a payment method, chosen once at
// startup from configuration.
type GatewaySelector interface {
	Gateway(method domain.PaymentMethod) (PaymentGateway, error)
}
