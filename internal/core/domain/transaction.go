package domain

import (
	"time"

	"github.com/google/uuid"
)

// Currency is an ISO-style currency code. Only two are supported.
type Currency string

const (
	CurrencySSP Currency = "SSP"
	CurrencyUSD Currency = "USD"
)

// IsSupportedCurrency reports whether the platform accepts the currency.
func IsSupportedCurrency(c Currency) bool {
	return c == CurrencySSP || c == CurrencyUSD
}

// PaymentMethod identifies the mobile-money provider a customer pays with.
type PaymentMethod string

const (
	PaymentMethodMTNMomo PaymentMethod = "MTN_MOMO"
	PaymentMethodMGurush PaymentMethod = "MGURUSH"
)

// IsSupportedPaymentMethod reports whether the platform has a gateway for the method.
func IsSupportedPaymentMethod(m PaymentMethod) bool {
	return m == PaymentMethodMTNMomo || m == PaymentMethodMGurush
}

// TransactionStatus represents the lifecycle state of a payment transaction.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "PENDING"
	TransactionStatusProcessing TransactionStatus = "PROCESSING"
	TransactionStatusSuccessful TransactionStatus = "SUCCESSFUL"
	TransactionStatusFailed     TransactionStatus = "FAILED"
	TransactionStatusExpired    TransactionStatus = "EXPIRED"
	TransactionStatusCancelled  TransactionStatus = "CANCELLED"
)

// FeeBreakdown holds the fee split of a transaction. All values are int64
// minor units (piasters/cents).
type FeeBreakdown struct {
	PlatformFee      int64 `json:"platform_fee"`
	ProviderFee      int64 `json:"provider_fee"`
	TotalFees        int64 `json:"total_fees"`
	MerchantReceives int64 `json:"merchant_receives"`
}

// Recompute re-derives the dependent fields from amount and the two fee
// components. Must be called whenever amount or a fee component changes.
func (f *FeeBreakdown) Recompute(amount int64) {
	f.TotalFees = f.PlatformFee + f.ProviderFee
	f.MerchantReceives = amount - f.TotalFees
}

// Customer holds the payer's contact details attached to a transaction.
type Customer struct {
	Name  string  `json:"name"`
	Phone string  `json:"phone"`
	Email *string `json:"email,omitempty"`
}

// Transaction is a payment record. Transactions are never deleted; terminal
// states are final and no transition out of them is permitted.
type Transaction struct {
	ID                    uuid.UUID         `json:"id"`
	Reference             string            `json:"reference"`
	ExternalTransactionID *string           `json:"external_transaction_id,omitempty"`
	MerchantID            uuid.UUID         `json:"merchant_id"`
	LinkID                *uuid.UUID        `json:"link_id,omitempty"`
	Amount                int64             `json:"amount"`
	Currency              Currency          `json:"currency"`
	PaymentMethod         PaymentMethod     `json:"payment_method"`
	Customer              Customer          `json:"customer"`
	Status                TransactionStatus `json:"status"`
	Fees                  FeeBreakdown      `json:"fees"`
	ProviderTransactionID *string           `json:"provider_transaction_id,omitempty"`
	ProviderResponse      []byte            `json:"-"` // opaque provider payload
	Instructions          *string           `json:"instructions,omitempty"`
	ExpiresAt             time.Time         `json:"expires_at"`
	DispatchAttempts      int               `json:"dispatch_attempts"`
	WebhookAttempts       int               `json:"webhook_attempts"`
	LastWebhookAt         *time.Time        `json:"last_webhook_at,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
	ProcessedAt           *time.Time        `json:"processed_at,omitempty"`
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	switch t.Status {
	case TransactionStatusSuccessful, TransactionStatusFailed,
		TransactionStatusExpired, TransactionStatusCancelled:
		return true
	}
	return false
}

// IsExpiredAt reports whether a still-pending transaction has passed its
// payment window.
func (t *Transaction) IsExpiredAt(now time.Time) bool {
	return t.Status == TransactionStatusPending && now.After(t.ExpiresAt)
}
