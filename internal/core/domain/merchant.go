package domain

import (
	"time"

	"github.com/google/uuid"
)

// MerchantStatus represents the state of a merchant account.
type MerchantStatus string

const (
	MerchantStatusActive    MerchantStatus = "ACTIVE"
	MerchantStatusSuspended MerchantStatus = "SUSPENDED"
)

// Balance is the merchant's fund ledger in minor units. Available must never
// go negative; pending only grows via payout holds and only shrinks when a
// payout completes or its hold is refunded.
type Balance struct {
	Available int64    `json:"available"`
	Pending   int64    `json:"pending"`
	Currency  Currency `json:"currency"`
}

// Merchant represents a registered merchant in the system.
type Merchant struct {
	ID            uuid.UUID      `json:"id"`
	BusinessName  string         `json:"business_name"`
	Email         string         `json:"email"`
	WebhookURL    *string        `json:"webhook_url,omitempty"`
	WebhookSecret string         `json:"-"` // Signs webhooks both directions, never expose
	Balance       Balance        `json:"balance"`
	Status        MerchantStatus `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// IsActive returns true if the merchant account is active.
func (m *Merchant) IsActive() bool {
	return m.Status == MerchantStatusActive
}
