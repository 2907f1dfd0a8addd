package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentLinkStatus represents the lifecycle state of a payment link.
type PaymentLinkStatus string

const (
	PaymentLinkStatusActive    PaymentLinkStatus = "ACTIVE"
	PaymentLinkStatusPaused    PaymentLinkStatus = "PAUSED"
	PaymentLinkStatusExpired   PaymentLinkStatus = "EXPIRED"
	PaymentLinkStatusCompleted PaymentLinkStatus = "COMPLETED"
)

// PaymentLink is a payable offer a merchant shares with customers.
type PaymentLink struct {
	ID         uuid.UUID `json:"id"`
	Reference  string    `json:"reference"`
	MerchantID uuid.UUID `json:"merchant_id"`
	Title      string    `json:"title"`

	// Amount is the fixed price in minor units. When AllowCustomAmount is
	// set the customer chooses within [MinAmount, MaxAmount] instead.
	Amount            int64    `json:"amount"`
	AllowCustomAmount bool     `json:"allow_custom_amount"`
	MinAmount         int64    `json:"min_amount"`
	MaxAmount         int64    `json:"max_amount"`
	Currency          Currency `json:"currency"`

	IsMultiUse  bool `json:"is_multi_use"`
	MaxUses     int  `json:"max_uses"` // 0 = unlimited
	CurrentUses int  `json:"current_uses"`

	NeverExpires bool       `json:"never_expires"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`

	Status   PaymentLinkStatus `json:"status"`
	IsActive bool              `json:"is_active"`

	Views          int64 `json:"views"`
	UniqueViews    int64 `json:"unique_views"`
	Conversions    int64 `json:"conversions"`
	TotalCollected int64 `json:"total_collected"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AccessibleAt reports whether the link can take a payment at the given
// instant. The second return value names the first failed condition.
func (l *PaymentLink) AccessibleAt(now time.Time) (bool, string) {
	if !l.IsActive {
		return false, "link is deactivated"
	}
	if l.Status != PaymentLinkStatusActive {
		return false, "link is " + string(l.Status)
	}
	if !l.NeverExpires && l.ExpiresAt != nil && now.After(*l.ExpiresAt) {
		return false, "link has expired"
	}
	if l.MaxUses > 0 && l.CurrentUses >= l.MaxUses {
		return false, "link usage limit reached"
	}
	return true, ""
}

// Maintain demotes a stale ACTIVE link before it is persisted: past expiry it
// becomes EXPIRED, at its usage cap it becomes COMPLETED. Returns true when a
// transition happened.
func (l *PaymentLink) Maintain(now time.Time) bool {
	if l.Status != PaymentLinkStatusActive {
		return false
	}
	if !l.NeverExpires && l.ExpiresAt != nil && now.After(*l.ExpiresAt) {
		l.Status = PaymentLinkStatusExpired
		l.IsActive = false
		return true
	}
	if l.MaxUses > 0 && l.CurrentUses >= l.MaxUses {
		l.Status = PaymentLinkStatusCompleted
		l.IsActive = false
		return true
	}
	return false
}

// RecordPayment applies a successful payment to the link's counters and
// completes single-use links.
func (l *PaymentLink) RecordPayment(amount int64) {
	l.CurrentUses++
	l.Conversions++
	l.TotalCollected += amount
	if !l.IsMultiUse {
		l.Status = PaymentLinkStatusCompleted
		l.IsActive = false
	}
}
