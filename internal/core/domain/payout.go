package domain

import (
	"time"

	"github.com/google/uuid"
)

// PayoutStatus represents the lifecycle state of a payout request.
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "PENDING"
	PayoutStatusProcessing PayoutStatus = "PROCESSING"
	PayoutStatusCompleted  PayoutStatus = "COMPLETED"
	PayoutStatusFailed     PayoutStatus = "FAILED"
	PayoutStatusCancelled  PayoutStatus = "CANCELLED"
)

// PayoutMethod identifies the rail funds leave the platform on.
type PayoutMethod string

const (
	PayoutMethodBankTransfer PayoutMethod = "BANK_TRANSFER"
	PayoutMethodMobileMoney  PayoutMethod = "MOBILE_MONEY"
	PayoutMethodCashPickup   PayoutMethod = "CASH_PICKUP"
)

// VerificationThreshold is the amount (minor units, platform base currency)
// at or above which a payout requires a verification code.
const VerificationThreshold int64 = 100_000 // 1,000.00

// PayoutDestination holds the method-specific receiving details. Only the
// fields relevant to the payout's method are populated.
type PayoutDestination struct {
	BankName      string `json:"bank_name,omitempty"`
	AccountName   string `json:"account_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`

	MobileNetwork string `json:"mobile_network,omitempty"`
	MobileNumber  string `json:"mobile_number,omitempty"`

	PickupLocation string `json:"pickup_location,omitempty"`
	IDNumber       string `json:"id_number,omitempty"`
}

// PayoutFees holds the fee split of a payout in minor units.
type PayoutFees struct {
	ProcessingFee int64 `json:"processing_fee"`
	BankFee       int64 `json:"bank_fee"`
	TotalFees     int64 `json:"total_fees"`
	NetAmount     int64 `json:"net_amount"`
}

// Recompute re-derives the dependent fields from amount and the fee
// components.
func (f *PayoutFees) Recompute(amount int64) {
	f.TotalFees = f.ProcessingFee + f.BankFee
	f.NetAmount = amount - f.TotalFees
}

// Payout is a merchant's request to move funds out of the platform.
// Immutable once completed or failed, except reconciliation metadata.
type Payout struct {
	ID          uuid.UUID         `json:"id"`
	Reference   string            `json:"reference"`
	MerchantID  uuid.UUID         `json:"merchant_id"`
	Amount      int64             `json:"amount"`
	Currency    Currency          `json:"currency"`
	Method      PayoutMethod      `json:"method"`
	Destination PayoutDestination `json:"destination"`
	Status      PayoutStatus      `json:"status"`
	Fees        PayoutFees        `json:"fees"`

	// FundsHeld guards the balance hold so re-applying it is a no-op.
	FundsHeld bool `json:"-"`

	RequiresVerification bool    `json:"requires_verification"`
	VerificationCodeHash *string `json:"-"`

	ProcessedBy       *uuid.UUID `json:"processed_by,omitempty"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
	ExternalReference *string    `json:"external_reference,omitempty"`
	FailureReason     *string    `json:"failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal returns true if the payout is in a final state.
func (p *Payout) IsTerminal() bool {
	switch p.Status {
	case PayoutStatusCompleted, PayoutStatusFailed, PayoutStatusCancelled:
		return true
	}
	return false
}

// IsOpen reports whether the payout still counts against the merchant's
// concurrent payout limit.
func (p *Payout) IsOpen() bool {
	return p.Status == PayoutStatusPending || p.Status == PayoutStatusProcessing
}

// HoldAmount is the total moved from available to pending while the payout
// is in flight: the gross amount plus fees.
func (p *Payout) HoldAmount() int64 {
	return p.Amount + p.Fees.TotalFees
}
