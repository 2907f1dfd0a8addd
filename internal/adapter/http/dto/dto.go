package dto

import "time"

// CreatePaymentLinkRequest is the request body for creating a payment link.
type CreatePaymentLinkRequest struct {
	Title             string     `json:"title" binding:"required,min=1,max=100"`
	Amount            int64      `json:"amount"`
	AllowCustomAmount bool       `json:"allow_custom_amount"`
	MinAmount         int64      `json:"min_amount"`
	MaxAmount         int64      `json:"max_amount"`
	Currency          string     `json:"currency" binding:"required,len=3"`
	IsMultiUse        bool       `json:"is_multi_use"`
	MaxUses           int        `json:"max_uses"`
	NeverExpires      bool       `json:"never_expires"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
}

// PaymentLinkResponse is the merchant-facing view of a payment link.
type PaymentLinkResponse struct {
	ID                string     `json:"id"`
	Reference         string     `json:"reference"`
	Title             string     `json:"title"`
	Amount            int64      `json:"amount"`
	AllowCustomAmount bool       `json:"allow_custom_amount"`
	MinAmount         int64      `json:"min_amount,omitempty"`
	MaxAmount         int64      `json:"max_amount,omitempty"`
	Currency          string     `json:"currency"`
	IsMultiUse        bool       `json:"is_multi_use"`
	MaxUses           int        `json:"max_uses"`
	CurrentUses       int        `json:"current_uses"`
	NeverExpires      bool       `json:"never_expires"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	Status            string     `json:"status"`
	IsActive          bool       `json:"is_active"`
	Views             int64      `json:"views"`
	UniqueViews       int64      `json:"unique_views"`
	Conversions       int64      `json:"conversions"`
	TotalCollected    int64      `json:"total_collected"`
	CreatedAt         string     `json:"created_at"`
}

// PublicPaymentLinkResponse is what a paying customer sees. It omits the
// merchant's analytics counters.
type PublicPaymentLinkResponse struct {
	Reference         string `json:"reference"`
	Title             string `json:"title"`
	Amount            int64  `json:"amount"`
	AllowCustomAmount bool   `json:"allow_custom_amount"`
	MinAmount         int64  `json:"min_amount,omitempty"`
	MaxAmount         int64  `json:"max_amount,omitempty"`
	Currency          string `json:"currency"`
	Status            string `json:"status"`
}

// CustomerDTO is the payer's contact details on a payment request.
type CustomerDTO struct {
	Name  string  `json:"name" binding:"required,min=1,max=100"`
	Phone string  `json:"phone" binding:"required,min=7,max=20"`
	Email *string `json:"email,omitempty" binding:"omitempty,email"`
}

// PayRequest is the request body a customer submits against a payment link.
type PayRequest struct {
	Amount        *int64      `json:"amount,omitempty"`
	PaymentMethod string      `json:"payment_method" binding:"required"`
	Customer      CustomerDTO `json:"customer" binding:"required"`
}

// TransactionResponse is the merchant-facing view of a transaction.
type TransactionResponse struct {
	ID                string  `json:"id"`
	Reference         string  `json:"reference"`
	Amount            int64   `json:"amount"`
	Currency          string  `json:"currency"`
	PaymentMethod     string  `json:"payment_method"`
	Status            string  `json:"status"`
	PlatformFee       int64   `json:"platform_fee"`
	TotalFees         int64   `json:"total_fees"`
	MerchantReceives  int64   `json:"merchant_receives"`
	CustomerName      string  `json:"customer_name"`
	CustomerPhone     string  `json:"customer_phone"`
	Instructions      *string `json:"instructions,omitempty"`
	ExpiresAt         string  `json:"expires_at"`
	CreatedAt         string  `json:"created_at"`
	ProcessedAt       *string `json:"processed_at,omitempty"`
	ExternalReference *string `json:"external_transaction_id,omitempty"`
}

// TransactionStatusResponse is the customer-facing polling view. It exposes
// only what the payer needs to finish the payment.
type TransactionStatusResponse struct {
	Reference    string  `json:"reference"`
	Status       string  `json:"status"`
	Amount       int64   `json:"amount"`
	Currency     string  `json:"currency"`
	Instructions *string `json:"instructions,omitempty"`
	ExpiresAt    string  `json:"expires_at"`
}

// PayoutDestinationDTO carries the method-specific receiving details.
type PayoutDestinationDTO struct {
	BankName      string `json:"bank_name,omitempty"`
	AccountName   string `json:"account_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`

	MobileNetwork string `json:"mobile_network,omitempty"`
	MobileNumber  string `json:"mobile_number,omitempty"`

	PickupLocation string `json:"pickup_location,omitempty"`
	IDNumber       string `json:"id_number,omitempty"`
}

// CreatePayoutRequest is the request body for a merchant payout.
type CreatePayoutRequest struct {
	Amount      int64                `json:"amount" binding:"required,gt=0"`
	Currency    string               `json:"currency" binding:"required,len=3"`
	Method      string               `json:"method" binding:"required"`
	Destination PayoutDestinationDTO `json:"destination" binding:"required"`
}

// PayoutResponse is the merchant-facing view of a payout.
type PayoutResponse struct {
	ID                   string  `json:"id"`
	Reference            string  `json:"reference"`
	Amount               int64   `json:"amount"`
	Currency             string  `json:"currency"`
	Method               string  `json:"method"`
	Status               string  `json:"status"`
	ProcessingFee        int64   `json:"processing_fee"`
	TotalFees            int64   `json:"total_fees"`
	NetAmount            int64   `json:"net_amount"`
	RequiresVerification bool    `json:"requires_verification"`
	ExternalReference    *string `json:"external_reference,omitempty"`
	FailureReason        *string `json:"failure_reason,omitempty"`
	CreatedAt            string  `json:"created_at"`
	ProcessedAt          *string `json:"processed_at,omitempty"`
}

// ProcessPayoutRequest is the admin request to approve a payout. The
// verification code is required for payouts at or above the threshold.
type ProcessPayoutRequest struct {
	VerificationCode string `json:"verification_code,omitempty"`
}

// CompletePayoutRequest is the admin request to settle a processed payout.
type CompletePayoutRequest struct {
	ExternalReference string `json:"external_reference" binding:"required,max=100"`
}

// FailPayoutRequest is the admin request to reject a payout.
type FailPayoutRequest struct {
	Reason string `json:"reason" binding:"required,max=255"`
}

// CancelPayoutRequest is the merchant request to withdraw a pending payout.
type CancelPayoutRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}
