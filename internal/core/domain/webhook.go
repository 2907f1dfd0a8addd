package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookStatus represents the delivery state of an outbound webhook.
type WebhookStatus string

const (
	WebhookStatusPending   WebhookStatus = "PENDING"
	WebhookStatusDelivered WebhookStatus = "DELIVERED"
	WebhookStatusFailed    WebhookStatus = "FAILED"
)

// Outbound webhook event names.
const (
	EventTransactionSuccessful = "transaction.successful"
	EventTransactionFailed     = "transaction.failed"
	EventPayoutCompleted       = "payout.completed"
	EventPayoutFailed          = "payout.failed"
)

// WebhookDeliveryLog records each webhook delivery attempt.
type WebhookDeliveryLog struct {
	ID            uuid.UUID     `json:"id"`
	TransactionID uuid.UUID     `json:"transaction_id"`
	MerchantID    uuid.UUID     `json:"merchant_id"`
	Event         string        `json:"event"`
	WebhookURL    string        `json:"webhook_url"`
	Payload       string        `json:"payload"` // JSON string
	HTTPStatus    *int          `json:"http_status"`
	Attempt       int           `json:"attempt"`
	Status        WebhookStatus `json:"status"`
	LastError     *string       `json:"last_error"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
