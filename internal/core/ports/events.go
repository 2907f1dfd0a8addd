package ports

import (
	"time"

	"github.com/google/uuid"
)

// Event is a state-change notification broadcast to merchant subscribers.
type Event struct {
	Type       string    `json:"type"`
	MerchantID uuid.UUID `json:"merchant_id"`
	Payload    any       `json:"payload"`
	At         time.Time `json:"at"`
}

// EventPublisher broadcasts events to a merchant's live subscribers.
// Publishing must never block the caller.
type EventPublisher interface {
	Publish(merchantID uuid.UUID, evt Event)
}
