// Package pubsub is an in-process event broker. Topics are merchant IDs;
// dashboard listeners subscribe to their merchant's topic and receive state
// change events as they happen.
package pubsub

import (
	"sync"

	"github.com/johniman211/payssd-sub003/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber that
// falls this far behind starts losing events.
const subscriberBuffer = 16

type subscriber struct {
	id uint64
	ch chan ports.Event
}

// Broker implements ports.EventPublisher. Publishing never blocks: events to
// slow subscribers are dropped, and a topic disappears when its last
// subscriber leaves.
type Broker struct {
	mu     sync.RWMutex
	nextID uint64
	topics map[uuid.UUID][]*subscriber
	log    zerolog.Logger
}

// NewBroker creates an empty broker.
func NewBroker(log zerolog.Logger) *Broker {
	return &Broker{
		topics: make(map[uuid.UUID][]*subscriber),
		log:    log,
	}
}

// Subscribe registers a listener on the merchant's topic. The returned cancel
// function removes the subscription and closes the channel; it is safe to
// call more than once.
func (b *Broker) Subscribe(merchantID uuid.UUID) (<-chan ports.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscriber{id: b.nextID, ch: make(chan ports.Event, subscriberBuffer)}
	b.topics[merchantID] = append(b.topics[merchantID], sub)

	var once sync.Once
	cancel := func() {
		once.Do(func() { b.unsubscribe(merchantID, sub.id) })
	}
	return sub.ch, cancel
}

func (b *Broker) unsubscribe(merchantID uuid.UUID, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[merchantID]
	for i, s := range subs {
		if s.id == id {
			close(s.ch)
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.topics, merchantID)
	} else {
		b.topics[merchantID] = subs
	}
}

// Publish fans the event out to every subscriber of the merchant's topic.
// A full subscriber channel drops the event rather than blocking the caller.
func (b *Broker) Publish(merchantID uuid.UUID, evt ports.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.topics[merchantID] {
		select {
		case s.ch <- evt:
		default:
			b.log.Debug().
				Str("merchant_id", merchantID.String()).
				Str("event", evt.Type).
				Msg("subscriber buffer full, event dropped")
		}
	}
}

// Subscribers reports how many listeners the merchant's topic has.
func (b *Broker) Subscribers(merchantID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[merchantID])
}
