// Package events delivers post-commit notifications to downstream consumers.
// Publishing happens after the database transaction commits and must never
// block or fail a core operation: delivery is asynchronous and events are
// dropped (with a log line) if a subscriber cannot keep up.
package events

import (
	"log"
	"sync"
)

// Event kinds emitted by the core.
const (
	KindTransaction    = "transaction"
	KindPaymentRequest = "payment_request"
	KindChainEntry     = "chain_entry"
)

// Event is a committed fact, published best-effort.
type Event struct {
	Kind    string
	Payload any
}

// Publisher is what the services see.
type Publisher interface {
	Publish(ev Event)
}

// Bus fans events out to subscribers over buffered channels. Subscribe before
// the first Publish; subscriptions are not removable.
type Bus struct {
	mu   sync.RWMutex
	subs []chan Event
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a consumer and returns its channel. The caller drains
// the channel on its own goroutine.
func (b *Bus) Subscribe(buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers ev to every subscriber without blocking. A full subscriber
// buffer drops the event for that subscriber only.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Printf("events: dropping %s event for slow subscriber", ev.Kind)
		}
	}
}

// Discard is a Publisher that ignores everything. Used in tests and in tools
// that have no notification consumers.
type Discard struct{}

func (Discard) Publish(Event) {}
