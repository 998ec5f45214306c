package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDelivers(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(4)

	bus.Publish(Event{Kind: KindTransaction, Payload: "tx-1"})

	select {
	case ev := <-ch:
		assert.Equal(t, KindTransaction, ev.Kind)
		assert.Equal(t, "tx-1", ev.Payload)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBusNeverBlocksOnFullSubscriber(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// second publish overflows the buffer and must be dropped, not block
		bus.Publish(Event{Kind: KindChainEntry})
		bus.Publish(Event{Kind: KindChainEntry})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	require.Len(t, ch, 1)
}

func TestBusMultipleSubscribers(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe(1)
	b := bus.Subscribe(1)

	bus.Publish(Event{Kind: KindPaymentRequest})

	assert.Len(t, a, 1)
	assert.Len(t, b, 1)
}
