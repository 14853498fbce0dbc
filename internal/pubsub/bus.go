// Package pubsub carries change notifications between the cart engine and
// the UI widgets that react to it. The bus lives for the lifetime of the
// process and holds no state beyond its subscriber lists.
package pubsub

import "sync"

// Topic identifies a notification channel on the bus.
type Topic string

const (
	// TopicCartChanged fires after every cart mutation. The payload is the
	// new cartstore.Cart snapshot.
	TopicCartChanged Topic = "cart.changed"

	// TopicCartViewRendered fires after the cart view has been projected and
	// served. Checkout buttons use it to know when probing the cart is safe.
	// The payload is nil.
	TopicCartViewRendered Topic = "cart.view.rendered"
)

// Handler receives the payload published on a topic.
type Handler func(payload interface{})

type subscription struct {
	id uint64
	fn Handler
}

// Bus is a synchronous publish/subscribe channel. Handlers run on the
// publisher's goroutine, in subscription order.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[Topic][]subscription
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]subscription)}
}

// Subscribe registers fn for topic and returns a function that removes the
// subscription again.
func (b *Bus) Subscribe(topic Topic, fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[topic]
		for i, s := range subs {
			if s.id == id {
				b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers payload to every handler subscribed to topic at the time
// of the call. The subscriber list is snapshotted before delivery, so a
// handler subscribed mid-delivery does not see the event.
func (b *Bus) Publish(topic Topic, payload interface{}) {
	b.mu.Lock()
	subs := make([]subscription, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(payload)
	}
}
