package main

import (
	"context"
	"sync/atomic"

	"github.com/WhiteRabbitVintageMarket/storefront/internal/cartstore"
	"github.com/WhiteRabbitVintageMarket/storefront/internal/pubsub"
)

// badgeCounter tracks the cart line-item count for the nav badge. It never
// reads the cart after construction; it follows cart.changed notifications,
// which is what keeps it honest without a reference to the store.
type badgeCounter struct {
	count int64
}

func newBadgeCounter(ctx context.Context, cart *cartstore.Store, bus *pubsub.Bus) *badgeCounter {
	b := &badgeCounter{}
	atomic.StoreInt64(&b.count, int64(len(cart.Get(ctx).Items)))
	bus.Subscribe(pubsub.TopicCartChanged, func(payload interface{}) {
		if snapshot, ok := payload.(cartstore.Cart); ok {
			atomic.StoreInt64(&b.count, int64(len(snapshot.Items)))
		}
	})
	return b
}

func (b *badgeCounter) Count() int {
	return int(atomic.LoadInt64(&b.count))
}
