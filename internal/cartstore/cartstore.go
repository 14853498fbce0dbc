// Package cartstore owns the shopping cart: an ordered list of line items
// persisted through a kv.Store and announced on the notification bus after
// every mutation. Durability is best effort; the in-memory cart is the
// source of truth for the current process.
package cartstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/WhiteRabbitVintageMarket/storefront/internal/kv"
	"github.com/WhiteRabbitVintageMarket/storefront/internal/pubsub"
)

// Store is the single writer of the cart. All reads return snapshots;
// mutating a returned Cart never changes stored state.
type Store struct {
	backend kv.Store
	key     string
	bus     *pubsub.Bus
	log     logrus.FieldLogger

	mu     sync.Mutex
	cache  Cart
	loaded bool
	dirty  bool
}

func New(backend kv.Store, storageKey string, bus *pubsub.Bus, log logrus.FieldLogger) *Store {
	return &Store{
		backend: backend,
		key:     storageKey,
		bus:     bus,
		log:     log,
	}
}

// StartWatch subscribes to external writes on the cart key. A signal marks
// the cached cart stale; the next operation re-reads storage before applying,
// so a concurrent writer's mutation is not clobbered by a stale write-back.
func (s *Store) StartWatch(ctx context.Context, w kv.Watcher) error {
	ch, err := w.Watch(ctx, s.key)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
			s.mu.Lock()
			s.dirty = true
			s.mu.Unlock()
		}
	}()
	return nil
}

// Get returns a snapshot of the current cart.
func (s *Store) Get(ctx context.Context) Cart {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refresh(ctx)
	return s.cache.clone()
}

// Contains reports whether the cart holds a line item for sku.
func (s *Store) Contains(ctx context.Context, sku string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refresh(ctx)
	return s.cache.Contains(sku)
}

// Add appends a line item with quantity 1. Adding a SKU already in the cart
// is a no-op and publishes nothing.
func (s *Store) Add(ctx context.Context, sku string) {
	s.mu.Lock()
	s.refresh(ctx)

	if s.cache.Contains(sku) {
		s.mu.Unlock()
		s.log.WithField("sku", sku).Debug("product already in cart")
		return
	}

	s.cache.Items = append(s.cache.Items, LineItem{SKU: sku, Quantity: 1})
	s.persist(ctx)
	snapshot := s.cache.clone()
	s.mu.Unlock()

	s.bus.Publish(pubsub.TopicCartChanged, snapshot)
}

// Remove drops the line item for sku. Removing an absent SKU is harmless,
// but the cart is still written back and a notification still fires: callers
// rely on the event to re-render after reconciliation pruning.
func (s *Store) Remove(ctx context.Context, sku string) {
	s.mu.Lock()
	s.refresh(ctx)

	kept := s.cache.Items[:0:0]
	for _, item := range s.cache.Items {
		if item.SKU != sku {
			kept = append(kept, item)
		}
	}
	s.cache.Items = kept
	s.persist(ctx)
	snapshot := s.cache.clone()
	s.mu.Unlock()

	s.bus.Publish(pubsub.TopicCartChanged, snapshot)
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.cache = Cart{}
	s.loaded = true
	s.dirty = false
	s.persist(ctx)
	snapshot := s.cache.clone()
	s.mu.Unlock()

	s.bus.Publish(pubsub.TopicCartChanged, snapshot)
}

// refresh loads the cart from storage when the cache is cold or an external
// write was observed. Unreadable or corrupt storage degrades to an empty
// cart; the cart must render even when storage misbehaves.
// Callers hold s.mu.
func (s *Store) refresh(ctx context.Context) {
	if s.loaded && !s.dirty {
		return
	}

	s.cache = Cart{}
	s.loaded = true
	s.dirty = false

	data, err := s.backend.Get(ctx, s.key)
	if err == kv.ErrNotFound {
		return
	}
	if err != nil {
		s.log.WithError(err).Error("failed to read shopping cart from storage")
		return
	}

	var cart Cart
	if err := json.Unmarshal([]byte(data), &cart); err != nil {
		s.log.WithError(err).Error("failed to parse stored shopping cart")
		return
	}
	s.cache = cart
}

// persist writes the cart back synchronously. A failed write is logged and
// otherwise ignored: the in-memory mutation stands and the notification
// still fires. Callers hold s.mu.
func (s *Store) persist(ctx context.Context) {
	data, err := json.Marshal(s.cache)
	if err != nil {
		s.log.WithError(err).Error("failed to encode shopping cart")
		return
	}
	if err := s.backend.Set(ctx, s.key, string(data)); err != nil {
		s.log.WithError(err).Error("failed to write shopping cart to storage")
	}
}
