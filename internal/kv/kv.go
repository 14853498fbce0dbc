// Package kv abstracts the durable key/value storage behind the cart. Values
// are opaque strings; the cart store decides the document format.
package kv

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("kv: key not found")

// Store is a synchronous get/set interface over durable storage.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Watcher reports external writes to a key, e.g. another process sharing the
// same storage. Signals are advisory: a receiver should re-read the key
// rather than trust any cached value. Senders never block; a signal may be
// coalesced with a later one.
type Watcher interface {
	Watch(ctx context.Context, key string) (<-chan struct{}, error)
}
