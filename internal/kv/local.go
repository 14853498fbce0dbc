package kv

import (
	"context"
	"sync"
)

// Local keeps values in memory behind a mutex. It backs the cart in tests
// and in single-process runs without Redis.
type Local struct {
	mu       sync.RWMutex
	data     map[string]string
	watchers map[string][]chan struct{}
}

func NewLocal() *Local {
	return &Local{
		data:     make(map[string]string),
		watchers: make(map[string][]chan struct{}),
	}
}

func (l *Local) Get(ctx context.Context, key string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	value, ok := l.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (l *Local) Set(ctx context.Context, key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.data[key] = value
	return nil
}

// Watch returns a channel that fires when SetExternal writes the key.
func (l *Local) Watch(ctx context.Context, key string) (<-chan struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan struct{}, 1)
	l.watchers[key] = append(l.watchers[key], ch)
	return ch, nil
}

// SetExternal writes the key the way a second writer sharing the storage
// would: the value changes and every watcher is signalled. Regular Set calls
// by the owning store do not signal.
func (l *Local) SetExternal(key, value string) {
	l.mu.Lock()
	l.data[key] = value
	watchers := make([]chan struct{}, len(l.watchers[key]))
	copy(watchers, l.watchers[key])
	l.mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
