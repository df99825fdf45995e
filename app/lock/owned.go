package lock

import (
	"errors"
	"sync"

	"github.com/vibast-solutions/ms-go-mailqueue/app/metrics"
)

// owned tracks the keys this process holds together with the backend state
// needed to release them.
type owned[T any] struct {
	mu   sync.Mutex
	keys map[string]T
}

func newOwned[T any]() *owned[T] {
	return &owned[T]{keys: make(map[string]T)}
}

func (o *owned[T]) holds(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.keys[key]
	return ok
}

func (o *owned[T]) put(key string, state T) {
	o.mu.Lock()
	o.keys[key] = state
	o.mu.Unlock()
}

// take removes key and returns its state, if held.
func (o *owned[T]) take(key string) (T, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	state, ok := o.keys[key]
	delete(o.keys, key)
	return state, ok
}

func observe(backend string, err error) error {
	result := "acquired"
	switch {
	case errors.Is(err, ErrNotAcquired), errors.Is(err, ErrAlreadyHeld):
		result = "contended"
	case err != nil:
		result = "error"
	}
	metrics.LockAcquisitionsTotal.WithLabelValues(backend, result).Inc()
	return err
}
