package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrAlreadyHeld = errors.New("lock already held by this process")
var ErrNotAcquired = errors.New("lock not acquired")

const keyPrefix = "mailqueue:message:"

// Locker guards a message id while one consumer is delivering it.
type Locker interface {
	// Acquire tries to lock a key for the given TTL without waiting.
	Acquire(ctx context.Context, key string, ttl time.Duration) error
	// Release frees the lock for the given key.
	Release(ctx context.Context, key string) error
}

// MessageKey returns the lock key for a message id.
func MessageKey(id uuid.UUID) string {
	return keyPrefix + id.String()
}

// NoopLocker always grants the lock. Used when LOCK_BACKEND=none.
type NoopLocker struct{}

func NewNoopLocker() NoopLocker { return NoopLocker{} }

func (NoopLocker) Acquire(_ context.Context, _ string, _ time.Duration) error { return nil }
func (NoopLocker) Release(_ context.Context, _ string) error                  { return nil }
