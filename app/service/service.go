package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrEnqueue = errors.New("message stored but could not be enqueued")

// Acknowledger settles one work item with the broker.
type Acknowledger interface {
	Ack() error
	// Reject drops the item from the work queue without requeueing it in place.
	Reject() error
}

// Publisher schedules the first delivery attempt of a stored message.
type Publisher interface {
	Publish(ctx context.Context, id uuid.UUID) error
}

// RetryScheduler schedules a later delivery attempt.
type RetryScheduler interface {
	Schedule(ctx context.Context, id uuid.UUID) error
}
