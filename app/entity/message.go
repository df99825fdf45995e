package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusDelivered Status = "DELIVERED"
	StatusError     Status = "ERROR"
)

// IsTerminal reports whether no further transition may leave the status.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusError
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDelivered, StatusError:
		return true
	}
	return false
}

// CanTransition reports whether moving a message from one status to another is legal.
// Pending may stay pending (a retry loop) or move to either terminal status.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusPending || to == StatusDelivered || to == StatusError
	default:
		return false
	}
}

type Message struct {
	ID        uuid.UUID
	Created   time.Time
	To        string
	Subject   string
	Text      string
	Status    Status
	Retries   int
	Processed *time.Time
}

// NewMessage builds a pending message with a fresh id and zero retries.
func NewMessage(to string, subject string, text string, now time.Time) *Message {
	return &Message{
		ID:      uuid.New(),
		Created: now.UTC(),
		To:      to,
		Subject: subject,
		Text:    text,
		Status:  StatusPending,
	}
}

// NextOnFailure returns the status and retry count after a failed send attempt,
// and whether the message should be scheduled for another attempt.
func (m *Message) NextOnFailure(maxRetries int) (Status, int, bool) {
	if m.Retries < maxRetries {
		return StatusPending, m.Retries + 1, true
	}
	return StatusError, m.Retries, false
}

// ParseID reads a message id from a work item payload.
func ParseID(payload []byte) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(string(payload)))
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse message id %q: %w", payload, err)
	}
	return id, nil
}
