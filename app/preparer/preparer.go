package preparer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Envelope is what a worker knows about one email before rendering it.
type Envelope struct {
	ID      uuid.UUID
	To      string
	Subject string
	Text    string
}

type EmailPreparer interface {
	Prepare(ctx context.Context, env Envelope) ([]byte, error)
}

type Message struct {
	Envelope
	Headers []Header
	Body    []byte
	Raw     []byte
}

type Header struct {
	Name  string
	Value string
}

type Step interface {
	Prepare(ctx context.Context, msg *Message) error
}

type Chain struct {
	steps []Step
}

// NewChain builds an email preparer chain from steps.
func NewChain(steps ...Step) *Chain {
	return &Chain{steps: steps}
}

// Prepare runs all steps in order and returns the final raw message.
func (c *Chain) Prepare(ctx context.Context, env Envelope) ([]byte, error) {
	msg := &Message{Envelope: env}

	for _, step := range c.steps {
		if err := step.Prepare(ctx, msg); err != nil {
			return nil, err
		}
	}

	if len(msg.Raw) == 0 {
		return nil, fmt.Errorf("prepared raw message is empty")
	}

	return msg.Raw, nil
}
