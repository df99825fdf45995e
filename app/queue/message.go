package queue

import (
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const payloadContentType = "text/plain"

// newPublishing builds a persistent message whose body is the canonical id text.
func newPublishing(id uuid.UUID) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  payloadContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    id.String(),
		Body:         []byte(id.String()),
	}
}
