package queue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultExchange          = "amq.direct"
	DefaultWorkQueue         = "messages"
	DefaultInitialDelayQueue = "work_delay"
	DefaultRetryDelayQueue   = "retry_delay"
)

// Topology describes the work queue and the two TTL queues that feed it.
// Items published to a delay queue wait for its TTL and are then dead-lettered
// into the work queue through Exchange under the work queue's routing key.
type Topology struct {
	Exchange          string
	WorkQueue         string
	InitialDelayQueue string
	RetryDelayQueue   string
	InitialDelay      time.Duration
	RetryDelay        time.Duration
}

// RoutingKey is the key the work queue is bound under.
func (t Topology) RoutingKey() string {
	return t.WorkQueue
}

// Validate checks names and TTLs before anything is sent to the broker.
func (t Topology) Validate() error {
	if t.Exchange == "" || t.WorkQueue == "" || t.InitialDelayQueue == "" || t.RetryDelayQueue == "" {
		return errors.New("exchange and queue names are required")
	}
	if t.WorkQueue == t.InitialDelayQueue || t.WorkQueue == t.RetryDelayQueue {
		return errors.New("delay queues must differ from the work queue")
	}
	if t.InitialDelay < time.Millisecond || t.RetryDelay < time.Millisecond {
		return errors.New("delays must be at least 1ms")
	}
	if t.InitialDelayQueue == t.RetryDelayQueue && t.InitialDelay != t.RetryDelay {
		return fmt.Errorf("queue %s cannot carry two different TTLs", t.InitialDelayQueue)
	}
	return nil
}

// Declare creates or re-asserts the whole topology. Repeating it with the same
// parameters is a no-op on the broker; a mismatch is returned as an error and
// leaves ch closed.
func (t Topology) Declare(ch Channel) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid topology: %w", err)
	}

	// amq.* exchanges are predeclared and may not be declared by clients.
	if !strings.HasPrefix(t.Exchange, "amq.") {
		if err := ch.ExchangeDeclare(t.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", t.Exchange, err)
		}
	}

	if _, err := ch.QueueDeclare(t.WorkQueue, true, false, false, false, t.workArgs()); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.WorkQueue, err)
	}
	if err := ch.QueueBind(t.WorkQueue, t.RoutingKey(), t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", t.WorkQueue, err)
	}

	if _, err := ch.QueueDeclare(t.InitialDelayQueue, true, false, false, false, t.delayArgs(t.InitialDelay)); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.InitialDelayQueue, err)
	}
	if t.RetryDelayQueue != t.InitialDelayQueue {
		if _, err := ch.QueueDeclare(t.RetryDelayQueue, true, false, false, false, t.delayArgs(t.RetryDelay)); err != nil {
			return fmt.Errorf("declare queue %s: %w", t.RetryDelayQueue, err)
		}
	}
	return nil
}

// workArgs dead-letters rejected work items into the retry delay queue through
// the default exchange, so a rejection defers the item instead of dropping it.
func (t Topology) workArgs() amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": t.RetryDelayQueue,
	}
}

func (t Topology) delayArgs(ttl time.Duration) amqp.Table {
	return amqp.Table{
		"x-message-ttl":             ttl.Milliseconds(),
		"x-dead-letter-exchange":    t.Exchange,
		"x-dead-letter-routing-key": t.RoutingKey(),
	}
}
