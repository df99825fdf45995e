package queue

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vibast-solutions/ms-go-mailqueue/app/service"
)

var ErrDeliveriesClosed = errors.New("delivery channel closed by broker")

// Processor handles one work item and settles it through ack.
type Processor interface {
	ProcessMessage(ctx context.Context, ack service.Acknowledger, payload []byte) service.Outcome
}

type EmailConsumer struct {
	opener       ChannelOpener
	processor    Processor
	queue        string
	consumerName string
	count        int
	log          zerolog.Logger
}

// NewEmailConsumer constructs a work queue consumer running count channels
// with prefetch 1 each.
func NewEmailConsumer(opener ChannelOpener, processor Processor, topology Topology, consumerName string, count int, log zerolog.Logger) *EmailConsumer {
	if count < 1 {
		count = 1
	}
	return &EmailConsumer{
		opener:       opener,
		processor:    processor,
		queue:        topology.WorkQueue,
		consumerName: consumerName,
		count:        count,
		log:          log,
	}
}

// Run consumes until ctx is cancelled or a channel fails. Unsettled items are
// returned to the queue by the broker when their channel closes.
func (c *EmailConsumer) Run(ctx context.Context) error {
	subs := make([]subscription, 0, c.count)
	for i := 0; i < c.count; i++ {
		tag := fmt.Sprintf("%s-%d", c.consumerName, i)
		ch, deliveries, err := c.subscribe(tag)
		if err != nil {
			for _, s := range subs {
				_ = s.ch.Close()
			}
			return err
		}
		subs = append(subs, subscription{tag: tag, ch: ch, deliveries: deliveries})
	}

	c.log.Info().
		Str("queue", c.queue).
		Str("consumer", c.consumerName).
		Int("channels", c.count).
		Msg("consumer started")

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range subs {
		g.Go(func() error {
			defer s.ch.Close()
			return c.consume(gctx, s.ch, s.tag, s.deliveries)
		})
	}

	err := g.Wait()
	c.log.Info().Str("consumer", c.consumerName).Msg("consumer stopped")
	return err
}

type subscription struct {
	tag        string
	ch         Channel
	deliveries <-chan amqp.Delivery
}

func (c *EmailConsumer) subscribe(tag string) (Channel, <-chan amqp.Delivery, error) {
	ch, err := c.opener.Channel()
	if err != nil {
		return nil, nil, err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("set prefetch on %s: %w", tag, err)
	}
	deliveries, err := ch.Consume(c.queue, tag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("consume %s as %s: %w", c.queue, tag, err)
	}
	return ch, deliveries, nil
}

func (c *EmailConsumer) consume(ctx context.Context, ch Channel, tag string, deliveries <-chan amqp.Delivery) error {
	// In-flight items finish on their own send timeout after shutdown starts.
	workCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			if err := ch.Cancel(tag, false); err != nil {
				c.log.Warn().Err(err).Str("consumer", tag).Msg("cancel consumer")
			}
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%s: %w", tag, ErrDeliveriesClosed)
			}
			outcome := c.processor.ProcessMessage(workCtx, deliveryAck{d: d}, d.Body)
			c.log.Debug().
				Str("consumer", tag).
				Uint64("delivery_tag", d.DeliveryTag).
				Bool("redelivered", d.Redelivered).
				Str("outcome", string(outcome)).
				Msg("work item settled")
		}
	}
}

// deliveryAck settles an amqp.Delivery. Reject never requeues in place: the
// work queue dead-letters rejected items into the retry delay queue.
type deliveryAck struct {
	d amqp.Delivery
}

func (a deliveryAck) Ack() error {
	return a.d.Ack(false)
}

func (a deliveryAck) Reject() error {
	return a.d.Reject(false)
}
