package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vibast-solutions/ms-go-mailqueue/app/metrics"
)

var (
	ErrNacked         = errors.New("broker refused the publish")
	ErrConfirmsClosed = errors.New("confirm channel closed")
)

// Publisher sends ids to named queues through the default exchange. AMQP
// channels are not safe for concurrent publishes, so calls are serialized.
//
// In confirm mode each publish waits for the broker reply carrying its own
// delivery tag. Replies for publishes whose caller gave up are discarded.
type Publisher struct {
	mu sync.Mutex
	ch Channel

	confirm bool
	wmu     sync.Mutex
	waiting map[uint64]chan bool
	drained bool
}

// NewPublisher wraps ch. With confirm set the channel is put in confirm mode
// and every Publish waits for the broker ack.
func NewPublisher(ch Channel, confirm bool) (*Publisher, error) {
	p := &Publisher{ch: ch, confirm: confirm}
	if confirm {
		if err := ch.Confirm(false); err != nil {
			return nil, fmt.Errorf("enable publisher confirms: %w", err)
		}
		p.waiting = make(map[uint64]chan bool)
		go p.dispatch(ch.NotifyPublish(make(chan amqp.Confirmation, 16)))
	}
	return p, nil
}

// dispatch routes broker replies to the publish waiting on that tag until the
// channel closes.
func (p *Publisher) dispatch(confirms <-chan amqp.Confirmation) {
	for c := range confirms {
		p.wmu.Lock()
		w, ok := p.waiting[c.DeliveryTag]
		delete(p.waiting, c.DeliveryTag)
		p.wmu.Unlock()
		if ok {
			w <- c.Ack
		}
	}

	p.wmu.Lock()
	defer p.wmu.Unlock()
	p.drained = true
	for tag, w := range p.waiting {
		close(w)
		delete(p.waiting, tag)
	}
}

// expect registers a waiter for tag before the publish is sent.
func (p *Publisher) expect(tag uint64) (chan bool, error) {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if p.drained {
		return nil, ErrConfirmsClosed
	}
	w := make(chan bool, 1)
	p.waiting[tag] = w
	return w, nil
}

func (p *Publisher) forget(tag uint64) {
	p.wmu.Lock()
	delete(p.waiting, tag)
	p.wmu.Unlock()
}

// Publish sends id to queue.
func (p *Publisher) Publish(ctx context.Context, queue string, id uuid.UUID) error {
	err := p.publish(ctx, queue, id)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.PublishesTotal.WithLabelValues(queue, result).Inc()
	return err
}

func (p *Publisher) publish(ctx context.Context, queue string, id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.confirm {
		if err := p.ch.PublishWithContext(ctx, "", queue, false, false, newPublishing(id)); err != nil {
			return fmt.Errorf("publish %s to %s: %w", id, queue, err)
		}
		return nil
	}

	tag := p.ch.GetNextPublishSeqNo()
	wait, err := p.expect(tag)
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", id, queue, err)
	}
	if err := p.ch.PublishWithContext(ctx, "", queue, false, false, newPublishing(id)); err != nil {
		p.forget(tag)
		return fmt.Errorf("publish %s to %s: %w", id, queue, err)
	}

	select {
	case ack, ok := <-wait:
		if !ok {
			return fmt.Errorf("publish %s to %s: %w", id, queue, ErrConfirmsClosed)
		}
		if !ack {
			return fmt.Errorf("publish %s to %s: %w", id, queue, ErrNacked)
		}
		return nil
	case <-ctx.Done():
		p.forget(tag)
		return fmt.Errorf("publish %s to %s: %w", id, queue, ctx.Err())
	}
}

// Close closes the underlying channel.
func (p *Publisher) Close() error {
	return p.ch.Close()
}

type EmailProducer struct {
	publisher *Publisher
	queue     string
}

// NewEmailProducer publishes newly accepted ids to the initial delay queue.
func NewEmailProducer(publisher *Publisher, topology Topology) *EmailProducer {
	return &EmailProducer{publisher: publisher, queue: topology.InitialDelayQueue}
}

// Publish schedules the first delivery attempt for id.
func (p *EmailProducer) Publish(ctx context.Context, id uuid.UUID) error {
	return p.publisher.Publish(ctx, p.queue, id)
}

type RetryScheduler struct {
	publisher *Publisher
	queue     string
}

// NewRetryScheduler publishes ids to the retry delay queue.
func NewRetryScheduler(publisher *Publisher, topology Topology) *RetryScheduler {
	return &RetryScheduler{publisher: publisher, queue: topology.RetryDelayQueue}
}

// Schedule makes id reappear on the work queue after the retry delay.
func (s *RetryScheduler) Schedule(ctx context.Context, id uuid.UUID) error {
	return s.publisher.Publish(ctx, s.queue, id)
}
