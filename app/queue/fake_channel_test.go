package queue

import (
	"context"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type declaredQueue struct {
	name string
	args amqp.Table
}

type binding struct {
	queue, key, exchange string
}

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	mu sync.Mutex

	exchanges  []string
	queues     []declaredQueue
	bindings   []binding
	published  []published
	prefetch   int
	consumers  []string
	cancelled  []string
	closed     bool
	confirmed  bool
	confirmAck bool
	// holdConfirms queues broker replies until releaseConfirms is called.
	holdConfirms bool
	held         []amqp.Confirmation

	deliveries chan amqp.Delivery
	confirms   chan amqp.Confirmation

	declareErr error
	publishErr error
	consumeErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{confirmAck: true, deliveries: make(chan amqp.Delivery, 8)}
}

func (f *fakeChannel) ExchangeDeclare(name, _ string, _, _, _, _ bool, _ amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges = append(f.exchanges, name)
	return f.declareErr
}

func (f *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.declareErr != nil {
		return amqp.Queue{}, f.declareErr
	}
	f.queues = append(f.queues, declaredQueue{name: name, args: args})
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bindings = append(f.bindings, binding{queue: name, key: key, exchange: exchange})
	return nil
}

func (f *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefetch = prefetchCount
	return nil
}

func (f *fakeChannel) Consume(_, consumer string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.consumeErr != nil {
		return nil, f.consumeErr
	}
	f.consumers = append(f.consumers, consumer)
	return f.deliveries, nil
}

func (f *fakeChannel) Cancel(consumer string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, consumer)
	return nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{exchange: exchange, key: key, msg: msg})
	if f.confirms == nil {
		return nil
	}
	c := amqp.Confirmation{DeliveryTag: uint64(len(f.published)), Ack: f.confirmAck}
	if f.holdConfirms {
		f.held = append(f.held, c)
		return nil
	}
	f.confirms <- c
	return nil
}

func (f *fakeChannel) GetNextPublishSeqNo() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.published)) + 1
}

// releaseConfirms delivers the queued replies and stops holding new ones.
func (f *fakeChannel) releaseConfirms() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.held {
		f.confirms <- c
	}
	f.held = nil
	f.holdConfirms = false
}

func (f *fakeChannel) setConfirmAck(ack bool) {
	f.mu.Lock()
	f.confirmAck = ack
	f.mu.Unlock()
}

func (f *fakeChannel) Confirm(_ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed = true
	return nil
}

func (f *fakeChannel) NotifyPublish(c chan amqp.Confirmation) chan amqp.Confirmation {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirms = c
	return c
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed && f.confirms != nil {
		close(f.confirms)
	}
	f.closed = true
	return nil
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeOpener struct {
	mu       sync.Mutex
	channels []*fakeChannel
	next     int
	err      error
}

func (o *fakeOpener) Channel() (Channel, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	if o.next >= len(o.channels) {
		return nil, errors.New("no more channels")
	}
	ch := o.channels[o.next]
	o.next++
	return ch, nil
}

// fakeAcknowledger records settlement calls made through amqp.Delivery.
type fakeAcknowledger struct {
	mu      sync.Mutex
	acks    []uint64
	rejects []uint64
	requeue []bool
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks = append(a.acks, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	return a.Reject(tag, requeue)
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejects = append(a.rejects, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *fakeAcknowledger) counts() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acks), len(a.rejects)
}
