package amqp_test

import (
	"context"
	"sync"

	"github.com/rabbitmq/amqp091-go"
)

type ackRecorder struct {
	mu      sync.Mutex
	acks    []uint64
	rejects map[uint64]bool
	nacks   []uint64
	ackErr  error
}

func newAckRecorder() *ackRecorder {
	return &ackRecorder{rejects: make(map[uint64]bool)}
}

func (r *ackRecorder) Ack(tag uint64, _ bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ackErr != nil {
		return r.ackErr
	}
	r.acks = append(r.acks, tag)
	return nil
}

func (r *ackRecorder) Nack(tag uint64, _ bool, _ bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nacks = append(r.nacks, tag)
	return nil
}

func (r *ackRecorder) Reject(tag uint64, requeue bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejects[tag] = requeue
	return nil
}

func (r *ackRecorder) counts() (acks, rejects, nacks int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.acks), len(r.rejects), len(r.nacks)
}

type fakeChannel struct {
	deliveries chan amqp091.Delivery
	prefetch   int
	cancelled  chan string
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		deliveries: make(chan amqp091.Delivery, 16),
		cancelled:  make(chan string, 1),
	}
}

func (c *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	c.prefetch = prefetchCount
	return nil
}

func (c *fakeChannel) Consume(_, _ string, _, _, _, _ bool, _ amqp091.Table) (<-chan amqp091.Delivery, error) {
	return c.deliveries, nil
}

func (c *fakeChannel) Cancel(consumer string, _ bool) error {
	select {
	case c.cancelled <- consumer:
	default:
	}
	return nil
}

type publishCall struct {
	exchange string
	key      string
	msg      amqp091.Publishing
}

type fakePublishChannel struct {
	err   error
	calls []publishCall
}

func (c *fakePublishChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	c.calls = append(c.calls, publishCall{exchange: exchange, key: key, msg: msg})
	return c.err
}

func delivery(ack amqp091.Acknowledger, tag uint64, id string, headers amqp091.Table) amqp091.Delivery {
	return amqp091.Delivery{
		Acknowledger: ack,
		DeliveryTag:  tag,
		MessageId:    id,
		Headers:      headers,
		Body:         []byte("payload"),
	}
}
