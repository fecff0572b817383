package amqp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/velmie/beetle"
	"github.com/velmie/beetle/dedup"
	"github.com/velmie/beetle/kv"
)

const (
	defaultBatchSize = 1
	defaultBatchWait = 50 * time.Millisecond
)

// ErrDeliveriesClosed is reported when the broker closes the channel of a subscription.
const ErrDeliveriesClosed = beetle.Error("AMQP: deliveries channel closed")

// Channel is the part of *amqp091.Channel used by Subscriber.
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
	Cancel(consumer string, noWait bool) error
}

type subscriberOptions struct {
	BatchSize    int
	BatchWait    time.Duration
	Prefetch     int
	ConsumerTag  string
	dedupOptions []dedup.Option
}

type SubscriberOption func(*subscriberOptions)

// WithBatchSize sets how many deliveries are evaluated together. Default: 1.
func WithBatchSize(n int) SubscriberOption {
	return func(o *subscriberOptions) {
		o.BatchSize = n
	}
}

// WithBatchWait sets how long an incomplete batch waits for more deliveries.
func WithBatchWait(d time.Duration) SubscriberOption {
	return func(o *subscriberOptions) {
		o.BatchWait = d
	}
}

// WithPrefetch sets the channel QoS prefetch count, it defaults to the batch size.
func WithPrefetch(n int) SubscriberOption {
	return func(o *subscriberOptions) {
		o.Prefetch = n
	}
}

// WithConsumerTag sets the consumer tag, a random one is generated by default.
func WithConsumerTag(tag string) SubscriberOption {
	return func(o *subscriberOptions) {
		o.ConsumerTag = tag
	}
}

// WithDedupOptions configures the interceptor of every subscription.
func WithDedupOptions(opts ...dedup.Option) SubscriberOption {
	return func(o *subscriberOptions) {
		o.dedupOptions = append(o.dedupOptions, opts...)
	}
}

// Subscriber consumes queues of one channel, topics are queue names.
type Subscriber struct {
	ch            Channel
	store         kv.Store[string]
	options       *subscriberOptions
	subscriptions map[string]struct{}
	mutex         sync.RWMutex
}

// NewSubscriber creates a subscriber keeping handling state in store.
func NewSubscriber(ch Channel, store kv.Store[string], options ...SubscriberOption) *Subscriber {
	opts := &subscriberOptions{
		BatchSize: defaultBatchSize,
		BatchWait: defaultBatchWait,
	}
	for _, o := range options {
		o(opts)
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = opts.BatchSize
	}
	return &Subscriber{ch: ch, store: store, options: opts, subscriptions: make(map[string]struct{})}
}

// Subscribe starts consuming the queue. The handler receives events whose Ack does nothing,
// deliveries are acknowledged or rejected according to the handling decision.
// The AutoAck subscription option has no effect, RejectAndRequeue decides whether failed
// deliveries are requeued or discarded.
func (s *Subscriber) Subscribe(
	queue string,
	handler beetle.Handler,
	options ...beetle.SubscribeOption,
) (beetle.Subscription, error) {
	opts := beetle.ApplySubscribeOptions(options...)
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, exist := s.subscriptions[queue]; exist {
		return nil, errors.Wrapf(beetle.AlreadySubscribed, "AMQP: the queue %q already has a subscription", queue)
	}

	adapter := NewAdapter(nil, true, opts.RejectAndRequeue)
	dedupOptions := append([]dedup.Option{dedup.WithLogger(opts.Logger)}, s.options.dedupOptions...)
	interceptor, err := dedup.NewInterceptor[amqp091.Delivery](s.store, adapter, dedupOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "AMQP: cannot set up deduplication")
	}

	if err = s.ch.Qos(s.options.Prefetch, 0, false); err != nil {
		return nil, errors.Wrap(err, "AMQP: cannot set QoS")
	}
	tag := s.options.ConsumerTag
	if tag == "" {
		tag = "beetle-" + uuid.NewString()
	}
	deliveries, err := s.ch.Consume(queue, tag, false, false, false, false, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "AMQP: cannot consume the queue %q", queue)
	}

	sub := &subscription{
		subscriber:          s,
		consumerTag:         tag,
		DefaultSubscription: beetle.NewDefaultSubscription(queue, opts, options, handler),
	}
	s.subscriptions[queue] = struct{}{}

	if opts.Logger != nil {
		opts.Logger.Info("AMQP: subscribed",
			"queue", queue,
			"consumerTag", tag,
			"batchSize", s.options.BatchSize,
			"prefetch", s.options.Prefetch,
		)
	}
	go s.consume(sub, deliveries, adapter, interceptor)

	return sub, nil
}

func (s *Subscriber) consume(
	sub *subscription,
	deliveries <-chan amqp091.Delivery,
	adapter *Adapter,
	interceptor *dedup.Interceptor[amqp091.Delivery],
) {
	done := sub.Done()
	options := sub.Options()
	handler := sub.Handler()
	queue := sub.Topic()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-done
		cancel()
	}()

	handle := func(ctx context.Context, d amqp091.Delivery) error {
		msg := toMessage(d)
		msg.SetContext(ctx)
		return handler(&event{topic: queue, message: msg})
	}
	fail := func(err error) {
		if options.ErrorHandler != nil {
			options.ErrorHandler(err, sub)
			return
		}
		if options.Logger != nil {
			options.Logger.Error("AMQP: subscription error", "queue", queue, "error", err)
		}
	}

	for {
		batch, open := s.collect(done, deliveries)
		if len(batch) > 0 {
			decisions, err := interceptor.HandleBatch(ctx, batch, handle)
			if err != nil {
				undecided := batch[len(decisions):]
				if dedup.Malformed(err) && len(undecided) > 0 {
					if derr := adapter.Discard(ctx, undecided[0]); derr != nil && options.Logger != nil {
						options.Logger.Warn("AMQP: cannot discard delivery", "deliveryTag", undecided[0].DeliveryTag, "error", derr)
					}
					undecided = undecided[1:]
				}
				s.returnUndecided(undecided, options.Logger)
				fail(errors.Wrapf(err, "cannot handle deliveries of the queue %q", queue))
			}
		}
		if !open {
			select {
			case <-done:
			default:
				_ = sub.Unsubscribe()
				fail(ErrDeliveriesClosed)
			}
			return
		}
	}
}

// collect waits for the first delivery and then gathers up to BatchSize deliveries
// for at most BatchWait. open is false when the subscription ended.
func (s *Subscriber) collect(done <-chan struct{}, deliveries <-chan amqp091.Delivery) (batch []amqp091.Delivery, open bool) {
	select {
	case <-done:
		return nil, false
	case d, ok := <-deliveries:
		if !ok {
			return nil, false
		}
		batch = append(batch, d)
	}

	timer := time.NewTimer(s.options.BatchWait)
	defer timer.Stop()
	for len(batch) < s.options.BatchSize {
		select {
		case <-done:
			return batch, false
		case <-timer.C:
			return batch, true
		case d, ok := <-deliveries:
			if !ok {
				return batch, false
			}
			batch = append(batch, d)
		}
	}
	return batch, true
}

// returnUndecided puts deliveries left without a decision back to the queue.
func (s *Subscriber) returnUndecided(batch []amqp091.Delivery, log beetle.Logger) {
	for _, d := range batch {
		if d.Acknowledger == nil {
			continue
		}
		if err := d.Acknowledger.Nack(d.DeliveryTag, false, true); err != nil && log != nil {
			log.Warn("AMQP: cannot return delivery", "messageId", d.MessageId, "error", err)
		}
	}
}

type subscription struct {
	subscriber  *Subscriber
	consumerTag string
	*beetle.DefaultSubscription
}

func (s *subscription) Unsubscribe() error {
	select {
	case <-s.Done():
		return nil
	default:
	}
	s.subscriber.mutex.Lock()
	delete(s.subscriber.subscriptions, s.Topic())
	s.subscriber.mutex.Unlock()
	err := s.subscriber.ch.Cancel(s.consumerTag, false)
	if uerr := s.DefaultSubscription.Unsubscribe(); uerr != nil && err == nil {
		err = uerr
	}
	if err != nil && !errors.Is(err, amqp091.ErrClosed) {
		return errors.Wrapf(err, "AMQP: cannot cancel the consumer %q", s.consumerTag)
	}
	return nil
}

// event is given to handlers, deliveries are acknowledged by the interceptor.
type event struct {
	topic   string
	message *beetle.Message
}

func (e *event) Topic() string {
	return e.topic
}

func (e *event) Message() *beetle.Message {
	return e.message
}

func (e *event) Ack() error {
	return nil
}
