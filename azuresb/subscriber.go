package azuresb

import (
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"

	"github.com/velmie/beetle"
	"github.com/velmie/beetle/dedup"
	"github.com/velmie/beetle/kv"
)

const defaultBatchSize = 10

type subscriberOptions struct {
	BatchSize    int
	dedupOptions []dedup.Option
}

type SubscriberOption func(*subscriberOptions)

// WithBatchSize sets the maximum number of messages received and evaluated together. Default: 10.
func WithBatchSize(n int) SubscriberOption {
	return func(o *subscriberOptions) {
		o.BatchSize = n
	}
}

// WithDedupOptions configures the interceptor of every subscription.
func WithDedupOptions(opts ...dedup.Option) SubscriberOption {
	return func(o *subscriberOptions) {
		o.dedupOptions = append(o.dedupOptions, opts...)
	}
}

// Subscriber receives from queues or topic subscriptions and keeps handling state in a store.
type Subscriber struct {
	receiverFactory ReceiverFactory
	store           kv.Store[string]
	options         *subscriberOptions
	subscriptions   map[string]struct{}
	mutex           sync.Mutex
}

func NewSubscriber(factory ReceiverFactory, store kv.Store[string], options ...SubscriberOption) *Subscriber {
	opts := &subscriberOptions{BatchSize: defaultBatchSize}
	for _, o := range options {
		o(opts)
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = defaultBatchSize
	}
	return &Subscriber{
		receiverFactory: factory,
		store:           store,
		options:         opts,
		subscriptions:   make(map[string]struct{}),
	}
}

// Subscribe starts receiving. Messages are completed, abandoned or dead-lettered according
// to the handling decision, handlers get events whose Ack does nothing.
func (s *Subscriber) Subscribe(topic string, handler beetle.Handler, options ...beetle.SubscribeOption) (beetle.Subscription, error) {
	opts := beetle.ApplySubscribeOptions(options...)

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, exist := s.subscriptions[topic]; exist {
		return nil, errors.Wrapf(beetle.AlreadySubscribed, "azuresb: the topic %q already has a subscription", topic)
	}

	receiver, err := s.receiverFactory.CreateReceiver(topic)
	if err != nil {
		return nil, errors.Wrapf(err, "azuresb: cannot create receiver for topic %q", topic)
	}
	adapter := NewAdapter(receiver, opts.RejectAndRequeue)
	dedupOptions := append([]dedup.Option{dedup.WithLogger(opts.Logger)}, s.options.dedupOptions...)
	interceptor, err := dedup.NewInterceptor[*azservicebus.ReceivedMessage](s.store, adapter, dedupOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "azuresb: cannot set up deduplication")
	}

	sub := newSubscription(topic, receiver, adapter, interceptor, s.options.BatchSize, handler, opts, options)
	sub.release = func() {
		s.mutex.Lock()
		delete(s.subscriptions, topic)
		s.mutex.Unlock()
	}
	s.subscriptions[topic] = struct{}{}
	sub.start()

	if opts.Logger != nil {
		opts.Logger.Info("azuresb: subscribed", "topic", topic, "batchSize", s.options.BatchSize)
	}
	return sub, nil
}
