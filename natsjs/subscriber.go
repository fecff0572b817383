package natsjs

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/velmie/beetle"
	"github.com/velmie/beetle/dedup"
	"github.com/velmie/beetle/kv"
)

const (
	defaultBatchSize = 10
	defaultFetchWait = 5 * time.Second
)

// JetStream is the part of nats.JetStreamContext used by Subscriber and Publisher.
type JetStream interface {
	PullSubscribe(subj, durable string, opts ...nats.SubOpt) (*nats.Subscription, error)
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	UpdateStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

type subscriberOptions struct {
	BatchSize    int
	FetchWait    time.Duration
	NakDelay     time.Duration
	dedupOptions []dedup.Option
}

type SubscriberOption func(options *subscriberOptions)

// FetchBatch sets how many messages are fetched and evaluated together. Default: 10.
func FetchBatch(n int) SubscriberOption {
	return func(options *subscriberOptions) {
		options.BatchSize = n
	}
}

// FetchWait sets how long a fetch waits for messages. Default: 5s.
func FetchWait(d time.Duration) SubscriberOption {
	return func(options *subscriberOptions) {
		options.FetchWait = d
	}
}

// NakDelay delays redelivery of requeued messages.
func NakDelay(d time.Duration) SubscriberOption {
	return func(options *subscriberOptions) {
		options.NakDelay = d
	}
}

// WithDedupOptions configures the interceptor of every subscription.
func WithDedupOptions(opts ...dedup.Option) SubscriberOption {
	return func(options *subscriberOptions) {
		options.dedupOptions = append(options.dedupOptions, opts...)
	}
}

type Subscriber struct {
	// usually project name is used
	streamName string
	// current service name, used as a prefix of durable consumer names
	serviceName   string
	jetStream     JetStream
	store         kv.Store[string]
	options       *subscriberOptions
	subscriptions map[string]struct{}
	mutex         sync.Mutex
}

func NewSubscriber(
	streamName,
	serviceName string,
	jetStream JetStream,
	store kv.Store[string],
	options ...SubscriberOption,
) (*Subscriber, error) {
	opts := &subscriberOptions{
		BatchSize: defaultBatchSize,
		FetchWait: defaultFetchWait,
	}
	for _, o := range options {
		o(opts)
	}
	if serviceName == "" {
		return nil, ErrServiceName
	}
	if streamName == "" {
		return nil, ErrStreamName
	}
	return &Subscriber{
		streamName:    strings.ToUpper(streamName),
		serviceName:   strings.ToUpper(serviceName),
		jetStream:     jetStream,
		store:         store,
		options:       opts,
		subscriptions: make(map[string]struct{}),
	}, nil
}

func (s *Subscriber) Subscribe(
	subject string,
	handler beetle.Handler,
	options ...beetle.SubscribeOption,
) (beetle.Subscription, error) {
	opts := beetle.ApplySubscribeOptions(options...)

	subject, err := buildSubject(subject, "")
	if err != nil {
		return nil, err
	}
	consumer := buildConsumerName(subject, s.serviceName)

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, exist := s.subscriptions[subject]; exist {
		return nil, errors.Wrapf(beetle.AlreadySubscribed, "NATS JetStream: the subject %q already has a subscription", subject)
	}

	adapter := NewAdapter(opts.RejectAndRequeue, s.options.NakDelay)
	dedupOptions := append([]dedup.Option{dedup.WithLogger(opts.Logger)}, s.options.dedupOptions...)
	interceptor, err := dedup.NewInterceptor[*nats.Msg](s.store, adapter, dedupOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "NATS JetStream: cannot set up deduplication")
	}

	nsub, err := s.jetStream.PullSubscribe(subject, consumer, nats.BindStream(s.streamName), nats.AckExplicit())
	if err != nil {
		return nil, errors.Wrapf(err, "NATS JetStream: cannot subscribe to %q", subject)
	}

	sub := &subscription{
		subscriber:          s,
		nsub:                nsub,
		DefaultSubscription: beetle.NewDefaultSubscription(subject, opts, options, handler),
	}
	s.subscriptions[subject] = struct{}{}
	if opts.Logger != nil {
		opts.Logger.Info("NATS JetStream: subscribed", "subject", subject, "consumer", consumer, "batchSize", s.options.BatchSize)
	}

	go s.pull(sub, adapter, interceptor)

	return sub, nil
}

func (s *Subscriber) pull(sub *subscription, adapter *Adapter, interceptor *dedup.Interceptor[*nats.Msg]) {
	done := sub.Done()
	options := sub.Options()
	handler := sub.Handler()
	subject := sub.Topic()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-done
		cancel()
	}()

	handle := func(ctx context.Context, m *nats.Msg) error {
		msg := &beetle.Message{Header: buildMessageHeader(m.Header), Body: m.Data}
		msg.ID, _ = adapter.KeyOf(m)
		msg.SetContext(ctx)
		return handler(&message{subject: subject, message: msg})
	}

	fail := func(err error) {
		if options.ErrorHandler != nil {
			options.ErrorHandler(err, sub)
			return
		}
		if options.Logger != nil {
			options.Logger.Error("NATS JetStream: subscription error", "subject", subject, "error", err)
		}
	}

	for {
		select {
		case <-done:
			return
		default:
		}

		msgs, err := sub.nsub.Fetch(s.options.BatchSize, nats.MaxWait(s.options.FetchWait))
		if err != nil {
			switch {
			// the connection is closed or the subscription was drained
			case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, nats.ErrBadSubscription):
				return
			// no messages arrived, or the connection is lost and fetch is not able to retrieve them
			case errors.Is(err, nats.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
				continue
			}
			fail(errors.Wrap(err, "NATS JetStream: cannot fetch messages"))
			continue
		}

		decisions, err := interceptor.HandleBatch(ctx, msgs, handle)
		if err == nil {
			continue
		}
		undecided := msgs[len(decisions):]
		if dedup.Malformed(err) && len(undecided) > 0 {
			if terr := adapter.Discard(ctx, undecided[0]); terr != nil && options.Logger != nil {
				options.Logger.Warn("NATS JetStream: cannot terminate message", "subject", subject, "error", terr)
			}
			undecided = undecided[1:]
		}
		for _, m := range undecided {
			if nerr := m.Nak(); nerr != nil && options.Logger != nil {
				options.Logger.Warn("NATS JetStream: cannot return message", "subject", subject, "error", nerr)
			}
		}
		fail(errors.Wrapf(err, "NATS JetStream: cannot handle messages of %q", subject))
	}
}

type subscription struct {
	subscriber *Subscriber
	nsub       *nats.Subscription
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
	if err := s.DefaultSubscription.Unsubscribe(); err != nil {
		return err
	}
	if err := s.nsub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
		return errors.Wrapf(err, "NATS JetStream: cannot drain the subscription to %q", s.Topic())
	}
	return nil
}
