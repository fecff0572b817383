package sqs

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/pkg/errors"

	"github.com/velmie/beetle"
	"github.com/velmie/beetle/dedup"
	"github.com/velmie/beetle/kv"
)

const (
	defaultMaxNumberOfMessages = 1
	defaultWaitTimeSeconds     = 20
)

type Subscriber struct {
	sqsService    Service
	options       *subscriberOptions
	subscriptions map[string]struct{}
	mutex         sync.RWMutex
}

func NewSubscriber(sqsService Service, options ...SubscriberOption) *Subscriber {
	opts := &subscriberOptions{
		MaxNumberOfMessages: defaultMaxNumberOfMessages,
		WaitTimeSeconds:     defaultWaitTimeSeconds,
	}
	for _, o := range options {
		o(opts)
	}
	return &Subscriber{sqsService, opts, make(map[string]struct{}), sync.RWMutex{}}
}

func (s *Subscriber) Subscribe(
	topic string,
	handler beetle.Handler,
	options ...beetle.SubscribeOption,
) (beetle.Subscription, error) {
	opts := beetle.ApplySubscribeOptions(options...)
	s.mutex.RLock()
	if _, exist := s.subscriptions[topic]; exist {
		s.mutex.RUnlock()
		return nil, errors.Wrapf(
			beetle.AlreadySubscribed,
			"SQS: the topic %q already has a subscription",
			topic,
		)
	}
	s.mutex.RUnlock()

	var interceptor *dedup.Interceptor[beetle.Event]
	if s.options.store != nil {
		dedupOptions := append([]dedup.Option{dedup.WithLogger(opts.Logger)}, s.options.dedupOptions...)
		var err error
		interceptor, err = dedup.NewInterceptor[beetle.Event](s.options.store, dedup.EventAdapter{}, dedupOptions...)
		if err != nil {
			return nil, errors.Wrap(err, "SQS: cannot set up deduplication")
		}
	}

	queueURL, err := getQueueURL(s.sqsService, topic)
	if err != nil {
		return nil, err
	}

	sub := &subscription{
		subscriber:          s,
		DefaultSubscription: beetle.NewDefaultSubscription(topic, opts, options, handler),
	}
	s.mutex.Lock()
	s.subscriptions[topic] = struct{}{}
	s.mutex.Unlock()

	go s.startReceivingMessages(queueURL, sub, interceptor)

	return sub, nil
}

func (s *Subscriber) startReceivingMessages(queueURL string, sub beetle.Subscription, interceptor *dedup.Interceptor[beetle.Event]) {
	const allAttributes = "All"

	input := &sqs.ReceiveMessageInput{
		QueueUrl:            &queueURL,
		MaxNumberOfMessages: &s.options.MaxNumberOfMessages,
		MessageAttributeNames: aws.StringSlice([]string{
			allAttributes,
		}),
	}
	if s.options.WaitTimeSeconds > 0 {
		input.WaitTimeSeconds = &s.options.WaitTimeSeconds
	}
	done := sub.Done()
	options := sub.Options()
	topic := sub.Topic()
	handler := sub.Handler()
	if log := options.Logger; log != nil {
		log.Info("SQS: subscribed",
			"topic", topic,
			"queueUrl", queueURL,
			"maxNumberOfMessages", s.options.MaxNumberOfMessages,
			"waitTimeSeconds", s.options.WaitTimeSeconds,
			"deduplication", interceptor != nil,
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-done
		cancel()
	}()

	handle := func(_ context.Context, e beetle.Event) error {
		return handler(&settledEvent{topic: e.Topic(), message: e.Message()})
	}
	fail := func(err error) {
		if options.ErrorHandler == nil {
			panic(err)
		}
		options.ErrorHandler(err, sub)
	}

	for {
		select {
		case <-done:
			return
		default:
		}

		out, err := s.sqsService.ReceiveMessage(input)
		select {
		case <-done:
			return
		default:
		}
		if err != nil {
			fail(errors.Wrap(err, "cannot receive new message from queue"))
			continue
		}

		events := make([]beetle.Event, 0, len(out.Messages))
		for _, msg := range out.Messages {
			m := buildMessage(msg)
			m.SetContext(ctx)
			events = append(events, &message{
				topic:      topic,
				message:    m,
				queueURL:   queueURL,
				sqsMessage: msg,
				sqsService: s.sqsService,
				requeue:    options.RejectAndRequeue,
			})
		}

		if interceptor != nil {
			decisions, err := interceptor.HandleBatch(ctx, events, handle)
			if err != nil {
				undecided := events[len(decisions):]
				if dedup.Malformed(err) && len(undecided) > 0 {
					// deleted, it would fail the same way on every receive
					if derr := undecided[0].Ack(); derr != nil && options.Logger != nil {
						options.Logger.Warn("SQS: cannot delete message", "messageId", undecided[0].Message().ID, "error", derr)
					}
					undecided = undecided[1:]
				}
				for _, event := range undecided {
					if rerr := event.(*message).release(); rerr != nil && options.Logger != nil {
						options.Logger.Warn("SQS: cannot return message", "messageId", event.Message().ID, "error", rerr)
					}
				}
				fail(errors.Wrap(err, "cannot deduplicate received messages"))
			}
			continue
		}

		for _, event := range events {
			select {
			case <-done:
				return
			default:
			}
			if err = handler(event); err != nil {
				fail(errors.Wrap(err, "cannot handle received message"))
				continue
			}
			if options.AutoAck {
				if err = event.Ack(); err != nil {
					fail(errors.Wrap(err, "cannot auto ack received message"))
				}
			}
		}
	}
}

type subscriberOptions struct {
	// The maximum number of messages to return. Amazon SQS never returns more messages
	// than this value (however, fewer messages might be returned). Valid values:
	// 1 to 10. Default: 1.
	MaxNumberOfMessages int64
	// The duration (in seconds) for which the call waits for a message to arrive
	// in the queue before returning. If a message is available, the call returns
	// sooner than WaitTimeSeconds. If no messages are available and the wait time
	// expires, the call returns successfully with an empty list of messages.
	WaitTimeSeconds int64

	store        kv.Store[string]
	dedupOptions []dedup.Option
}

type SubscriberOption func(options *subscriberOptions)

func LongPollingDuration(durationSeconds int64) SubscriberOption {
	return func(options *subscriberOptions) {
		options.WaitTimeSeconds = durationSeconds
	}
}

func RequestMultipleMessage(maxNumberPerRequest int64) SubscriberOption {
	return func(options *subscriberOptions) {
		options.MaxNumberOfMessages = maxNumberPerRequest
	}
}

// WithDeduplication runs every received batch through a dedup.Interceptor keeping handling
// state in store. Messages are then deleted or made visible again by the interceptor and
// the AutoAck subscription option has no effect. Ack of the events given to the handler does nothing.
func WithDeduplication(store kv.Store[string], opts ...dedup.Option) SubscriberOption {
	return func(options *subscriberOptions) {
		options.store = store
		options.dedupOptions = opts
	}
}

type subscription struct {
	subscriber *Subscriber
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
	return s.DefaultSubscription.Unsubscribe()
}
