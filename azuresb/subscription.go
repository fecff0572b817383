package azuresb

import (
	"context"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"

	"github.com/velmie/beetle"
	"github.com/velmie/beetle/dedup"
)

// subscription implements beetle.Subscription for Azure Service Bus.
type subscription struct {
	*beetle.DefaultSubscription
	receiver    Receiver
	adapter     *Adapter
	interceptor *dedup.Interceptor[*azservicebus.ReceivedMessage]
	batchSize   int
	release     func()
	once        sync.Once
	cancelFunc  context.CancelFunc
	closed      chan struct{}
}

func newSubscription(
	topic string,
	receiver Receiver,
	adapter *Adapter,
	interceptor *dedup.Interceptor[*azservicebus.ReceivedMessage],
	batchSize int,
	handler beetle.Handler,
	options *beetle.SubscribeOptions,
	initOptions []beetle.SubscribeOption,
) *subscription {
	return &subscription{
		DefaultSubscription: beetle.NewDefaultSubscription(topic, options, initOptions, handler),
		receiver:            receiver,
		adapter:             adapter,
		interceptor:         interceptor,
		batchSize:           batchSize,
		closed:              make(chan struct{}),
	}
}

// start begins receiving messages in a separate goroutine.
func (s *subscription) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelFunc = cancel
	go func() {
		defer close(s.closed)
		s.receiveLoop(ctx)
		s.shutdown()
	}()
}

func (s *subscription) receiveLoop(ctx context.Context) {
	options := s.Options()
	handler := s.Handler()
	topic := s.Topic()

	handle := func(ctx context.Context, m *azservicebus.ReceivedMessage) error {
		msg := toMessage(m)
		msg.SetContext(ctx)
		return handler(&event{topic: topic, message: msg})
	}

	for {
		select {
		case <-s.Done():
			return
		default:
		}

		msgs, err := s.receiver.ReceiveMessages(ctx, s.batchSize, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.fail(errors.Wrap(err, "azuresb: cannot receive messages"))
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		decisions, err := s.interceptor.HandleBatch(context.WithoutCancel(ctx), msgs, handle)
		if err != nil {
			undecided := msgs[len(decisions):]
			if dedup.Malformed(err) && len(undecided) > 0 {
				if derr := s.adapter.Discard(context.Background(), undecided[0]); derr != nil && options.Logger != nil {
					options.Logger.Warn("azuresb: cannot dead-letter message", "messageId", undecided[0].MessageID, "error", derr)
				}
				undecided = undecided[1:]
			}
			s.abandon(undecided, options.Logger)
			s.fail(errors.Wrapf(err, "azuresb: cannot handle messages of the topic %q", topic))
		}
	}
}

// abandon returns messages left without a decision, they are redelivered once their lock is released.
func (s *subscription) abandon(msgs []*azservicebus.ReceivedMessage, log beetle.Logger) {
	for _, m := range msgs {
		if err := s.receiver.AbandonMessage(context.Background(), m, nil); err != nil && log != nil {
			log.Warn("azuresb: cannot abandon message", "messageId", m.MessageID, "error", err)
		}
	}
}

func (s *subscription) fail(err error) {
	options := s.Options()
	if options.ErrorHandler != nil {
		options.ErrorHandler(err, s)
		return
	}
	if options.Logger != nil {
		options.Logger.Error("azuresb: subscription error", "topic", s.Topic(), "error", err)
	}
}

// shutdown closes the receiver once the receive loop has returned.
func (s *subscription) shutdown() {
	if s.release != nil {
		s.release()
	}
	if err := s.receiver.Close(context.Background()); err != nil {
		s.fail(errors.Wrap(err, "azuresb: cannot close receiver"))
	}
}

// Unsubscribe stops receiving messages. The receiver is closed when the batch in progress
// has been handled, Closed reports it.
func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		_ = s.DefaultSubscription.Unsubscribe()
		if s.cancelFunc != nil {
			s.cancelFunc()
		}
	})
	return nil
}

// Closed returns a channel that is closed once the receiver has been closed.
func (s *subscription) Closed() <-chan struct{} {
	return s.closed
}
