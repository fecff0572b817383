package azuresb

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/velmie/beetle"
)

// ASBSender abstracts the methods of an Azure Service Bus sender
type ASBSender interface {
	SendMessage(ctx context.Context, msg *azservicebus.Message, opts *azservicebus.SendMessageOptions) error
}

// SenderFactory defines a factory interface for creating senders
type SenderFactory interface {
	// CreateSender returns a new ASBSender for the given topic
	CreateSender(topic string) (ASBSender, error)
}

// Publisher implements the beetle.Publisher interface for Azure Service Bus
type Publisher struct {
	senderFactory  SenderFactory
	sendersByTopic sync.Map // map[string]ASBSender
	clock          func() time.Time
}

// NewPublisher creates a new Publisher using the provided SenderFactory
func NewPublisher(factory SenderFactory) *Publisher {
	return &Publisher{
		senderFactory: factory,
		clock:         time.Now,
	}
}

// Publish sends a message to the queue or topic named topic. A message without an id gets a uuid.
// The expiration also bounds the broker time to live of the message.
func (p *Publisher) Publish(topic string, message *beetle.Message, options ...beetle.PublishOption) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	opts := beetle.DefaultPublishOptions()
	for _, o := range options {
		o(opts)
	}
	now := p.clock()
	opts.Prepare(message, now)

	sender, err := p.sender(topic)
	if err != nil {
		return err
	}

	asbMsg := toASBMessage(message, now)
	if err := sender.SendMessage(message.Context(), asbMsg, nil); err != nil {
		return errors.Wrap(err, "azuresb: cannot send message")
	}
	return nil
}

func (p *Publisher) sender(topic string) (ASBSender, error) {
	if value, ok := p.sendersByTopic.Load(topic); ok {
		return value.(ASBSender), nil
	}
	sender, err := p.senderFactory.CreateSender(topic)
	if err != nil {
		return nil, errors.Wrapf(err, "azuresb: cannot create sender for topic %q", topic)
	}
	actual, _ := p.sendersByTopic.LoadOrStore(topic, sender)
	return actual.(ASBSender), nil
}

// toASBMessage copies the message, expires_at and flags are sent as numbers.
func toASBMessage(m *beetle.Message, now time.Time) *azservicebus.Message {
	props := make(map[string]any, len(m.Header))
	for k, v := range m.Header {
		props[k] = v
		if k == beetle.HdrExpiresAt || k == beetle.HdrFlags {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				props[k] = n
			}
		}
	}
	id := m.ID
	asbMsg := &azservicebus.Message{
		Body:                  m.Body,
		MessageID:             &id,
		ApplicationProperties: props,
	}
	if cid := m.Header.GetCorrelationID(); cid != "" {
		asbMsg.CorrelationID = &cid
	}
	if expiresAt, err := m.Header.ExpiresAt(); err == nil && expiresAt != beetle.MaxExpiry {
		if ttl := time.Unix(expiresAt, 0).Sub(now); ttl > 0 {
			asbMsg.TimeToLive = &ttl
		}
	}
	return asbMsg
}
