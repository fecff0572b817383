package amqp

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/velmie/beetle"
)

// PublishChannel is the part of *amqp091.Channel used by Publisher.
type PublishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

type publisherOptions struct {
	Logger beetle.Logger
	Clock  func() time.Time
	NewID  func() string
}

type PublisherOption func(*publisherOptions)

// WithPublisherLogger sets the logger reporting brokers which did not accept a message.
func WithPublisherLogger(log beetle.Logger) PublisherOption {
	return func(o *publisherOptions) {
		o.Logger = log
	}
}

// WithIDGenerator overrides uuid message ids.
func WithIDGenerator(newID func() string) PublisherOption {
	return func(o *publisherOptions) {
		o.NewID = newID
	}
}

// Publisher publishes to an exchange on one or more brokers, each broker is represented by a channel.
// Topics are routing keys.
//
// A redundant message is published to every broker and succeeds when at least one accepted it.
// Other messages are published to the first broker accepting them.
type Publisher struct {
	exchange string
	channels []PublishChannel
	options  *publisherOptions
}

func NewPublisher(exchange string, channels []PublishChannel, options ...PublisherOption) *Publisher {
	opts := &publisherOptions{
		Clock: time.Now,
		NewID: uuid.NewString,
	}
	for _, o := range options {
		o(opts)
	}
	return &Publisher{exchange: exchange, channels: channels, options: opts}
}

func (p *Publisher) Publish(topic string, message *beetle.Message, options ...beetle.PublishOption) error {
	if len(p.channels) == 0 {
		return beetle.ErrNoPublisher
	}
	if message.ID == "" {
		message.ID = p.options.NewID()
	}
	opts := beetle.DefaultPublishOptions()
	for _, o := range options {
		o(opts)
	}
	opts.Prepare(message, p.options.Clock())
	publishing := toPublishing(message)
	ctx := message.Context()

	if !opts.Redundant {
		var err error
		for i, ch := range p.channels {
			if err = ch.PublishWithContext(ctx, p.exchange, topic, false, false, publishing); err == nil {
				return nil
			}
			p.warn("AMQP: broker did not accept message", i, message.ID, err)
		}
		return errors.Wrapf(beetle.ErrNoPublisher, "AMQP: message %q: %s", message.ID, err)
	}

	accepted := 0
	var lastErr error
	for i, ch := range p.channels {
		if err := ch.PublishWithContext(ctx, p.exchange, topic, false, false, publishing); err != nil {
			lastErr = err
			p.warn("AMQP: broker did not accept redundant message", i, message.ID, err)
			continue
		}
		accepted++
	}
	if accepted == 0 {
		return errors.Wrapf(beetle.ErrNoPublisher, "AMQP: redundant message %q: %s", message.ID, lastErr)
	}
	return nil
}

func (p *Publisher) warn(msg string, broker int, id string, err error) {
	if p.options.Logger != nil {
		p.options.Logger.Warn(msg, "broker", broker, "messageId", id, "error", err)
	}
}

// toPublishing copies the message, expires_at and flags are sent as numbers.
func toPublishing(m *beetle.Message) amqp091.Publishing {
	headers := make(amqp091.Table, len(m.Header))
	for k, v := range m.Header {
		headers[k] = v
		if k == beetle.HdrExpiresAt || k == beetle.HdrFlags {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				headers[k] = n
			}
		}
	}
	return amqp091.Publishing{
		Headers:       headers,
		MessageId:     m.ID,
		CorrelationId: m.Header.GetCorrelationID(),
		Timestamp:     time.Unix(m.Header.GetCreatedAt(), 0),
		DeliveryMode:  amqp091.Persistent,
		Body:          m.Body,
	}
}
