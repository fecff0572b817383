package beetle

import "time"

// DefaultTTL is the time to live given to published messages unless overridden.
const DefaultTTL = 24 * time.Hour

// Publisher allows publishing to a specific topic
type Publisher interface {
	Publish(topic string, message *Message, options ...PublishOption) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(topic string, message *Message, options ...PublishOption) error

func (f PublisherFunc) Publish(topic string, message *Message, options ...PublishOption) error {
	return f(topic, message, options...)
}

// PublisherMiddleware wraps a Publisher, for example to propagate trace context.
type PublisherMiddleware func(Publisher) Publisher

// PublishOptions controls how a message is published.
type PublishOptions struct {
	// Redundant publishes a copy of the message to every available broker.
	// Consumers must deduplicate, the copies share the message id.
	Redundant bool
	// TTL is used to compute the expires_at header when ExpiresAt is zero.
	TTL time.Duration
	// ExpiresAt is an absolute expiration time.
	ExpiresAt time.Time
}

// PublishOption configures PublishOptions.
type PublishOption func(*PublishOptions)

// DefaultPublishOptions creates options with default values
func DefaultPublishOptions() *PublishOptions {
	return &PublishOptions{TTL: DefaultTTL}
}

// Redundant enables redundant publishing.
func Redundant() PublishOption {
	return func(o *PublishOptions) {
		o.Redundant = true
	}
}

// WithTTL sets the message time to live.
func WithTTL(ttl time.Duration) PublishOption {
	return func(o *PublishOptions) {
		o.TTL = ttl
	}
}

// WithExpiresAt sets an absolute expiration time.
func WithExpiresAt(t time.Time) PublishOption {
	return func(o *PublishOptions) {
		o.ExpiresAt = t
	}
}

// Prepare applies options to the message header: expires_at is always set and
// the redundant flag is set for redundant publishing.
func (o *PublishOptions) Prepare(message *Message, now time.Time) {
	if message.Header == nil {
		message.Header = make(Header)
	}
	expiresAt := o.ExpiresAt
	if expiresAt.IsZero() && o.TTL > 0 {
		expiresAt = now.Add(o.TTL)
	}
	if !expiresAt.IsZero() {
		message.Header.SetExpiresAt(expiresAt.Unix())
	}
	if o.Redundant {
		message.Header.SetRedundant()
	}
	message.Header.SetCreatedAt(now.Unix())
	SetIDHeader(message)
}
