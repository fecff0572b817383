package beetle

import "context"

//go:generate go run go.uber.org/mock/mockgen@v0.5.0 -source common.go -destination ./mock/common.go

// Handler is used to process messages delivered through a subscription.
// The handler is passed an event which contains the message and the
// Ack method to acknowledge receipt of the message.
type Handler func(Event) error

// Middleware defines a function type that takes a Handler and returns a modified Handler.
// It is used to intercept and optionally modify the behavior of the Handler function,
// for example to skip messages which have already been handled.
//
// Middleware functions can be chained together to create a pipeline of handlers
// that process an Event before it reaches the final Handler.
//
// Example:
//
//	func MyMiddleware(next Handler) Handler {
//	    return func(e Event) error {
//	        // Pre-processing logic here
//	        err := next(e)
//	        // Post-processing logic here
//	        return err
//	    }
//	}
type Middleware func(Handler) Handler

// Message is the transport neutral representation of a delivered or published message.
type Message struct {
	// ID must be stable across redeliveries and redundant copies of the same logical message
	ID string
	// Header includes additional service data
	Header Header
	// Body is message payload
	Body []byte

	ctx context.Context
}

// NewMessage initializes message
func NewMessage() *Message {
	return &Message{
		Header: make(Header),
	}
}

// Context returns the message context, context.Background is used when none was set.
func (m *Message) Context() context.Context {
	if m.ctx == nil {
		return context.Background()
	}
	return m.ctx
}

// SetContext attaches ctx to the message.
func (m *Message) SetContext(ctx context.Context) {
	m.ctx = ctx
}

// Event is given to a subscription handler for processing
type Event interface {
	Topic() string
	Message() *Message
	Ack() error
}

// Requeuer is implemented by events whose transport supports negative acknowledgment.
// Requeue asks the transport to deliver the message again (or to discard it,
// depending on how the subscription was configured).
type Requeuer interface {
	Requeue() error
}

// ErrorHandler is used in order to handle errors
type ErrorHandler func(err error, sub Subscription)

// Logger abstracts the logging functionality
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SetIDHeader copies the message ID to the message-id header unless the header is already set.
func SetIDHeader(message *Message) {
	if message.Header == nil {
		message.Header = make(Header)
	}
	if _, ok := message.Header[HdrMessageID]; !ok && message.ID != "" {
		message.Header[HdrMessageID] = message.ID
	}
}
