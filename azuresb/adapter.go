// Package azuresb binds message deduplication to Azure Service Bus queues and subscriptions.
package azuresb

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"github.com/velmie/beetle"
	"github.com/velmie/beetle/dedup"
)

var _ dedup.Adapter[*azservicebus.ReceivedMessage] = (*Adapter)(nil)

// Settler settles received messages, *azservicebus.Receiver implements it.
type Settler interface {
	CompleteMessage(ctx context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.CompleteMessageOptions) error
	AbandonMessage(ctx context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.AbandonMessageOptions) error
	DeadLetterMessage(ctx context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.DeadLetterOptions) error
}

// Adapter exposes received messages to the dedup package.
// Dropped messages are completed. Requeued messages are abandoned, or dead-lettered
// when rejectAndRequeue is false.
type Adapter struct {
	settler          Settler
	rejectAndRequeue bool
}

func NewAdapter(settler Settler, rejectAndRequeue bool) *Adapter {
	return &Adapter{settler: settler, rejectAndRequeue: rejectAndRequeue}
}

// KeyOf returns the broker message id, the message-id application property is used when it is empty.
func (a *Adapter) KeyOf(m *azservicebus.ReceivedMessage) (string, error) {
	key := strings.TrimSpace(m.MessageID)
	if key == "" {
		if v, ok := m.ApplicationProperties[beetle.HdrMessageID].(string); ok {
			key = strings.TrimSpace(v)
		}
	}
	if key == "" {
		return "", beetle.ErrMissingMessageID
	}
	return key, nil
}

func (a *Adapter) ExpiresAt(m *azservicebus.ReceivedMessage) (int64, error) {
	return beetle.ExpiresAtValue(m.ApplicationProperties[beetle.HdrExpiresAt])
}

func (a *Adapter) IsRedundant(m *azservicebus.ReceivedMessage) (bool, error) {
	return beetle.RedundantValue(m.ApplicationProperties[beetle.HdrFlags])
}

func (a *Adapter) Drop(ctx context.Context, m *azservicebus.ReceivedMessage) error {
	return a.settler.CompleteMessage(ctx, m, nil)
}

func (a *Adapter) Requeue(ctx context.Context, m *azservicebus.ReceivedMessage) error {
	if a.rejectAndRequeue {
		return a.settler.AbandonMessage(ctx, m, nil)
	}
	reason := "rejected"
	return a.settler.DeadLetterMessage(ctx, m, &azservicebus.DeadLetterOptions{Reason: &reason})
}

// Discard dead-letters the message, whatever rejectAndRequeue says.
func (a *Adapter) Discard(ctx context.Context, m *azservicebus.ReceivedMessage) error {
	reason := "malformed"
	return a.settler.DeadLetterMessage(ctx, m, &azservicebus.DeadLetterOptions{Reason: &reason})
}

// toMessage converts a received message, application properties are kept in their textual form.
func toMessage(m *azservicebus.ReceivedMessage) *beetle.Message {
	msg := beetle.NewMessage()
	msg.ID = m.MessageID
	msg.Body = m.Body
	for k, v := range m.ApplicationProperties {
		switch t := v.(type) {
		case string:
			msg.Header[k] = t
		case nil:
		default:
			if n, _, err := beetle.HeaderInt64(k, v); err == nil {
				msg.Header[k] = strconv.FormatInt(n, 10)
			} else {
				msg.Header[k] = fmt.Sprint(v)
			}
		}
	}
	if msg.ID == "" {
		msg.ID = msg.Header.Get(beetle.HdrMessageID)
	}
	if m.CorrelationID != nil && *m.CorrelationID != "" {
		msg.Header.SetCorrelationID(*m.CorrelationID)
	}
	return msg
}

// event is given to handlers, messages are settled by the interceptor.
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
