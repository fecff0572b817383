// Package amqp binds message deduplication to AMQP 0-9-1 brokers (RabbitMQ).
//
// Deliveries are consumed with manual acknowledgment and evaluated in batches by a
// dedup.Interceptor, which acknowledges or rejects every delivery itself. Publishing
// to several brokers at once produces redundant copies sharing one message id.
package amqp

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rabbitmq/amqp091-go"

	"github.com/velmie/beetle"
	"github.com/velmie/beetle/dedup"
)

var _ dedup.Adapter[amqp091.Delivery] = (*Adapter)(nil)

// Adapter exposes deliveries to the dedup package. Header values are decoded
// whatever numeric, textual or binary type the publishing client used.
type Adapter struct {
	ack              amqp091.Acknowledger
	needToAck        bool
	rejectAndRequeue bool
}

// NewAdapter creates an adapter. Deliveries are acknowledged through ack, or through their
// own Acknowledger when ack is nil. With needToAck false acknowledgment is left to the broker
// (auto-ack consumers) and Drop and Requeue do nothing. rejectAndRequeue decides whether
// rejected deliveries are redelivered or discarded (dead-lettered when the queue has a
// dead letter exchange).
func NewAdapter(ack amqp091.Acknowledger, needToAck, rejectAndRequeue bool) *Adapter {
	return &Adapter{ack: ack, needToAck: needToAck, rejectAndRequeue: rejectAndRequeue}
}

// KeyOf returns the message id property, the message-id header is used when the property is empty.
func (a *Adapter) KeyOf(d amqp091.Delivery) (string, error) {
	key := strings.TrimSpace(d.MessageId)
	if key == "" {
		if v, ok := d.Headers[beetle.HdrMessageID].(string); ok {
			key = strings.TrimSpace(v)
		}
	}
	if key == "" {
		return "", beetle.ErrMissingMessageID
	}
	return key, nil
}

func (a *Adapter) ExpiresAt(d amqp091.Delivery) (int64, error) {
	return beetle.ExpiresAtValue(d.Headers[beetle.HdrExpiresAt])
}

func (a *Adapter) IsRedundant(d amqp091.Delivery) (bool, error) {
	return beetle.RedundantValue(d.Headers[beetle.HdrFlags])
}

func (a *Adapter) Drop(_ context.Context, d amqp091.Delivery) error {
	if !a.needToAck {
		return nil
	}
	return a.acknowledger(d).Ack(d.DeliveryTag, false)
}

func (a *Adapter) Requeue(_ context.Context, d amqp091.Delivery) error {
	if !a.needToAck {
		return nil
	}
	return a.acknowledger(d).Reject(d.DeliveryTag, a.rejectAndRequeue)
}

// Discard rejects the delivery without requeueing it, whatever rejectAndRequeue says.
func (a *Adapter) Discard(_ context.Context, d amqp091.Delivery) error {
	if !a.needToAck {
		return nil
	}
	return a.acknowledger(d).Reject(d.DeliveryTag, false)
}

func (a *Adapter) acknowledger(d amqp091.Delivery) amqp091.Acknowledger {
	if a.ack != nil {
		return a.ack
	}
	if d.Acknowledger == nil {
		return closedAcknowledger{}
	}
	return d.Acknowledger
}

// closedAcknowledger is used for deliveries which were not received from a channel.
type closedAcknowledger struct{}

func (closedAcknowledger) Ack(uint64, bool) error {
	return amqp091.ErrClosed
}

func (closedAcknowledger) Nack(uint64, bool, bool) error {
	return amqp091.ErrClosed
}

func (closedAcknowledger) Reject(uint64, bool) error {
	return amqp091.ErrClosed
}

// toMessage converts a delivery, header values are kept in their textual form.
func toMessage(d amqp091.Delivery) *beetle.Message {
	msg := beetle.NewMessage()
	msg.ID = d.MessageId
	msg.Body = d.Body
	for k, v := range d.Headers {
		switch t := v.(type) {
		case string:
			msg.Header[k] = t
		case []byte:
			msg.Header[k] = string(t)
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
	if d.CorrelationId != "" {
		msg.Header.SetCorrelationID(d.CorrelationId)
	}
	return msg
}
