package dedup

import (
	"context"
	"strings"

	"github.com/velmie/beetle"
)

//go:generate go run go.uber.org/mock/mockgen@v0.5.0 -source adapter.go -destination ./mock/adapter.go

// Adapter exposes the metadata and the acknowledgment operations of a transport message type.
type Adapter[T any] interface {
	// KeyOf returns the deduplication key, it fails when the message carries no identifier.
	KeyOf(msg T) (string, error)
	// ExpiresAt returns the expiration unix time, beetle.MaxExpiry when the message never expires.
	ExpiresAt(msg T) (int64, error)
	// IsRedundant reports whether the message is one of several published copies.
	IsRedundant(msg T) (bool, error)
	// Drop positively acknowledges the message.
	Drop(ctx context.Context, msg T) error
	// Requeue negatively acknowledges the message, asking for redelivery or discard
	// depending on how the adapter was built.
	Requeue(ctx context.Context, msg T) error
}

// HostManaged returns an adapter reading metadata through a whose Drop and Requeue do nothing.
// It is used when the host acknowledges messages itself.
func HostManaged[T any](a Adapter[T]) Adapter[T] {
	return hostManaged[T]{Adapter: a}
}

type hostManaged[T any] struct {
	Adapter[T]
}

func (hostManaged[T]) Drop(context.Context, T) error {
	return nil
}

func (hostManaged[T]) Requeue(context.Context, T) error {
	return nil
}

// EventAdapter adapts beetle.Event. The key is Message.ID or, when it is empty, the message-id header.
// Requeue calls Requeue of events implementing beetle.Requeuer, other events are left unacknowledged
// so the transport redelivers them.
type EventAdapter struct{}

var _ Adapter[beetle.Event] = EventAdapter{}

func (EventAdapter) KeyOf(e beetle.Event) (string, error) {
	msg := e.Message()
	if msg == nil {
		return "", beetle.ErrMissingMessageID
	}
	key := strings.TrimSpace(msg.ID)
	if key == "" {
		key = strings.TrimSpace(msg.Header.Get(beetle.HdrMessageID))
	}
	if key == "" {
		return "", beetle.ErrMissingMessageID
	}
	return key, nil
}

func (EventAdapter) ExpiresAt(e beetle.Event) (int64, error) {
	if e.Message() == nil {
		return beetle.MaxExpiry, nil
	}
	return e.Message().Header.ExpiresAt()
}

func (EventAdapter) IsRedundant(e beetle.Event) (bool, error) {
	if e.Message() == nil {
		return false, nil
	}
	return e.Message().Header.Redundant()
}

func (EventAdapter) Drop(_ context.Context, e beetle.Event) error {
	return e.Ack()
}

func (EventAdapter) Requeue(_ context.Context, e beetle.Event) error {
	if r, ok := e.(beetle.Requeuer); ok {
		return r.Requeue()
	}
	return nil
}
