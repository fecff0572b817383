package natsjs

import (
	"context"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/velmie/beetle"
	"github.com/velmie/beetle/dedup"
)

var _ dedup.Adapter[*nats.Msg] = (*Adapter)(nil)

// Adapter exposes JetStream messages to the dedup package.
type Adapter struct {
	rejectAndRequeue bool
	nakDelay         time.Duration
}

// NewAdapter creates an adapter. Requeued messages are redelivered after nakDelay when
// rejectAndRequeue is set and terminated otherwise.
func NewAdapter(rejectAndRequeue bool, nakDelay time.Duration) *Adapter {
	return &Adapter{rejectAndRequeue: rejectAndRequeue, nakDelay: nakDelay}
}

// KeyOf returns the message-id header, the JetStream Nats-Msg-Id header is used when it is absent.
func (a *Adapter) KeyOf(m *nats.Msg) (string, error) {
	key := strings.TrimSpace(m.Header.Get(beetle.HdrMessageID))
	if key == "" {
		key = strings.TrimSpace(m.Header.Get(nats.MsgIdHdr))
	}
	if key == "" {
		return "", beetle.ErrMissingMessageID
	}
	return key, nil
}

func (a *Adapter) ExpiresAt(m *nats.Msg) (int64, error) {
	return beetle.ExpiresAtValue(headerValue(m, beetle.HdrExpiresAt))
}

func (a *Adapter) IsRedundant(m *nats.Msg) (bool, error) {
	return beetle.RedundantValue(headerValue(m, beetle.HdrFlags))
}

func (a *Adapter) Drop(_ context.Context, m *nats.Msg) error {
	return m.AckSync()
}

func (a *Adapter) Requeue(_ context.Context, m *nats.Msg) error {
	if !a.rejectAndRequeue {
		return m.Term()
	}
	if a.nakDelay > 0 {
		return m.NakWithDelay(a.nakDelay)
	}
	return m.Nak()
}

// Discard terminates the message, JetStream never redelivers it.
func (a *Adapter) Discard(_ context.Context, m *nats.Msg) error {
	return m.Term()
}

func headerValue(m *nats.Msg, key string) any {
	if m.Header == nil {
		return nil
	}
	values := m.Header.Values(key)
	if len(values) == 0 {
		return nil
	}
	return values[0]
}
