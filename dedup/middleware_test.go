package dedup_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velmie/beetle"
	"github.com/velmie/beetle/dedup"
	"github.com/velmie/beetle/kv"
)

type testEvent struct {
	msg      *beetle.Message
	acks     int
	requeues int
}

func (e *testEvent) Topic() string            { return "orders" }
func (e *testEvent) Message() *beetle.Message { return e.msg }
func (e *testEvent) Ack() error               { e.acks++; return nil }
func (e *testEvent) Requeue() error           { e.requeues++; return nil }

func newEvent(id string) *testEvent {
	msg := beetle.NewMessage()
	msg.ID = id
	return &testEvent{msg: msg}
}

func TestMiddlewareHostManaged(t *testing.T) {
	store := kv.NewMemory[string]()
	errHandler := errors.New("boom")
	calls := 0
	h := dedup.Middleware(store)(func(e beetle.Event) error {
		calls++
		if e.Message().ID == "bad" {
			return errHandler
		}
		return nil
	})

	first := newEvent("msg-1")
	require.NoError(t, h(first))
	duplicate := newEvent("msg-1")
	require.NoError(t, h(duplicate))
	assert.Equal(t, 1, calls)
	assert.Zero(t, first.acks+duplicate.acks, "acknowledgment is left to the host")

	bad := newEvent("bad")
	err := h(bad)
	var requeueErr *dedup.RequeueError
	require.ErrorAs(t, err, &requeueErr)
	assert.Equal(t, "bad", requeueErr.Key)
	assert.ErrorIs(t, err, errHandler)
	assert.Zero(t, bad.requeues)
}

func TestMiddlewareAcknowledgesEvents(t *testing.T) {
	store := kv.NewMemory[string]()
	h := dedup.Middleware(store, dedup.WithHostManagedAck(false), dedup.WithMaxAttempts(2))(func(e beetle.Event) error {
		return errors.New("boom")
	})

	e := newEvent("msg-1")
	require.NoError(t, h(e))
	assert.Equal(t, 1, e.requeues)
	assert.Equal(t, 0, e.acks)

	require.NoError(t, h(e))
	assert.Equal(t, 1, e.requeues)
	assert.Equal(t, 1, e.acks)
	assert.Equal(t, "FAILED", rawStatus(t, store, "msg-1"))
}

func TestMiddlewareKeyFromHeader(t *testing.T) {
	store := kv.NewMemory[string]()
	h := dedup.Middleware(store)(func(beetle.Event) error { return nil })

	e := newEvent("")
	e.msg.Header.Set(beetle.HdrMessageID, "from-header")
	require.NoError(t, h(e))
	assert.Equal(t, "COMPLETE", rawStatus(t, store, "from-header"))

	require.ErrorIs(t, h(newEvent("")), beetle.ErrMissingMessageID)
}

func TestMiddlewareDropsExpiredEvents(t *testing.T) {
	store := kv.NewMemory[string]()
	called := false
	h := dedup.Middleware(store, dedup.WithClock(clock))(func(beetle.Event) error {
		called = true
		return nil
	})

	e := newEvent("msg-1")
	e.msg.Header.SetExpiresAt(now.Add(-time.Minute).Unix())
	require.NoError(t, h(e))
	assert.False(t, called)
	assert.Equal(t, 0, store.Len())
}

func TestMiddlewarePanicsOnUnsupportedStore(t *testing.T) {
	assert.Panics(t, func() {
		dedup.Middleware(plainStore{}, dedup.WithExclusiveHandling(time.Minute))
	})
}

func TestEventAdapterWithoutRequeuer(t *testing.T) {
	var adapter dedup.EventAdapter
	inner := newEvent("msg-1")
	e := struct{ beetle.Event }{inner}
	require.NoError(t, adapter.Requeue(context.Background(), e))
	assert.Zero(t, inner.requeues)

	require.NoError(t, adapter.Requeue(context.Background(), inner))
	assert.Equal(t, 1, inner.requeues)
}
