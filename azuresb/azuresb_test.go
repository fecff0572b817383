package azuresb_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velmie/beetle"
	"github.com/velmie/beetle/azuresb"
	"github.com/velmie/beetle/dedup"
	"github.com/velmie/beetle/kv"
)

// fakeReceiver hands out queued batches and records settlements.
type fakeReceiver struct {
	mu          sync.Mutex
	batches     chan []*azservicebus.ReceivedMessage
	receiveErr  error
	completed   []string
	abandoned   []string
	deadLetters []string
	closed      bool
}

func newFakeReceiver(batches ...[]*azservicebus.ReceivedMessage) *fakeReceiver {
	ch := make(chan []*azservicebus.ReceivedMessage, len(batches))
	for _, b := range batches {
		ch <- b
	}
	return &fakeReceiver{batches: ch}
}

func (r *fakeReceiver) ReceiveMessages(ctx context.Context, _ int, _ *azservicebus.ReceiveMessagesOptions) ([]*azservicebus.ReceivedMessage, error) {
	r.mu.Lock()
	err := r.receiveErr
	r.receiveErr = nil
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case b := <-r.batches:
		return b, nil
	}
}

func (r *fakeReceiver) CompleteMessage(_ context.Context, m *azservicebus.ReceivedMessage, _ *azservicebus.CompleteMessageOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, m.MessageID)
	return nil
}

func (r *fakeReceiver) AbandonMessage(_ context.Context, m *azservicebus.ReceivedMessage, _ *azservicebus.AbandonMessageOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abandoned = append(r.abandoned, m.MessageID)
	return nil
}

func (r *fakeReceiver) DeadLetterMessage(_ context.Context, m *azservicebus.ReceivedMessage, _ *azservicebus.DeadLetterOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deadLetters = append(r.deadLetters, m.MessageID)
	return nil
}

func (r *fakeReceiver) Close(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReceiver) settled() (completed, abandoned, deadLetters []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.completed...), append([]string(nil), r.abandoned...), append([]string(nil), r.deadLetters...)
}

func (r *fakeReceiver) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type fakeReceiverFactory struct {
	receiver azuresb.Receiver
	err      error
}

func (f *fakeReceiverFactory) CreateReceiver(string) (azuresb.Receiver, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.receiver, nil
}

func received(id string, props map[string]any) *azservicebus.ReceivedMessage {
	return &azservicebus.ReceivedMessage{
		MessageID:             id,
		Body:                  []byte("payload-" + id),
		ApplicationProperties: props,
	}
}

func redundant(id string) *azservicebus.ReceivedMessage {
	return received(id, map[string]any{beetle.HdrFlags: int64(beetle.FlagRedundant)})
}

func waitClosed(t *testing.T, sub beetle.Subscription) {
	t.Helper()
	closer, ok := sub.(interface{ Closed() <-chan struct{} })
	require.True(t, ok)
	select {
	case <-closer.Closed():
	case <-time.After(time.Second):
		t.Fatal("receiver was not closed")
	}
}

func TestSubscriberDeduplicatesBatch(t *testing.T) {
	fr := newFakeReceiver([]*azservicebus.ReceivedMessage{
		redundant("A"), redundant("B"), redundant("A"), redundant("C"),
	})
	store := kv.NewMemory[string]()
	subscriber := azuresb.NewSubscriber(&fakeReceiverFactory{receiver: fr}, store)

	var mu sync.Mutex
	var handled []string
	handler := func(e beetle.Event) error {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "orders", e.Topic())
		handled = append(handled, e.Message().ID)
		if e.Message().ID == "B" {
			return errors.New("handler error")
		}
		return nil
	}

	sub, err := subscriber.Subscribe("orders", handler)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		completed, abandoned, _ := fr.settled()
		return len(completed)+len(abandoned) == 4
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, sub.Unsubscribe())
	waitClosed(t, sub)
	assert.True(t, fr.isClosed())

	mu.Lock()
	assert.Equal(t, []string{"A", "B", "C"}, handled)
	mu.Unlock()

	completed, abandoned, deadLetters := fr.settled()
	assert.Equal(t, []string{"A", "A", "C"}, completed)
	assert.Equal(t, []string{"B"}, abandoned)
	assert.Empty(t, deadLetters)

	status, _, err := store.Get(context.Background(), "B:status")
	require.NoError(t, err)
	assert.Equal(t, "INCOMPLETE", status)
	attempts, _, err := store.Get(context.Background(), "B:attempts")
	require.NoError(t, err)
	assert.Equal(t, "1", attempts)
}

func TestSubscriberDeadLettersWhenDiscarding(t *testing.T) {
	fr := newFakeReceiver([]*azservicebus.ReceivedMessage{received("X", nil)})
	subscriber := azuresb.NewSubscriber(&fakeReceiverFactory{receiver: fr}, kv.NewMemory[string](),
		azuresb.WithDedupOptions(dedup.WithMaxAttempts(3)))

	sub, err := subscriber.Subscribe("orders", func(beetle.Event) error {
		return errors.New("boom")
	}, beetle.DiscardOnReject())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, _, deadLetters := fr.settled()
		return len(deadLetters) == 1
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, sub.Unsubscribe())
	waitClosed(t, sub)
}

func TestSubscriberExpiredMessageIsCompleted(t *testing.T) {
	expired := received("E", map[string]any{beetle.HdrExpiresAt: int32(1)})
	fr := newFakeReceiver([]*azservicebus.ReceivedMessage{expired})
	store := kv.NewMemory[string]()
	subscriber := azuresb.NewSubscriber(&fakeReceiverFactory{receiver: fr}, store)

	called := false
	sub, err := subscriber.Subscribe("orders", func(beetle.Event) error {
		called = true
		return nil
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		completed, _, _ := fr.settled()
		return len(completed) == 1
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, sub.Unsubscribe())
	waitClosed(t, sub)

	assert.False(t, called)
	assert.Equal(t, 0, store.Len())
}

func TestSubscriberReportsReceiveErrors(t *testing.T) {
	fr := newFakeReceiver()
	fr.receiveErr = errors.New("link detached")
	subscriber := azuresb.NewSubscriber(&fakeReceiverFactory{receiver: fr}, kv.NewMemory[string]())

	errs := make(chan error, 1)
	sub, err := subscriber.Subscribe("orders", func(beetle.Event) error { return nil },
		beetle.WithErrorHandler(func(err error, _ beetle.Subscription) {
			select {
			case errs <- err:
			default:
			}
		}))
	require.NoError(t, err)

	select {
	case err := <-errs:
		assert.ErrorContains(t, err, "link detached")
	case <-time.After(time.Second):
		t.Fatal("error handler was not called")
	}
	require.NoError(t, sub.Unsubscribe())
	waitClosed(t, sub)
}

func TestSubscriberDeadLettersMalformedMessages(t *testing.T) {
	fr := newFakeReceiver([]*azservicebus.ReceivedMessage{
		redundant("A"), received("", nil), redundant("C"),
	})
	subscriber := azuresb.NewSubscriber(&fakeReceiverFactory{receiver: fr}, kv.NewMemory[string]())

	errs := make(chan error, 1)
	sub, err := subscriber.Subscribe("orders", func(beetle.Event) error { return nil },
		beetle.WithErrorHandler(func(err error, _ beetle.Subscription) {
			errs <- err
		}))
	require.NoError(t, err)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, beetle.ErrMissingMessageID)
	case <-time.After(time.Second):
		t.Fatal("error handler was not called")
	}
	require.NoError(t, sub.Unsubscribe())
	waitClosed(t, sub)

	completed, abandoned, deadLetters := fr.settled()
	assert.Equal(t, []string{"A"}, completed)
	assert.Equal(t, []string{""}, deadLetters)
	assert.Equal(t, []string{"C"}, abandoned)
}

func TestSubscriberAbandonsMessagesAfterStoreFailure(t *testing.T) {
	fr := newFakeReceiver([]*azservicebus.ReceivedMessage{
		redundant("A"), redundant("B"), redundant("C"),
	})
	store := &brokenStore{Memory: kv.NewMemory[string](), broken: "B"}
	subscriber := azuresb.NewSubscriber(&fakeReceiverFactory{receiver: fr}, store)

	errs := make(chan error, 1)
	sub, err := subscriber.Subscribe("orders", func(beetle.Event) error { return nil },
		beetle.DiscardOnReject(),
		beetle.WithErrorHandler(func(err error, _ beetle.Subscription) {
			errs <- err
		}))
	require.NoError(t, err)

	select {
	case err := <-errs:
		assert.ErrorContains(t, err, "store unavailable")
	case <-time.After(time.Second):
		t.Fatal("error handler was not called")
	}
	require.NoError(t, sub.Unsubscribe())
	waitClosed(t, sub)

	completed, abandoned, deadLetters := fr.settled()
	assert.Equal(t, []string{"A"}, completed)
	assert.Equal(t, []string{"B", "C"}, abandoned)
	assert.Empty(t, deadLetters)
}

// brokenStore fails every read of keys starting with broken.
type brokenStore struct {
	*kv.Memory[string]
	broken string
}

func (b *brokenStore) Get(ctx context.Context, key string) (string, bool, error) {
	if strings.HasPrefix(key, b.broken) {
		return "", false, errors.New("store unavailable")
	}
	return b.Memory.Get(ctx, key)
}

func TestSubscriberAlreadySubscribed(t *testing.T) {
	subscriber := azuresb.NewSubscriber(&fakeReceiverFactory{receiver: newFakeReceiver()}, kv.NewMemory[string]())
	handler := func(beetle.Event) error { return nil }

	sub, err := subscriber.Subscribe("orders", handler)
	require.NoError(t, err)

	_, err = subscriber.Subscribe("orders", handler)
	assert.ErrorIs(t, err, beetle.AlreadySubscribed)

	require.NoError(t, sub.Unsubscribe())
	waitClosed(t, sub)

	sub, err = subscriber.Subscribe("orders", handler)
	require.NoError(t, err)
	require.NoError(t, sub.Unsubscribe())
}

func TestSubscriberReceiverFactoryError(t *testing.T) {
	subscriber := azuresb.NewSubscriber(&fakeReceiverFactory{err: errors.New("no namespace")}, kv.NewMemory[string]())

	_, err := subscriber.Subscribe("orders", func(beetle.Event) error { return nil })
	assert.ErrorContains(t, err, "no namespace")
}

func TestSubscription_UnsubscribeAndMethods(t *testing.T) {
	subscriber := azuresb.NewSubscriber(&fakeReceiverFactory{receiver: newFakeReceiver()}, kv.NewMemory[string]())

	sub, err := subscriber.Subscribe("test-topic", func(beetle.Event) error { return nil })
	require.NoError(t, err)

	assert.Equal(t, "test-topic", sub.Topic())
	assert.NotNil(t, sub.Handler())
	assert.NotNil(t, sub.Options())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, sub.Unsubscribe())
		}()
	}
	wg.Wait()

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Error("Done channel was not closed after unsubscribe")
	}
	waitClosed(t, sub)
}

func TestNewAzureReceiverConfiguration(t *testing.T) {
	existing := newFakeReceiver()
	r, err := azuresb.NewAzureReceiver("orders", azuresb.WithExistingReceiver(existing))
	require.NoError(t, err)
	require.NoError(t, r.Close(context.Background()))
	assert.True(t, existing.isClosed())

	_, err = azuresb.NewAzureReceiver("orders")
	assert.ErrorContains(t, err, "insufficient configuration")

	_, err = azuresb.NewAzureReceiver("orders",
		azuresb.WithReceiverConnectionString("Endpoint=sb://example.servicebus.windows.net/;SharedAccessKeyName=k;SharedAccessKey=v"),
		azuresb.WithReceiverOptions(&azservicebus.ReceiverOptions{ReceiveMode: azservicebus.ReceiveModeReceiveAndDelete}),
	)
	assert.ErrorContains(t, err, "receive and delete")
}
