package badgerkv_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velmie/beetle/kv"
	"github.com/velmie/beetle/kv/badgerkv"
)

func openStore(t *testing.T, opts ...badgerkv.Option) *badgerkv.Store {
	t.Helper()
	store, err := badgerkv.Open(badgerkv.Config{InMemory: true}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreGetPut(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	_, ok, err := store.Get(ctx, "msg-1:status")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Put(ctx, "msg-1:status", "INCOMPLETE"))
	require.NoError(t, store.Put(ctx, "msg-1:status", "COMPLETE"))

	v, ok, err := store.Get(ctx, "msg-1:status")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "COMPLETE", v)
}

func TestStorePutIfAbsentAndDelete(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	stored, err := store.PutIfAbsent(ctx, "msg-1:mutex", "100")
	require.NoError(t, err)
	require.True(t, stored)

	stored, err = store.PutIfAbsent(ctx, "msg-1:mutex", "200")
	require.NoError(t, err)
	require.False(t, stored)

	require.NoError(t, store.Delete(ctx, "msg-1:mutex"))
	stored, err = store.PutIfAbsent(ctx, "msg-1:mutex", "300")
	require.NoError(t, err)
	require.True(t, stored)
}

func TestStorePrefixWithSuffixedView(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, badgerkv.WithPrefix("orders/"))
	attempts := kv.Int64(store, "attempts")

	require.NoError(t, attempts.Put(ctx, "msg-1", 2))
	n, ok, err := attempts.Get(ctx, "msg-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	v, ok, err := store.Get(ctx, "msg-1:attempts")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2", v)
}

func TestStoreCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	mutex := kv.Int64(store, "mutex")

	swapped, err := mutex.CompareAndSwap(ctx, "msg-1", 1, 2)
	require.NoError(t, err)
	require.False(t, swapped)

	require.NoError(t, mutex.Put(ctx, "msg-1", 1))
	swapped, err = mutex.CompareAndSwap(ctx, "msg-1", 5, 2)
	require.NoError(t, err)
	require.False(t, swapped)

	swapped, err = mutex.CompareAndSwap(ctx, "msg-1", 1, 2)
	require.NoError(t, err)
	require.True(t, swapped)
	v, _, err := mutex.Get(ctx, "msg-1")
	require.NoError(t, err)
	require.Equal(t, int64(2), v)

	swapped, err = mutex.CompareAndSwap(ctx, "msg-1", 1, 3)
	require.NoError(t, err)
	require.False(t, swapped)
}
