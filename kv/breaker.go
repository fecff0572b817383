package kv

import (
	"context"

	"github.com/sony/gobreaker"
)

// BreakerStore guards store I/O with a circuit breaker. While the breaker is open calls
// fail immediately with gobreaker.ErrOpenState, the consumer then leaves messages
// unacknowledged instead of piling requests on an unavailable backend.
type BreakerStore[V any] struct {
	backing Store[V]
	cb      *gobreaker.CircuitBreaker
}

// WithCircuitBreaker wraps s with a circuit breaker configured by settings.
func WithCircuitBreaker[V any](s Store[V], settings gobreaker.Settings) *BreakerStore[V] {
	return &BreakerStore[V]{
		backing: s,
		cb:      gobreaker.NewCircuitBreaker(settings),
	}
}

// Supports reports whether the wrapped store provides c.
func (b *BreakerStore[V]) Supports(c Capability) bool {
	return Supports(b.backing, c)
}

// State returns the current breaker state.
func (b *BreakerStore[V]) State() gobreaker.State {
	return b.cb.State()
}

type getResult[V any] struct {
	value V
	ok    bool
}

func (b *BreakerStore[V]) Get(ctx context.Context, key string) (V, bool, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		v, ok, err := b.backing.Get(ctx, key)
		return getResult[V]{v, ok}, err
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	r := res.(getResult[V])
	return r.value, r.ok, nil
}

func (b *BreakerStore[V]) Put(ctx context.Context, key string, value V) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.backing.Put(ctx, key, value)
	})
	return err
}

func (b *BreakerStore[V]) PutIfAbsent(ctx context.Context, key string, value V) (bool, error) {
	ins, ok := b.backing.(Inserter[V])
	if !ok {
		return false, ErrUnsupported
	}
	res, err := b.cb.Execute(func() (interface{}, error) {
		return ins.PutIfAbsent(ctx, key, value)
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

func (b *BreakerStore[V]) CompareAndSwap(ctx context.Context, key string, old, value V) (bool, error) {
	sw, ok := b.backing.(Swapper[V])
	if !ok {
		return false, ErrUnsupported
	}
	res, err := b.cb.Execute(func() (interface{}, error) {
		return sw.CompareAndSwap(ctx, key, old, value)
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

func (b *BreakerStore[V]) Delete(ctx context.Context, key string) error {
	del, ok := b.backing.(Deleter)
	if !ok {
		return ErrUnsupported
	}
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, del.Delete(ctx, key)
	})
	return err
}
