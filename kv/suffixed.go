package kv

import "context"

// SuffixedStore is a view over a Store that keeps its entries under key + ":" + name
// and converts values with a decode/encode pair.
type SuffixedStore[V, W any] struct {
	backing Store[V]
	name    string
	decode  func(V) (W, error)
	encode  func(W) V
}

// Suffixed creates a view over s. The view never touches the un-suffixed entry of a key.
func Suffixed[V, W any](s Store[V], name string, decode func(V) (W, error), encode func(W) V) *SuffixedStore[V, W] {
	return &SuffixedStore[V, W]{
		backing: s,
		name:    name,
		decode:  decode,
		encode:  encode,
	}
}

// Name returns the suffix name.
func (s *SuffixedStore[V, W]) Name() string {
	return s.name
}

func (s *SuffixedStore[V, W]) Get(ctx context.Context, key string) (W, bool, error) {
	var zero W
	k := SuffixKey(key, s.name)
	raw, ok, err := s.backing.Get(ctx, k)
	if err != nil || !ok {
		return zero, false, err
	}
	value, err := s.decode(raw)
	if err != nil {
		return zero, false, &DecodeError{Key: k, Err: err}
	}
	return value, true, nil
}

func (s *SuffixedStore[V, W]) Put(ctx context.Context, key string, value W) error {
	return s.backing.Put(ctx, SuffixKey(key, s.name), s.encode(value))
}

// PutIfAbsent forwards to the backing store, ErrUnsupported is returned when it is not an Inserter.
func (s *SuffixedStore[V, W]) PutIfAbsent(ctx context.Context, key string, value W) (bool, error) {
	ins, ok := s.backing.(Inserter[V])
	if !ok {
		return false, ErrUnsupported
	}
	return ins.PutIfAbsent(ctx, SuffixKey(key, s.name), s.encode(value))
}

// Delete forwards to the backing store, ErrUnsupported is returned when it is not a Deleter.
func (s *SuffixedStore[V, W]) Delete(ctx context.Context, key string) error {
	del, ok := s.backing.(Deleter)
	if !ok {
		return ErrUnsupported
	}
	return del.Delete(ctx, SuffixKey(key, s.name))
}

// CompareAndSwap forwards to the backing store, ErrUnsupported is returned when it is not a Swapper.
func (s *SuffixedStore[V, W]) CompareAndSwap(ctx context.Context, key string, old, value W) (bool, error) {
	sw, ok := s.backing.(Swapper[V])
	if !ok {
		return false, ErrUnsupported
	}
	return sw.CompareAndSwap(ctx, SuffixKey(key, s.name), s.encode(old), s.encode(value))
}

// Supports reports whether the backing store provides c.
func (s *SuffixedStore[V, W]) Supports(c Capability) bool {
	return Supports(s.backing, c)
}
