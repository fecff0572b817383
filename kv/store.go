// Package kv defines the key-value store contract used to record per-message handling state.
//
// A Store maps string keys to values. Auxiliary state of one logical key is kept in
// suffixed views: Suffixed(store, "status", ...) reads and writes key + ":status"
// and transcodes values through a decode/encode pair, so a single string store can
// hold statuses, attempt counters and timestamps side by side.
package kv

import "context"

// Separator joins a key and a suffix name.
const Separator = ":"

// Store is a mapping from string keys to values.
type Store[V any] interface {
	// Get returns the value stored under key, ok is false if the key was never written.
	Get(ctx context.Context, key string) (value V, ok bool, err error)
	// Put unconditionally overwrites the value stored under key.
	Put(ctx context.Context, key string, value V) error
}

// Inserter is implemented by stores which can atomically write a key only when it does not exist.
type Inserter[V any] interface {
	// PutIfAbsent stores value unless key exists. stored reports whether the write happened.
	PutIfAbsent(ctx context.Context, key string, value V) (stored bool, err error)
}

// Swapper is implemented by stores which can atomically replace a value that was read before.
type Swapper[V any] interface {
	// CompareAndSwap stores value only if key still holds old. swapped reports whether the write happened.
	CompareAndSwap(ctx context.Context, key string, old, value V) (swapped bool, err error)
}

// Deleter is implemented by stores which can remove keys.
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// Capability names an optional store method.
type Capability int

const (
	CanInsert Capability = iota + 1
	CanSwap
	CanDelete
)

// Capable is implemented by stores which forward optional methods to another store.
// They have the methods in any case, Supports reports whether calling them can succeed.
type Capable interface {
	Supports(c Capability) bool
}

// Supports reports whether s provides the capability c.
func Supports[V any](s Store[V], c Capability) bool {
	if cs, ok := s.(Capable); ok {
		return cs.Supports(c)
	}
	var ok bool
	switch c {
	case CanInsert:
		_, ok = s.(Inserter[V])
	case CanSwap:
		_, ok = s.(Swapper[V])
	case CanDelete:
		_, ok = s.(Deleter)
	}
	return ok
}

// SuffixKey derives the key of a suffixed view.
func SuffixKey(key, name string) string {
	return key + Separator + name
}
