package kv

import (
	"context"
	"reflect"
	"sync"
)

var (
	_ Store[string]    = (*Memory[string])(nil)
	_ Inserter[string] = (*Memory[string])(nil)
	_ Swapper[string]  = (*Memory[string])(nil)
	_ Deleter          = (*Memory[string])(nil)
)

// Memory is an in-process Store. It is safe for concurrent use and is meant
// for tests and single process deployments.
type Memory[V any] struct {
	mu   sync.RWMutex
	data map[string]V
}

// NewMemory creates an empty in-memory store.
func NewMemory[V any]() *Memory[V] {
	return &Memory[V]{data: make(map[string]V)}
}

func (m *Memory[V]) Get(_ context.Context, key string) (V, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory[V]) Put(_ context.Context, key string, value V) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory[V]) PutIfAbsent(_ context.Context, key string, value V) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value
	return true, nil
}

func (m *Memory[V]) CompareAndSwap(_ context.Context, key string, old, value V) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.data[key]
	if !ok || !reflect.DeepEqual(cur, old) {
		return false, nil
	}
	m.data[key] = value
	return true, nil
}

func (m *Memory[V]) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len returns the number of stored keys.
func (m *Memory[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
