// Package etcdkv stores message handling state in etcd. Its transactional
// insert-if-absent makes it suitable for exclusive handling across consumer processes.
package etcdkv

import (
	"context"

	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/velmie/beetle/kv"
)

var (
	_ kv.Store[string]    = (*Store)(nil)
	_ kv.Inserter[string] = (*Store)(nil)
	_ kv.Swapper[string]  = (*Store)(nil)
	_ kv.Deleter          = (*Store)(nil)
)

// DefaultPrefix is the key space used unless WithPrefix is given.
const DefaultPrefix = "/beetle/"

// Store implements kv.Store with etcd.
type Store struct {
	kv     clientv3.KV
	prefix string
	lease  clientv3.LeaseID
}

// Option configures Store.
type Option func(*Store)

// WithPrefix sets the key space of the store.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithLease attaches written keys to lease, they are removed when the lease expires.
func WithLease(id clientv3.LeaseID) Option {
	return func(s *Store) {
		s.lease = id
	}
}

// New creates a store using the KV API of an etcd client.
func New(client clientv3.KV, opts ...Option) *Store {
	s := &Store{kv: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) putOptions() []clientv3.OpOption {
	if s.lease == clientv3.NoLease {
		return nil
	}
	return []clientv3.OpOption{clientv3.WithLease(s.lease)}
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	resp, err := s.kv.Get(ctx, s.prefix+key)
	if err != nil {
		return "", false, errors.Wrapf(err, "etcd: cannot get %q", key)
	}
	if len(resp.Kvs) == 0 {
		return "", false, nil
	}
	return string(resp.Kvs[0].Value), true, nil
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	_, err := s.kv.Put(ctx, s.prefix+key, value, s.putOptions()...)
	return errors.Wrapf(err, "etcd: cannot put %q", key)
}

// PutIfAbsent commits the write only if the key has never been created.
func (s *Store) PutIfAbsent(ctx context.Context, key string, value string) (bool, error) {
	k := s.prefix + key
	resp, err := s.kv.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(k), "=", 0)).
		Then(clientv3.OpPut(k, value, s.putOptions()...)).
		Commit()
	if err != nil {
		return false, errors.Wrapf(err, "etcd: cannot insert %q", key)
	}
	return resp.Succeeded, nil
}

// CompareAndSwap commits the write only if the key still holds old.
func (s *Store) CompareAndSwap(ctx context.Context, key string, old, value string) (bool, error) {
	k := s.prefix + key
	resp, err := s.kv.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(k), "=", old)).
		Then(clientv3.OpPut(k, value, s.putOptions()...)).
		Commit()
	if err != nil {
		return false, errors.Wrapf(err, "etcd: cannot swap %q", key)
	}
	return resp.Succeeded, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.kv.Delete(ctx, s.prefix+key)
	return errors.Wrapf(err, "etcd: cannot delete %q", key)
}
