// Package badgerkv stores message handling state in an embedded BadgerDB database.
package badgerkv

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/velmie/beetle/kv"
)

var (
	_ kv.Store[string]    = (*Store)(nil)
	_ kv.Inserter[string] = (*Store)(nil)
	_ kv.Swapper[string]  = (*Store)(nil)
	_ kv.Deleter          = (*Store)(nil)
)

const maxConflictRetries = 3

// Store implements kv.Store on top of BadgerDB.
type Store struct {
	db     *badger.DB
	prefix string
	ttl    time.Duration
	owned  bool
}

// Config holds BadgerDB configuration.
type Config struct {
	Dir      string // Directory for BadgerDB data
	InMemory bool   // Keep data in memory only, Dir is ignored
}

// Option configures Store.
type Option func(*Store)

// WithPrefix prepends prefix to every key.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithTTL makes written entries expire after ttl. Expired handling records are
// garbage collected by badger, a message redelivered later is treated as new.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// New creates a store over an already opened database. The caller keeps ownership of db.
func New(db *badger.DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens a database according to cfg. Close releases it.
func Open(cfg Config, opts ...Option) (*Store, error) {
	bopts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts.Logger = nil // Disable BadgerDB's internal logging
	bopts.NumVersionsToKeep = 1

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}
	s := New(db, opts...)
	s.owned = true
	return s, nil
}

// Close closes the database when it was opened by Open.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func (s *Store) key(key string) []byte {
	return []byte(s.prefix + key)
}

func (s *Store) entry(key string, value string) *badger.Entry {
	e := badger.NewEntry(s.key(key), []byte(value))
	if s.ttl > 0 {
		e = e.WithTTL(s.ttl)
	}
	return e
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(value), true, nil
}

func (s *Store) Put(_ context.Context, key string, value string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(s.entry(key, value))
	})
}

// PutIfAbsent reads and writes the key in one transaction. Badger aborts the transaction
// with ErrConflict when another writer committed the key meanwhile, the read is then
// repeated and observes the other write.
func (s *Store) PutIfAbsent(ctx context.Context, key string, value string) (bool, error) {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		stored := false
		err = s.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(s.key(key))
			if err == nil {
				return nil
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			stored = true
			return txn.SetEntry(s.entry(key, value))
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return false, err
		}
		return stored, nil
	}
	return false, err
}

// CompareAndSwap compares and writes the key in one transaction, conflicts are retried like in PutIfAbsent.
func (s *Store) CompareAndSwap(ctx context.Context, key string, old, value string) (bool, error) {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		swapped := false
		err = s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(s.key(key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			current, err := item.ValueCopy(nil)
			if err != nil || string(current) != old {
				return err
			}
			swapped = true
			return txn.SetEntry(s.entry(key, value))
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return false, err
		}
		return swapped, nil
	}
	return false, err
}

func (s *Store) Delete(_ context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key(key))
	})
}
