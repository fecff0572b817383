// Package rediskv stores message handling state in Redis, the store shared by all
// consumer processes of a deployment.
package rediskv

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/velmie/beetle/kv"
)

var (
	_ kv.Store[string]    = (*Store)(nil)
	_ kv.Inserter[string] = (*Store)(nil)
	_ kv.Swapper[string]  = (*Store)(nil)
	_ kv.Deleter          = (*Store)(nil)
)

// compareAndSwap sets KEYS[1] to ARGV[2] when it holds ARGV[1], ARGV[3] is the expiration in milliseconds.
var compareAndSwap = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

// Client defines the Redis commands used by the store.
// It is implemented by *redis.Client, *redis.ClusterClient and redis.UniversalClient.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	redis.Scripter
}

// Store implements kv.Store with plain Redis strings.
type Store struct {
	client Client
	prefix string
	ttl    time.Duration
}

// Option configures Store.
type Option func(*Store)

// WithPrefix prepends prefix to every key.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithTTL sets the expiration of written keys, zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// New creates a store using client.
func New(client Client, opts ...Option) *Store {
	s := &Store{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	return s.client.Set(ctx, s.prefix+key, value, s.ttl).Err()
}

// PutIfAbsent uses SETNX, Redis executes it atomically across all clients.
func (s *Store) PutIfAbsent(ctx context.Context, key string, value string) (bool, error) {
	return s.client.SetNX(ctx, s.prefix+key, value, s.ttl).Result()
}

// CompareAndSwap runs a script, Redis executes it atomically across all clients.
func (s *Store) CompareAndSwap(ctx context.Context, key string, old, value string) (bool, error) {
	n, err := compareAndSwap.Run(ctx, s.client, []string{s.prefix + key}, old, value, s.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
