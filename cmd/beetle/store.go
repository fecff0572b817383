package main

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/velmie/beetle/config"
	"github.com/velmie/beetle/kv"
	"github.com/velmie/beetle/kv/badgerkv"
	"github.com/velmie/beetle/kv/etcdkv"
	"github.com/velmie/beetle/kv/rediskv"
)

// openStore builds the status store backend, release closes its connections.
func openStore(cfg config.StoreConfig, log *slog.Logger) (store kv.Store[string], release func() error, err error) {
	release = func() error { return nil }

	switch cfg.Type {
	case config.StoreMemory:
		log.Warn("Using in-memory status store, handling state is lost on restart")
		store = kv.NewMemory[string]()
	case config.StoreBadger:
		var opts []badgerkv.Option
		if cfg.Prefix != "" {
			opts = append(opts, badgerkv.WithPrefix(cfg.Prefix))
		}
		if cfg.TTL > 0 {
			opts = append(opts, badgerkv.WithTTL(cfg.TTL))
		}
		s, err := badgerkv.Open(badgerkv.Config{Dir: cfg.Badger.Dir, InMemory: cfg.Badger.InMemory}, opts...)
		if err != nil {
			return nil, nil, errors.Wrap(err, "cannot open badger store")
		}
		log.Info("Using BadgerDB status store", "dir", cfg.Badger.Dir, "inMemory", cfg.Badger.InMemory)
		store, release = s, s.Close
	case config.StoreRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		var opts []rediskv.Option
		if cfg.Prefix != "" {
			opts = append(opts, rediskv.WithPrefix(cfg.Prefix))
		}
		if cfg.TTL > 0 {
			opts = append(opts, rediskv.WithTTL(cfg.TTL))
		}
		log.Info("Using Redis status store", "addrs", cfg.Redis.Addrs)
		store, release = rediskv.New(client, opts...), client.Close
	case config.StoreEtcd:
		client, err := clientv3.New(clientv3.Config{
			Endpoints:   cfg.Etcd.Endpoints,
			DialTimeout: cfg.Etcd.DialTimeout,
		})
		if err != nil {
			return nil, nil, errors.Wrap(err, "cannot create etcd client")
		}
		var opts []etcdkv.Option
		if cfg.Prefix != "" {
			opts = append(opts, etcdkv.WithPrefix(cfg.Prefix))
		}
		if cfg.TTL > 0 {
			// a shared lease would expire every key at the same moment
			log.Warn("store.ttl is not applied to the etcd store")
		}
		log.Info("Using etcd status store", "endpoints", cfg.Etcd.Endpoints)
		store, release = etcdkv.New(client, opts...), client.Close
	default:
		return nil, nil, errors.Errorf("unknown store type %q", cfg.Type)
	}

	if cb := cfg.CircuitBreaker; cb.Enabled {
		store = kv.WithCircuitBreaker(store, breakerSettings(cb, log))
		log.Info("Store circuit breaker enabled", "failureThreshold", cb.FailureThreshold, "resetTimeout", cb.ResetTimeout)
	}
	return store, release, nil
}

func breakerSettings(cfg config.CircuitBreakerConfig, log *slog.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:    "status-store",
		Timeout: cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}
}

// pingStore reads an unused key so a misconfigured backend fails at startup.
func pingStore(ctx context.Context, store kv.Store[string]) error {
	if _, _, err := store.Get(ctx, "beetle:ping"); err != nil {
		return errors.Wrap(err, "status store is not reachable")
	}
	return nil
}
