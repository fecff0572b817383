package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velmie/beetle/dedup"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, StoreMemory, cfg.Store.Type)
	assert.True(t, cfg.Dedup.ExpiryCheck)
	assert.Equal(t, dedup.DefaultClaimTimeout, cfg.Dedup.ClaimTimeout)
	assert.Equal(t, 1, cfg.AMQP.BatchSize)
	assert.True(t, cfg.AMQP.RejectAndRequeue)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "default config is valid",
			modify: func(c *Config) {},
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.Log.Level = "trace" },
			wantErr: "log.level",
		},
		{
			name:    "invalid log format",
			modify:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: "log.format",
		},
		{
			name:    "unknown store type",
			modify:  func(c *Config) { c.Store.Type = "mongo" },
			wantErr: "store.type",
		},
		{
			name: "badger without directory",
			modify: func(c *Config) {
				c.Store.Type = StoreBadger
				c.Store.Badger.Dir = ""
			},
			wantErr: "store.badger.dir",
		},
		{
			name: "badger in memory without directory",
			modify: func(c *Config) {
				c.Store.Type = StoreBadger
				c.Store.Badger.Dir = ""
				c.Store.Badger.InMemory = true
			},
		},
		{
			name: "redis without addresses",
			modify: func(c *Config) {
				c.Store.Type = StoreRedis
				c.Store.Redis.Addrs = nil
			},
			wantErr: "store.redis.addrs",
		},
		{
			name: "etcd without endpoints",
			modify: func(c *Config) {
				c.Store.Type = StoreEtcd
				c.Store.Etcd.Endpoints = nil
			},
			wantErr: "store.etcd.endpoints",
		},
		{
			name: "circuit breaker without threshold",
			modify: func(c *Config) {
				c.Store.CircuitBreaker.Enabled = true
				c.Store.CircuitBreaker.FailureThreshold = 0
			},
			wantErr: "failure_threshold",
		},
		{
			name:    "negative max attempts",
			modify:  func(c *Config) { c.Dedup.MaxAttempts = -1 },
			wantErr: "dedup.max_attempts",
		},
		{
			name: "exclusive handling without claim timeout",
			modify: func(c *Config) {
				c.Dedup.Exclusive = true
				c.Dedup.ClaimTimeout = 0
			},
			wantErr: "dedup.claim_timeout",
		},
		{
			name: "store ttl shorter than claim timeout",
			modify: func(c *Config) {
				c.Dedup.Exclusive = true
				c.Store.TTL = time.Minute
			},
			wantErr: "store.ttl",
		},
		{
			name:    "zero reconnect delay",
			modify:  func(c *Config) { c.AMQP.ReconnectDelay = 0 },
			wantErr: "amqp.reconnect_delay",
		},
		{
			name:    "no brokers",
			modify:  func(c *Config) { c.AMQP.URLs = nil },
			wantErr: "amqp.urls",
		},
		{
			name:    "empty broker url",
			modify:  func(c *Config) { c.AMQP.URLs = []string{"amqp://a", ""} },
			wantErr: "amqp.urls[1]",
		},
		{
			name:    "zero batch size",
			modify:  func(c *Config) { c.AMQP.BatchSize = 0 },
			wantErr: "amqp.batch_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("empty filename", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("missing file", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "beetle.yaml")
		data := `
log:
  level: debug
store:
  type: redis
  prefix: "orders:"
  ttl: 48h
  redis:
    addrs: ["redis-1:6379", "redis-2:6379"]
dedup:
  max_attempts: 3
  exclusive: true
  claim_timeout: 1m
amqp:
  urls: ["amqp://broker-1", "amqp://broker-2"]
  batch_size: 20
  reconnect_delay: 3s
`
		require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "text", cfg.Log.Format)
		assert.Equal(t, StoreRedis, cfg.Store.Type)
		assert.Equal(t, "orders:", cfg.Store.Prefix)
		assert.Equal(t, 48*time.Hour, cfg.Store.TTL)
		assert.Equal(t, []string{"redis-1:6379", "redis-2:6379"}, cfg.Store.Redis.Addrs)
		assert.Equal(t, 3, cfg.Dedup.MaxAttempts)
		assert.True(t, cfg.Dedup.Exclusive)
		assert.Equal(t, time.Minute, cfg.Dedup.ClaimTimeout)
		assert.True(t, cfg.Dedup.ExpiryCheck)
		assert.Equal(t, []string{"amqp://broker-1", "amqp://broker-2"}, cfg.AMQP.URLs)
		assert.Equal(t, 20, cfg.AMQP.BatchSize)
		assert.Equal(t, 50*time.Millisecond, cfg.AMQP.BatchWait)
		assert.Equal(t, 3*time.Second, cfg.AMQP.ReconnectDelay)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "beetle.yaml")
		require.NoError(t, os.WriteFile(path, []byte("log: ["), 0o600))

		_, err := Load(path)
		assert.ErrorContains(t, err, "failed to parse config file")
	})

	t.Run("invalid values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "beetle.yaml")
		require.NoError(t, os.WriteFile(path, []byte("store:\n  type: mongo\n"), 0o600))

		_, err := Load(path)
		assert.ErrorContains(t, err, "invalid configuration")
	})
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beetle.yaml")
	cfg := Default()
	cfg.Store.Type = StoreBadger
	cfg.Dedup.MaxAttempts = 5

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestDedupOptions(t *testing.T) {
	c := DedupConfig{
		MaxAttempts:  4,
		KeyPrefix:    "svc:",
		ExpiryCheck:  false,
		SimpleBypass: true,
		Exclusive:    true,
		ClaimTimeout: time.Minute,
	}

	got := dedup.NewConfig(c.Options()...)

	assert.Equal(t, 4, got.MaxAttempts)
	assert.Equal(t, "svc:", got.KeyPrefix)
	assert.False(t, got.ExpiryCheck)
	assert.True(t, got.SimpleBypass)
	assert.True(t, got.Exclusive)
	assert.Equal(t, time.Minute, got.ClaimTimeout)
}
