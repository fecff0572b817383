package dedup

import (
	"context"
	"time"

	"github.com/velmie/beetle"
)

// DefaultClaimTimeout is the age after which a claim of another consumer is considered abandoned.
const DefaultClaimTimeout = 5 * time.Minute

// Observer is notified about every decision made by an Interceptor.
type Observer func(ctx context.Context, d Decision)

// Config defines Interceptor behavior, use Options instead of constructing it directly.
type Config struct {
	Logger beetle.Logger
	// Clock returns the current time, it is used to detect expired messages and stale claims.
	Clock func() time.Time
	// MaxAttempts bounds handler invocations per key, a key reaching it becomes FAILED.
	// Zero means unlimited.
	MaxAttempts int
	// KeyPrefix is prepended to every message key.
	KeyPrefix string
	Observer  Observer

	// ExpiryCheck drops expired messages without handling them.
	ExpiryCheck bool
	// SimpleBypass handles non-redundant messages without consulting the store.
	SimpleBypass bool
	// Exclusive claims a key in the store before its handler runs.
	Exclusive    bool
	ClaimTimeout time.Duration

	// HostManagedAck leaves acknowledgment to the host, it is used by Middleware only.
	HostManagedAck bool
}

// Option configures the Interceptor.
type Option func(*Config)

// WithLogger sets the logger used to report decisions.
func WithLogger(logger beetle.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithMaxAttempts sets how many times a handler may fail before the key becomes FAILED.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		c.MaxAttempts = n
	}
}

// WithKeyPrefix prepends prefix to message keys (useful for shared stores).
func WithKeyPrefix(prefix string) Option {
	return func(c *Config) {
		c.KeyPrefix = prefix
	}
}

// WithObserver sets a callback invoked for every decision.
func WithObserver(observer Observer) Option {
	return func(c *Config) {
		c.Observer = observer
	}
}

// WithExpiryCheck toggles dropping of expired messages, it is enabled by default.
func WithExpiryCheck(enabled bool) Option {
	return func(c *Config) {
		c.ExpiryCheck = enabled
	}
}

// WithSimpleBypass makes non-redundant messages skip the store: the handler always runs and
// its result only decides between drop and requeue.
func WithSimpleBypass() Option {
	return func(c *Config) {
		c.SimpleBypass = true
	}
}

// WithExclusiveHandling claims every key before its handler runs. A message whose key is claimed
// by another consumer is requeued. Claims older than timeout are taken over.
func WithExclusiveHandling(timeout time.Duration) Option {
	return func(c *Config) {
		c.Exclusive = true
		c.ClaimTimeout = timeout
	}
}

// WithHostManagedAck toggles host-managed acknowledgment of Middleware, it is enabled by default.
func WithHostManagedAck(enabled bool) Option {
	return func(c *Config) {
		c.HostManagedAck = enabled
	}
}

// NewConfig applies options and fills defaults.
func NewConfig(opts ...Option) Config {
	c := Config{
		ExpiryCheck:    true,
		HostManagedAck: true,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.Logger == nil {
		c.Logger = nopLogger{}
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Exclusive && c.ClaimTimeout <= 0 {
		c.ClaimTimeout = DefaultClaimTimeout
	}
	return c
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
