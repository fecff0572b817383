package beetle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SubscribeFunc defines the signature for functions that subscribe to a topic
type SubscribeFunc func(ctx context.Context) (Subscription, error)

// Coordinator manages a set of named subscriptions. Redundantly published messages
// arrive through one subscription per broker, the coordinator starts and stops them together.
type Coordinator struct {
	mu      sync.Mutex
	entries []namedSubscribe
	names   map[string]struct{}
	active  []activeSubscription
	stopped chan struct{}
	l       Logger
}

type namedSubscribe struct {
	name      string
	subscribe SubscribeFunc
}

type activeSubscription struct {
	namedSubscribe
	sub Subscription
}

// NewCoordinator initializes Coordinator
func NewCoordinator(logger ...Logger) *Coordinator {
	c := &Coordinator{names: make(map[string]struct{})}
	if len(logger) > 0 {
		c.l = logger[0]
	}
	return c
}

// Add registers a subscription under a unique name.
func (c *Coordinator) Add(name string, sf SubscribeFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.names[name]; ok {
		return fmt.Errorf("subscription %q is already added", name)
	}
	c.entries = append(c.entries, namedSubscribe{name, sf})
	c.names[name] = struct{}{}
	return nil
}

// Start subscribes all registered subscriptions. When one of them fails the ones
// already started are unsubscribed and the error is returned.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = make(chan struct{})

	for _, e := range c.entries {
		if err := ctx.Err(); err != nil {
			c.stopLocked()
			return err
		}
		if c.l != nil {
			c.l.Info("subscribing", "name", e.name)
		}
		sub, err := e.subscribe(ctx)
		if err != nil {
			err = fmt.Errorf("failed to subscribe %q: %w", e.name, err)
			if c.l != nil {
				c.l.Error("subscription failed", "name", e.name, "error", err.Error())
			}
			c.stopLocked()
			return err
		}
		c.active = append(c.active, activeSubscription{e, sub})
	}
	return nil
}

// Stop unsubscribes every active subscription.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Coordinator) stopLocked() {
	if c.stopped != nil {
		close(c.stopped)
		c.stopped = nil
	}
	for _, a := range c.active {
		if err := a.sub.Unsubscribe(); err != nil {
			if c.l != nil {
				c.l.Error("unsubscribe failed", "topic", a.sub.Topic(), "error", err.Error())
			}
			continue
		}
		if c.l != nil {
			c.l.Info("unsubscribed", "topic", a.sub.Topic())
		}
	}
	c.active = nil
}

const (
	defaultDelayBetweenSubscriptionAttempt = 10 * time.Second
	defaultMaxSubscriptionAttempts         = -1 // unlimited
)

type ResubscribeOptions struct {
	MaxSubscriptionAttempts         int
	DelayBetweenSubscriptionAttempt time.Duration
}

type ResubscribeOption func(options *ResubscribeOptions)

func ResubscribeWithMaxSubscriptionAttempts(maxAttempts int) ResubscribeOption {
	return func(options *ResubscribeOptions) {
		options.MaxSubscriptionAttempts = maxAttempts
	}
}

func ResubscribeWithDelayBetweenSubscriptionAttempts(delay time.Duration) ResubscribeOption {
	return func(options *ResubscribeOptions) {
		options.DelayBetweenSubscriptionAttempt = delay
	}
}

// ResubscribeErrorHandler returns an error handler which runs the SubscribeFunc of a coordinated
// subscription again once that subscription has ended, for example because the broker closed
// its channel. Errors of subscriptions which are still running are ignored.
// The new subscription replaces the ended one, Stop unsubscribes it.
func (c *Coordinator) ResubscribeErrorHandler(options ...ResubscribeOption) ErrorHandler {
	opts := &ResubscribeOptions{
		MaxSubscriptionAttempts:         defaultMaxSubscriptionAttempts,
		DelayBetweenSubscriptionAttempt: defaultDelayBetweenSubscriptionAttempt,
	}
	for _, option := range options {
		option(opts)
	}
	return func(_ error, sub Subscription) {
		select {
		case <-sub.Done():
		default:
			return
		}
		entry, stopped, ok := c.lookup(sub)
		if !ok {
			return
		}
		for attempt := 1; opts.MaxSubscriptionAttempts < 0 || attempt <= opts.MaxSubscriptionAttempts; attempt++ {
			if c.l != nil {
				c.l.Info("resubscribing", "name", entry.name, "attempt", attempt)
			}
			next, err := entry.subscribe(context.Background())
			if err == nil {
				if !c.replace(sub, next) {
					_ = next.Unsubscribe()
				}
				return
			}
			if c.l != nil {
				c.l.Error("resubscription failed", "name", entry.name, "attempt", attempt, "error", err.Error())
			}
			select {
			case <-time.After(opts.DelayBetweenSubscriptionAttempt):
			case <-stopped:
				return
			}
		}
	}
}

func (c *Coordinator) lookup(sub Subscription) (namedSubscribe, <-chan struct{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range c.active {
		if a.sub == sub {
			return a.namedSubscribe, c.stopped, true
		}
	}
	return namedSubscribe{}, nil, false
}

// replace reports false when old is no longer coordinated, the coordinator was stopped meanwhile.
func (c *Coordinator) replace(old, next Subscription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, a := range c.active {
		if a.sub == old {
			c.active[i].sub = next
			return true
		}
	}
	return false
}

// CreateSubscribeFunc creates SubscribeFunc with the given parameters
func CreateSubscribeFunc(topic string, sub Subscriber, h Handler, opts ...SubscribeOption) SubscribeFunc {
	return func(ctx context.Context) (Subscription, error) {
		return sub.Subscribe(topic, h, opts...)
	}
}
