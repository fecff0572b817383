package dedup

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/velmie/beetle/kv"
)

const (
	statusSuffix   = "status"
	attemptsSuffix = "attempts"
	claimSuffix    = "mutex"
)

// Reason tells which path produced a Decision.
type Reason int

const (
	// Handled means the state machine evaluated a non-terminal key.
	Handled Reason = iota + 1
	// AlreadyHandled means the key had a terminal status, the handler did not run.
	AlreadyHandled
	// Expired means the message expired before it was handled.
	Expired
	// Bypassed means a non-redundant message was handled without the store.
	Bypassed
	// Contended means another consumer holds the key.
	Contended
)

func (r Reason) String() string {
	switch r {
	case Handled:
		return "handled"
	case AlreadyHandled:
		return "already_handled"
	case Expired:
		return "expired"
	case Bypassed:
		return "bypassed"
	case Contended:
		return "contended"
	}
	return "unknown"
}

// Decision describes what happened to one message.
type Decision struct {
	Key    string
	Reason Reason
	// Previous is the state read from the store.
	Previous State
	Action
}

// Interceptor drives the handling state machine for messages of type T.
type Interceptor[T any] struct {
	adapter  Adapter[T]
	status   *kv.SuffixedStore[string, Status]
	attempts *kv.SuffixedStore[string, int64]
	claims   *kv.SuffixedStore[string, int64]
	cfg      Config
}

// NewInterceptor creates an interceptor keeping handling state in store.
func NewInterceptor[T any](store kv.Store[string], adapter Adapter[T], opts ...Option) (*Interceptor[T], error) {
	if store == nil {
		return nil, errors.New("dedup: nil store")
	}
	if adapter == nil {
		return nil, errors.New("dedup: nil adapter")
	}
	cfg := NewConfig(opts...)
	i := &Interceptor[T]{
		adapter:  adapter,
		status:   kv.Suffixed(store, statusSuffix, ParseStatus, formatStatus),
		attempts: kv.Int64(store, attemptsSuffix),
		claims:   kv.Int64(store, claimSuffix),
		cfg:      cfg,
	}
	if cfg.Exclusive && !(i.claims.Supports(kv.CanInsert) && i.claims.Supports(kv.CanSwap) && i.claims.Supports(kv.CanDelete)) {
		return nil, ErrExclusiveUnsupported
	}
	return i, nil
}

// Handle evaluates one message. next is invoked only when the message has to be handled.
// The returned error reports metadata, store and transport failures; handler failures are
// part of the Decision.
func (i *Interceptor[T]) Handle(ctx context.Context, msg T, next func(context.Context, T) error) (Decision, error) {
	key, err := i.adapter.KeyOf(msg)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{Key: i.cfg.KeyPrefix + key}
	invoke := func() error {
		return next(ctx, msg)
	}

	if i.cfg.ExpiryCheck {
		expiresAt, err := i.adapter.ExpiresAt(msg)
		if err != nil {
			return d, err
		}
		if expiresAt < i.cfg.Clock().Unix() {
			d.Reason = Expired
			d.Disposition = Drop
			return d, i.finish(ctx, msg, d)
		}
	}

	if i.cfg.SimpleBypass {
		redundant, err := i.adapter.IsRedundant(msg)
		if err != nil {
			return d, err
		}
		if !redundant {
			d.Reason = Bypassed
			d.Invoked = true
			d.Err = invoke()
			d.Disposition = Drop
			if d.Err != nil {
				d.Disposition = Requeue
			}
			return d, i.finish(ctx, msg, d)
		}
	}

	state, err := i.lookup(ctx, d.Key)
	if err != nil {
		return d, err
	}
	if !state.Status.Terminal() && i.cfg.Exclusive {
		return i.handleExclusive(ctx, msg, d, state, invoke)
	}

	d.Previous = state
	d.Reason = reasonOf(state)
	d.Action = state.Handle(invoke, i.limits())
	if err = i.persist(ctx, d); err != nil {
		return d, err
	}
	return d, i.finish(ctx, msg, d)
}

func (i *Interceptor[T]) handleExclusive(ctx context.Context, msg T, d Decision, state State, invoke func() error) (Decision, error) {
	claimed, err := i.claim(ctx, d.Key)
	if err != nil {
		return d, err
	}
	if !claimed {
		d.Previous = state
		d.Reason = Contended
		d.Next = state.Status
		d.Attempts = state.Attempts
		d.Disposition = Requeue
		return d, i.finish(ctx, msg, d)
	}

	// the previous owner may have completed the key between the first read and the claim
	state, err = i.lookup(ctx, d.Key)
	if err == nil {
		d.Previous = state
		d.Reason = reasonOf(state)
		d.Action = state.Handle(invoke, i.limits())
		err = i.persist(ctx, d)
	}
	if rerr := i.claims.Delete(context.WithoutCancel(ctx), d.Key); rerr != nil && err == nil {
		err = errors.Wrapf(rerr, "cannot release %q", d.Key)
	}
	if err != nil {
		return d, err
	}
	return d, i.finish(ctx, msg, d)
}

// HandleBatch evaluates every message as an independent unit, the handler never sees
// a message of a terminal key. It stops at the first error and returns the decisions made so far.
func (i *Interceptor[T]) HandleBatch(ctx context.Context, msgs []T, next func(context.Context, T) error) ([]Decision, error) {
	decisions := make([]Decision, 0, len(msgs))
	for _, msg := range msgs {
		d, err := i.Handle(ctx, msg, next)
		if err != nil {
			return decisions, err
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

// State returns the recorded state of key, the key prefix is not applied.
func (i *Interceptor[T]) State(ctx context.Context, key string) (State, error) {
	return i.lookup(ctx, key)
}

func (i *Interceptor[T]) limits() Limits {
	return Limits{MaxAttempts: i.cfg.MaxAttempts}
}

func (i *Interceptor[T]) lookup(ctx context.Context, key string) (State, error) {
	status, ok, err := i.status.Get(ctx, key)
	if err != nil {
		return State{}, errors.Wrapf(err, "cannot read status of %q", key)
	}
	if !ok {
		status = Incomplete
	}
	attempts, _, err := i.attempts.Get(ctx, key)
	if err != nil {
		return State{}, errors.Wrapf(err, "cannot read attempts of %q", key)
	}
	return State{Status: status, Attempts: int(attempts)}, nil
}

// persist writes attempts before status, the status write completes the transition.
func (i *Interceptor[T]) persist(ctx context.Context, d Decision) error {
	if !d.Persist {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	if err := i.attempts.Put(ctx, d.Key, int64(d.Attempts)); err != nil {
		return errors.Wrapf(err, "cannot write attempts of %q", d.Key)
	}
	if err := i.status.Put(ctx, d.Key, d.Next); err != nil {
		return errors.Wrapf(err, "cannot write status of %q", d.Key)
	}
	return nil
}

func (i *Interceptor[T]) claim(ctx context.Context, key string) (bool, error) {
	now := i.cfg.Clock()
	stored, err := i.claims.PutIfAbsent(ctx, key, now.UnixNano())
	if err != nil {
		return false, errors.Wrapf(err, "cannot claim %q", key)
	}
	if stored {
		return true, nil
	}

	claimedAt, ok, err := i.claims.Get(ctx, key)
	if err != nil {
		return false, errors.Wrapf(err, "cannot read claim of %q", key)
	}
	if !ok {
		// released between the insert and the read
		stored, err = i.claims.PutIfAbsent(ctx, key, now.UnixNano())
		if err != nil {
			return false, errors.Wrapf(err, "cannot claim %q", key)
		}
		return stored, nil
	}
	if now.Sub(time.Unix(0, claimedAt)) < i.cfg.ClaimTimeout {
		return false, nil
	}
	// only one of the consumers which read the stale claim replaces it
	swapped, err := i.claims.CompareAndSwap(ctx, key, claimedAt, now.UnixNano())
	if err != nil {
		return false, errors.Wrapf(err, "cannot take over claim of %q", key)
	}
	if swapped {
		i.cfg.Logger.Warn("taking over abandoned claim", "messageId", key, "claimedAt", time.Unix(0, claimedAt))
	}
	return swapped, nil
}

func (i *Interceptor[T]) finish(ctx context.Context, msg T, d Decision) error {
	var err error
	switch d.Disposition {
	case Drop:
		err = i.adapter.Drop(ctx, msg)
	case Requeue:
		err = i.adapter.Requeue(ctx, msg)
	}

	if d.Err != nil {
		i.cfg.Logger.Warn("message handler failed",
			"messageId", d.Key,
			"attempts", d.Attempts,
			"status", d.Next.String(),
			"error", d.Err,
		)
	}
	i.cfg.Logger.Debug("message evaluated",
		"messageId", d.Key,
		"reason", d.Reason.String(),
		"status", d.Next.String(),
		"disposition", d.Disposition.String(),
		"invoked", d.Invoked,
	)
	if i.cfg.Observer != nil {
		i.cfg.Observer(ctx, d)
	}

	if err != nil {
		return errors.Wrapf(err, "cannot %s message %q", d.Disposition, d.Key)
	}
	return nil
}

func reasonOf(s State) Reason {
	if s.Status.Terminal() {
		return AlreadyHandled
	}
	return Handled
}
