package dedup

import (
	"context"

	"github.com/velmie/beetle"
	"github.com/velmie/beetle/kv"
)

// Middleware returns a beetle.Middleware which handles every event at most once per message key.
//
// With host-managed acknowledgment (the default) the middleware never acknowledges events itself:
// it returns nil when the event has to be dropped, so an AutoAck subscription acknowledges it,
// and a *RequeueError when it has to be requeued. Otherwise the event is acknowledged through
// Event.Ack and requeued through beetle.Requeuer, and nil is returned for both dispositions.
//
// Middleware panics when the interceptor cannot be created with the given store and options.
func Middleware(store kv.Store[string], opts ...Option) beetle.Middleware {
	cfg := NewConfig(opts...)
	var adapter Adapter[beetle.Event] = EventAdapter{}
	if cfg.HostManagedAck {
		adapter = HostManaged(adapter)
	}
	interceptor, err := NewInterceptor(store, adapter, opts...)
	if err != nil {
		panic("beetle/dedup: " + err.Error())
	}

	return func(next beetle.Handler) beetle.Handler {
		handle := func(_ context.Context, e beetle.Event) error {
			return next(e)
		}
		return func(e beetle.Event) error {
			ctx := context.Background()
			if msg := e.Message(); msg != nil {
				ctx = msg.Context()
			}
			d, err := interceptor.Handle(ctx, e, handle)
			if err != nil {
				return err
			}
			if cfg.HostManagedAck && d.Disposition == Requeue {
				return &RequeueError{Key: d.Key, Err: d.Err}
			}
			return nil
		}
	}
}
