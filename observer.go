package rescache

import (
	"context"
	"time"
)

// Query cache operations reported to an Observer.
const (
	OpRead       = "read"
	OpFetch      = "fetch"
	OpWrite      = "write"
	OpInvalidate = "invalidate"
)

// Observer receives an event after each query cache operation completes.
// For OpRead hit reports whether a stored entry was found; for
// OpInvalidate it reports whether any stored entry was marked stale.
type Observer interface {
	OnCacheOp(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver Driver)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver Driver)

// OnCacheOp implements Observer.
func (f ObserverFunc) OnCacheOp(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver Driver) {
	if f == nil {
		return
	}
	f(ctx, op, key, hit, err, dur, driver)
}

// MultiObserver fans events out to several observers.
type MultiObserver []Observer

// OnCacheOp implements Observer.
func (m MultiObserver) OnCacheOp(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, driver Driver) {
	for _, o := range m {
		if o != nil {
			o.OnCacheOp(ctx, op, key, hit, err, dur, driver)
		}
	}
}
