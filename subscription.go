package rescache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrSubscriptionClosed is returned by Wait once the subscription is closed.
var ErrSubscriptionClosed = errors.New("rescache: subscription closed")

// Status is the lifecycle stage of a subscription.
type Status int

const (
	// StatusIdle is a disabled subscription that never fetches.
	StatusIdle Status = iota
	// StatusLoading has no data yet and a fetch in flight.
	StatusLoading
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// State is a snapshot of a subscription. Data keeps the last successful
// result while a refetch runs and after a refetch fails.
type State[T any] struct {
	Status    Status
	Data      T
	HasData   bool
	Err       error
	Fetching  bool
	UpdatedAt time.Time
}

// Settled reports whether no fetch is pending.
func (s State[T]) Settled() bool { return !s.Fetching }

// SubscribeOption configures a single subscription.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	enabled  bool
	selectFn any
}

// WithEnabled turns fetching on or off. A disabled subscription stays
// StatusIdle and is never refetched by invalidation.
func WithEnabled(enabled bool) SubscribeOption {
	return func(c *subscribeConfig) { c.enabled = enabled }
}

// WithSelect transforms every decoded result before it reaches State.
// The function type must match the subscription's data type.
func WithSelect[T any](fn func(T) T) SubscribeOption {
	return func(c *subscribeConfig) { c.selectFn = fn }
}

// Subscription observes one query key. Results arrive on a background
// goroutine; Changes signals each state transition.
type Subscription[T any] struct {
	qc    *QueryCache
	id    uint64
	key   Key
	fetch func(context.Context) ([]byte, error)
	sel   func(T) T

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	enabled bool
	state   State[T]
	gen     uint64
	closed  bool
	changes chan struct{}
	settle  chan struct{}
}

// Subscribe starts observing key. A stored entry is shown immediately as
// StatusReady; when it is stale, or nothing is stored, fetch runs in the
// background.
// @group Query
//
// Example: observe a resource
//
//	sub := rescache.Subscribe(ctx, qc, rescache.Key{"team", "5"}, loadTeam)
//	defer sub.Close()
//	st, _ := sub.Wait(ctx)
//	fmt.Println(st.Status) // ready
func Subscribe[T any](ctx context.Context, qc *QueryCache, key Key, fetch func(context.Context) (T, error), opts ...SubscribeOption) *Subscription[T] {
	cfg := subscribeConfig{enabled: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	subCtx, cancel := context.WithCancel(ctx)
	s := &Subscription[T]{
		qc:      qc,
		key:     append(Key(nil), key...),
		fetch:   encodeFetch(fetch),
		ctx:     subCtx,
		cancel:  cancel,
		enabled: cfg.enabled,
		changes: make(chan struct{}, 1),
		settle:  make(chan struct{}),
	}
	if cfg.selectFn != nil {
		sel, ok := cfg.selectFn.(func(T) T)
		if !ok {
			panic(fmt.Sprintf("rescache: select %T does not match subscription data", cfg.selectFn))
		}
		s.sel = sel
	}
	if !cfg.enabled {
		return s
	}

	s.id = qc.register(s)
	if env, ok := qc.readEntry(subCtx, s.key); ok {
		data, err := s.decode(env.Data)
		if err == nil {
			s.state = State[T]{Status: StatusReady, Data: data, HasData: true, UpdatedAt: env.UpdatedAt}
			if env.fresh(time.Now(), qc.staleTime) {
				return s
			}
		} else {
			qc.logger.Warn("rescache: stored entry does not decode", "key", s.key.String(), "error", err)
		}
	}
	s.reload()
	return s
}

// Key returns the observed key.
func (s *Subscription[T]) Key() Key { return s.key }

// State returns the current snapshot.
func (s *Subscription[T]) State() State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Changes signals state transitions. Signals coalesce: a receiver that
// falls behind sees one pending signal and should re-read State.
func (s *Subscription[T]) Changes() <-chan struct{} { return s.changes }

// Wait blocks until no fetch is pending and returns the state.
func (s *Subscription[T]) Wait(ctx context.Context) (State[T], error) {
	for {
		s.mu.Lock()
		st, closed, settle := s.state, s.closed, s.settle
		s.mu.Unlock()
		if closed {
			return st, ErrSubscriptionClosed
		}
		if st.Settled() {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-settle:
		}
	}
}

// Refetch starts a new fetch that does not join any flight already running
// for the key. It is a no-op on disabled or closed subscriptions.
func (s *Subscription[T]) Refetch() {
	s.qc.flights.Forget(s.key.String())
	s.reload()
}

// Close stops the subscription. A fetch still in flight is canceled and
// its result is never applied.
func (s *Subscription[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.settle)
	s.mu.Unlock()

	s.cancel()
	if s.id != 0 {
		s.qc.unregister(s.id)
	}
}

func (s *Subscription[T]) queryKey() Key { return s.key }

func (s *Subscription[T]) reload() {
	s.mu.Lock()
	if s.closed || !s.enabled {
		s.mu.Unlock()
		return
	}
	s.gen++
	gen := s.gen
	s.state.Fetching = true
	if !s.state.HasData {
		s.state.Status = StatusLoading
		s.state.Err = nil
	}
	s.publishLocked()
	s.mu.Unlock()

	go func() {
		env, err := s.qc.fetchShared(s.ctx, s.key, s.fetch)
		var data T
		if err == nil {
			data, err = s.decode(env.Data)
		}
		s.apply(gen, data, env.UpdatedAt, err)
	}()
}

func (s *Subscription[T]) apply(gen uint64, data T, at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return
	}
	if err != nil {
		s.state.Status = StatusFailed
		s.state.Err = err
		s.state.Fetching = false
	} else {
		s.state = State[T]{Status: StatusReady, Data: data, HasData: true, UpdatedAt: at}
	}
	s.publishLocked()
}

func (s *Subscription[T]) decode(raw []byte) (T, error) {
	out, err := decodeData[T](raw)
	if err != nil {
		return out, err
	}
	if s.sel != nil {
		out = s.sel(out)
	}
	return out, nil
}

func (s *Subscription[T]) publishLocked() {
	close(s.settle)
	s.settle = make(chan struct{})
	select {
	case s.changes <- struct{}{}:
	default:
	}
}
