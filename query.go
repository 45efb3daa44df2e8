package rescache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"
)

// QueryCache keeps fetched query results in a Store, shares in-flight
// fetches between subscribers of the same key and refreshes active
// subscribers when their entries are invalidated.
type QueryCache struct {
	store     Store
	staleTime time.Duration
	entryTTL  time.Duration
	observer  Observer
	logger    *slog.Logger
	flights   singleflight.Group

	// writeGate orders a finishing fetch's write against Invalidate
	// flagging in-flight fetches.
	writeGate sync.RWMutex

	mu       sync.Mutex
	nextID   uint64
	subs     map[uint64]subscriber
	inflight map[*flight]struct{}
}

// flight is one running fetch. A flight invalidated before it finishes does
// not write its result.
type flight struct {
	key         Key
	invalidated atomic.Bool
}

type subscriber interface {
	queryKey() Key
	reload()
}

// QueryOption configures a QueryCache.
type QueryOption func(*QueryCache)

// WithStaleTime sets how long a fetched entry counts as fresh. Zero, the
// default, treats every stored entry as stale so subscribers show it and
// refetch in the background.
func WithStaleTime(d time.Duration) QueryOption {
	return func(qc *QueryCache) { qc.staleTime = d }
}

// WithEntryTTL sets how long entries stay in the store. Zero defers to the
// store's default TTL.
func WithEntryTTL(d time.Duration) QueryOption {
	return func(qc *QueryCache) { qc.entryTTL = d }
}

// WithObserver attaches an observer to receive operation events.
func WithObserver(o Observer) QueryOption {
	return func(qc *QueryCache) { qc.observer = o }
}

// WithLogger sets the logger used for non-fatal store failures.
func WithLogger(l *slog.Logger) QueryOption {
	return func(qc *QueryCache) {
		if l != nil {
			qc.logger = l
		}
	}
}

// NewQueryCache creates a query cache on top of store.
// @group Query
//
// Example: memory-backed query cache
//
//	ctx := context.Background()
//	qc := rescache.NewQueryCache(rescache.NewMemoryStore(ctx),
//		rescache.WithStaleTime(30*time.Second),
//	)
//	team, err := rescache.Fetch(ctx, qc, rescache.Key{"team", "5"}, loadTeam)
func NewQueryCache(store Store, opts ...QueryOption) *QueryCache {
	qc := &QueryCache{
		store:    store,
		logger:   slog.Default(),
		subs:     make(map[uint64]subscriber),
		inflight: make(map[*flight]struct{}),
	}
	for _, opt := range opts {
		opt(qc)
	}
	return qc
}

// Store returns the underlying store implementation.
func (qc *QueryCache) Store() Store { return qc.store }

// envelope is the stored form of a query result. Invalidation flips Stale
// and leaves Data alone; only a fetch writes Data.
type envelope struct {
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
	Stale     bool            `json:"stale"`
}

func (e envelope) fresh(now time.Time, staleTime time.Duration) bool {
	return !e.Stale && now.Sub(e.UpdatedAt) < staleTime
}

// Fetch returns the stored result for key when it is fresh, otherwise runs
// fn, stores its result and returns it.
// @group Query
func Fetch[T any](ctx context.Context, qc *QueryCache, key Key, fn func(context.Context) (T, error)) (T, error) {
	if env, ok := qc.readEntry(ctx, key); ok && env.fresh(time.Now(), qc.staleTime) {
		if out, err := decodeData[T](env.Data); err == nil {
			return out, nil
		}
	}
	env, err := qc.fetchShared(ctx, key, encodeFetch(fn))
	if err != nil {
		var zero T
		return zero, err
	}
	return decodeData[T](env.Data)
}

// Invalidate marks stored entries stale and refetches active subscribers.
// With exact set only key prefix itself matches; otherwise every key whose
// leading parts equal prefix does.
// @group Query
//
// Example: invalidate every autocomplete entry
//
//	_ = qc.Invalidate(ctx, rescache.Key{"autocomplete"}, false)
func (qc *QueryCache) Invalidate(ctx context.Context, prefix Key, exact bool) error {
	start := time.Now()
	qc.invalidateFlights(prefix, exact)
	stored, err := qc.storedKeys(ctx, prefix, exact)
	if err != nil {
		qc.observe(ctx, OpInvalidate, prefix.String(), false, err, start)
		return err
	}

	var errs []error
	marked := 0
	for _, k := range stored {
		ok, err := qc.markStale(ctx, k)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			marked++
		}
		qc.flights.Forget(k.String())
	}

	active := qc.matching(prefix, exact)
	for _, s := range active {
		qc.flights.Forget(s.queryKey().String())
	}
	for _, s := range active {
		s.reload()
	}

	err = errors.Join(errs...)
	qc.observe(ctx, OpInvalidate, prefix.String(), marked > 0, err, start)
	return err
}

// InvalidateKeys invalidates each key exactly.
// @group Query
func (qc *QueryCache) InvalidateKeys(ctx context.Context, keys ...Key) error {
	var errs []error
	for _, k := range keys {
		if err := qc.Invalidate(ctx, k, true); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (qc *QueryCache) storedKeys(ctx context.Context, prefix Key, exact bool) ([]Key, error) {
	if exact {
		return []Key{prefix}, nil
	}
	raw, err := qc.store.Keys(ctx, prefix.String())
	if err != nil {
		return nil, fmt.Errorf("rescache: list keys under %q: %w", prefix.String(), err)
	}
	out := make([]Key, 0, len(raw))
	for _, s := range raw {
		if k, ok := ParseKey(s); ok && k.HasPrefix(prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (qc *QueryCache) markStale(ctx context.Context, key Key) (bool, error) {
	env, ok, err := qc.load(ctx, key)
	if err != nil || !ok || env.Stale {
		return false, err
	}
	env.Stale = true
	if err := qc.store.Set(ctx, key.String(), mustEncodeEnvelope(env), qc.entryTTL); err != nil {
		return false, fmt.Errorf("rescache: mark %q stale: %w", key.String(), err)
	}
	return true, nil
}

// invalidateFlights flags running fetches under prefix so their results,
// read before the invalidation, never overwrite the entry.
func (qc *QueryCache) invalidateFlights(prefix Key, exact bool) {
	qc.writeGate.Lock()
	defer qc.writeGate.Unlock()
	qc.mu.Lock()
	defer qc.mu.Unlock()
	for f := range qc.inflight {
		if f.key.Matches(prefix, exact) {
			f.invalidated.Store(true)
		}
	}
}

func (qc *QueryCache) beginFlight(key Key) *flight {
	f := &flight{key: key}
	qc.mu.Lock()
	qc.inflight[f] = struct{}{}
	qc.mu.Unlock()
	return f
}

func (qc *QueryCache) endFlight(f *flight) {
	qc.mu.Lock()
	delete(qc.inflight, f)
	qc.mu.Unlock()
}

func (qc *QueryCache) matching(prefix Key, exact bool) []subscriber {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	var out []subscriber
	for _, s := range qc.subs {
		if s.queryKey().Matches(prefix, exact) {
			out = append(out, s)
		}
	}
	return out
}

func (qc *QueryCache) register(s subscriber) uint64 {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	qc.nextID++
	qc.subs[qc.nextID] = s
	return qc.nextID
}

func (qc *QueryCache) unregister(id uint64) {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	delete(qc.subs, id)
}

// load reads and decodes an entry without reporting to the observer. A
// corrupt envelope reads as a miss.
func (qc *QueryCache) load(ctx context.Context, key Key) (envelope, bool, error) {
	body, ok, err := qc.store.Get(ctx, key.String())
	if err != nil || !ok {
		return envelope{}, false, err
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		qc.logger.Warn("rescache: discarding corrupt entry", "key", key.String(), "error", err)
		return envelope{}, false, nil
	}
	return env, true, nil
}

func (qc *QueryCache) readEntry(ctx context.Context, key Key) (envelope, bool) {
	start := time.Now()
	env, ok, err := qc.load(ctx, key)
	qc.observe(ctx, OpRead, key.String(), ok, err, start)
	if err != nil {
		qc.logger.Warn("rescache: store read failed", "key", key.String(), "error", err)
	}
	return env, ok
}

func (qc *QueryCache) writeEntry(ctx context.Context, key Key, env envelope) {
	start := time.Now()
	err := qc.store.Set(ctx, key.String(), mustEncodeEnvelope(env), qc.entryTTL)
	qc.observe(ctx, OpWrite, key.String(), false, err, start)
	if err != nil {
		qc.logger.Warn("rescache: store write failed", "key", key.String(), "error", err)
	}
}

// fetchShared runs fn once per key across concurrent callers. A caller whose
// own context is still live retries when the shared flight was canceled by
// the caller that started it. A flight invalidated while running returns its
// result marked stale and leaves the store alone.
func (qc *QueryCache) fetchShared(ctx context.Context, key Key, fn func(context.Context) ([]byte, error)) (envelope, error) {
	ks := key.String()
	for attempt := 0; ; attempt++ {
		ch := qc.flights.DoChan(ks, func() (any, error) {
			f := qc.beginFlight(key)
			defer qc.endFlight(f)
			start := time.Now()
			data, err := fn(ctx)
			qc.observe(ctx, OpFetch, ks, err == nil, err, start)
			if err != nil {
				return nil, err
			}
			env := envelope{Data: data, UpdatedAt: time.Now()}
			qc.writeGate.RLock()
			defer qc.writeGate.RUnlock()
			if f.invalidated.Load() {
				qc.logger.Debug("rescache: dropping result invalidated mid-fetch", "key", ks)
				env.Stale = true
				return env, nil
			}
			qc.writeEntry(context.WithoutCancel(ctx), key, env)
			return env, nil
		})
		select {
		case <-ctx.Done():
			return envelope{}, ctx.Err()
		case res := <-ch:
			if res.Err == nil {
				return res.Val.(envelope), nil
			}
			if errors.Is(res.Err, context.Canceled) && ctx.Err() == nil && attempt < 2 {
				continue
			}
			return envelope{}, res.Err
		}
	}
}

func (qc *QueryCache) observe(ctx context.Context, op, key string, hit bool, err error, start time.Time) {
	if qc.observer == nil {
		return
	}
	qc.observer.OnCacheOp(ctx, op, key, hit, err, time.Since(start), qc.store.Driver())
}

func encodeFetch[T any](fn func(context.Context) (T, error)) func(context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("rescache: encode result: %w", err)
		}
		return body, nil
	}
}

func decodeData[T any](raw []byte) (T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("rescache: decode result: %w", err)
	}
	return out, nil
}

func mustEncodeEnvelope(env envelope) []byte {
	body, err := json.Marshal(env)
	if err != nil {
		// envelope fields always encode; Data was produced by json.Marshal.
		panic(err)
	}
	return body
}
