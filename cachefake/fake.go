package cachefake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goforj/rescache"
)

// Op identifies a recorded operation for assertions. Store-level ops are
// keyed by the stored key string; query ops by the rendered query key.
type Op string

const (
	OpGet        Op = "get"
	OpSet        Op = "set"
	OpDelete     Op = "delete"
	OpDeleteMany Op = "delete_many"
	OpKeys       Op = "keys"
	OpFlush      Op = "flush"

	OpFetch      Op = rescache.OpFetch
	OpInvalidate Op = rescache.OpInvalidate
)

// Fake is a query cache over an in-memory store that records every store
// call and every fetch and invalidation for assertions.
type Fake struct {
	qc     *rescache.QueryCache
	counts map[Op]map[string]int
	fail   map[Op]error
	mu     sync.Mutex
}

// New creates a Fake. opts are applied after the recording observer, so a
// caller-supplied WithObserver replaces it.
func New(opts ...rescache.QueryOption) *Fake {
	f := &Fake{
		counts: make(map[Op]map[string]int),
		fail:   make(map[Op]error),
	}
	store := &countingStore{inner: rescache.NewMemoryStore(context.Background()), fake: f}
	observer := rescache.ObserverFunc(func(_ context.Context, op string, key string, _ bool, _ error, _ time.Duration, _ rescache.Driver) {
		if op == rescache.OpFetch || op == rescache.OpInvalidate {
			f.record(Op(op), key)
		}
	})
	f.qc = rescache.NewQueryCache(store, append([]rescache.QueryOption{rescache.WithObserver(observer)}, opts...)...)
	return f
}

// QueryCache returns the cache to inject into code under test.
func (f *Fake) QueryCache() *rescache.QueryCache { return f.qc }

// FailOn makes every subsequent store call for op return err. A nil err
// clears the failure.
func (f *Fake) FailOn(op Op, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, op)
		return
	}
	f.fail[op] = err
}

// Reset clears recorded counts and injected failures.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = make(map[Op]map[string]int)
	f.fail = make(map[Op]error)
}

// AssertCalled verifies key was touched by op the expected number of times.
func (f *Fake) AssertCalled(t testing.TB, op Op, key string, times int) {
	t.Helper()
	if got := f.Count(op, key); got != times {
		t.Fatalf("expected %s %q called %d times, got %d", op, key, times, got)
	}
}

// AssertNotCalled ensures key was never touched by op.
func (f *Fake) AssertNotCalled(t testing.TB, op Op, key string) {
	t.Helper()
	if got := f.Count(op, key); got != 0 {
		t.Fatalf("expected %s %q not called, got %d", op, key, got)
	}
}

// AssertTotal ensures the total call count for an op matches times.
func (f *Fake) AssertTotal(t testing.TB, op Op, times int) {
	t.Helper()
	if got := f.Total(op); got != times {
		t.Fatalf("expected %s total=%d, got %d", op, times, got)
	}
}

// AssertInvalidated verifies key was invalidated the expected number of times.
func (f *Fake) AssertInvalidated(t testing.TB, key rescache.Key, times int) {
	t.Helper()
	f.AssertCalled(t, OpInvalidate, key.String(), times)
}

// Invalidated lists every invalidated key string with its count.
func (f *Fake) Invalidated() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.counts[OpInvalidate]))
	for k, v := range f.counts[OpInvalidate] {
		out[k] = v
	}
	return out
}

// Count returns calls for op+key.
func (f *Fake) Count(op Op, key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[op][key]
}

// Total returns total calls for an op across keys.
func (f *Fake) Total(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int
	for _, v := range f.counts[op] {
		sum += v
	}
	return sum
}

func (f *Fake) record(op Op, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[op] == nil {
		f.counts[op] = make(map[string]int)
	}
	f.counts[op][key]++
}

func (f *Fake) failure(op Op) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[op]
}

// countingStore wraps a Store to record calls and inject failures.
type countingStore struct {
	inner rescache.Store
	fake  *Fake
}

func (s *countingStore) Driver() rescache.Driver { return s.inner.Driver() }

func (s *countingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := s.bump(OpGet, key); err != nil {
		return nil, false, err
	}
	return s.inner.Get(ctx, key)
}

func (s *countingStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := s.bump(OpSet, key); err != nil {
		return err
	}
	return s.inner.Set(ctx, key, val, ttl)
}

func (s *countingStore) Delete(ctx context.Context, key string) error {
	if err := s.bump(OpDelete, key); err != nil {
		return err
	}
	return s.inner.Delete(ctx, key)
}

func (s *countingStore) DeleteMany(ctx context.Context, keys ...string) error {
	var err error
	for _, k := range keys {
		if e := s.bump(OpDeleteMany, k); e != nil {
			err = e
		}
	}
	if err != nil {
		return err
	}
	return s.inner.DeleteMany(ctx, keys...)
}

func (s *countingStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := s.bump(OpKeys, prefix); err != nil {
		return nil, err
	}
	return s.inner.Keys(ctx, prefix)
}

func (s *countingStore) Flush(ctx context.Context) error {
	if err := s.bump(OpFlush, ""); err != nil {
		return err
	}
	return s.inner.Flush(ctx)
}

func (s *countingStore) bump(op Op, key string) error {
	s.fake.record(op, key)
	return s.fake.failure(op)
}
