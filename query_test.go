package rescache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recordedOp struct {
	op  string
	key string
	hit bool
	err error
}

type opRecorder struct {
	mu  sync.Mutex
	ops []recordedOp
}

func (r *opRecorder) OnCacheOp(_ context.Context, op, key string, hit bool, err error, _ time.Duration, _ Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, recordedOp{op: op, key: key, hit: hit, err: err})
}

func (r *opRecorder) count(op, key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.ops {
		if o.op == op && o.key == key {
			n++
		}
	}
	return n
}

func TestFetchReadsThroughAndHonoursStaleTime(t *testing.T) {
	ctx := context.Background()
	qc := NewQueryCache(newMemoryStore(0, 0), WithStaleTime(time.Hour))

	var calls atomic.Int32
	load := func(context.Context) (map[string]int, error) {
		calls.Add(1)
		return map[string]int{"n": int(calls.Load())}, nil
	}
	key := Key{"team", "5"}
	first, err := Fetch(ctx, qc, key, load)
	if err != nil || first["n"] != 1 {
		t.Fatalf("unexpected first fetch: %v err=%v", first, err)
	}
	second, err := Fetch(ctx, qc, key, load)
	if err != nil || second["n"] != 1 || calls.Load() != 1 {
		t.Fatalf("expected fresh hit, got %v calls=%d err=%v", second, calls.Load(), err)
	}

	if err := qc.Invalidate(ctx, key, true); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	third, err := Fetch(ctx, qc, key, load)
	if err != nil || third["n"] != 2 {
		t.Fatalf("expected refetch after invalidation, got %v err=%v", third, err)
	}
}

func TestFetchWithZeroStaleTimeAlwaysFetches(t *testing.T) {
	ctx := context.Background()
	qc := NewQueryCache(newMemoryStore(0, 0))
	var calls int
	load := func(context.Context) (int, error) { calls++; return calls, nil }
	for i := 0; i < 3; i++ {
		if _, err := Fetch(ctx, qc, Key{"k"}, load); err != nil {
			t.Fatalf("fetch: %v", err)
		}
	}
	if calls != 3 {
		t.Fatalf("expected every fetch to hit the source, got %d", calls)
	}
}

func TestFetchErrorIsNotStored(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(0, 0)
	qc := NewQueryCache(store)
	boom := errors.New("boom")
	if _, err := Fetch(ctx, qc, Key{"k"}, func(context.Context) (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatalf("failed fetch must not write an entry")
	}
}

func TestFetchSharesConcurrentFlights(t *testing.T) {
	ctx := context.Background()
	qc := NewQueryCache(newMemoryStore(0, 0))

	release := make(chan struct{})
	var calls atomic.Int32
	load := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "v", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, err := Fetch(ctx, qc, Key{"shared"}, load); err != nil || v != "v" {
				t.Errorf("fetch = %q, %v", v, err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	if calls.Load() != 1 {
		t.Fatalf("expected one shared fetch, got %d", calls.Load())
	}
}

func TestInvalidateMarksStaleWithoutReplacingData(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(0, 0)
	rec := &opRecorder{}
	qc := NewQueryCache(store, WithObserver(rec))

	for _, k := range []Key{{"autocomplete", "tags"}, {"autocomplete", "owners"}, {"team", "list"}} {
		if _, err := Fetch(ctx, qc, k, func(context.Context) (string, error) { return "body", nil }); err != nil {
			t.Fatalf("fetch %v: %v", k, err)
		}
	}
	if err := qc.Invalidate(ctx, Key{"autocomplete"}, false); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if rec.count(OpInvalidate, "autocomplete") != 1 {
		t.Fatalf("expected one invalidate event, got %+v", rec.ops)
	}

	for k, stale := range map[string]bool{"autocomplete/tags": true, "autocomplete/owners": true, "team/list": false} {
		key, _ := ParseKey(k)
		env, ok, err := qc.load(ctx, key)
		if err != nil || !ok {
			t.Fatalf("expected %s stored, ok=%v err=%v", k, ok, err)
		}
		if env.Stale != stale {
			t.Fatalf("%s stale=%v, want %v", k, env.Stale, stale)
		}
		if string(env.Data) != `"body"` {
			t.Fatalf("%s data replaced: %s", k, env.Data)
		}
	}
}

func TestInvalidateExactMissingKeyIsNoop(t *testing.T) {
	ctx := context.Background()
	rec := &opRecorder{}
	qc := NewQueryCache(newMemoryStore(0, 0), WithObserver(rec))
	if err := qc.Invalidate(ctx, Key{"team", "list"}, true); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	last := rec.ops[len(rec.ops)-1]
	if last.op != OpInvalidate || last.hit {
		t.Fatalf("expected invalidate miss event, got %+v", last)
	}
}

func TestInvalidateKeysJoinsErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	qc := NewQueryCache(&errorStore{driver: DriverMemory, err: boom})
	err := qc.InvalidateKeys(ctx, Key{"a"}, Key{"b"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined store error, got %v", err)
	}
	if err := qc.Invalidate(ctx, Key{"a"}, false); !errors.Is(err, boom) {
		t.Fatalf("expected keys error, got %v", err)
	}
}

func TestCorruptEntryReadsAsMiss(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(0, 0)
	_ = store.Set(ctx, "k", []byte("not json"), time.Minute)
	qc := NewQueryCache(store, WithStaleTime(time.Hour))
	got, err := Fetch(ctx, qc, Key{"k"}, func(context.Context) (int, error) { return 7, nil })
	if err != nil || got != 7 {
		t.Fatalf("expected refetch over corrupt entry, got %d err=%v", got, err)
	}
}

func TestFetchStartedBeforeInvalidateDoesNotOverwriteNewerResult(t *testing.T) {
	ctx := context.Background()
	qc := NewQueryCache(newMemoryStore(0, 0), WithStaleTime(time.Hour))
	key := Key{"team", "5"}

	started := make(chan struct{})
	release := make(chan struct{})
	oldDone := make(chan string)
	go func() {
		got, _ := Fetch(ctx, qc, key, func(context.Context) (string, error) {
			close(started)
			<-release
			return "before-mutation", nil
		})
		oldDone <- got
	}()
	<-started

	if err := qc.Invalidate(ctx, key, true); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	fresh, err := Fetch(ctx, qc, key, func(context.Context) (string, error) {
		return "after-mutation", nil
	})
	if err != nil || fresh != "after-mutation" {
		t.Fatalf("unexpected post-invalidation fetch: %q err=%v", fresh, err)
	}

	close(release)
	if got := <-oldDone; got != "before-mutation" {
		t.Fatalf("expected original caller to get its own result, got %q", got)
	}

	later, err := Fetch(ctx, qc, key, func(context.Context) (string, error) {
		return "refetched", nil
	})
	if err != nil || later != "after-mutation" {
		t.Fatalf("expected stored entry to keep the newer result, got %q err=%v", later, err)
	}
}

func TestPrefixInvalidateFlagsRunningFetchOfUnstoredKey(t *testing.T) {
	ctx := context.Background()
	qc := NewQueryCache(newMemoryStore(0, 0), WithStaleTime(time.Hour))
	key := Key{"autocomplete", "team", "a"}

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = Fetch(ctx, qc, key, func(context.Context) (string, error) {
			close(started)
			<-release
			return "old", nil
		})
	}()
	<-started
	if err := qc.Invalidate(ctx, Key{"autocomplete"}, false); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	close(release)
	<-done

	if _, ok, _ := qc.load(ctx, key); ok {
		t.Fatalf("expected invalidated fetch to leave no entry")
	}
}
