package rescache

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func waitState[T any](t *testing.T, sub *Subscription[T]) State[T] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := sub.Wait(ctx)
	if err != nil {
		t.Fatalf("wait failed: %v (state %+v)", err, st)
	}
	return st
}

func TestSubscribeLoadsThenReady(t *testing.T) {
	ctx := context.Background()
	qc := NewQueryCache(newMemoryStore(0, 0))

	release := make(chan struct{})
	sub := Subscribe(ctx, qc, Key{"team", "5"}, func(context.Context) (string, error) {
		<-release
		return "alpha", nil
	})
	defer sub.Close()

	if st := sub.State(); st.Status != StatusLoading || !st.Fetching || st.HasData {
		t.Fatalf("expected loading state, got %+v", st)
	}
	close(release)
	st := waitState(t, sub)
	if st.Status != StatusReady || st.Data != "alpha" || st.UpdatedAt.IsZero() {
		t.Fatalf("expected ready state, got %+v", st)
	}
	select {
	case <-sub.Changes():
	default:
		t.Fatalf("expected a change signal")
	}
}

func TestSubscribeShowsStoredEntryAndRefetchesInBackground(t *testing.T) {
	ctx := context.Background()
	qc := NewQueryCache(newMemoryStore(0, 0))
	if _, err := Fetch(ctx, qc, Key{"k"}, func(context.Context) (string, error) { return "old", nil }); err != nil {
		t.Fatalf("seed: %v", err)
	}

	release := make(chan struct{})
	sub := Subscribe(ctx, qc, Key{"k"}, func(context.Context) (string, error) {
		<-release
		return "new", nil
	})
	defer sub.Close()

	st := sub.State()
	if st.Status != StatusReady || st.Data != "old" || !st.Fetching {
		t.Fatalf("expected stored data with background refetch, got %+v", st)
	}
	close(release)
	if st := waitState(t, sub); st.Data != "new" || st.Fetching {
		t.Fatalf("expected refreshed data, got %+v", st)
	}
}

func TestSubscribeFreshEntrySkipsFetch(t *testing.T) {
	ctx := context.Background()
	qc := NewQueryCache(newMemoryStore(0, 0), WithStaleTime(time.Hour))
	if _, err := Fetch(ctx, qc, Key{"k"}, func(context.Context) (int, error) { return 1, nil }); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var calls atomic.Int32
	sub := Subscribe(ctx, qc, Key{"k"}, func(context.Context) (int, error) {
		calls.Add(1)
		return 2, nil
	})
	defer sub.Close()
	if st := waitState(t, sub); st.Data != 1 || calls.Load() != 0 {
		t.Fatalf("expected fresh stored entry without fetch, got %+v calls=%d", st, calls.Load())
	}
}

func TestSubscribeFailureKeepsData(t *testing.T) {
	ctx := context.Background()
	qc := NewQueryCache(newMemoryStore(0, 0))
	boom := errors.New("boom")

	var fail atomic.Bool
	sub := Subscribe(ctx, qc, Key{"k"}, func(context.Context) (string, error) {
		if fail.Load() {
			return "", boom
		}
		return "good", nil
	})
	defer sub.Close()
	waitState(t, sub)

	fail.Store(true)
	sub.Refetch()
	st := waitState(t, sub)
	if st.Status != StatusFailed || !errors.Is(st.Err, boom) {
		t.Fatalf("expected failed state, got %+v", st)
	}
	if !st.HasData || st.Data != "good" {
		t.Fatalf("expected last data kept, got %+v", st)
	}
}

func TestSubscribeFailureWithoutData(t *testing.T) {
	ctx := context.Background()
	qc := NewQueryCache(newMemoryStore(0, 0))
	boom := errors.New("boom")
	sub := Subscribe(ctx, qc, Key{"k"}, func(context.Context) (string, error) { return "", boom })
	defer sub.Close()
	st := waitState(t, sub)
	if st.Status != StatusFailed || st.HasData || !errors.Is(st.Err, boom) {
		t.Fatalf("expected failed state without data, got %+v", st)
	}
}

func TestDisabledSubscriptionStaysIdle(t *testing.T) {
	ctx := context.Background()
	qc := NewQueryCache(newMemoryStore(0, 0))
	var calls atomic.Int32
	sub := Subscribe(ctx, qc, Key{"family", "1"}, func(context.Context) (string, error) {
		calls.Add(1)
		return "x", nil
	}, WithEnabled(false))
	defer sub.Close()

	if st := waitState(t, sub); st.Status != StatusIdle {
		t.Fatalf("expected idle, got %+v", st)
	}
	sub.Refetch()
	if err := qc.Invalidate(ctx, Key{"family"}, false); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 0 || sub.State().Status != StatusIdle {
		t.Fatalf("disabled subscription fetched: calls=%d state=%+v", calls.Load(), sub.State())
	}
}

func TestInvalidateRefetchesActiveSubscribers(t *testing.T) {
	ctx := context.Background()
	qc := NewQueryCache(newMemoryStore(0, 0), WithStaleTime(time.Hour))

	var version atomic.Int32
	load := func(context.Context) (int32, error) { return version.Add(1), nil }

	team := Subscribe(ctx, qc, Key{"team", "5"}, load)
	defer team.Close()
	other := Subscribe(ctx, qc, Key{"teams", "5"}, load)
	defer other.Close()
	waitState(t, team)
	before := waitState(t, other).Data

	if err := qc.Invalidate(ctx, Key{"team"}, false); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	st := waitState(t, team)
	if st.Data <= 2 {
		t.Fatalf("expected refetched data, got %+v", st)
	}
	if got := other.State().Data; got != before {
		t.Fatalf("sibling key refetched: %d -> %d", before, got)
	}
}

func TestCloseDropsLateResults(t *testing.T) {
	ctx := context.Background()
	qc := NewQueryCache(newMemoryStore(0, 0))

	started := make(chan struct{})
	canceled := make(chan struct{})
	sub := Subscribe(ctx, qc, Key{"slow"}, func(fctx context.Context) (string, error) {
		close(started)
		<-fctx.Done()
		close(canceled)
		return "late", nil
	})
	<-started
	sub.Close()

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatalf("expected close to cancel the fetch context")
	}
	time.Sleep(10 * time.Millisecond)
	if st := sub.State(); st.Status != StatusLoading || st.HasData {
		t.Fatalf("late result applied after close: %+v", st)
	}
	if _, err := sub.Wait(ctx); !errors.Is(err, ErrSubscriptionClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
	if len(qc.matching(Key{"slow"}, true)) != 0 {
		t.Fatalf("expected subscription unregistered")
	}
	sub.Close() // idempotent
}

func TestSharedFlightSurvivesInitiatorClose(t *testing.T) {
	ctx := context.Background()
	qc := NewQueryCache(newMemoryStore(0, 0))

	var calls atomic.Int32
	started := make(chan struct{})
	load := func(fctx context.Context) (string, error) {
		n := calls.Add(1)
		if n == 1 {
			close(started)
			<-fctx.Done()
			return "", fctx.Err()
		}
		return "second", nil
	}
	first := Subscribe(ctx, qc, Key{"k"}, load)
	<-started
	second := Subscribe(ctx, qc, Key{"k"}, load)
	defer second.Close()
	time.Sleep(10 * time.Millisecond)
	first.Close()

	st := waitState(t, second)
	if st.Status != StatusReady || st.Data != "second" {
		t.Fatalf("expected survivor to retry, got %+v", st)
	}
}

func TestWithSelectTransformsData(t *testing.T) {
	ctx := context.Background()
	qc := NewQueryCache(newMemoryStore(0, 0))
	sub := Subscribe(ctx, qc, Key{"k"}, func(context.Context) (string, error) { return "alpha", nil },
		WithSelect(strings.ToUpper))
	defer sub.Close()
	if st := waitState(t, sub); st.Data != "ALPHA" {
		t.Fatalf("expected selected data, got %+v", st)
	}

	// Stored data stays unselected.
	raw, err := Fetch(ctx, NewQueryCache(qc.Store(), WithStaleTime(time.Hour)), Key{"k"}, func(context.Context) (string, error) { return "", errors.New("unused") })
	if err != nil || raw != "alpha" {
		t.Fatalf("expected raw stored value, got %q err=%v", raw, err)
	}
}

func TestWithSelectTypeMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	qc := NewQueryCache(newMemoryStore(0, 0))
	Subscribe(context.Background(), qc, Key{"k"}, func(context.Context) (int, error) { return 1, nil },
		WithSelect(strings.ToUpper))
}

func TestStatusString(t *testing.T) {
	for s, want := range map[Status]string{StatusIdle: "idle", StatusLoading: "loading", StatusReady: "ready", StatusFailed: "failed", Status(9): "status(9)"} {
		if s.String() != want {
			t.Fatalf("%d.String() = %q, want %q", int(s), s.String(), want)
		}
	}
}
