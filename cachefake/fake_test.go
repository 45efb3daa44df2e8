package cachefake

import (
	"context"
	"errors"
	"testing"

	"github.com/goforj/rescache"
)

func TestFakeRecordsFetchAndInvalidate(t *testing.T) {
	ctx := context.Background()
	f := New()
	qc := f.QueryCache()

	key := rescache.Key{"team", "5"}
	got, err := rescache.Fetch(ctx, qc, key, func(context.Context) (string, error) { return "ok", nil })
	if err != nil || got != "ok" {
		t.Fatalf("fetch = %q, %v", got, err)
	}
	f.AssertCalled(t, OpFetch, key.String(), 1)
	f.AssertCalled(t, OpSet, key.String(), 1)

	if err := qc.Invalidate(ctx, key, true); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	f.AssertInvalidated(t, key, 1)
	f.AssertNotCalled(t, OpKeys, key.String())

	if err := qc.Invalidate(ctx, rescache.Key{"team"}, false); err != nil {
		t.Fatalf("prefix invalidate: %v", err)
	}
	f.AssertCalled(t, OpKeys, "team", 1)
	f.AssertTotal(t, OpInvalidate, 2)

	if got := f.Invalidated(); got["team"] != 1 || got["team/5"] != 1 {
		t.Fatalf("unexpected invalidations: %v", got)
	}

	f.Reset()
	f.AssertTotal(t, OpInvalidate, 0)
}

func TestFakeFailOn(t *testing.T) {
	ctx := context.Background()
	f := New()
	boom := errors.New("boom")
	f.FailOn(OpKeys, boom)

	err := f.QueryCache().Invalidate(ctx, rescache.Key{"autocomplete"}, false)
	if !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	f.AssertInvalidated(t, rescache.Key{"autocomplete"}, 1)

	f.FailOn(OpKeys, nil)
	if err := f.QueryCache().Invalidate(ctx, rescache.Key{"autocomplete"}, false); err != nil {
		t.Fatalf("expected failure cleared, got %v", err)
	}
}
