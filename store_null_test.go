package rescache

import (
	"context"
	"testing"
)

func TestNullStoreDropsEverything(t *testing.T) {
	ctx := context.Background()
	store := newNullStore()
	if store.Driver() != DriverNull {
		t.Fatalf("unexpected driver %q", store.Driver())
	}
	if err := store.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if _, ok, err := store.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	if keys, err := store.Keys(ctx, ""); err != nil || len(keys) != 0 {
		t.Fatalf("expected no keys, got %v err=%v", keys, err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := store.DeleteMany(ctx, "a", "b"); err != nil {
		t.Fatalf("delete many failed: %v", err)
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
}
