package rescache

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type stubRedisClient struct {
	store   map[string]string
	ttl     map[string]time.Time
	scanned []string
	getErr  error
	delErr  error
	scanErr error
}

func newStubRedisClient() *stubRedisClient {
	return &stubRedisClient{store: map[string]string{}, ttl: map[string]time.Time{}}
}

func (c *stubRedisClient) Get(_ context.Context, key string) *redis.StringCmd {
	if c.getErr != nil {
		return redis.NewStringResult("", c.getErr)
	}
	v, ok := c.store[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (c *stubRedisClient) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		c.store[key] = string(v)
	case string:
		c.store[key] = v
	}
	c.ttl[key] = time.Now().Add(expiration)
	return redis.NewStatusResult("OK", nil)
}

func (c *stubRedisClient) Del(_ context.Context, keys ...string) *redis.IntCmd {
	if c.delErr != nil {
		return redis.NewIntResult(0, c.delErr)
	}
	var n int64
	for _, k := range keys {
		if _, ok := c.store[k]; ok {
			delete(c.store, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

// Scan supports the literal-prefix-then-star patterns the store issues and
// returns everything in one page.
func (c *stubRedisClient) Scan(_ context.Context, _ uint64, match string, _ int64) *redis.ScanCmd {
	c.scanned = append(c.scanned, match)
	if c.scanErr != nil {
		return redis.NewScanCmdResult(nil, 0, c.scanErr)
	}
	prefix := unescapeRedisGlob(strings.TrimSuffix(match, "*"))
	var keys []string
	for k := range c.store {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return redis.NewScanCmdResult(keys, 0, nil)
}

func unescapeRedisGlob(s string) string {
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}

func TestRedisStoreNilClientErrors(t *testing.T) {
	store := newRedisStore(nil, 0, "")
	ctx := context.Background()
	if _, _, err := store.Get(ctx, "k"); err == nil {
		t.Fatalf("expected get error when redis client is nil")
	}
	if err := store.Set(ctx, "k", []byte("v"), 0); err == nil {
		t.Fatalf("expected set error when redis client is nil")
	}
	if err := store.Delete(ctx, "k"); err == nil {
		t.Fatalf("expected delete error when redis client is nil")
	}
	if err := store.DeleteMany(ctx, "a", "b"); err == nil {
		t.Fatalf("expected delete many error when redis client is nil")
	}
	if _, err := store.Keys(ctx, ""); err == nil {
		t.Fatalf("expected keys error when redis client is nil")
	}
	if err := store.Flush(ctx); err == nil {
		t.Fatalf("expected flush error when redis client is nil")
	}
}

func TestRedisStoreOperationsWithStubClient(t *testing.T) {
	ctx := context.Background()
	client := newStubRedisClient()
	store := newRedisStore(client, 0, "pfx")

	if err := store.Set(ctx, "alpha", []byte("one"), 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	body, ok, err := store.Get(ctx, "alpha")
	if err != nil || !ok || string(body) != "one" {
		t.Fatalf("unexpected get result: ok=%v err=%v body=%s", ok, err, string(body))
	}
	if ttl, ok := client.ttl["pfx:alpha"]; !ok || ttl.Before(time.Now().Add(defaultCacheTTL-time.Second)) {
		t.Fatalf("expected default ttl to be applied, got %v", ttl)
	}

	if err := store.Delete(ctx, "alpha"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := store.DeleteMany(ctx); err != nil { // no-op path
		t.Fatalf("delete many empty failed: %v", err)
	}
	if err := store.Set(ctx, "a", []byte("1"), 0); err != nil {
		t.Fatalf("set a failed: %v", err)
	}
	if err := store.Set(ctx, "b", []byte("2"), 0); err != nil {
		t.Fatalf("set b failed: %v", err)
	}
	if err := store.DeleteMany(ctx, "a", "b"); err != nil {
		t.Fatalf("delete many failed: %v", err)
	}
	if len(client.store) != 0 {
		t.Fatalf("expected empty redis, have %v", client.store)
	}
}

func TestRedisStoreKeysEscapesGlob(t *testing.T) {
	ctx := context.Background()
	client := newStubRedisClient()
	store := newRedisStore(client, 0, "pfx")
	client.store["other:team/1"] = "x"

	for _, k := range []string{"team/1", "team/2", "team*/3"} {
		if err := store.Set(ctx, k, []byte("v"), 0); err != nil {
			t.Fatalf("set %s failed: %v", k, err)
		}
	}
	keys, err := store.Keys(ctx, "team/")
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	if want := []string{"team/1", "team/2"}; !slices.Equal(keys, want) {
		t.Fatalf("expected %v, got %v", want, keys)
	}
	if _, err := store.Keys(ctx, "team*"); err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	if got := client.scanned[len(client.scanned)-1]; got != `pfx:team\**` {
		t.Fatalf("expected escaped glob, got %q", got)
	}

	if err := store.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if _, ok := client.store["other:team/1"]; !ok || len(client.store) != 1 {
		t.Fatalf("expected flush to leave foreign keys, have %v", client.store)
	}
}

func TestRedisStoreErrorPropagation(t *testing.T) {
	ctx := context.Background()
	client := newStubRedisClient()
	client.getErr = errors.New("get")
	store := newRedisStore(client, 0, "pfx")
	if _, _, err := store.Get(ctx, "k"); err == nil {
		t.Fatalf("expected get error")
	}

	client = newStubRedisClient()
	client.scanErr = errors.New("scan")
	store = newRedisStore(client, 0, "pfx")
	if err := store.Flush(ctx); err == nil {
		t.Fatalf("expected flush scan error")
	}
	if _, err := store.Keys(ctx, ""); err == nil {
		t.Fatalf("expected keys scan error")
	}

	client = newStubRedisClient()
	client.delErr = errors.New("del")
	client.store["pfx:a"] = "1"
	store = newRedisStore(client, 0, "pfx")
	if err := store.Flush(ctx); err == nil {
		t.Fatalf("expected flush delete error")
	}
}

func TestRedisStoreGetMissing(t *testing.T) {
	store := newRedisStore(newStubRedisClient(), 0, "pfx")
	_, ok, err := store.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for missing key")
	}
}
