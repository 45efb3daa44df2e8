package rescache_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/goforj/rescache"
	"github.com/goforj/rescache/cachetest"
)

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name  string
		store func(t *testing.T) rescache.Store
		opts  cachetest.Options
	}{
		{"memory", func(*testing.T) rescache.Store { return rescache.NewMemoryStore(ctx) }, cachetest.Options{}},
		{"null", func(*testing.T) rescache.Store { return rescache.NewStoreWith(ctx, rescache.DriverNull) }, cachetest.Options{NullSemantics: true}},
		{"file", func(t *testing.T) rescache.Store { return rescache.NewFileStore(ctx, t.TempDir()) }, cachetest.Options{}},
		{"sqlite", func(t *testing.T) rescache.Store {
			return rescache.NewStoreWith(ctx, rescache.DriverSQL,
				rescache.WithSQL("sqlite", "file:"+filepath.Join(t.TempDir(), "c.db"), ""),
				rescache.WithPrefix("contract"),
			)
		}, cachetest.Options{}},
		{"shaped", func(*testing.T) rescache.Store {
			return rescache.NewMemoryStore(ctx,
				rescache.WithCompression(rescache.CompressionGzip),
				rescache.WithEncryptionKey(bytes.Repeat([]byte("k"), 32)),
			)
		}, cachetest.Options{}},
		{"memo", func(*testing.T) rescache.Store {
			return rescache.NewMemoryStore(ctx, rescache.WithMemo())
		}, cachetest.Options{SkipTTL: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cachetest.RunStoreContract(t, tc.store(t), tc.opts)
		})
	}
}
