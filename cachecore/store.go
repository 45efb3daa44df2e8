package cachecore

import (
	"context"
	"time"
)

// Store is the byte-level contract every query cache backend satisfies.
// Keys are opaque strings; Keys enumerates stored keys sharing a prefix so
// the query cache can mark whole key families stale.
type Store interface {
	Driver() Driver
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteMany(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Flush(ctx context.Context) error
}
