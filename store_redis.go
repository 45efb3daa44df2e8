package rescache

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient captures the subset of redis.Client used by the store.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

var errRedisUnavailable = errors.New("redis cache client unavailable")

type redisStore struct {
	client     RedisClient
	defaultTTL time.Duration
	prefix     string
}

func newRedisStore(client RedisClient, defaultTTL time.Duration, prefix string) Store {
	if defaultTTL <= 0 {
		defaultTTL = defaultCacheTTL
	}
	if prefix == "" {
		prefix = defaultCachePrefix
	}
	return &redisStore{
		client:     client,
		defaultTTL: defaultTTL,
		prefix:     prefix,
	}
}

func (s *redisStore) Driver() Driver {
	return DriverRedis
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.client == nil {
		return nil, false, errRedisUnavailable
	}
	value, err := s.client.Get(ctx, s.cacheKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.client == nil {
		return errRedisUnavailable
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	return s.client.Set(ctx, s.cacheKey(key), value, ttl).Err()
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if s.client == nil {
		return errRedisUnavailable
	}
	return s.client.Del(ctx, s.cacheKey(key)).Err()
}

func (s *redisStore) DeleteMany(ctx context.Context, keys ...string) error {
	if s.client == nil {
		return errRedisUnavailable
	}
	if len(keys) == 0 {
		return nil
	}
	cacheKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		cacheKeys = append(cacheKeys, s.cacheKey(key))
	}
	return s.client.Del(ctx, cacheKeys...).Err()
}

// Keys scans for prefixed keys. Glob metacharacters in the prefix are
// escaped so the match stays literal.
func (s *redisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if s.client == nil {
		return nil, errRedisUnavailable
	}
	var out []string
	err := s.scan(ctx, escapeRedisGlob(s.cacheKey(prefix))+"*", func(keys []string) error {
		for _, k := range keys {
			out = append(out, strings.TrimPrefix(k, s.prefix+":"))
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

func (s *redisStore) Flush(ctx context.Context) error {
	if s.client == nil {
		return errRedisUnavailable
	}
	return s.scan(ctx, escapeRedisGlob(s.prefix+":")+"*", func(keys []string) error {
		return s.client.Del(ctx, keys...).Err()
	})
}

func (s *redisStore) scan(ctx context.Context, pattern string, fn func([]string) error) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (s *redisStore) cacheKey(key string) string {
	return s.prefix + ":" + key
}

func escapeRedisGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
