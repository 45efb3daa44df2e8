package rescache

import (
	"context"
	"sync"
	"time"
)

type memoEntry struct {
	body    []byte
	ok      bool
	expires time.Time
}

func (e memoEntry) live(now time.Time) bool {
	return e.expires.IsZero() || now.Before(e.expires)
}

// NewMemoStore decorates store with per-process read memoization. Writes and
// deletes through the decorator drop the memoized copy, so it suits a store
// shared by a single query cache. Memoized reads expire after the default
// entry TTL, or after the TTL of the last write through the decorator.
// @group Stores
//
// Example: memoize a backing store
//
//	ctx := context.Background()
//	base := rescache.NewStore(ctx, rescache.StoreConfig{Driver: rescache.DriverMemory})
//	qc := rescache.NewQueryCache(rescache.NewMemoStore(base))
//	_ = qc
func NewMemoStore(store Store) Store {
	return newMemoStore(store, defaultCacheTTL)
}

func newMemoStore(store Store, maxAge time.Duration) *memoStore {
	return &memoStore{
		store:     store,
		maxAge:    maxAge,
		now:       time.Now,
		items:     make(map[string]memoEntry),
		versions:  make(map[string]uint64),
		deadlines: make(map[string]time.Time),
	}
}

type memoStore struct {
	store  Store
	maxAge time.Duration
	now    func() time.Time

	mu sync.Mutex
	// versions moves on every write to a key; flushes moves on Flush. A read
	// from the backing store is memoized only when neither moved meanwhile.
	items     map[string]memoEntry
	versions  map[string]uint64
	deadlines map[string]time.Time
	flushes   uint64
}

func (s *memoStore) Driver() Driver {
	return s.store.Driver()
}

func (s *memoStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	entry, ok := s.items[key]
	if ok && entry.live(s.now()) {
		s.mu.Unlock()
		return cloneBytes(entry.body), entry.ok, nil
	}
	if ok {
		delete(s.items, key)
	}
	version, flushes := s.versions[key], s.flushes
	s.mu.Unlock()

	body, exists, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	if s.versions[key] == version && s.flushes == flushes {
		s.items[key] = memoEntry{body: cloneBytes(body), ok: exists, expires: s.expiry(key)}
	}
	s.mu.Unlock()

	return cloneBytes(body), exists, nil
}

// expiry must be called with mu held.
func (s *memoStore) expiry(key string) time.Time {
	if d, ok := s.deadlines[key]; ok {
		return d
	}
	if s.maxAge > 0 {
		return s.now().Add(s.maxAge)
	}
	return time.Time{}
}

func (s *memoStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.store.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	s.mu.Lock()
	s.bump(key)
	if ttl > 0 {
		s.deadlines[key] = s.now().Add(ttl)
	}
	s.mu.Unlock()
	return nil
}

func (s *memoStore) Delete(ctx context.Context, key string) error {
	if err := s.store.Delete(ctx, key); err != nil {
		return err
	}
	s.forget(key)
	return nil
}

func (s *memoStore) DeleteMany(ctx context.Context, keys ...string) error {
	if err := s.store.DeleteMany(ctx, keys...); err != nil {
		return err
	}
	s.mu.Lock()
	for _, key := range keys {
		s.bump(key)
	}
	s.mu.Unlock()
	return nil
}

// Keys always asks the backing store; listings are not memoized.
func (s *memoStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	return s.store.Keys(ctx, prefix)
}

func (s *memoStore) Flush(ctx context.Context) error {
	if err := s.store.Flush(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.flushes++
	s.items = make(map[string]memoEntry)
	s.deadlines = make(map[string]time.Time)
	s.mu.Unlock()
	return nil
}

func (s *memoStore) forget(key string) {
	s.mu.Lock()
	s.bump(key)
	s.mu.Unlock()
}

// bump must be called with mu held.
func (s *memoStore) bump(key string) {
	s.versions[key]++
	delete(s.items, key)
	delete(s.deadlines, key)
}
