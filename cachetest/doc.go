// Package cachetest provides a reusable contract suite for rescache.Store
// implementations.
//
// Example pattern:
//
//	func TestRedisStoreContract(t *testing.T) {
//		client := newTestRedisClient(t)
//		store := rescache.NewRedisStore(context.Background(), client, rescache.WithPrefix("test"))
//
//		// Namespace keys per test and tune TTL waits for backend semantics as needed.
//		cachetest.RunStoreContract(t, store, cachetest.Options{
//			CaseName: t.Name(),
//			TTL:      time.Second,
//			TTLWait:  1500 * time.Millisecond,
//		})
//	}
package cachetest
