package rescache

import (
	"context"
	"fmt"
)

// OpenStore builds the backend selected by cfg.Driver and layers value
// shaping, encryption and memoization on top as configured.
// @group Constructors
//
// Example: open a sqlite-backed store
//
//	ctx := context.Background()
//	store, err := rescache.OpenStore(ctx, rescache.StoreConfig{
//		Driver:        rescache.DriverSQL,
//		SQLDriverName: "sqlite",
//		SQLDSN:        "file:rescache.db",
//	})
//	if err != nil {
//		return err
//	}
//	fmt.Println(store.Driver()) // sql
func OpenStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	cfg = cfg.withDefaults()
	if !cfg.Driver.Valid() {
		return nil, fmt.Errorf("rescache: unknown driver %q", cfg.Driver)
	}

	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case DriverNull:
		store = newNullStore()
	case DriverFile:
		store = newFileStore(cfg.FileDir, cfg.DefaultTTL)
	case DriverRedis:
		if cfg.RedisClient == nil {
			return nil, fmt.Errorf("rescache: redis driver requires a client")
		}
		store = newRedisStore(cfg.RedisClient, cfg.DefaultTTL, cfg.Prefix)
	case DriverNATS:
		if cfg.NATSKeyValue == nil {
			return nil, fmt.Errorf("rescache: nats driver requires a key-value bucket")
		}
		store = newNATSStore(cfg.NATSKeyValue, cfg.DefaultTTL, cfg.Prefix)
	case DriverSQL:
		store, err = newSQLStore(cfg)
	case DriverDynamo:
		store, err = newDynamoStore(ctx, cfg)
	default:
		store = newMemoryStore(cfg.DefaultTTL, cfg.MemoryCleanupInterval)
	}
	if err != nil {
		return nil, fmt.Errorf("rescache: open %s store: %w", cfg.Driver, err)
	}

	store = newShapingStore(store, cfg.Compression, cfg.MaxValueBytes)
	if store, err = newEncryptingStore(store, cfg.EncryptionKey); err != nil {
		return nil, err
	}
	if cfg.Memoize {
		store = newMemoStore(store, cfg.DefaultTTL)
	}
	return store, nil
}

// NewStore is OpenStore for callers that prefer a value over an error.
// Construction failures surface on every call of the returned store.
// @group Constructors
//
// Example: select driver explicitly
//
//	ctx := context.Background()
//	store := rescache.NewStore(ctx, rescache.StoreConfig{
//		Driver: rescache.DriverMemory,
//	})
//	fmt.Println(store.Driver()) // memory
func NewStore(ctx context.Context, cfg StoreConfig) Store {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return &errorStore{driver: cfg.Driver, err: err}
	}
	return store
}

// NewStoreWith builds a store using a driver and a set of functional options.
// @group Constructors
//
// Example: redis store (options)
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
//	store := rescache.NewStoreWith(ctx, rescache.DriverRedis,
//		rescache.WithRedisClient(redisClient),
//		rescache.WithPrefix("app"),
//		rescache.WithDefaultTTL(5*time.Minute),
//	)
//	fmt.Println(store.Driver()) // redis
func NewStoreWith(ctx context.Context, driver Driver, opts ...StoreOption) Store {
	cfg := StoreConfig{Driver: driver}
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	return NewStore(ctx, cfg)
}

// NewMemoryStore is a convenience for an in-process store.
// @group Constructors
func NewMemoryStore(ctx context.Context, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverMemory, opts...)
}

// NewRedisStore is a convenience for a redis-backed store. Redis client is required.
// @group Constructors
func NewRedisStore(ctx context.Context, client RedisClient, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverRedis, append([]StoreOption{WithRedisClient(client)}, opts...)...)
}

// NewFileStore is a convenience for a filesystem-backed store.
// @group Constructors
func NewFileStore(ctx context.Context, dir string, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverFile, append([]StoreOption{WithFileDir(dir)}, opts...)...)
}
