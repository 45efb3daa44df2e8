package rescache

import "time"

// StoreOption mutates StoreConfig when constructing a store.
type StoreOption func(StoreConfig) StoreConfig

// WithDefaultTTL overrides how long entries survive in the backend.
func WithDefaultTTL(ttl time.Duration) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.DefaultTTL = ttl
		return cfg
	}
}

// WithMemoryCleanupInterval overrides the sweep interval for the memory driver.
func WithMemoryCleanupInterval(interval time.Duration) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.MemoryCleanupInterval = interval
		return cfg
	}
}

// WithPrefix sets the key prefix for shared backends.
func WithPrefix(prefix string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.Prefix = prefix
		return cfg
	}
}

// WithCompression compresses stored entries with codec.
func WithCompression(codec CompressionCodec) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.Compression = codec
		return cfg
	}
}

// WithMaxValueBytes rejects entries larger than n bytes after compression.
func WithMaxValueBytes(n int) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.MaxValueBytes = n
		return cfg
	}
}

// WithEncryptionKey encrypts stored entries with AES-GCM.
func WithEncryptionKey(key []byte) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.EncryptionKey = append([]byte(nil), key...)
		return cfg
	}
}

// WithRedisClient sets the redis client; required when using DriverRedis.
func WithRedisClient(client RedisClient) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.RedisClient = client
		return cfg
	}
}

// WithFileDir sets the directory used by the file driver.
func WithFileDir(dir string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.FileDir = dir
		return cfg
	}
}

// WithNATSKeyValue sets the JetStream bucket; required when using DriverNATS.
func WithNATSKeyValue(kv NATSKeyValue) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.NATSKeyValue = kv
		return cfg
	}
}

// WithSQL configures the SQL driver.
func WithSQL(driverName, dsn, table string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.SQLDriverName = driverName
		cfg.SQLDSN = dsn
		cfg.SQLTable = table
		return cfg
	}
}

// WithDynamoClient injects a DynamoDB client.
func WithDynamoClient(client DynamoAPI) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.DynamoClient = client
		return cfg
	}
}

// WithMemo wraps the store with per-process read memoization.
func WithMemo() StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.Memoize = true
		return cfg
	}
}
