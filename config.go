package rescache

import (
	"os"
	"path/filepath"
	"time"

	"github.com/goforj/rescache/cachecore"
)

const (
	defaultCachePrefix           = "rescache"
	defaultCacheTTL              = 5 * time.Minute
	defaultMemoryCleanupInterval = 10 * time.Minute
	defaultSQLTable              = "rescache_entries"
	defaultDynamoTable           = "rescache_entries"
)

func defaultFileDir() string {
	return filepath.Join(os.TempDir(), "rescache-file")
}

// BaseConfig holds the backend-agnostic store settings.
type BaseConfig = cachecore.BaseConfig

// StoreConfig controls how a Store is constructed.
type StoreConfig struct {
	cachecore.BaseConfig

	Driver Driver

	// MemoryCleanupInterval controls in-process eviction sweeps.
	MemoryCleanupInterval time.Duration

	// RedisClient is required when DriverRedis is used.
	RedisClient RedisClient

	// FileDir controls where the file driver keeps entries.
	FileDir string

	// NATSKeyValue is required when DriverNATS is used.
	NATSKeyValue NATSKeyValue

	// SQLDriverName and SQLDSN select the database/sql driver and connection.
	SQLDriverName string
	SQLDSN        string
	SQLTable      string

	// DynamoClient may be injected; otherwise one is built from DynamoRegion
	// and DynamoEndpoint.
	DynamoClient   DynamoAPI
	DynamoEndpoint string
	DynamoRegion   string
	DynamoTable    string

	// Memoize wraps the store with per-process read memoization.
	Memoize bool
}

func (c StoreConfig) withDefaults() StoreConfig {
	if c.Driver == "" {
		c.Driver = DriverMemory
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = defaultCacheTTL
	}
	if c.MemoryCleanupInterval <= 0 {
		c.MemoryCleanupInterval = defaultMemoryCleanupInterval
	}
	if c.Prefix == "" {
		c.Prefix = defaultCachePrefix
	}
	if c.Compression == "" {
		c.Compression = CompressionNone
	}
	if c.FileDir == "" {
		c.FileDir = defaultFileDir()
	}
	if c.SQLTable == "" {
		c.SQLTable = defaultSQLTable
	}
	if c.DynamoTable == "" {
		c.DynamoTable = defaultDynamoTable
	}
	if c.DynamoRegion == "" {
		c.DynamoRegion = "us-east-1"
	}
	return c
}
