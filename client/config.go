package client

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goforj/rescache"
	"github.com/goforj/rescache/internal/logging"
	"gopkg.in/yaml.v3"
)

// Config is the YAML-loadable client configuration.
//
//	api:
//	  base_url: https://records.example/api
//	  timeout: 15s
//	cache:
//	  driver: redis
//	  stale_time: 30s
//	  redis:
//	    addr: localhost:6379
//	log:
//	  console_level: info
type Config struct {
	API       APIConfig       `yaml:"api"`
	Reference ReferenceConfig `yaml:"reference"`
	Cache     CacheConfig     `yaml:"cache"`
	Log       logging.Config  `yaml:"log"`
}

type APIConfig struct {
	// BaseURL is where kinds are served. Empty leaves accessors to the
	// registry.
	BaseURL string            `yaml:"base_url" validate:"omitempty,url"`
	Timeout time.Duration     `yaml:"timeout" validate:"gte=0"`
	Headers map[string]string `yaml:"headers"`
}

type ReferenceConfig struct {
	// Base prefixes built references. Defaults to the scheme and host of
	// API.BaseURL.
	Base string `yaml:"base" validate:"omitempty,url"`
}

type CacheConfig struct {
	Driver        string        `yaml:"driver" validate:"omitempty,oneof=memory null file redis nats sql dynamodb"`
	Prefix        string        `yaml:"prefix"`
	StaleTime     time.Duration `yaml:"stale_time" validate:"gte=0"`
	EntryTTL      time.Duration `yaml:"entry_ttl" validate:"gte=0"`
	Compression   string        `yaml:"compression" validate:"omitempty,oneof=none gzip snappy"`
	MaxValueBytes int           `yaml:"max_value_bytes" validate:"gte=0"`
	EncryptionKey string        `yaml:"encryption_key" validate:"omitempty,len=16|len=24|len=32"`
	Memoize       bool          `yaml:"memoize"`

	File   FileConfig   `yaml:"file"`
	Redis  RedisConfig  `yaml:"redis"`
	NATS   NATSConfig   `yaml:"nats"`
	SQL    SQLConfig    `yaml:"sql"`
	Dynamo DynamoConfig `yaml:"dynamodb"`
}

type FileConfig struct {
	Dir string `yaml:"dir"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" validate:"omitempty,hostname_port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
}

type NATSConfig struct {
	URL    string `yaml:"url" validate:"omitempty,url"`
	Bucket string `yaml:"bucket"`
}

type SQLConfig struct {
	Driver string `yaml:"driver" validate:"omitempty,oneof=sqlite mysql pgx postgres"`
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
}

type DynamoConfig struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`
	Table    string `yaml:"table"`
}

const defaultNATSBucket = "rescache"

var configValidate = validator.New(validator.WithRequiredStructEnabled())

// LoadConfig reads and validates a YAML file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("client: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates YAML.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("client: decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and driver requirements.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("client: invalid config: %w", err)
	}
	switch rescache.Driver(c.Cache.Driver) {
	case rescache.DriverRedis:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("client: invalid config: cache.redis.addr is required for the redis driver")
		}
	case rescache.DriverNATS:
		if c.Cache.NATS.URL == "" {
			return fmt.Errorf("client: invalid config: cache.nats.url is required for the nats driver")
		}
	case rescache.DriverSQL:
		if c.Cache.SQL.Driver == "" || c.Cache.SQL.DSN == "" {
			return fmt.Errorf("client: invalid config: cache.sql.driver and cache.sql.dsn are required for the sql driver")
		}
	}
	return nil
}

// referenceBase picks the base of built references.
func (c Config) referenceBase() string {
	if c.Reference.Base != "" {
		return c.Reference.Base
	}
	if c.API.BaseURL != "" {
		if u, err := url.Parse(c.API.BaseURL); err == nil && u.Scheme != "" && u.Host != "" {
			return u.Scheme + "://" + u.Host
		}
	}
	return ""
}

func (c CacheConfig) storeConfig() rescache.StoreConfig {
	sc := rescache.StoreConfig{
		BaseConfig: rescache.BaseConfig{
			DefaultTTL:    c.EntryTTL,
			Prefix:        c.Prefix,
			Compression:   rescache.CompressionCodec(c.Compression),
			MaxValueBytes: c.MaxValueBytes,
		},
		Driver:         rescache.Driver(c.Driver),
		FileDir:        c.File.Dir,
		SQLDriverName:  c.SQL.Driver,
		SQLDSN:         c.SQL.DSN,
		SQLTable:       c.SQL.Table,
		DynamoEndpoint: c.Dynamo.Endpoint,
		DynamoRegion:   c.Dynamo.Region,
		DynamoTable:    c.Dynamo.Table,
		Memoize:        c.Memoize,
	}
	if c.EncryptionKey != "" {
		sc.EncryptionKey = []byte(c.EncryptionKey)
	}
	return sc
}
