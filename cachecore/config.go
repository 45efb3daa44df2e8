package cachecore

import "time"

// BaseConfig contains shared, backend-agnostic store configuration.
type BaseConfig struct {
	// DefaultTTL bounds how long an entry survives in the backend once written.
	DefaultTTL    time.Duration
	Prefix        string
	Compression   CompressionCodec
	MaxValueBytes int
	EncryptionKey []byte
}
