package rescache

import "github.com/goforj/rescache/cachecore"

// Driver identifies a store backend.
type Driver = cachecore.Driver

const (
	DriverNull   = cachecore.DriverNull
	DriverFile   = cachecore.DriverFile
	DriverMemory = cachecore.DriverMemory
	DriverDynamo = cachecore.DriverDynamo
	DriverSQL    = cachecore.DriverSQL
	DriverRedis  = cachecore.DriverRedis
	DriverNATS   = cachecore.DriverNATS
)

// Store is the byte-level backend the query cache keeps entries in.
type Store = cachecore.Store
