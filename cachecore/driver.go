package cachecore

// Driver identifies a store backend.
type Driver string

const (
	DriverNull   Driver = "null"
	DriverFile   Driver = "file"
	DriverMemory Driver = "memory"
	DriverDynamo Driver = "dynamodb"
	DriverSQL    Driver = "sql"
	DriverRedis  Driver = "redis"
	DriverNATS   Driver = "nats"
)

// Valid reports whether d names a known backend.
func (d Driver) Valid() bool {
	switch d {
	case DriverNull, DriverFile, DriverMemory, DriverDynamo, DriverSQL, DriverRedis, DriverNATS:
		return true
	}
	return false
}
