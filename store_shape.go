package rescache

import (
	"context"
	"time"
)

// shapingStore applies compression and size limits on top of any Store.
type shapingStore struct {
	Store
	codec CompressionCodec
	max   int
}

func newShapingStore(inner Store, codec CompressionCodec, max int) Store {
	if (codec == CompressionNone || codec == "") && max <= 0 {
		return inner
	}
	return &shapingStore{Store: inner, codec: codec, max: max}
}

func (s *shapingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	body, ok, err := s.Store.Get(ctx, key)
	if err != nil || !ok {
		return body, ok, err
	}
	decoded, err := decodeValue(body)
	if err != nil {
		return nil, false, err
	}
	return decoded, true, nil
}

func (s *shapingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	encoded, err := encodeValue(s.codec, s.max, value)
	if err != nil {
		return err
	}
	return s.Store.Set(ctx, key, encoded, ttl)
}
