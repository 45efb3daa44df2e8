package rescache

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
	"time"
)

var (
	encryptionMagic = []byte("RCE1")

	ErrEncryptionKey = errors.New("rescache: encryption key must be 16, 24, or 32 bytes")
	ErrDecryptFailed = errors.New("rescache: decrypt failed")
)

// encryptingStore seals values with AES-GCM. Keys are left in the clear so
// prefix enumeration keeps working.
type encryptingStore struct {
	Store
	aead cipher.AEAD
}

func newEncryptingStore(inner Store, key []byte) (Store, error) {
	if len(key) == 0 {
		return inner, nil
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrEncryptionKey
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &encryptingStore{Store: inner, aead: aead}, nil
}

func (s *encryptingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	body, ok, err := s.Store.Get(ctx, key)
	if err != nil || !ok {
		return body, ok, err
	}
	plain, err := s.decrypt(body)
	if err != nil {
		return nil, false, err
	}
	return plain, true, nil
}

func (s *encryptingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	enc, err := s.encrypt(value)
	if err != nil {
		return err
	}
	return s.Store.Set(ctx, key, enc, ttl)
}

func (s *encryptingStore) encrypt(plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	ct := s.aead.Seal(nil, nonce, plain, nil)
	buf := make([]byte, 0, len(encryptionMagic)+1+len(nonce)+len(ct))
	buf = append(buf, encryptionMagic...)
	buf = append(buf, byte(len(nonce)))
	buf = append(buf, nonce...)
	return append(buf, ct...), nil
}

// decrypt passes through values written before encryption was enabled.
func (s *encryptingStore) decrypt(in []byte) ([]byte, error) {
	if len(in) < len(encryptionMagic)+1 || !bytes.Equal(in[:len(encryptionMagic)], encryptionMagic) {
		return in, nil
	}
	nonceLen := int(in[len(encryptionMagic)])
	offset := len(encryptionMagic) + 1
	if len(in) < offset+nonceLen {
		return nil, ErrDecryptFailed
	}
	plain, err := s.aead.Open(nil, in[offset:offset+nonceLen], in[offset+nonceLen:], nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plain, nil
}
