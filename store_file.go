package rescache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	createTempFile = os.CreateTemp
	renameFile     = os.Rename
)

// File records are: magic, expiry (unix nanos), key length, key, value.
var fileRecordMagic = []byte("RFR1")

const fileHeaderLen = 4 + 8 + 4

var errCorruptFileRecord = errors.New("rescache: corrupt file record")

type fileStore struct {
	dir        string
	defaultTTL time.Duration
}

func newFileStore(dir string, defaultTTL time.Duration) Store {
	if dir == "" {
		dir = defaultFileDir()
	}
	if defaultTTL <= 0 {
		defaultTTL = defaultCacheTTL
	}
	_ = os.MkdirAll(dir, 0o755)
	return &fileStore{
		dir:        dir,
		defaultTTL: defaultTTL,
	}
}

func (s *fileStore) Driver() Driver {
	return DriverFile
}

func (s *fileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	path := s.path(key)
	_, value, ok, err := s.read(path)
	if err != nil || !ok {
		return nil, false, err
	}
	return value, true, nil
}

// read loads a record, removing it when expired or unreadable.
func (s *fileStore) read(path string) (string, []byte, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, false, nil
		}
		return "", nil, false, err
	}

	expiresAt, key, value, err := decodeFileRecord(data)
	if err != nil {
		_ = os.Remove(path)
		return "", nil, false, err
	}

	if expiresAt > 0 && time.Now().UnixNano() > expiresAt {
		_ = os.Remove(path)
		return "", nil, false, nil
	}

	return key, value, true, nil
}

func (s *fileStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	expiresAt := time.Now().Add(ttl).UnixNano()

	tmp, err := createTempFile(s.dir, "entry-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(encodeFileRecord(expiresAt, key, value)); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return renameFile(tmpPath, s.path(key))
}

func (s *fileStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) DeleteMany(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Keys scans every record in the directory. Expired and corrupt records are
// removed as a side effect.
func (s *fileStore) Keys(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var keys []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".entry") {
			continue
		}
		key, _, ok, err := s.read(filepath.Join(s.dir, entry.Name()))
		if err != nil || !ok {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *fileStore) Flush(_ context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		_ = os.Remove(filepath.Join(s.dir, entry.Name()))
	}
	return nil
}

func (s *fileStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(s.dir, name+".entry")
}

func encodeFileRecord(expiresAt int64, key string, value []byte) []byte {
	buf := make([]byte, fileHeaderLen, fileHeaderLen+len(key)+len(value))
	copy(buf[:4], fileRecordMagic)
	binary.BigEndian.PutUint64(buf[4:12], uint64(expiresAt))
	binary.BigEndian.PutUint32(buf[12:16], uint32(len(key)))
	buf = append(buf, key...)
	return append(buf, value...)
}

func decodeFileRecord(data []byte) (int64, string, []byte, error) {
	if len(data) < fileHeaderLen || !bytes.Equal(data[:4], fileRecordMagic) {
		return 0, "", nil, errCorruptFileRecord
	}
	expiresAt := int64(binary.BigEndian.Uint64(data[4:12]))
	keyLen := int(binary.BigEndian.Uint32(data[12:16]))
	if len(data) < fileHeaderLen+keyLen {
		return 0, "", nil, errCorruptFileRecord
	}
	key := string(data[fileHeaderLen : fileHeaderLen+keyLen])
	return expiresAt, key, data[fileHeaderLen+keyLen:], nil
}
