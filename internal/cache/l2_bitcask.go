package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus"
	"lukechampine.com/blake3"
)

// ErrNotFound names the absent-or-expired case. BitcaskStore.Get does not
// return it: it reports that case as (nil, false, nil).
var ErrNotFound = errors.New("key not found")

var gzipMagicBytes = []byte{0x1f, 0x8b}

// BitcaskStore is the L2 cache's local-disk fallback mode, used when no
// L2URL is configured. It is the teacher's internal/database bitcask
// wrapper, generalized from "compressed value" to "compressed value with
// a TTL envelope" so it can serve as a cache rather than a permanent
// store: entries carry their own expiry and are treated as absent once
// it passes, the same contract the Redis-backed L2 gives callers via
// SET EX.
type BitcaskStore struct {
	db *bitcask.Bitcask
	mu sync.RWMutex
}

// OpenBitcaskStore initializes a BitcaskStore rooted at path, creating
// the containing directory if needed.
func OpenBitcaskStore(path string) (*BitcaskStore, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
		}
	}
	db, err := bitcask.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bitcask store at %s: %w", path, err)
	}
	log.WithField("path", path).Info("local L2 cache store opened")
	return &BitcaskStore{db: db}, nil
}

// Get returns (value, true, nil) on a live hit, (nil, false, nil) on a
// miss, expired entry or checksum mismatch, and a non-nil error only for
// I/O failures or an envelope too short to hold its header. ctx
// is accepted only to satisfy the l2Backend interface; bitcask access is
// local and never blocks on it.
func (s *BitcaskStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	raw, err := s.db.Get([]byte(key))
	s.mu.RUnlock()
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}

	expiresAt, checksum, payload, err := decodeEnvelope(raw)
	if err != nil {
		return nil, false, err
	}
	if time.Now().After(expiresAt) {
		_ = s.Delete(ctx, key)
		return nil, false, nil
	}
	if got := blake3.Sum256(payload); got != checksum {
		log.WithField("key", key).Warn("cache: blake3 checksum mismatch, discarding corrupted entry")
		_ = s.Delete(ctx, key)
		return nil, false, nil
	}
	value, err := decompressIfGzipped(payload)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set stores value under key with the given TTL, gzip-compressed the
// way the teacher's DB.Put always did. A blake3 checksum of the
// compressed payload rides along in the envelope, the same
// "verify against a second algorithm" idiom the teacher's CheckHash
// applies to downloaded files, here applied to cache blobs instead.
func (s *BitcaskStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	compressed, err := compressGzip(value)
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	checksum := blake3.Sum256(compressed)
	envelope := encodeEnvelope(time.Now().Add(ttl), checksum, compressed)

	s.mu.Lock()
	err = s.db.Put([]byte(key), envelope)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *BitcaskStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	err := s.db.Delete([]byte(key))
	s.mu.Unlock()
	if err != nil && !errors.Is(err, bitcask.ErrKeyNotFound) {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

// Keys returns every stored key matching prefix. Expired-but-not-yet-
// deleted entries are still listed; callers that care use Get to
// confirm liveness.
func (s *BitcaskStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.db.Keys() {
		if strings.HasPrefix(string(k), prefix) {
			keys = append(keys, string(k))
		}
	}
	return keys, nil
}

// Close releases the underlying bitcask handle.
func (s *BitcaskStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// --- envelope: 8-byte big-endian unix expiry + 32-byte blake3 checksum + payload ---

const envelopeHeaderLen = 8 + 32

func encodeEnvelope(expiresAt time.Time, checksum [32]byte, payload []byte) []byte {
	buf := make([]byte, envelopeHeaderLen+len(payload))
	binary.BigEndian.PutUint64(buf[:8], uint64(expiresAt.Unix()))
	copy(buf[8:40], checksum[:])
	copy(buf[40:], payload)
	return buf
}

func decodeEnvelope(raw []byte) (time.Time, [32]byte, []byte, error) {
	var checksum [32]byte
	if len(raw) < envelopeHeaderLen {
		return time.Time{}, checksum, nil, fmt.Errorf("cache envelope too short (%d bytes)", len(raw))
	}
	unix := binary.BigEndian.Uint64(raw[:8])
	copy(checksum[:], raw[8:40])
	return time.Unix(int64(unix), 0), checksum, raw[40:], nil
}

func decompressIfGzipped(value []byte) ([]byte, error) {
	if !bytes.HasPrefix(value, gzipMagicBytes) {
		return value, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(value))
	if err != nil {
		log.WithError(err).Warn("cache: gzip reader init failed, returning raw bytes")
		return value, nil
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		log.WithError(err).Warn("cache: gzip decompress failed, returning raw bytes")
		return value, nil
	}
	return out, nil
}

func compressGzip(value []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(value); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
