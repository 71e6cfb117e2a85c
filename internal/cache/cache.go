// Package cache implements C8: the two-level cache sitting in front of
// the pipeline's normalize stage. L1 is an in-process, hand-rolled
// LRU+TTL cache; L2 is durable and shared — Redis by default (spec.md
// §7 names it explicitly), or a local bitcask-backed store
// (l2_bitcask.go, adapted from the teacher's internal/database package)
// when no L2 URL is configured. A miss on both levels is the caller's
// signal to run the full pipeline and call Set.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dateapp/imgpipeline/internal/config"
)

const keyPrefix = "img:"

// l2Backend is satisfied by both RedisStore and BitcaskStore.
type l2Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Cache is the pipeline-facing handle combining both levels.
type Cache struct {
	l1    *l1Cache
	l2    l2Backend
	l2TTL time.Duration
}

// Stats reports point-in-time counts for the cache admin CLI.
type Stats struct {
	L1Entries int
	L1Bytes   int64
	L2Backend string
}

// New builds a Cache from pipeline configuration. When cfg.L2URL is set
// it is treated as a Redis address or redis:// URL; otherwise L2 falls
// back to a local bitcask store under localPath.
func New(cfg config.PipelineConfig, localPath string) (*Cache, error) {
	l1 := newL1Cache(cfg.L1MaxEntries, cfg.L1MaxBytes, cfg.L1TTL)

	var l2 l2Backend
	if cfg.L2URL != "" {
		store, err := NewRedisStore(cfg.L2URL)
		if err != nil {
			return nil, fmt.Errorf("cache: connecting to L2 redis: %w", err)
		}
		l2 = store
	} else {
		store, err := OpenBitcaskStore(localPath)
		if err != nil {
			return nil, fmt.Errorf("cache: opening local L2 store: %w", err)
		}
		l2 = store
	}

	return &Cache{l1: l1, l2: l2, l2TTL: cfg.L2TTL}, nil
}

// Key derives the cache key for a source URL: spec.md §7's
// "img:" + sha256(url)[:16].
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return keyPrefix + hex.EncodeToString(sum[:])[:16]
}

// Get checks L1 first, then L2. An L2 hit is promoted into L1 before
// returning so the next lookup for the same key is in-process.
func (c *Cache) Get(ctx context.Context, url string) ([]byte, bool, error) {
	v, ok, _, err := c.GetWithLevel(ctx, url)
	return v, ok, err
}

// GetWithLevel behaves like Get but also reports which level served the
// hit ("l1" or "l2"), so callers that instrument cache lookups by level
// (C10's cache_lookups_total) can tell an in-process hit from an
// L2-promoted one. level is empty on a miss.
func (c *Cache) GetWithLevel(ctx context.Context, url string) (value []byte, ok bool, level string, err error) {
	key := Key(url)

	if v, ok := c.l1.get(key); ok {
		return v, true, "l1", nil
	}

	v, ok, err := c.l2.Get(ctx, key)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("cache: L2 read failed, treating as miss")
		return nil, false, "", nil
	}
	if !ok {
		return nil, false, "", nil
	}
	c.l1.set(key, v)
	return v, true, "l2", nil
}

// Set writes through to both levels. An L2 failure is logged and dropped
// silently — the entry still lives in L1 for this process's lifetime.
func (c *Cache) Set(ctx context.Context, url string, value []byte) error {
	key := Key(url)
	c.l1.set(key, value)
	if err := c.l2.Set(ctx, key, value, c.l2TTL); err != nil {
		log.WithError(err).WithField("key", key).Warn("cache: L2 write failed, dropped")
		return nil
	}
	return nil
}

// Invalidate removes the cache entry for a single URL from both levels.
func (c *Cache) Invalidate(ctx context.Context, url string) error {
	key := Key(url)
	c.l1.delete(key)
	return c.l2.Delete(ctx, key)
}

// InvalidateAll clears every pipeline cache entry from both levels: L1
// directly, L2 by listing every "img:"-prefixed key (RedisStore.Keys via
// SCAN, BitcaskStore.Keys via its in-memory key iterator) and deleting
// each one. A failure to list L2 keys is returned; a failure to delete
// one already-listed key is logged and the sweep continues.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	c.l1.deletePrefix(keyPrefix)

	keys, err := c.l2.Keys(ctx, keyPrefix)
	if err != nil {
		return fmt.Errorf("cache: listing L2 keys for invalidation: %w", err)
	}
	for _, key := range keys {
		if err := c.l2.Delete(ctx, key); err != nil {
			log.WithError(err).WithField("key", key).Warn("cache: failed to delete L2 key during InvalidateAll")
		}
	}
	return nil
}

// Stats reports L1 occupancy for the cache admin CLI.
func (c *Cache) Stats() Stats {
	c.l1.mu.Lock()
	defer c.l1.mu.Unlock()
	backend := "bitcask"
	if _, ok := c.l2.(*RedisStore); ok {
		backend = "redis"
	}
	return Stats{
		L1Entries: c.l1.ll.Len(),
		L1Bytes:   c.l1.curBytes,
		L2Backend: backend,
	}
}

// Close releases the L2 backend's resources.
func (c *Cache) Close() error {
	return c.l2.Close()
}
