package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// fakeL2 is an in-memory stand-in for Redis/bitcask so Cache's promotion
// and write-through logic can be tested without a real backend.
type fakeL2 struct {
	data     map[string][]byte
	gets     int
	closed   bool
	failGet  bool
	failKeys bool
}

func newFakeL2() *fakeL2 {
	return &fakeL2{data: make(map[string][]byte)}
}

func (f *fakeL2) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.gets++
	if f.failGet {
		return nil, false, errors.New("boom")
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeL2) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.data[key] = value
	return nil
}

func (f *fakeL2) Delete(_ context.Context, key string) error {
	delete(f.data, key)
	return nil
}

func (f *fakeL2) Keys(_ context.Context, prefix string) ([]string, error) {
	if f.failKeys {
		return nil, errors.New("boom")
	}
	var keys []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeL2) Close() error {
	f.closed = true
	return nil
}

func newTestCache(l2 l2Backend) *Cache {
	return &Cache{
		l1:    newL1Cache(100, 0, time.Minute),
		l2:    l2,
		l2TTL: time.Hour,
	}
}

func TestCacheSetThenGetHitsL1WithoutTouchingL2Again(t *testing.T) {
	l2 := newFakeL2()
	c := newTestCache(l2)
	ctx := context.Background()

	if err := c.Set(ctx, "https://example.com/a.jpg", []byte("payload")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l2.gets = 0

	v, ok, err := c.Get(ctx, "https://example.com/a.jpg")
	if err != nil || !ok || string(v) != "payload" {
		t.Fatalf("expected L1 hit with 'payload', got %q ok=%v err=%v", v, ok, err)
	}
	if l2.gets != 0 {
		t.Errorf("expected L1 hit to skip L2 entirely, L2.Get was called %d times", l2.gets)
	}
}

func TestCacheGetPromotesL2HitIntoL1(t *testing.T) {
	l2 := newFakeL2()
	c := newTestCache(l2)
	ctx := context.Background()
	key := Key("https://example.com/b.jpg")
	l2.data[key] = []byte("from-l2")

	v, ok, err := c.Get(ctx, "https://example.com/b.jpg")
	if err != nil || !ok || string(v) != "from-l2" {
		t.Fatalf("expected L2 hit with 'from-l2', got %q ok=%v err=%v", v, ok, err)
	}

	l2.gets = 0
	v2, ok2, _ := c.Get(ctx, "https://example.com/b.jpg")
	if !ok2 || string(v2) != "from-l2" {
		t.Fatalf("expected promoted entry to hit on the next lookup")
	}
	if l2.gets != 0 {
		t.Error("expected the second Get to be served entirely from L1 after promotion")
	}
}

func TestCacheGetWithLevelReportsL1ThenL2(t *testing.T) {
	l2 := newFakeL2()
	c := newTestCache(l2)
	ctx := context.Background()

	if err := c.Set(ctx, "https://example.com/a.jpg", []byte("payload")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, level, err := c.GetWithLevel(ctx, "https://example.com/a.jpg"); err != nil || level != "l1" {
		t.Fatalf("expected level=l1 after Set populated L1, got level=%q err=%v", level, err)
	}

	key := Key("https://example.com/b.jpg")
	l2.data[key] = []byte("from-l2")
	if _, _, level, err := c.GetWithLevel(ctx, "https://example.com/b.jpg"); err != nil || level != "l2" {
		t.Fatalf("expected level=l2 on an L2-only hit, got level=%q err=%v", level, err)
	}
	if _, _, level, err := c.GetWithLevel(ctx, "https://example.com/b.jpg"); err != nil || level != "l1" {
		t.Fatalf("expected the promoted entry to report level=l1 on the next lookup, got level=%q err=%v", level, err)
	}
}

func TestCacheGetMissOnBothLevels(t *testing.T) {
	c := newTestCache(newFakeL2())
	_, ok, err := c.Get(context.Background(), "https://example.com/missing.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected a miss when the key is absent from both levels")
	}
}

func TestCacheGetTreatsL2ErrorAsMiss(t *testing.T) {
	l2 := newFakeL2()
	l2.failGet = true
	c := newTestCache(l2)
	_, ok, err := c.Get(context.Background(), "https://example.com/x.jpg")
	if err != nil {
		t.Fatalf("L2 failures must be non-fatal, got error: %v", err)
	}
	if ok {
		t.Error("expected a miss when L2 fails")
	}
}

func TestCacheInvalidateRemovesFromBothLevels(t *testing.T) {
	l2 := newFakeL2()
	c := newTestCache(l2)
	ctx := context.Background()
	url := "https://example.com/c.jpg"

	if err := c.Set(ctx, url, []byte("payload")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Invalidate(ctx, url); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok, _ := c.Get(ctx, url); ok {
		t.Error("expected the entry to be gone from L1 after invalidation")
	}
	if _, present := l2.data[Key(url)]; present {
		t.Error("expected the entry to be gone from L2 after invalidation")
	}
}

func TestCacheInvalidateAllClearsBothLevels(t *testing.T) {
	l2 := newFakeL2()
	c := newTestCache(l2)
	ctx := context.Background()
	url := "https://example.com/d.jpg"
	if err := c.Set(ctx, url, []byte("payload")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := c.InvalidateAll(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := c.l1.get(Key(url)); ok {
		t.Error("expected L1 entry cleared by InvalidateAll")
	}
	if _, present := l2.data[Key(url)]; present {
		t.Error("expected L2 entry cleared by InvalidateAll")
	}
}

func TestCacheInvalidateAllPropagatesL2ListError(t *testing.T) {
	l2 := newFakeL2()
	c := newTestCache(l2)
	l2.failKeys = true

	if err := c.InvalidateAll(context.Background()); err == nil {
		t.Fatal("expected an error when L2 key listing fails")
	}
}

func TestCacheStatsReportsL1Occupancy(t *testing.T) {
	c := newTestCache(newFakeL2())
	ctx := context.Background()
	_ = c.Set(ctx, "https://example.com/e.jpg", []byte("12345"))

	stats := c.Stats()
	if stats.L1Entries != 1 {
		t.Errorf("L1Entries = %d, want 1", stats.L1Entries)
	}
	if stats.L1Bytes != 5 {
		t.Errorf("L1Bytes = %d, want 5", stats.L1Bytes)
	}
	if stats.L2Backend != "bitcask" {
		t.Errorf("L2Backend = %q, want 'bitcask' for a non-Redis backend", stats.L2Backend)
	}
}

func TestCacheCloseClosesL2(t *testing.T) {
	l2 := newFakeL2()
	c := newTestCache(l2)
	if err := c.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !l2.closed {
		t.Error("expected Close to close the L2 backend")
	}
}

func TestKeyIsStableAndPrefixed(t *testing.T) {
	k1 := Key("https://example.com/a.jpg")
	k2 := Key("https://example.com/a.jpg")
	k3 := Key("https://example.com/b.jpg")
	if k1 != k2 {
		t.Error("Key must be deterministic for the same URL")
	}
	if k1 == k3 {
		t.Error("different URLs must not collide")
	}
	if len(k1) != len(keyPrefix)+16 {
		t.Errorf("key length = %d, want prefix + 16 hex chars", len(k1))
	}
}
