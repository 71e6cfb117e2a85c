package cache

import (
	"container/list"
	"sync"
	"time"
)

// l1Entry is one in-process cache slot: the value plus its absolute
// expiry and the byte accounting used for the size cap.
type l1Entry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// l1Cache is a hand-rolled LRU with both an entry-count cap and a
// total-byte cap, whichever is hit first evicts. No library in the
// retrieval pack combines TTL with a dual count/byte cap in one
// structure (hashicorp/golang-lru caps only by count), so this is
// built directly against spec.md §7's L1 definition rather than wrapped
// around a library that only covers part of it.
type l1Cache struct {
	mu         sync.Mutex
	maxEntries int
	maxBytes   int64
	ttl        time.Duration
	curBytes   int64
	ll         *list.List
	items      map[string]*list.Element
}

func newL1Cache(maxEntries int, maxBytes int64, ttl time.Duration) *l1Cache {
	return &l1Cache{
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		ttl:        ttl,
		ll:         list.New(),
		items:      make(map[string]*list.Element),
	}
}

// get returns (value, true) on a live hit. An expired entry is evicted
// immediately and reported as a miss.
func (c *l1Cache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*l1Entry)
	if time.Now().After(entry.expiresAt) {
		c.removeElement(el)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return entry.value, true
}

// set inserts or updates key, evicting least-recently-used entries
// until both caps are satisfied.
func (c *l1Cache) set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		old := el.Value.(*l1Entry)
		c.curBytes -= int64(len(old.value))
		old.value = value
		old.expiresAt = time.Now().Add(c.ttl)
		c.curBytes += int64(len(value))
		c.ll.MoveToFront(el)
		c.evictOverCap()
		return
	}

	entry := &l1Entry{key: key, value: value, expiresAt: time.Now().Add(c.ttl)}
	el := c.ll.PushFront(entry)
	c.items[key] = el
	c.curBytes += int64(len(value))
	c.evictOverCap()
}

// delete removes key if present.
func (c *l1Cache) delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// deletePrefix removes every key with the given prefix, used for
// invalidation by URL-derived key families.
func (c *l1Cache) deletePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, el := range c.items {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			c.removeElement(el)
		}
	}
}

func (c *l1Cache) evictOverCap() {
	for (c.maxEntries > 0 && c.ll.Len() > c.maxEntries) || (c.maxBytes > 0 && c.curBytes > c.maxBytes) {
		oldest := c.ll.Back()
		if oldest == nil {
			return
		}
		c.removeElement(oldest)
	}
}

func (c *l1Cache) removeElement(el *list.Element) {
	entry := el.Value.(*l1Entry)
	c.ll.Remove(el)
	delete(c.items, entry.key)
	c.curBytes -= int64(len(entry.value))
}
