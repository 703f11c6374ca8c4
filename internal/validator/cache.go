package validator

import (
	"container/list"
	"sync"
	"time"
)

// decisionCache is a small LRU with per-entry expiry. Size and TTL are both
// hard bounds: inserting into a full cache evicts the least recently used
// entry, and reads past the TTL miss.
type decisionCache struct {
	mu      sync.Mutex
	size    int
	ttl     time.Duration
	entries map[cacheKey]*list.Element
	order   *list.List // front = most recently used
	now     func() time.Time
}

type cacheEntry struct {
	key     cacheKey
	val     decision
	expires time.Time
}

func newDecisionCache(size int, ttl time.Duration) *decisionCache {
	return &decisionCache{
		size:    size,
		ttl:     ttl,
		entries: make(map[cacheKey]*list.Element, size),
		order:   list.New(),
		now:     time.Now,
	}
}

func (c *decisionCache) get(key cacheKey) (decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return decision{}, false
	}
	ent := el.Value.(*cacheEntry)
	if c.now().After(ent.expires) {
		c.order.Remove(el)
		delete(c.entries, key)
		return decision{}, false
	}
	c.order.MoveToFront(el)
	return ent.val, true
}

func (c *decisionCache) put(key cacheKey, val decision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		ent := el.Value.(*cacheEntry)
		ent.val = val
		ent.expires = c.now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}
	if c.order.Len() >= c.size {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
	ent := &cacheEntry{key: key, val: val, expires: c.now().Add(c.ttl)}
	c.entries[key] = c.order.PushFront(ent)
}

func (c *decisionCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
