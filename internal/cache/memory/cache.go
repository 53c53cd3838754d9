// Package memory provides the in-process TTL result cache.
package memory

import (
	"sync"
	"time"

	"github.com/JakeFAU/websearch-crawler/internal/crawler"
)

type entry struct {
	response  crawler.Response
	expiresAt time.Time
}

// Cache stores search responses keyed by query text. Expired entries are
// evicted lazily on read; there is no background sweeper.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// Option customises a Cache.
type Option func(*Cache)

// WithNow overrides the time source.
func WithNow(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New constructs an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a copy of the cached response for key if it has not expired.
func (c *Cache) Get(key string) (crawler.Response, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return crawler.Response{}, false
	}
	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Put may have refreshed it.
		if cur, still := c.entries[key]; still && !c.now().Before(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return crawler.Response{}, false
	}
	return e.response.Clone(), true
}

// Put stores a copy of resp under key for ttl. Non-positive TTLs are ignored.
func (c *Cache) Put(key string, resp crawler.Response, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	stored := resp.Clone()
	if stored.Results == nil {
		stored.Results = []crawler.Result{}
	}
	c.mu.Lock()
	c.entries[key] = entry{response: stored, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Len reports the number of stored entries, including expired ones not yet
// read.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var _ crawler.ResultCache = (*Cache)(nil)
