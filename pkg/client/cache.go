package client

import (
	"sync"
	"time"
)

// handleCache is a bounded TTL cache of path-to-handle mappings. The
// export is read-only so entries only ever go stale when the server
// restarts, which the TTL bounds and a stale-handle reply corrects.
type handleCache struct {
	mu sync.Mutex

	// Maximum number of entries in the cache
	maxSize int

	// Time-to-live for cache entries
	ttl time.Duration

	entries map[string]handleCacheEntry
}

// handleCacheEntry represents a cached file handle with expiration time
type handleCacheEntry struct {
	handle  []byte
	expires time.Time
}

// newHandleCache creates a new file handle cache
func newHandleCache(maxSize int, ttl time.Duration) *handleCache {
	return &handleCache{
		maxSize: maxSize,
		ttl:     ttl,
		entries: make(map[string]handleCacheEntry),
	}
}

// get retrieves a file handle for a path from the cache.
func (c *handleCache) get(path string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[path]
	if !ok {
		return nil, false
	}
	if time.Now().After(ent.expires) {
		delete(c.entries, path)
		return nil, false
	}
	return ent.handle, true
}

// put stores a path-to-handle mapping in the cache.
func (c *handleCache) put(path string, handle []byte) {
	if c.maxSize <= 0 || c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.evictLocked()
	}
	c.entries[path] = handleCacheEntry{
		handle:  handle,
		expires: time.Now().Add(c.ttl),
	}
}

// evictLocked makes room: expired entries first, then the entry closest
// to expiry.
func (c *handleCache) evictLocked() {
	now := time.Now()
	var oldestKey string
	var oldest time.Time
	for k, ent := range c.entries {
		if now.After(ent.expires) {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || ent.expires.Before(oldest) {
			oldestKey = k
			oldest = ent.expires
		}
	}
	if len(c.entries) >= c.maxSize && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// invalidate drops one path from the cache.
func (c *handleCache) invalidate(path string) {
	c.mu.Lock()
	delete(c.entries, path)
	c.mu.Unlock()
}

// clear drops every cached entry.
func (c *handleCache) clear() {
	c.mu.Lock()
	c.entries = make(map[string]handleCacheEntry)
	c.mu.Unlock()
}

// setTTL changes the time-to-live applied to new entries.
func (c *handleCache) setTTL(ttl time.Duration) {
	c.mu.Lock()
	c.ttl = ttl
	c.mu.Unlock()
}

// len reports the current number of entries.
func (c *handleCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
