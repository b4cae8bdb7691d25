package cache

import (
	"strings"
	"sync"
	"time"
)

// Recorder receives hit and miss counts; *monitoring.Metrics satisfies it
type Recorder interface {
	IncrementCacheHit()
	IncrementCacheMiss()
}

// CacheItem represents a cached value with expiration
type CacheItem[V any] struct {
	Value     V
	ExpiresAt time.Time
}

func (c *CacheItem[V]) expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Cache provides thread-safe caching with TTL
type Cache[V any] struct {
	mu       sync.RWMutex
	items    map[string]*CacheItem[V]
	ttl      time.Duration
	recorder Recorder
	now      func() time.Time

	cleanupInterval time.Duration
	stop            chan struct{}
	stopOnce        sync.Once
}

// Option configures a Cache
type Option[V any] func(*Cache[V])

// WithRecorder reports hits and misses
func WithRecorder[V any](r Recorder) Option[V] {
	return func(c *Cache[V]) { c.recorder = r }
}

// WithCleanupInterval starts a goroutine that drops expired items every
// interval until Close is called
func WithCleanupInterval[V any](interval time.Duration) Option[V] {
	return func(c *Cache[V]) { c.cleanupInterval = interval }
}

// WithClock overrides time.Now
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) { c.now = now }
}

// NewCache creates a cache whose entries live for ttl
func NewCache[V any](ttl time.Duration, opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		items: make(map[string]*CacheItem[V]),
		ttl:   ttl,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cleanupInterval > 0 {
		go c.cleanup(c.cleanupInterval)
	}
	return c
}

func (c *Cache[V]) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Purge()
		}
	}
}

// Purge removes every expired item and returns how many were dropped
func (c *Cache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, item := range c.items {
		if item.expired(now) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Close stops the cleanup goroutine, if any
func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Get retrieves a live item from the cache
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	item, exists := c.items[key]
	c.mu.RUnlock()

	if !exists || item.expired(c.now()) {
		if exists {
			c.mu.Lock()
			if cur, ok := c.items[key]; ok && cur == item {
				delete(c.items, key)
			}
			c.mu.Unlock()
		}
		if c.recorder != nil {
			c.recorder.IncrementCacheMiss()
		}
		var zero V
		return zero, false
	}

	if c.recorder != nil {
		c.recorder.IncrementCacheHit()
	}
	return item.Value, true
}

// Set stores an item in the cache
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &CacheItem[V]{
		Value:     value,
		ExpiresAt: c.now().Add(c.ttl),
	}
}

// Delete removes an item from the cache
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// DeletePrefix removes every key starting with prefix
func (c *Cache[V]) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Clear removes all items from the cache
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*CacheItem[V])
}

// Size returns the number of items in the cache, expired or not
func (c *Cache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// Stats returns cache statistics
func (c *Cache[V]) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	totalItems := len(c.items)
	expiredItems := 0
	for _, item := range c.items {
		if item.expired(now) {
			expiredItems++
		}
	}

	return map[string]interface{}{
		"total_items":   totalItems,
		"expired_items": expiredItems,
		"active_items":  totalItems - expiredItems,
		"ttl_seconds":   c.ttl.Seconds(),
	}
}
