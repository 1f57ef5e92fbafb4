// Package cache provides bounded in-memory caches with LRU eviction, per-entry
// TTL and hit/miss statistics, plus a Manager that owns named caches.
//
// Example usage:
//
//	m := cache.NewManager(logger)
//	llmCache, err := cache.GetOrCreate[string](m, "llm", 1000, time.Hour)
//	llmCache.Set(key, response)
//	resp, ok := llmCache.Get(key)
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.uber.org/zap"
)

const (
	// DefaultMaxSize is used when a cache is created with maxSize <= 0.
	DefaultMaxSize = 1000

	// MaxAllowedSize caps maxSize to keep a misconfiguration from
	// allocating without bound.
	MaxAllowedSize = 1_000_000

	// DefaultTTL is used when a cache is created with ttl <= 0.
	// Entries always expire.
	DefaultTTL = 3600 * time.Second
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a thread-safe bounded cache with LRU eviction and TTL expiry.
//
// Every operation holds the cache's single mutex for its whole duration.
// Reads police freshness themselves; CleanupExpired only reclaims memory.
type Cache[V any] struct {
	name    string
	maxSize int
	ttl     time.Duration

	mu    sync.Mutex
	lru   *simplelru.LRU[string, entry[V]]
	stats Stats

	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	logger *zap.Logger
	now    func() time.Time
}

// WithLogger sets the logger used for clamping warnings and clear events.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates a cache holding at most maxSize entries that expire ttl after
// they were last set.
//
// maxSize <= 0 selects DefaultMaxSize and values above MaxAllowedSize are
// clamped. ttl <= 0 selects DefaultTTL.
func New[V any](name string, maxSize int, ttl time.Duration, opts ...Option) *Cache[V] {
	o := &options{
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if maxSize > MaxAllowedSize {
		o.logger.Warn("cache max size clamped",
			zap.String("cache", name),
			zap.Int("requested", maxSize),
			zap.Int("max_allowed", MaxAllowedSize))
		maxSize = MaxAllowedSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	// NewLRU only fails for non-positive sizes, which were ruled out above.
	lru, _ := simplelru.NewLRU[string, entry[V]](maxSize, nil)

	return &Cache[V]{
		name:    name,
		maxSize: maxSize,
		ttl:     ttl,
		lru:     lru,
		now:     o.now,
		logger:  o.logger.With(zap.String("cache", name)),
	}
}

// Get returns the value for key if present and not expired, marking it most
// recently used. Expired entries are removed and counted as misses.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.lru.Peek(key)
	if !ok {
		c.stats.Misses++
		return zero, false
	}

	if c.now().After(e.expiresAt) {
		c.lru.Remove(key)
		c.stats.Misses++
		c.stats.ExpiredRemovals++
		return zero, false
	}

	// Promote to MRU.
	c.lru.Get(key)
	c.stats.Hits++
	return e.value, true
}

// Set stores value under key, replacing any previous value and resetting
// its expiry. The least recently used entry is evicted when the cache is full.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
	if evicted := c.lru.Add(key, e); evicted {
		c.stats.Evictions++
	}
}

// Delete removes key and reports whether it was present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(key)
}

// Clear removes every entry. Statistics are kept.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.lru.Len()
	c.lru.Purge()
	c.logger.Debug("cache cleared", zap.Int("entries", n))
}

// CleanupExpired removes every expired entry and returns how many were removed.
func (c *Cache[V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if ok && e.expiresAt.Before(now) {
			c.lru.Remove(key)
			removed++
		}
	}
	c.stats.ExpiredRemovals += uint64(removed)
	return removed
}

// GetOrLoad returns the cached value for key or calls loader and caches its
// result. The loader runs without the cache lock held, so concurrent misses
// for the same key may each call it. Loader errors are returned and not cached.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, loader func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := loader(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(key, v)
	return v, nil
}

// Size returns the number of entries, including expired ones not yet swept.
func (c *Cache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// IsFull reports whether the next insert of a new key would evict.
func (c *Cache[V]) IsFull() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len() >= c.maxSize
}

// MaxSize returns the effective capacity.
func (c *Cache[V]) MaxSize() int { return c.maxSize }

// TTL returns the effective entry lifetime.
func (c *Cache[V]) TTL() time.Duration { return c.ttl }

// Name returns the cache name.
func (c *Cache[V]) Name() string { return c.name }
