package cache

// Stats holds raw cache counters. Counters only grow until ResetStats.
type Stats struct {
	Hits            uint64
	Misses          uint64
	Evictions       uint64
	ExpiredRemovals uint64
}

// HitRatio returns Hits/(Hits+Misses), or 0 when there were no lookups.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// StatsSnapshot is a point-in-time view of a cache.
type StatsSnapshot struct {
	Name            string  `json:"name"`
	Size            int     `json:"size"`
	MaxSize         int     `json:"max_size"`
	HitRatio        float64 `json:"hit_ratio"`
	Hits            uint64  `json:"hits"`
	Misses          uint64  `json:"misses"`
	Evictions       uint64  `json:"evictions"`
	ExpiredRemovals uint64  `json:"expired_removals"`
	TTLSeconds      float64 `json:"ttl_seconds"`
	IsFull          bool    `json:"is_full"`
}

// Stats returns a snapshot of the cache counters and sizing.
func (c *Cache[V]) Stats() StatsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := c.lru.Len()
	return StatsSnapshot{
		Name:            c.name,
		Size:            size,
		MaxSize:         c.maxSize,
		HitRatio:        c.stats.HitRatio(),
		Hits:            c.stats.Hits,
		Misses:          c.stats.Misses,
		Evictions:       c.stats.Evictions,
		ExpiredRemovals: c.stats.ExpiredRemovals,
		TTLSeconds:      c.ttl.Seconds(),
		IsFull:          size >= c.maxSize,
	}
}

// ResetStats zeroes the counters.
func (c *Cache[V]) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = Stats{}
}
