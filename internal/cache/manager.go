package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrCacheExists is returned when registering a name that is taken.
	ErrCacheExists = errors.New("cache already registered")

	// ErrTypeMismatch is returned by GetOrCreate when the named cache holds
	// a different value type.
	ErrTypeMismatch = errors.New("cache value type mismatch")
)

// Sweeper is the type-erased view of a cache that the Manager operates on.
type Sweeper interface {
	Name() string
	Size() int
	Stats() StatsSnapshot
	ResetStats()
	CleanupExpired() int
	Clear()
}

// Manager owns a set of named caches.
//
// Create one at startup, hand it to the components that need caches, and
// Close it on shutdown to stop the janitor.
type Manager struct {
	mu     sync.RWMutex
	caches map[string]Sweeper
	logger *zap.Logger

	janitorMu     sync.Mutex
	janitorCancel context.CancelFunc
	janitorDone   chan struct{}
}

// NewManager creates an empty manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		caches: make(map[string]Sweeper),
		logger: logger,
	}
}

// Register adds c under its name.
func (m *Manager) Register(c Sweeper) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.caches[c.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrCacheExists, c.Name())
	}
	m.caches[c.Name()] = c
	return nil
}

// Lookup returns the cache registered under name.
func (m *Manager) Lookup(name string) (Sweeper, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.caches[name]
	return c, ok
}

// GetOrCreate returns the cache registered under name, creating it with
// maxSize and ttl if it does not exist. Sizing arguments are ignored for an
// existing cache.
func GetOrCreate[V any](m *Manager, name string, maxSize int, ttl time.Duration) (*Cache[V], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.caches[name]; ok {
		c, ok := existing.(*Cache[V])
		if !ok {
			return nil, fmt.Errorf("%w: %s is %T", ErrTypeMismatch, name, existing)
		}
		return c, nil
	}

	c := New[V](name, maxSize, ttl, WithLogger(m.logger))
	m.caches[name] = c
	m.logger.Info("cache created",
		zap.String("cache", name),
		zap.Int("max_size", c.MaxSize()),
		zap.Duration("ttl", c.TTL()))
	return c, nil
}

// Names returns the registered cache names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.caches))
	for name := range m.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllStats returns a snapshot per cache, ordered by name.
func (m *Manager) AllStats() []StatsSnapshot {
	caches := m.sorted()
	stats := make([]StatsSnapshot, 0, len(caches))
	for _, c := range caches {
		stats = append(stats, c.Stats())
	}
	return stats
}

// CleanupAll sweeps expired entries from every cache and returns the count
// removed per cache.
func (m *Manager) CleanupAll() map[string]int {
	removed := make(map[string]int)
	for _, c := range m.sorted() {
		removed[c.Name()] = c.CleanupExpired()
	}
	return removed
}

// ClearAll empties every cache.
func (m *Manager) ClearAll() {
	for _, c := range m.sorted() {
		c.Clear()
	}
}

// ResetAllStats zeroes the counters of every cache.
func (m *Manager) ResetAllStats() {
	for _, c := range m.sorted() {
		c.ResetStats()
	}
}

// sorted copies the registered caches so that per-cache work runs without
// the manager lock held.
func (m *Manager) sorted() []Sweeper {
	m.mu.RLock()
	caches := make([]Sweeper, 0, len(m.caches))
	for _, c := range m.caches {
		caches = append(caches, c)
	}
	m.mu.RUnlock()

	sort.Slice(caches, func(i, j int) bool { return caches[i].Name() < caches[j].Name() })
	return caches
}

// StartJanitor sweeps expired entries every interval until ctx is cancelled
// or Close is called. Calling it while a janitor runs is a no-op.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	m.janitorMu.Lock()
	defer m.janitorMu.Unlock()
	if m.janitorCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.janitorCancel = cancel
	m.janitorDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for name, n := range m.CleanupAll() {
					if n > 0 {
						m.logger.Debug("expired cache entries removed",
							zap.String("cache", name),
							zap.Int("removed", n))
					}
				}
			}
		}
	}()
}

// Close stops the janitor and waits for it to exit. Caches stay usable.
func (m *Manager) Close() error {
	m.janitorMu.Lock()
	cancel, done := m.janitorCancel, m.janitorDone
	m.janitorCancel, m.janitorDone = nil, nil
	m.janitorMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}
