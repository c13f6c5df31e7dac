package cache

import (
	"context"
	"sync"
	"time"

	"github.com/framefold/canvas/common/logger"
)

// Cache is a best-effort byte cache. A miss is (nil, false, nil); errors are
// reserved for backends that can actually fail.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Rendered media dominates what gets cached, so the budget is counted in
// bytes rather than entries.
const defaultBudget = 256 << 20

// maxEntryBytes keeps a single oversized blob from flushing everything else.
const maxEntryBytes = defaultBudget / 4

// MemoryCache holds blob bytes in memory under a byte budget. When the budget
// is exceeded the least recently read entries are dropped first.
type MemoryCache struct {
	mu     sync.Mutex
	data   map[string]*entry
	bytes  int
	budget int
	log    *logger.Logger
	stop   chan struct{}
	once   sync.Once
}

type entry struct {
	value     []byte
	expiresAt time.Time
	readAt    time.Time
}

// NewMemoryCache creates a memory cache with the default byte budget and
// starts its expiry sweeper.
func NewMemoryCache(log *logger.Logger) *MemoryCache {
	c := &MemoryCache{
		data:   make(map[string]*entry),
		budget: defaultBudget,
		log:    log,
		stop:   make(chan struct{}),
	}

	go c.sweep()

	return c
}

// Get returns the cached value for key, or a miss if absent or expired.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false, nil
	}

	e.readAt = time.Now()
	return e.value, true, nil
}

// Set stores value under key for ttl. Values too large to cache sensibly are
// skipped; the caller still has the bytes it was about to cache.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if len(value) > maxEntryBytes {
		c.log.Debug("skipping cache for oversized value", "key", key, "bytes", len(value))
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if old, ok := c.data[key]; ok {
		c.bytes -= len(old.value)
	}
	c.data[key] = &entry{
		value:     value,
		expiresAt: now.Add(ttl),
		readAt:    now,
	}
	c.bytes += len(value)

	c.evictOverBudget()
	return nil
}

// Delete removes key from the cache.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.data[key]; ok {
		c.bytes -= len(e.value)
		delete(c.data, key)
	}
	return nil
}

// Close stops the sweeper and releases all entries.
func (c *MemoryCache) Close() error {
	c.once.Do(func() {
		close(c.stop)

		c.mu.Lock()
		c.data = make(map[string]*entry)
		c.bytes = 0
		c.mu.Unlock()

		c.log.Info("memory cache closed")
	})
	return nil
}

// evictOverBudget drops least recently read entries until the byte budget is
// met again. Called with the lock held.
func (c *MemoryCache) evictOverBudget() {
	for c.bytes > c.budget {
		var (
			oldestKey string
			oldest    time.Time
		)
		for key, e := range c.data {
			if oldestKey == "" || e.readAt.Before(oldest) {
				oldestKey = key
				oldest = e.readAt
			}
		}
		if oldestKey == "" {
			return
		}
		c.bytes -= len(c.data[oldestKey].value)
		delete(c.data, oldestKey)
	}
}

// sweep drops expired entries once a minute so TTLs reclaim memory even for
// keys nobody reads again.
func (c *MemoryCache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, e := range c.data {
				if now.After(e.expiresAt) {
					c.bytes -= len(e.value)
					delete(c.data, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
