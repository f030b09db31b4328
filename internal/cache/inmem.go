package cache

import (
	"context"
	"sync"
	"time"
)

// InMemoryCache is a Cache held in process memory with per-entry TTL.
// Expired entries are evicted lazily on read and by a periodic sweep.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[string]inmemEntry
	ttl     time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

type inmemEntry struct {
	payload   []byte
	expiresAt time.Time
}

// NewInMemoryCache creates an in-memory cache. A non-positive ttl means
// entries never expire.
func NewInMemoryCache(ttl time.Duration) *InMemoryCache {
	c := &InMemoryCache{
		entries: make(map[string]inmemEntry),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	if ttl > 0 {
		go c.sweep()
	}
	return c
}

// Get implements Cache.
func (c *InMemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, ErrMiss
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, ErrMiss
	}

	out := make([]byte, len(entry.payload))
	copy(out, entry.payload)
	return out, nil
}

// Set implements Cache.
func (c *InMemoryCache) Set(ctx context.Context, key string, payload []byte) error {
	stored := make([]byte, len(payload))
	copy(stored, payload)

	entry := inmemEntry{payload: stored}
	if c.ttl > 0 {
		entry.expiresAt = time.Now().Add(c.ttl)
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}

// Close stops the background sweep.
func (c *InMemoryCache) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *InMemoryCache) sweep() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for key, entry := range c.entries {
				if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

var _ Cache = (*InMemoryCache)(nil)
