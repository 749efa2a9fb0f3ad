package statuspage

import (
	"sync"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
)

type cacheEntry struct {
	snapshot   *domain.StatusSnapshot
	generation uint64
	expiresAt  time.Time
}

// snapshotCache keeps the last good snapshot per slug. Expired entries stay
// available as a stale fallback until replaced or deleted.
type snapshotCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

func newSnapshotCache(ttl time.Duration) *snapshotCache {
	return &snapshotCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// get returns the snapshot and whether it is still fresh at now.
func (c *snapshotCache) get(slug string, now time.Time) (*domain.StatusSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[slug]
	if !ok {
		return nil, false
	}
	return e.snapshot, now.Before(e.expiresAt)
}

// set stores snapshot unless the cached entry came from a later
// generation. It reports whether the entry was stored.
func (c *snapshotCache) set(slug string, snapshot *domain.StatusSnapshot, generation uint64, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[slug]; ok && e.generation > generation {
		return false
	}
	c.entries[slug] = cacheEntry{snapshot: snapshot, generation: generation, expiresAt: now.Add(c.ttl)}
	return true
}

func (c *snapshotCache) delete(slug string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, slug)
}
