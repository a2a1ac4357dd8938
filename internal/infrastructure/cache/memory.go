package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/avatarctic/replaycache/internal/core/ports"
)

// MemoryCache is a process-local ports.CacheStore. Entries expire lazily: an expired
// entry is dropped by the Get or List call that observes it.
type MemoryCache struct {
	mu         sync.Mutex
	namespaces map[string]map[string]*memoryEntry
	now        Clock
}

type memoryEntry struct {
	value []byte
	// zero means no expiry
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache(opts ...Option) *MemoryCache {
	o := buildOptions(opts)
	return &MemoryCache{
		namespaces: make(map[string]map[string]*memoryEntry),
		now:        o.now,
	}
}

// Get implements ports.CacheStore.
func (c *MemoryCache) Get(_ context.Context, namespace, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, ok := c.namespaces[namespace]
	if !ok {
		return nil, false
	}
	e, ok := entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(c.now()) {
		delete(entries, key)
		return nil, false
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true
}

// Set implements ports.CacheStore.
func (c *MemoryCache) Set(_ context.Context, namespace, key string, value []byte, ttl time.Duration) bool {
	stored := make([]byte, len(value))
	copy(stored, value)

	e := &memoryEntry{value: stored}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	entries, ok := c.namespaces[namespace]
	if !ok {
		entries = make(map[string]*memoryEntry)
		c.namespaces[namespace] = entries
	}
	entries[key] = e
	return true
}

// Delete implements ports.CacheStore.
func (c *MemoryCache) Delete(_ context.Context, namespace, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entries, ok := c.namespaces[namespace]; ok {
		delete(entries, key)
	}
	return true
}

// List implements ports.CacheStore. Expired entries met during the walk are evicted.
func (c *MemoryCache) List(_ context.Context, namespace, prefix string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, ok := c.namespaces[namespace]
	if !ok {
		return []string{}
	}
	now := c.now()
	keys := make([]string, 0, len(entries))
	for k, e := range entries {
		if e.expired(now) {
			delete(entries, k)
			continue
		}
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Clear implements ports.CacheStore.
func (c *MemoryCache) Clear(_ context.Context, namespace string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.namespaces, namespace)
	return true
}

// Stats implements ports.StatsReporter.
func (c *MemoryCache) Stats(_ context.Context) map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	sizes := make(map[string]int, len(c.namespaces))
	total := 0
	for ns, entries := range c.namespaces {
		sizes[ns] = len(entries)
		total += len(entries)
	}
	return map[string]any{
		"namespaces": sizes,
		"entries":    total,
	}
}

var (
	_ ports.CacheStore    = (*MemoryCache)(nil)
	_ ports.StatsReporter = (*MemoryCache)(nil)
)
