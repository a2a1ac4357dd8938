package cache

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/avatarctic/replaycache/internal/core/ports"
)

// Entry and index keys live in disjoint key spaces of the underlying store.
const (
	entryKeyPrefix = "e:"
	indexKeyPrefix = "i:"
)

type durableEnvelope struct {
	Value     []byte     `json:"value"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// DurableCache implements ports.CacheStore over a ports.KeyValueStore that can only
// get and put single keys. Each namespace keeps a secondary index of its keys, updated
// on every Set and Delete. The index is pruned of missing or expired keys only when
// List walks it; out-of-band deletions stay visible in the index until then.
//
// Entries are stored under e:<len>:<namespace>:<key> and indexes under i:<len>:<namespace>.
type DurableCache struct {
	store  ports.KeyValueStore
	logger *logrus.Logger
	now    Clock

	// serializes index read-modify-write cycles inside this process
	mu sync.Mutex
}

// NewDurableCache wraps store as a namespaced cache.
func NewDurableCache(store ports.KeyValueStore, logger *logrus.Logger, opts ...Option) *DurableCache {
	o := buildOptions(opts)
	return &DurableCache{store: store, logger: logger, now: o.now}
}

func storageKey(namespace, key string) string {
	return entryKeyPrefix + EncodeNamespace(namespace) + ":" + key
}

func indexKey(namespace string) string {
	return indexKeyPrefix + EncodeNamespace(namespace)
}

// Get implements ports.CacheStore. An expired value is removed from the store; its
// index entry stays until the next List.
func (c *DurableCache) Get(ctx context.Context, namespace, key string) ([]byte, bool) {
	env, ok := c.load(ctx, namespace, key)
	if !ok {
		return nil, false
	}
	if c.expired(env) {
		c.removeExpired(ctx, namespace, key)
		return nil, false
	}
	return env.Value, true
}

func (c *DurableCache) expired(env *durableEnvelope) bool {
	return env.ExpiresAt != nil && !c.now().Before(*env.ExpiresAt)
}

// removeExpired deletes the value if it is still expired once the lock is held, so a
// concurrent Set is not undone.
func (c *DurableCache) removeExpired(ctx context.Context, namespace, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	env, ok := c.load(ctx, namespace, key)
	if !ok || !c.expired(env) {
		return
	}
	if err := c.store.Put(ctx, storageKey(namespace, key), nil); err != nil {
		c.warn(err, namespace, key, "durable cache: failed to remove expired entry")
	}
}

// Set implements ports.CacheStore.
func (c *DurableCache) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) bool {
	env := durableEnvelope{Value: value}
	if ttl > 0 {
		exp := c.now().Add(ttl)
		env.ExpiresAt = &exp
	}
	raw, err := json.Marshal(env)
	if err != nil {
		c.warn(err, namespace, key, "durable cache: failed to encode entry")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Put(ctx, storageKey(namespace, key), raw); err != nil {
		c.warn(err, namespace, key, "durable cache: failed to write entry")
		return false
	}
	index, err := c.readIndex(ctx, namespace)
	if err != nil {
		c.warn(err, namespace, key, "durable cache: failed to read index")
		return false
	}
	for _, k := range index {
		if k == key {
			return true
		}
	}
	if err := c.writeIndex(ctx, namespace, append(index, key)); err != nil {
		c.warn(err, namespace, key, "durable cache: failed to write index")
		return false
	}
	return true
}

// Delete implements ports.CacheStore.
func (c *DurableCache) Delete(ctx context.Context, namespace, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Put(ctx, storageKey(namespace, key), nil); err != nil {
		c.warn(err, namespace, key, "durable cache: failed to delete entry")
		return false
	}
	index, err := c.readIndex(ctx, namespace)
	if err != nil {
		c.warn(err, namespace, key, "durable cache: failed to read index")
		return false
	}
	kept := index[:0]
	for _, k := range index {
		if k != key {
			kept = append(kept, k)
		}
	}
	if len(kept) == len(index) {
		return true
	}
	if err := c.writeIndex(ctx, namespace, kept); err != nil {
		c.warn(err, namespace, key, "durable cache: failed to write index")
		return false
	}
	return true
}

// List implements ports.CacheStore. Keys whose value is gone or expired are pruned
// from the index, which is written back only if it changed.
func (c *DurableCache) List(ctx context.Context, namespace, prefix string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	index, err := c.readIndex(ctx, namespace)
	if err != nil {
		c.warn(err, namespace, "", "durable cache: failed to read index")
		return []string{}
	}

	now := c.now()
	live := make([]string, 0, len(index))
	retained := make([]string, 0, len(index))
	for _, k := range index {
		raw, ok, err := c.store.Get(ctx, storageKey(namespace, k))
		if err != nil {
			// unknown state: keep it indexed but do not report it
			retained = append(retained, k)
			continue
		}
		if !ok {
			continue
		}
		var env durableEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		if env.ExpiresAt != nil && !now.Before(*env.ExpiresAt) {
			_ = c.store.Put(ctx, storageKey(namespace, k), nil)
			continue
		}
		retained = append(retained, k)
		if strings.HasPrefix(k, prefix) {
			live = append(live, k)
		}
	}

	if len(retained) != len(index) {
		if err := c.writeIndex(ctx, namespace, retained); err != nil {
			c.warn(err, namespace, "", "durable cache: failed to persist pruned index")
		}
	}
	sort.Strings(live)
	return live
}

// Clear implements ports.CacheStore.
func (c *DurableCache) Clear(ctx context.Context, namespace string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	index, err := c.readIndex(ctx, namespace)
	if err != nil {
		c.warn(err, namespace, "", "durable cache: failed to read index")
		return false
	}
	ok := true
	for _, k := range index {
		if err := c.store.Put(ctx, storageKey(namespace, k), nil); err != nil {
			c.warn(err, namespace, k, "durable cache: failed to delete entry")
			ok = false
		}
	}
	if err := c.store.Put(ctx, indexKey(namespace), nil); err != nil {
		c.warn(err, namespace, "", "durable cache: failed to delete index")
		return false
	}
	return ok
}

func (c *DurableCache) load(ctx context.Context, namespace, key string) (*durableEnvelope, bool) {
	raw, ok, err := c.store.Get(ctx, storageKey(namespace, key))
	if err != nil {
		c.warn(err, namespace, key, "durable cache: failed to read entry")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var env durableEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.warn(err, namespace, key, "durable cache: failed to decode entry")
		return nil, false
	}
	return &env, true
}

func (c *DurableCache) readIndex(ctx context.Context, namespace string) ([]string, error) {
	raw, ok, err := c.store.Get(ctx, indexKey(namespace))
	if err != nil {
		return nil, err
	}
	if !ok || len(raw) == 0 {
		return []string{}, nil
	}
	var keys []string
	if err := json.Unmarshal(raw, &keys); err != nil {
		// a corrupt index is rebuilt from subsequent writes
		c.warn(err, namespace, "", "durable cache: discarding corrupt index")
		return []string{}, nil
	}
	return keys, nil
}

func (c *DurableCache) writeIndex(ctx context.Context, namespace string, keys []string) error {
	if len(keys) == 0 {
		return c.store.Put(ctx, indexKey(namespace), nil)
	}
	raw, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	return c.store.Put(ctx, indexKey(namespace), raw)
}

func (c *DurableCache) warn(err error, namespace, key, msg string) {
	if c.logger == nil {
		return
	}
	c.logger.WithFields(logrus.Fields{"namespace": namespace, "key": key}).WithError(err).Warn(msg)
}

var _ ports.CacheStore = (*DurableCache)(nil)
