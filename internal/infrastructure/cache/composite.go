package cache

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avatarctic/replaycache/internal/core/ports"
)

var errTierFailed = errors.New("cache tier reported failure")

// CompositeCache layers an ordered list of stores. Reads return the first hit and do
// not back-fill earlier tiers; writes fan out to every tier and wait for all of them.
// List only consults the first tier, so keys held exclusively by later tiers are not
// listed.
type CompositeCache struct {
	tiers []ports.CacheStore
}

// NewCompositeCache creates a composite over tiers, fastest first.
func NewCompositeCache(tiers ...ports.CacheStore) *CompositeCache {
	return &CompositeCache{tiers: tiers}
}

// Get implements ports.CacheStore.
func (c *CompositeCache) Get(ctx context.Context, namespace, key string) ([]byte, bool) {
	for _, tier := range c.tiers {
		if v, ok := tier.Get(ctx, namespace, key); ok {
			return v, true
		}
	}
	return nil, false
}

// Set implements ports.CacheStore.
func (c *CompositeCache) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) bool {
	return c.fanOut(func(tier ports.CacheStore) bool {
		return tier.Set(ctx, namespace, key, value, ttl)
	})
}

// Delete implements ports.CacheStore.
func (c *CompositeCache) Delete(ctx context.Context, namespace, key string) bool {
	return c.fanOut(func(tier ports.CacheStore) bool {
		return tier.Delete(ctx, namespace, key)
	})
}

// List implements ports.CacheStore.
func (c *CompositeCache) List(ctx context.Context, namespace, prefix string) []string {
	if len(c.tiers) == 0 {
		return []string{}
	}
	return c.tiers[0].List(ctx, namespace, prefix)
}

// Clear implements ports.CacheStore.
func (c *CompositeCache) Clear(ctx context.Context, namespace string) bool {
	return c.fanOut(func(tier ports.CacheStore) bool {
		return tier.Clear(ctx, namespace)
	})
}

// fanOut runs op against every tier concurrently. It reports true only when every tier
// succeeded; a failing tier does not stop the others.
func (c *CompositeCache) fanOut(op func(ports.CacheStore) bool) bool {
	var g errgroup.Group
	for _, tier := range c.tiers {
		g.Go(func() error {
			if !op(tier) {
				return errTierFailed
			}
			return nil
		})
	}
	return g.Wait() == nil
}

var _ ports.CacheStore = (*CompositeCache)(nil)
