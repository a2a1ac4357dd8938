package cache

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/avatarctic/replaycache/internal/core/ports"
)

var operationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cache_operations_total",
		Help: "Cache operations by tier, operation and result",
	},
	[]string{"tier", "op", "result"},
)

func init() {
	prometheus.MustRegister(operationsTotal)
}

// InstrumentedCache decorates a ports.CacheStore with Prometheus counters.
type InstrumentedCache struct {
	inner ports.CacheStore
	tier  string
}

// Instrument wraps inner, labelling its metrics with tier.
func Instrument(inner ports.CacheStore, tier string) *InstrumentedCache {
	return &InstrumentedCache{inner: inner, tier: tier}
}

func (c *InstrumentedCache) observe(op string, ok bool, okLabel, failLabel string) {
	result := failLabel
	if ok {
		result = okLabel
	}
	operationsTotal.WithLabelValues(c.tier, op, result).Inc()
}

// Get implements ports.CacheStore.
func (c *InstrumentedCache) Get(ctx context.Context, namespace, key string) ([]byte, bool) {
	v, ok := c.inner.Get(ctx, namespace, key)
	c.observe("get", ok, "hit", "miss")
	return v, ok
}

// Set implements ports.CacheStore.
func (c *InstrumentedCache) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) bool {
	ok := c.inner.Set(ctx, namespace, key, value, ttl)
	c.observe("set", ok, "ok", "error")
	return ok
}

// Delete implements ports.CacheStore.
func (c *InstrumentedCache) Delete(ctx context.Context, namespace, key string) bool {
	ok := c.inner.Delete(ctx, namespace, key)
	c.observe("delete", ok, "ok", "error")
	return ok
}

// List implements ports.CacheStore.
func (c *InstrumentedCache) List(ctx context.Context, namespace, prefix string) []string {
	keys := c.inner.List(ctx, namespace, prefix)
	operationsTotal.WithLabelValues(c.tier, "list", "ok").Inc()
	return keys
}

// Clear implements ports.CacheStore.
func (c *InstrumentedCache) Clear(ctx context.Context, namespace string) bool {
	ok := c.inner.Clear(ctx, namespace)
	c.observe("clear", ok, "ok", "error")
	return ok
}

// Stats forwards to the wrapped store when it reports stats.
func (c *InstrumentedCache) Stats(ctx context.Context) map[string]any {
	if r, ok := c.inner.(ports.StatsReporter); ok {
		return r.Stats(ctx)
	}
	return map[string]any{}
}

var (
	_ ports.CacheStore    = (*InstrumentedCache)(nil)
	_ ports.StatsReporter = (*InstrumentedCache)(nil)
)
