package redis

import (
	"bufio"
	"context"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/replaycache/internal/core/ports"
	"github.com/avatarctic/replaycache/internal/infrastructure/cache"
)

const scanBatch = 100

// RedisCache implements ports.CacheStore using a Redis client. Keys are laid out as
// <prefix>:<len>:<namespace>:<key> with len the byte length of the namespace, so one
// namespace's pattern never matches another's keys. Every Redis fault is logged and
// reported as a miss or a failed write.
type RedisCache struct {
	r redis.Cmdable
	// optional key prefix to namespace entries
	prefix string
	logger *logrus.Logger
}

// NewRedisCache creates a new Redis-backed cache.
func NewRedisCache(r redis.Cmdable, prefix string, logger *logrus.Logger) *RedisCache {
	return &RedisCache{r: r, prefix: prefix, logger: logger}
}

func (c *RedisCache) base(namespace string) string {
	if c.prefix == "" {
		return cache.EncodeNamespace(namespace) + ":"
	}
	return c.prefix + ":" + cache.EncodeNamespace(namespace) + ":"
}

func (c *RedisCache) namespaced(namespace, key string) string {
	return c.base(namespace) + key
}

// Get implements ports.CacheStore.
func (c *RedisCache) Get(ctx context.Context, namespace, key string) ([]byte, bool) {
	val, err := c.r.Get(ctx, c.namespaced(namespace, key)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.warn(err, namespace, key, "redis cache: get failed")
		return nil, false
	}
	return val, true
}

// Set implements ports.CacheStore. Sub-second TTLs are sent with millisecond precision.
func (c *RedisCache) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) bool {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.r.Set(ctx, c.namespaced(namespace, key), value, ttl).Err(); err != nil {
		c.warn(err, namespace, key, "redis cache: set failed")
		return false
	}
	return true
}

// Delete implements ports.CacheStore.
func (c *RedisCache) Delete(ctx context.Context, namespace, key string) bool {
	if err := c.r.Del(ctx, c.namespaced(namespace, key)).Err(); err != nil {
		c.warn(err, namespace, key, "redis cache: delete failed")
		return false
	}
	return true
}

// List implements ports.CacheStore using SCAN, so it never blocks the server.
func (c *RedisCache) List(ctx context.Context, namespace, prefix string) []string {
	base := c.base(namespace)
	keys, err := c.scan(ctx, escapeGlob(base+prefix)+"*")
	if err != nil {
		c.warn(err, namespace, prefix, "redis cache: scan failed")
		return []string{}
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, base))
	}
	return out
}

// Clear implements ports.CacheStore by deleting every key matching the namespace pattern.
func (c *RedisCache) Clear(ctx context.Context, namespace string) bool {
	keys, err := c.scan(ctx, escapeGlob(c.base(namespace))+"*")
	if err != nil {
		c.warn(err, namespace, "", "redis cache: scan failed")
		return false
	}
	for start := 0; start < len(keys); start += scanBatch {
		end := start + scanBatch
		if end > len(keys) {
			end = len(keys)
		}
		if err := c.r.Del(ctx, keys[start:end]...).Err(); err != nil {
			c.warn(err, namespace, "", "redis cache: bulk delete failed")
			return false
		}
	}
	return true
}

// Stats implements ports.StatsReporter.
func (c *RedisCache) Stats(ctx context.Context) map[string]any {
	stats := map[string]any{"prefix": c.prefix}
	if n, err := c.r.DBSize(ctx).Result(); err == nil {
		stats["keys"] = n
	}
	if info, err := c.r.Info(ctx, "memory").Result(); err == nil {
		for k, v := range parseInfo(info) {
			if k == "used_memory_human" || k == "maxmemory_policy" {
				stats[k] = v
			}
		}
	}
	return stats
}

func (c *RedisCache) scan(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := c.r.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func (c *RedisCache) warn(err error, namespace, key, msg string) {
	if c.logger == nil {
		return
	}
	c.logger.WithFields(logrus.Fields{"namespace": namespace, "key": key}).WithError(err).Warn(msg)
}

// escapeGlob quotes the characters SCAN MATCH treats as wildcards.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func parseInfo(info string) map[string]string {
	out := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			out[k] = v
		}
	}
	return out
}

var (
	_ ports.CacheStore    = (*RedisCache)(nil)
	_ ports.StatsReporter = (*RedisCache)(nil)
)
