package ports

import (
	"context"
	"time"
)

// CacheStore defines the namespaced cache contract shared by every backend.
// Implementations must never surface a backend fault to the caller: a failed Get
// reports a miss and a failed mutation reports false, after logging the cause, so
// that consumers can continue in a degraded mode.
type CacheStore interface {
	// Get returns the value stored under (namespace, key). ok=false on miss, expiry or fault.
	Get(ctx context.Context, namespace, key string) (value []byte, ok bool)
	// Set overwrites (namespace, key). A ttl of 0 or less means the entry never expires.
	Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) bool
	// Delete removes (namespace, key); absence is not a failure.
	Delete(ctx context.Context, namespace, key string) bool
	// List returns the live keys of namespace that start with prefix. Order is unspecified.
	List(ctx context.Context, namespace, prefix string) []string
	// Clear removes every key of namespace and leaves other namespaces untouched.
	Clear(ctx context.Context, namespace string) bool
}

// StatsReporter is implemented by cache backends that expose diagnostic data.
type StatsReporter interface {
	Stats(ctx context.Context) map[string]any
}
