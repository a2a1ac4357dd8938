package ports

import (
	"context"
	"time"
)

// IdempotencyNamespace partitions idempotency records from other cache consumers.
// Records leave it only by expiry, so admin surfaces must not clear it.
const IdempotencyNamespace = "idempotency"

// IdempotencyRecord is the response recorded for the first successful attempt of a
// mutating request. Once written it is never updated; it only expires.
type IdempotencyRecord struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       []byte            `json:"body"`
	CreatedAt  time.Time         `json:"created_at"`
}

// IdempotencyStore records and replays responses keyed by a composite request key.
// It is a best-effort optimization: every failure degrades to a miss.
type IdempotencyStore interface {
	// Get returns the live record for key and the name of the backend that served it.
	Get(ctx context.Context, key string, ttl time.Duration) (record *IdempotencyRecord, backend string, ok bool)
	// Set writes record to whichever backend is currently available and returns its name.
	Set(ctx context.Context, key string, record *IdempotencyRecord, ttl time.Duration) (backend string, err error)
	// Cleanup sweeps expired records from the process-local fallback and returns how many were removed.
	Cleanup(ctx context.Context, ttl time.Duration) int
	// Stats reports the serving backend plus backend specific details.
	Stats(ctx context.Context) map[string]any
}
