package ports

import "context"

// KeyValueStore is a slow, durable single-key store. It offers no prefix scan and no
// native expiry; callers that need either must maintain them on top.
type KeyValueStore interface {
	// Get returns the raw bytes stored under key. ok=false if the key is unknown.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Put replaces the value stored under key. A nil value removes the key.
	Put(ctx context.Context, key string, value []byte) error
}
