// Package cache provides the ports.CacheStore implementations and the helpers built on
// top of them: an in-memory TTL cache, a durable cache over a scan-less key-value store,
// a composite fan-out cache, an instrumenting decorator and a cache-aside page fetcher.
package cache

import (
	"strconv"
	"time"
)

// Clock returns the current time. Tests substitute it to simulate the passage of time.
type Clock func() time.Time

type options struct {
	now Clock
}

// Option configures a cache backend.
type Option func(*options)

// WithClock replaces the wall clock used for expiry decisions.
func WithClock(now Clock) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// EncodeNamespace renders namespace as <byte length>:<namespace>. Backends that flatten
// (namespace, key) into a single string put it in front of the key, so no namespace can
// be read as a prefix of another namespace's keys.
func EncodeNamespace(namespace string) string {
	return strconv.Itoa(len(namespace)) + ":" + namespace
}
