package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/avatarctic/replaycache/internal/core/ports"
)

// DefaultFetchTTL is how long a fetched page stays cached.
const DefaultFetchTTL = 5 * time.Minute

const firstPageCursor = "first"

// Page is one page of a cursor-paginated result.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// Result is a page tagged with where it was served from.
type Result[T any] struct {
	Page[T]
	FromCache bool
}

// FetchFunc loads a page from the origin.
type FetchFunc[T any] func(ctx context.Context, query, cursor string) (Page[T], error)

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	Namespace string
	TTL       time.Duration
	// Coalesce collapses concurrent misses on the same key into one origin call.
	// When false, concurrent misses may each call the origin.
	Coalesce bool
}

// Fetcher is a cache-aside helper for query + cursor style reads.
type Fetcher[T any] struct {
	store     ports.CacheStore
	namespace string
	ttl       time.Duration
	coalesce  bool
	sf        singleflight.Group
	logger    *logrus.Logger
}

// NewFetcher creates a fetcher caching pages in store.
func NewFetcher[T any](store ports.CacheStore, cfg FetcherConfig, logger *logrus.Logger) *Fetcher[T] {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultFetchTTL
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "fetch"
	}
	return &Fetcher[T]{store: store, namespace: ns, ttl: ttl, coalesce: cfg.Coalesce, logger: logger}
}

// Namespace returns the cache namespace pages are stored under.
func (f *Fetcher[T]) Namespace() string {
	return f.namespace
}

// Invalidate drops every cached page.
func (f *Fetcher[T]) Invalidate(ctx context.Context) bool {
	return f.store.Clear(ctx, f.namespace)
}

// Key normalizes query and cursor into the cache key for a page.
func Key(query, cursor string) string {
	if cursor == "" {
		cursor = firstPageCursor
	}
	return strings.ToLower(strings.TrimSpace(query)) + ":" + cursor
}

// Fetch returns the page for (query, cursor). A cached page is returned unless refresh
// is set; otherwise fn is called and its page is cached. Errors from fn are returned
// and never cached.
func (f *Fetcher[T]) Fetch(ctx context.Context, query, cursor string, refresh bool, fn FetchFunc[T]) (*Result[T], error) {
	key := Key(query, cursor)

	if !refresh {
		if page, ok := f.cached(ctx, key); ok {
			return &Result[T]{Page: *page, FromCache: true}, nil
		}
	}

	if !f.coalesce {
		page, err := f.load(ctx, key, query, cursor, fn)
		if err != nil {
			return nil, err
		}
		return &Result[T]{Page: page}, nil
	}

	v, err, _ := f.sf.Do(key, func() (any, error) {
		return f.load(ctx, key, query, cursor, fn)
	})
	if err != nil {
		return nil, err
	}
	page, ok := v.(Page[T])
	if !ok {
		return nil, fmt.Errorf("unexpected type from singleflight result")
	}
	return &Result[T]{Page: page}, nil
}

func (f *Fetcher[T]) load(ctx context.Context, key, query, cursor string, fn FetchFunc[T]) (Page[T], error) {
	page, err := fn(ctx, query, cursor)
	if err != nil {
		return Page[T]{}, err
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	raw, err := json.Marshal(page)
	if err != nil {
		f.warn(err, key, "fetcher: failed to encode page")
		return page, nil
	}
	f.store.Set(ctx, f.namespace, key, raw, f.ttl)
	return page, nil
}

func (f *Fetcher[T]) cached(ctx context.Context, key string) (*Page[T], bool) {
	raw, ok := f.store.Get(ctx, f.namespace, key)
	if !ok {
		return nil, false
	}
	var page Page[T]
	if err := json.Unmarshal(raw, &page); err != nil {
		f.warn(err, key, "fetcher: discarding undecodable cached page")
		return nil, false
	}
	return &page, true
}

func (f *Fetcher[T]) warn(err error, key, msg string) {
	if f.logger == nil {
		return
	}
	f.logger.WithFields(logrus.Fields{"namespace": f.namespace, "key": key}).WithError(err).Warn(msg)
}
