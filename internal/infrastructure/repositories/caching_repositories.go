package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/avatarctic/replaycache/internal/core/domain/document"
	"github.com/avatarctic/replaycache/internal/core/ports"
)

// DocumentCacheNamespace partitions document entries from other cache consumers.
const DocumentCacheNamespace = "documents"

// Utility helpers
func cacheSetSilently(c ports.CacheStore, ctx context.Context, ns, key string, v any, ttl time.Duration) {
	if c == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.Set(ctx, ns, key, b, ttl)
}

func cacheGet[T any](c ports.CacheStore, ctx context.Context, ns, key string) (*T, bool) {
	if c == nil {
		return nil, false
	}
	b, ok := c.Get(ctx, ns, key)
	if !ok {
		return nil, false
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, false
	}
	return &v, true
}

// CachingDocumentRepository decorates a DocumentRepository with cache-aside reads by ID.
// Concurrent misses for the same document are coalesced in-process. Search is not
// cached here; the search path has its own page cache.
type CachingDocumentRepository struct {
	inner ports.DocumentRepository
	cache ports.CacheStore
	ttl   time.Duration
	sf    singleflight.Group
}

func NewCachingDocumentRepository(inner ports.DocumentRepository, cache ports.CacheStore, ttl time.Duration) ports.DocumentRepository {
	return &CachingDocumentRepository{inner: inner, cache: cache, ttl: ttl}
}

func documentKey(id uuid.UUID) string {
	return "id:" + id.String()
}

func (c *CachingDocumentRepository) Create(ctx context.Context, doc *document.Document) error {
	if err := c.inner.Create(ctx, doc); err != nil {
		return err
	}
	cacheSetSilently(c.cache, ctx, DocumentCacheNamespace, documentKey(doc.ID), doc, c.ttl)
	return nil
}

func (c *CachingDocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*document.Document, error) {
	key := documentKey(id)
	if v, ok := cacheGet[document.Document](c.cache, ctx, DocumentCacheNamespace, key); ok {
		return v, nil
	}
	res, err, _ := c.sf.Do(key, func() (any, error) {
		doc, err := c.inner.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		cacheSetSilently(c.cache, ctx, DocumentCacheNamespace, key, doc, c.ttl)
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	doc, ok := res.(*document.Document)
	if !ok {
		return nil, fmt.Errorf("unexpected type from singleflight result")
	}
	// callers sharing one load each get their own copy
	cp := *doc
	return &cp, nil
}

func (c *CachingDocumentRepository) Update(ctx context.Context, doc *document.Document) error {
	if err := c.inner.Update(ctx, doc); err != nil {
		return err
	}
	// Overwrite cache
	cacheSetSilently(c.cache, ctx, DocumentCacheNamespace, documentKey(doc.ID), doc, c.ttl)
	return nil
}

func (c *CachingDocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := c.inner.Delete(ctx, id); err != nil {
		return err
	}
	if c.cache != nil {
		_ = c.cache.Delete(ctx, DocumentCacheNamespace, documentKey(id))
	}
	return nil
}

func (c *CachingDocumentRepository) Search(ctx context.Context, query string, cursor string, limit int) ([]*document.Document, error) {
	return c.inner.Search(ctx, query, cursor, limit)
}
