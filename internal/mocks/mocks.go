package mocks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avatarctic/replaycache/internal/core/domain/document"
	"github.com/avatarctic/replaycache/internal/core/ports"
)

// DocumentRepositoryMock is a lightweight mock for DocumentRepository
type DocumentRepositoryMock struct {
	CreateFn  func(ctx context.Context, doc *document.Document) error
	GetByIDFn func(ctx context.Context, id uuid.UUID) (*document.Document, error)
	UpdateFn  func(ctx context.Context, doc *document.Document) error
	DeleteFn  func(ctx context.Context, id uuid.UUID) error
	SearchFn  func(ctx context.Context, query, cursor string, limit int) ([]*document.Document, error)
}

func (m *DocumentRepositoryMock) Create(ctx context.Context, doc *document.Document) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, doc)
	}
	return nil
}
func (m *DocumentRepositoryMock) GetByID(ctx context.Context, id uuid.UUID) (*document.Document, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, ports.ErrDocumentNotFound
}
func (m *DocumentRepositoryMock) Update(ctx context.Context, doc *document.Document) error {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, doc)
	}
	return nil
}
func (m *DocumentRepositoryMock) Delete(ctx context.Context, id uuid.UUID) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, id)
	}
	return nil
}
func (m *DocumentRepositoryMock) Search(ctx context.Context, query, cursor string, limit int) ([]*document.Document, error) {
	if m.SearchFn != nil {
		return m.SearchFn(ctx, query, cursor, limit)
	}
	return nil, nil
}

// DocumentServiceMock is a lightweight mock for DocumentService
type DocumentServiceMock struct {
	CreateDocumentFn  func(ctx context.Context, req *document.CreateDocumentRequest) (*document.Document, error)
	GetDocumentFn     func(ctx context.Context, id uuid.UUID) (*document.Document, error)
	UpdateDocumentFn  func(ctx context.Context, id uuid.UUID, req *document.UpdateDocumentRequest) (*document.Document, error)
	DeleteDocumentFn  func(ctx context.Context, id uuid.UUID) error
	SearchDocumentsFn func(ctx context.Context, req *document.SearchRequest) (*document.SearchResult, error)
}

func (m *DocumentServiceMock) CreateDocument(ctx context.Context, req *document.CreateDocumentRequest) (*document.Document, error) {
	if m.CreateDocumentFn != nil {
		return m.CreateDocumentFn(ctx, req)
	}
	return nil, fmt.Errorf("not implemented")
}
func (m *DocumentServiceMock) GetDocument(ctx context.Context, id uuid.UUID) (*document.Document, error) {
	if m.GetDocumentFn != nil {
		return m.GetDocumentFn(ctx, id)
	}
	return nil, ports.ErrDocumentNotFound
}
func (m *DocumentServiceMock) UpdateDocument(ctx context.Context, id uuid.UUID, req *document.UpdateDocumentRequest) (*document.Document, error) {
	if m.UpdateDocumentFn != nil {
		return m.UpdateDocumentFn(ctx, id, req)
	}
	return nil, ports.ErrDocumentNotFound
}
func (m *DocumentServiceMock) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	if m.DeleteDocumentFn != nil {
		return m.DeleteDocumentFn(ctx, id)
	}
	return nil
}
func (m *DocumentServiceMock) SearchDocuments(ctx context.Context, req *document.SearchRequest) (*document.SearchResult, error) {
	if m.SearchDocumentsFn != nil {
		return m.SearchDocumentsFn(ctx, req)
	}
	return &document.SearchResult{Items: []document.Document{}}, nil
}

// HealthCheckerMock reports healthy unless CheckFn says otherwise
type HealthCheckerMock struct {
	NameValue string
	CheckFn   func(ctx context.Context) error
}

func (m *HealthCheckerMock) Name() string {
	if m.NameValue == "" {
		return "mock"
	}
	return m.NameValue
}
func (m *HealthCheckerMock) Check(ctx context.Context) error {
	if m.CheckFn != nil {
		return m.CheckFn(ctx)
	}
	return nil
}

// RateLimiterServiceMock is a lightweight mock for RateLimiterService
type RateLimiterServiceMock struct {
	AllowFn func(ctx context.Context, subject string) (bool, int, int, time.Time, error)
}

func (m *RateLimiterServiceMock) Allow(ctx context.Context, subject string) (bool, int, int, time.Time, error) {
	if m.AllowFn != nil {
		return m.AllowFn(ctx, subject)
	}
	return true, 1, 1, time.Now().Add(time.Minute), nil
}

// RateLimitRepositoryMock is a lightweight mock for RateLimitRepository
type RateLimitRepositoryMock struct {
	IncrementWindowFn func(ctx context.Context, subject string, window time.Duration, keyPrefix string, ttl time.Duration) (int, time.Time, error)
}

func (m *RateLimitRepositoryMock) IncrementWindow(ctx context.Context, subject string, window time.Duration, keyPrefix string, ttl time.Duration) (int, time.Time, error) {
	if m.IncrementWindowFn != nil {
		return m.IncrementWindowFn(ctx, subject, window, keyPrefix, ttl)
	}
	return 1, time.Now().Truncate(window), nil
}

// IdempotencyStoreMock is a lightweight mock for IdempotencyStore
type IdempotencyStoreMock struct {
	GetFn     func(ctx context.Context, key string, ttl time.Duration) (*ports.IdempotencyRecord, string, bool)
	SetFn     func(ctx context.Context, key string, record *ports.IdempotencyRecord, ttl time.Duration) (string, error)
	CleanupFn func(ctx context.Context, ttl time.Duration) int
	StatsFn   func(ctx context.Context) map[string]any
}

func (m *IdempotencyStoreMock) Get(ctx context.Context, key string, ttl time.Duration) (*ports.IdempotencyRecord, string, bool) {
	if m.GetFn != nil {
		return m.GetFn(ctx, key, ttl)
	}
	return nil, "memory", false
}
func (m *IdempotencyStoreMock) Set(ctx context.Context, key string, record *ports.IdempotencyRecord, ttl time.Duration) (string, error) {
	if m.SetFn != nil {
		return m.SetFn(ctx, key, record, ttl)
	}
	return "memory", nil
}
func (m *IdempotencyStoreMock) Cleanup(ctx context.Context, ttl time.Duration) int {
	if m.CleanupFn != nil {
		return m.CleanupFn(ctx, ttl)
	}
	return 0
}
func (m *IdempotencyStoreMock) Stats(ctx context.Context) map[string]any {
	if m.StatsFn != nil {
		return m.StatsFn(ctx)
	}
	return map[string]any{"backend": "memory"}
}

// KeyValueStoreMock is a map-backed KeyValueStore. GetErr and PutErr, when set,
// are consulted per key before touching the map.
type KeyValueStoreMock struct {
	mu     sync.Mutex
	data   map[string][]byte
	GetErr func(key string) error
	PutErr func(key string) error
}

func NewKeyValueStoreMock() *KeyValueStoreMock {
	return &KeyValueStoreMock{data: map[string][]byte{}}
}

func (m *KeyValueStoreMock) Get(_ context.Context, key string) ([]byte, bool, error) {
	if m.GetErr != nil {
		if err := m.GetErr(key); err != nil {
			return nil, false, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *KeyValueStoreMock) Put(_ context.Context, key string, value []byte) error {
	if m.PutErr != nil {
		if err := m.PutErr(key); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if value == nil {
		delete(m.data, key)
		return nil
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

// Raw returns the stored bytes for key without going through error hooks.
func (m *KeyValueStoreMock) Raw(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

// Keys returns all stored keys with the given prefix, sorted.
func (m *KeyValueStoreMock) Keys(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// CacheStoreMock is a lightweight mock for CacheStore
type CacheStoreMock struct {
	GetFn    func(ctx context.Context, namespace, key string) ([]byte, bool)
	SetFn    func(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) bool
	DeleteFn func(ctx context.Context, namespace, key string) bool
	ListFn   func(ctx context.Context, namespace, prefix string) []string
	ClearFn  func(ctx context.Context, namespace string) bool
}

func (m *CacheStoreMock) Get(ctx context.Context, namespace, key string) ([]byte, bool) {
	if m.GetFn != nil {
		return m.GetFn(ctx, namespace, key)
	}
	return nil, false
}
func (m *CacheStoreMock) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) bool {
	if m.SetFn != nil {
		return m.SetFn(ctx, namespace, key, value, ttl)
	}
	return true
}
func (m *CacheStoreMock) Delete(ctx context.Context, namespace, key string) bool {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, namespace, key)
	}
	return true
}
func (m *CacheStoreMock) List(ctx context.Context, namespace, prefix string) []string {
	if m.ListFn != nil {
		return m.ListFn(ctx, namespace, prefix)
	}
	return nil
}
func (m *CacheStoreMock) Clear(ctx context.Context, namespace string) bool {
	if m.ClearFn != nil {
		return m.ClearFn(ctx, namespace)
	}
	return true
}
