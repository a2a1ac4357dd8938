package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/avatarctic/replaycache/internal/application/services"
	"github.com/avatarctic/replaycache/internal/core/domain/document"
	"github.com/avatarctic/replaycache/internal/core/ports"
	"github.com/avatarctic/replaycache/internal/infrastructure/cache"
	"github.com/avatarctic/replaycache/internal/infrastructure/health"
	"github.com/avatarctic/replaycache/internal/infrastructure/httpserver"
	"github.com/avatarctic/replaycache/internal/infrastructure/redis"
	"github.com/avatarctic/replaycache/internal/mocks"
)

const jwtSecret = "server-test-secret"

type testServer struct {
	srv     *httpserver.Server
	creates int
	search  *cache.MemoryCache
	probe   *mocks.HealthCheckerMock
}

// backends overrides the in-memory defaults of newTestServer.
type backends struct {
	idempotencyPrimary ports.CacheStore
	idempotencyHealth  ports.HealthChecker
	admin              ports.CacheStore
}

// newTestServer wires the real services over a map-backed document repository and
// in-memory caches.
func newTestServer(t *testing.T) *testServer {
	return newTestServerWith(t, backends{})
}

func newTestServerWith(t *testing.T, b backends) *testServer {
	t.Helper()
	ts := &testServer{search: cache.NewMemoryCache(), probe: &mocks.HealthCheckerMock{NameValue: "redis"}}
	if b.idempotencyPrimary == nil {
		b.idempotencyPrimary = cache.NewMemoryCache()
	}
	if b.idempotencyHealth == nil {
		b.idempotencyHealth = ts.probe
	}
	if b.admin == nil {
		b.admin = ts.search
	}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	var mu sync.Mutex
	docs := map[uuid.UUID]document.Document{}
	repo := &mocks.DocumentRepositoryMock{
		CreateFn: func(_ context.Context, d *document.Document) error {
			mu.Lock()
			defer mu.Unlock()
			ts.creates++
			docs[d.ID] = *d
			return nil
		},
		GetByIDFn: func(_ context.Context, id uuid.UUID) (*document.Document, error) {
			mu.Lock()
			defer mu.Unlock()
			d, ok := docs[id]
			if !ok {
				return nil, ports.ErrDocumentNotFound
			}
			return &d, nil
		},
		UpdateFn: func(_ context.Context, d *document.Document) error {
			mu.Lock()
			defer mu.Unlock()
			docs[d.ID] = *d
			return nil
		},
		DeleteFn: func(_ context.Context, id uuid.UUID) error {
			mu.Lock()
			defer mu.Unlock()
			if _, ok := docs[id]; !ok {
				return ports.ErrDocumentNotFound
			}
			delete(docs, id)
			return nil
		},
		SearchFn: func(_ context.Context, q, _ string, limit int) ([]*document.Document, error) {
			mu.Lock()
			defer mu.Unlock()
			var out []*document.Document
			for _, d := range docs {
				if titleMatches(d, q) && len(out) < limit {
					out = append(out, &d)
				}
			}
			return out, nil
		},
	}

	fetcher := cache.NewFetcher[document.Document](ts.search, cache.FetcherConfig{Namespace: "search"}, logger)
	docSvc := services.NewDocumentService(repo, fetcher, 10, logger)
	idem := services.NewIdempotencyService(b.idempotencyPrimary, b.idempotencyHealth, cache.NewMemoryCache(), nil, logger)

	ts.srv = httpserver.NewServer(&httpserver.ServerConfig{JWTSecret: jwtSecret}, logger, httpserver.ServerDeps{
		DocumentService:  docSvc,
		IdempotencyStore: idem,
		AdminCache:       b.admin,
		HealthCheckers:   []ports.HealthChecker{ts.probe},
	})
	return ts
}

func titleMatches(d document.Document, query string) bool {
	return strings.Contains(strings.ToLower(d.Title), strings.ToLower(strings.TrimSpace(query)))
}

func (ts *testServer) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.srv.Echo().ServeHTTP(rec, req)
	return rec
}

func bearer(t *testing.T, subject string) map[string]string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestServer_CreateIsReplayedWithSameKey(t *testing.T) {
	ts := newTestServer(t)
	hdr := map[string]string{"Idempotency-Key": "create-0001-abcdef"}

	first := ts.do(t, http.MethodPost, "/api/v1/documents", `{"title":"Runbook","body":"steps"}`, hdr)
	require.Equal(t, http.StatusCreated, first.Code)
	require.NotEmpty(t, first.Header().Get("Location"))

	second := ts.do(t, http.MethodPost, "/api/v1/documents", `{"title":"Runbook","body":"steps"}`, hdr)
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, first.Body.String(), second.Body.String())
	require.Equal(t, first.Header().Get("Location"), second.Header().Get("Location"))
	require.Equal(t, "true", second.Header().Get("X-Idempotent-Replayed"))
	require.Equal(t, "redis", second.Header().Get("X-Cache-Backend"))
	require.Equal(t, 1, ts.creates)

	var doc document.Document
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &doc))
	got := ts.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, got.Code)
}

func TestServer_CreateValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/documents", `{"body":"no title"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "VALIDATION_FAILED")

	rec = ts.do(t, http.MethodPost, "/api/v1/documents", `{"title":"   "}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/documents", `{"title":"x"}`, map[string]string{"Idempotency-Key": "too-short"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "INVALID_IDEMPOTENCY_KEY")
	require.Zero(t, ts.creates)
}

func TestServer_SearchIsCachedAndInvalidatedByWrites(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/v1/documents", `{"title":"alpha"}`, nil).Code)

	var res document.SearchResult
	rec := ts.do(t, http.MethodGet, "/api/v1/documents/search?q=alpha", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Items, 1)
	require.False(t, res.FromCache)

	rec = ts.do(t, http.MethodGet, "/api/v1/documents/search?q=alpha", "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.True(t, res.FromCache)

	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/v1/documents", `{"title":"alpha two"}`, nil).Code)
	rec = ts.do(t, http.MethodGet, "/api/v1/documents/search?q=alpha", "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.False(t, res.FromCache)
	require.Len(t, res.Items, 2)
}

func TestServer_UpdateAndDelete(t *testing.T) {
	ts := newTestServer(t)
	created := ts.do(t, http.MethodPost, "/api/v1/documents", `{"title":"draft"}`, nil)
	var doc document.Document
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &doc))
	path := "/api/v1/documents/" + doc.ID.String()

	rec := ts.do(t, http.MethodPatch, path, `{"title":"final"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"title":"final"`)

	require.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, path, "", nil).Code)
	require.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, path, "", nil).Code)
	require.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, path, "", nil).Code)
	require.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/v1/documents/not-a-uuid", "", nil).Code)
}

func TestServer_AdminRequiresIdentity(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/api/v1/documents/search?q=x", "", nil)

	require.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/api/v1/cache/search/keys", "", nil).Code)
	require.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/api/v1/documents", "", map[string]string{"Authorization": "Bearer bogus"}).Code)
	require.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/v1/nothing-here", "", nil).Code)

	auth := bearer(t, "ops")
	rec := ts.do(t, http.MethodGet, "/api/v1/cache/search/keys", "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var keys struct {
		Keys  []string `json:"keys"`
		Total int      `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &keys))
	require.Equal(t, 1, keys.Total)

	require.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/api/v1/cache/search", "", auth).Code)
	require.Empty(t, ts.search.List(context.Background(), "search", ""))
}

func TestServer_IdempotencyStatsAndHealth(t *testing.T) {
	ts := newTestServer(t)
	auth := bearer(t, "ops")

	rec := ts.do(t, http.MethodGet, "/api/v1/idempotency/stats", "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"backend":"redis"`)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", "", nil).Code)

	ts.probe.CheckFn = func(context.Context) error { return errors.New("down") }
	rec = ts.do(t, http.MethodGet, "/api/v1/idempotency/stats", "", auth)
	require.Contains(t, rec.Body.String(), `"backend":"memory"`)
	require.Equal(t, http.StatusServiceUnavailable, ts.do(t, http.MethodGet, "/health", "", nil).Code)
}

func TestServer_AdminCannotClearIdempotencyRecords(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := logrus.New()

	// same Redis, separate prefixes, as in cmd/server
	admin := cache.NewCompositeCache(cache.NewMemoryCache(), redis.NewRedisCache(client, "replaycache", logger))
	ts := newTestServerWith(t, backends{
		idempotencyPrimary: redis.NewRedisCache(client, "replaycache-idempotency", logger),
		idempotencyHealth:  health.NewRedisHealthChecker(client),
		admin:              admin,
	})
	hdr := map[string]string{"Idempotency-Key": "admin-clear-0001-abc"}
	auth := bearer(t, "ops")

	first := ts.do(t, http.MethodPost, "/api/v1/documents", `{"title":"once"}`, hdr)
	require.Equal(t, http.StatusCreated, first.Code)

	rec := ts.do(t, http.MethodDelete, "/api/v1/cache/"+ports.IdempotencyNamespace, "", auth)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "NAMESPACE_PROTECTED")
	rec = ts.do(t, http.MethodGet, "/api/v1/cache/"+ports.IdempotencyNamespace+"/keys", "", auth)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// even a direct clear of the admin cache cannot reach the idempotency prefix
	require.True(t, admin.Clear(context.Background(), ports.IdempotencyNamespace))

	second := ts.do(t, http.MethodPost, "/api/v1/documents", `{"title":"once"}`, hdr)
	require.Equal(t, "true", second.Header().Get("X-Idempotent-Replayed"))
	require.Equal(t, "redis", second.Header().Get("X-Cache-Backend"))
	require.Equal(t, first.Body.String(), second.Body.String())
	require.Equal(t, 1, ts.creates)
}
