package services_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	impl "github.com/avatarctic/replaycache/internal/application/services"
	"github.com/avatarctic/replaycache/internal/core/ports"
	"github.com/avatarctic/replaycache/internal/infrastructure/cache"
	"github.com/avatarctic/replaycache/internal/mocks"
)

type switchableProbe struct {
	down atomic.Bool
}

func (p *switchableProbe) Name() string { return "redis" }
func (p *switchableProbe) Check(context.Context) error {
	if p.down.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func newIdempotencyStore(t *testing.T) (*impl.IdempotencyService, *cache.MemoryCache, *cache.MemoryCache, *switchableProbe) {
	t.Helper()
	primary, fallback := cache.NewMemoryCache(), cache.NewMemoryCache()
	probe := &switchableProbe{}
	svc := impl.NewIdempotencyService(primary, probe, fallback, &impl.IdempotencyServiceConfig{CleanupInterval: 10 * time.Millisecond}, logrus.New())
	return svc, primary, fallback, probe
}

func record(body string, age time.Duration) *ports.IdempotencyRecord {
	return &ports.IdempotencyRecord{
		StatusCode: 201,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(body),
		CreatedAt:  time.Now().Add(-age),
	}
}

func TestIdempotencyService_UsesPrimaryWhenAvailable(t *testing.T) {
	ctx := context.Background()
	svc, primary, fallback, _ := newIdempotencyStore(t)

	backend, err := svc.Set(ctx, "k", record(`{"id":"abc"}`, 0), time.Hour)
	require.NoError(t, err)
	require.Equal(t, "redis", backend)
	require.Equal(t, []string{"k"}, primary.List(ctx, impl.IdempotencyNamespace, ""))
	require.Empty(t, fallback.List(ctx, impl.IdempotencyNamespace, ""))

	rec, backend, ok := svc.Get(ctx, "k", time.Hour)
	require.True(t, ok)
	require.Equal(t, "redis", backend)
	require.Equal(t, 201, rec.StatusCode)
	require.Equal(t, []byte(`{"id":"abc"}`), rec.Body)
	require.Equal(t, "application/json", rec.Headers["Content-Type"])
}

func TestIdempotencyService_FallsBackWhenPrimaryDown(t *testing.T) {
	ctx := context.Background()
	svc, primary, fallback, probe := newIdempotencyStore(t)
	probe.down.Store(true)

	backend, err := svc.Set(ctx, "k", record("x", 0), time.Hour)
	require.NoError(t, err)
	require.Equal(t, impl.FallbackBackendName, backend)
	require.Empty(t, primary.List(ctx, impl.IdempotencyNamespace, ""))
	require.Equal(t, []string{"k"}, fallback.List(ctx, impl.IdempotencyNamespace, ""))

	_, backend, ok := svc.Get(ctx, "k", time.Hour)
	require.True(t, ok)
	require.Equal(t, impl.FallbackBackendName, backend)
}

func TestIdempotencyService_NoReplicationAcrossBackends(t *testing.T) {
	ctx := context.Background()
	svc, _, _, probe := newIdempotencyStore(t)

	probe.down.Store(true)
	_, err := svc.Set(ctx, "k", record("x", 0), time.Hour)
	require.NoError(t, err)

	// the record lives only in the fallback; a recovered primary does not see it
	probe.down.Store(false)
	_, backend, ok := svc.Get(ctx, "k", time.Hour)
	require.False(t, ok)
	require.Equal(t, "redis", backend)
}

func TestIdempotencyService_StaleRecordIsDeleted(t *testing.T) {
	ctx := context.Background()
	svc, primary, _, _ := newIdempotencyStore(t)

	_, err := svc.Set(ctx, "old", record("x", 2*time.Hour), 0)
	require.NoError(t, err)

	_, _, ok := svc.Get(ctx, "old", time.Hour)
	require.False(t, ok)
	require.Empty(t, primary.List(ctx, impl.IdempotencyNamespace, ""))
}

func TestIdempotencyService_UndecodableRecordIsMiss(t *testing.T) {
	ctx := context.Background()
	svc, primary, _, _ := newIdempotencyStore(t)
	primary.Set(ctx, impl.IdempotencyNamespace, "k", []byte("garbage"), 0)

	_, _, ok := svc.Get(ctx, "k", time.Hour)
	require.False(t, ok)
}

func TestIdempotencyService_SetReportsRejectedWrite(t *testing.T) {
	ctx := context.Background()
	primary := &mocks.CacheStoreMock{SetFn: func(context.Context, string, string, []byte, time.Duration) bool { return false }}
	svc := impl.NewIdempotencyService(primary, &mocks.HealthCheckerMock{NameValue: "redis"}, cache.NewMemoryCache(), nil, nil)

	backend, err := svc.Set(ctx, "k", record("x", 0), time.Hour)
	require.Error(t, err)
	require.Equal(t, "redis", backend)
}

func TestIdempotencyService_NilPrimaryAlwaysUsesFallback(t *testing.T) {
	ctx := context.Background()
	svc := impl.NewIdempotencyService(nil, nil, cache.NewMemoryCache(), nil, nil)

	backend, err := svc.Set(ctx, "k", record("x", 0), time.Hour)
	require.NoError(t, err)
	require.Equal(t, impl.FallbackBackendName, backend)
	require.Equal(t, impl.FallbackBackendName, svc.Stats(ctx)["backend"])
}

func TestIdempotencyService_CleanupSweepsFallbackOnly(t *testing.T) {
	ctx := context.Background()
	svc, primary, fallback, probe := newIdempotencyStore(t)

	_, _ = svc.Set(ctx, "primary-old", record("x", 2*time.Hour), 0)
	probe.down.Store(true)
	_, _ = svc.Set(ctx, "old", record("x", 2*time.Hour), 0)
	_, _ = svc.Set(ctx, "fresh", record("x", 0), 0)
	fallback.Set(ctx, impl.IdempotencyNamespace, "corrupt", []byte("{"), 0)

	require.Equal(t, 2, svc.Cleanup(ctx, time.Hour))
	require.Equal(t, []string{"fresh"}, fallback.List(ctx, impl.IdempotencyNamespace, ""))
	require.Equal(t, []string{"primary-old"}, primary.List(ctx, impl.IdempotencyNamespace, ""))
}

func TestIdempotencyService_StatsReportServingBackend(t *testing.T) {
	ctx := context.Background()
	svc, _, _, probe := newIdempotencyStore(t)
	_, _ = svc.Set(ctx, "k", record("x", 0), time.Hour)

	stats := svc.Stats(ctx)
	require.Equal(t, "redis", stats["backend"])
	require.Equal(t, impl.IdempotencyNamespace, stats["namespace"])
	require.Equal(t, 1, stats["entries"])

	probe.down.Store(true)
	stats = svc.Stats(ctx)
	require.Equal(t, impl.FallbackBackendName, stats["backend"])
	require.Equal(t, 0, stats["fallback_keys"])
}

func TestIdempotencyService_BackgroundCleanupRunsUntilStopped(t *testing.T) {
	ctx := context.Background()
	svc, _, fallback, probe := newIdempotencyStore(t)
	probe.down.Store(true)
	_, _ = svc.Set(ctx, "old", record("x", 48*time.Hour), 0)

	svc.Start(ctx)
	svc.Start(ctx)
	require.Eventually(t, func() bool {
		return len(fallback.List(ctx, impl.IdempotencyNamespace, "")) == 0
	}, time.Second, 5*time.Millisecond)
	svc.Stop()
	svc.Stop()
}
