package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/avatarctic/replaycache/internal/core/ports"
)

const (
	// IdempotencyNamespace is where records are stored in both backends.
	IdempotencyNamespace = ports.IdempotencyNamespace
	// FallbackBackendName identifies the process-local fallback in stats and headers.
	FallbackBackendName = "memory"
)

// IdempotencyServiceConfig groups configuration parameters for the idempotency store.
type IdempotencyServiceConfig struct {
	// TTL is the record lifetime used by the background sweep.
	TTL time.Duration
	// CleanupInterval is how often the local fallback is swept.
	CleanupInterval time.Duration
	// ProbeTimeout bounds the per-call liveness probe of the primary backend.
	ProbeTimeout time.Duration
}

// IdempotencyService implements ports.IdempotencyStore over two cache backends in
// strict priority order: a shared primary, used whenever its liveness probe passes,
// and a process-local fallback. Reads and writes go to whichever backend the probe
// selects at call time; records are never copied between backends, so a flip in
// availability between a read and its paired write can place the record where a
// later read does not look.
type IdempotencyService struct {
	primary  ports.CacheStore
	probe    ports.HealthChecker
	fallback ports.CacheStore

	ttl             time.Duration
	cleanupInterval time.Duration
	probeTimeout    time.Duration
	logger          *logrus.Logger

	lastBackend atomic.Value

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewIdempotencyService creates the store. primary and probe may be nil, in which case
// every call is served by fallback.
func NewIdempotencyService(primary ports.CacheStore, probe ports.HealthChecker, fallback ports.CacheStore, cfg *IdempotencyServiceConfig, logger *logrus.Logger) *IdempotencyService {
	// Apply defaults
	ttl := 24 * time.Hour
	interval := time.Hour
	probeTimeout := 250 * time.Millisecond
	if cfg != nil {
		if cfg.TTL > 0 {
			ttl = cfg.TTL
		}
		if cfg.CleanupInterval > 0 {
			interval = cfg.CleanupInterval
		}
		if cfg.ProbeTimeout > 0 {
			probeTimeout = cfg.ProbeTimeout
		}
	}
	return &IdempotencyService{
		primary:         primary,
		probe:           probe,
		fallback:        fallback,
		ttl:             ttl,
		cleanupInterval: interval,
		probeTimeout:    probeTimeout,
		logger:          logger,
	}
}

// backend probes the primary and returns the store that should serve this call.
func (s *IdempotencyService) backend(ctx context.Context) (ports.CacheStore, string) {
	store, name := s.fallback, FallbackBackendName
	if s.primary != nil && s.probe != nil {
		pctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
		err := s.probe.Check(pctx)
		cancel()
		if err == nil {
			store, name = s.primary, s.probe.Name()
		} else if s.logger != nil {
			s.logger.WithError(err).WithField("backend", s.probe.Name()).Debug("idempotency primary unavailable")
		}
	}
	if prev, _ := s.lastBackend.Swap(name).(string); prev != "" && prev != name && s.logger != nil {
		s.logger.WithFields(logrus.Fields{"from": prev, "to": name}).Warn("idempotency store switched backend")
	}
	return store, name
}

// Get implements ports.IdempotencyStore. Records older than ttl are deleted and
// reported absent; undecodable records are reported absent.
func (s *IdempotencyService) Get(ctx context.Context, key string, ttl time.Duration) (*ports.IdempotencyRecord, string, bool) {
	store, name := s.backend(ctx)
	raw, ok := store.Get(ctx, IdempotencyNamespace, key)
	if !ok {
		return nil, name, false
	}
	var rec ports.IdempotencyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"backend": name, "key": key}).WithError(err).Warn("discarding undecodable idempotency record")
		}
		return nil, name, false
	}
	if ttl > 0 && time.Since(rec.CreatedAt) >= ttl {
		store.Delete(ctx, IdempotencyNamespace, key)
		return nil, name, false
	}
	return &rec, name, true
}

// Set implements ports.IdempotencyStore.
func (s *IdempotencyService) Set(ctx context.Context, key string, record *ports.IdempotencyRecord, ttl time.Duration) (string, error) {
	store, name := s.backend(ctx)
	raw, err := json.Marshal(record)
	if err != nil {
		return name, fmt.Errorf("failed to encode idempotency record: %w", err)
	}
	if !store.Set(ctx, IdempotencyNamespace, key, raw, ttl) {
		return name, fmt.Errorf("idempotency backend %s rejected write", name)
	}
	return name, nil
}

// Cleanup implements ports.IdempotencyStore. Only the local fallback is swept; the
// primary expires its own keys. Eviction is best-effort and not atomic with respect to
// concurrent writers.
func (s *IdempotencyService) Cleanup(ctx context.Context, ttl time.Duration) int {
	removed := 0
	for _, key := range s.fallback.List(ctx, IdempotencyNamespace, "") {
		raw, ok := s.fallback.Get(ctx, IdempotencyNamespace, key)
		if !ok {
			continue
		}
		var rec ports.IdempotencyRecord
		if err := json.Unmarshal(raw, &rec); err == nil && (ttl <= 0 || time.Since(rec.CreatedAt) < ttl) {
			continue
		}
		if s.fallback.Delete(ctx, IdempotencyNamespace, key) {
			removed++
		}
	}
	return removed
}

// Stats implements ports.IdempotencyStore.
func (s *IdempotencyService) Stats(ctx context.Context) map[string]any {
	store, name := s.backend(ctx)
	stats := map[string]any{}
	if r, ok := store.(ports.StatsReporter); ok {
		for k, v := range r.Stats(ctx) {
			stats[k] = v
		}
	}
	stats["backend"] = name
	stats["namespace"] = IdempotencyNamespace
	stats["fallback_keys"] = len(s.fallback.List(ctx, IdempotencyNamespace, ""))
	return stats
}

// Start launches the periodic fallback sweep. It is a no-op if already running.
func (s *IdempotencyService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(s.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Cleanup(ctx, s.ttl); n > 0 && s.logger != nil {
					s.logger.WithField("removed", n).Debug("idempotency fallback sweep")
				}
			}
		}
	}(s.done)

	if s.logger != nil {
		s.logger.WithField("interval", s.cleanupInterval.String()).Info("idempotency cleanup started")
	}
}

// Stop cancels the sweep and waits for it to exit.
func (s *IdempotencyService) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	if s.logger != nil {
		s.logger.Info("idempotency cleanup stopped")
	}
}

var _ ports.IdempotencyStore = (*IdempotencyService)(nil)
