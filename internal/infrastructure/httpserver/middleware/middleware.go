package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/replaycache/internal/core/ports"
)

// MiddlewareCollection holds all middleware instances
type MiddlewareCollection struct {
	Identity    *IdentityMiddleware
	Logging     *LoggingMiddleware
	RateLimit   *RateLimitMiddleware
	Metrics     *MetricsMiddleware
	Idempotency *IdempotencyMiddleware
}

// NewMiddlewareCollection creates a new collection of all middleware
func NewMiddlewareCollection(
	idempotencyStore ports.IdempotencyStore,
	rateLimiterService ports.RateLimiterService,
	logger *logrus.Logger,
	jwtSecret string,
	jwtIssuer string,
	requestsTotal *prometheus.CounterVec,
	requestDuration *prometheus.HistogramVec,
	idempotencyOutcomes *prometheus.CounterVec,
) *MiddlewareCollection {
	return &MiddlewareCollection{
		Identity:    NewIdentityMiddleware(jwtSecret, jwtIssuer, logger),
		Logging:     NewLoggingMiddleware(logger),
		RateLimit:   NewRateLimitMiddleware(rateLimiterService, logger),
		Metrics:     NewMetricsMiddleware(requestsTotal, requestDuration),
		Idempotency: NewIdempotencyMiddleware(idempotencyStore, idempotencyOutcomes, logger),
	}
}
