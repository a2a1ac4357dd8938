package middleware

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/replaycache/internal/core/ports"
	"github.com/avatarctic/replaycache/internal/infrastructure/httpserver/helpers"
)

const (
	DefaultIdempotencyTTL    = 24 * time.Hour
	DefaultIdempotencyHeader = "Idempotency-Key"

	MinIdempotencyKeyLength = 16
	MaxIdempotencyKeyLength = 255

	HeaderIdempotentReplayed = "X-Idempotent-Replayed"
	HeaderCacheBackend       = "X-Cache-Backend"

	CodeIdempotencyKeyRequired = "IDEMPOTENCY_KEY_REQUIRED"
	CodeInvalidIdempotencyKey  = "INVALID_IDEMPOTENCY_KEY"
)

// Outcome labels for the idempotency requests counter.
const (
	OutcomePassthrough = "passthrough"
	OutcomeRejected    = "rejected"
	OutcomeReplayed    = "replayed"
	OutcomeRecorded    = "recorded"
	OutcomeNotRecorded = "not_recorded"
)

// recordedHeaders is the header subset persisted with a response.
var recordedHeaders = []string{echo.HeaderContentType, echo.HeaderLocation}

// IdempotencyOptions configure one guarded route or group.
type IdempotencyOptions struct {
	TTL        time.Duration
	HeaderName string
	Required   bool
	// Methods lists the guarded HTTP methods. Empty means POST, PUT, PATCH and DELETE.
	Methods []string
}

func (o IdempotencyOptions) withDefaults() IdempotencyOptions {
	if o.TTL <= 0 {
		o.TTL = DefaultIdempotencyTTL
	}
	if o.HeaderName == "" {
		o.HeaderName = DefaultIdempotencyHeader
	}
	if len(o.Methods) == 0 {
		o.Methods = []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}
	}
	return o
}

type IdempotencyMiddleware struct {
	store    ports.IdempotencyStore
	outcomes *prometheus.CounterVec
	logger   *logrus.Logger
}

// NewIdempotencyMiddleware creates the middleware. outcomes may be nil.
func NewIdempotencyMiddleware(store ports.IdempotencyStore, outcomes *prometheus.CounterVec, logger *logrus.Logger) *IdempotencyMiddleware {
	return &IdempotencyMiddleware{store: store, outcomes: outcomes, logger: logger}
}

// Guard replays the recorded 2xx response for a repeated (identity, method, path, key)
// instead of running the handler again. Store faults never block the handler.
func (m *IdempotencyMiddleware) Guard(opts IdempotencyOptions) echo.MiddlewareFunc {
	opts = opts.withDefaults()
	methods := make(map[string]struct{}, len(opts.Methods))
	for _, method := range opts.Methods {
		methods[strings.ToUpper(method)] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if _, ok := methods[req.Method]; !ok {
				m.count(OutcomePassthrough)
				return next(c)
			}

			token := req.Header.Get(opts.HeaderName)
			if token == "" {
				if opts.Required {
					m.count(OutcomeRejected)
					return helpers.WriteError(c, http.StatusBadRequest, CodeIdempotencyKeyRequired,
						fmt.Sprintf("%s header is required", opts.HeaderName))
				}
				m.count(OutcomePassthrough)
				return next(c)
			}
			if n := utf8.RuneCountInString(token); n < MinIdempotencyKeyLength || n > MaxIdempotencyKeyLength {
				m.count(OutcomeRejected)
				return helpers.WriteError(c, http.StatusBadRequest, CodeInvalidIdempotencyKey,
					fmt.Sprintf("%s must be between %d and %d characters", opts.HeaderName, MinIdempotencyKeyLength, MaxIdempotencyKeyLength))
			}

			key := CompositeKey(helpers.GetIdentity(c), req.Method, req.URL.Path, token)
			ctx := req.Context()

			if rec, backend, ok := m.store.Get(ctx, key, opts.TTL); ok {
				m.count(OutcomeReplayed)
				if m.logger != nil {
					m.logger.WithFields(logrus.Fields{"key": key, "backend": backend, "status": rec.StatusCode}).Debug("replaying idempotent response")
				}
				return replay(c, rec, backend)
			}

			capture := newCaptureWriter(c.Response().Writer)
			c.Response().Writer = capture
			err := next(c)
			c.Response().Writer = capture.ResponseWriter

			status := c.Response().Status
			if err != nil || status < 200 || status > 299 {
				m.count(OutcomeNotRecorded)
				return err
			}

			rec := &ports.IdempotencyRecord{
				StatusCode: status,
				Headers:    pickHeaders(c.Response().Header()),
				Body:       capture.body.Bytes(),
				CreatedAt:  time.Now().UTC(),
			}
			// the client may already be gone; the response is still recorded
			backend, setErr := m.store.Set(context.WithoutCancel(ctx), key, rec, opts.TTL)
			if setErr != nil {
				m.count(OutcomeNotRecorded)
				if m.logger != nil {
					m.logger.WithFields(logrus.Fields{"key": key, "backend": backend}).WithError(setErr).Warn("failed to record idempotent response")
				}
				return nil
			}
			m.count(OutcomeRecorded)
			return nil
		}
	}
}

// CompositeKey addresses one idempotency record. Each of the four parts is written as
// <byte length>:<part>, so parts containing ':' cannot be shifted into a neighbour.
func CompositeKey(identity, method, path, token string) string {
	if identity == "" {
		identity = helpers.AnonymousIdentity
	}
	var b strings.Builder
	for i, part := range [...]string{identity, method, path, token} {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(strconv.Itoa(len(part)))
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

func replay(c echo.Context, rec *ports.IdempotencyRecord, backend string) error {
	h := c.Response().Header()
	for k, v := range rec.Headers {
		h.Set(k, v)
	}
	h.Set(HeaderIdempotentReplayed, "true")
	h.Set(HeaderCacheBackend, backend)
	c.Response().WriteHeader(rec.StatusCode)
	_, err := c.Response().Write(rec.Body)
	return err
}

func pickHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(recordedHeaders))
	for _, name := range recordedHeaders {
		if v := h.Get(name); v != "" {
			out[name] = v
		}
	}
	return out
}

func (m *IdempotencyMiddleware) count(outcome string) {
	if m.outcomes != nil {
		m.outcomes.WithLabelValues(outcome).Inc()
	}
}

// captureWriter passes writes through to the client while keeping a copy of the body.
type captureWriter struct {
	http.ResponseWriter
	body bytes.Buffer
}

func newCaptureWriter(w http.ResponseWriter) *captureWriter {
	return &captureWriter{ResponseWriter: w}
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *captureWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
