package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/replaycache/internal/infrastructure/httpserver/helpers"
)

type LoggingMiddleware struct {
	logger *logrus.Logger
}

func NewLoggingMiddleware(logger *logrus.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger}
}

func (m *LoggingMiddleware) RequestLogging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m.logger == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)
			m.logger.WithFields(logrus.Fields{
				"method":      c.Request().Method,
				"path":        c.Path(),
				"status":      c.Response().Status,
				"identity":    helpers.GetIdentity(c),
				"request_id":  c.Response().Header().Get(echo.HeaderXRequestID),
				"replayed":    c.Response().Header().Get(HeaderIdempotentReplayed) != "",
				"duration_ms": time.Since(start).Milliseconds(),
			}).Debug("request handled")
			return err
		}
	}
}
