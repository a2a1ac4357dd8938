package httpserver

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/replaycache/internal/core/ports"
	customMiddleware "github.com/avatarctic/replaycache/internal/infrastructure/httpserver/middleware"
	"github.com/avatarctic/replaycache/internal/utils"
)

type ServerConfig struct {
	Host           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TLSCertFile    string
	TLSKeyFile     string
	AllowedOrigins []string
	Environment    string
	JWTSecret      string
	JWTIssuer      string
	Idempotency    customMiddleware.IdempotencyOptions
}

type ServerDeps struct {
	DocumentService    ports.DocumentService
	IdempotencyStore   ports.IdempotencyStore
	RateLimiterService ports.RateLimiterService
	// AdminCache backs the cache inspection endpoints.
	AdminCache     ports.CacheStore
	HealthCheckers []ports.HealthChecker
}

type Server struct {
	echo             *echo.Echo
	config           *ServerConfig
	logger           *logrus.Logger
	documentSvc      ports.DocumentService
	idempotencyStore ports.IdempotencyStore
	adminCache       ports.CacheStore
	middleware       *customMiddleware.MiddlewareCollection
	healthCheckers   []ports.HealthChecker
}

func NewServer(serverConfig *ServerConfig, logger *logrus.Logger, deps ServerDeps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &requestValidator{}

	server := &Server{
		echo:             e,
		config:           serverConfig,
		logger:           logger,
		documentSvc:      deps.DocumentService,
		idempotencyStore: deps.IdempotencyStore,
		adminCache:       deps.AdminCache,
		healthCheckers:   deps.HealthCheckers,
		middleware: customMiddleware.NewMiddlewareCollection(
			deps.IdempotencyStore,
			deps.RateLimiterService,
			logger,
			serverConfig.JWTSecret,
			serverConfig.JWTIssuer,
			GetRequestsTotal(),
			GetRequestDuration(),
			GetIdempotencyOutcomes(),
		),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// requestValidator adapts struct tag validation to echo.Validator.
type requestValidator struct{}

func (v *requestValidator) Validate(i interface{}) error {
	return utils.ValidateStruct(i)
}
