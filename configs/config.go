package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Redis       RedisConfig
	Log         LogConfig
	RateLimit   RateLimitConfig
	Cache       CacheConfig
	Idempotency IdempotencyConfig
}

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
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	DSN      string
	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MigrationsPath  string
}

// JWTConfig is optional: with no secret every caller is anonymous.
type JWTConfig struct {
	Secret string
	Issuer string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	// Pool and timeout settings
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
	IdleTimeout  time.Duration
}

type LogConfig struct {
	Level  string
	Format string // json or text
}

type RateLimitConfig struct {
	Enabled                  bool
	DefaultRequestsPerMinute int
	BurstMultiplier          float64
	Window                   time.Duration
	KeyPrefix                string
}

type CacheConfig struct {
	// KeyPrefix is prepended to every Redis cache key.
	KeyPrefix      string
	DocumentTTL    time.Duration
	SearchTTL      time.Duration
	SearchPageSize int
	// CoalesceSearch collapses concurrent search misses into one database query.
	CoalesceSearch bool
}

type IdempotencyConfig struct {
	// KeyPrefix is prepended to idempotency keys in Redis. It must not overlap
	// Cache.KeyPrefix, which the admin cache endpoints can list and clear.
	KeyPrefix       string
	TTL             time.Duration
	HeaderName      string
	Required        bool
	Methods         []string
	CleanupInterval time.Duration
	ProbeTimeout    time.Duration
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			ReadTimeout:    getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
			TLSCertFile:    getEnv("TLS_CERT_FILE", ""),
			TLSKeyFile:     getEnv("TLS_KEY_FILE", ""),
			AllowedOrigins: getListEnv("ALLOWED_ORIGINS", []string{"*"}),
			Environment:    getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "replaycache"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getDurationEnv("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			MigrationsPath:  getEnv("DB_MIGRATIONS_PATH", "./migrations"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
			Issuer: getEnv("JWT_ISSUER", ""),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getIntEnv("REDIS_DB", 0),
			PoolSize:     getIntEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: getIntEnv("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PoolTimeout:  getDurationEnv("REDIS_POOL_TIMEOUT", 4*time.Second),
			IdleTimeout:  getDurationEnv("REDIS_IDLE_TIMEOUT", 5*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		RateLimit: RateLimitConfig{
			Enabled:                  getBoolEnv("RATE_LIMIT_ENABLED", true),
			DefaultRequestsPerMinute: getIntEnv("RATE_LIMIT_RPM", 120),
			BurstMultiplier:          getFloatEnv("RATE_LIMIT_BURST", 2.0),
			Window:                   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
			KeyPrefix:                getEnv("RATE_LIMIT_KEY_PREFIX", "ratelimit:identity"),
		},
		Cache: CacheConfig{
			KeyPrefix:      getEnv("CACHE_KEY_PREFIX", "replaycache"),
			DocumentTTL:    getDurationEnv("CACHE_DOCUMENT_TTL", 10*time.Minute),
			SearchTTL:      getDurationEnv("CACHE_SEARCH_TTL", 5*time.Minute),
			SearchPageSize: getIntEnv("CACHE_SEARCH_PAGE_SIZE", 20),
			CoalesceSearch: getBoolEnv("CACHE_COALESCE_SEARCH", false),
		},
		Idempotency: IdempotencyConfig{
			KeyPrefix:       getEnv("IDEMPOTENCY_KEY_PREFIX", "replaycache-idempotency"),
			TTL:             getDurationEnv("IDEMPOTENCY_TTL", 24*time.Hour),
			HeaderName:      getEnv("IDEMPOTENCY_HEADER", "Idempotency-Key"),
			Required:        getBoolEnv("IDEMPOTENCY_REQUIRED", false),
			Methods:         getListEnv("IDEMPOTENCY_METHODS", []string{"POST", "PUT", "PATCH", "DELETE"}),
			CleanupInterval: getDurationEnv("IDEMPOTENCY_CLEANUP_INTERVAL", time.Hour),
			ProbeTimeout:    getDurationEnv("IDEMPOTENCY_PROBE_TIMEOUT", 250*time.Millisecond),
		},
	}

	// Build database DSN
	cfg.Database.DSN = fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.DBName,
		cfg.Database.SSLMode,
	)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Idempotency.TTL <= 0 {
		return fmt.Errorf("IDEMPOTENCY_TTL must be positive, got %s", c.Idempotency.TTL)
	}
	if c.Idempotency.CleanupInterval <= 0 {
		return fmt.Errorf("IDEMPOTENCY_CLEANUP_INTERVAL must be positive, got %s", c.Idempotency.CleanupInterval)
	}
	if strings.TrimSpace(c.Idempotency.HeaderName) == "" {
		return fmt.Errorf("IDEMPOTENCY_HEADER must not be blank")
	}
	if prefixesOverlap(c.Idempotency.KeyPrefix, c.Cache.KeyPrefix) {
		return fmt.Errorf("IDEMPOTENCY_KEY_PREFIX %q must differ from CACHE_KEY_PREFIX %q and not nest inside it", c.Idempotency.KeyPrefix, c.Cache.KeyPrefix)
	}
	if c.Cache.SearchPageSize <= 0 {
		return fmt.Errorf("CACHE_SEARCH_PAGE_SIZE must be positive, got %d", c.Cache.SearchPageSize)
	}
	return nil
}

// prefixesOverlap reports whether keys written under one Redis prefix can match the
// other's <prefix>:* patterns.
func prefixesOverlap(a, b string) bool {
	if a == "" || b == "" || a == b {
		return true
	}
	return strings.HasPrefix(a, b+":") || strings.HasPrefix(b, a+":")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getListEnv splits a comma-separated value, dropping blank items.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
