// Package config provides centralized configuration management for the application.
// Settings come from struct defaults, an optional YAML file, environment variables
// and CLI flags (in increasing precedence), and are validated on startup to fail
// fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// Every leaf field documents its environment variable and default.
type Config struct {
	Server   ServerConfig    `koanf:"server"`
	Database DatabaseConfig  `koanf:"database"`
	Bulk     BulkConfig      `koanf:"bulk"`
	Rate     RateLimitConfig `koanf:"rate"`
	Security SecurityConfig  `koanf:"security"`
	Logging  LoggingConfig   `koanf:"logging"`
	Cache    CacheConfig     `koanf:"cache"`
	Geometry GeometryConfig  `koanf:"geometry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `koanf:"host" env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `koanf:"port" env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `koanf:"read_timeout" env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing a response (default: 60s)
	WriteTimeout time.Duration `koanf:"write_timeout" env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `koanf:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 120s)
	RequestTimeout time.Duration `koanf:"request_timeout" env:"SERVER_REQUEST_TIMEOUT" default:"120s"`

	// MaxBodyBytes caps request bodies, bulk uploads included (default: 64MB)
	MaxBodyBytes int64 `koanf:"max_body_bytes" env:"SERVER_MAX_BODY_BYTES" default:"67108864"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver selects the storage backend: postgres or sqlite (default: postgres)
	Driver string `koanf:"driver" env:"DB_DRIVER" default:"postgres"`

	// URL is the PostgreSQL connection string, or the SQLite file path.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility.
	URL string `koanf:"url" env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `koanf:"max_conns" env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `koanf:"min_conns" env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `koanf:"max_conn_lifetime" env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `koanf:"max_conn_idle_time" env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies pending migrations on startup (default: true)
	AutoMigrate bool `koanf:"auto_migrate" env:"DB_AUTO_MIGRATE" default:"true"`
}

// BulkConfig holds bulk reconciliation settings.
type BulkConfig struct {
	// ChunkSize is the number of rows reconciled per transaction (default: 500)
	ChunkSize int `koanf:"chunk_size" env:"BULK_CHUNK_SIZE" default:"500"`

	// MaxRows is the largest batch accepted by one call (default: 50000)
	MaxRows int `koanf:"max_rows" env:"BULK_MAX_ROWS" default:"50000"`

	// MaxConcurrent is the maximum number of parallel bulk imports (default: 4)
	MaxConcurrent int `koanf:"max_concurrent" env:"BULK_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for an import slot (default: 30s)
	MaxWaitTime time.Duration `koanf:"max_wait_time" env:"BULK_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single bulk call (default: 10m)
	Timeout time.Duration `koanf:"timeout" env:"BULK_TIMEOUT" default:"10m"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `koanf:"enabled" env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 300)
	RequestsPerMinute int `koanf:"requests_per_minute" env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`

	// BulkLimit is requests per minute for bulk endpoints (default: 10)
	BulkLimit int `koanf:"bulk_limit" env:"RATE_LIMIT_BULK" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `koanf:"trusted_proxies" env:"TRUSTED_PROXIES"`

	// JWTSecret verifies HS256 bearer tokens carrying the caller principal
	JWTSecret string `koanf:"jwt_secret" env:"JWT_SECRET"`

	// JWTIssuer, when set, must match the token's iss claim
	JWTIssuer string `koanf:"jwt_issuer" env:"JWT_ISSUER"`

	// WriteRoles lists the roles allowed to invoke write operations
	WriteRoles []string `koanf:"write_roles" env:"WRITE_ROLES" default:"admin,analyst"`

	// RequireAuth rejects requests without a valid principal (default: true)
	RequireAuth bool `koanf:"require_auth" env:"REQUIRE_AUTH" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `koanf:"level" env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `koanf:"format" env:"LOG_FORMAT" default:"text"`
}

// CacheConfig holds feature-collection cache settings.
type CacheConfig struct {
	// RedisAddr enables the Redis cache when set (host:port)
	RedisAddr string `koanf:"redis_addr" env:"REDIS_ADDR"`

	// RedisPassword is the optional Redis AUTH password
	RedisPassword string `koanf:"redis_password" env:"REDIS_PASSWORD"`

	// RedisDB selects the Redis logical database (default: 0)
	RedisDB int `koanf:"redis_db" env:"REDIS_DB" default:"0"`

	// Prefix namespaces every cache key (default: geoatlas)
	Prefix string `koanf:"prefix" env:"CACHE_PREFIX" default:"geoatlas"`

	// TTL bounds how long a composed map is served from cache (default: 10m)
	TTL time.Duration `koanf:"ttl" env:"CACHE_TTL" default:"10m"`
}

// GeometryConfig holds province geometry seeding settings.
type GeometryConfig struct {
	// Source is a GeoJSON file path or s3://bucket/key
	Source string `koanf:"source" env:"GEOMETRY_SOURCE"`

	// NameProperty is the feature property holding the province name (default: name)
	NameProperty string `koanf:"name_property" env:"GEOMETRY_NAME_PROPERTY" default:"name"`

	// CodeProperty is the feature property holding the province code (default: code)
	CodeProperty string `koanf:"code_property" env:"GEOMETRY_CODE_PROPERTY" default:"code"`

	// S3Region is the region used for s3:// sources (default: us-east-1)
	S3Region string `koanf:"s3_region" env:"GEOMETRY_S3_REGION" default:"us-east-1"`

	// S3Endpoint overrides the S3 endpoint (MinIO and friends)
	S3Endpoint string `koanf:"s3_endpoint" env:"GEOMETRY_S3_ENDPOINT"`

	// S3PathStyle forces path-style addressing (default: false)
	S3PathStyle bool `koanf:"s3_path_style" env:"GEOMETRY_S3_PATH_STYLE" default:"false"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// CanWrite reports whether role is one of the configured write roles.
func (c *SecurityConfig) CanWrite(role string) bool {
	for _, r := range c.WriteRoles {
		if r == role {
			return true
		}
	}
	return false
}
