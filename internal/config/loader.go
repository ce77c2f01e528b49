package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// FlagKeys maps CLI flag names to configuration keys.
// Only flags that were explicitly set on the command line override other sources.
var FlagKeys = map[string]string{
	"host":         "server.host",
	"port":         "server.port",
	"db-driver":    "database.driver",
	"database-url": "database.url",
	"log-level":    "logging.level",
	"log-format":   "logging.format",
	"chunk-size":   "bulk.chunk_size",
	"redis-addr":   "cache.redis_addr",
	"geometry":     "geometry.source",
	"require-auth": "security.require_auth",
}

// Load reads configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and environment variables, then validates the result.
func Load() (*Config, error) {
	return LoadWithFlags("", nil)
}

// LoadWithFlags loads configuration with an optional explicit config file and
// CLI flag overrides.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadWithFlags(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg, err := load(cfgFile, flags)
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

func load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	tags := collectTags(reflect.TypeOf(Config{}), "")

	// 1. Struct defaults
	if err := k.Load(confmap.Provider(tags.defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	// 2. Optional YAML file
	if cfgFile == "" {
		cfgFile = os.Getenv("CONFIG_FILE")
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", cfgFile, err)
		}
	}

	// 3. Environment: alternates first so the primary name wins when both are set.
	// Empty values are treated as unset.
	for _, names := range []map[string]string{tags.envAlt, tags.env} {
		names := names
		if err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
			if strings.TrimSpace(value) == "" {
				return "", nil
			}
			return names[key], value
		}), nil); err != nil {
			return nil, fmt.Errorf("load env vars: %w", err)
		}
	}

	// 4. Explicitly set flags
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := FlagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// tagIndex holds the koanf keys discovered from struct tags.
type tagIndex struct {
	defaults map[string]interface{} // koanf key -> default value
	env      map[string]string      // env var -> koanf key
	envAlt   map[string]string      // alternate env var -> koanf key
}

// collectTags walks the config struct and indexes koanf keys by their
// default and env tags.
func collectTags(t reflect.Type, prefix string) tagIndex {
	idx := tagIndex{
		defaults: make(map[string]interface{}),
		env:      make(map[string]string),
		envAlt:   make(map[string]string),
	}
	walkTags(t, prefix, idx)
	return idx
}

func walkTags(t reflect.Type, prefix string, idx tagIndex) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		key := field.Tag.Get("koanf")
		if key == "" {
			key = strings.ToLower(field.Name)
		}
		if prefix != "" {
			key = prefix + "." + key
		}

		if field.Type.Kind() == reflect.Struct {
			walkTags(field.Type, key, idx)
			continue
		}

		if def, ok := field.Tag.Lookup("default"); ok {
			idx.defaults[key] = def
		}
		if name := field.Tag.Get("env"); name != "" {
			idx.env[name] = key
		}
		if alt := field.Tag.Get("envAlt"); alt != "" {
			idx.envAlt[alt] = key
		}
	}
}

// normalize trims list entries and lowercases enumerated settings.
func (c *Config) normalize() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Security.TrustedProxies = trimList(c.Security.TrustedProxies)
	c.Security.WriteRoles = trimList(c.Security.WriteRoles)
}

func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, "DATABASE_URL is required for the postgres driver")
		}
	case "sqlite":
		if c.Database.URL == "" {
			errs = append(errs, "DATABASE_URL must name a SQLite file (or :memory:) for the sqlite driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("DB_DRIVER (%q) must be one of: postgres, sqlite", c.Database.Driver))
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, "SERVER_MAX_BODY_BYTES must be positive")
	}

	// Bulk validation
	if c.Bulk.ChunkSize <= 0 {
		errs = append(errs, "BULK_CHUNK_SIZE must be positive")
	}
	if c.Bulk.MaxRows <= 0 {
		errs = append(errs, "BULK_MAX_ROWS must be positive")
	}
	if c.Bulk.MaxConcurrent <= 0 {
		errs = append(errs, "BULK_MAX_CONCURRENT must be positive")
	}
	if c.Bulk.MaxWaitTime <= 0 {
		errs = append(errs, "BULK_MAX_WAIT_TIME must be positive")
	}
	if c.Bulk.Timeout <= 0 {
		errs = append(errs, "BULK_TIMEOUT must be positive")
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.BulkLimit <= 0 {
		errs = append(errs, "RATE_LIMIT_BULK must be positive when rate limiting is enabled")
	}

	// Security validation
	if c.Security.RequireAuth && c.Security.JWTSecret == "" {
		errs = append(errs, "REQUIRE_AUTH is true but JWT_SECRET is empty; configure a secret or disable auth")
	}
	if len(c.Security.WriteRoles) == 0 {
		errs = append(errs, "WRITE_ROLES must list at least one role")
	}

	// Cache validation
	if c.Cache.RedisAddr != "" && c.Cache.TTL <= 0 {
		errs = append(errs, "CACHE_TTL must be positive when REDIS_ADDR is set")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs and secrets are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Database: {Driver: %q, URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.Driver, c.Database.MaxConns, c.Database.MinConns))
	b.WriteString(fmt.Sprintf("Bulk: {ChunkSize: %d, MaxRows: %d, MaxConcurrent: %d}, ",
		c.Bulk.ChunkSize, c.Bulk.MaxRows, c.Bulk.MaxConcurrent))
	b.WriteString(fmt.Sprintf("Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute))
	b.WriteString(fmt.Sprintf("Security: {RequireAuth: %v, JWTSecret: [MASKED], WriteRoles: %v}, ",
		c.Security.RequireAuth, c.Security.WriteRoles))
	b.WriteString(fmt.Sprintf("Cache: {Redis: %v}, ", c.Cache.RedisAddr != ""))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
