package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalEnv sets the variables every valid configuration needs.
func minimalEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("JWT_SECRET", "test-secret")
}

func TestLoad_Defaults(t *testing.T) {
	minimalEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 20, cfg.Database.MaxConns)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, 500, cfg.Bulk.ChunkSize)
	assert.Equal(t, 50000, cfg.Bulk.MaxRows)
	assert.Equal(t, 10*time.Minute, cfg.Bulk.Timeout)
	assert.Equal(t, 300, cfg.Rate.RequestsPerMinute)
	assert.Equal(t, []string{"admin", "analyst"}, cfg.Security.WriteRoles)
	assert.Equal(t, "geoatlas", cfg.Cache.Prefix)
	assert.Equal(t, "name", cfg.Geometry.NameProperty)
}

func TestLoad_OverrideDefaults(t *testing.T) {
	minimalEnv(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("BULK_CHUNK_SIZE", "50")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("WRITE_ROLES", "admin, editor ,")
	t.Setenv("CACHE_TTL", "90s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Bulk.ChunkSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []string{"admin", "editor"}, cfg.Security.WriteRoles)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
}

func TestLoad_AltEnvVar(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	t.Run("alternate used when primary unset", func(t *testing.T) {
		t.Setenv("DB_URL", "postgres://localhost/alttest")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "postgres://localhost/alttest", cfg.Database.URL)
	})

	t.Run("primary wins over alternate", func(t *testing.T) {
		t.Setenv("DB_URL", "postgres://localhost/alttest")
		t.Setenv("DATABASE_URL", "postgres://localhost/primary")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "postgres://localhost/primary", cfg.Database.URL)
	})
}

func TestLoad_ConfigFile(t *testing.T) {
	minimalEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "geoatlas.yaml")
	content := `
server:
  port: 7070
bulk:
  chunk_size: 25
logging:
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	// env overrides file
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := LoadWithFlags(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Bulk.ChunkSize)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	minimalEnv(t)
	t.Setenv("SERVER_PORT", "9090")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 8080, "")
	flags.String("log-level", "info", "")
	flags.String("db-driver", "postgres", "")
	require.NoError(t, flags.Parse([]string{"--port=6060"}))

	cfg, err := LoadWithFlags("", flags)
	require.NoError(t, err)

	assert.Equal(t, 6060, cfg.Server.Port)
	// unchanged flags do not override defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "")
	t.Setenv("JWT_SECRET", "test-secret")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{
				Port:            8080,
				ShutdownTimeout: 30 * time.Second,
				MaxBodyBytes:    1 << 20,
			},
			Database: DatabaseConfig{
				Driver:   "postgres",
				URL:      "postgres://localhost/test",
				MaxConns: 10,
				MinConns: 2,
			},
			Bulk: BulkConfig{
				ChunkSize:     100,
				MaxRows:       1000,
				MaxConcurrent: 2,
				MaxWaitTime:   time.Second,
				Timeout:       time.Minute,
			},
			Rate:     RateLimitConfig{Enabled: true, RequestsPerMinute: 10, BulkLimit: 1},
			Security: SecurityConfig{JWTSecret: "s", RequireAuth: true, WriteRoles: []string{"admin"}},
			Logging:  LoggingConfig{Level: "info", Format: "text"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:   "sqlite driver",
			mutate: func(c *Config) { c.Database.Driver = "sqlite"; c.Database.URL = ":memory:" },
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "mysql" },
			wantErr: "DB_DRIVER",
		},
		{
			name:    "max below min conns",
			mutate:  func(c *Config) { c.Database.MaxConns = 1 },
			wantErr: "DB_MAX_CONNS (1) must be >= DB_MIN_CONNS (2)",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "SERVER_PORT",
		},
		{
			name:    "zero chunk size",
			mutate:  func(c *Config) { c.Bulk.ChunkSize = 0 },
			wantErr: "BULK_CHUNK_SIZE",
		},
		{
			name:    "auth without secret",
			mutate:  func(c *Config) { c.Security.JWTSecret = "" },
			wantErr: "JWT_SECRET",
		},
		{
			name:   "auth disabled without secret",
			mutate: func(c *Config) { c.Security.JWTSecret = ""; c.Security.RequireAuth = false },
		},
		{
			name:    "no write roles",
			mutate:  func(c *Config) { c.Security.WriteRoles = nil },
			wantErr: "WRITE_ROLES",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "LOG_LEVEL",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "LOG_FORMAT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "DB_DRIVER")
	assert.Contains(t, msg, "SERVER_PORT")
	assert.Contains(t, msg, "BULK_CHUNK_SIZE")
	assert.Contains(t, msg, "LOG_LEVEL")
}

func TestSecurityConfig_CanWrite(t *testing.T) {
	s := SecurityConfig{WriteRoles: []string{"admin", "analyst"}}

	assert.True(t, s.CanWrite("admin"))
	assert.True(t, s.CanWrite("analyst"))
	assert.False(t, s.CanWrite("viewer"))
	assert.False(t, s.CanWrite(""))
}

func TestConfig_StringMasksSecrets(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{URL: "postgres://user:hunter2@db/atlas"},
		Security: SecurityConfig{JWTSecret: "topsecret"},
	}

	s := cfg.String()
	assert.NotContains(t, s, "hunter2")
	assert.NotContains(t, s, "topsecret")
	assert.Contains(t, s, "[MASKED]")
}

func TestServerConfig_Addr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 8081}
	assert.Equal(t, "127.0.0.1:8081", s.Addr())
}
