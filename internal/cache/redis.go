package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/geoatlas/internal/config"
	goredis "github.com/redis/go-redis/v9"
)

// Redis stores composed maps in Redis. Every Redis error is a miss.
type Redis struct {
	rdb    *goredis.Client
	prefix string
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg config.CacheConfig) (*Redis, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return newRedis(rdb, cfg.Prefix), nil
}

func newRedis(rdb *goredis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "geoatlas"
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

func (r *Redis) key(parts ...string) string {
	k := r.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// Get returns a cached value.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			slog.Debug("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	return b, true
}

// Set stores a value for ttl.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := r.rdb.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		slog.Debug("cache set failed", "key", key, "error", err)
	}
}

// Generation returns a dataset's generation, 0 if never bumped.
func (r *Redis) Generation(ctx context.Context, dataset string) int64 {
	n, err := r.rdb.Get(ctx, r.key("gen", dataset)).Int64()
	if err != nil {
		return 0
	}
	return n
}

// Bump advances a dataset's generation.
func (r *Redis) Bump(ctx context.Context, dataset string) {
	if err := r.rdb.Incr(ctx, r.key("gen", dataset)).Err(); err != nil {
		slog.Warn("cache generation bump failed", "dataset", dataset, "error", err)
	}
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
