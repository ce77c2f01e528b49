// Package cache provides core.Cache implementations for composed maps.
//
// Entries are never invalidated directly. Keys embed each dataset's
// generation, and writes bump the generation, so stale entries simply stop
// being addressed and expire on their own.
package cache

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/geoatlas/internal/config"
	"github.com/JonMunkholm/geoatlas/internal/core"
)

// New returns a Redis cache when cfg names a Redis address and an
// in-process cache otherwise.
func New(ctx context.Context, cfg config.CacheConfig) (core.Cache, error) {
	if cfg.RedisAddr == "" {
		return NewMemory(), nil
	}
	c, err := NewRedis(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}
