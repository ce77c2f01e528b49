package cache

import (
	"context"
	"testing"
	"time"

	"github.com/JonMunkholm/geoatlas/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ core.Cache = (*Memory)(nil)
var _ core.Cache = (*Redis)(nil)

func TestMemory_GetSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, ok := m.Get(ctx, "missing")
	assert.False(t, ok)

	m.Set(ctx, "k", []byte("v"), time.Minute)
	got, ok := m.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.Set(ctx, "short", []byte("x"), time.Second)
	m.Set(ctx, "forever", []byte("y"), 0)

	now = now.Add(2 * time.Second)

	_, ok := m.Get(ctx, "short")
	assert.False(t, ok, "expired entry must miss")
	_, ok = m.Get(ctx, "forever")
	assert.True(t, ok, "zero ttl never expires")
}

func TestMemory_SweepOnSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	for _, k := range []string{"a", "b", "c"} {
		m.Set(ctx, k, []byte(k), time.Second)
	}
	require.Equal(t, 3, m.Len())

	now = now.Add(2 * time.Minute)
	m.Set(ctx, "d", []byte("d"), time.Minute)
	assert.Equal(t, 1, m.Len())
}

func TestMemory_Generations(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	assert.Equal(t, int64(0), m.Generation(ctx, "climate"))
	m.Bump(ctx, "climate")
	m.Bump(ctx, "climate")
	assert.Equal(t, int64(2), m.Generation(ctx, "climate"))
	assert.Equal(t, int64(0), m.Generation(ctx, "food-security"), "generations are per dataset")
}

func TestNew_WithoutRedisUsesMemory(t *testing.T) {
	c, err := New(context.Background(), configWithoutRedis())
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, c)
}
