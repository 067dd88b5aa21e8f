package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventario-valorizacion/internal/application/inventory"
	"github.com/jhoicas/inventario-valorizacion/internal/infrastructure/cache"
)

func newRedisCache(t *testing.T) (*cache.RedisValuationCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewRedisValuationCacheWithClient(client, nil), mr
}

func TestRedisValuationCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)
	pos, _, _ := keys()

	_, ok := c.Get(ctx, pos)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, pos, []byte(`{"total_qty":"5"}`), 5*time.Minute))
	got, ok := c.Get(ctx, pos)
	require.True(t, ok)
	assert.Equal(t, `{"total_qty":"5"}`, string(got))

	assert.True(t, mr.Exists("valuacion:position_stock:pos-1:2024-01-31"))
	assert.Equal(t, 5*time.Minute, mr.TTL("valuacion:position_stock:pos-1:2024-01-31"))
}

func TestRedisValuationCache_Vencimiento(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)
	_, lot, _ := keys()

	require.NoError(t, c.Set(ctx, lot, []byte("1"), 2*time.Minute))
	mr.FastForward(2*time.Minute + time.Second)

	_, ok := c.Get(ctx, lot)
	assert.False(t, ok)

	// la clave vencida sigue en el índice de la posición y en el del lote
	n, err := c.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = c.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRedisValuationCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	c, _ := newRedisCache(t)
	pos, lot, lots := keys()
	for _, k := range []inventory.CacheKey{pos, lot, lots} {
		require.NoError(t, c.Set(ctx, k, []byte("v"), time.Minute))
	}

	require.NoError(t, c.Invalidate(ctx, "pos-1"))
	_, ok := c.Get(ctx, pos)
	assert.False(t, ok)
	_, ok = c.Get(ctx, lot)
	assert.False(t, ok)
	_, ok = c.Get(ctx, lots)
	assert.True(t, ok)

	require.NoError(t, c.InvalidateMany(ctx, []string{"pos-1", "pos-2"}))
	_, ok = c.Get(ctx, lots)
	assert.False(t, ok)
}

func TestRedisValuationCache_InvalidateLot(t *testing.T) {
	ctx := context.Background()
	c, _ := newRedisCache(t)
	pos, lot, _ := keys()
	require.NoError(t, c.Set(ctx, pos, []byte("p"), time.Minute))
	require.NoError(t, c.Set(ctx, lot, []byte("l"), time.Minute))

	require.NoError(t, c.InvalidateLot(ctx, "lote-1"))
	_, ok := c.Get(ctx, lot)
	assert.False(t, ok)
	_, ok = c.Get(ctx, pos)
	assert.True(t, ok)
}

func TestRedisValuationCache_Sobrescritura(t *testing.T) {
	ctx := context.Background()
	c, _ := newRedisCache(t)
	key := inventory.CacheKey{Kind: inventory.KindPositionStock, ID: "pos-9", PositionID: "pos-9"}

	require.NoError(t, c.Set(ctx, key, []byte("a"), time.Minute))
	require.NoError(t, c.Set(ctx, key, []byte("b"), time.Minute))
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "b", string(got))
}
