package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/goimport/internal/domain"
)

func TestCacheSetAndGet(t *testing.T) {
	client, mr := newTestRedisClient(t)
	defer client.Close()

	cache := NewCache(client, DefaultPrefix)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "rate:EUR:USD", []byte("1.08"), time.Minute))

	val, err := cache.Get(ctx, "rate:EUR:USD")
	require.NoError(t, err)
	assert.Equal(t, "1.08", string(val))
	assert.True(t, mr.Exists("goimport:cache:rate:EUR:USD"))
}

func TestCacheExpires(t *testing.T) {
	client, mr := newTestRedisClient(t)
	defer client.Close()

	cache := NewCache(client, DefaultPrefix)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "foo", []byte("bar"), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := cache.Get(ctx, "foo")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCacheDelete(t *testing.T) {
	client, _ := newTestRedisClient(t)
	defer client.Close()

	cache := NewCache(client, DefaultPrefix)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "foo", []byte("bar"), time.Minute))
	require.NoError(t, cache.Delete(ctx, "foo"))

	_, err := cache.Get(ctx, "foo")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
