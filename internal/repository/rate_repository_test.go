package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestIncrementWindow_CountsAndExpires(t *testing.T) {
	mr, client := newMiniRedis(t)
	repo := NewRateWindowRepository(client)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		count, ttl, err := repo.IncrementWindow(ctx, "rate:key:a", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(i), count)
		assert.Greater(t, ttl, time.Duration(0))
		assert.LessOrEqual(t, ttl, time.Minute)
	}

	mr.FastForward(61 * time.Second)

	count, _, err := repo.IncrementWindow(ctx, "rate:key:a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestIncrementWindow_RepairsMissingExpiry(t *testing.T) {
	mr, client := newMiniRedis(t)
	repo := NewRateWindowRepository(client)

	require.NoError(t, mr.Set("rate:key:b", "4"))

	count, ttl, err := repo.IncrementWindow(context.Background(), "rate:key:b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
	assert.Equal(t, time.Minute, ttl)
	assert.Equal(t, time.Minute, mr.TTL("rate:key:b"))
}

func TestIncrementWindow_InvalidInput(t *testing.T) {
	_, client := newMiniRedis(t)
	repo := NewRateWindowRepository(client)

	_, _, err := repo.IncrementWindow(context.Background(), "", time.Minute)
	assert.Error(t, err)

	_, _, err = repo.IncrementWindow(context.Background(), "k", 0)
	assert.Error(t, err)
}
