package usercache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/workout-ledger/internal/domain"
	"github.com/Proton-105/workout-ledger/pkg/redis"
)

func newCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewCache(redis.Wrap(rdb), time.Minute), mr
}

func TestCache_RoundTrip(t *testing.T) {
	cache, mr := newCache(t)
	ctx := context.Background()

	got, err := cache.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	profile := &domain.Profile{
		User:  domain.User{ID: "a", DisplayName: "Alex"},
		State: domain.UserState{UserID: "a", SkipPoints: 1, ConsecWorkout: 3},
	}
	require.NoError(t, cache.Set(ctx, profile))
	assert.Equal(t, time.Minute, mr.TTL("ledger:profile:a"))

	got, err = cache.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Alex", got.User.DisplayName)
	assert.Equal(t, 3, got.State.ConsecWorkout)

	require.NoError(t, cache.Invalidate(ctx, "a"))
	got, err = cache.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCache_CorruptEntry(t *testing.T) {
	cache, mr := newCache(t)
	require.NoError(t, mr.Set("ledger:profile:a", "{not json"))

	_, err := cache.Get(context.Background(), "a")
	assert.Error(t, err)
}

func TestCache_NilIsNoop(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	got, err := cache.Get(ctx, "a")
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, cache.Set(ctx, &domain.Profile{}))
	assert.NoError(t, cache.Invalidate(ctx, "a"))
}
