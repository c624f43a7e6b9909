package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *clock {
	return &clock{now: time.Date(2025, 3, 14, 21, 0, 0, 0, time.UTC)}
}

func TestRedisLimiter_AllowsWithinLimit(t *testing.T) {
	client, _ := setupTestRedis(t)

	limiter := NewRedisLimiter(client, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Check(ctx, "client:allows", 5, time.Minute)
		assert.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 5-(i+1), result.Remaining)
	}
}

func TestRedisLimiter_BlocksWhenExceeded(t *testing.T) {
	client, _ := setupTestRedis(t)

	limiter := NewRedisLimiter(client, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Check(ctx, "client:blocks", 2, time.Minute)
		assert.NoError(t, err)
		if i < 2 {
			assert.True(t, result.Allowed)
		} else {
			assert.False(t, result.Allowed)
		}
	}
}

func TestRedisLimiter_SlidingWindow(t *testing.T) {
	client, mr := setupTestRedis(t)
	clk := newClock()

	limiter := NewRedisLimiter(client, testLogger())
	limiter.now = clk.Now
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := limiter.Check(ctx, "user:a", 2, time.Second)
		assert.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	clk.Advance(1100 * time.Millisecond)

	result, err := limiter.Check(ctx, "user:a", 2, time.Second)
	assert.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.True(t, mr.Exists(KeyPrefix+"user:a"))
}

func TestRedisLimiter_NoClient(t *testing.T) {
	limiter := NewRedisLimiter(nil, testLogger())

	_, err := limiter.Check(context.Background(), "k", 1, time.Second)
	assert.Error(t, err)
}

func TestMemoryLimiter(t *testing.T) {
	clk := newClock()
	limiter := NewMemoryLimiter(testLogger())
	limiter.now = clk.Now
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := limiter.Check(ctx, "k", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	result, err := limiter.Check(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 60, result.RetryAfter(clk.Now()))

	clk.Advance(61 * time.Second)
	result, err = limiter.Check(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	clk.Advance(10 * time.Minute)
	assert.Equal(t, 1, limiter.Cleanup(5*time.Minute))
}

type failingLimiter struct{ calls int }

func (f *failingLimiter) Check(context.Context, string, int, time.Duration) (*Result, error) {
	f.calls++
	return nil, assert.AnError
}

func TestAdaptiveLimiter_FallsBackWithHalfLimit(t *testing.T) {
	limiter := NewAdaptiveLimiter(&failingLimiter{}, NewMemoryLimiter(testLogger()), testLogger())
	ctx := context.Background()

	result, err := limiter.Check(ctx, "k", 4, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = limiter.Check(ctx, "k", 4, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = limiter.Check(ctx, "k", 4, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}

func TestAdaptiveLimiter_RetriesPrimaryAfterCooldown(t *testing.T) {
	clk := newClock()
	primary := &failingLimiter{}
	limiter := NewAdaptiveLimiter(primary, NewMemoryLimiter(testLogger()), testLogger())
	limiter.now = clk.Now
	ctx := context.Background()

	_, err := limiter.Check(ctx, "k", 10, time.Minute)
	require.NoError(t, err)
	_, err = limiter.Check(ctx, "k", 10, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls)

	clk.Advance(primaryCooldown)
	_, err = limiter.Check(ctx, "k", 10, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, primary.calls)
}

func TestRedisLimiter_RejectedCallsAreNotRecorded(t *testing.T) {
	client, mr := setupTestRedis(t)
	clk := newClock()

	limiter := NewRedisLimiter(client, testLogger())
	limiter.now = clk.Now
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := limiter.Check(ctx, "user:b", 2, time.Minute)
		require.NoError(t, err)
	}

	members, err := mr.ZMembers(KeyPrefix + "user:b")
	require.NoError(t, err)
	assert.Len(t, members, 2)

	result, err := limiter.Check(ctx, "user:b", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, clk.Now().Add(time.Minute).UnixMilli(), result.ResetAt.UnixMilli())
}

func TestCleaner_Sweep(t *testing.T) {
	client, mr := setupTestRedis(t)
	clk := newClock()

	redisLimiter := NewRedisLimiter(client, testLogger())
	redisLimiter.now = func() time.Time { return time.Now().Add(-time.Hour) }
	_, err := redisLimiter.Check(context.Background(), "client:old", 5, 2*time.Hour)
	require.NoError(t, err)
	require.True(t, mr.Exists(KeyPrefix+"client:old"))

	memory := NewMemoryLimiter(testLogger())
	memory.now = clk.Now
	_, err = memory.Check(context.Background(), "client:old", 5, time.Minute)
	require.NoError(t, err)
	clk.Advance(time.Hour)

	cleaner := NewCleaner(client, memory, testLogger(), time.Minute, 5*time.Minute)
	assert.Equal(t, 2, cleaner.Sweep(context.Background()))
	assert.False(t, mr.Exists(KeyPrefix+"client:old"))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
