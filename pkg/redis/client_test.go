package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/workout-ledger/pkg/config"
)

func TestNew_PingsServer(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := New(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", time.Minute))
	got, err := client.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNew_FailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), config.RedisConfig{Addr: addr, MaxRetries: -1})
	assert.Error(t, err)
}

func TestMetricsClient_CountsRequests(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewMetricsClient(Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()})))
	defer client.Close()
	ctx := context.Background()

	getsBefore := testutil.ToFloat64(redisRequestsTotal.WithLabelValues("get"))
	errsBefore := testutil.ToFloat64(redisErrorsTotal.WithLabelValues("get"))

	_, err := client.Get(ctx, "missing")
	assert.True(t, IsNil(err))

	require.NoError(t, client.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, client.Delete(ctx, "k"))
	require.NoError(t, client.Ping(ctx))

	assert.Equal(t, getsBefore+1, testutil.ToFloat64(redisRequestsTotal.WithLabelValues("get")))
	assert.Equal(t, errsBefore, testutil.ToFloat64(redisErrorsTotal.WithLabelValues("get")))
	assert.False(t, mr.Exists("k"))
}
