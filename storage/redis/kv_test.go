package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("RECOVERYKIT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("RECOVERYKIT_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestKVRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := NewKV(testClient(t)).WithPrefix("test:" + uuid.NewString() + ":")
	require.NoError(t, kv.Ping(ctx))

	_, ok, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, kv.Set(ctx, "k", []byte("v"), time.Minute))
	b, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", string(b))

	require.NoError(t, kv.Del(ctx, "k"))
	_, ok, err = kv.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}
