package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedis 需要 APEYOLO_TEST_REDIS 指向可用的 Redis
func setupRedis(t *testing.T) *Redis {
	addr := os.Getenv("APEYOLO_TEST_REDIS")
	if addr == "" {
		t.Skip("APEYOLO_TEST_REDIS not set")
	}
	r, err := NewRedis(RedisConfig{Addr: addr})
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return r
}

func TestRedisRoundTrip(t *testing.T) {
	r := setupRedis(t)
	defer r.Close()
	ctx := context.Background()
	prefix := "apeyolo:test:" + t.Name() + ":"
	defer func() {
		keys, _ := r.Keys(ctx, prefix)
		for _, k := range keys {
			_ = r.Delete(ctx, k)
		}
	}()

	require.NoError(t, r.Set(ctx, prefix+"a", []byte("1"), time.Minute))
	v, ok, err := r.Get(ctx, prefix+"a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", string(v))

	keys, err := r.Keys(ctx, prefix)
	require.NoError(t, err)
	assert.Equal(t, []string{prefix + "a"}, keys)

	require.NoError(t, r.Delete(ctx, prefix+"a"))
	_, ok, err = r.Get(ctx, prefix+"a")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
