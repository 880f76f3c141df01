package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisFromClient(rdb, "hedge:"), mr
}

func TestRedis_SetGetWithPrefix(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedis(t)
	defer mr.Close()

	require.NoError(t, store.Set(ctx, "pcr_data", []byte(`{"status":true}`), 5*time.Minute))

	raw, err := mr.Get("hedge:pcr_data")
	require.NoError(t, err)
	assert.Equal(t, `{"status":true}`, raw)

	got, err := store.Get(ctx, "pcr_data")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":true}`, string(got))
}

func TestRedis_MissAndExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedis(t)
	defer mr.Close()

	_, err := store.Get(ctx, "absent")
	assert.True(t, errors.Is(err, ErrMiss))

	require.NoError(t, store.Set(ctx, "angel:auth_token", []byte("x"), 8*time.Hour))
	mr.FastForward(8*time.Hour + time.Second)

	_, err = store.Get(ctx, "angel:auth_token")
	assert.True(t, errors.Is(err, ErrMiss))
}

func TestRedis_Delete(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedis(t)
	defer mr.Close()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, store.Delete(ctx, "k"))
	assert.False(t, mr.Exists("hedge:k"))
}

func TestRedis_PingDown(t *testing.T) {
	store, mr := newTestRedis(t)
	require.NoError(t, store.Ping(context.Background()))

	mr.Close()
	err := store.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}

func TestRedis_GetErrorWhenDown(t *testing.T) {
	store, mr := newTestRedis(t)
	mr.Close()

	_, err := store.Get(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMiss))
}
