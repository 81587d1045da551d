package lock

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func TestRedisLock_SingleHolder(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)

	leader := NewRedisLock(client, "cadence:scheduler", time.Minute)
	follower := NewRedisLock(client, "cadence:scheduler", time.Minute)

	ok, err := leader.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = follower.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = leader.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "holder renews its lease")

	require.NoError(t, follower.Release(ctx))

	ok, err = follower.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "release by a non holder keeps the lease")

	require.NoError(t, leader.Release(ctx))

	ok, err = follower.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_LeaseExpires(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)

	leader := NewRedisLock(client, "cadence:scheduler", 10*time.Second)
	follower := NewRedisLock(client, "cadence:scheduler", 10*time.Second)

	ok, err := leader.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(11 * time.Second)

	ok, err = follower.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = leader.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRedisLockFromURL(t *testing.T) {
	mr, _ := newRedis(t)

	l, client, err := NewRedisLockFromURL("redis://"+mr.Addr()+"/0", "k", time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, err = NewRedisLockFromURL("mysql://nope", "k", time.Minute)
	require.ErrorIs(t, err, ErrRedisURLInvalid)
}

func TestLocalLock(t *testing.T) {
	l := NewLocalLock()

	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l.Release(context.Background()))
}
