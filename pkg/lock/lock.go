// Package lock provides the lease lock that elects the scheduler leader.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrRedisURLInvalid = errors.New("invalid redis url")

// Locker is a renewable lease. Acquire takes the lease or renews it when the
// caller already holds it, and reports whether the caller is the holder.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// RedisLock is a lease stored under one key, valued with the holder's token.
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		client: client,
		key:    key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// NewRedisLockFromURL connects to redisURL (redis://host:port/db).
func NewRedisLockFromURL(redisURL, key string, ttl time.Duration) (*RedisLock, *redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrRedisURLInvalid, err)
	}

	client := redis.NewClient(opts)

	return NewRedisLock(client, key, ttl), client, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	res, err := acquireScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}

	return res == 1, nil
}

// Release gives the lease up if the caller still holds it.
func (l *RedisLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}

	return nil
}

var acquireScript = redis.NewScript(`
local key = KEYS[1]
local token = ARGV[1]
local ttl = tonumber(ARGV[2])

local holder = redis.call('GET', key)
if holder == false then
  redis.call('SET', key, token, 'PX', ttl)
  return 1
end
if holder == token then
  redis.call('PEXPIRE', key, ttl)
  return 1
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// LocalLock serves single replica deployments, where the only scheduler is
// always the leader.
type LocalLock struct{}

func NewLocalLock() *LocalLock {
	return &LocalLock{}
}

func (LocalLock) Acquire(_ context.Context) (bool, error) {
	return true, nil
}

func (LocalLock) Release(_ context.Context) error {
	return nil
}
