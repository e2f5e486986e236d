package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when a lock could not be acquired before the wait expired.
var ErrLockTimeout = errors.New("platform/cache: lock wait timed out")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker is a single-instance Redis mutex built on SET NX PX. The lock
// value is a random token so a holder can only release its own lock.
type RedisLocker struct {
	client   *redis.Client
	maxWait  time.Duration
	interval time.Duration
}

// NewRedisLocker builds a locker that polls every interval until maxWait elapses.
func NewRedisLocker(client *redis.Client, maxWait time.Duration) *RedisLocker {
	if maxWait <= 0 {
		maxWait = 5 * time.Second
	}
	return &RedisLocker{client: client, maxWait: maxWait, interval: 25 * time.Millisecond}
}

// Acquire blocks until key is held or the wait expires. The returned release
// func is safe to call once the ttl has lapsed.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(waitCtx, key, token, ttl).Result()
		if err != nil && waitCtx.Err() == nil {
			return nil, fmt.Errorf("platform/cache: acquire %s: %w", key, err)
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
			}, nil
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		case <-ticker.C:
		}
	}
}
