package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 토큰이 일치할 때만 삭제 (다른 프로세스의 락 해제 방지)
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a single-holder lock keyed by name with a TTL.
type RedisLock struct {
	client *redis.Client
	prefix string
}

// NewRedisLock creates a lock manager. Keys are prefix + name.
func NewRedisLock(client *redis.Client, prefix string) *RedisLock {
	if prefix == "" {
		prefix = "lock:"
	}
	return &RedisLock{client: client, prefix: prefix}
}

// LockKey returns the Redis key used for name.
func (l *RedisLock) LockKey(name string) string {
	return l.prefix + name
}

// Acquire takes the lock if free. The returned release deletes the key only
// while it still holds this holder's token.
func (l *RedisLock) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error) {
	key := l.LockKey(name)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		return nil
	}
	return release, true, nil
}
