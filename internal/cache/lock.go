package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockRetry = 5 * time.Millisecond

// ErrLockLost is returned by an unlock whose lease had already expired and
// possibly been taken by someone else.
var ErrLockLost = errors.New("lock lease lost")

// releaseScript deletes the key only while it still holds our token, so an
// expired holder never frees a lock it no longer owns.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// KeyForLock generates the Redis key guarding name.
func (c *RedisCache) KeyForLock(name string) string {
	return "lock:" + name
}

// Lock takes a lease on name shared by every instance talking to this Redis.
// It retries until the lease is free or ctx is done. The lease expires after
// ttl even if the holder never unlocks.
func (c *RedisCache) Lock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	key := c.KeyForLock(name)
	token := uuid.NewString()

	ticker := time.NewTicker(lockRetry)
	defer ticker.Stop()
	for {
		ok, err := c.Client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}

	unlock := func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, c.Client, []string{key}, token).Int64()
		if err != nil {
			return fmt.Errorf("release %s: %w", key, err)
		}
		if n == 0 {
			return ErrLockLost
		}
		return nil
	}
	return unlock, nil
}
