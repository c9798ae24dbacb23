package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/campus-connect/internal/config"
)

const unreadTTL = time.Hour

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

// NewFromClient wraps an existing client, e.g. one pointed at miniredis.
func NewFromClient(c *redis.Client) *RedisCache {
	return &RedisCache{Client: c}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

// KeyForUnreadDirect generates the Redis key for a user's direct unread total.
func (c *RedisCache) KeyForUnreadDirect(userID uint64) string {
	return fmt.Sprintf("unread:direct:%d", userID)
}

// GetUnreadDirect returns the cached total. ok is false on a cache miss.
func (c *RedisCache) GetUnreadDirect(ctx context.Context, userID uint64) (n int64, ok bool, err error) {
	key := c.KeyForUnreadDirect(userID)
	val, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	n, err = strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt unread value %q: %w", val, err)
	}
	return n, true, nil
}

// SetUnreadDirect stores the total with a fresh TTL.
func (c *RedisCache) SetUnreadDirect(ctx context.Context, userID uint64, count int64) error {
	return c.Client.Set(ctx, c.KeyForUnreadDirect(userID), count, unreadTTL).Err()
}

// InvalidateUnreadDirect drops the cached total so the next read recomputes it.
func (c *RedisCache) InvalidateUnreadDirect(ctx context.Context, userID uint64) error {
	return c.Client.Del(ctx, c.KeyForUnreadDirect(userID)).Err()
}
