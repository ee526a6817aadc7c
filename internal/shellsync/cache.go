package shellsync

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// redisCache implements DistributedCache over a plain Redis client: GET and
// SET on byte-exact keys, no TTL. This is the shared medium peers use to
// converge, so it must be the same Redis deployment for every peer process
// sharing these tenants.
type redisCache struct {
	client *redis.Client
}

// NewRedisCache builds a DistributedCache backed by client. client is
// typically obtained from internal/infra.GetRedis().
func NewRedisCache(client *redis.Client) DistributedCache {
	return &redisCache{client: client}
}

func (c *redisCache) GetString(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *redisCache) SetString(ctx context.Context, key, value string) error {
	return c.client.Set(ctx, key, value, 0).Err()
}
