// SPDX-License-Identifier: MIT

package state

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisContainer stores the entries of one entity as fields of a redis hash.
type RedisContainer struct {
	client redis.UniversalClient
	hash   string
}

// NewRedisContainer returns the container of entity, kept in the hash
// "skylib:state:<entity>". The caller owns client.
func NewRedisContainer(client redis.UniversalClient, entity string) *RedisContainer {
	return &RedisContainer{client: client, hash: "skylib:state:" + entity}
}

func (c *RedisContainer) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := c.client.HGet(ctx, c.hash, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis hget %s %s: %w", c.hash, key, err)
	}
	return v, true, nil
}

func (c *RedisContainer) Set(ctx context.Context, key string, value []byte) error {
	if err := c.client.HSet(ctx, c.hash, key, value).Err(); err != nil {
		return fmt.Errorf("redis hset %s %s: %w", c.hash, key, err)
	}
	return nil
}

func (c *RedisContainer) Delete(ctx context.Context, key string) error {
	if err := c.client.HDel(ctx, c.hash, key).Err(); err != nil {
		return fmt.Errorf("redis hdel %s %s: %w", c.hash, key, err)
	}
	return nil
}

func (c *RedisContainer) Keys(ctx context.Context) ([]string, error) {
	keys, err := c.client.HKeys(ctx, c.hash).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hkeys %s: %w", c.hash, err)
	}
	sort.Strings(keys)
	return keys, nil
}
