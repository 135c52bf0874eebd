package destinations

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// DefaultKey is the Redis hash holding the table.
const DefaultKey = "pickupmtaani_destinations"

// RedisCache stores the table as one hash. Replace writes a scratch hash and
// renames it over the live key so readers never see a half-built table.
type RedisCache struct {
	rdb redis.Cmdable
	key string
}

func NewRedisCache(rdb redis.Cmdable, key string) *RedisCache {
	if key == "" {
		key = DefaultKey
	}
	return &RedisCache{rdb: rdb, key: key}
}

func (c *RedisCache) Replace(ctx context.Context, table map[string]int64, ttl time.Duration) error {
	if len(table) == 0 {
		return c.Clear(ctx)
	}
	tmp := c.key + ":build:" + uuid.NewString()
	fields := make(map[string]any, len(table))
	for k, v := range table {
		fields[k] = v
	}
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, tmp, fields)
		p.Rename(ctx, tmp, c.key)
		p.Expire(ctx, c.key, ttl)
		return nil
	})
	return err
}

func (c *RedisCache) Lookup(ctx context.Context, name string) (int64, bool, error) {
	v, err := c.rdb.HGet(ctx, c.key, Normalize(name)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (c *RedisCache) All(ctx context.Context) (map[string]int64, error) {
	raw, err := c.rdb.HGetAll(ctx, c.key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			out[k] = id
		}
	}
	return out, nil
}

func (c *RedisCache) Clear(ctx context.Context) error {
	return c.rdb.Del(ctx, c.key).Err()
}
