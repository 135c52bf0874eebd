package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// releaseScript deletes KEYS[1] only while it still holds ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis implements Locker with SET NX PX so that every process sharing the
// Redis instance sees the same lease.
type Redis struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedis(rdb redis.Cmdable) *Redis {
	return &Redis{rdb: rdb, prefix: "lease:"}
}

func (r *Redis) key(name string) string { return r.prefix + name }

func (r *Redis) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	token := uuid.NewString()
	ok, err := r.rdb.SetNX(ctx, r.key(name), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lease %s: %w", name, err)
	}
	if !ok {
		return nil, ErrHeld
	}
	key := r.key(name)
	return &Lease{Name: name, Token: token, ExpiresAt: time.Now().Add(ttl), release: func(ctx context.Context) error {
		return releaseScript.Run(ctx, r.rdb, []string{key}, token).Err()
	}}, nil
}

func (r *Redis) Clear(ctx context.Context, name string) error {
	return r.rdb.Del(ctx, r.key(name)).Err()
}
