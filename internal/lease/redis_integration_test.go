//go:build redis_integration

package lease

import (
	"os"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLease(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set; skipping integration test")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	ctx := t.Context()
	r := NewRedis(rdb)
	require.NoError(t, r.Clear(ctx, "it-job"))

	l, err := r.Acquire(ctx, "it-job", time.Minute)
	require.NoError(t, err)
	_, err = r.Acquire(ctx, "it-job", time.Minute)
	assert.ErrorIs(t, err, ErrHeld)

	require.NoError(t, l.Release(ctx))

	// an expired holder's late release must not free the next lease
	stale, err := r.Acquire(ctx, "it-job", 100*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(200 * time.Millisecond)
	fresh, err := r.Acquire(ctx, "it-job", time.Minute)
	require.NoError(t, err)
	require.NoError(t, stale.Release(ctx))
	_, err = r.Acquire(ctx, "it-job", time.Minute)
	assert.ErrorIs(t, err, ErrHeld)
	require.NoError(t, fresh.Release(ctx))
}
