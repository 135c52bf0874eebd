package destinations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pickupmtaani/internal/carrier"
)

type stubSource struct {
	list carrier.DestinationList
	res  carrier.Result
}

func (s stubSource) Destinations(ctx context.Context) (carrier.DestinationList, carrier.Result) {
	return s.list, s.res
}

type failingCache struct{ *MemoryCache }

func (failingCache) Replace(ctx context.Context, table map[string]int64, ttl time.Duration) error {
	return errors.New("cache down")
}

func TestRefreshRebuildsWholeTable(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()
	require.NoError(t, cache.Replace(ctx, map[string]int64{"stale town": 1}, time.Hour))

	src := stubSource{res: carrier.Result{Kind: carrier.KindOK}, list: carrier.DestinationList{Data: []carrier.Destination{
		{ID: 4, Name: "Nairobi CBD"},
		{ID: 9, Name: " THIKA "},
		{ID: 0, Name: "No Id"},
		{ID: 5, Name: ""},
	}}}
	n, err := NewRefresher(src, cache, time.Hour, zap.NewNop()).Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, _ := cache.All(ctx)
	assert.Equal(t, map[string]int64{"nairobi cbd": 4, "thika": 9}, all)
	id, ok, _ := cache.Lookup(ctx, "Thika")
	assert.True(t, ok)
	assert.Equal(t, int64(9), id)
}

func TestRefreshKeepsTableWhenCarrierReturnsNothing(t *testing.T) {
	ctx := context.Background()
	for _, src := range []stubSource{
		{res: carrier.Result{Kind: carrier.KindNotConfigured}},
		{res: carrier.Result{Kind: carrier.KindFailed, Reason: carrier.ReasonHTTPStatus}},
		{res: carrier.Result{Kind: carrier.KindOK}},
		{res: carrier.Result{Kind: carrier.KindOK}, list: carrier.DestinationList{Data: []carrier.Destination{{Name: "x"}}}},
	} {
		cache := NewMemoryCache()
		require.NoError(t, cache.Replace(ctx, map[string]int64{"thika": 9}, time.Hour))
		n, err := NewRefresher(src, cache, 0, nil).Refresh(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		all, _ := cache.All(ctx)
		assert.Equal(t, map[string]int64{"thika": 9}, all)
	}
}

func TestRefreshCacheError(t *testing.T) {
	src := stubSource{res: carrier.Result{Kind: carrier.KindOK}, list: carrier.DestinationList{Data: []carrier.Destination{{ID: 1, Name: "a"}}}}
	_, err := NewRefresher(src, failingCache{NewMemoryCache()}, time.Hour, nil).Refresh(context.Background())
	assert.Error(t, err)
}

func TestMemoryCacheExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.SetClock(func() time.Time { return now })
	require.NoError(t, c.Replace(ctx, map[string]int64{"thika": 9}, 6*time.Hour))

	now = now.Add(5 * time.Hour)
	_, ok, _ := c.Lookup(ctx, "thika")
	assert.True(t, ok)

	now = now.Add(2 * time.Hour)
	_, ok, _ = c.Lookup(ctx, "thika")
	assert.False(t, ok)
	all, _ := c.All(ctx)
	assert.Empty(t, all)
}

func TestMemoryCacheClear(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	require.NoError(t, c.Replace(ctx, map[string]int64{"thika": 9}, time.Hour))
	require.NoError(t, c.Clear(ctx))
	_, ok, _ := c.Lookup(ctx, "thika")
	assert.False(t, ok)
}
