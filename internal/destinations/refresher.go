package destinations

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pickupmtaani/internal/carrier"
	"pickupmtaani/internal/metrics"
)

// DefaultTTL is how long a rebuilt table stays valid.
const DefaultTTL = 6 * time.Hour

// Source lists destinations from the carrier.
type Source interface {
	Destinations(ctx context.Context) (carrier.DestinationList, carrier.Result)
}

// Refresher rebuilds the Cache from the carrier.
type Refresher struct {
	Source Source
	Cache  Cache
	TTL    time.Duration
	Log    *zap.Logger
}

func NewRefresher(src Source, cache Cache, ttl time.Duration, log *zap.Logger) *Refresher {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Refresher{Source: src, Cache: cache, TTL: ttl, Log: log.Named("destinations")}
}

// Refresh replaces the cached table and returns its size. When the carrier
// returns nothing usable the current table is kept and 0 is returned.
func (r *Refresher) Refresh(ctx context.Context) (int, error) {
	list, res := r.Source.Destinations(ctx)
	if !res.OK() || len(list.Data) == 0 {
		r.Log.Info("No destinations returned.", zap.String("outcome", res.Outcome()))
		return 0, nil
	}
	table := make(map[string]int64, len(list.Data))
	for _, d := range list.Data {
		name := Normalize(carrier.SanitizeText(d.Name))
		if name == "" || d.ID == 0 {
			continue
		}
		table[name] = int64(d.ID)
	}
	if len(table) == 0 {
		r.Log.Info("No destinations returned.", zap.Int("skipped", len(list.Data)))
		return 0, nil
	}
	if err := r.Cache.Replace(ctx, table, r.TTL); err != nil {
		return 0, fmt.Errorf("store destinations: %w", err)
	}
	metrics.DestinationsCached.Set(float64(len(table)))
	r.Log.Info("Destinations refreshed", zap.Int("count", len(table)))
	return len(table), nil
}
