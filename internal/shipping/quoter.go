package shipping

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"pickupmtaani/internal/carrier"
	"pickupmtaani/internal/model"
)

const DefaultQuoteTTL = 10 * time.Minute

// Rate is what checkout shows for the carrier method.
type Rate struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Cost  float64 `json:"cost"`
}

type PriceSource interface {
	Configured() bool
	DeliveryPrice(ctx context.Context, senderAgentID string, destinationID int64) (carrier.PriceQuote, carrier.Result)
}

type DestinationLookup interface {
	Lookup(ctx context.Context, name string) (int64, bool, error)
}

type Quoter struct {
	Prices        PriceSource
	Destinations  DestinationLookup
	SenderAgentID string
	Title         string
	Enabled       bool
	TTL           time.Duration
	Log           *zap.Logger

	mu    sync.Mutex
	cache map[string]cachedRate
	group singleflight.Group
	now   func() time.Time
}

type cachedRate struct {
	rate    Rate
	expires time.Time
}

func NewQuoter(p PriceSource, d DestinationLookup, senderAgentID, title string, log *zap.Logger) *Quoter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Quoter{
		Prices:        p,
		Destinations:  d,
		SenderAgentID: senderAgentID,
		Title:         title,
		Enabled:       true,
		TTL:           DefaultQuoteTTL,
		Log:           log.Named("rates"),
		cache:         map[string]cachedRate{},
		now:           time.Now,
	}
}

// SetClock replaces the time source, for tests.
func (q *Quoter) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

// Quote prices delivery to dest. The second result is false when the method
// should be hidden: disabled, unconfigured, incomplete address, unknown city
// or no price from the carrier. The carrier prices by destination only, so
// the cart contents do not affect the rate.
func (q *Quoter) Quote(ctx context.Context, dest model.Destination) (Rate, bool) {
	if !q.Enabled || !q.Prices.Configured() {
		return Rate{}, false
	}
	if dest.City == "" || dest.Country == "" {
		return Rate{}, false
	}
	key := quoteKey(dest)
	if r, ok := q.cached(key); ok {
		return r, true
	}
	v, err, _ := q.group.Do(key, func() (any, error) {
		return q.fetch(ctx, dest)
	})
	if err != nil {
		q.Log.Error("quote failed", zap.String("city", dest.City), zap.Error(err))
		return Rate{}, false
	}
	r, ok := v.(*Rate)
	if !ok || r == nil {
		return Rate{}, false
	}
	q.store(key, *r)
	return *r, true
}

// fetch returns a nil rate when the destination is not serviceable.
func (q *Quoter) fetch(ctx context.Context, dest model.Destination) (*Rate, error) {
	id, ok, err := q.Destinations.Lookup(ctx, dest.City)
	if err != nil {
		return nil, err
	}
	if !ok {
		q.Log.Debug("destination not serviceable", zap.String("city", dest.City))
		return nil, nil
	}
	quote, res := q.Prices.DeliveryPrice(ctx, q.SenderAgentID, id)
	if !res.OK() {
		return nil, res
	}
	if quote.Amount <= 0 {
		return nil, nil
	}
	return &Rate{ID: model.ShippingMethodID, Label: q.Title, Cost: quote.Amount}, nil
}

func (q *Quoter) cached(key string) (Rate, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	c, ok := q.cache[key]
	if !ok || !q.now().Before(c.expires) {
		return Rate{}, false
	}
	return c.rate, true
}

func (q *Quoter) store(key string, r Rate) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	for k, c := range q.cache {
		if !now.Before(c.expires) {
			delete(q.cache, k)
		}
	}
	ttl := q.TTL
	if ttl <= 0 {
		ttl = DefaultQuoteTTL
	}
	q.cache[key] = cachedRate{rate: r, expires: now.Add(ttl)}
}

func quoteKey(dest model.Destination) string {
	b, _ := json.Marshal(dest)
	sum := sha256.Sum256(b)
	return "pm_rate_" + hex.EncodeToString(sum[:])
}
