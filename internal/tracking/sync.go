package tracking

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pickupmtaani/internal/metrics"
)

// DefaultPageSize is how many tracked orders one page holds.
const DefaultPageSize = 25

// OrderReconciler is satisfied by *Reconciler.
type OrderReconciler interface {
	Reconcile(ctx context.Context, orderID string) (bool, error)
}

// TrackedLister pages through orders carrying a tracking id.
type TrackedLister interface {
	ListTracked(ctx context.Context, offset, limit int) ([]string, error)
}

// Syncer walks every tracked order page by page and reconciles each one in turn.
type Syncer struct {
	Orders     TrackedLister
	Reconciler OrderReconciler
	PageSize   int
	Log        *zap.Logger
}

// Summary counts what one SyncAll pass did.
type Summary struct {
	Pages   int `json:"pages"`
	Seen    int `json:"seen"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

func NewSyncer(orders TrackedLister, rec OrderReconciler, pageSize int, log *zap.Logger) *Syncer {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{Orders: orders, Reconciler: rec, PageSize: pageSize, Log: log.Named("sync")}
}

// SyncAll keeps fetching while pages come back full; the first short or empty
// page ends the pass. A failing order is logged and skipped. The returned error
// is set only when a page cannot be listed or ctx ends.
func (s *Syncer) SyncAll(ctx context.Context) (Summary, error) {
	var sum Summary
	size := s.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	for offset := 0; ; offset += size {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		ids, err := s.Orders.ListTracked(ctx, offset, size)
		if err != nil {
			return sum, fmt.Errorf("list tracked orders at offset %d: %w", offset, err)
		}
		sum.Pages++
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			sum.Seen++
			updated, err := s.reconcileOne(ctx, id)
			if updated {
				sum.Updated++
			}
			if err != nil {
				sum.Failed++
				s.Log.Warn("reconcile failed", zap.String("order", id), zap.Error(err))
			}
		}
		if len(ids) < size {
			break
		}
	}
	s.Log.Info("tracking sync completed", zap.Int("pages", sum.Pages), zap.Int("seen", sum.Seen), zap.Int("updated", sum.Updated), zap.Int("failed", sum.Failed))
	return sum, nil
}

func (s *Syncer) reconcileOne(ctx context.Context, id string) (updated bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			metrics.OrdersReconciled.WithLabelValues("failed").Inc()
			err = fmt.Errorf("panic reconciling %s: %v", id, p)
		}
	}()
	return s.Reconciler.Reconcile(ctx, id)
}
