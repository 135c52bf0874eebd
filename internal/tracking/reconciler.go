package tracking

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pickupmtaani/internal/carrier"
	"pickupmtaani/internal/metrics"
	"pickupmtaani/internal/model"
)

// OrderStore is the slice of the order store the sync core mutates.
type OrderStore interface {
	GetTracking(ctx context.Context, orderID string) (model.TrackingRecord, error)
	SetStatus(ctx context.Context, orderID, status string) error
	AppendNote(ctx context.Context, orderID, text string) error
	Transition(ctx context.Context, orderID string, state model.LifecycleState, note string) error
	// ListTracked returns ids of orders carrying a tracking id, in a stable order.
	ListTracked(ctx context.Context, offset, limit int) ([]string, error)
}

// StatusSource fetches the carrier's view of one shipment.
type StatusSource interface {
	TrackPackage(ctx context.Context, trackID string) (carrier.TrackResponse, carrier.Result)
}

// Reconciler applies the carrier's current status to one order.
type Reconciler struct {
	Store   OrderStore
	Carrier StatusSource
	// AllowRegression lets a later carrier status move a delivered order back
	// out of completed.
	AllowRegression bool
	Log             *zap.Logger
}

func NewReconciler(s OrderStore, c StatusSource, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{Store: s, Carrier: c, Log: log.Named("tracking")}
}

// StatusNote is the audit line appended for every observed status change.
func StatusNote(status string) string { return "Carrier status updated to: " + status }

// Reconcile reports whether a new status was stored. Carrier failures and empty
// statuses are not errors: the next scheduled run retries them. Errors come from
// the order store only; a non-nil error with true means the status was stored but
// a later step failed.
func (r *Reconciler) Reconcile(ctx context.Context, orderID string) (bool, error) {
	rec, err := r.Store.GetTracking(ctx, orderID)
	if err != nil {
		metrics.OrdersReconciled.WithLabelValues("failed").Inc()
		return false, fmt.Errorf("get tracking %s: %w", orderID, err)
	}
	if !rec.HasShipment() {
		metrics.OrdersReconciled.WithLabelValues("skipped").Inc()
		return false, nil
	}

	resp, res := r.Carrier.TrackPackage(ctx, rec.TrackingID)
	if !res.OK() {
		r.Log.Debug("no carrier status this cycle", zap.String("order", orderID), zap.String("outcome", res.Outcome()))
		metrics.OrdersReconciled.WithLabelValues("skipped").Inc()
		return false, nil
	}
	status := carrier.SanitizeText(resp.Status)
	if status == "" {
		metrics.OrdersReconciled.WithLabelValues("skipped").Inc()
		return false, nil
	}
	if status == rec.LastStatus {
		metrics.OrdersReconciled.WithLabelValues("unchanged").Inc()
		return false, nil
	}

	if err := r.Store.SetStatus(ctx, orderID, status); err != nil {
		metrics.OrdersReconciled.WithLabelValues("failed").Inc()
		return false, fmt.Errorf("set status %s: %w", orderID, err)
	}
	metrics.OrdersReconciled.WithLabelValues("updated").Inc()

	if m, ok := MapStatus(status); ok {
		if r.regresses(rec, m) {
			note := fmt.Sprintf("Carrier reported %q for a completed order; order status left unchanged.", status)
			if err := r.Store.AppendNote(ctx, orderID, note); err != nil {
				return true, fmt.Errorf("append note %s: %w", orderID, err)
			}
			r.Log.Warn("suppressed lifecycle regression", zap.String("order", orderID), zap.String("from", rec.LastStatus), zap.String("to", status))
		} else if err := r.Store.Transition(ctx, orderID, m.State, m.Note); err != nil {
			return true, fmt.Errorf("transition %s to %s: %w", orderID, m.State, err)
		}
	}
	if err := r.Store.AppendNote(ctx, orderID, StatusNote(status)); err != nil {
		return true, fmt.Errorf("append note %s: %w", orderID, err)
	}
	r.Log.Info("shipment status changed", zap.String("order", orderID), zap.String("tracking", rec.TrackingID), zap.String("from", rec.LastStatus), zap.String("to", status))
	return true, nil
}

// regresses reports whether applying m would move a completed order, or one
// whose last carrier status meant delivery, back out of completed.
func (r *Reconciler) regresses(rec model.TrackingRecord, m Mapping) bool {
	if r.AllowRegression || m.State == model.StateCompleted {
		return false
	}
	if rec.OrderState == model.StateCompleted {
		return true
	}
	p, ok := MapStatus(rec.LastStatus)
	return ok && p.State == model.StateCompleted
}
