package store

import (
    "context"
    "errors"
    "fmt"

    "pickupmtaani/internal/model"
)

// Store is the order-metadata interface used by the sync core, shipping and the API server.
type Store interface {
    // Orders
    PutOrder(ctx context.Context, o model.Order) error
    GetOrder(ctx context.Context, orderID string) (model.Order, error)

    // Tracking (tracking.OrderStore)
    GetTracking(ctx context.Context, orderID string) (model.TrackingRecord, error)
    SetStatus(ctx context.Context, orderID, status string) error
    AppendNote(ctx context.Context, orderID, text string) error
    Transition(ctx context.Context, orderID string, state model.LifecycleState, note string) error
    ListTracked(ctx context.Context, offset, limit int) ([]string, error)

    // Shipment creation stores the carrier tracking id once.
    SetTracking(ctx context.Context, orderID, trackingID string) error

    // Reporting
    Notes(ctx context.Context, orderID string) ([]model.Note, error)
    ListShipments(ctx context.Context, limit int) ([]model.Order, error)

    Ping(ctx context.Context) error
}

// MaxPageSize caps one ListTracked page.
const MaxPageSize = 500

var (
    ErrNotFound       = errors.New("not found")
    ErrTrackingExists = errors.New("tracking id already set")
    ErrPageSize       = errors.New("page size out of range")
)

// checkPage rejects limits a pager could mistake for a short last page.
func checkPage(limit int) error {
    if limit <= 0 || limit > MaxPageSize {
        return fmt.Errorf("%w: %d not in 1..%d", ErrPageSize, limit, MaxPageSize)
    }
    return nil
}

// transitionNote mirrors the shop's own wording for a state change.
func transitionNote(note string, from, to model.LifecycleState) string {
    msg := "Order status changed from " + string(from) + " to " + string(to) + "."
    if note == "" {
        return msg
    }
    return note + " " + msg
}
