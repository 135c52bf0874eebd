// Package shipping books carrier packages for paid orders and quotes checkout rates.
package shipping

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"pickupmtaani/internal/carrier"
	"pickupmtaani/internal/model"
	"pickupmtaani/internal/store"
)

var (
	// ErrNotEligible means the order is unpaid or ships another way.
	ErrNotEligible = errors.New("order not eligible for carrier shipment")
	// ErrAlreadyShipped means a tracking id is already stored.
	ErrAlreadyShipped = errors.New("shipment already created")
	// ErrCreateFailed means the carrier did not return a tracking number.
	ErrCreateFailed = errors.New("carrier shipment creation failed")
)

const (
	noteCreated = "Carrier shipment created. Tracking: "
	noteFailed  = "Carrier shipment creation failed."
)

type PackageCreator interface {
	CreatePackage(ctx context.Context, businessID string, payload map[string]any) (carrier.PackageResponse, carrier.Result)
}

type OrderStore interface {
	GetOrder(ctx context.Context, orderID string) (model.Order, error)
	SetTracking(ctx context.Context, orderID, trackingID string) error
	AppendNote(ctx context.Context, orderID, text string) error
}

type Shipper struct {
	Store      OrderStore
	Carrier    PackageCreator
	BusinessID string
	Log        *zap.Logger
}

func NewShipper(s OrderStore, c PackageCreator, businessID string, log *zap.Logger) *Shipper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Shipper{Store: s, Carrier: c, BusinessID: businessID, Log: log.Named("shipping")}
}

// CreateShipment books a package for a paid carrier order and stores the
// returned tracking number. It never books twice for the same order.
func (s *Shipper) CreateShipment(ctx context.Context, orderID string) (string, error) {
	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	if o.ShippingMethod != model.ShippingMethodID || !paid(o.Status) {
		return "", ErrNotEligible
	}
	if o.Tracking.HasShipment() {
		return "", ErrAlreadyShipped
	}

	resp, res := s.Carrier.CreatePackage(ctx, s.BusinessID, PackagePayload(o))
	trackingID := strings.TrimSpace(resp.TrackingNumber)
	if !res.OK() || trackingID == "" {
		s.Log.Warn("shipment creation failed", zap.String("order_id", orderID), zap.String("outcome", res.Outcome()))
		if err := s.Store.AppendNote(ctx, orderID, noteFailed); err != nil {
			return "", err
		}
		return "", ErrCreateFailed
	}

	if err := s.Store.SetTracking(ctx, orderID, trackingID); err != nil {
		if errors.Is(err, store.ErrTrackingExists) {
			return "", ErrAlreadyShipped
		}
		return "", fmt.Errorf("store tracking: %w", err)
	}
	if err := s.Store.AppendNote(ctx, orderID, noteCreated+trackingID); err != nil {
		return trackingID, err
	}
	s.Log.Info("shipment created", zap.String("order_id", orderID), zap.String("tracking_id", trackingID))
	return trackingID, nil
}

// PackagePayload is the body sent to the carrier's package endpoint.
func PackagePayload(o model.Order) map[string]any {
	items := make([]map[string]any, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, map[string]any{
			"name":     it.Name,
			"quantity": it.Quantity,
			"price":    it.Price,
		})
	}
	return map[string]any{
		"order_id": o.ID,
		"customer": map[string]any{
			"name":  o.Customer.FullName(),
			"phone": o.Customer.Phone,
			"email": o.Customer.Email,
		},
		"destination": map[string]any{
			"city":    o.Destination.City,
			"address": o.Destination.Address,
		},
		"items": items,
	}
}

func paid(s model.LifecycleState) bool {
	return s == model.StateProcessing || s == model.StateCompleted
}
