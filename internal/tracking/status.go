// Package tracking reconciles stored shipment status against the carrier.
package tracking

import (
	"strings"

	"pickupmtaani/internal/model"
)

// Mapping is the lifecycle transition a carrier status asks for.
type Mapping struct {
	State model.LifecycleState
	Note  string
}

var statusTable = map[string]Mapping{
	"in_transit": {State: model.StateProcessing, Note: "Shipment is in transit."},
	"collected":  {State: model.StateProcessing, Note: "Shipment is in transit."},
	"delivered":  {State: model.StateCompleted, Note: "Delivered by carrier."},
	"failed":     {State: model.StateOnHold, Note: "Delivery failed."},
}

// MapStatus matches a carrier status case-insensitively. Unknown statuses
// report false and carry no transition.
func MapStatus(carrierStatus string) (Mapping, bool) {
	m, ok := statusTable[strings.ToLower(strings.TrimSpace(carrierStatus))]
	return m, ok
}
