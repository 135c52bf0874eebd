package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pickupmtaani/internal/model"
)

func TestMapStatusKnown(t *testing.T) {
	cases := []struct {
		in    string
		state model.LifecycleState
		note  string
	}{
		{"in_transit", model.StateProcessing, "Shipment is in transit."},
		{"IN_TRANSIT", model.StateProcessing, "Shipment is in transit."},
		{"Collected", model.StateProcessing, "Shipment is in transit."},
		{"delivered", model.StateCompleted, "Delivered by carrier."},
		{" Delivered ", model.StateCompleted, "Delivered by carrier."},
		{"FAILED", model.StateOnHold, "Delivery failed."},
	}
	for _, tc := range cases {
		m, ok := MapStatus(tc.in)
		assert.True(t, ok, tc.in)
		assert.Equal(t, tc.state, m.State, tc.in)
		assert.Equal(t, tc.note, m.Note, tc.in)
	}
}

func TestMapStatusUnknown(t *testing.T) {
	for _, in := range []string{"", "created", "at_agent", "in transit", "delivered!"} {
		m, ok := MapStatus(in)
		assert.False(t, ok, in)
		assert.Equal(t, Mapping{}, m, in)
	}
}
