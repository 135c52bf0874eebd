package model

import (
    "strings"
    "time"
)

// Core domain types shared by the store, tracking and shipping packages.

// LifecycleState is the coarse fulfillment state of a shop order.
type LifecycleState string

const (
    StatePending    LifecycleState = "pending"
    StateProcessing LifecycleState = "processing"
    StateCompleted  LifecycleState = "completed"
    StateOnHold     LifecycleState = "on-hold"
    StateFailed     LifecycleState = "failed"
)

// Valid reports whether s is one of the known lifecycle states.
func (s LifecycleState) Valid() bool {
    switch s {
    case StatePending, StateProcessing, StateCompleted, StateOnHold, StateFailed:
        return true
    }
    return false
}

// ShippingMethodID identifies orders that ship through the carrier network.
const ShippingMethodID = "pickup_mtaani"

// CreatedStatus is stored as the last known status right after a shipment is created.
const CreatedStatus = "created"

type Order struct {
    ID             string         `json:"id"`
    Status         LifecycleState `json:"status"`
    ShippingMethod string         `json:"shippingMethod,omitempty"`
    Customer       Customer       `json:"customer"`
    Destination    Destination    `json:"destination"`
    Items          []Item         `json:"items,omitempty"`
    Tracking       TrackingRecord `json:"tracking"`
    CreatedAt      time.Time      `json:"createdAt"`
}

type Customer struct {
    FirstName string `json:"firstName,omitempty"`
    LastName  string `json:"lastName,omitempty"`
    Phone     string `json:"phone,omitempty"`
    Email     string `json:"email,omitempty"`
}

// FullName joins first and last name the way shipping labels print them.
func (c Customer) FullName() string {
    switch {
    case c.FirstName == "":
        return c.LastName
    case c.LastName == "":
        return c.FirstName
    }
    return c.FirstName + " " + c.LastName
}

type Destination struct {
    City    string `json:"city"`
    Country string `json:"country,omitempty"`
    Address string `json:"address,omitempty"`
}

type Item struct {
    Name     string  `json:"name"`
    Quantity int     `json:"quantity"`
    Price    float64 `json:"price"`
    Weight   float64 `json:"weight,omitempty"`
}

// TrackingRecord is the shipment metadata attached to an order.
// An empty TrackingID means no shipment has been created yet.
type TrackingRecord struct {
    TrackingID      string         `json:"trackingId,omitempty"`
    LastStatus      string         `json:"lastStatus"`
    StatusChangedAt time.Time      `json:"statusChangedAt,omitempty"`
    // OrderState is the order's lifecycle state at read time; stores fill it
    // on GetTracking only.
    OrderState      LifecycleState `json:"orderState,omitempty"`
}

// HasShipment reports whether the carrier has assigned a tracking id.
func (t TrackingRecord) HasShipment() bool { return t.TrackingID != "" }

// Stalled reports whether a non-delivered shipment has not changed status for longer than after.
func (t TrackingRecord) Stalled(now time.Time, after time.Duration) bool {
    if !t.HasShipment() || after <= 0 || t.StatusChangedAt.IsZero() {
        return false
    }
    if strings.EqualFold(t.LastStatus, "delivered") {
        return false
    }
    return now.Sub(t.StatusChangedAt) > after
}

type Note struct {
    ID        string    `json:"id"`
    OrderID   string    `json:"orderId"`
    Text      string    `json:"text"`
    CreatedAt time.Time `json:"createdAt"`
}

// Shipment is one row of the in-transit dashboard.
type Shipment struct {
    OrderID    string         `json:"orderId"`
    Customer   string         `json:"customer"`
    TrackingID string         `json:"trackingId"`
    Status     string         `json:"status"`
    OrderState LifecycleState `json:"orderState"`
    Stalled    bool           `json:"stalled"`
}
