package api

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "sort"
    "strings"
    "time"

    "go.uber.org/zap"

    "pickupmtaani/internal/buildinfo"
    "pickupmtaani/internal/carrier"
    "pickupmtaani/internal/model"
    "pickupmtaani/internal/scheduler"
    "pickupmtaani/internal/shipping"
    "pickupmtaani/internal/store"
)

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]any{"status": "ok", "build": buildinfo.Info()})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
    defer cancel()
    if err := s.Store.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}

// ShipmentsHandler handles GET /v1/shipments (admin dashboard of in-transit orders).
func (s *Server) ShipmentsHandler(w http.ResponseWriter, r *http.Request) {
    if !s.requireAdmin(w, r) { return }
    limit := 15
    if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
    if limit <= 0 || limit > 500 { limit = 15 }
    orders, err := s.Store.ListShipments(r.Context(), limit)
    if err != nil { writeProblem(w, 500, "List shipments failed", err.Error(), r.URL.Path); return }
    now := s.clock()
    items := make([]model.Shipment, 0, len(orders))
    for _, o := range orders {
        items = append(items, model.Shipment{
            OrderID:    o.ID,
            Customer:   o.Customer.FullName(),
            TrackingID: o.Tracking.TrackingID,
            Status:     o.Tracking.LastStatus,
            OrderState: o.Status,
            Stalled:    o.Tracking.Stalled(now, s.StallAfter),
        })
    }
    writeJSON(w, 200, map[string]any{"items": items})
}

// ShipmentHandler handles GET /v1/shipments/{orderId}. Customers see the
// tracking number and last status; admins also get the order notes.
func (s *Server) ShipmentHandler(w http.ResponseWriter, r *http.Request) {
    id := r.PathValue("orderId")
    o, err := s.Store.GetOrder(r.Context(), id)
    if errors.Is(err, store.ErrNotFound) || (err == nil && !o.Tracking.HasShipment()) {
        writeProblem(w, 404, "Not Found", "no shipment for order", r.URL.Path)
        return
    }
    if err != nil { writeProblem(w, 500, "Get shipment failed", err.Error(), r.URL.Path); return }

    out := map[string]any{
        "orderId":    o.ID,
        "trackingId": o.Tracking.TrackingID,
        "status":     o.Tracking.LastStatus,
    }
    if s.getPrincipal(r).IsAdmin() {
        out["orderState"] = o.Status
        out["statusChangedAt"] = o.Tracking.StatusChangedAt
        out["stalled"] = o.Tracking.Stalled(s.clock(), s.StallAfter)
        notes, err := s.Store.Notes(r.Context(), id)
        if err != nil { writeProblem(w, 500, "Get notes failed", err.Error(), r.URL.Path); return }
        out["notes"] = notes
    }
    writeJSON(w, 200, out)
}

// RefreshHandler handles POST /v1/shipments/{orderId}/refresh. Concurrent
// refreshes of one order share a single carrier call.
func (s *Server) RefreshHandler(w http.ResponseWriter, r *http.Request) {
    if !s.requireAdmin(w, r) { return }
    if s.Reconciler == nil { writeProblem(w, 503, "Unavailable", "reconciler not configured", r.URL.Path); return }
    id := r.PathValue("orderId")
    ctx := context.WithoutCancel(r.Context())
    v, err, shared := s.refresh.Do(id, func() (any, error) {
        return s.Reconciler.Reconcile(ctx, id)
    })
    if errors.Is(err, store.ErrNotFound) { writeProblem(w, 404, "Not Found", "order not found", r.URL.Path); return }
    if err != nil { writeProblem(w, 500, "Refresh failed", err.Error(), r.URL.Path); return }
    tr, err := s.Store.GetTracking(r.Context(), id)
    if err != nil { writeProblem(w, 500, "Refresh failed", err.Error(), r.URL.Path); return }
    changed, _ := v.(bool)
    writeJSON(w, 200, map[string]any{"changed": changed, "shared": shared, "tracking": tr})
}

// SyncHandler handles POST /v1/admin/sync: one lease-guarded run, same as a tick.
func (s *Server) SyncHandler(w http.ResponseWriter, r *http.Request) {
    if !s.requireAdmin(w, r) { return }
    if s.Runner == nil { writeProblem(w, 503, "Unavailable", "scheduler not configured", r.URL.Path); return }
    rep := s.Runner.RunOnce(r.Context())
    code := http.StatusOK
    switch rep.Outcome {
    case scheduler.OutcomeSkipped:
        code = http.StatusConflict
    case scheduler.OutcomeFailed:
        code = http.StatusInternalServerError
    }
    writeJSON(w, code, rep)
}

type orderIn struct {
    Status         model.LifecycleState `json:"status"`
    ShippingMethod string               `json:"shippingMethod"`
    Customer       model.Customer       `json:"customer"`
    Destination    model.Destination    `json:"destination"`
    Items          []model.Item         `json:"items"`
}

// PutOrderHandler handles PUT /v1/orders/{orderId}, the shop's order feed.
// A paid carrier order without tracking gets its shipment booked right away.
func (s *Server) PutOrderHandler(w http.ResponseWriter, r *http.Request) {
    if !s.requireAdmin(w, r) { return }
    id := strings.TrimSpace(r.PathValue("orderId"))
    var in orderIn
    if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validateOrder(id, &in); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid order", err.Error(), r.URL.Path)
        return
    }
    o := model.Order{ID: id, Status: in.Status, ShippingMethod: in.ShippingMethod, Customer: in.Customer, Destination: in.Destination, Items: in.Items}
    if err := s.Store.PutOrder(r.Context(), o); err != nil { writeProblem(w, 500, "Save order failed", err.Error(), r.URL.Path); return }

    out := map[string]any{"orderId": id}
    if s.Shipper != nil {
        trackingID, err := s.Shipper.CreateShipment(r.Context(), id)
        switch {
        case err == nil:
            out["trackingId"] = trackingID
        case errors.Is(err, shipping.ErrNotEligible), errors.Is(err, shipping.ErrAlreadyShipped):
        default:
            s.Log.Warn("automatic shipment failed", zap.String("order_id", id), zap.Error(err))
            out["shipmentError"] = err.Error()
        }
    }
    writeJSON(w, 200, out)
}

// CreateShipmentHandler handles POST /v1/orders/{orderId}/shipment.
func (s *Server) CreateShipmentHandler(w http.ResponseWriter, r *http.Request) {
    if !s.requireAdmin(w, r) { return }
    if s.Shipper == nil { writeProblem(w, 503, "Unavailable", "shipping not configured", r.URL.Path); return }
    id := r.PathValue("orderId")
    trackingID, err := s.Shipper.CreateShipment(r.Context(), id)
    switch {
    case err == nil:
        writeJSON(w, http.StatusCreated, map[string]string{"orderId": id, "trackingId": trackingID})
    case errors.Is(err, store.ErrNotFound):
        writeProblem(w, 404, "Not Found", "order not found", r.URL.Path)
    case errors.Is(err, shipping.ErrNotEligible):
        writeProblem(w, http.StatusUnprocessableEntity, "Not eligible", err.Error(), r.URL.Path)
    case errors.Is(err, shipping.ErrAlreadyShipped):
        writeProblem(w, http.StatusConflict, "Already shipped", err.Error(), r.URL.Path)
    case errors.Is(err, shipping.ErrCreateFailed):
        writeProblem(w, http.StatusBadGateway, "Carrier error", err.Error(), r.URL.Path)
    default:
        writeProblem(w, 500, "Create shipment failed", err.Error(), r.URL.Path)
    }
}

type destinationOut struct {
    Name string `json:"name"`
    ID   int64  `json:"id"`
}

// DestinationsHandler handles GET /v1/destinations (cached table, sorted by name).
func (s *Server) DestinationsHandler(w http.ResponseWriter, r *http.Request) {
    if s.Destinations == nil { writeProblem(w, 503, "Unavailable", "destinations not configured", r.URL.Path); return }
    table, err := s.Destinations.All(r.Context())
    if err != nil { writeProblem(w, 500, "List destinations failed", err.Error(), r.URL.Path); return }
    items := make([]destinationOut, 0, len(table))
    for name, id := range table {
        items = append(items, destinationOut{Name: name, ID: id})
    }
    sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
    writeJSON(w, 200, map[string]any{"items": items})
}

// AgentsHandler handles GET /v1/agents for the pickup point picker.
func (s *Server) AgentsHandler(w http.ResponseWriter, r *http.Request) {
    if s.Agents == nil { writeProblem(w, 503, "Unavailable", "carrier not configured", r.URL.Path); return }
    agents, res := s.Agents.Agents(r.Context())
    switch res.Kind {
    case carrier.KindOK:
        if agents == nil { agents = []carrier.Agent{} }
        writeJSON(w, 200, map[string]any{"items": agents})
    case carrier.KindNotConfigured:
        writeProblem(w, 503, "Unavailable", "carrier not configured", r.URL.Path)
    default:
        writeProblem(w, http.StatusBadGateway, "Carrier error", res.Error(), r.URL.Path)
    }
}

// RatesHandler handles POST /v1/rates. An empty list hides the method at checkout.
// Cart items may be sent but are ignored; the carrier prices by destination.
func (s *Server) RatesHandler(w http.ResponseWriter, r *http.Request) {
    if s.Quoter == nil { writeJSON(w, 200, map[string]any{"rates": []shipping.Rate{}}); return }
    var req struct {
        Destination model.Destination `json:"destination"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    rates := []shipping.Rate{}
    if rate, ok := s.Quoter.Quote(r.Context(), req.Destination); ok {
        rates = append(rates, rate)
    }
    writeJSON(w, 200, map[string]any{"rates": rates})
}

func (s *Server) clock() time.Time {
    if s.now == nil { return time.Now() }
    return s.now()
}
