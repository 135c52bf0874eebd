package api

import (
    "context"
    "net/http"
    "time"

    "go.uber.org/zap"
    "golang.org/x/sync/singleflight"

    "pickupmtaani/internal/carrier"
    "pickupmtaani/internal/config"
    "pickupmtaani/internal/model"
    "pickupmtaani/internal/scheduler"
    "pickupmtaani/internal/shipping"
    "pickupmtaani/internal/store"
)

// OrderRefresher reconciles one order against the carrier (tracking.Reconciler).
type OrderRefresher interface {
    Reconcile(ctx context.Context, orderID string) (bool, error)
}

// SyncRunner runs one lease-guarded sync (scheduler.Runner).
type SyncRunner interface {
    RunOnce(ctx context.Context) scheduler.Report
}

type ShipmentCreator interface {
    CreateShipment(ctx context.Context, orderID string) (string, error)
}

type RateQuoter interface {
    Quote(ctx context.Context, dest model.Destination) (shipping.Rate, bool)
}

type DestinationTable interface {
    All(ctx context.Context) (map[string]int64, error)
}

type AgentLister interface {
    Agents(ctx context.Context) ([]carrier.Agent, carrier.Result)
}

// Server holds the dependencies of the HTTP handlers. Nil components make
// their routes answer 503.
type Server struct {
    Store        store.Store
    Reconciler   OrderRefresher
    Runner       SyncRunner
    Shipper      ShipmentCreator
    Quoter       RateQuoter
    Destinations DestinationTable
    Agents       AgentLister
    // AdminToken enables bearer auth for admin routes; empty falls back to X-Role.
    AdminToken string
    // StallAfter marks dashboard rows whose status has not moved for this long.
    StallAfter time.Duration
    // Config is shown redacted on the debug route.
    Config *config.Config
    Log    *zap.Logger

    refresh singleflight.Group
    now     func() time.Time
}

func NewServer(st store.Store, log *zap.Logger) *Server {
    if log == nil { log = zap.NewNop() }
    return &Server{Store: st, StallAfter: 72 * time.Hour, Log: log.Named("http"), now: time.Now}
}

// Routes builds the service mux with logging and metrics middleware.
func (s *Server) Routes(metricsHandler http.Handler) http.Handler {
    mux := http.NewServeMux()

    // Health
    mux.HandleFunc("GET /healthz", s.HealthHandler)
    mux.HandleFunc("GET /readyz", s.ReadyHandler)
    if metricsHandler != nil {
        mux.Handle("GET /metrics", metricsHandler)
    }

    // Tracking
    mux.HandleFunc("GET /v1/shipments", s.ShipmentsHandler)
    mux.HandleFunc("GET /v1/shipments/{orderId}", s.ShipmentHandler)
    mux.HandleFunc("POST /v1/shipments/{orderId}/refresh", s.RefreshHandler)
    mux.HandleFunc("POST /v1/admin/sync", s.SyncHandler)
    mux.HandleFunc("GET /v1/admin/debug", s.DebugJSON)

    // Orders
    mux.HandleFunc("PUT /v1/orders/{orderId}", s.PutOrderHandler)
    mux.HandleFunc("POST /v1/orders/{orderId}/shipment", s.CreateShipmentHandler)

    // Carrier catalogue and checkout
    mux.HandleFunc("GET /v1/destinations", s.DestinationsHandler)
    mux.HandleFunc("GET /v1/agents", s.AgentsHandler)
    mux.HandleFunc("POST /v1/rates", s.RatesHandler)

    return s.logMiddleware(instrument(mux))
}
