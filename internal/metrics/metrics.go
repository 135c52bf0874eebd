package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the service
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // CarrierRequests counts carrier API calls by verb and outcome (ok, not_configured, transport, http_status, decode)
    CarrierRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "carrier_requests_total", Help: "Carrier API calls by verb and outcome."},
        []string{"verb", "outcome"},
    )
    // CarrierLatency tracks carrier round trips in seconds
    CarrierLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "carrier_request_duration_seconds", Help: "Carrier API latency in seconds.", Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20}},
        []string{"verb"},
    )

    // SyncRuns counts scheduled runs by outcome (completed, skipped, failed)
    SyncRuns = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "sync_runs_total", Help: "Tracking sync runs by outcome."},
        []string{"outcome"},
    )
    // SyncDuration records how long a run held the lease
    SyncDuration = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "sync_run_duration_seconds", Help: "Tracking sync run duration in seconds.", Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3000}},
    )
    // OrdersReconciled counts per-order reconcile results (updated, unchanged, failed)
    OrdersReconciled = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "orders_reconciled_total", Help: "Per-order reconcile results."},
        []string{"result"},
    )
    // DestinationsCached is the size of the last destinations rebuild
    DestinationsCached = prometheus.NewGauge(
        prometheus.GaugeOpts{Name: "destinations_cached", Help: "Destinations stored by the last refresh."},
    )
)

// RegisterDefault registers collectors to the service registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(CarrierRequests)
        Registry.MustRegister(CarrierLatency)
        Registry.MustRegister(SyncRuns)
        Registry.MustRegister(SyncDuration)
        Registry.MustRegister(OrdersReconciled)
        Registry.MustRegister(DestinationsCached)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
