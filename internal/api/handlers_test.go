package api

import (
    "bytes"
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "strings"
    "sync/atomic"
    "testing"
    "time"

    "pickupmtaani/internal/carrier"
    "pickupmtaani/internal/config"
    "pickupmtaani/internal/destinations"
    "pickupmtaani/internal/lease"
    "pickupmtaani/internal/model"
    "pickupmtaani/internal/scheduler"
    "pickupmtaani/internal/shipping"
    "pickupmtaani/internal/store"
    "pickupmtaani/internal/tracking"
)

// fakeCarrierAPI serves the carrier endpoints the server touches.
type fakeCarrierAPI struct {
    status     atomic.Value // string
    trackCalls atomic.Int32
}

func (f *fakeCarrierAPI) handler(w http.ResponseWriter, r *http.Request) {
    w.Header().Set("Content-Type", "application/json")
    switch {
    case strings.HasPrefix(r.URL.Path, "/packages/track/"):
        f.trackCalls.Add(1)
        status, _ := f.status.Load().(string)
        _ = json.NewEncoder(w).Encode(map[string]string{"status": status})
    case r.URL.Path == "/packages/agent-agent":
        _, _ = w.Write([]byte(`{"tracking_number":"PM-100"}`))
    case r.URL.Path == "/locations/agents":
        _, _ = w.Write([]byte(`[{"id":7,"name":"Thika Agent"}]`))
    case r.URL.Path == "/locations/doorstep-destinations":
        _, _ = w.Write([]byte(`{"data":[{"id":4,"name":"Nairobi"},{"id":"9","name":"Thika"}]}`))
    case r.URL.Path == "/delivery-charge/doorstep-package":
        _, _ = w.Write([]byte(`{"data":{"price":180}}`))
    default:
        w.WriteHeader(http.StatusNotFound)
        _, _ = w.Write([]byte(`{}`))
    }
}

type testEnv struct {
    srv   *Server
    h     http.Handler
    st    *store.Memory
    api   *fakeCarrierAPI
    locks *lease.Memory
}

func newTestEnv(t *testing.T) *testEnv {
    t.Helper()
    api := &fakeCarrierAPI{}
    api.status.Store("in_transit")
    ts := httptest.NewServer(http.HandlerFunc(api.handler))
    t.Cleanup(ts.Close)

    client := carrier.NewClient(carrier.Config{APIKey: "k", BaseURL: ts.URL, Timeout: 2 * time.Second}, nil)
    st := store.NewMemory()
    cache := destinations.NewMemoryCache()
    rec := tracking.NewReconciler(st, client, nil)
    locks := lease.NewMemory()
    runner := scheduler.NewRunner(locks,
        destinations.NewRefresher(client, cache, time.Hour, nil),
        tracking.NewSyncer(st, rec, 2, nil), nil)

    s := NewServer(st, nil)
    s.Reconciler = rec
    s.Runner = runner
    s.Shipper = shipping.NewShipper(st, client, "biz-1", nil)
    s.Quoter = shipping.NewQuoter(client, cache, "7", "Pickup Mtaani", nil)
    s.Destinations = cache
    s.Agents = client
    return &testEnv{srv: s, h: s.Routes(nil), st: st, api: api, locks: locks}
}

func (e *testEnv) do(method, path, body string, admin bool) *httptest.ResponseRecorder {
    var rdr *bytes.Reader
    if body != "" { rdr = bytes.NewReader([]byte(body)) } else { rdr = bytes.NewReader(nil) }
    req := httptest.NewRequest(method, path, rdr)
    if body != "" { req.Header.Set("Content-Type", "application/json") }
    if admin { req.Header.Set("X-Role", "admin") }
    rr := httptest.NewRecorder()
    e.h.ServeHTTP(rr, req)
    return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
    t.Helper()
    var out map[string]any
    if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil { t.Fatalf("decode %q: %v", rr.Body.String(), err) }
    return out
}

const paidOrderJSON = `{"status":"processing","shippingMethod":"pickup_mtaani","customer":{"firstName":"Amina","lastName":"Otieno","phone":"0712"},"destination":{"city":"Thika","country":"KE"},"items":[{"name":"Kikoi","quantity":1,"price":850}]}`

func TestHealthReady(t *testing.T) {
    e := newTestEnv(t)
    if rr := e.do(http.MethodGet, "/healthz", "", false); rr.Code != 200 { t.Fatalf("health: got %d", rr.Code) }
    if rr := e.do(http.MethodGet, "/readyz", "", false); rr.Code != 200 { t.Fatalf("ready: got %d", rr.Code) }
}

func TestPutOrderBooksShipment(t *testing.T) {
    e := newTestEnv(t)
    rr := e.do(http.MethodPut, "/v1/orders/1001", paidOrderJSON, true)
    if rr.Code != 200 { t.Fatalf("put order: %d %s", rr.Code, rr.Body.String()) }
    if got := decode(t, rr)["trackingId"]; got != "PM-100" { t.Fatalf("trackingId: got %v", got) }

    // second explicit create is a conflict
    rr = e.do(http.MethodPost, "/v1/orders/1001/shipment", "", true)
    if rr.Code != http.StatusConflict { t.Fatalf("create again: got %d", rr.Code) }

    // customer view shows tracking without notes
    rr = e.do(http.MethodGet, "/v1/shipments/1001", "", false)
    if rr.Code != 200 { t.Fatalf("shipment: %d", rr.Code) }
    body := decode(t, rr)
    if body["trackingId"] != "PM-100" || body["status"] != model.CreatedStatus { t.Fatalf("shipment body: %v", body) }
    if _, ok := body["notes"]; ok { t.Fatalf("customer view must not include notes") }
}

func TestAdminRoutesRequireRole(t *testing.T) {
    e := newTestEnv(t)
    for _, c := range []struct{ method, path string }{
        {http.MethodGet, "/v1/shipments"},
        {http.MethodPost, "/v1/admin/sync"},
        {http.MethodPost, "/v1/shipments/1/refresh"},
        {http.MethodPost, "/v1/orders/1/shipment"},
        {http.MethodPut, "/v1/orders/1"},
    } {
        if rr := e.do(c.method, c.path, "", false); rr.Code != http.StatusForbidden {
            t.Fatalf("%s %s: got %d", c.method, c.path, rr.Code)
        }
    }
}

func TestAdminToken(t *testing.T) {
    e := newTestEnv(t)
    e.srv.AdminToken = "s3cret"
    req := httptest.NewRequest(http.MethodGet, "/v1/shipments", nil)
    req.Header.Set("X-Role", "admin")
    rr := httptest.NewRecorder()
    e.h.ServeHTTP(rr, req)
    if rr.Code != http.StatusForbidden { t.Fatalf("header role with token configured: got %d", rr.Code) }

    req = httptest.NewRequest(http.MethodGet, "/v1/shipments", nil)
    req.Header.Set("Authorization", "Bearer s3cret")
    rr = httptest.NewRecorder()
    e.h.ServeHTTP(rr, req)
    if rr.Code != 200 { t.Fatalf("bearer: got %d", rr.Code) }
}

func TestRefreshReconcilesOrder(t *testing.T) {
    e := newTestEnv(t)
    e.do(http.MethodPut, "/v1/orders/1001", paidOrderJSON, true)

    e.api.status.Store("delivered")
    rr := e.do(http.MethodPost, "/v1/shipments/1001/refresh", "", true)
    if rr.Code != 200 { t.Fatalf("refresh: %d %s", rr.Code, rr.Body.String()) }
    if decode(t, rr)["changed"] != true { t.Fatalf("expected changed") }
    o, _ := e.st.GetOrder(context.Background(), "1001")
    if o.Status != model.StateCompleted { t.Fatalf("order state: got %s", o.Status) }

    rr = e.do(http.MethodPost, "/v1/shipments/1001/refresh", "", true)
    if decode(t, rr)["changed"] != false { t.Fatalf("second refresh must be a no-op") }

    if rr := e.do(http.MethodPost, "/v1/shipments/nope/refresh", "", true); rr.Code != 404 { t.Fatalf("missing order: got %d", rr.Code) }
}

func TestShipmentsDashboard(t *testing.T) {
    e := newTestEnv(t)
    e.do(http.MethodPut, "/v1/orders/1", paidOrderJSON, true)
    e.do(http.MethodPut, "/v1/orders/2", paidOrderJSON, true)
    e.do(http.MethodPut, "/v1/orders/3", strings.Replace(paidOrderJSON, "pickup_mtaani", "flat_rate", 1), true)

    e.srv.now = func() time.Time { return time.Now().Add(100 * time.Hour) }
    rr := e.do(http.MethodGet, "/v1/shipments", "", true)
    if rr.Code != 200 { t.Fatalf("shipments: %d", rr.Code) }
    var out struct{ Items []model.Shipment `json:"items"` }
    if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil { t.Fatal(err) }
    if len(out.Items) != 2 { t.Fatalf("expected 2 rows, got %d", len(out.Items)) }
    for _, it := range out.Items {
        if !it.Stalled { t.Fatalf("row %s should be stalled", it.OrderID) }
        if it.Customer != "Amina Otieno" { t.Fatalf("customer: %q", it.Customer) }
    }
}

func TestSyncRunsAndSkipsWhenLocked(t *testing.T) {
    e := newTestEnv(t)
    for _, id := range []string{"1", "2", "3"} {
        e.do(http.MethodPut, "/v1/orders/"+id, paidOrderJSON, true)
    }
    e.api.status.Store("delivered")

    rr := e.do(http.MethodPost, "/v1/admin/sync", "", true)
    if rr.Code != 200 { t.Fatalf("sync: %d %s", rr.Code, rr.Body.String()) }
    var rep scheduler.Report
    if err := json.Unmarshal(rr.Body.Bytes(), &rep); err != nil { t.Fatal(err) }
    if rep.Sync.Updated != 3 || rep.Destinations != 2 { t.Fatalf("report: %+v", rep) }

    held, err := e.locks.Acquire(context.Background(), scheduler.LockName, time.Hour)
    if err != nil { t.Fatal(err) }
    defer held.Release(context.Background())
    calls := e.api.trackCalls.Load()
    rr = e.do(http.MethodPost, "/v1/admin/sync", "", true)
    if rr.Code != http.StatusConflict { t.Fatalf("locked sync: got %d", rr.Code) }
    if e.api.trackCalls.Load() != calls { t.Fatalf("skipped run must not call the carrier") }
}

func TestDestinationsAgentsAndRates(t *testing.T) {
    e := newTestEnv(t)
    // unknown city before the cache is filled
    rr := e.do(http.MethodPost, "/v1/rates", `{"destination":{"city":"Thika","country":"KE"}}`, false)
    var rates struct{ Rates []shipping.Rate `json:"rates"` }
    _ = json.Unmarshal(rr.Body.Bytes(), &rates)
    if len(rates.Rates) != 0 { t.Fatalf("expected hidden rate, got %+v", rates.Rates) }

    e.do(http.MethodPost, "/v1/admin/sync", "", true)

    rr = e.do(http.MethodGet, "/v1/destinations", "", false)
    var dests struct{ Items []destinationOut `json:"items"` }
    _ = json.Unmarshal(rr.Body.Bytes(), &dests)
    if len(dests.Items) != 2 || dests.Items[0].Name != "nairobi" || dests.Items[1].ID != 9 { t.Fatalf("destinations: %+v", dests.Items) }

    rr = e.do(http.MethodPost, "/v1/rates", `{"destination":{"city":"Thika","country":"KE"}}`, false)
    _ = json.Unmarshal(rr.Body.Bytes(), &rates)
    if len(rates.Rates) != 1 || rates.Rates[0].Cost != 180 { t.Fatalf("rates: %+v", rates.Rates) }

    // cart contents do not change the price
    rr = e.do(http.MethodPost, "/v1/rates", `{"destination":{"city":"Thika","country":"KE"},"items":[{"name":"Kikoi","quantity":6,"price":850}]}`, false)
    rates.Rates = nil
    _ = json.Unmarshal(rr.Body.Bytes(), &rates)
    if len(rates.Rates) != 1 || rates.Rates[0].Cost != 180 { t.Fatalf("rates with items: %+v", rates.Rates) }

    rr = e.do(http.MethodGet, "/v1/agents", "", false)
    if rr.Code != 200 { t.Fatalf("agents: %d", rr.Code) }
}

func TestRatesInvalidJSON(t *testing.T) {
    e := newTestEnv(t)
    if rr := e.do(http.MethodPost, "/v1/rates", `{`, false); rr.Code != 400 { t.Fatalf("got %d", rr.Code) }
}

func TestPutOrderValidation(t *testing.T) {
    e := newTestEnv(t)
    for _, body := range []string{
        `{"status":"shipped"}`,
        `{"shippingMethod":"pickup_mtaani","destination":{"city":" "}}`,
        `{"items":[{"name":"x","quantity":-1}]}`,
    } {
        if rr := e.do(http.MethodPut, "/v1/orders/9", body, true); rr.Code != 400 { t.Fatalf("%s: got %d", body, rr.Code) }
    }
}

func TestDebugRedactsSecrets(t *testing.T) {
    e := newTestEnv(t)
    cfg := config.Default()
    cfg.Carrier.APIKey = "super-secret"
    e.srv.Config = &cfg
    rr := e.do(http.MethodGet, "/v1/admin/debug", "", true)
    if rr.Code != 200 { t.Fatalf("debug: %d", rr.Code) }
    if strings.Contains(rr.Body.String(), "super-secret") { t.Fatalf("api key leaked") }
    if decode(t, rr)["schedulerEnabled"] != false { t.Fatalf("scheduler should be reported disabled") }
}
