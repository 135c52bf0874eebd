package store

import (
    "context"
    "sort"
    "strings"
    "sync"
    "time"

    "github.com/google/uuid"
    "pickupmtaani/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu     sync.Mutex
    orders map[string]model.Order   // id -> order
    ids    []string                 // insertion order
    notes  map[string][]model.Note  // order id -> notes
    now    func() time.Time
}

func NewMemory() *Memory {
    return &Memory{
        orders: map[string]model.Order{},
        notes:  map[string][]model.Note{},
        now:    time.Now,
    }
}

// SetClock replaces the time source, for tests.
func (m *Memory) SetClock(now func() time.Time) {
    m.mu.Lock(); defer m.mu.Unlock()
    m.now = now
}

func (m *Memory) PutOrder(ctx context.Context, o model.Order) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if o.Status == "" { o.Status = model.StatePending }
    if o.CreatedAt.IsZero() { o.CreatedAt = m.now() }
    if prev, ok := m.orders[o.ID]; ok {
        // tracking is owned by SetTracking/SetStatus once set
        if prev.Tracking.HasShipment() { o.Tracking = prev.Tracking }
    } else {
        m.ids = append(m.ids, o.ID)
    }
    m.orders[o.ID] = o
    return nil
}

func (m *Memory) GetOrder(ctx context.Context, orderID string) (model.Order, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    o, ok := m.orders[orderID]
    if !ok { return model.Order{}, ErrNotFound }
    return o, nil
}

func (m *Memory) GetTracking(ctx context.Context, orderID string) (model.TrackingRecord, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    o, ok := m.orders[orderID]
    if !ok { return model.TrackingRecord{}, ErrNotFound }
    rec := o.Tracking
    rec.OrderState = o.Status
    return rec, nil
}

func (m *Memory) SetStatus(ctx context.Context, orderID, status string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    o, ok := m.orders[orderID]
    if !ok { return ErrNotFound }
    o.Tracking.LastStatus = status
    o.Tracking.StatusChangedAt = m.now()
    m.orders[orderID] = o
    return nil
}

func (m *Memory) SetTracking(ctx context.Context, orderID, trackingID string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    o, ok := m.orders[orderID]
    if !ok { return ErrNotFound }
    if o.Tracking.HasShipment() { return ErrTrackingExists }
    o.Tracking = model.TrackingRecord{TrackingID: trackingID, LastStatus: model.CreatedStatus, StatusChangedAt: m.now()}
    m.orders[orderID] = o
    return nil
}

func (m *Memory) AppendNote(ctx context.Context, orderID, text string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.orders[orderID]; !ok { return ErrNotFound }
    m.appendNoteLocked(orderID, text)
    return nil
}

func (m *Memory) appendNoteLocked(orderID, text string) {
    m.notes[orderID] = append(m.notes[orderID], model.Note{ID: uuid.New().String(), OrderID: orderID, Text: text, CreatedAt: m.now()})
}

func (m *Memory) Transition(ctx context.Context, orderID string, state model.LifecycleState, note string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    o, ok := m.orders[orderID]
    if !ok { return ErrNotFound }
    if o.Status == state { return nil }
    m.appendNoteLocked(orderID, transitionNote(note, o.Status, state))
    o.Status = state
    m.orders[orderID] = o
    return nil
}

func (m *Memory) ListTracked(ctx context.Context, offset, limit int) ([]string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if offset < 0 { offset = 0 }
    if err := checkPage(limit); err != nil { return nil, err }
    out := []string{}
    seen := 0
    for _, id := range m.ids {
        if !m.orders[id].Tracking.HasShipment() { continue }
        if seen >= offset { out = append(out, id) }
        seen++
        if len(out) == limit { break }
    }
    return out, nil
}

func (m *Memory) Notes(ctx context.Context, orderID string) ([]model.Note, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.orders[orderID]; !ok { return nil, ErrNotFound }
    return append([]model.Note(nil), m.notes[orderID]...), nil
}

// ListShipments returns the newest tracked orders that are processing or completed
// and not yet delivered.
func (m *Memory) ListShipments(ctx context.Context, limit int) ([]model.Order, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 { limit = 15 }
    var out []model.Order
    for _, id := range m.ids {
        o := m.orders[id]
        if !o.Tracking.HasShipment() { continue }
        if o.Status != model.StateProcessing && o.Status != model.StateCompleted { continue }
        if strings.EqualFold(o.Tracking.LastStatus, "delivered") { continue }
        out = append(out, o)
    }
    sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
    if len(out) > limit { out = out[:limit] }
    return out, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
