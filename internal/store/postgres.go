package store

import (
    "context"
    "database/sql"
    "embed"
    "encoding/json"
    "errors"
    "fmt"
    "io/fs"
    "sort"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "pickupmtaani/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

// NewPostgresDB wraps an already opened handle.
func NewPostgresDB(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate applies the embedded schema files in name order. Every statement is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
    names, err := fs.Glob(migrations, "migrations/*.sql")
    if err != nil { return err }
    sort.Strings(names)
    for _, name := range names {
        body, err := migrations.ReadFile(name)
        if err != nil { return err }
        if _, err := p.db.ExecContext(ctx, string(body)); err != nil {
            return fmt.Errorf("migrate %s: %w", name, err)
        }
    }
    return nil
}

// PutOrder upserts order details. Tracking columns are left to SetTracking/SetStatus.
func (p *Postgres) PutOrder(ctx context.Context, o model.Order) error {
    if o.Status == "" { o.Status = model.StatePending }
    customer, err := json.Marshal(o.Customer)
    if err != nil { return err }
    dest, err := json.Marshal(o.Destination)
    if err != nil { return err }
    items, err := json.Marshal(orEmpty(o.Items))
    if err != nil { return err }
    _, err = p.db.ExecContext(ctx, `INSERT INTO orders (id, status, shipping_method, customer, destination, items) VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status, shipping_method=EXCLUDED.shipping_method, customer=EXCLUDED.customer, destination=EXCLUDED.destination, items=EXCLUDED.items`,
        o.ID, string(o.Status), o.ShippingMethod, customer, dest, items)
    return err
}

const orderColumns = `id, status, shipping_method, customer, destination, items, tracking_id, last_status, status_changed_at, created_at`

func (p *Postgres) GetOrder(ctx context.Context, orderID string) (model.Order, error) {
    row := p.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, orderID)
    o, err := scanOrder(row)
    if errors.Is(err, sql.ErrNoRows) { return o, ErrNotFound }
    return o, err
}

func (p *Postgres) GetTracking(ctx context.Context, orderID string) (model.TrackingRecord, error) {
    var rec model.TrackingRecord
    var trackingID sql.NullString
    var changed sql.NullTime
    err := p.db.QueryRowContext(ctx, `SELECT tracking_id, last_status, status_changed_at, status FROM orders WHERE id=$1`, orderID).
        Scan(&trackingID, &rec.LastStatus, &changed, &rec.OrderState)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) { return rec, ErrNotFound }
        return rec, err
    }
    rec.TrackingID = trackingID.String
    if changed.Valid { rec.StatusChangedAt = changed.Time }
    return rec, nil
}

func (p *Postgres) SetStatus(ctx context.Context, orderID, status string) error {
    res, err := p.db.ExecContext(ctx, `UPDATE orders SET last_status=$2, status_changed_at=now() WHERE id=$1`, orderID, status)
    if err != nil { return err }
    return requireRow(res)
}

func (p *Postgres) SetTracking(ctx context.Context, orderID, trackingID string) error {
    res, err := p.db.ExecContext(ctx, `UPDATE orders SET tracking_id=$2, last_status=$3, status_changed_at=now() WHERE id=$1 AND tracking_id IS NULL`, orderID, trackingID, model.CreatedStatus)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 1 { return nil }
    // Either the order is missing or it already has a shipment.
    var exists bool
    if err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id=$1)`, orderID).Scan(&exists); err != nil { return err }
    if !exists { return ErrNotFound }
    return ErrTrackingExists
}

func (p *Postgres) AppendNote(ctx context.Context, orderID, text string) error {
    _, err := p.db.ExecContext(ctx, `INSERT INTO order_notes (id, order_id, note) VALUES ($1,$2,$3)`, uuid.New(), orderID, text)
    return err
}

// Transition moves the order to state and records the note in the same transaction.
func (p *Postgres) Transition(ctx context.Context, orderID string, state model.LifecycleState, note string) error {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func(){ _ = tx.Rollback() }()

    var current string
    if err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&current); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return ErrNotFound }
        return err
    }
    if model.LifecycleState(current) == state { return nil }
    if _, err := tx.ExecContext(ctx, `UPDATE orders SET status=$2 WHERE id=$1`, orderID, string(state)); err != nil { return err }
    if _, err := tx.ExecContext(ctx, `INSERT INTO order_notes (id, order_id, note) VALUES ($1,$2,$3)`,
        uuid.New(), orderID, transitionNote(note, model.LifecycleState(current), state)); err != nil {
        return err
    }
    return tx.Commit()
}

func (p *Postgres) ListTracked(ctx context.Context, offset, limit int) ([]string, error) {
    if offset < 0 { offset = 0 }
    if err := checkPage(limit); err != nil { return nil, err }
    rows, err := p.db.QueryContext(ctx, `SELECT id FROM orders WHERE tracking_id IS NOT NULL ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []string{}
    for rows.Next() {
        var id string
        if err := rows.Scan(&id); err != nil { return nil, err }
        out = append(out, id)
    }
    return out, rows.Err()
}

func (p *Postgres) Notes(ctx context.Context, orderID string) ([]model.Note, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, note, created_at FROM order_notes WHERE order_id=$1 ORDER BY created_at, id`, orderID)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []model.Note
    for rows.Next() {
        n := model.Note{OrderID: orderID}
        if err := rows.Scan(&n.ID, &n.Text, &n.CreatedAt); err != nil { return nil, err }
        out = append(out, n)
    }
    return out, rows.Err()
}

func (p *Postgres) ListShipments(ctx context.Context, limit int) ([]model.Order, error) {
    if limit <= 0 || limit > 500 { limit = 15 }
    rows, err := p.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE tracking_id IS NOT NULL AND status IN ('processing','completed') AND lower(last_status) <> 'delivered' ORDER BY created_at DESC LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []model.Order
    for rows.Next() {
        o, err := scanOrder(rows)
        if err != nil { return nil, err }
        out = append(out, o)
    }
    return out, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanOrder(s scanner) (model.Order, error) {
    var o model.Order
    var status string
    var customer, dest, items []byte
    var trackingID sql.NullString
    var changed sql.NullTime
    var created time.Time
    if err := s.Scan(&o.ID, &status, &o.ShippingMethod, &customer, &dest, &items, &trackingID, &o.Tracking.LastStatus, &changed, &created); err != nil {
        return o, err
    }
    o.Status = model.LifecycleState(status)
    o.Tracking.TrackingID = trackingID.String
    if changed.Valid { o.Tracking.StatusChangedAt = changed.Time }
    o.CreatedAt = created
    if err := decodeJSON(customer, &o.Customer); err != nil { return o, err }
    if err := decodeJSON(dest, &o.Destination); err != nil { return o, err }
    if err := decodeJSON(items, &o.Items); err != nil { return o, err }
    return o, nil
}

func decodeJSON(b []byte, v any) error {
    if len(b) == 0 { return nil }
    if err := json.Unmarshal(b, v); err != nil { return fmt.Errorf("decode order column: %w", err) }
    return nil
}

func requireRow(res sql.Result) error {
    n, err := res.RowsAffected()
    if err != nil { return err }
    if n == 0 { return ErrNotFound }
    return nil
}

func orEmpty(items []model.Item) []model.Item {
    if items == nil { return []model.Item{} }
    return items
}
