package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres archives events to a table when DATABASE_URL is set. Write-only
// from the engine's point of view; List exists for the admin surface.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens the archive database and ensures its schema.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS sim_events (
        id TEXT PRIMARY KEY,
        event_type TEXT NOT NULL,
        vehicle TEXT,
        order_id TEXT,
        sim_time TIMESTAMPTZ NOT NULL,
        payload JSONB,
        recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`)
	if err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Record(ctx context.Context, e Event) error {
	var payload any
	if e.Payload != nil {
		b, err := json.Marshal(e.Payload)
		if err == nil {
			payload = string(b)
		}
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO sim_events (id, event_type, vehicle, order_id, sim_time, payload) VALUES ($1,$2,$3,$4,$5,$6)`,
		e.ID, e.Type, nullIfEmpty(e.Vehicle), nullIfEmpty(e.OrderID), e.SimTime, payload)
	return err
}

func (p *Postgres) List(ctx context.Context, eventType, vehicle string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, event_type, COALESCE(vehicle,''), COALESCE(order_id,''), sim_time, COALESCE(payload::text,'')
         FROM sim_events
         WHERE ($1 = '' OR event_type = $1) AND ($2 = '' OR vehicle = $2)
         ORDER BY sim_time DESC LIMIT $3`,
		eventType, vehicle, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Event{}
	for rows.Next() {
		var e Event
		var simTime time.Time
		var payload string
		if err := rows.Scan(&e.ID, &e.Type, &e.Vehicle, &e.OrderID, &simTime, &payload); err != nil {
			return nil, err
		}
		e.SimTime = simTime
		if payload != "" {
			_ = json.Unmarshal([]byte(payload), &e.Payload)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
