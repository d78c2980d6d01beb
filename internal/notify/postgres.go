package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/synheart/roomwatch/internal/models"
)

// PostgresConfig holds the alert journal settings
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

const createJournalTable = `
	CREATE TABLE IF NOT EXISTS alert_journal (
		alert_id     UUID PRIMARY KEY,
		kind         TEXT NOT NULL,
		device_id    TEXT NOT NULL,
		location     TEXT NOT NULL,
		title        TEXT NOT NULL,
		body         TEXT NOT NULL,
		data         JSONB NOT NULL,
		triggered_at TIMESTAMPTZ NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

const insertJournalEntry = `
	INSERT INTO alert_journal (
		alert_id,
		kind,
		device_id,
		location,
		title,
		body,
		data,
		triggered_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8
	)
	ON CONFLICT (alert_id) DO NOTHING
`

// Journal records every alert in a Postgres table. It is an audit trail of
// what was sent, not a history store for readings.
type Journal struct {
	db *sql.DB
}

// OpenPostgres opens and pings a Postgres connection pool
func OpenPostgres(cfg PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// NewJournal wraps db
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// EnsureSchema creates the journal table when missing
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, createJournalTable); err != nil {
		return fmt.Errorf("failed to create alert_journal: %w", err)
	}
	return nil
}

// Notify inserts the alert. Re-delivery of the same alert ID is ignored.
func (j *Journal) Notify(ctx context.Context, alert models.Alert) error {
	payload := alert.Payload()
	data, err := json.Marshal(payload.Data)
	if err != nil {
		return fmt.Errorf("failed to encode alert data: %w", err)
	}

	_, err = j.db.ExecContext(ctx, insertJournalEntry,
		alert.ID,
		string(alert.Kind),
		alert.DeviceID,
		alert.Location,
		payload.Title,
		payload.Body,
		string(data),
		alert.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert %s: %w", alert.ID, err)
	}
	return nil
}

// Close closes the connection pool
func (j *Journal) Close() error {
	return j.db.Close()
}
