package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx driver

	"github.com/gometeo/weathermail/internal/audit"
	"github.com/gometeo/weathermail/internal/model"
)

// AuditStorage is the Postgres audit journal.
type AuditStorage struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ audit.Sink = (*AuditStorage)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id          VARCHAR(64) PRIMARY KEY,
	action      VARCHAR(64) NOT NULL,
	city        VARCHAR(255) NOT NULL DEFAULT '',
	email       VARCHAR(255) NOT NULL DEFAULT '',
	log_id      VARCHAR(128) NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_events_occurred_at ON audit_events (occurred_at DESC);`

func New(dsn string, logger *slog.Logger) (*AuditStorage, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}

	return &AuditStorage{db: db, logger: logger}, nil
}

func (s *AuditStorage) Close() error {
	return s.db.Close()
}

func (s *AuditStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Save inserts the event. Redelivered events with a known id are ignored.
func (s *AuditStorage) Save(ctx context.Context, ev model.AuditEvent) error {
	query := `
		INSERT INTO audit_events (id, action, city, email, log_id, error, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING;
	`

	_, err := s.db.ExecContext(ctx, query,
		ev.ID,
		ev.Action,
		ev.City,
		ev.Email,
		ev.LogID,
		ev.Error,
		ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("save audit event %s: %w", ev.ID, err)
	}

	return nil
}

// Recent returns the newest events first.
func (s *AuditStorage) Recent(ctx context.Context, limit int) ([]model.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, city, email, log_id, error, occurred_at
		FROM audit_events
		ORDER BY occurred_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEvent
	for rows.Next() {
		var ev model.AuditEvent
		if err := rows.Scan(&ev.ID, &ev.Action, &ev.City, &ev.Email, &ev.LogID, &ev.Error, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}
