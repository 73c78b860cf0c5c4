// Package postgres persists audit events to a PostgreSQL table.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"support-router/internal/audit"
)

const createTable = `
CREATE TABLE IF NOT EXISTS support_audit_events (
	id          BIGSERIAL PRIMARY KEY,
	occurred_at TIMESTAMPTZ NOT NULL,
	agent       TEXT NOT NULL,
	action      TEXT NOT NULL,
	ticket_id   TEXT NOT NULL DEFAULT '',
	details     JSONB NOT NULL DEFAULT '{}'::jsonb
);
CREATE INDEX IF NOT EXISTS idx_support_audit_ticket ON support_audit_events(ticket_id, occurred_at);
`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Sink is an audit.Sink backed by PostgreSQL.
type Sink struct {
	db   execer
	pool *pgxpool.Pool
}

// Connect opens a pool and makes sure the events table exists.
func Connect(ctx context.Context, dsn string) (*Sink, error) {
	if dsn == "" {
		return nil, errors.New("postgres: dsn must not be empty")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	s := &Sink{db: pool, pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

func (s *Sink) Emit(ctx context.Context, e audit.Event) error {
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("postgres: marshal details: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO support_audit_events (occurred_at, agent, action, ticket_id, details) VALUES ($1, $2, $3, $4, $5)`,
		e.Time, e.Agent, e.Action, e.TicketID, raw)
	if err != nil {
		return fmt.Errorf("postgres: insert %s event: %w", e.Action, err)
	}
	return nil
}

func (s *Sink) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
