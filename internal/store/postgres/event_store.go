package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/curatorlabs/marketd/internal/domain"
)

// EventStore implements domain.EventStore as an append-only journal table.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append journals one emitted record.
func (s *EventStore) Append(ctx context.Context, typ domain.EventType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("postgres: marshal %s event: %w", typ, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO ledger_events (event_type, payload) VALUES ($1, $2)`,
		string(typ), data)
	if err != nil {
		return fmt.Errorf("postgres: append %s event: %w", typ, err)
	}
	return nil
}

// List returns journaled events oldest first.
func (s *EventStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.LedgerEvent, error) {
	query := `SELECT id, event_type, payload, created_at FROM ledger_events ORDER BY id ASC`
	args := []any{}
	if opts.Limit > 0 {
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var events []domain.LedgerEvent
	for rows.Next() {
		var (
			ev  domain.LedgerEvent
			typ string
		)
		if err := rows.Scan(&ev.ID, &typ, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		ev.Type = domain.EventType(typ)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return events, nil
}

// ListBefore returns events created strictly before the cutoff.
func (s *EventStore) ListBefore(ctx context.Context, before time.Time) ([]domain.LedgerEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_type, payload, created_at
		 FROM ledger_events
		 WHERE created_at < $1
		 ORDER BY id ASC`,
		before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before %s: %w", before, err)
	}
	defer rows.Close()

	var events []domain.LedgerEvent
	for rows.Next() {
		var (
			ev  domain.LedgerEvent
			typ string
		)
		if err := rows.Scan(&ev.ID, &typ, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		ev.Type = domain.EventType(typ)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return events, nil
}
