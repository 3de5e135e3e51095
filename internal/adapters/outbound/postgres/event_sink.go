package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archon-research/dsc/internal/ports/outbound"
)

// Compile-time check that EventSink implements outbound.EventSink
var _ outbound.EventSink = (*EventSink)(nil)

// EventSink appends ledger events to the ledger_events table.
// The pool is owned by the caller; Close does not close it.
type EventSink struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewEventSink creates a new PostgreSQL ledger event sink.
func NewEventSink(pool *pgxpool.Pool, logger *slog.Logger) (*EventSink, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventSink{
		pool:   pool,
		logger: logger.With("component", "postgres-eventsink"),
	}, nil
}

// Publish inserts event with its JSON encoding as payload.
func (s *EventSink) Publish(ctx context.Context, event outbound.LedgerEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.EventType(), err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO ledger_events (event_type, user_address, payload, occurred_at)
		 VALUES ($1, $2, $3, $4)`,
		string(event.EventType()), event.GetUser().Bytes(), payload, event.GetOccurredAt())
	if err != nil {
		return fmt.Errorf("failed to save ledger event: %w", err)
	}
	return nil
}

// Close is a no-op.
func (s *EventSink) Close() error {
	return nil
}
