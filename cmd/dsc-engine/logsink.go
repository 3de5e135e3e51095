package main

import (
	"context"
	"log/slog"

	"github.com/archon-research/dsc/internal/ports/outbound"
)

// logEventSink writes ledger events to the service log.
type logEventSink struct {
	logger *slog.Logger
}

func newLogEventSink(logger *slog.Logger) *logEventSink {
	return &logEventSink{logger: logger.With("component", "ledger-events")}
}

func (s *logEventSink) Publish(ctx context.Context, event outbound.LedgerEvent) error {
	s.logger.InfoContext(ctx, "ledger event",
		"type", event.EventType(),
		"user", event.GetUser().Hex(),
		"occurredAt", event.GetOccurredAt(),
		"event", event)
	return nil
}

func (s *logEventSink) Close() error { return nil }
