// eventsink.go provides an in-memory implementation of EventSink.
//
// This adapter keeps the ledger audit log in memory. Helpers for inspecting
// it during tests:
//   - Events(): every published event in order
//   - EventsByType(): events of one type
//   - EventsForUser(): events concerning one account
//   - OnPublish(): callback for event assertions
//   - SetPublishError(): make Publish fail
//
// All operations are thread-safe.
package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/dsc/internal/ports/outbound"
)

// Compile-time check that EventSink implements outbound.EventSink
var _ outbound.EventSink = (*EventSink)(nil)

// EventSink is an in-memory implementation of the EventSink port.
type EventSink struct {
	mu     sync.RWMutex
	events []outbound.LedgerEvent
	closed bool

	onPublish  func(outbound.LedgerEvent)
	publishErr error
}

// NewEventSink creates a new in-memory event sink.
func NewEventSink() *EventSink {
	return &EventSink{
		events: make([]outbound.LedgerEvent, 0),
	}
}

// Publish stores the event in memory. Events published after Close are dropped.
func (s *EventSink) Publish(_ context.Context, event outbound.LedgerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.publishErr != nil {
		return s.publishErr
	}
	if s.closed {
		return nil
	}

	s.events = append(s.events, event)

	if s.onPublish != nil {
		s.onPublish(event)
	}

	return nil
}

// Close marks the sink as closed.
func (s *EventSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Events returns all published events.
func (s *EventSink) Events() []outbound.LedgerEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]outbound.LedgerEvent, len(s.events))
	copy(result, s.events)
	return result
}

// EventsByType returns events filtered by type.
func (s *EventSink) EventsByType(eventType outbound.EventType) []outbound.LedgerEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]outbound.LedgerEvent, 0)
	for _, e := range s.events {
		if e.EventType() == eventType {
			result = append(result, e)
		}
	}
	return result
}

// EventsForUser returns the events concerning user's position.
func (s *EventSink) EventsForUser(user common.Address) []outbound.LedgerEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]outbound.LedgerEvent, 0)
	for _, e := range s.events {
		if e.GetUser() == user {
			result = append(result, e)
		}
	}
	return result
}

// EventCount returns the number of published events.
func (s *EventSink) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Clear removes all stored events.
func (s *EventSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make([]outbound.LedgerEvent, 0)
}

// OnPublish sets a callback to be called when an event is published.
func (s *EventSink) OnPublish(fn func(outbound.LedgerEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPublish = fn
}

// SetPublishError makes every subsequent Publish return err. Pass nil to reset.
func (s *EventSink) SetPublishError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishErr = err
}
