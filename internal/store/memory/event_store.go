package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/curatorlabs/marketd/internal/domain"
)

// EventStore implements domain.EventStore as an in-process append-only log.
type EventStore struct {
	mu     sync.RWMutex
	events []domain.LedgerEvent
}

// NewEventStore creates an empty journal.
func NewEventStore() *EventStore {
	return &EventStore{}
}

// Append journals one emitted record.
func (s *EventStore) Append(_ context.Context, typ domain.EventType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("memory: marshal %s event: %w", typ, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, domain.LedgerEvent{
		ID:        int64(len(s.events) + 1),
		Type:      typ,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// List returns journaled events oldest first.
func (s *EventStore) List(_ context.Context, opts domain.ListOpts) ([]domain.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := opts.Offset
	if start > len(s.events) {
		start = len(s.events)
	}
	end := len(s.events)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	out := make([]domain.LedgerEvent, end-start)
	copy(out, s.events[start:end])
	return out, nil
}

// ListBefore returns events created strictly before the cutoff.
func (s *EventStore) ListBefore(_ context.Context, before time.Time) ([]domain.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.LedgerEvent
	for _, ev := range s.events {
		if ev.CreatedAt.Before(before) {
			out = append(out, ev)
		}
	}
	return out, nil
}
