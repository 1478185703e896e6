// Package memory provides in-memory storage implementations for
// development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"solana-counter-indexer/internal/domain"
	"solana-counter-indexer/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data []*domain.CounterEvent
	keys map[string]bool
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		data: make([]*domain.CounterEvent, 0),
		keys: make(map[string]bool),
	}
}

// Insert adds a new counter event. Returns ErrDuplicateKey if the
// signature exists.
func (s *EventStore) Insert(_ context.Context, e *domain.CounterEvent) error {
	if e == nil || e.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keys[e.Signature] {
		return storage.ErrDuplicateKey
	}

	// Store a copy
	copy := *e
	s.data = append(s.data, &copy)
	s.keys[e.Signature] = true

	return nil
}

// GetByAuthority retrieves events for one authority, newest first.
func (s *EventStore) GetByAuthority(_ context.Context, authority string, limit int) ([]*domain.CounterEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CounterEvent
	for _, e := range s.data {
		if e.Authority == authority {
			copy := *e
			result = append(result, &copy)
		}
	}

	sortEventsNewestFirst(result)
	return truncate(result, limit), nil
}

// GetRecent retrieves the most recent events across all authorities.
func (s *EventStore) GetRecent(_ context.Context, limit int) ([]*domain.CounterEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.CounterEvent, 0, len(s.data))
	for _, e := range s.data {
		copy := *e
		result = append(result, &copy)
	}

	sortEventsNewestFirst(result)
	return truncate(result, limit), nil
}

// GetLatestByAuthority retrieves the most recent event for an authority.
// Returns ErrNotFound when the authority has no events.
func (s *EventStore) GetLatestByAuthority(ctx context.Context, authority string) (*domain.CounterEvent, error) {
	events, err := s.GetByAuthority(ctx, authority, 1)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, storage.ErrNotFound
	}
	return events[0], nil
}

// sortEventsNewestFirst orders by (block_time, slot, signature) descending.
func sortEventsNewestFirst(events []*domain.CounterEvent) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].BlockTime != events[j].BlockTime {
			return events[i].BlockTime > events[j].BlockTime
		}
		if events[i].Slot != events[j].Slot {
			return events[i].Slot > events[j].Slot
		}
		return events[i].Signature > events[j].Signature
	})
}

func truncate(events []*domain.CounterEvent, limit int) []*domain.CounterEvent {
	if limit > 0 && len(events) > limit {
		return events[:limit]
	}
	return events
}

// Verify interface compliance at compile time.
var _ storage.EventStore = (*EventStore)(nil)
