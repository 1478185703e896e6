package storage

import (
	"context"

	"solana-counter-indexer/internal/domain"
)

// EventStore provides access to the append-only counter_events log.
// Signature is the primary dedup key: at most one event per signature.
type EventStore interface {
	// Insert adds a new event. Returns ErrDuplicateKey if the signature
	// already exists.
	Insert(ctx context.Context, e *domain.CounterEvent) error

	// GetByAuthority retrieves events for an authority ordered by
	// block_time DESC, bounded by limit.
	GetByAuthority(ctx context.Context, authority string, limit int) ([]*domain.CounterEvent, error)

	// GetRecent retrieves the most recent events across all authorities,
	// ordered by block_time DESC, bounded by limit.
	GetRecent(ctx context.Context, limit int) ([]*domain.CounterEvent, error)

	// GetLatestByAuthority retrieves the single most recent event for an
	// authority. Returns ErrNotFound if the authority has no events.
	GetLatestByAuthority(ctx context.Context, authority string) (*domain.CounterEvent, error)
}

// EventArchive is an optional analytics mirror of the event log. Appends
// are best-effort and derived from the primary store, never the reverse.
type EventArchive interface {
	// Append mirrors an already-stored event into the archive.
	Append(ctx context.Context, e *domain.CounterEvent) error

	// Stats computes aggregate statistics over the full archive.
	Stats(ctx context.Context) (*domain.EventStats, error)
}

// StatsFromEvents computes aggregate statistics over a window of events,
// most recent first. Used when no archive backend is configured.
func StatsFromEvents(events []*domain.CounterEvent) *domain.EventStats {
	stats := &domain.EventStats{TotalEvents: len(events)}

	authorities := make(map[string]struct{})
	for _, e := range events {
		switch e.EventType {
		case domain.EventInitialized:
			stats.Initialized++
		case domain.EventIncremented:
			stats.Incremented++
		case domain.EventDecremented:
			stats.Decremented++
		}
		authorities[e.Authority] = struct{}{}
	}
	stats.UniqueAuthorities = len(authorities)

	if len(events) > 0 {
		last := events[0].ProcessedAt
		for _, e := range events[1:] {
			if e.ProcessedAt.After(last) {
				last = e.ProcessedAt
			}
		}
		stats.LastEventTime = &last
	}

	return stats
}
