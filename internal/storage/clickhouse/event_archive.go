package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-counter-indexer/internal/domain"
	"solana-counter-indexer/internal/storage"
)

// EventArchive implements storage.EventArchive using ClickHouse. The
// archive is a derived analytics mirror: redelivered rows collapse on
// merge via ReplacingMergeTree, so Append never reports duplicates.
type EventArchive struct {
	conn *Conn
}

// NewEventArchive creates a new EventArchive.
func NewEventArchive(conn *Conn) *EventArchive {
	return &EventArchive{conn: conn}
}

// Compile-time interface check.
var _ storage.EventArchive = (*EventArchive)(nil)

// Append mirrors one stored event into the archive.
func (s *EventArchive) Append(ctx context.Context, e *domain.CounterEvent) error {
	if e == nil || e.Signature == "" {
		return storage.ErrInvalidInput
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO counter_events (
			signature, block_time, slot, event_type, authority, old_count, new_count, processed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		e.Signature, e.BlockTime, e.Slot,
		string(e.EventType), e.Authority,
		e.OldCount, e.NewCount, e.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// Stats aggregates event totals across the whole archive.
func (s *EventArchive) Stats(ctx context.Context) (*domain.EventStats, error) {
	query := `
		SELECT
			count() AS total,
			countIf(event_type = ?) AS initialized,
			countIf(event_type = ?) AS incremented,
			countIf(event_type = ?) AS decremented,
			uniqExact(authority) AS authorities,
			max(processed_at) AS last_processed
		FROM counter_events FINAL
	`

	var (
		total, initialized, incremented, decremented uint64
		authorities                                  uint64
		lastProcessed                                time.Time
	)

	row := s.conn.QueryRow(ctx, query,
		string(domain.EventInitialized),
		string(domain.EventIncremented),
		string(domain.EventDecremented),
	)
	if err := row.Scan(&total, &initialized, &incremented, &decremented, &authorities, &lastProcessed); err != nil {
		return nil, fmt.Errorf("scan archive stats: %w", err)
	}

	stats := &domain.EventStats{
		TotalEvents:       int(total),
		Initialized:       int(initialized),
		Incremented:       int(incremented),
		Decremented:       int(decremented),
		UniqueAuthorities: int(authorities),
	}
	if total > 0 {
		t := lastProcessed
		stats.LastEventTime = &t
	}

	return stats, nil
}
