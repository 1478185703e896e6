package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-counter-indexer/internal/domain"
	"solana-counter-indexer/internal/observability"
	"solana-counter-indexer/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

const eventColumns = "signature, block_time, slot, event_type, authority, old_count, new_count, processed_at"

// Insert adds a new counter event. Returns ErrDuplicateKey if the
// signature exists.
func (s *EventStore) Insert(ctx context.Context, e *domain.CounterEvent) error {
	if e == nil || e.Signature == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO counter_events (
			signature, block_time, slot, event_type, authority, old_count, new_count, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var oldCount *int64
	if e.OldCount != nil {
		v := int64(*e.OldCount)
		oldCount = &v
	}

	start := time.Now()
	_, err := s.pool.Exec(ctx, query,
		e.Signature,
		e.BlockTime,
		e.Slot,
		string(e.EventType),
		e.Authority,
		oldCount,
		int64(e.NewCount),
		e.ProcessedAt,
	)
	observability.RecordDBQuery("postgres", "insert", time.Since(start).Seconds(), err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert counter event: %w", err)
	}
	return nil
}

// GetByAuthority retrieves events for one authority, newest first.
func (s *EventStore) GetByAuthority(ctx context.Context, authority string, limit int) ([]*domain.CounterEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM counter_events
		WHERE authority = $1
		ORDER BY block_time DESC, slot DESC, signature DESC
		LIMIT $2
	`, eventColumns)

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, authority, normalizeLimit(limit))
	observability.RecordDBQuery("postgres", "get_by_authority", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("get events by authority: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetRecent retrieves the most recent events across all authorities.
func (s *EventStore) GetRecent(ctx context.Context, limit int) ([]*domain.CounterEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM counter_events
		ORDER BY block_time DESC, slot DESC, signature DESC
		LIMIT $1
	`, eventColumns)

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, normalizeLimit(limit))
	observability.RecordDBQuery("postgres", "get_recent", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("get recent events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetLatestByAuthority retrieves the most recent event for an authority.
// Returns ErrNotFound when the authority has no events.
func (s *EventStore) GetLatestByAuthority(ctx context.Context, authority string) (*domain.CounterEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM counter_events
		WHERE authority = $1
		ORDER BY block_time DESC, slot DESC, signature DESC
		LIMIT 1
	`, eventColumns)

	row := s.pool.QueryRow(ctx, query, authority)

	event, err := scanEvent(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest event by authority: %w", err)
	}
	return event, nil
}

// normalizeLimit caps unbounded queries at a sane default.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 1000
	}
	return limit
}

func scanEvent(row pgx.Row) (*domain.CounterEvent, error) {
	var (
		e         domain.CounterEvent
		eventType string
		oldCount  *int64
		newCount  int64
	)

	err := row.Scan(
		&e.Signature,
		&e.BlockTime,
		&e.Slot,
		&eventType,
		&e.Authority,
		&oldCount,
		&newCount,
		&e.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}

	e.EventType = domain.EventType(eventType)
	if oldCount != nil {
		v := uint64(*oldCount)
		e.OldCount = &v
	}
	e.NewCount = uint64(newCount)

	return &e, nil
}

// scanEvents scans multiple rows into a slice of CounterEvent.
func scanEvents(rows pgx.Rows) ([]*domain.CounterEvent, error) {
	var events []*domain.CounterEvent

	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan counter event row: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counter event rows: %w", err)
	}

	return events, nil
}
