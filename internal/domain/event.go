package domain

import "time"

// EventType identifies which counter operation produced an event.
// Values match the event names emitted by the on-chain program.
type EventType string

const (
	EventInitialized EventType = "CounterInitialized"
	EventIncremented EventType = "CounterIncremented"
	EventDecremented EventType = "CounterDecremented"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventInitialized, EventIncremented, EventDecremented:
		return true
	}
	return false
}

// CounterEvent is one persisted counter mutation, keyed by transaction
// signature. NewCount is always read from chain state after the transaction;
// OldCount is derived from it and is nil for initialization events.
type CounterEvent struct {
	Signature   string    `json:"signature"`
	BlockTime   int64     `json:"block_time"`
	Slot        int64     `json:"slot"`
	EventType   EventType `json:"event_type"`
	Authority   string    `json:"authority"`
	OldCount    *uint64   `json:"old_count,omitempty"`
	NewCount    uint64    `json:"new_count"`
	ProcessedAt time.Time `json:"processed_at"`
}

// EventStats is the aggregate view served by the stats endpoint.
type EventStats struct {
	TotalEvents       int        `json:"total_events"`
	Initialized       int        `json:"initialized"`
	Incremented       int        `json:"incremented"`
	Decremented       int        `json:"decremented"`
	UniqueAuthorities int        `json:"unique_authorities"`
	LastEventTime     *time.Time `json:"last_event_time"`
}
