package ingestion

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"time"

	"solana-counter-indexer/internal/counter"
	"solana-counter-indexer/internal/domain"
	"solana-counter-indexer/internal/observability"
)

// StateReader reads the authoritative counter value for an authority.
type StateReader interface {
	CurrentState(ctx context.Context, authority string) (*domain.CounterAccount, error)
}

// EventBuilder turns filtered transactions into counter events. The new
// count always comes from a live chain read, never from replaying
// deltas; the old count is derived arithmetically from the event kind.
type EventBuilder struct {
	states    StateReader
	programID string
	logger    *log.Logger
	metrics   *observability.Metrics
}

// NewEventBuilder creates an EventBuilder for the given program.
func NewEventBuilder(states StateReader, programID string, logger *log.Logger) *EventBuilder {
	if programID == "" {
		programID = counter.ProgramID
	}
	if logger == nil {
		logger = log.Default()
	}
	return &EventBuilder{
		states:    states,
		programID: programID,
		logger:    logger,
		metrics:   observability.DefaultMetrics,
	}
}

// BuildEvents produces zero or more counter events from one filtered
// transaction. Per-instruction failures (unknown discriminator, missing
// account, RPC trouble) are logged and skipped; they never abort the
// rest of the transaction.
func (b *EventBuilder) BuildEvents(ctx context.Context, tx Transaction) []*domain.CounterEvent {
	var events []*domain.CounterEvent

	for _, ins := range tx.Instructions {
		if ins.ProgramID != b.programID {
			continue
		}

		event := b.buildEvent(ctx, tx, ins)
		if event != nil {
			events = append(events, event)
		}
	}

	return events
}

func (b *EventBuilder) buildEvent(ctx context.Context, tx Transaction, ins Instruction) *domain.CounterEvent {
	data, err := base64.StdEncoding.DecodeString(ins.Data)
	if err != nil {
		b.logger.Printf("tx %s: undecodable instruction data: %v", tx.Signature, err)
		return nil
	}

	eventType, ok := counter.Classify(data)
	if !ok {
		b.logger.Printf("tx %s: unknown instruction discriminator, skipping", tx.Signature)
		b.metrics.UnknownDiscriminators.Inc()
		return nil
	}

	// The authority is the instruction's designated signer, by the
	// program's account ordering the second account.
	if len(ins.Accounts) < 2 {
		b.logger.Printf("tx %s: %s instruction has %d accounts, need 2", tx.Signature, eventType, len(ins.Accounts))
		return nil
	}
	authority := ins.Accounts[1]

	state, err := b.states.CurrentState(ctx, authority)
	if err != nil {
		if errors.Is(err, counter.ErrAccountNotFound) {
			b.logger.Printf("tx %s: counter account for %s not found, skipping", tx.Signature, authority)
			b.metrics.ReconciliationMisses.Inc()
		} else {
			b.logger.Printf("tx %s: reconcile %s: %v", tx.Signature, authority, err)
			b.metrics.ReconciliationErrors.Inc()
		}
		return nil
	}

	b.metrics.EventsClassified.WithLabelValues(string(eventType)).Inc()

	return &domain.CounterEvent{
		Signature:   tx.Signature,
		BlockTime:   tx.Timestamp,
		Slot:        tx.Slot,
		EventType:   eventType,
		Authority:   authority,
		OldCount:    oldCountFor(eventType, state.Count),
		NewCount:    state.Count,
		ProcessedAt: time.Now().UTC(),
	}
}

// oldCountFor derives the pre-instruction count from the event kind and
// the authoritative new count. Initialization has no prior value.
func oldCountFor(eventType domain.EventType, newCount uint64) *uint64 {
	switch eventType {
	case domain.EventIncremented:
		if newCount == 0 {
			return nil
		}
		old := newCount - 1
		return &old
	case domain.EventDecremented:
		old := newCount + 1
		return &old
	default:
		return nil
	}
}
