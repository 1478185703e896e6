package ingestion

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mr-tron/base58"

	"solana-counter-indexer/internal/counter"
	"solana-counter-indexer/internal/observability"
	"solana-counter-indexer/internal/solana"
	"solana-counter-indexer/internal/storage"
)

// Backfiller replays the counter program's transaction history from RPC
// through the same build and store path the webhook pipeline uses.
// Signature dedup makes replaying already-ingested ranges harmless.
type Backfiller struct {
	rpc       solana.RPCClient
	builder   *EventBuilder
	store     storage.EventStore
	archive   storage.EventArchive
	programID string
	pageSize  int
	logger    *log.Logger
	metrics   *observability.Metrics
}

// BackfillOptions contains configuration for creating a Backfiller.
type BackfillOptions struct {
	RPC       solana.RPCClient
	Builder   *EventBuilder
	Store     storage.EventStore
	Archive   storage.EventArchive // optional
	ProgramID string
	PageSize  int
	Logger    *log.Logger
}

// NewBackfiller creates a new historical backfiller.
func NewBackfiller(opts BackfillOptions) *Backfiller {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	programID := opts.ProgramID
	if programID == "" {
		programID = counter.ProgramID
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Backfiller{
		rpc:       opts.RPC,
		builder:   opts.Builder,
		store:     opts.Store,
		archive:   opts.Archive,
		programID: programID,
		pageSize:  pageSize,
		logger:    logger,
		metrics:   observability.DefaultMetrics,
	}
}

// BackfillResult contains statistics from a backfill run.
type BackfillResult struct {
	SignaturesScanned int
	TransactionsBuilt int
	EventsStored      int
	DuplicatesSkipped int
	Errors            int
	Duration          time.Duration
}

// Run walks the program's signature history newest-first, up to limit
// signatures (0 means everything RPC will serve), and ingests each
// successful transaction. Per-transaction failures are counted and
// skipped; only signature listing failures abort the run.
func (b *Backfiller) Run(ctx context.Context, limit int) (*BackfillResult, error) {
	start := time.Now()
	result := &BackfillResult{}

	b.logger.Printf("Starting backfill for program %s", b.programID)

	before := ""
	for {
		pageLimit := b.pageSize
		if limit > 0 && limit-result.SignaturesScanned < pageLimit {
			pageLimit = limit - result.SignaturesScanned
		}
		if pageLimit <= 0 {
			break
		}

		sigs, err := b.rpc.GetSignaturesForAddress(ctx, b.programID, &solana.SignaturesOpts{
			Before: before,
			Limit:  pageLimit,
		})
		if err != nil {
			return result, fmt.Errorf("list signatures before %q: %w", before, err)
		}
		if len(sigs) == 0 {
			break
		}

		result.SignaturesScanned += len(sigs)
		b.metrics.BackfillTransactions.Add(float64(len(sigs)))

		for _, sig := range sigs {
			if sig.Err != nil {
				continue
			}
			b.ingestSignature(ctx, sig.Signature, result)
		}

		before = sigs[len(sigs)-1].Signature
	}

	result.Duration = time.Since(start)
	b.logger.Printf("Backfill complete: %d signatures, %d events stored, %d dupes, %d errors in %v",
		result.SignaturesScanned, result.EventsStored, result.DuplicatesSkipped,
		result.Errors, result.Duration)

	return result, nil
}

func (b *Backfiller) ingestSignature(ctx context.Context, signature string, result *BackfillResult) {
	rpcTx, err := b.rpc.GetTransaction(ctx, signature)
	if err != nil {
		b.logger.Printf("Error fetching tx %s: %v", signature, err)
		result.Errors++
		return
	}
	if rpcTx == nil {
		b.logger.Printf("Tx %s not found on RPC, skipping", signature)
		return
	}
	if rpcTx.Meta != nil && rpcTx.Meta.Err != nil {
		return
	}

	tx, err := normalizeTransaction(rpcTx)
	if err != nil {
		b.logger.Printf("Error normalizing tx %s: %v", signature, err)
		result.Errors++
		return
	}

	kept := FilterTransactions([]Transaction{tx}, b.programID)
	if len(kept) == 0 {
		return
	}
	result.TransactionsBuilt++

	for _, event := range b.builder.BuildEvents(ctx, kept[0]) {
		if err := b.store.Insert(ctx, event); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				result.DuplicatesSkipped++
				continue
			}
			b.logger.Printf("Error storing event %s: %v", event.Signature, err)
			result.Errors++
			continue
		}
		result.EventsStored++
		b.metrics.BackfillEvents.Inc()

		if b.archive != nil {
			if err := b.archive.Append(ctx, event); err != nil {
				b.logger.Printf("Error archiving event %s: %v", event.Signature, err)
			}
		}
	}
}

// normalizeTransaction converts an RPC transaction into the webhook
// record shape: account indices resolved to pubkeys and instruction
// payloads re-encoded from base58 to base64.
func normalizeTransaction(tx *solana.Transaction) (Transaction, error) {
	if tx.Message == nil {
		return Transaction{}, fmt.Errorf("tx %s has no message", tx.Signature)
	}

	keys := tx.Message.AccountKeys
	instructions := make([]Instruction, 0, len(tx.Message.Instructions))
	for i, ins := range tx.Message.Instructions {
		if ins.ProgramIDIndex < 0 || ins.ProgramIDIndex >= len(keys) {
			return Transaction{}, fmt.Errorf("instruction %d: program index %d out of range", i, ins.ProgramIDIndex)
		}

		accounts := make([]string, 0, len(ins.Accounts))
		for _, idx := range ins.Accounts {
			if idx < 0 || idx >= len(keys) {
				return Transaction{}, fmt.Errorf("instruction %d: account index %d out of range", i, idx)
			}
			accounts = append(accounts, keys[idx])
		}

		data, err := base58.Decode(ins.Data)
		if err != nil {
			return Transaction{}, fmt.Errorf("instruction %d: decode data: %w", i, err)
		}

		instructions = append(instructions, Instruction{
			Accounts:  accounts,
			Data:      base64.StdEncoding.EncodeToString(data),
			ProgramID: keys[ins.ProgramIDIndex],
		})
	}

	var txErr interface{}
	if tx.Meta != nil {
		txErr = tx.Meta.Err
	}

	return Transaction{
		Signature:        tx.Signature,
		Slot:             tx.Slot,
		Timestamp:        tx.BlockTime,
		Instructions:     instructions,
		TransactionError: txErr,
	}, nil
}
