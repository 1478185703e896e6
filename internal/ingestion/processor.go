package ingestion

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/alitto/pond/v2"

	"solana-counter-indexer/internal/counter"
	"solana-counter-indexer/internal/domain"
	"solana-counter-indexer/internal/observability"
	"solana-counter-indexer/internal/storage"
)

// EventPublisher receives stored events for live distribution.
// Implementations must not block.
type EventPublisher interface {
	Publish(event *domain.CounterEvent)
}

// Processor runs the filter → build → store pipeline for webhook
// batches on a bounded worker pool, decoupled from the HTTP
// acknowledgment. A failing batch never affects other batches.
type Processor struct {
	builder      *EventBuilder
	store        storage.EventStore
	archive      storage.EventArchive
	publisher    EventPublisher
	programID    string
	pool         pond.Pool
	batchTimeout time.Duration
	logger       *log.Logger
	metrics      *observability.Metrics
}

// ProcessorOptions contains configuration for creating a Processor.
type ProcessorOptions struct {
	Builder   *EventBuilder
	Store     storage.EventStore
	Archive   storage.EventArchive // optional analytics mirror
	Publisher EventPublisher       // optional live stream
	ProgramID string

	Workers      int
	QueueSize    int
	BatchTimeout time.Duration
	Logger       *log.Logger
}

// NewProcessor creates a Processor with a bounded worker pool.
func NewProcessor(opts ProcessorOptions) *Processor {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}

	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}

	batchTimeout := opts.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 30 * time.Second
	}

	programID := opts.ProgramID
	if programID == "" {
		programID = counter.ProgramID
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Processor{
		builder:      opts.Builder,
		store:        opts.Store,
		archive:      opts.Archive,
		publisher:    opts.Publisher,
		programID:    programID,
		pool:         pond.NewPool(workers, pond.WithQueueSize(queueSize)),
		batchTimeout: batchTimeout,
		logger:       logger,
		metrics:      observability.DefaultMetrics,
	}
}

// Enqueue schedules a raw webhook body for asynchronous processing and
// returns immediately, never blocking on the pipeline. Reports false
// when the queue is full and the batch was shed; the sender's
// redelivery recovers shed batches later.
func (p *Processor) Enqueue(body []byte) bool {
	p.metrics.WebhooksReceived.Inc()
	if _, ok := p.pool.TrySubmit(func() { p.processBatch(body) }); !ok {
		p.metrics.WebhooksRejected.WithLabelValues("queue_full").Inc()
		return false
	}
	return true
}

// Stop drains the worker pool, waiting for in-flight batches.
func (p *Processor) Stop() {
	p.pool.StopAndWait()
}

func (p *Processor) processBatch(body []byte) {
	start := time.Now()
	p.metrics.WebhookBatchActive.Inc()
	defer func() {
		p.metrics.WebhookBatchActive.Dec()
		p.metrics.BatchDuration.Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), p.batchTimeout)
	defer cancel()

	txs, err := ParsePayload(body)
	if err != nil {
		p.logger.Printf("Dropping undecodable webhook batch: %v", err)
		return
	}
	p.metrics.TransactionsSeen.Add(float64(len(txs)))

	kept := FilterTransactions(txs, p.programID)
	p.metrics.TransactionsKept.Add(float64(len(kept)))
	droppedFailed := 0
	for _, tx := range txs {
		if tx.TransactionError != nil {
			droppedFailed++
		}
	}
	p.metrics.FailedTransactions.Add(float64(droppedFailed))

	if len(kept) == 0 {
		return
	}

	stored := 0
	for _, tx := range kept {
		for _, event := range p.builder.BuildEvents(ctx, tx) {
			if p.storeEvent(ctx, event) {
				stored++
			}
		}
	}

	if stored > 0 {
		p.metrics.LastSuccessfulIngestion.SetToCurrentTime()
	}
	p.logger.Printf("Batch done: %d transactions, %d kept, %d events stored in %v",
		len(txs), len(kept), stored, time.Since(start))
}

// storeEvent persists one event, mirrors it to the archive, and
// publishes it. Reports whether the event was newly stored.
func (p *Processor) storeEvent(ctx context.Context, event *domain.CounterEvent) bool {
	if err := p.store.Insert(ctx, event); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Expected under at-least-once delivery.
			p.metrics.DuplicatesSkipped.Inc()
			return false
		}
		p.logger.Printf("Error storing event %s: %v", event.Signature, err)
		return false
	}

	p.metrics.EventsStored.WithLabelValues(string(event.EventType)).Inc()

	if p.archive != nil {
		if err := p.archive.Append(ctx, event); err != nil {
			// The archive is derived data; a failed mirror never
			// blocks the event from being acknowledged as stored.
			p.logger.Printf("Error archiving event %s: %v", event.Signature, err)
			p.metrics.ArchiveErrors.Inc()
		} else {
			p.metrics.ArchiveAppends.Inc()
		}
	}

	if p.publisher != nil {
		p.publisher.Publish(event)
	}

	return true
}
