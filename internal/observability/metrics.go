// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Webhook intake metrics
	WebhooksReceived   prometheus.Counter
	WebhooksRejected   *prometheus.CounterVec
	TransactionsSeen   prometheus.Counter
	TransactionsKept   prometheus.Counter
	WebhookBatchActive prometheus.Gauge

	// Classification metrics
	EventsClassified      *prometheus.CounterVec
	UnknownDiscriminators prometheus.Counter
	FailedTransactions    prometheus.Counter

	// Reconciliation metrics
	ReconciliationMisses prometheus.Counter
	ReconciliationErrors prometheus.Counter

	// Persistence metrics
	EventsStored      *prometheus.CounterVec
	DuplicatesSkipped prometheus.Counter
	ArchiveAppends    prometheus.Counter
	ArchiveErrors     prometheus.Counter

	// Latency metrics
	BatchDuration  prometheus.Histogram
	RPCCallLatency *prometheus.HistogramVec

	// Backfill metrics
	BackfillTransactions prometheus.Counter
	BackfillEvents       prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulIngestion prometheus.Gauge
	WSSubscribers           prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "counter_indexer"
	}

	return &Metrics{
		// Webhook intake metrics
		WebhooksReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "received_total",
			Help:      "Total number of webhook deliveries accepted",
		}),
		WebhooksRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "rejected_total",
			Help:      "Total number of webhook deliveries rejected by reason",
		}, []string{"reason"}),
		TransactionsSeen: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "transactions_seen_total",
			Help:      "Total number of transactions extracted from webhook payloads",
		}),
		TransactionsKept: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "transactions_kept_total",
			Help:      "Total number of transactions that passed relevance filtering",
		}),
		WebhookBatchActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "batches_active",
			Help:      "Number of webhook batches currently being processed",
		}),

		// Classification metrics
		EventsClassified: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classify",
			Name:      "events_total",
			Help:      "Total number of instructions classified by event type",
		}, []string{"event_type"}),
		UnknownDiscriminators: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classify",
			Name:      "unknown_discriminators_total",
			Help:      "Total number of counter program instructions with unrecognized discriminators",
		}),
		FailedTransactions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classify",
			Name:      "failed_transactions_total",
			Help:      "Total number of failed transactions dropped before classification",
		}),

		// Reconciliation metrics
		ReconciliationMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "misses_total",
			Help:      "Total number of reconciliations where the counter account was absent",
		}),
		ReconciliationErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "errors_total",
			Help:      "Total number of reconciliation RPC or decode failures",
		}),

		// Persistence metrics
		EventsStored: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "events_stored_total",
			Help:      "Total number of counter events stored by type",
		}, []string{"event_type"}),
		DuplicatesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "duplicates_skipped_total",
			Help:      "Total number of redelivered events skipped by signature",
		}),
		ArchiveAppends: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "appends_total",
			Help:      "Total number of events mirrored to the analytics archive",
		}),
		ArchiveErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "errors_total",
			Help:      "Total number of analytics archive write failures",
		}),

		// Latency metrics
		BatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "batch_duration_seconds",
			Help:      "Webhook batch processing duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Backfill metrics
		BackfillTransactions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "transactions_total",
			Help:      "Total number of transactions fetched during backfill",
		}),
		BackfillEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "events_total",
			Help:      "Total number of events stored during backfill",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulIngestion: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingestion_timestamp",
			Help:      "Unix timestamp of the last batch that stored at least one event",
		}),
		WSSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "subscribers",
			Help:      "Number of connected websocket event stream clients",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
