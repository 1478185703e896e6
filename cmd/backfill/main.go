// Package main replays the counter program's historical transactions
// from RPC into the event store, filling gaps left by missed webhook
// deliveries. Reruns over already-ingested ranges are harmless.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"solana-counter-indexer/internal/counter"
	"solana-counter-indexer/internal/ingestion"
	"solana-counter-indexer/internal/solana"
	"solana-counter-indexer/internal/storage"
	chstore "solana-counter-indexer/internal/storage/clickhouse"
	"solana-counter-indexer/internal/storage/migrations"
	pgstore "solana-counter-indexer/internal/storage/postgres"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional analytics archive)")
	programID := flag.String("program-id", envOr("COUNTER_PROGRAM_ID", counter.ProgramID), "Counter program ID")
	limit := flag.Int("limit", 0, "Maximum signatures to scan (0 = full history)")
	pageSize := flag.Int("page-size", 100, "Signatures fetched per RPC page")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[backfill] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}

	// Cancel the run on SIGINT/SIGTERM; the partial result still prints.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.Fatalf("Failed to run postgres migrations: %v", err)
	}
	store := pgstore.NewEventStore(pool)

	var archive storage.EventArchive
	if *clickhouseDSN != "" {
		chConn, err := migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatalf("Failed to run clickhouse migrations: %v", err)
		}
		defer chConn.Close()
		archive = chstore.NewEventArchive(chConn)
	}

	rpc := solana.NewHTTPClient(*rpcEndpoint)
	reconciler := counter.NewReconciler(rpc, *programID)
	builder := ingestion.NewEventBuilder(reconciler, *programID,
		log.New(os.Stdout, "[ingestion] ", log.LstdFlags|log.Lshortfile))

	backfiller := ingestion.NewBackfiller(ingestion.BackfillOptions{
		RPC:       rpc,
		Builder:   builder,
		Store:     store,
		Archive:   archive,
		ProgramID: *programID,
		PageSize:  *pageSize,
		Logger:    logger,
	})

	result, err := backfiller.Run(ctx, *limit)
	if err != nil {
		logger.Printf("Backfill aborted: %v", err)
	}

	logger.Printf("Signatures scanned:  %d", result.SignaturesScanned)
	logger.Printf("Transactions built:  %d", result.TransactionsBuilt)
	logger.Printf("Events stored:       %d", result.EventsStored)
	logger.Printf("Duplicates skipped:  %d", result.DuplicatesSkipped)
	logger.Printf("Errors:              %d", result.Errors)
	logger.Printf("Duration:            %v", result.Duration)

	if err != nil {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
