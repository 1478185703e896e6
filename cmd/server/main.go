// Package main runs the counter indexer service: webhook intake, the
// asynchronous ingestion pipeline, and the query API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"solana-counter-indexer/internal/counter"
	"solana-counter-indexer/internal/ingestion"
	"solana-counter-indexer/internal/server"
	"solana-counter-indexer/internal/solana"
	"solana-counter-indexer/internal/storage"
	chstore "solana-counter-indexer/internal/storage/clickhouse"
	"solana-counter-indexer/internal/storage/memory"
	"solana-counter-indexer/internal/storage/migrations"
	pgstore "solana-counter-indexer/internal/storage/postgres"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional analytics archive)")
	webhookSecret := flag.String("webhook-secret", os.Getenv("WEBHOOK_SECRET"), "Shared secret for webhook authentication")
	programID := flag.String("program-id", envOr("COUNTER_PROGRAM_ID", counter.ProgramID), "Counter program ID")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	workers := flag.Int("workers", 4, "Webhook processing worker count")
	queueSize := flag.Int("queue-size", 64, "Webhook processing queue size")
	batchTimeout := flag.Duration("batch-timeout", 30*time.Second, "Per-batch processing timeout")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}
	if *webhookSecret == "" {
		logger.Println("WARNING: no --webhook-secret configured, webhook endpoint is unauthenticated")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create stores
	store, archive, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Wire the pipeline
	rpc := solana.NewHTTPClient(*rpcEndpoint)
	reconciler := counter.NewReconciler(rpc, *programID)
	builder := ingestion.NewEventBuilder(reconciler, *programID,
		log.New(os.Stdout, "[ingestion] ", log.LstdFlags|log.Lshortfile))

	hub := server.NewHub(log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lshortfile))

	processor := ingestion.NewProcessor(ingestion.ProcessorOptions{
		Builder:      builder,
		Store:        store,
		Archive:      archive,
		Publisher:    hub,
		ProgramID:    *programID,
		Workers:      *workers,
		QueueSize:    *queueSize,
		BatchTimeout: *batchTimeout,
		Logger:       log.New(os.Stdout, "[processor] ", log.LstdFlags|log.Lshortfile),
	})

	srv := server.New(server.Options{
		Store:      store,
		Archive:    archive,
		States:     reconciler,
		Processor:  processor,
		Hub:        hub,
		AuthSecret: *webhookSecret,
		Logger:     logger,
	})

	httpServer := &http.Server{
		Addr:    *listenAddr,
		Handler: srv,
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown error: %v", err)
		}

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	logger.Printf("Monitoring counter program %s", *programID)
	logger.Printf("Starting HTTP server on %s", *listenAddr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("HTTP server error: %v", err)
	}

	// Drain in-flight webhook batches before exiting
	logger.Println("Draining webhook processor...")
	processor.Stop()
	close(done)

	logger.Println("Shutdown complete")
}

// createStores creates the event store and optional analytics archive.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.EventStore, storage.EventArchive, func(), error) {
	if useMemory {
		return memory.NewEventStore(), nil, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("run postgres migrations: %w", err)
	}

	store := pgstore.NewEventStore(pool)

	// The archive is optional; without it stats fall back to the store.
	if clickhouseDSN == "" {
		return store, nil, pool.Close, nil
	}

	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return store, chstore.NewEventArchive(chConn), cleanup, nil
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
