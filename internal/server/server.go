// Package server exposes the HTTP boundary: the webhook intake
// endpoint, the event query API, and the live websocket event stream.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"solana-counter-indexer/internal/counter"
	"solana-counter-indexer/internal/domain"
	"solana-counter-indexer/internal/ingestion"
	"solana-counter-indexer/internal/observability"
	"solana-counter-indexer/internal/storage"
)

const (
	defaultEventsLimit = 100
	maxEventsLimit     = 1000
	statsWindow        = 1000

	// Webhook bodies beyond this are rejected with 413 before parsing.
	maxWebhookBody = 50 << 20
)

// Server handles HTTP requests for webhook intake and queries.
type Server struct {
	store      storage.EventStore
	archive    storage.EventArchive
	states     ingestion.StateReader
	processor  *ingestion.Processor
	hub        *Hub
	authSecret string
	logger     *log.Logger
	metrics    *observability.Metrics
	router     *mux.Router
}

// Options contains configuration for creating a Server.
type Options struct {
	Store      storage.EventStore
	Archive    storage.EventArchive // optional, enables archive-backed stats
	States     ingestion.StateReader
	Processor  *ingestion.Processor
	Hub        *Hub // optional live event stream
	AuthSecret string
	Logger     *log.Logger
}

// New creates a Server and registers its routes.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		store:      opts.Store,
		archive:    opts.Archive,
		states:     opts.States,
		processor:  opts.Processor,
		hub:        opts.Hub,
		authSecret: opts.AuthSecret,
		logger:     logger,
		metrics:    observability.DefaultMetrics,
	}

	r := mux.NewRouter()
	r.HandleFunc("/webhook/helius", s.authenticated(s.handleWebhook)).Methods(http.MethodPost)
	r.HandleFunc("/api/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/api/events/{authority}", s.handleEventsByAuthority).Methods(http.MethodGet)
	r.HandleFunc("/api/counter/{authority}", s.handleCounter).Methods(http.MethodGet)
	r.HandleFunc("/api/counter/{authority}/onchain", s.handleCounterOnChain).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)
	if s.hub != nil {
		r.HandleFunc("/ws/events", s.hub.HandleWebSocket).Methods(http.MethodGet)
	}
	s.router = r

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// authenticated checks the shared-secret header on webhook deliveries.
// The sender may ship the secret under any of the accepted header names.
func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authSecret != "" {
			provided := firstHeader(r, "Authorization", "X-Auth", "Auth")
			if provided != s.authSecret {
				s.metrics.WebhooksRejected.WithLabelValues("auth").Inc()
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next(w, r)
	}
}

func firstHeader(r *http.Request, names ...string) string {
	for _, name := range names {
		if v := r.Header.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// handleWebhook accepts a batch payload and acknowledges immediately.
// Processing runs asynchronously; the sender's retry policy must never
// wait on ledger-query latency. Oversized batches and a saturated
// pipeline get non-200 answers so the sender redelivers them later.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > maxWebhookBody {
		s.metrics.WebhooksRejected.WithLabelValues("size").Inc()
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		s.metrics.WebhooksRejected.WithLabelValues("body").Inc()
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if len(body) > maxWebhookBody {
		s.metrics.WebhooksRejected.WithLabelValues("size").Inc()
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	if !s.processor.Enqueue(body) {
		writeError(w, http.StatusServiceUnavailable, "overloaded")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// handleEvents returns the most recent events across all authorities.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.GetRecent(r.Context(), queryLimit(r))
	if err != nil {
		s.logger.Printf("Error fetching recent events: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": eventList(events),
		"count":  len(events),
	})
}

// handleEventsByAuthority returns one authority's events, newest first.
func (s *Server) handleEventsByAuthority(w http.ResponseWriter, r *http.Request) {
	authority := mux.Vars(r)["authority"]

	events, err := s.store.GetByAuthority(r.Context(), authority, queryLimit(r))
	if err != nil {
		s.logger.Printf("Error fetching events for %s: %v", authority, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"authority": authority,
		"events":    eventList(events),
		"count":     len(events),
	})
}

// handleCounter returns the counter value as the event log knows it:
// the new count of the authority's most recent stored event. An
// authority with no ingested events is a 404, even if its on-chain
// account exists.
func (s *Server) handleCounter(w http.ResponseWriter, r *http.Request) {
	authority := mux.Vars(r)["authority"]

	latest, err := s.store.GetLatestByAuthority(r.Context(), authority)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "counter not found")
			return
		}
		s.logger.Printf("Error reading latest event for %s: %v", authority, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"authority": authority,
		"count":     latest.NewCount,
	})
}

// handleCounterOnChain returns the live counter value from a fresh
// ledger read, bypassing the event log.
func (s *Server) handleCounterOnChain(w http.ResponseWriter, r *http.Request) {
	authority := mux.Vars(r)["authority"]

	state, err := s.states.CurrentState(r.Context(), authority)
	if err != nil {
		if errors.Is(err, counter.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "counter not found")
			return
		}
		s.logger.Printf("Error reading counter for %s: %v", authority, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"authority": authority,
		"count":     state.Count,
	})
}

// handleStats aggregates event totals. With an archive configured the
// numbers cover the whole history; otherwise they come from the most
// recent window of stored events.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.archive != nil {
		stats, err := s.archive.Stats(r.Context())
		if err == nil {
			writeJSON(w, http.StatusOK, stats)
			return
		}
		s.logger.Printf("Error fetching archive stats, falling back to store: %v", err)
	}

	events, err := s.store.GetRecent(r.Context(), statsWindow)
	if err != nil {
		s.logger.Printf("Error fetching events for stats: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, storage.StatsFromEvents(events))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// queryLimit parses the limit query parameter with bounds.
func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultEventsLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultEventsLimit
	}
	if limit > maxEventsLimit {
		return maxEventsLimit
	}
	return limit
}

// eventList never serializes as JSON null.
func eventList(events []*domain.CounterEvent) []*domain.CounterEvent {
	if events == nil {
		return []*domain.CounterEvent{}
	}
	return events
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
