package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-counter-indexer/internal/counter"
	"solana-counter-indexer/internal/domain"
	"solana-counter-indexer/internal/ingestion"
	"solana-counter-indexer/internal/storage/memory"
)

const (
	testSecret  = "test-secret"
	testProgram = "Counter1111111111111111111111111111111111111"
)

type fakeStates struct {
	counts map[string]uint64
}

func (f *fakeStates) CurrentState(_ context.Context, authority string) (*domain.CounterAccount, error) {
	count, ok := f.counts[authority]
	if !ok {
		return nil, counter.ErrAccountNotFound
	}
	return &domain.CounterAccount{Count: count, Authority: authority}, nil
}

type testEnv struct {
	server *Server
	store  *memory.EventStore
	proc   *ingestion.Processor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := log.New(io.Discard, "", 0)
	store := memory.NewEventStore()
	states := &fakeStates{counts: map[string]uint64{"authX": 4}}
	builder := ingestion.NewEventBuilder(states, testProgram, logger)

	proc := ingestion.NewProcessor(ingestion.ProcessorOptions{
		Builder:   builder,
		Store:     store,
		ProgramID: testProgram,
		Workers:   2,
		QueueSize: 8,
		Logger:    logger,
	})
	t.Cleanup(proc.Stop)

	srv := New(Options{
		Store:      store,
		States:     states,
		Processor:  proc,
		AuthSecret: testSecret,
		Logger:     logger,
	})

	return &testEnv{server: srv, store: store, proc: proc}
}

func incrementBody(t *testing.T, signature, authority string) []byte {
	t.Helper()
	disc, err := hex.DecodeString("dab42b70d1cbdd58")
	require.NoError(t, err)
	data := base64.StdEncoding.EncodeToString(disc)

	return []byte(fmt.Sprintf(`{
		"0": {
			"signature": %q,
			"slot": 100,
			"timestamp": 1704067200,
			"instructions": [
				{"accounts": ["pda", %q], "data": %q, "programId": %q}
			]
		}
	}`, signature, authority, data, testProgram))
}

func seedEvent(t *testing.T, env *testEnv, signature, authority string, blockTime int64, eventType domain.EventType, newCount uint64) {
	t.Helper()
	require.NoError(t, env.store.Insert(context.Background(), &domain.CounterEvent{
		Signature:   signature,
		BlockTime:   blockTime,
		Slot:        blockTime - 1704067100,
		EventType:   eventType,
		Authority:   authority,
		NewCount:    newCount,
		ProcessedAt: time.Now().UTC(),
	}))
}

func TestWebhook_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook/helius", bytes.NewReader(incrementBody(t, "sig1", "authX")))
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhook_AcceptedHeaderVariants(t *testing.T) {
	for _, header := range []string{"Authorization", "X-Auth", "Auth"} {
		t.Run(header, func(t *testing.T) {
			env := newTestEnv(t)

			req := httptest.NewRequest(http.MethodPost, "/webhook/helius", bytes.NewReader(incrementBody(t, "sig-"+header, "authX")))
			req.Header.Set(header, testSecret)
			rec := httptest.NewRecorder()
			env.server.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)

			var resp map[string]bool
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.True(t, resp["received"])
		})
	}
}

func TestWebhook_WrongSecretRejected(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook/helius", bytes.NewReader(incrementBody(t, "sig1", "authX")))
	req.Header.Set("Authorization", "wrong")
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhook_ProcessesAsync(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook/helius", bytes.NewReader(incrementBody(t, "asyncSig", "authX")))
	req.Header.Set("Authorization", testSecret)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	// The acknowledgment precedes processing; wait for the pipeline.
	require.Eventually(t, func() bool {
		events, err := env.store.GetRecent(context.Background(), 10)
		return err == nil && len(events) == 1
	}, 5*time.Second, 10*time.Millisecond)

	events, err := env.store.GetRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "asyncSig", events[0].Signature)
	assert.Equal(t, uint64(4), events[0].NewCount)
}

func TestWebhook_MalformedBodyStillAcknowledged(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook/helius", bytes.NewReader([]byte("not json")))
	req.Header.Set("Authorization", testSecret)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEvents_Recent(t *testing.T) {
	env := newTestEnv(t)
	seedEvent(t, env, "sig1", "authA", 1704067201, domain.EventInitialized, 0)
	seedEvent(t, env, "sig2", "authA", 1704067202, domain.EventIncremented, 1)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Events []domain.CounterEvent `json:"events"`
		Count  int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Events, 2)
	assert.Equal(t, "sig2", resp.Events[0].Signature)
}

func TestEvents_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"events":[]`)
}

func TestEvents_ByAuthority(t *testing.T) {
	env := newTestEnv(t)
	seedEvent(t, env, "sig1", "authA", 1704067201, domain.EventIncremented, 1)
	seedEvent(t, env, "sig2", "authB", 1704067202, domain.EventIncremented, 5)

	req := httptest.NewRequest(http.MethodGet, "/api/events/authA", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Authority string                `json:"authority"`
		Events    []domain.CounterEvent `json:"events"`
		Count     int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "authA", resp.Authority)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "sig1", resp.Events[0].Signature)
}

func TestEvents_LimitParam(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		seedEvent(t, env, fmt.Sprintf("sig%d", i), "authA", int64(1704067200+i), domain.EventIncremented, uint64(i+1))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/events?limit=2", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestCounter_LatestFromEventLog(t *testing.T) {
	env := newTestEnv(t)
	seedEvent(t, env, "sig1", "authX", 1704067201, domain.EventIncremented, 3)
	seedEvent(t, env, "sig2", "authX", 1704067202, domain.EventIncremented, 4)

	req := httptest.NewRequest(http.MethodGet, "/api/counter/authX", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Authority string `json:"authority"`
		Count     uint64 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "authX", resp.Authority)
	assert.Equal(t, uint64(4), resp.Count)
}

func TestCounter_NoEventsNotFound(t *testing.T) {
	env := newTestEnv(t)

	// The state reader knows authX, but the event log is empty; the
	// counter view is derived from stored events only.
	req := httptest.NewRequest(http.MethodGet, "/api/counter/authX", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCounter_NotFound(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/counter/unknownAuth", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCounterOnChain_Found(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/counter/authX/onchain", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Authority string `json:"authority"`
		Count     uint64 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "authX", resp.Authority)
	assert.Equal(t, uint64(4), resp.Count)
}

func TestCounterOnChain_NotFound(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/counter/unknownAuth/onchain", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	seedEvent(t, env, "sig1", "authA", 1704067201, domain.EventInitialized, 0)
	seedEvent(t, env, "sig2", "authA", 1704067202, domain.EventIncremented, 1)
	seedEvent(t, env, "sig3", "authB", 1704067203, domain.EventDecremented, 2)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var stats domain.EventStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.TotalEvents)
	assert.Equal(t, 1, stats.Initialized)
	assert.Equal(t, 1, stats.Incremented)
	assert.Equal(t, 1, stats.Decremented)
	assert.Equal(t, 2, stats.UniqueAuthorities)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestWebhook_OversizedBodyRejected(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook/helius", bytes.NewReader(incrementBody(t, "sig1", "authX")))
	req.Header.Set("Authorization", testSecret)
	req.ContentLength = maxWebhookBody + 1
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestWebhook_GetMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/webhook/helius", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
