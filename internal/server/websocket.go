package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"solana-counter-indexer/internal/domain"
	"solana-counter-indexer/internal/ingestion"
	"solana-counter-indexer/internal/observability"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	// Per-client outgoing buffer. Slow consumers that fall this far
	// behind are disconnected rather than allowed to block publishers.
	clientSendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to configured origins before exposing publicly
		return true
	},
}

// StreamMessage is the envelope sent to websocket subscribers.
type StreamMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Hub fans stored counter events out to websocket subscribers.
type Hub struct {
	logger  *log.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	clients map[*wsClient]bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty Hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		logger:  logger,
		metrics: observability.DefaultMetrics,
		clients: make(map[*wsClient]bool),
	}
}

// Compile-time check: the hub is the processor's live event sink.
var _ ingestion.EventPublisher = (*Hub)(nil)

// Publish sends a stored event to every connected subscriber without
// blocking; clients with a full buffer are dropped.
func (h *Hub) Publish(event *domain.CounterEvent) {
	payload, err := json.Marshal(StreamMessage{Type: "counter.event", Payload: event})
	if err != nil {
		h.logger.Printf("Error marshaling event %s for stream: %v", event.Signature, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			h.dropLocked(client)
		}
	}
}

// HandleWebSocket upgrades the connection and streams events until the
// client disconnects.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("Error upgrading websocket connection: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.metrics.WSSubscribers.Set(float64(count))

	h.logger.Printf("Websocket client connected from %s (%d total)", r.RemoteAddr, count)

	go h.writePump(client)
	h.readPump(client)

	h.mu.Lock()
	h.dropLocked(client)
	count = len(h.clients)
	h.mu.Unlock()
	h.metrics.WSSubscribers.Set(float64(count))

	h.logger.Printf("Websocket client disconnected from %s (%d total)", r.RemoteAddr, count)
}

// dropLocked removes a client from the registry. Callers hold h.mu.
// Closing the send channel stops the client's writePump.
func (h *Hub) dropLocked(client *wsClient) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
}

// writePump drains the client's send channel and keeps the connection
// alive with periodic pings.
func (h *Hub) writePump(client *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-client.send:
			if !ok {
				_ = client.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := client.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readPump consumes client frames for pong handling and close
// detection. The stream is one-way; inbound data frames are discarded.
func (h *Hub) readPump(client *wsClient) {
	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Printf("Websocket read error: %v", err)
			}
			return
		}
	}
}
