package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aequitas/internal/common"
	"github.com/ternarybob/aequitas/internal/interfaces"
)

const (
	writeTimeout    = 10 * time.Second
	eventBufferSize = 256
)

// Hub fans job lifecycle events out to websocket subscribers. Publish never
// blocks: events beyond the buffer are dropped, clients can always re-poll
// the job endpoint for authoritative state.
type Hub struct {
	logger  arbor.ILogger
	clients map[*websocket.Conn]*sync.Mutex
	mu      sync.RWMutex
	events  chan interfaces.JobEvent
	done    chan struct{}
	closed  sync.Once

	// InstanceID lets clients detect a server restart and resubscribe
	InstanceID string
}

func NewHub(logger arbor.ILogger) *Hub {
	h := &Hub{
		logger:     logger,
		clients:    make(map[*websocket.Conn]*sync.Mutex),
		events:     make(chan interfaces.JobEvent, eventBufferSize),
		done:       make(chan struct{}),
		InstanceID: uuid.New().String(),
	}

	common.SafeGo(logger, "events-hub-broadcast", func() {
		h.run()
	})

	return h
}

// Publish enqueues an event for broadcast. Drops the event when the buffer
// is full rather than stalling the pipeline.
func (h *Hub) Publish(event interfaces.JobEvent) {
	select {
	case h.events <- event:
	case <-h.done:
	default:
		h.logger.Warn().
			Str("job_id", event.JobID).
			Str("type", string(event.Type)).
			Msg("Event buffer full, dropping job event")
	}
}

// Register adds a websocket client and watches it for disconnect
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = &sync.Mutex{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Int("clients", count).Msg("WebSocket client connected")

	// Reader goroutine detects close; inbound messages are ignored
	common.SafeGo(h.logger, "events-hub-reader", func() {
		defer h.unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops the broadcast loop and disconnects all clients
func (h *Hub) Close() error {
	h.closed.Do(func() {
		close(h.done)

		h.mu.Lock()
		for conn := range h.clients {
			conn.Close()
		}
		h.clients = make(map[*websocket.Conn]*sync.Mutex)
		h.mu.Unlock()
	})
	return nil
}

func (h *Hub) run() {
	for {
		select {
		case event := <-h.events:
			h.broadcast(event)
		case <-h.done:
			return
		}
	}
}

func (h *Hub) broadcast(event interfaces.JobEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to marshal job event")
		return
	}

	h.mu.RLock()
	conns := make(map[*websocket.Conn]*sync.Mutex, len(h.clients))
	for conn, mu := range h.clients {
		conns[conn] = mu
	}
	h.mu.RUnlock()

	for conn, writeMu := range conns {
		writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := conn.WriteMessage(websocket.TextMessage, payload)
		writeMu.Unlock()

		if err != nil {
			h.logger.Debug().Err(err).Msg("WebSocket write failed, dropping client")
			h.unregister(conn)
		}
	}
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Int("clients", count).Msg("WebSocket client disconnected")
}
