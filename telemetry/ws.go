package telemetry

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.dedis.ch/onet/v3/log"
)

// MetricEnvelope is the wire format broadcast to websocket subscribers.
type MetricEnvelope struct {
	Type  string  `json:"type"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Hub fans metric messages out to connected websocket clients. A slow or
// gone client is dropped rather than blocking training.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: map[*websocket.Conn]bool{},
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("websocket upgrade:", err)
		return
	}
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
}

func (h *Hub) NumClients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			_ = conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.Close()
		delete(h.clients, conn)
	}
}

// WSRecorder implements Recorder by broadcasting metric envelopes to a hub.
type WSRecorder struct {
	hub *Hub
}

func NewWSRecorder(hub *Hub) *WSRecorder {
	return &WSRecorder{hub: hub}
}

func (r *WSRecorder) Log(name string, value float64) {
	msg, err := json.Marshal(MetricEnvelope{Type: "metric", Name: name, Value: value})
	if err != nil {
		log.Error("marshaling metric:", err)
		return
	}
	r.hub.Broadcast(msg)
}
