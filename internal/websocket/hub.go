package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Priya8975/hookline/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 256
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// Event types pushed to dashboard clients.
const (
	TypeDelivered = "delivery.delivered"
	TypeFailed    = "delivery.failed"
	TypeRetrying  = "delivery.retrying"
	TypeSkipped   = "delivery.skipped"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// DeliveryEvent is a live delivery update sent to dashboard clients.
type DeliveryEvent struct {
	Type           string     `json:"type"`
	AttemptID      string     `json:"attempt_id"`
	EventID        string     `json:"event_id"`
	SubscriptionID string     `json:"subscription_id"`
	URL            string     `json:"url"`
	EventType      string     `json:"event_type"`
	RetryCount     int        `json:"retry_count"`
	ResponseCode   *int       `json:"response_code,omitempty"`
	ResponseTimeMs *int64     `json:"response_time_ms,omitempty"`
	Error          string     `json:"error,omitempty"`
	NextRetryAt    *time.Time `json:"next_retry_at,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
}

// EventFromAttempt builds the dashboard update for a finished attempt.
func EventFromAttempt(sub *domain.Subscription, a *domain.DeliveryAttempt) DeliveryEvent {
	ev := DeliveryEvent{
		AttemptID:      a.ID,
		EventID:        a.EventID,
		SubscriptionID: a.SubscriptionID,
		EventType:      string(a.EventType),
		RetryCount:     a.RetryCount,
		ResponseCode:   a.ResponseCode,
		ResponseTimeMs: a.ResponseTimeMs,
		NextRetryAt:    a.NextRetryAt,
		Timestamp:      time.Now().UTC(),
	}
	if sub != nil {
		ev.URL = sub.URL
	}
	if a.ErrorMessage != nil {
		ev.Error = *a.ErrorMessage
	}
	if a.DeliveredAt != nil {
		ev.Timestamp = *a.DeliveredAt
	}

	switch {
	case a.Status == domain.DeliveryDelivered:
		ev.Type = TypeDelivered
	case a.Status == domain.DeliverySkipped:
		ev.Type = TypeSkipped
	case a.NextRetryAt != nil:
		ev.Type = TypeRetrying
	default:
		ev.Type = TypeFailed
	}
	return ev
}

// Hub manages WebSocket connections and broadcasts events to all connected clients.
type Hub struct {
	clients    map[*client]struct{}
	mu         sync.RWMutex
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	logger     *slog.Logger
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan []byte, sendBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves the hub until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client connected", "total_clients", total)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected", "total_clients", total)

		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

// fanOut drops clients whose buffer is full.
func (h *Hub) fanOut(message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- message:
		default:
			delete(h.clients, c)
			close(c.send)
			h.logger.Warn("dropping slow websocket client")
		}
	}
}

// Broadcast sends a delivery event to all connected clients. It never blocks.
func (h *Hub) Broadcast(event DeliveryEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal websocket event", "error", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("websocket broadcast channel full, dropping event", "event_id", event.EventID)
	}
}

// ObserveDelivery broadcasts a finished delivery attempt.
func (h *Hub) ObserveDelivery(sub *domain.Subscription, a *domain.DeliveryAttempt) {
	h.Broadcast(EventFromAttempt(sub, a))
}

// HandleWebSocket upgrades the request and registers the client.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump only handles pongs and disconnects; clients never send data.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ClientCount returns the number of connected WebSocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
