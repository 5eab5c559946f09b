// Package realtime streams attempt log changes to admin dashboards over
// WebSocket so they refresh without polling.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/breezeauth/riskgate/internal/logger"
	"github.com/breezeauth/riskgate/internal/metrics"
)

var normalCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

// Dashboards are served from anywhere, like the JSON endpoints. Access is
// gated by a bearer token checked before the upgrade, never by cookies.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// EventType names a dashboard refresh signal
type EventType string

const (
	EventOTPAttempts EventType = "otp_attempts_update"
	EventRiskData    EventType = "risk_data_update"
	EventAnalytics   EventType = "analytics_update"
)

// Event is one message pushed to dashboard clients
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// Subscription filters what a client receives. The zero value receives everything.
type Subscription struct {
	EventTypes []EventType `json:"eventTypes"`
	SessionID  string      `json:"sessionId"`
}

func (s Subscription) matches(e *Event) bool {
	if len(s.EventTypes) > 0 && !slices.Contains(s.EventTypes, e.Type) {
		return false
	}
	if s.SessionID != "" && s.SessionID != e.SessionID {
		return false
	}
	return true
}

// Publisher emits dashboard events
type Publisher interface {
	Publish(ctx context.Context, e *Event) error
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	mu   sync.RWMutex
	sub  Subscription
}

// MaxClients bounds concurrent WebSocket connections.
const MaxClients = 1000

// Hub fans events out to connected WebSocket clients
type Hub struct {
	clients    map[*client]bool
	broadcast  chan *Event
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
	log        *logger.Logger
	done       chan struct{}
	maxClients int

	totalEvents atomic.Int64
}

// NewHub creates a new Hub. Call Run before serving connections.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan *Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		log:        log.WithComponent("realtime_hub"),
		done:       make(chan struct{}),
		maxClients: MaxClients,
	}
}

// Run processes registrations and broadcasts until ctx is done
func (h *Hub) Run(ctx context.Context) {
	h.log.Info().Msg("realtime hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(0)
			h.log.Info().Msg("realtime hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.log.Debug().Int("total", n).Msg("client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.log.Debug().Int("total", n).Msg("client disconnected")

		case e := <-h.broadcast:
			h.totalEvents.Add(1)
			data, err := json.Marshal(e)
			if err != nil {
				h.log.Error().Err(err).Str("type", string(e.Type)).Msg("failed to encode event")
				continue
			}

			h.mu.RLock()
			var slow []*client
			for c := range h.clients {
				c.mu.RLock()
				ok := c.sub.matches(e)
				c.mu.RUnlock()
				if !ok {
					continue
				}
				select {
				case c.send <- data:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()

			if len(slow) > 0 {
				h.mu.Lock()
				for _, c := range slow {
					if _, ok := h.clients[c]; ok {
						close(c.send)
						delete(h.clients, c)
					}
				}
				h.mu.Unlock()
			}
		}
	}
}

// Publish queues e for every matching client. It never blocks; a full queue drops the event.
func (h *Hub) Publish(_ context.Context, e *Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	select {
	case h.broadcast <- e:
	default:
		h.log.Warn().Str("type", string(e.Type)).Msg("broadcast channel full, dropping event")
	}
	return nil
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TotalEvents returns how many events have been broadcast
func (h *Hub) TotalEvents() int64 {
	return h.totalEvents.Load()
}

// add hands c to Run. It reports false once the hub has stopped.
func (h *Hub) add(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// remove hands c back to Run; after shutdown Run has already dropped it
func (h *Hub) remove(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ServeHTTP upgrades the request to a WebSocket connection
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	if h.Clients() >= h.maxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 64),
		sub:  Subscription{SessionID: r.URL.Query().Get("sessionId")},
	}
	if !h.add(c) {
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump accepts subscription updates until the connection closes
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4 * 1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, normalCloseCodes...) {
				c.hub.log.Debug().Err(err).Msg("websocket read error")
			}
			return
		}

		var sub Subscription
		if err := json.Unmarshal(message, &sub); err == nil {
			c.mu.Lock()
			c.sub = sub
			c.mu.Unlock()
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.log.Debug().Err(err).Msg("websocket write error")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
