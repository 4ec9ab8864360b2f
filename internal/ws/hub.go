package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/sokoline/sokoline-backend/internal/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the storefront origins once they are fixed
		return true
	},
}

// Message is what goes over the wire to subscribers.
type Message struct {
	Type      string         `json:"type"`
	OrderID   string         `json:"order_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp string         `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	send chan Message
	// empty means the client gets every event (back office dashboards)
	orderID string
}

// Hub fans domain events out to websocket subscribers. Clients subscribe to
// one order's feed or, with no order_id, to everything. Hub satisfies
// events.Handler so it can hang off the event bus directly.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
	logger  *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{clients: make(map[*client]bool), logger: logger}
}

func (h *Hub) Name() string { return "websocket-hub" }

// Handle broadcasts a domain event to matching subscribers. Slow clients are
// dropped rather than allowed to stall the event loop.
func (h *Hub) Handle(evt events.Event) {
	msg := Message{
		Type:      string(evt.Type),
		OrderID:   evt.Key,
		Data:      evt.Data,
		Timestamp: evt.At.Format(time.RFC3339),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.orderID != "" && c.orderID != evt.Key {
			continue
		}
		select {
		case c.send <- msg:
		default:
			delete(h.clients, c)
			close(c.send)
			h.logger.Warn("dropping slow websocket client")
		}
	}
}

// ServeHTTP upgrades the connection and registers the subscriber.
// GET /ws?order_id=<uuid> scopes the feed to one order.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("websocket upgrade failed")
		return
	}

	c := &client{
		conn:    conn,
		send:    make(chan Message, sendBuffer),
		orderID: r.URL.Query().Get("order_id"),
	}

	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.WithField("client_count", count).Info("websocket client connected")

	go h.writePump(c)
	go h.readPump(c)
}

// ClientCount reports the number of live subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.WithField("client_count", count).Info("websocket client disconnected")
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.WithError(err).Debug("websocket read error")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.WithError(err).Error("failed to marshal websocket message")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
