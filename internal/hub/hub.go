// Package hub fans bus events out to websocket dashboard clients. Clients
// join per-session rooms; global events reach everyone.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cesar59xxx/eeeeeeee/internal/bus"
	"github.com/cesar59xxx/eeeeeeee/internal/manager"
)

// wireNames maps internal bus kinds to the stable event names the dashboard
// consumes. Renaming one of these breaks deployed dashboards.
var wireNames = map[string]string{
	manager.KindPairing:       "pairing-payload-available",
	manager.KindStatusChanged: "status-changed",
	manager.KindMessage:       "message-received",
	manager.KindMessageStatus: "message-status-changed",
}

// Frame is the wire envelope for every outbound websocket message.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// control is the only inbound message shape clients send.
type control struct {
	Action    string `json:"action"`
	SessionID string `json:"sessionId"`
}

// Client is one connected websocket.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	rooms map[string]bool
}

// Hub maintains the set of connected clients and routes bus events to them.
type Hub struct {
	bus      *bus.Bus
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*Client]bool
}

// New creates a hub. allowedOrigins restricts the websocket handshake; an
// empty list allows any origin.
func New(b *bus.Bus, logger *zap.Logger, allowedOrigins []string) *Hub {
	h := &Hub{
		bus:     b,
		logger:  logger,
		clients: make(map[*Client]bool),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}
	return h
}

// Run subscribes to the bus and routes events until the context is canceled.
func (h *Hub) Run(ctx context.Context) {
	ch, unsub := h.bus.Subscribe("", 256)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case evt := <-ch:
			h.route(evt)
		}
	}
}

func (h *Hub) route(evt bus.Event) {
	name, ok := wireNames[evt.Kind]
	if !ok {
		return
	}
	payload, err := json.Marshal(Frame{Event: name, Data: evt.Payload})
	if err != nil {
		h.logger.Error("failed to marshal websocket frame", zap.String("event", name), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !evt.Global && !c.rooms[evt.SessionID] {
			continue
		}
		select {
		case c.send <- payload:
		default:
			// Slow consumer: drop the connection rather than block the hub.
			close(c.send)
			delete(h.clients, c)
		}
	}
}

// ServeWS upgrades an HTTP request to a websocket client connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &Client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, 64),
		rooms: make(map[string]bool),
	}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", zap.String("remote", conn.RemoteAddr().String()))

	go c.writePump()
	go c.readPump()
}

func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// ClientCount reports connected clients, for the health endpoint.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// readPump consumes join/leave control messages until the peer goes away.
func (c *Client) readPump() {
	defer func() {
		c.hub.drop(c)
		_ = c.conn.Close()
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg control
		if err := json.Unmarshal(data, &msg); err != nil || msg.SessionID == "" {
			continue
		}
		c.hub.mu.Lock()
		switch msg.Action {
		case "join":
			c.rooms[msg.SessionID] = true
		case "leave":
			delete(c.rooms, msg.SessionID)
		}
		c.hub.mu.Unlock()
	}
}

func (c *Client) writePump() {
	defer func() { _ = c.conn.Close() }()
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
