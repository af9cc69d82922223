// Package web provides the HTTP+WebSocket external surface (§2's
// Web/External surface, §6): REST endpoints for settings and guiding
// control, and a WebSocket channel pushing live events (the daemon
// broadcasts each guide iteration's correction).
package web

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Event is one push message sent over the status/preview WebSocket
// channel.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans out status and preview events to every connected WebSocket
// client. Grounded on darkdragonsastro-draco-simulator's
// internal/api/websocket.Hub.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool

	broadcast  chan []byte
	register   chan *client
	unregister chan *client

	logger *log.Logger
	stopCh chan struct{}
}

// NewHub builds a Hub; call Run in a goroutine to start its loop.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(log.Writer(), "[web] ", log.LstdFlags)
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
}

// Run drives the hub's register/unregister/broadcast loop until Stop is
// called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.stopCh:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
			}
			h.clients = nil
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Stop ends the hub's loop and closes all client connections.
func (h *Hub) Stop() {
	close(h.stopCh)
}

// Broadcast marshals and queues an event for every connected client. A
// full broadcast buffer drops the event rather than blocking the guide
// loop.
func (h *Hub) Broadcast(eventType string, data any) {
	b, err := json.Marshal(Event{Type: eventType, Timestamp: time.Now().UTC(), Data: data})
	if err != nil {
		h.logger.Printf("marshal event failed: %v", err)
		return
	}
	select {
	case h.broadcast <- b:
	default:
		h.logger.Printf("broadcast buffer full, dropping %s event", eventType)
	}
}

// ClientCount reports the number of connected WebSocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request to a WebSocket connection and wires
// it into the hub's fan-out.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 16)}
	h.register <- c

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// readPump drains and discards inbound frames, just to notice when the
// client disconnects (this channel is push-only).
func (h *Hub) readPump(c *client) {
	defer func() { h.unregister <- c }()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
