package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/wellsgz/pingmon/internal/events"
	"github.com/wellsgz/pingmon/internal/logging"
	"github.com/wellsgz/pingmon/internal/probe"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ClientMessage represents a message from client to server
type ClientMessage struct {
	Type    string   `json:"type"`    // "subscribe" or "unsubscribe"
	Targets []string `json:"targets"` // Target addresses or ["all"]
}

// ServerMessage represents a message from server to client.
// Type is the event channel ("ping-result", "stats-update", "state-change") or "error".
type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub relays bus events to connected WebSocket clients
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan ServerMessage
	register   chan *Client
	unregister chan *Client

	bus *events.Bus
	sub <-chan events.Event

	done     chan struct{}
	stopOnce sync.Once
	mu       sync.RWMutex
}

// NewHub creates a hub subscribed to bus
func NewHub(bus *events.Bus) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan ServerMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		bus:        bus,
		sub:        bus.Subscribe(),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	go h.listenBus()

	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			logging.For("WebSocket").Info("Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			logging.For("WebSocket").Debugf("Client connected (total: %d)", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			logging.For("WebSocket").Debugf("Client disconnected (total: %d)", count)

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// deliver sends a message to every interested client, dropping clients that fall behind
func (h *Hub) deliver(message ServerMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if o, ok := message.Data.(probe.Outcome); ok && !client.isSubscribed(o.Target) {
			continue
		}

		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// Stop signals the hub to shutdown
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.bus.Unsubscribe(h.sub)
	})
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// listenBus forwards bus events into the broadcast queue
func (h *Hub) listenBus() {
	for ev := range h.sub {
		select {
		case h.broadcast <- ServerMessage{Type: ev.Channel, Data: ev.Payload}:
		case <-h.done:
			return
		}
	}
}

// Client represents a WebSocket client
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan ServerMessage

	// Ping results are filtered by address unless allTargets is set
	targets    map[string]bool
	allTargets bool
	mu         sync.RWMutex
}

// isSubscribed checks if client wants ping results for a target address
func (c *Client) isSubscribed(target string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.allTargets {
		return true
	}
	return c.targets[target]
}

// subscribe narrows ping results to the given addresses; "all" restores everything
func (c *Client) subscribe(targets []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range targets {
		if t == "all" {
			c.allTargets = true
			return
		}
	}
	c.allTargets = false
	for _, t := range targets {
		c.targets[t] = true
	}
}

// unsubscribe removes addresses from the subscription
func (c *Client) unsubscribe(targets []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range targets {
		if t == "all" {
			c.allTargets = false
			c.targets = make(map[string]bool)
			return
		}
		delete(c.targets, t)
	}
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error("WebSocket", "Read error", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.sendError("Invalid message format")
			continue
		}

		switch msg.Type {
		case "subscribe":
			c.subscribe(msg.Targets)
			c.sendAck(msg)
		case "unsubscribe":
			c.unsubscribe(msg.Targets)
			c.sendAck(msg)
		default:
			c.sendError("Unknown message type: " + msg.Type)
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
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

			if err := c.conn.WriteJSON(message); err != nil {
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

// sendError queues an error message for the client.
// The hub lock keeps this from racing a close of c.send.
func (c *Client) sendError(msg string) {
	c.queue(ServerMessage{Type: "error", Data: msg})
}

func (c *Client) sendAck(msg ClientMessage) {
	c.queue(ServerMessage{Type: msg.Type + "d", Data: msg.Targets})
}

func (c *Client) queue(m ServerMessage) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- m:
	default:
	}
}

// ServeWebSocket handles WebSocket requests from clients
func ServeWebSocket(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logging.Error("WebSocket", "Upgrade error", err)
			return
		}

		client := &Client{
			hub:        hub,
			conn:       conn,
			send:       make(chan ServerMessage, 256),
			targets:    make(map[string]bool),
			allTargets: true,
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}
