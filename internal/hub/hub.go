// Package hub implements the central relay: it accepts websocket connections
// from collector agents and display clients, routes protocol messages between
// them, and owns all cross-component mutation of the session table and
// context store.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Floopatron/donk-project/internal/plugin"
	"github.com/Floopatron/donk-project/internal/protocol"
	"github.com/Floopatron/donk-project/internal/session"
	"github.com/Floopatron/donk-project/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Collectors and display clients connect from other devices on the LAN.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	hub *Hub
	// The websocket connection. Nil in tests that drive handleMessage
	// directly.
	conn *websocket.Conn
	// Opaque connection identity; session handle once registered.
	handle string
	// Buffered channel of outbound messages.
	send chan []byte
}

// Hub maintains the set of active connections and routes messages between
// them, the session table, the context store, and the renderer registry.
type Hub struct {
	sessions   *session.Table
	store      *store.ContextStore
	registry   *plugin.Registry
	dispatcher *CommandDispatcher
	logger     *slog.Logger

	// Registered connections, plus an index by handle for directed sends.
	clients  map[*Client]bool
	byHandle map[string]*Client
	mu       sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	// Closed when Run returns, so connection teardown never blocks on a
	// stopped lifecycle loop.
	done chan struct{}
}

// New creates a hub. Run must be started before connections are served.
func New(sessions *session.Table, st *store.ContextStore, registry *plugin.Registry, logger *slog.Logger) *Hub {
	return &Hub{
		sessions:   sessions,
		store:      st,
		registry:   registry,
		dispatcher: NewCommandDispatcher(logger),
		logger:     logger.With("component", "hub"),
		clients:    make(map[*Client]bool),
		byHandle:   make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run services connection lifecycle and broadcast fan-out until ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.addClient(client)
			h.initialSync(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.byHandle[c.handle] = c
	h.mu.Unlock()
	h.logger.Debug("Client connected", "handle", c.handle)
}

// removeClient tears down a connection: it leaves the client maps, its
// session (if any) is removed from both table indices, and its outstanding
// command requests are dropped. Stored context is deliberately left in place
// so display clients keep the last known state until it is overwritten or
// retracted.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		delete(h.byHandle, c.handle)
		close(c.send)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	h.dispatcher.DropClient(c.handle)

	if s := h.sessions.Remove(c.handle); s != nil {
		h.logger.Info("Collector disconnected", "device_id", s.DeviceID)
		h.Broadcast(protocol.NewCollectorList(h.sessions.Snapshot()))
	} else {
		h.logger.Debug("Client disconnected", "handle", c.handle)
	}
}

// initialSync converges a new connection's view: the current collector list
// followed by a full rendered replay of stored context.
func (h *Hub) initialSync(c *Client) {
	h.sendJSON(c, map[string]any{"type": protocol.TypeConnectionEstablished, "status": "connected"})
	h.sendJSON(c, protocol.NewCollectorList(h.sessions.Snapshot()))

	for deviceID, plugins := range h.store.All() {
		for pluginID, entry := range plugins {
			widgets, ok := h.registry.Render(pluginID, entry.Data)
			if !ok || widgets == nil {
				continue
			}
			h.sendJSON(c, protocol.NewPluginUpdate(deviceID, pluginID, widgets, entry.Data, entry.Timestamp))
		}
	}
}

func (h *Hub) fanOut(message []byte) {
	h.mu.Lock()
	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(h.clients, client)
			delete(h.byHandle, client.handle)
		}
	}
	h.mu.Unlock()
}

// Broadcast marshals a message and queues it for every connection. The
// payload is computed by the caller before any hub lock is taken.
func (h *Hub) Broadcast(v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", "error", err)
		return
	}
	h.broadcast <- raw
}

// sendJSON queues a message for one connection, dropping it if the
// connection's buffer is full. The read lock excludes the close of c.send in
// removeClient/fanOut, which happens under the write lock.
func (h *Hub) sendJSON(c *Client, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("Failed to marshal message", "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[c] {
		return
	}
	select {
	case c.send <- raw:
	default:
		h.logger.Warn("Dropping message for slow client", "handle", c.handle)
	}
}

// sendToHandle forwards raw bytes to the connection bound to handle.
func (h *Hub) sendToHandle(handle string, raw []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.byHandle[handle]
	if !ok {
		return false
	}
	select {
	case c.send <- raw:
		return true
	default:
		h.logger.Warn("Dropping message for slow client", "handle", handle)
		return false
	}
}

// attach hands a new connection to the lifecycle loop, reporting false when
// the hub has already stopped.
func (h *Hub) attach(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// detach hands a closing connection to the lifecycle loop. After shutdown the
// loop is gone and there is nothing left to clean up.
func (h *Hub) detach(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Dispatcher exposes the command correlation table.
func (h *Hub) Dispatcher() *CommandDispatcher {
	return h.dispatcher
}

// ServeWs upgrades an HTTP request to a websocket connection and attaches it
// to the hub.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", "error", err)
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		handle: uuid.New().String(),
		send:   make(chan []byte, 256),
	}
	if !h.attach(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump pumps messages from the websocket connection into the router.
func (c *Client) readPump() {
	defer func() {
		c.hub.detach(c)
		c.conn.Close()
	}()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("Websocket client closed unexpectedly", "handle", c.handle, "error", err)
			}
			break
		}
		c.hub.handleMessage(c, raw)
	}
}

// writePump pumps queued messages out to the websocket connection, one
// message per frame. Readers unmarshal each frame as a single JSON document,
// so frames must never carry more than one message.
func (c *Client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
