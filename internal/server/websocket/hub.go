// Package websocket serves the realtime store protocol over websocket
// connections. Every connection gets its own database session, so sign-in
// state and listeners never leak between clients.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/rebase/pkg/database"
	"github.com/agentstation/rebase/pkg/database/remote"
	"github.com/agentstation/rebase/pkg/logging"
)

// OpenFunc opens the database session for a new connection.
type OpenFunc func() database.Database

// Hub maintains active connections.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	open       OpenFunc
	logger     *zerolog.Logger
}

// NewHub creates a hub whose connections use sessions from open.
func NewHub(open OpenFunc, logger *zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		open:       open,
		logger:     logger,
	}
}

// Run starts the hub's main loop. Should be called in a goroutine. When ctx
// is done every connection is closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info().
				Str("client_id", client.id).
				Int("total_clients", total).
				Msg("WebSocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, client)
			total := len(h.clients)
			h.mu.Unlock()
			client.shutdown()
			h.logger.Info().
				Str("client_id", client.id).
				Int("total_clients", total).
				Msg("WebSocket client disconnected")

		case <-ctx.Done():
			h.mu.Lock()
			clients := h.clients
			h.clients = make(map[*Client]bool)
			h.mu.Unlock()
			for client := range clients {
				client.shutdown()
			}
			h.logger.Debug().Int("clients", len(clients)).Msg("WebSocket hub stopped")
			return
		}
	}
}

// Serve registers conn under id and starts its pumps. It returns false when
// the hub is no longer running.
func (h *Hub) Serve(id string, conn *websocket.Conn) bool {
	client := newClient(id, h, conn)
	select {
	case h.register <- client:
	case <-h.done:
		client.shutdown()
		_ = conn.Close()
		return false
	}
	go client.WritePump()
	go client.ReadPump()
	return true
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
		c.shutdown()
	}
}

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1 << 20

	// Frames buffered for a peer before it is considered too slow and
	// disconnected.
	sendBuffer = 1024
)

// Client is one websocket connection and its database session.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	db     database.Database
	ctx    context.Context
	cancel context.CancelFunc
	logger *zerolog.Logger

	mu        sync.Mutex
	send      chan *remote.Frame
	closed    bool
	listeners map[uint64]registration
	stopOnce  sync.Once
}

// registration is a listener the peer registered with the session.
type registration struct {
	query database.Query
	id    database.ListenerID
}

func newClient(id string, hub *Hub, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		id:        id,
		hub:       hub,
		conn:      conn,
		db:        hub.open(),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logging.ForConnection(hub.logger, id, conn.RemoteAddr().String()),
		send:      make(chan *remote.Frame, sendBuffer),
		listeners: make(map[uint64]registration),
	}
}

// push queues f for the peer. A peer that cannot keep up is disconnected
// rather than sent an incomplete event stream.
func (c *Client) push(f *remote.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- f:
	default:
		c.logger.Warn().Msg("Client buffer full, disconnecting")
		c.closeLocked()
	}
}

func (c *Client) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// shutdown stops the client and closes its session.
func (c *Client) shutdown() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.closeLocked()
		c.listeners = make(map[uint64]registration)
		c.mu.Unlock()
		c.cancel()
		if err := c.db.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Session close failed")
		}
	})
}

// ReadPump reads requests from the connection and serves them in order.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error().Err(err).Msg("WebSocket read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var req remote.Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.logger.Warn().Err(err).Msg("Malformed request ignored")
			continue
		}
		c.serve(&req)
	}
}

// WritePump writes queued frames and pings to the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			data, err := json.Marshal(frame)
			if err != nil {
				c.logger.Error().Err(err).Str("type", frame.Type).Msg("Failed to marshal frame")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
