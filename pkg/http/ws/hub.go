package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Hub tracks connected clients. At most one narrator is active at a time;
// a newer narrator connection replaces the old one. Observers only receive
// the event feed.
type Hub struct {
	mu         sync.RWMutex
	clients    map[uuid.UUID]*Connection
	roles      map[uuid.UUID]string
	narratorID uuid.UUID
	logger     zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]*Connection),
		roles:   make(map[uuid.UUID]string),
		logger:  logger.With().Str("component", "ws_hub").Logger(),
	}
}

// Register adds a client connection under a role and returns its id.
func (h *Hub) Register(conn *Connection, role string) uuid.UUID {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := uuid.New()
	h.clients[id] = conn
	h.roles[id] = role

	if role == RoleNarrator {
		if old, ok := h.clients[h.narratorID]; ok && h.narratorID != id {
			old.Close()
			delete(h.clients, h.narratorID)
			delete(h.roles, h.narratorID)
		}
		h.narratorID = id
	}

	h.logger.Info().Str("client_id", id.String()).Str("role", role).Msg("client registered")
	return id
}

// Unregister removes a client and closes its connection.
func (h *Hub) Unregister(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.clients[id]
	if !ok {
		return
	}
	conn.Close()
	delete(h.clients, id)
	delete(h.roles, id)
	if h.narratorID == id {
		h.narratorID = uuid.Nil
	}
	h.logger.Info().Str("client_id", id.String()).Msg("client unregistered")
}

// SendToNarrator delivers a message to the active narrator.
func (h *Hub) SendToNarrator(msg Message) error {
	h.mu.RLock()
	conn, ok := h.clients[h.narratorID]
	h.mu.RUnlock()

	if !ok {
		return ErrNoNarrator
	}
	return conn.Send(msg)
}

// HasNarrator reports whether a narrator client is connected.
func (h *Hub) HasNarrator() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[h.narratorID]
	return ok
}

// Broadcast sends a message to every connected client.
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, conn := range h.clients {
		if err := conn.Send(msg); err != nil {
			h.logger.Warn().Err(err).Str("client_id", id.String()).Msg("broadcast send failed")
		}
	}
}

// Send delivers a message to one client.
func (h *Hub) Send(id uuid.UUID, msg Message) error {
	h.mu.RLock()
	conn, ok := h.clients[id]
	h.mu.RUnlock()

	if !ok {
		return ErrConnectionNotFound
	}
	return conn.Send(msg)
}

// CloseAll shuts down every connection. Called during shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, conn := range h.clients {
		conn.Close()
		delete(h.clients, id)
		delete(h.roles, id)
	}
	h.narratorID = uuid.Nil
}

// Connection wraps a WebSocket connection with a buffered send queue.
type Connection struct {
	conn   *websocket.Conn
	sendCh chan Message
	mu     sync.Mutex
	closed bool
	logger zerolog.Logger
}

// NewConnection wraps a raw WebSocket connection.
func NewConnection(conn *websocket.Conn, logger zerolog.Logger) *Connection {
	return &Connection{
		conn:   conn,
		sendCh: make(chan Message, 256),
		logger: logger,
	}
}

// Send queues a message for delivery.
func (c *Connection) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.sendCh <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close shuts down the connection.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.sendCh)
	c.conn.Close()
}

// WritePump drains the send queue onto the wire.
func (c *Connection) WritePump() {
	defer c.conn.Close()

	for msg := range c.sendCh {
		if err := c.conn.WriteJSON(msg); err != nil {
			c.logger.Warn().Err(err).Msg("write error")
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// ReadPump receives messages and calls the handler. It returns when the
// connection drops or the 60 second read deadline lapses without a pong.
func (c *Connection) ReadPump(handler func(Message) error) {
	defer c.conn.Close()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("read error")
			}
			break
		}

		if err := handler(msg); err != nil {
			c.logger.Warn().Err(err).Str("type", msg.Type).Msg("message handler error")
		}
	}
}

var (
	ErrNoNarrator         = &Error{Code: "no_narrator", Message: "No narrator client connected"}
	ErrConnectionNotFound = &Error{Code: "connection_not_found", Message: "Client connection not found"}
	ErrConnectionClosed   = &Error{Code: "connection_closed", Message: "Connection is closed"}
	ErrSendQueueFull      = &Error{Code: "send_queue_full", Message: "Send queue is full"}
)

type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
