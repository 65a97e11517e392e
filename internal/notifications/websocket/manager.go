package websocket

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType identifies the kind of frame exchanged with feed clients.
type MessageType string

const (
	MessageTypeTransition MessageType = "transition"
	MessageTypeSubscribe  MessageType = "subscribe"
	MessageTypeStatus     MessageType = "status"
)

// ErrClosed is returned after the manager has been closed.
var ErrClosed = errors.New("websocket manager closed")

// Message is a frame sent to or received from a feed client. On transitions
// Queues lists the queues touched; on subscribe it lists the queues wanted.
type Message struct {
	Type      MessageType `json:"type"`
	Data      any         `json:"data,omitempty"`
	Queues    []string    `json:"queues,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Manager handles WebSocket connections and message routing
type Manager struct {
	connections map[string]*Connection
	mu          sync.RWMutex
	hub         *Hub
	upgrader    websocket.Upgrader
	logger      *zap.Logger
	closeOnce   sync.Once
}

// Connection represents a WebSocket client connection
type Connection struct {
	ID          string
	UserID      string
	Conn        *websocket.Conn
	Send        chan Message
	ConnectedAt time.Time
	queues      map[string]bool
	mu          sync.Mutex
}

// wants reports whether a message touching queues should reach the client.
func (c *Connection) wants(queues []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queues) == 0 {
		return true
	}
	for _, q := range queues {
		if c.queues[q] {
			return true
		}
	}
	return false
}

// Hub manages the broadcast of messages to connections
type Hub struct {
	connections map[*Connection]bool
	broadcast   chan Message
	register    chan *Connection
	unregister  chan *Connection
	stop        chan struct{}
	logger      *zap.Logger
}

// NewManager creates a new WebSocket manager
func NewManager(logger *zap.Logger) *Manager {
	hub := &Hub{
		connections: make(map[*Connection]bool),
		broadcast:   make(chan Message, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stop:        make(chan struct{}),
		logger:      logger,
	}

	go hub.run()

	return &Manager{
		connections: make(map[string]*Connection),
		hub:         hub,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleConnection upgrades the request and attaches the client to the feed
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request, userID string) (*Connection, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Conn:        conn,
		Send:        make(chan Message, sendBuffer),
		ConnectedAt: time.Now(),
	}

	connection.Send <- Message{
		Type:      MessageTypeStatus,
		Data:      map[string]string{"status": "connected", "connectionId": connection.ID},
		Timestamp: time.Now().UTC(),
	}

	select {
	case m.hub.register <- connection:
	case <-m.hub.stop:
		conn.Close()
		return nil, ErrClosed
	}

	m.mu.Lock()
	m.connections[connection.ID] = connection
	m.mu.Unlock()

	go m.readPump(connection)
	go m.writePump(connection)
	return connection, nil
}

// readPump consumes client frames until the connection drops
func (m *Manager) readPump(conn *Connection) {
	defer func() {
		select {
		case m.hub.unregister <- conn:
		case <-m.hub.stop:
		}
		m.mu.Lock()
		delete(m.connections, conn.ID)
		m.mu.Unlock()
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(maxMessageSize)
	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		return conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := conn.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Warn("Feed connection closed unexpectedly", zap.String("connection_id", conn.ID), zap.Error(err))
			}
			return
		}
		if msg.Type == MessageTypeSubscribe {
			m.subscribe(conn, msg.Queues)
		}
	}
}

// writePump delivers hub messages and keeps the connection alive with pings
func (m *Manager) writePump(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// subscribe narrows the queues a client hears about; an empty list means all.
func (m *Manager) subscribe(conn *Connection, queues []string) {
	conn.mu.Lock()
	conn.queues = make(map[string]bool, len(queues))
	for _, q := range queues {
		conn.queues[q] = true
	}
	conn.mu.Unlock()

	m.logger.Debug("Feed subscription updated", zap.String("connection_id", conn.ID), zap.Strings("queues", queues))
}

// run runs the hub in its own goroutine
func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.connections[conn] = true
			h.logger.Debug("Feed connection registered", zap.String("connection_id", conn.ID), zap.String("user_id", conn.UserID))

		case conn := <-h.unregister:
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				close(conn.Send)
				h.logger.Debug("Feed connection unregistered", zap.String("connection_id", conn.ID))
			}

		case message := <-h.broadcast:
			for conn := range h.connections {
				if !conn.wants(message.Queues) {
					continue
				}
				select {
				case conn.Send <- message:
				default:
					h.logger.Warn("Dropping slow feed connection", zap.String("connection_id", conn.ID))
					close(conn.Send)
					delete(h.connections, conn)
				}
			}

		case <-h.stop:
			for conn := range h.connections {
				close(conn.Send)
				delete(h.connections, conn)
			}
			return
		}
	}
}

// Broadcast queues a message for every interested connection
func (m *Manager) Broadcast(message Message) error {
	select {
	case <-m.hub.stop:
		return ErrClosed
	default:
	}
	select {
	case m.hub.broadcast <- message:
		return nil
	default:
		return fmt.Errorf("broadcast channel full")
	}
}

// ConnectionCount returns the number of active connections
func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Close stops the hub and closes all connections
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.hub.stop)

		m.mu.Lock()
		for _, conn := range m.connections {
			conn.Conn.Close()
		}
		m.connections = make(map[string]*Connection)
		m.mu.Unlock()
	})
}
