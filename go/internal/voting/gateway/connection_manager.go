package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/livevote/go/internal/voting/events"
	"github.com/rs/zerolog/log"
)

// StateSyncer runs fn against the live round state with broadcasts held off
type StateSyncer interface {
	Sync(ctx context.Context, fn func(events.State)) error
}

// MessageHandler consumes inbound client frames
type MessageHandler interface {
	Dispatch(ctx context.Context, frame []byte) error
}

// Metrics receives connection and broadcast observations
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
	EventBroadcast(eventType events.EventType, delivered, dropped int)
}

type noopMetrics struct{}

func (noopMetrics) ConnectionOpened() {}
func (noopMetrics) ConnectionClosed() {}
func (noopMetrics) EventBroadcast(events.EventType, int, int) {}

// ConnectionManager tracks open WebSocket connections and fans events out to them
type ConnectionManager struct {
	connections map[*Connection]struct{}
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	metrics  Metrics

	syncer  StateSyncer
	handler MessageHandler
}

// Connection is one client connection. It carries no session data.
type Connection struct {
	ID          string
	RemoteAddr  string
	Conn        *websocket.Conn
	ConnectedAt time.Time

	send    chan []byte
	manager *ConnectionManager

	ctx       context.Context
	cancel    context.CancelFunc
	closed    chan struct{}
	closeOnce sync.Once
}

// ConnectionConfig holds WebSocket transport settings
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a connection manager. Call attach before
// accepting connections.
func NewConnectionManager(config ConnectionConfig, metrics Metrics) *ConnectionManager {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = DefaultConnectionConfig().SendBufferSize
	}
	return &ConnectionManager{
		connections: make(map[*Connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:  config,
		metrics: metrics,
	}
}

func (cm *ConnectionManager) attach(syncer StateSyncer, handler MessageHandler) {
	cm.syncer = syncer
	cm.handler = handler
}

// UpgradeConnection upgrades an HTTP request to a WebSocket connection and
// sends it the current state before any later broadcast
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	if cm.syncer == nil || cm.handler == nil {
		return errors.New("connection manager not attached to a round controller")
	}

	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	connection := &Connection{
		ID:          uuid.New().String(),
		RemoteAddr:  r.RemoteAddr,
		Conn:        conn,
		ConnectedAt: time.Now(),
		send:        make(chan []byte, cm.config.SendBufferSize),
		manager:     cm,
		ctx:         ctx,
		cancel:      cancel,
		closed:      make(chan struct{}),
	}

	go connection.writePump()

	var syncErr error
	err = cm.syncer.Sync(r.Context(), func(state events.State) {
		data, err := json.Marshal(state)
		if err != nil {
			syncErr = fmt.Errorf("marshal state snapshot: %w", err)
			return
		}
		cm.registerConnection(connection)
		connection.enqueue(data)
	})
	if err == nil {
		err = syncErr
	}
	if err != nil {
		connection.close()
		return fmt.Errorf("sync new connection: %w", err)
	}

	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", connection.RemoteAddr).
		Msg("WebSocket connection established")

	return nil
}

// registerConnection adds a connection to the manager
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	// the write pump may have failed before registration
	if conn.isClosed() {
		return
	}
	cm.connections[conn] = struct{}{}
	cm.metrics.ConnectionOpened()

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

// unregisterConnection removes a connection from the manager
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.connections[conn]; !exists {
		return
	}
	delete(cm.connections, conn)
	cm.metrics.ConnectionClosed()

	log.Info().
		Str("connection_id", conn.ID).
		Str("remote_addr", conn.RemoteAddr).
		Dur("connected_for", time.Since(conn.ConnectedAt)).
		Msg("connection unregistered")
}

// Broadcast marshals event once and queues it on every open connection.
// Delivery is best effort: a connection whose send buffer is full misses it.
func (cm *ConnectionManager) Broadcast(event events.Event) {
	eventData, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// Snapshot connections to avoid holding the lock while sending
	cm.mu.RLock()
	targets := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	delivered, dropped := 0, 0
	for _, conn := range targets {
		if conn.enqueue(eventData) {
			delivered++
			continue
		}
		if conn.isClosed() {
			continue
		}
		dropped++
		log.Warn().
			Str("connection_id", conn.ID).
			Str("event_type", string(event.EventType())).
			Msg("connection send buffer full, dropping event")
	}

	cm.metrics.EventBroadcast(event.EventType(), delivered, dropped)

	log.Debug().
		Str("event_type", string(event.EventType())).
		Int("delivered", delivered).
		Int("dropped", dropped).
		Msg("event broadcasted")
}

// ConnectionCount returns the number of registered connections
func (cm *ConnectionManager) ConnectionCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	return map[string]interface{}{
		"total_connections": cm.ConnectionCount(),
	}
}

// CloseAll closes every open connection, used on shutdown
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	targets := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		conn.close()
	}
}

// enqueue queues data without blocking and reports whether it was accepted
func (c *Connection) enqueue(data []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// close tears the connection down once; safe from any goroutine
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.cancel()
		c.manager.unregisterConnection(c)
		c.Conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.manager.config.WriteTimeout),
		)
		c.Conn.Close()
	})
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.closed:
			return

		case message := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads client frames and hands them to the dispatcher
func (c *Connection) readPump() {
	defer c.close()

	c.Conn.SetReadLimit(c.manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		if err := c.manager.handler.Dispatch(c.ctx, message); err != nil {
			log.Debug().
				Err(err).
				Str("connection_id", c.ID).
				Msg("client message not applied")
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	}
}
