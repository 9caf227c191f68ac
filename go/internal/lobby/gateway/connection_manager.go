package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// InboundHandler consumes events and disconnects from the transport layer.
type InboundHandler interface {
	HandleEvent(connID string, frame []byte)
	HandleDisconnect(connID string)
}

// Transport is the outbound side of the connection manager, as seen by the
// event dispatcher.
type Transport interface {
	// BroadcastToRoom queues an event for every connection currently in the
	// room, minus excludeConnID when non-empty.
	BroadcastToRoom(roomID string, event *OutboundEvent, excludeConnID string)
	// SendToConnection queues an event for a single connection.
	SendToConnection(connID string, event *OutboundEvent)
	// JoinRoom moves a connection into a room's broadcast pool.
	JoinRoom(connID, roomID string)
	// LeaveRoom removes a connection from its room's broadcast pool.
	LeaveRoom(connID string)
}

// ConnectionManager owns the WebSocket connections and their room-scoped
// broadcast pools. Outbound delivery runs on a single goroutine fed by a
// buffered channel, so events for a room go out in the order the relay
// produced them.
type ConnectionManager struct {
	mu        sync.RWMutex
	conns     map[string]*Connection
	roomConns map[string]map[string]*Connection

	upgrader websocket.Upgrader
	config   ConnectionConfig

	handler   InboundHandler
	publisher EventPublisher

	broadcastCh chan outboundFrame
}

// Connection represents one WebSocket client.
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	limiter *rate.Limiter

	roomID string // guarded by Manager.mu

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	// EventsPerSecond bounds how fast a single connection may send; excess
	// inbound events are dropped.
	EventsPerSecond rate.Limit
	EventBurst      int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration. The message
// size limit is generous because canvas handoffs carry whole drawings as data
// URLs.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1 << 20, // 1MB
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		EventsPerSecond: 60,
		EventBurst:      120,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

type outboundFrame struct {
	roomID        string
	excludeConnID string
	connID        string
	event         *OutboundEvent
}

// NewConnectionManager creates a connection manager. A handler must be set
// with SetHandler before any connection is upgraded.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		conns:     make(map[string]*Connection),
		roomConns: make(map[string]map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		publisher:   NoopPublisher{},
		broadcastCh: make(chan outboundFrame, 1000),
	}
}

// SetHandler wires the inbound event handler.
func (cm *ConnectionManager) SetHandler(handler InboundHandler) {
	cm.handler = handler
}

// SetPublisher wires an outbound event mirror.
func (cm *ConnectionManager) SetPublisher(publisher EventPublisher) {
	cm.publisher = publisher
}

// Start processes queued outbound frames until the context is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case frame := <-cm.broadcastCh:
			cm.deliver(frame)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a WebSocket connection and
// starts its read/write pumps. Room membership is established later, by the
// connection's joinLobby event.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		limiter:     rate.NewLimiter(cm.config.EventsPerSecond, cm.config.EventBurst),
		ConnectedAt: time.Now(),
	}

	cm.mu.Lock()
	cm.conns[connection.ID] = connection
	cm.mu.Unlock()

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	return nil
}

// JoinRoom moves a connection into a room's broadcast pool, leaving any pool
// it was in before.
func (cm *ConnectionManager) JoinRoom(connID, roomID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	conn, ok := cm.conns[connID]
	if !ok {
		return
	}

	cm.leaveRoomLocked(conn)

	if cm.roomConns[roomID] == nil {
		cm.roomConns[roomID] = make(map[string]*Connection)
	}
	cm.roomConns[roomID][connID] = conn
	conn.roomID = roomID

	log.Debug().
		Str("connection_id", connID).
		Str("room_id", roomID).
		Int("pool_size", len(cm.roomConns[roomID])).
		Msg("connection added to room pool")
}

// LeaveRoom removes a connection from its room's broadcast pool.
func (cm *ConnectionManager) LeaveRoom(connID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if conn, ok := cm.conns[connID]; ok {
		cm.leaveRoomLocked(conn)
	}
}

func (cm *ConnectionManager) leaveRoomLocked(conn *Connection) {
	if conn.roomID == "" {
		return
	}
	if pool, ok := cm.roomConns[conn.roomID]; ok {
		delete(pool, conn.ID)
		if len(pool) == 0 {
			delete(cm.roomConns, conn.roomID)
		}
	}
	conn.roomID = ""
}

// BroadcastToRoom queues an event for every connection in the room except
// excludeConnID.
func (cm *ConnectionManager) BroadcastToRoom(roomID string, event *OutboundEvent, excludeConnID string) {
	select {
	case cm.broadcastCh <- outboundFrame{roomID: roomID, event: event, excludeConnID: excludeConnID}:
	default:
		log.Warn().Str("room_id", roomID).Str("event", event.Event).Msg("broadcast channel full, dropping event")
	}
}

// SendToConnection queues an event for a single connection.
func (cm *ConnectionManager) SendToConnection(connID string, event *OutboundEvent) {
	select {
	case cm.broadcastCh <- outboundFrame{connID: connID, event: event}:
	default:
		log.Warn().Str("connection_id", connID).Str("event", event.Event).Msg("broadcast channel full, dropping event")
	}
}

// deliver writes one queued frame out to its target connections.
func (cm *ConnectionManager) deliver(frame outboundFrame) {
	data, err := json.Marshal(frame.event)
	if err != nil {
		log.Error().Err(err).Str("event", frame.event.Event).Msg("failed to marshal outbound event")
		return
	}

	var targets []*Connection

	// The sends happen under the read lock: removeConnection closes Send
	// under the write lock, so a connection cannot be closed out from under
	// an in-flight send. The sends are non-blocking, so holding the lock
	// here cannot stall other lock holders.
	cm.mu.RLock()
	if frame.connID != "" {
		if conn, ok := cm.conns[frame.connID]; ok {
			targets = append(targets, conn)
		}
	} else {
		for id, conn := range cm.roomConns[frame.roomID] {
			if id == frame.excludeConnID {
				continue
			}
			targets = append(targets, conn)
		}
	}

	var evict []*Connection
	for _, conn := range targets {
		select {
		case conn.Send <- data:
		default:
			// Connection is slow/dead, close it
			log.Warn().
				Str("connection_id", conn.ID).
				Msg("connection send buffer full, closing connection")
			evict = append(evict, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range evict {
		cm.removeConnection(conn)
		conn.Conn.Close()
	}

	if frame.roomID != "" {
		cm.publisher.Publish(frame.roomID, frame.event)
	}
}

// removeConnection drops a connection from the manager and closes its send
// channel. Idempotent; the pumps and the delivery loop can race to it.
func (cm *ConnectionManager) removeConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, ok := cm.conns[conn.ID]; !ok {
		return
	}
	delete(cm.conns, conn.ID)
	cm.leaveRoomLocked(conn)
	close(conn.Send)

	log.Info().Str("connection_id", conn.ID).Msg("connection unregistered")
}

// Stats describes the manager's current connection pools.
type Stats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

// GetStats returns statistics about active connections.
func (cm *ConnectionManager) GetStats() Stats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := Stats{
		TotalConnections: len(cm.conns),
		ActiveRooms:      len(cm.roomConns),
		RoomConnections:  make(map[string]int, len(cm.roomConns)),
	}
	for roomID, pool := range cm.roomConns {
		stats.RoomConnections[roomID] = len(pool)
	}
	return stats
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection. On exit the
// disconnect is reported to the handler, which performs the room cleanup.
func (c *Connection) readPump() {
	defer func() {
		if c.Manager.handler != nil {
			c.Manager.handler.HandleDisconnect(c.ID)
		}
		c.Manager.removeConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		if !c.limiter.Allow() {
			log.Warn().Str("connection_id", c.ID).Msg("connection over rate limit, dropping event")
			continue
		}

		if c.Manager.handler != nil {
			c.Manager.handler.HandleEvent(c.ID, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
