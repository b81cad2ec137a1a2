package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrConnectionClosed   = errors.New("connection closed")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrSendChannelFull    = errors.New("send channel full")
	ErrNotAuthenticated   = errors.New("not authenticated")
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be shorter than pongWait
	maxMessageSize = 512 * 1024
)

// Hub tracks live connections and the document rooms they belong to.
type Hub struct {
	connections map[string]*Connection // connID -> Connection
	userConns   map[string][]string    // userID -> []connID
	documents   map[string]map[string]bool // documentID -> set of connID

	mu     sync.RWMutex
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a hub and starts its dead-connection sweeper.
func NewHub(logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	hub := &Hub{
		connections: make(map[string]*Connection),
		userConns:   make(map[string][]string),
		documents:   make(map[string]map[string]bool),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}

	go hub.cleanupTask()

	return hub
}

// Register adds a freshly upgraded connection.
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[conn.ID] = conn

	h.logger.Info("connection registered",
		zap.String("conn_id", conn.ID),
		zap.Int("total_connections", len(h.connections)),
	)
}

// Unregister removes a connection from every index.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, exists := h.connections[connID]
	if !exists {
		return
	}

	if conn.UserID != "" {
		h.removeUserConn(conn.UserID, connID)
	}
	if conn.DocumentID != "" {
		h.removeFromDocument(conn.DocumentID, connID)
	}
	delete(h.connections, connID)

	h.logger.Info("connection unregistered",
		zap.String("conn_id", connID),
		zap.String("user_id", conn.UserID),
		zap.Int("total_connections", len(h.connections)),
	)
}

// Bind records an authenticated connection: into its user's index and
// its document's room.
func (h *Hub) Bind(connID, userID, documentID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, exists := h.connections[connID]
	if !exists {
		return ErrConnectionNotFound
	}

	conn.SetAuthenticated(userID, documentID)
	h.userConns[userID] = append(h.userConns[userID], connID)
	if h.documents[documentID] == nil {
		h.documents[documentID] = make(map[string]bool)
	}
	h.documents[documentID][connID] = true

	h.logger.Info("connection bound",
		zap.String("conn_id", connID),
		zap.String("user_id", userID),
		zap.String("document_id", documentID),
		zap.Int("room_size", len(h.documents[documentID])),
	)

	return nil
}

// BroadcastToDocument sends to every connection in a document's room,
// optionally excluding one (the author's own connection). Returns the
// number of successful queues.
func (h *Hub) BroadcastToDocument(documentID string, msg *Message, excludeConnID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	connIDs, exists := h.documents[documentID]
	if !exists {
		return 0
	}

	count := 0
	for connID := range connIDs {
		if connID == excludeConnID {
			continue
		}
		if conn, ok := h.connections[connID]; ok {
			if err := conn.Send(msg); err == nil {
				count++
			}
		}
	}
	return count
}

// SendToUser sends to every connection a user holds.
func (h *Hub) SendToUser(userID string, msg *Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, connID := range h.userConns[userID] {
		if conn, ok := h.connections[connID]; ok {
			if err := conn.Send(msg); err == nil {
				count++
			}
		}
	}
	return count
}

// GetStats summarizes the hub.
func (h *Hub) GetStats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"total_connections":   len(h.connections),
		"authenticated_users": len(h.userConns),
		"active_documents":    len(h.documents),
	}
}

// Close shuts down the hub and every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	h.cancel()
	conns := make([]*Connection, 0, len(h.connections))
	for _, conn := range h.connections {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	// Outside the hub lock: close callbacks unregister from the hub
	// and would deadlock against it.
	for _, conn := range conns {
		conn.Close()
	}

	h.logger.Info("hub closed")
}

func (h *Hub) removeUserConn(userID, connID string) {
	connList := h.userConns[userID]
	for i, id := range connList {
		if id == connID {
			h.userConns[userID] = append(connList[:i], connList[i+1:]...)
			break
		}
	}
	if len(h.userConns[userID]) == 0 {
		delete(h.userConns, userID)
	}
}

func (h *Hub) removeFromDocument(documentID, connID string) {
	if room, exists := h.documents[documentID]; exists {
		delete(room, connID)
		if len(room) == 0 {
			delete(h.documents, documentID)
		}
	}
}

// cleanupTask periodically sweeps dead connections.
func (h *Hub) cleanupTask() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.cleanupDeadConnections()
		case <-h.ctx.Done():
			return
		}
	}
}

// cleanupDeadConnections drops closed connections and those whose
// heartbeat went silent.
func (h *Hub) cleanupDeadConnections() {
	h.mu.RLock()
	now := time.Now()
	timeout := 2 * pongWait
	dead := make([]*Connection, 0)
	for _, conn := range h.connections {
		if conn.IsClosed() || now.Sub(conn.LastPing()) > timeout {
			dead = append(dead, conn)
		}
	}
	h.mu.RUnlock()

	if len(dead) == 0 {
		return
	}

	// Close outside the hub lock: close callbacks unregister from the
	// hub. Unregister again explicitly for connections without the
	// callback; it is idempotent.
	for _, conn := range dead {
		conn.Close()
		h.Unregister(conn.ID)
	}

	h.mu.RLock()
	remaining := len(h.connections)
	h.mu.RUnlock()
	h.logger.Info("cleaned up dead connections",
		zap.Int("count", len(dead)),
		zap.Int("remaining", remaining),
	)
}
