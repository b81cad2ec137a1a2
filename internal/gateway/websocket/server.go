package websocket

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aetherflow/collabedit/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking belongs to the deployment's reverse proxy.
		return true
	},
}

// Server accepts websocket upgrades and hands the connections to the
// collaboration handler.
type Server struct {
	hub     *Hub
	manager *session.Manager
	logger  *zap.Logger
	handler MessageHandler
}

// NewServer creates a websocket server bound to a session manager.
func NewServer(manager *session.Manager, logger *zap.Logger) *Server {
	hub := NewHub(logger)
	handler := NewCollabHandler(hub, manager, logger)

	return &Server{
		hub:     hub,
		manager: manager,
		logger:  logger,
		handler: handler,
	}
}

// SetAuthFunc installs token validation on the handler.
func (s *Server) SetAuthFunc(f AuthFunc) {
	if handler, ok := s.handler.(*CollabHandler); ok {
		handler.SetAuthFunc(f)
	}
}

// HandleWebSocket upgrades an HTTP request into a collaboration
// connection.
func (s *Server) HandleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Error("failed to upgrade connection",
				zap.Error(err),
				zap.String("remote_addr", r.RemoteAddr),
			)
			return
		}

		connID, err := uuid.NewV7()
		if err != nil {
			s.logger.Error("failed to generate connection ID", zap.Error(err))
			conn.Close()
			return
		}

		wsConn := NewConnection(connID.String(), conn, s.logger)
		s.hub.Register(wsConn)
		wsConn.OnClose(func() {
			s.hub.Unregister(wsConn.ID)
		})
		wsConn.Start(s.handler)

		s.logger.Info("websocket connection established",
			zap.String("conn_id", wsConn.ID),
			zap.String("remote_addr", r.RemoteAddr),
		)
	}
}

// SyncDocument pushes the full document state to every connection in
// the document's room and returns the delivery count. Used after
// out-of-band changes such as a restore issued over REST, where every
// client's buffer goes stale at once.
func (s *Server) SyncDocument(documentID string) int {
	content, docVersion, err := s.manager.Content(documentID)
	if err != nil {
		return 0
	}
	sess, err := s.manager.GetSession(documentID)
	if err != nil {
		return 0
	}
	locks, err := s.manager.Locks(documentID)
	if err != nil {
		return 0
	}

	msg := NewMessage(MessageTypeSync, SyncData{
		Content:      content,
		Version:      docVersion,
		Participants: sess.Participants,
		Locks:        locks,
	})
	return s.hub.BroadcastToDocument(documentID, msg, "")
}

// NotifyUserLeft tells a user's open connections that they were
// removed from a document, e.g. by a leave issued over REST. The
// session broadcast announces the departure to everyone else but
// skips the departing user's own subscriptions.
func (s *Server) NotifyUserLeft(documentID, userID string) int {
	msg := NewMessage(MessageTypeLeft, EventData{
		DocumentID: documentID,
		UserID:     userID,
	})
	return s.hub.SendToUser(userID, msg)
}

// GetStats returns hub statistics.
func (s *Server) GetStats() map[string]interface{} {
	return s.hub.GetStats()
}

// Close shuts down the hub and every connection.
func (s *Server) Close() {
	s.hub.Close()
}
