package websocket

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/aetherflow/collabedit/internal/session"
	"github.com/aetherflow/collabedit/internal/transform"
)

// MessageHandler processes inbound frames.
type MessageHandler interface {
	HandleMessage(conn *Connection, msg *Message)
}

// AuthFunc validates a client token and returns the user id it
// belongs to.
type AuthFunc func(token string) (userID string, err error)

// CollabHandler bridges websocket frames and the session manager. The
// protocol is authenticate-first: until an authenticate frame names a
// user and a document, every other frame is refused.
type CollabHandler struct {
	hub     *Hub
	manager *session.Manager
	logger  *zap.Logger

	// authFunc validates tokens. Nil disables token checking and
	// trusts the user id in the authenticate frame; only for
	// development setups.
	authFunc AuthFunc
}

// NewCollabHandler creates the handler.
func NewCollabHandler(hub *Hub, manager *session.Manager, logger *zap.Logger) *CollabHandler {
	return &CollabHandler{
		hub:     hub,
		manager: manager,
		logger:  logger,
	}
}

// SetAuthFunc installs token validation.
func (h *CollabHandler) SetAuthFunc(f AuthFunc) {
	h.authFunc = f
}

// HandleMessage dispatches one inbound frame.
func (h *CollabHandler) HandleMessage(conn *Connection, msg *Message) {
	h.logger.Debug("handling message",
		zap.String("conn_id", conn.ID),
		zap.String("msg_type", string(msg.Type)),
	)

	switch msg.Type {
	case MessageTypePing:
		conn.UpdatePing()
		conn.Send(NewMessage(MessageTypePong, nil))

	case MessageTypeAuth:
		h.handleAuth(conn, msg)

	case MessageTypeOperation:
		h.handleOperation(conn, msg)

	case MessageTypeLock:
		h.handleLock(conn, msg)

	case MessageTypeUnlock:
		h.handleUnlock(conn, msg)

	case MessageTypeCursor:
		h.handleCursor(conn, msg)

	default:
		h.logger.Warn("unknown message type",
			zap.String("conn_id", conn.ID),
			zap.String("msg_type", string(msg.Type)),
		)
		conn.Send(NewErrorMessage("unknown message type"))
	}
}

// handleAuth authenticates the connection, joins the document session,
// and starts forwarding session events. The client receives an
// auth_result followed by a sync frame carrying the full document
// state.
func (h *CollabHandler) handleAuth(conn *Connection, msg *Message) {
	var data AuthData
	if err := msg.DecodeData(&data); err != nil {
		conn.Send(NewMessage(MessageTypeAuthResult, AuthResult{
			Success: false,
			Message: "invalid authenticate payload",
		}))
		return
	}
	if data.DocumentID == "" {
		conn.Send(NewMessage(MessageTypeAuthResult, AuthResult{
			Success: false,
			Message: "document_id is required",
		}))
		return
	}

	userID := data.UserID
	if h.authFunc != nil {
		verified, err := h.authFunc(data.Token)
		if err != nil {
			conn.Send(NewMessage(MessageTypeAuthResult, AuthResult{
				Success: false,
				Message: "authentication failed: " + err.Error(),
			}))
			return
		}
		userID = verified
	}
	if userID == "" {
		conn.Send(NewMessage(MessageTypeAuthResult, AuthResult{
			Success: false,
			Message: "user identity is required",
		}))
		return
	}

	ctx := context.Background()
	sess, err := h.manager.Join(ctx, data.DocumentID, userID)
	if err != nil {
		conn.Send(NewMessage(MessageTypeAuthResult, AuthResult{
			Success: false,
			Message: "failed to join session: " + err.Error(),
		}))
		return
	}

	if err := h.hub.Bind(conn.ID, userID, data.DocumentID); err != nil {
		h.manager.Leave(ctx, data.DocumentID, userID)
		conn.Send(NewMessage(MessageTypeAuthResult, AuthResult{
			Success: false,
			Message: "failed to bind connection",
		}))
		return
	}

	sub, err := h.manager.Subscribe(ctx, data.DocumentID, userID)
	if err != nil {
		h.manager.Leave(ctx, data.DocumentID, userID)
		conn.Send(NewMessage(MessageTypeAuthResult, AuthResult{
			Success: false,
			Message: "failed to subscribe: " + err.Error(),
		}))
		return
	}

	go h.pumpEvents(conn, sub)
	conn.OnClose(func() {
		h.manager.Unsubscribe(sub.ID)
		h.manager.Leave(context.Background(), data.DocumentID, userID)
	})

	conn.Send(NewMessage(MessageTypeAuthResult, AuthResult{
		Success:    true,
		UserID:     userID,
		DocumentID: data.DocumentID,
		SessionID:  sess.ID,
	}))

	h.sendSync(conn, data.DocumentID)
}

// handleOperation submits one edit and acknowledges it. The author
// identity always comes from the authenticated connection, never from
// the frame.
func (h *CollabHandler) handleOperation(conn *Connection, msg *Message) {
	if !conn.IsAuthenticated() {
		conn.Send(NewErrorMessage("not authenticated"))
		return
	}

	var data OperationData
	if err := msg.DecodeData(&data); err != nil {
		conn.Send(NewErrorMessage("invalid operation payload"))
		return
	}
	data.Operation.UserID = conn.UserID

	applied, err := h.manager.SubmitOperation(context.Background(), conn.DocumentID, data.Operation, data.BaseVersion)
	if err != nil {
		if errors.Is(err, session.ErrStaleBase) {
			// The client fell behind; a fresh sync lets it rebase.
			h.sendSync(conn, conn.DocumentID)
		}
		conn.Send(NewErrorMessage(err.Error()))
		return
	}

	ack := AckData{OperationID: data.Operation.ID, Applied: applied != nil}
	if applied != nil {
		if _, v, cerr := h.manager.Content(conn.DocumentID); cerr == nil {
			ack.Version = v
		}
	}
	conn.Send(NewMessage(MessageTypeAck, ack))
}

func (h *CollabHandler) handleLock(conn *Connection, msg *Message) {
	if !conn.IsAuthenticated() {
		conn.Send(NewErrorMessage("not authenticated"))
		return
	}

	var data LockData
	if err := msg.DecodeData(&data); err != nil {
		conn.Send(NewErrorMessage("invalid lock payload"))
		return
	}

	if err := h.manager.LockSection(context.Background(), conn.DocumentID, conn.UserID, data.Start, data.End); err != nil {
		conn.Send(NewErrorMessage(err.Error()))
		return
	}
	conn.Send(NewMessage(MessageTypeAck, AckData{Applied: true}))
}

func (h *CollabHandler) handleUnlock(conn *Connection, msg *Message) {
	if !conn.IsAuthenticated() {
		conn.Send(NewErrorMessage("not authenticated"))
		return
	}

	var data LockData
	if err := msg.DecodeData(&data); err != nil {
		conn.Send(NewErrorMessage("invalid unlock payload"))
		return
	}

	if err := h.manager.UnlockSection(context.Background(), conn.DocumentID, conn.UserID, data.Start, data.End); err != nil {
		conn.Send(NewErrorMessage(err.Error()))
	}
}

func (h *CollabHandler) handleCursor(conn *Connection, msg *Message) {
	if !conn.IsAuthenticated() {
		conn.Send(NewErrorMessage("not authenticated"))
		return
	}

	var data CursorData
	if err := msg.DecodeData(&data); err != nil {
		conn.Send(NewErrorMessage("invalid cursor payload"))
		return
	}

	if err := h.manager.UpdateCursor(context.Background(), conn.DocumentID, conn.UserID, data.Cursor); err != nil {
		conn.Send(NewErrorMessage(err.Error()))
	}
}

// sendSync pushes the full document state.
func (h *CollabHandler) sendSync(conn *Connection, documentID string) {
	content, version, err := h.manager.Content(documentID)
	if err != nil {
		return
	}
	sess, err := h.manager.GetSession(documentID)
	if err != nil {
		return
	}
	locks, err := h.manager.Locks(documentID)
	if err != nil {
		return
	}

	conn.Send(NewMessage(MessageTypeSync, SyncData{
		Content:      content,
		Version:      version,
		Participants: sess.Participants,
		Locks:        locks,
	}))
}

// pumpEvents forwards session events onto the connection until the
// subscription channel closes.
func (h *CollabHandler) pumpEvents(conn *Connection, sub *session.Subscriber) {
	for event := range sub.Channel {
		msg := messageFromEvent(event)
		if msg == nil {
			continue
		}
		if err := conn.Send(msg); err != nil {
			return
		}
	}
}

// messageFromEvent translates a session event into a wire frame.
func messageFromEvent(event *session.Event) *Message {
	var msgType MessageType
	switch event.Type {
	case session.EventTypeOperation:
		msgType = MessageTypeOperation
	case session.EventTypeLock:
		msgType = MessageTypeLock
	case session.EventTypeUnlock:
		msgType = MessageTypeUnlock
	case session.EventTypeCursor:
		msgType = MessageTypeCursor
	case session.EventTypeJoined:
		msgType = MessageTypeJoined
	case session.EventTypeLeft:
		msgType = MessageTypeLeft
	case session.EventTypeConflictDropped:
		msgType = MessageTypeConflictDropped
	case session.EventTypeRestore:
		msgType = MessageTypeRestore
	default:
		return nil
	}

	var cursor *transform.CursorPosition
	if event.Cursor != nil {
		c := *event.Cursor
		cursor = &c
	}

	return NewMessage(msgType, EventData{
		DocumentID: event.DocumentID,
		UserID:     event.UserID,
		Operation:  event.Operation,
		Lock:       event.Lock,
		Cursor:     cursor,
	})
}
