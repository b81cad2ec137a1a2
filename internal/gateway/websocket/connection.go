package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Connection wraps one websocket connection to a collaborating client.
type Connection struct {
	ID         string
	UserID     string // set after authentication
	DocumentID string // set after the client joins a document

	conn *websocket.Conn

	send chan *Message

	authenticated bool
	lastPing      time.Time
	closed        bool

	// onClose callbacks run once when the connection shuts down,
	// before the socket closes; the hub and handler use them to
	// unregister and leave the session.
	onClose []func()

	mu     sync.RWMutex
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewConnection creates a connection wrapper.
func NewConnection(id string, conn *websocket.Conn, logger *zap.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		ID:       id,
		conn:     conn,
		send:     make(chan *Message, 256),
		lastPing: time.Now(),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Send queues a message for the write pump. The channel never blocks:
// a full buffer drops the message, since every server push is either
// re-derivable from a sync or safe to lose.
//
// The read lock is held across the channel send; Close takes the
// write lock before closing the channel, so the channel cannot close
// mid-send.
func (c *Connection) Send(msg *Message) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.send <- msg:
		return nil
	default:
		c.logger.Warn("send channel full, dropping message",
			zap.String("conn_id", c.ID),
			zap.String("msg_type", string(msg.Type)),
		)
		return ErrSendChannelFull
	}
}

// Close shuts the connection down. Idempotent.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	callbacks := c.onClose
	c.onClose = nil
	if c.cancel != nil {
		c.cancel()
	}
	close(c.send)
	c.mu.Unlock()

	for _, f := range callbacks {
		f()
	}

	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsClosed reports whether the connection has shut down.
func (c *Connection) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// OnClose registers a shutdown callback. Callbacks run in
// registration order when the connection closes.
func (c *Connection) OnClose(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = append(c.onClose, f)
}

// SetAuthenticated records a successful authentication and the
// document the client joined.
func (c *Connection) SetAuthenticated(userID, documentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.authenticated = true
	c.UserID = userID
	c.DocumentID = documentID
}

// IsAuthenticated reports whether the client has authenticated.
func (c *Connection) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

// UpdatePing refreshes the heartbeat clock.
func (c *Connection) UpdatePing() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPing = time.Now()
}

// LastPing returns the last heartbeat time.
func (c *Connection) LastPing() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPing
}

// readPump reads frames until the connection dies.
func (c *Connection) readPump(handler MessageHandler) {
	defer func() {
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.UpdatePing()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read error",
					zap.String("conn_id", c.ID),
					zap.Error(err),
				)
			}
			break
		}

		msg, err := FromJSON(data)
		if err != nil {
			c.logger.Warn("failed to parse message",
				zap.String("conn_id", c.ID),
				zap.Error(err),
			)
			c.Send(NewErrorMessage("invalid message format"))
			continue
		}

		if handler != nil {
			handler.HandleMessage(c, msg)
		}
	}
}

// writePump drains the send channel and keeps the heartbeat going.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := msg.ToJSON()
			if err != nil {
				c.logger.Error("failed to marshal message",
					zap.String("conn_id", c.ID),
					zap.Error(err),
				)
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("failed to write message",
					zap.String("conn_id", c.ID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// Start launches the read and write pumps.
func (c *Connection) Start(handler MessageHandler) {
	go c.writePump()
	go c.readPump(handler)
}
