package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one established duplex channel. Implementations must allow
// concurrent ReadMessage and WriteMessage from different goroutines,
// but callers serialize writes themselves.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer establishes connections. The client takes it as an interface
// so tests can substitute an in-memory implementation and exercise the
// reconnect path without a network.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// WebsocketDialer dials real websocket endpoints.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
}

// NewWebsocketDialer creates a dialer with a default handshake timeout.
func NewWebsocketDialer() *WebsocketDialer {
	return &WebsocketDialer{HandshakeTimeout: 10 * time.Second}
}

// Dial implements Dialer.
func (d *WebsocketDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s (status %d): %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return &websocketConn{conn: conn}, nil
}

type websocketConn struct {
	conn *websocket.Conn
}

func (c *websocketConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *websocketConn) WriteMessage(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *websocketConn) Close() error {
	return c.conn.Close()
}
