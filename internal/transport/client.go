package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

var (
	// ErrConnectFailed is the terminal error after the retry budget is
	// exhausted.
	ErrConnectFailed = errors.New("failed to connect after all retry attempts")

	// ErrClientClosed is returned when operating on an explicitly
	// disconnected client.
	ErrClientClosed = errors.New("client is closed")
)

// State is the connection lifecycle phase.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	defaultMaxAttempts     = 5
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 10 * time.Second
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// URL is the endpoint, e.g. ws://host:port/ws.
	URL string

	// Dialer establishes connections. Defaults to a websocket dialer.
	Dialer Dialer

	// Token, when set, is sent as a Bearer authorization header.
	Token string

	Logger *zap.Logger

	// MaxAttempts bounds each connect cycle, the initial one and every
	// reconnect after a dropped read.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// Timer drives the backoff sleeps. Tests inject one that fires
	// immediately; nil uses real time.
	Timer backoff.Timer
}

// Client is one logical duplex channel to the collaboration server.
// It hides physical reconnects from its owner: a dropped connection is
// redialed with exponential backoff, and only an exhausted retry
// budget or an explicit Disconnect ends the channel.
type Client struct {
	url         string
	dialer      Dialer
	token       string
	logger      *zap.Logger
	maxAttempts int
	initialWait time.Duration
	maxWait     time.Duration
	timer       backoff.Timer

	mu       sync.Mutex
	state    State
	conn     Conn
	writeMu  sync.Mutex
	connStop context.CancelFunc

	handlerMu sync.RWMutex
	handlers  map[EventType][]handlerEntry
	nextID    HandlerID
}

type handlerEntry struct {
	id HandlerID
	fn Handler
}

// NewClient creates a disconnected client.
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil || config.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	if config.Dialer == nil {
		config.Dialer = NewWebsocketDialer()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = defaultMaxAttempts
	}
	if config.InitialInterval == 0 {
		config.InitialInterval = defaultInitialInterval
	}
	if config.MaxInterval == 0 {
		config.MaxInterval = defaultMaxInterval
	}

	return &Client{
		url:         config.URL,
		dialer:      config.Dialer,
		token:       config.Token,
		logger:      config.Logger,
		maxAttempts: config.MaxAttempts,
		initialWait: config.InitialInterval,
		maxWait:     config.MaxInterval,
		timer:       config.Timer,
		state:       StateDisconnected,
		handlers:    make(map[EventType][]handlerEntry),
	}, nil
}

// Connect establishes the channel for one (document, user) pair,
// retrying with exponential backoff up to the configured attempt
// budget. Exhausting the budget surfaces ErrConnectFailed.
func (c *Client) Connect(ctx context.Context, documentID, userID string) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	endpoint, err := c.endpoint(documentID, userID)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	conn, err := c.dialWithRetry(ctx, endpoint)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	connCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		cancel()
		conn.Close()
		return ErrClientClosed
	}
	c.conn = conn
	c.connStop = cancel
	c.state = StateConnected
	c.mu.Unlock()

	go c.readLoop(conn, connCtx, endpoint)

	c.logger.Info("connected",
		zap.String("url", c.url),
		zap.String("document_id", documentID),
		zap.String("user_id", userID),
	)

	return nil
}

// Send marshals and writes one message. Best-effort: when the channel
// is not open the message is logged and dropped, never queued, so
// anything sent this way must be safe to lose.
func (c *Client) Send(eventType EventType, payload interface{}) error {
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateConnected
	c.mu.Unlock()

	if !open {
		c.logger.Warn("dropping message on closed channel",
			zap.String("type", string(eventType)),
		)
		return nil
	}

	env := Envelope{Type: eventType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		env.Payload = raw
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// On subscribes a handler to an event type. Multiple handlers per type
// run in subscription order. The returned id is the token for Off.
func (c *Client) On(eventType EventType, handler Handler) HandlerID {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()

	c.nextID++
	id := c.nextID
	c.handlers[eventType] = append(c.handlers[eventType], handlerEntry{id: id, fn: handler})
	return id
}

// Off removes one subscription. Unknown ids are ignored.
func (c *Client) Off(eventType EventType, id HandlerID) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()

	entries := c.handlers[eventType]
	for i, entry := range entries {
		if entry.id == id {
			c.handlers[eventType] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// Disconnect closes the channel and releases every handler.
// Idempotent; the client is terminal afterwards.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	conn := c.conn
	c.conn = nil
	if c.connStop != nil {
		c.connStop()
		c.connStop = nil
	}
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	c.handlerMu.Lock()
	c.handlers = make(map[EventType][]handlerEntry)
	c.handlerMu.Unlock()

	c.logger.Info("disconnected")
	return nil
}

// State reports the current lifecycle phase.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ==================== internals ====================

func (c *Client) endpoint(documentID, userID string) (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", c.url, err)
	}
	q := u.Query()
	q.Set("document_id", documentID)
	q.Set("user_id", userID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// dialWithRetry runs the bounded backoff loop around the dialer.
func (c *Client) dialWithRetry(ctx context.Context, endpoint string) (Conn, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialWait
	policy.MaxInterval = c.maxWait
	policy.MaxElapsedTime = 0

	var header http.Header
	if c.token != "" {
		header = http.Header{"Authorization": []string{"Bearer " + c.token}}
	}

	var conn Conn
	operation := func() error {
		var err error
		conn, err = c.dialer.Dial(ctx, endpoint, header)
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("connect attempt failed, retrying",
			zap.Duration("next_attempt_in", wait),
			zap.Error(err),
		)
	}

	bounded := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxAttempts-1)), ctx)

	timer := c.timer
	if timer == nil {
		err := backoff.RetryNotify(operation, bounded, notify)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
		}
		return conn, nil
	}
	if err := backoff.RetryNotifyWithTimer(operation, bounded, notify, timer); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	return conn, nil
}

// readLoop pumps inbound messages into the dispatch table. A read
// error on a live client triggers a reconnect cycle with the same
// retry budget as the initial connect.
func (c *Client) readLoop(conn Conn, ctx context.Context, endpoint string) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				// Explicit disconnect, not a transport failure.
				return
			default:
			}
			c.logger.Warn("connection lost", zap.Error(err))
			c.reconnect(endpoint)
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("discarding malformed message", zap.Error(err))
			continue
		}
		c.dispatch(env)
	}
}

// dispatch invokes the handlers registered for the envelope's type in
// subscription order.
func (c *Client) dispatch(env Envelope) {
	c.handlerMu.RLock()
	entries := append([]handlerEntry(nil), c.handlers[env.Type]...)
	c.handlerMu.RUnlock()

	for _, entry := range entries {
		entry.fn(env)
	}
}

// reconnect redials after a dropped connection. Failure leaves the
// client disconnected; callers observe it through State and may call
// Connect again.
func (c *Client) reconnect(endpoint string) {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.connStop != nil {
		c.connStop()
		c.connStop = nil
	}
	c.mu.Unlock()

	conn, err := c.dialWithRetry(context.Background(), endpoint)
	if err != nil {
		c.logger.Error("reconnect failed", zap.Error(err))
		c.setState(StateDisconnected)
		return
	}

	connCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		cancel()
		conn.Close()
		return
	}
	c.conn = conn
	c.connStop = cancel
	c.state = StateConnected
	c.mu.Unlock()

	c.logger.Info("reconnected", zap.String("url", c.url))
	go c.readLoop(conn, connCtx, endpoint)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state != StateClosed {
		c.state = s
	}
	c.mu.Unlock()
}
