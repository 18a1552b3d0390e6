// Package wsconn provides a WebSocket client with keepalive and automatic
// reconnection, built on coder/websocket.
package wsconn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/fd1az/arbitrage-scanner/internal/apperror"
)

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// Config holds WebSocket client configuration.
type Config struct {
	URL            string
	Name           string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxReconnects  int // 0 = infinite
	PingInterval   time.Duration // 0 disables keepalive pings
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	AutoReconnect  bool
}

// DefaultConfig returns defaults suited to exchange market streams.
func DefaultConfig(rawURL, name string) Config {
	return Config{
		URL:            rawURL,
		Name:           name,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
		WriteTimeout:   5 * time.Second,
		MaxMessageSize: 1 << 20,
		AutoReconnect:  true,
	}
}

// MessageHandler receives every inbound data frame.
type MessageHandler func(ctx context.Context, msg []byte)

// StateHandler observes state transitions; err is the cause, if any.
type StateHandler func(state State, err error)

// Client is a reconnecting WebSocket client. All methods are safe for
// concurrent use.
type Client struct {
	config Config

	mu        sync.RWMutex
	conn      *websocket.Conn
	state     State
	onMessage MessageHandler
	onState   StateHandler

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New validates cfg and returns a disconnected client.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext(fmt.Sprintf("invalid websocket url %q", cfg.URL)))
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		config: cfg,
		state:  StateDisconnected,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// OnMessage sets the inbound message handler.
func (c *Client) OnMessage(h MessageHandler) {
	c.mu.Lock()
	c.onMessage = h
	c.mu.Unlock()
}

// OnStateChange sets the state observer.
func (c *Client) OnStateChange(h StateHandler) {
	c.mu.Lock()
	c.onState = h
	c.mu.Unlock()
}

// Connect dials once. A dropped connection is redialed in the background
// when AutoReconnect is set.
func (c *Client) Connect(ctx context.Context) error {
	switch c.State() {
	case StateClosed:
		return apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.config.Name))
	case StateConnected:
		return nil
	}

	c.setState(StateConnecting, nil)
	if err := c.dial(ctx); err != nil {
		c.setState(StateDisconnected, err)
		return err
	}
	return nil
}

// ConnectWithRetry dials with exponential backoff until it succeeds, ctx is
// done, or MaxReconnects attempts fail.
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	backoff := c.config.InitialBackoff
	for attempt := 1; ; attempt++ {
		err := c.Connect(ctx)
		if err == nil {
			return nil
		}
		if c.config.MaxReconnects > 0 && attempt >= c.config.MaxReconnects {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.ctx.Done():
			return apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.config.Name))
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.config.MaxBackoff)
	}
}

func (c *Client) dial(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.config.URL, nil)
	if err != nil {
		return apperror.New(apperror.CodeWebSocketConnectionError,
			apperror.WithCause(err),
			apperror.WithContext(c.config.Name))
	}
	if c.config.MaxMessageSize > 0 {
		conn.SetReadLimit(c.config.MaxMessageSize)
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		conn.CloseNow()
		return apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.config.Name))
	}
	c.conn = conn
	c.mu.Unlock()

	c.setState(StateConnected, nil)

	go c.readLoop(conn)
	if c.config.PingInterval > 0 {
		go c.pingLoop(conn)
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(c.ctx)
		if err != nil {
			c.handleDisconnect(conn, err)
			return
		}

		c.mu.RLock()
		h := c.onMessage
		c.mu.RUnlock()
		if h != nil {
			h(c.ctx, data)
		}
	}
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if c.current() != conn {
				return
			}
			ctx, cancel := context.WithTimeout(c.ctx, c.config.PongTimeout)
			err := conn.Ping(ctx)
			cancel()
			if err != nil {
				// The read loop observes the close and handles reconnection.
				conn.CloseNow()
				return
			}
		}
	}
}

func (c *Client) handleDisconnect(conn *websocket.Conn, cause error) {
	conn.CloseNow()

	c.mu.Lock()
	if c.state == StateClosed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()

	if !c.config.AutoReconnect {
		c.setState(StateDisconnected, cause)
		return
	}

	c.setState(StateReconnecting, cause)
	go c.reconnectLoop()
}

func (c *Client) reconnectLoop() {
	backoff := c.config.InitialBackoff
	for attempt := 1; ; attempt++ {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(backoff):
		}

		err := c.dial(c.ctx)
		if err == nil {
			return
		}
		if c.config.MaxReconnects > 0 && attempt >= c.config.MaxReconnects {
			c.setState(StateDisconnected, err)
			return
		}
		backoff = min(backoff*2, c.config.MaxBackoff)
	}
}

// Send writes a text frame.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	conn := c.current()
	if conn == nil {
		return apperror.New(apperror.CodeWebSocketSendError,
			apperror.WithContext(fmt.Sprintf("%s: not connected", c.config.Name)))
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.WriteTimeout)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return apperror.New(apperror.CodeWebSocketSendError,
			apperror.WithCause(err),
			apperror.WithContext(c.config.Name))
	}
	return nil
}

// SendJSON marshals v and sends it as a text frame.
func (c *Client) SendJSON(ctx context.Context, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return apperror.New(apperror.CodeInvalidInput, apperror.WithCause(err))
	}
	return c.Send(ctx, b)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) IsConnected() bool { return c.State() == StateConnected }

// Close performs a close handshake and stops reconnection. It is idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.state = StateClosed
		h := c.onState
		c.mu.Unlock()

		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "")
		}
		c.cancel()

		if h != nil {
			h(StateClosed, nil)
		}
	})
	return nil
}

func (c *Client) current() *websocket.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) setState(state State, err error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = state
	h := c.onState
	c.mu.Unlock()

	if h != nil {
		h(state, err)
	}
}
