package wsconn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/arbitrage-scanner/internal/apperror"
)

// stream accepts connections and hands each one to serve.
func stream(t *testing.T, serve func(ctx context.Context, conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		serve(r.Context(), conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// drain keeps a connection open until the client goes away.
func drain(ctx context.Context, conn *websocket.Conn) {
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func newClient(t *testing.T, rawURL string, tune func(*Config)) *Client {
	t.Helper()
	cfg := DefaultConfig(rawURL, "test-venue")
	cfg.PingInterval = 0
	cfg.InitialBackoff = 10 * time.Millisecond
	cfg.MaxBackoff = 40 * time.Millisecond
	if tune != nil {
		tune(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNew_Validation(t *testing.T) {
	for _, raw := range []string{"", "https://api.venue.example/ws", "::"} {
		_, err := New(DefaultConfig(raw, "x"))
		assert.True(t, apperror.HasCode(err, apperror.CodeInvalidInput), raw)
	}

	c, err := New(Config{URL: "wss://stream.venue.example/ws", InitialBackoff: time.Minute, MaxBackoff: time.Second})
	require.NoError(t, err)
	assert.Equal(t, time.Minute, c.config.MaxBackoff)
	assert.Equal(t, 5*time.Second, c.config.WriteTimeout)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestClient_SubscribeAndReceive(t *testing.T) {
	subscribed := make(chan string, 1)
	url := stream(t, func(ctx context.Context, conn *websocket.Conn) {
		_, req, err := conn.Read(ctx)
		if err != nil {
			return
		}
		subscribed <- string(req)
		for _, frame := range []string{`{"s":"BTCUSDT","b":"100"}`, `{"s":"ETHUSDT","b":"10"}`} {
			if conn.Write(ctx, websocket.MessageText, []byte(frame)) != nil {
				return
			}
		}
		drain(ctx, conn)
	})

	c := newClient(t, url, nil)
	var (
		mu  sync.Mutex
		got []string
	)
	c.OnMessage(func(_ context.Context, msg []byte) {
		mu.Lock()
		got = append(got, string(msg))
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	assert.True(t, c.IsConnected())
	require.NoError(t, c.Connect(ctx), "second connect is a no-op")

	require.NoError(t, c.SendJSON(ctx, map[string]any{"method": "SUBSCRIBE", "id": 1}))
	assert.JSONEq(t, `{"method":"SUBSCRIBE","id":1}`, <-subscribed)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, got[0], "BTCUSDT")
	assert.Contains(t, got[1], "ETHUSDT")
}

func TestClient_ConcurrentSends(t *testing.T) {
	var frames atomic.Int32
	url := stream(t, func(ctx context.Context, conn *websocket.Conn) {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
			frames.Add(1)
		}
	})

	c := newClient(t, url, nil)
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Send(ctx, []byte(`{"method":"PING"}`)))
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return frames.Load() == 20 }, 2*time.Second, 10*time.Millisecond)
}

func TestClient_ReconnectAfterDrop(t *testing.T) {
	var accepts atomic.Int32
	url := stream(t, func(ctx context.Context, conn *websocket.Conn) {
		if accepts.Add(1) == 1 {
			return
		}
		drain(ctx, conn)
	})

	c := newClient(t, url, nil)
	var (
		mu     sync.Mutex
		states []State
	)
	c.OnStateChange(func(s State, _ error) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	require.NoError(t, c.Connect(context.Background()))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		n := len(states)
		return n > 2 && states[n-1] == StateConnected && states[n-2] == StateReconnecting
	}, 5*time.Second, 10*time.Millisecond)

	assert.GreaterOrEqual(t, accepts.Load(), int32(2))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateConnecting, StateConnected}, states[:2])
}

func TestClient_NoAutoReconnect(t *testing.T) {
	url := stream(t, func(context.Context, *websocket.Conn) {})

	c := newClient(t, url, func(cfg *Config) { cfg.AutoReconnect = false })
	require.NoError(t, c.Connect(context.Background()))

	assert.Eventually(t, func() bool { return c.State() == StateDisconnected }, 2*time.Second, 10*time.Millisecond)
}

func TestClient_OversizedFrameDrops(t *testing.T) {
	url := stream(t, func(ctx context.Context, conn *websocket.Conn) {
		_ = conn.Write(ctx, websocket.MessageText, []byte(strings.Repeat("x", 512)))
		drain(ctx, conn)
	})

	c := newClient(t, url, func(cfg *Config) {
		cfg.MaxMessageSize = 64
		cfg.AutoReconnect = false
	})
	var delivered atomic.Bool
	c.OnMessage(func(context.Context, []byte) { delivered.Store(true) })
	require.NoError(t, c.Connect(context.Background()))

	assert.Eventually(t, func() bool { return !c.IsConnected() }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, delivered.Load())
}

func TestClient_ConnectWithRetry(t *testing.T) {
	t.Run("gives up after max attempts", func(t *testing.T) {
		c := newClient(t, "ws://127.0.0.1:1", func(cfg *Config) { cfg.MaxReconnects = 3 })

		err := c.ConnectWithRetry(context.Background())
		assert.True(t, apperror.HasCode(err, apperror.CodeWebSocketConnectionError))
		assert.Equal(t, StateDisconnected, c.State())
	})

	t.Run("stops on context", func(t *testing.T) {
		c := newClient(t, "ws://127.0.0.1:1", nil)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		assert.ErrorIs(t, c.ConnectWithRetry(ctx), context.DeadlineExceeded)
	})
}

func TestClient_Close(t *testing.T) {
	url := stream(t, drain)
	c := newClient(t, url, nil)

	var closedEvents atomic.Int32
	c.OnStateChange(func(s State, _ error) {
		if s == StateClosed {
			closedEvents.Add(1)
		}
	})
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, int32(1), closedEvents.Load())

	assert.True(t, apperror.HasCode(c.Send(context.Background(), []byte("x")), apperror.CodeWebSocketSendError))
	assert.True(t, apperror.HasCode(c.Connect(context.Background()), apperror.CodeWebSocketClosed))
}
