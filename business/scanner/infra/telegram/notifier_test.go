package telegram

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	risk "github.com/fd1az/arbitrage-scanner/business/risk/domain"
	"github.com/fd1az/arbitrage-scanner/internal/apperror"
	"github.com/fd1az/arbitrage-scanner/internal/logger"
)

const token = "123:abc"

type botServer struct {
	mu       sync.Mutex
	failSend bool
	sends    []map[string]string
}

func (s *botServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"arb","username":"arb_bot"}}`)
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		_ = r.ParseForm()
		s.mu.Lock()
		s.sends = append(s.sends, map[string]string{
			"chat_id":    r.FormValue("chat_id"),
			"text":       r.FormValue("text"),
			"parse_mode": r.FormValue("parse_mode"),
		})
		fail := s.failSend
		s.mu.Unlock()
		if fail {
			io.WriteString(w, `{"ok":false,"error_code":500,"description":"Internal Server Error"}`)
			return
		}
		io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`)
	default:
		http.NotFound(w, r)
	}
}

func newNotifier(t *testing.T, srv *botServer) *Notifier {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	n, err := New(Config{
		Token:       token,
		ChatID:      42,
		APIEndpoint: ts.URL + "/bot%s/%s",
		MaxRetries:  2,
		RetryDelay:  time.Millisecond,
	}, logger.New(io.Discard, logger.LevelError, "test", nil))
	require.NoError(t, err)
	n.now = func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }
	return n
}

func TestNotifier_Emergency(t *testing.T) {
	srv := &botServer{}
	n := newNotifier(t, srv)

	err := n.NotifyEmergency(context.Background(), risk.Emergency{
		ShouldStop: true,
		Severity:   risk.SeverityCritical,
		Reasons:    []string{"daily loss 600.00 reached limit 500.00"},
	})
	require.NoError(t, err)

	require.Len(t, srv.sends, 1)
	sent := srv.sends[0]
	assert.Equal(t, "42", sent["chat_id"])
	assert.Equal(t, "MarkdownV2", sent["parse_mode"])
	assert.Contains(t, sent["text"], "Emergency stop engaged")
	assert.Contains(t, sent["text"], `daily loss 600\.00 reached limit 500\.00`)
	assert.Contains(t, sent["text"], `2026\-03\-14 09:30:00`)
}

func TestNotifier_Resumed(t *testing.T) {
	srv := &botServer{}
	n := newNotifier(t, srv)

	require.NoError(t, n.NotifyResumed(context.Background()))
	require.Len(t, srv.sends, 1)
	assert.Contains(t, srv.sends[0]["text"], "Emergency stop cleared")
}

func TestNotifier_RetriesThenFails(t *testing.T) {
	srv := &botServer{failSend: true}
	n := newNotifier(t, srv)

	err := n.NotifyResumed(context.Background())
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeNotifyFailed))
	assert.Len(t, srv.sends, 2)
}

func TestNew_BadToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
	}))
	defer ts.Close()

	_, err := New(Config{Token: "bad", ChatID: 1, APIEndpoint: ts.URL + "/bot%s/%s"},
		logger.New(io.Discard, logger.LevelError, "test", nil))
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeNotifyFailed))
}
