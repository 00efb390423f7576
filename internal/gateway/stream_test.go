// ABOUTME: Tests for live event delivery over SSE and WebSocket
// ABOUTME: Uses real HTTP servers to check framing, ordering, keepalives and shutdown

package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/support-relay/internal/config"
	"github.com/2389/support-relay/internal/conversation"
	"github.com/2389/support-relay/internal/store"
)

// startTestServer serves gw over a real listener. The gateway is shut down
// before the server closes so streaming handlers return.
func startTestServer(t *testing.T, cfg *config.Config) (*Gateway, *httptest.Server) {
	t.Helper()
	gw := NewWithStore(cfg, store.NewMockStore(), testLogger())
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = gw.Shutdown(ctx)
	})
	return gw, srv
}

// sseReader yields `data:` payloads and comment lines from an SSE body.
type sseReader struct {
	scanner *bufio.Scanner
}

// next returns the next non-blank line.
func (r *sseReader) next(t *testing.T) string {
	t.Helper()
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line != "" {
			return line
		}
	}
	t.Fatalf("stream ended: %v", r.scanner.Err())
	return ""
}

// nextEvent returns the next data frame decoded as an Event.
func (r *sseReader) nextEvent(t *testing.T) conversation.Event {
	t.Helper()
	for {
		line := r.next(t)
		if strings.HasPrefix(line, ":") {
			continue
		}
		require.True(t, strings.HasPrefix(line, "data: "), "unexpected line %q", line)
		var ev conversation.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		return ev
	}
}

func openStream(t *testing.T, srv *httptest.Server) (*http.Response, *sseReader) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp, &sseReader{scanner: bufio.NewScanner(resp.Body)}
}

func postJSON(t *testing.T, srv *httptest.Server, body string) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/message", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestStream_SSE(t *testing.T) {
	gw, srv := startTestServer(t, testConfig(t))

	resp, reader := openStream(t, srv)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	assert.Equal(t, `data: {"type":"connected"}`, reader.next(t))
	require.Eventually(t, func() bool { return gw.broadcaster.Count() == 1 }, time.Second, 10*time.Millisecond)

	postJSON(t, srv, validBody)
	postJSON(t, srv, strings.Replace(validBody, "my order never arrived", "any update?", 1))

	first := reader.nextEvent(t)
	assert.Equal(t, conversation.EventMessage, first.Type)
	require.NotNil(t, first.Data)
	assert.Equal(t, int64(1), first.Data.ID)
	assert.Equal(t, "my order never arrived", first.Data.Content)

	second := reader.nextEvent(t)
	assert.Equal(t, int64(2), second.Data.ID)
	assert.Equal(t, "any update?", second.Data.Content)
}

func TestStream_SSEKeepalive(t *testing.T) {
	cfg := testConfig(t)
	cfg.Stream.KeepaliveInterval = 20 * time.Millisecond
	_, srv := startTestServer(t, cfg)

	_, reader := openStream(t, srv)
	assert.Equal(t, `data: {"type":"connected"}`, reader.next(t))
	assert.Equal(t, ": keepalive", reader.next(t))
}

func TestStream_SSEEndsOnShutdown(t *testing.T) {
	gw, srv := startTestServer(t, testConfig(t))

	_, reader := openStream(t, srv)
	reader.next(t) // connected

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, gw.Shutdown(ctx))

	done := make(chan struct{})
	go func() {
		for reader.scanner.Scan() {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end after shutdown")
	}
}

func TestStream_SSEDisconnectUnsubscribes(t *testing.T) {
	gw, srv := startTestServer(t, testConfig(t))

	resp, reader := openStream(t, srv)
	reader.next(t) // connected
	require.Eventually(t, func() bool { return gw.broadcaster.Count() == 1 }, time.Second, 10*time.Millisecond)

	resp.Body.Close()
	assert.Eventually(t, func() bool { return gw.broadcaster.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestStream_WebSocket(t *testing.T) {
	gw, srv := startTestServer(t, testConfig(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var ev conversation.Event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, conversation.EventConnected, ev.Type)
	assert.Nil(t, ev.Data)

	require.Eventually(t, func() bool { return gw.broadcaster.Count() == 1 }, time.Second, 10*time.Millisecond)
	postJSON(t, srv, validBody)

	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, conversation.EventMessage, ev.Type)
	require.NotNil(t, ev.Data)
	assert.Equal(t, "thread-1", ev.Data.ConversationID)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	assert.Eventually(t, func() bool { return gw.broadcaster.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestStream_WebSocketRejectsOtherOrigin(t *testing.T) {
	cfg := testConfig(t)
	cfg.CORS.AllowedOrigin = "https://support.example.com"
	_, srv := startTestServer(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", &websocket.DialOptions{HTTPHeader: header})
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
}

func TestWebsocketAcceptOptions(t *testing.T) {
	opts := websocketAcceptOptions("*")
	assert.True(t, opts.InsecureSkipVerify)

	opts = websocketAcceptOptions("https://support.example.com")
	assert.False(t, opts.InsecureSkipVerify)
	assert.Equal(t, []string{"support.example.com"}, opts.OriginPatterns)
}
