// ABOUTME: Live event delivery over Server-Sent Events and WebSocket
// ABOUTME: Each connection holds one broadcaster subscription until the client leaves

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/2389/support-relay/internal/config"
	"github.com/2389/support-relay/internal/conversation"
)

// wsWriteTimeout bounds a single WebSocket frame write.
const wsWriteTimeout = 10 * time.Second

// handleStream handles GET /stream. It writes one `data:` frame per event,
// starting with the connected event, and a comment line every keepalive
// interval.
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sub := g.broadcaster.Subscribe(ctx)
	defer g.broadcaster.Unsubscribe(sub.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	g.logger.Debug("sse subscriber connected", "subscription_id", sub.ID)

	keepalive, stop := g.keepaliveTicker()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := g.writeSSEEvent(w, ev); err != nil {
				g.logger.Debug("sse write failed", "error", err, "subscription_id", sub.ID)
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes ev as a single `data:` frame.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, ev *conversation.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return nil
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// keepaliveTicker returns a channel that fires every keepalive interval. A
// zero interval disables keepalives and the channel never fires.
func (g *Gateway) keepaliveTicker() (<-chan time.Time, func()) {
	interval := g.config.Stream.KeepaliveInterval
	if interval <= 0 {
		return nil, func() {}
	}
	ticker := time.NewTicker(interval)
	return ticker.C, ticker.Stop
}

// handleWebSocket handles GET /ws. The connection is push-only: inbound
// frames are discarded and only control frames are processed.
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, websocketAcceptOptions(g.config.AllowedOrigin()))
	if err != nil {
		g.logger.Debug("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	sub := g.broadcaster.Subscribe(ctx)
	defer g.broadcaster.Unsubscribe(sub.ID)

	g.logger.Debug("websocket subscriber connected", "subscription_id", sub.ID)

	keepalive, stop := g.keepaliveTicker()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive:
			pingCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		case ev, ok := <-sub.Events:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "relay shutting down")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(writeCtx, conn, ev)
			cancel()
			if err != nil {
				g.logger.Debug("websocket write failed", "error", err, "subscription_id", sub.ID)
				return
			}
		}
	}
}

// websocketAcceptOptions maps the CORS origin onto the WebSocket origin
// check. "*" accepts any origin.
func websocketAcceptOptions(allowedOrigin string) *websocket.AcceptOptions {
	if allowedOrigin == config.DefaultAllowedOrigin {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	host := allowedOrigin
	if u, err := url.Parse(allowedOrigin); err == nil && u.Host != "" {
		host = u.Host
	}
	return &websocket.AcceptOptions{OriginPatterns: []string{host}}
}
