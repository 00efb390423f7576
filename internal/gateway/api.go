// ABOUTME: HTTP API handlers for message ingestion and thread reads
// ABOUTME: Provides POST /message, GET /threads and GET /threads/{id}/messages

package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"html"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/support-relay/internal/conversation"
	"github.com/2389/support-relay/internal/store"
)

// maxIngestBodyBytes caps POST /message bodies.
const maxIngestBodyBytes = 1 << 20

// Error bodies returned by POST /message.
const (
	errMsgInvalidPayload = "Invalid message payload"
	errMsgMissingScope   = "Missing thread parent id"
	errMsgInternal       = "internal server error"
)

// IngestRequest is the JSON body for POST /message. The thread* and
// isSupportAgent fields are older producer names; the current names win
// when both are present. AuthorID and IsFromRespondent shadow the embedded
// payload fields so loosely typed producers can send numbers or flags.
type IngestRequest struct {
	conversation.Payload

	AuthorID         looseString `json:"authorId"`
	IsFromRespondent looseBool   `json:"isFromRespondent"`

	ThreadID         string    `json:"threadId,omitempty"`
	ThreadName       string    `json:"threadName,omitempty"`
	ThreadParentID   string    `json:"threadParentId,omitempty"`
	ThreadParentName string    `json:"threadParentName,omitempty"`
	IsSupportAgent   looseBool `json:"isSupportAgent"`
}

// looseBool decodes any JSON value by truthiness: false, null, 0 and ""
// are false, every other value is true. Null leaves the flag unset.
type looseBool struct {
	set   bool
	value bool
}

func (b *looseBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("empty flag value")
	}

	switch data[0] {
	case 'n':
		*b = looseBool{}
		return nil
	case 't':
		*b = looseBool{set: true, value: true}
	case 'f':
		*b = looseBool{set: true, value: false}
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = looseBool{set: true, value: s != ""}
	case '[', '{':
		*b = looseBool{set: true, value: true}
	default:
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return err
		}
		*b = looseBool{set: true, value: f != 0 && !math.IsNaN(f)}
	}
	return nil
}

// looseString accepts a JSON string, number or bool and keeps its text.
// Null decodes to the empty string.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("empty string value")
	}

	switch data[0] {
	case 'n':
		*s = ""
	case '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
	case '[', '{':
		return errors.New("expected a scalar value")
	default:
		*s = looseString(data)
	}
	return nil
}

// toPayload folds the legacy field names into the current payload.
func (r *IngestRequest) toPayload() conversation.Payload {
	p := r.Payload
	if p.ConversationID == "" {
		p.ConversationID = r.ThreadID
	}
	if p.ConversationName == "" {
		p.ConversationName = r.ThreadName
	}
	if p.GroupParentID == "" {
		p.GroupParentID = r.ThreadParentID
	}
	if p.GroupParentName == "" {
		p.GroupParentName = r.ThreadParentName
	}
	p.AuthorID = string(r.AuthorID)
	switch {
	case r.IsFromRespondent.set:
		p.IsFromRespondent = &r.IsFromRespondent.value
	case r.IsSupportAgent.set:
		p.IsFromRespondent = &r.IsSupportAgent.value
	}
	return p
}

// IngestResponse is the JSON response for POST /message.
type IngestResponse struct {
	ID      int64 `json:"id,omitempty"`
	Ignored bool  `json:"ignored,omitempty"`
}

// MessageResponse is one history entry for GET /threads/{id}/messages.
// ContentHTML is set only when the request asks for render=html.
type MessageResponse struct {
	store.Message
	ContentHTML string `json:"contentHtml,omitempty"`
}

// parseIngestRequest decodes the request body. Any JSON error counts as an
// invalid payload.
func parseIngestRequest(r io.Reader) (conversation.Payload, error) {
	var req IngestRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return conversation.Payload{}, conversation.ErrInvalidPayload
	}
	return req.toPayload(), nil
}

// handleIngest handles POST /message.
func (g *Gateway) handleIngest(w http.ResponseWriter, r *http.Request) {
	payload, err := parseIngestRequest(http.MaxBytesReader(w, r.Body, maxIngestBodyBytes))
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, errMsgInvalidPayload)
		return
	}

	result, err := g.conversation.Ingest(r.Context(), payload)
	switch {
	case errors.Is(err, conversation.ErrInvalidPayload):
		g.sendJSONError(w, http.StatusBadRequest, errMsgInvalidPayload)
		return
	case errors.Is(err, conversation.ErrMissingScope):
		g.sendJSONError(w, http.StatusBadRequest, errMsgMissingScope)
		return
	case err != nil:
		g.logger.Error("failed to ingest message", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, errMsgInternal)
		return
	}

	if result.Ignored {
		g.sendJSON(w, http.StatusAccepted, IngestResponse{Ignored: true})
		return
	}
	g.sendJSON(w, http.StatusCreated, IngestResponse{ID: result.Message.ID})
}

// handleListThreads handles GET /threads.
func (g *Gateway) handleListThreads(w http.ResponseWriter, r *http.Request) {
	summaries, err := g.conversation.ListConversations(r.Context())
	if err != nil {
		g.logger.Error("failed to list threads", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, errMsgInternal)
		return
	}
	if summaries == nil {
		summaries = []store.ThreadSummary{}
	}
	g.sendJSON(w, http.StatusOK, summaries)
}

// handleThreadMessages handles GET /threads/{id}/messages.
// Query parameters: limit (1-200, default 50), after (ISO-8601, exclusive)
// and render=html.
func (g *Gateway) handleThreadMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	query := r.URL.Query()

	var after *time.Time
	if raw := query.Get("after"); raw != "" {
		t, err := conversation.ParseTime(raw)
		if err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "invalid after timestamp")
			return
		}
		after = &t
	}

	messages, err := g.conversation.ListMessages(r.Context(), conversationID, store.ParseLimit(query.Get("limit")), after)
	if err != nil {
		g.logger.Error("failed to list messages", "error", err, "conversation_id", conversationID)
		g.sendJSONError(w, http.StatusInternalServerError, errMsgInternal)
		return
	}

	renderHTML := query.Get("render") == "html"
	resp := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		item := MessageResponse{Message: msg}
		if renderHTML {
			item.ContentHTML = g.renderContent(msg)
		}
		resp = append(resp, item)
	}
	g.sendJSON(w, http.StatusOK, resp)
}

// renderContent renders message markdown, falling back to escaped text.
func (g *Gateway) renderContent(msg store.Message) string {
	out, err := g.renderer.Render(msg.Content)
	if err != nil {
		g.logger.Warn("failed to render markdown", "error", err, "message_id", msg.ID)
		return "<p>" + html.EscapeString(msg.Content) + "</p>"
	}
	return out
}

// sendJSON writes v as a JSON response with the given status.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"error": message})
}
