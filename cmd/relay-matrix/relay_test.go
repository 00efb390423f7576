// ABOUTME: Tests for the support-relay HTTP client
// ABOUTME: Uses httptest servers to cover created, ignored, rejected and failing responses

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/support-relay/internal/conversation"
)

func relayServer(t *testing.T, status int, body string, seen *conversation.Payload) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/message", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRelayClient_Created(t *testing.T) {
	var got conversation.Payload
	srv := relayServer(t, http.StatusCreated, `{"id":42}`, &got)

	client := NewRelayClient(srv.URL+"/", time.Second)
	res, err := client.Post(context.Background(), conversation.Payload{
		Author:         "alice",
		Content:        "hi",
		CreatedAt:      "2025-03-01T12:00:00Z",
		ConversationID: "$root",
		GroupParentID:  "!room:example.org",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.ID)
	assert.False(t, res.Ignored)
	assert.Equal(t, "$root", got.ConversationID)
	assert.Equal(t, "!room:example.org", got.GroupParentID)
}

func TestRelayClient_Ignored(t *testing.T) {
	srv := relayServer(t, http.StatusAccepted, `{"ignored":true}`, nil)

	res, err := NewRelayClient(srv.URL, time.Second).Post(context.Background(), conversation.Payload{})
	require.NoError(t, err)
	assert.True(t, res.Ignored)
}

func TestRelayClient_Rejected(t *testing.T) {
	srv := relayServer(t, http.StatusBadRequest, `{"error":"Missing thread parent id"}`, nil)

	_, err := NewRelayClient(srv.URL, time.Second).Post(context.Background(), conversation.Payload{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "Missing thread parent id")
}

func TestRelayClient_ServerError(t *testing.T) {
	srv := relayServer(t, http.StatusInternalServerError, `{"error":"internal server error"}`, nil)

	_, err := NewRelayClient(srv.URL, time.Second).Post(context.Background(), conversation.Payload{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "500")
}

func TestRelayClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewRelayClient(url, time.Second).Post(context.Background(), conversation.Payload{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
}
