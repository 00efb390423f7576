// ABOUTME: HTTP client for the support-relay ingestion endpoint
// ABOUTME: POSTs message payloads and decodes created, ignored and rejected responses

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/2389/support-relay/internal/conversation"
)

// ErrRejected means the relay refused the payload with a 4xx status.
// Resending the same payload cannot succeed.
var ErrRejected = errors.New("relay rejected message")

// PostResult is the relay's answer to an accepted POST /message.
type PostResult struct {
	ID      int64 `json:"id"`
	Ignored bool  `json:"ignored"`
}

// RelayClient communicates with the support-relay HTTP API.
type RelayClient struct {
	baseURL string
	client  *http.Client
}

// NewRelayClient creates a client for the relay at baseURL.
func NewRelayClient(baseURL string, timeout time.Duration) *RelayClient {
	return &RelayClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Post submits p to POST /message.
func (c *RelayClient) Post(ctx context.Context, p conversation.Payload) (*PostResult, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/message", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusAccepted:
		var result PostResult
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, fmt.Errorf("decoding response: %w", err)
		}
		return &result, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("%w: %d %s", ErrRejected, resp.StatusCode, errorMessage(respBody))
	default:
		return nil, fmt.Errorf("relay returned %d: %s", resp.StatusCode, errorMessage(respBody))
	}
}

// errorMessage extracts {"error": "..."} or falls back to the raw body.
func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
