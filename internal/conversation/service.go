// ABOUTME: Ingestion service that validates payloads, appends them and broadcasts the result
// ABOUTME: Also serves scoped thread and history reads for the transport layer

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/support-relay/internal/metrics"
	"github.com/2389/support-relay/internal/store"
)

var (
	// ErrInvalidPayload means a required field was missing, blank or malformed.
	ErrInvalidPayload = errors.New("invalid message payload")

	// ErrMissingScope means the payload carried no groupParentId.
	ErrMissingScope = errors.New("missing thread parent id")
)

// Payload is an inbound message as submitted by a producer.
type Payload struct {
	Author           string `json:"author"`
	AuthorID         string `json:"authorId,omitempty"`
	AvatarURL        string `json:"avatarUrl,omitempty"`
	Content          string `json:"content"`
	CreatedAt        string `json:"createdAt"`
	ConversationID   string `json:"conversationId"`
	ConversationName string `json:"conversationName,omitempty"`
	GroupParentID    string `json:"groupParentId,omitempty"`
	GroupParentName  string `json:"groupParentName,omitempty"`
	IsFromRespondent *bool  `json:"isFromRespondent,omitempty"`
}

// IngestResult is the outcome of a successful Ingest call. Exactly one of
// Message or Ignored is set.
type IngestResult struct {
	Message *store.Message
	Ignored bool
}

// Service is the single entry point for writing messages. Every accepted
// payload is appended to the store and then published to live subscribers.
type Service struct {
	store       store.Store
	broadcaster *Broadcaster
	scope       string
	metrics     *metrics.Metrics
	logger      *slog.Logger

	// seqMu covers append and publish together so subscribers observe
	// messages in id order.
	seqMu sync.Mutex
}

// New creates a Service for the given scope. Pass nil metrics to disable
// instrumentation and nil logger for default.
func New(st store.Store, broadcaster *Broadcaster, scope string, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       st,
		broadcaster: broadcaster,
		scope:       scope,
		metrics:     m,
		logger:      logger.With("component", "ingest"),
	}
}

// Scope returns the group parent id this service accepts and reads.
func (s *Service) Scope() string {
	return s.scope
}

// Ingest validates p, appends it to the store and publishes the stored
// message. Validation failures return ErrInvalidPayload or ErrMissingScope.
// A payload for another scope is not an error: it yields Ignored with no row
// written and nothing published.
func (s *Service) Ingest(ctx context.Context, p Payload) (*IngestResult, error) {
	msg, err := s.validate(p)
	if err != nil {
		outcome := metrics.OutcomeInvalid
		if errors.Is(err, ErrMissingScope) {
			outcome = metrics.OutcomeMissingScope
		}
		s.metrics.Ingested(outcome)
		s.logger.Debug("rejected payload", "error", err, "conversation_id", p.ConversationID)
		return nil, err
	}

	if msg.GroupParentID != s.scope {
		s.metrics.Ingested(metrics.OutcomeIgnored)
		s.logger.Debug("ignored out-of-scope message",
			"group_parent_id", msg.GroupParentID,
			"conversation_id", msg.ConversationID)
		return &IngestResult{Ignored: true}, nil
	}

	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	stored, err := s.store.Append(ctx, msg)
	if err != nil {
		s.metrics.Ingested(metrics.OutcomeError)
		s.logger.Error("failed to store message",
			"error", err,
			"conversation_id", msg.ConversationID)
		return nil, err
	}

	if s.broadcaster != nil {
		s.broadcaster.Publish(stored)
	}

	s.metrics.Ingested(metrics.OutcomeStored)
	s.logger.Debug("message stored",
		"id", stored.ID,
		"conversation_id", stored.ConversationID,
		"respondent", stored.IsFromRespondent)

	return &IngestResult{Message: stored}, nil
}

// validate checks fields in order and builds the domain message. The first
// failing rule decides the error. Whitespace-only required fields count as
// missing.
func (s *Service) validate(p Payload) (*store.Message, error) {
	required := []struct {
		name  string
		value string
	}{
		{"author", p.Author},
		{"content", p.Content},
		{"createdAt", p.CreatedAt},
		{"conversationId", p.ConversationID},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return nil, fmt.Errorf("%w: %s is required", ErrInvalidPayload, field.name)
		}
	}

	createdAt, err := ParseTime(p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: createdAt: %w", ErrInvalidPayload, err)
	}

	if strings.TrimSpace(p.GroupParentID) == "" {
		return nil, ErrMissingScope
	}

	respondent := p.IsFromRespondent != nil && *p.IsFromRespondent

	return &store.Message{
		ConversationID:   p.ConversationID,
		ConversationName: p.ConversationName,
		Author:           p.Author,
		AuthorID:         p.AuthorID,
		AvatarURL:        p.AvatarURL,
		Content:          p.Content,
		CreatedAt:        createdAt,
		GroupParentID:    p.GroupParentID,
		GroupParentName:  p.GroupParentName,
		IsFromRespondent: respondent,
	}, nil
}

// ListConversations returns thread summaries for the service scope.
func (s *Service) ListConversations(ctx context.Context) ([]store.ThreadSummary, error) {
	defer s.metrics.ObserveQuery("list_conversations", time.Now())
	return s.store.ListConversations(ctx, s.scope)
}

// ListMessages returns one conversation's history within the service scope,
// newest first. limit is clamped; after, when set, is an exclusive cursor.
func (s *Service) ListMessages(ctx context.Context, conversationID string, limit int, after *time.Time) ([]store.Message, error) {
	defer s.metrics.ObserveQuery("list_messages", time.Now())
	return s.store.ListMessages(ctx, store.ListMessagesParams{
		ConversationID: conversationID,
		GroupParentID:  s.scope,
		After:          after,
		Limit:          store.ClampLimit(limit),
	})
}

// Ping reports store reachability for readiness probes.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02",
}

// ParseTime parses an ISO-8601 timestamp. Values without a zone are UTC.
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}
