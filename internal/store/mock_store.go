// ABOUTME: Mock Store implementation for testing
// ABOUTME: Keeps messages in memory and aggregates threads in a single Go pass

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
// AppendErr and QueryErr, when set, are returned wrapped in ErrPersistence.
type MockStore struct {
	mu       sync.RWMutex
	messages []Message
	nextID   int64

	AppendErr error
	QueryErr  error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{nextID: 1}
}

// Append stores a copy of msg with the next id.
func (m *MockStore) Append(ctx context.Context, msg *Message) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AppendErr != nil {
		return nil, wrapPersistence("inserting message", m.AppendErr)
	}

	stored := *msg
	stored.ID = m.nextID
	stored.CreatedAt = msg.CreatedAt.UTC()
	m.nextID++
	m.messages = append(m.messages, stored)

	out := stored
	return &out, nil
}

// Len returns the number of stored messages.
func (m *MockStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

// ListMessages returns a conversation's messages newest first.
func (m *MockStore) ListMessages(ctx context.Context, params ListMessagesParams) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.QueryErr != nil {
		return nil, wrapPersistence("querying messages", m.QueryErr)
	}

	out := []Message{}
	for _, msg := range m.messages {
		if msg.ConversationID != params.ConversationID {
			continue
		}
		if params.GroupParentID != "" && msg.GroupParentID != params.GroupParentID {
			continue
		}
		if params.After != nil && !msg.CreatedAt.After(*params.After) {
			continue
		}
		out = append(out, msg)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	if limit := ClampLimit(params.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// threadAccumulator collects per-conversation state while scanning rows in id order.
type threadAccumulator struct {
	summary     ThreadSummary
	first       *Message
	lastAt      time.Time
	lastFromRsp bool
	respondAt   *time.Time
	customerAts []time.Time
}

// ListConversations aggregates the scope with the same rules as SQLiteStore.
func (m *MockStore) ListConversations(ctx context.Context, groupParentID string) ([]ThreadSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.QueryErr != nil {
		return nil, wrapPersistence("querying conversations", m.QueryErr)
	}

	byID := make(map[string]*threadAccumulator)
	for i := range m.messages {
		msg := &m.messages[i]
		if msg.GroupParentID != groupParentID {
			continue
		}

		acc, ok := byID[msg.ConversationID]
		if !ok {
			acc = &threadAccumulator{summary: ThreadSummary{ID: msg.ConversationID, ParentID: groupParentID}}
			byID[msg.ConversationID] = acc
		}
		acc.summary.MessageCount++

		// Rows are visited in id order, so later non-empty labels win
		if msg.ConversationName != "" {
			acc.summary.Name = msg.ConversationName
		}
		if msg.GroupParentName != "" {
			name := msg.GroupParentName
			acc.summary.ParentName = &name
		}

		if acc.first == nil || msg.CreatedAt.Before(acc.first.CreatedAt) {
			acc.first = msg
		}

		switch {
		case acc.summary.LastMessageAt == nil || msg.CreatedAt.After(acc.lastAt):
			acc.lastAt = msg.CreatedAt
			acc.lastFromRsp = msg.IsFromRespondent
			at := msg.CreatedAt
			acc.summary.LastMessageAt = &at
		case msg.CreatedAt.Equal(acc.lastAt) && msg.IsFromRespondent:
			acc.lastFromRsp = true
		}

		if msg.IsFromRespondent {
			if acc.respondAt == nil || msg.CreatedAt.After(*acc.respondAt) {
				at := msg.CreatedAt
				acc.respondAt = &at
			}
		} else {
			acc.customerAts = append(acc.customerAts, msg.CreatedAt)
		}
	}

	summaries := make([]ThreadSummary, 0, len(byID))
	for _, acc := range byID {
		s := acc.summary
		if s.Name == "" {
			s.Name = s.ID
		}
		if acc.first != nil {
			s.OwnerName = optional(acc.first.Author)
			s.OwnerID = optional(acc.first.AuthorID)
		}
		s.LastMessageFromRespondent = acc.lastFromRsp
		s.LastRespondentMessageAt = acc.respondAt
		for _, at := range acc.customerAts {
			if acc.respondAt == nil || at.After(*acc.respondAt) {
				s.PendingCount++
			}
		}
		summaries = append(summaries, s)
	}

	SortSummaries(summaries)
	return summaries, nil
}

// SortSummaries orders summaries the way ListConversations returns them.
func SortSummaries(summaries []ThreadSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if a.LastMessageFromRespondent != b.LastMessageFromRespondent {
			return !a.LastMessageFromRespondent
		}
		if (a.LastMessageAt == nil) != (b.LastMessageAt == nil) {
			return a.LastMessageAt != nil
		}
		if a.LastMessageAt != nil && !a.LastMessageAt.Equal(*b.LastMessageAt) {
			return a.LastMessageAt.After(*b.LastMessageAt)
		}
		return a.ID < b.ID
	})
}

// Ping always succeeds unless QueryErr is set.
func (m *MockStore) Ping(ctx context.Context) error {
	if m.QueryErr != nil {
		return wrapPersistence("ping", m.QueryErr)
	}
	return nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
