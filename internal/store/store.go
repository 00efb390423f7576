// ABOUTME: Store interface and data types for support-relay persistence
// ABOUTME: Defines Message, ThreadSummary and the append-only Store contract

package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPersistence wraps every storage-layer failure during append or query.
// Callers treat it as fatal to the request; it is never retried here.
var ErrPersistence = errors.New("persistence failure")

func wrapPersistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// Message is a single relayed chat message. Once appended it is immutable.
type Message struct {
	ID               int64     `json:"id"`
	ConversationID   string    `json:"conversationId"`
	ConversationName string    `json:"conversationName,omitempty"`
	Author           string    `json:"author"`
	AuthorID         string    `json:"authorId,omitempty"`
	AvatarURL        string    `json:"avatarUrl,omitempty"`
	Content          string    `json:"content"`
	CreatedAt        time.Time `json:"createdAt"`
	GroupParentID    string    `json:"groupParentId,omitempty"`
	GroupParentName  string    `json:"groupParentName,omitempty"`
	IsFromRespondent bool      `json:"isFromRespondent"`
}

// ThreadSummary is the read-time projection of one conversation within a scope.
// It has no lifecycle of its own and is recomputed on every query.
type ThreadSummary struct {
	ID                        string     `json:"id"`
	Name                      string     `json:"name"`
	LastMessageAt             *time.Time `json:"lastMessageAt"`
	MessageCount              int        `json:"messageCount"`
	ParentID                  string     `json:"parentId"`
	ParentName                *string    `json:"parentName"`
	OwnerName                 *string    `json:"ownerName"`
	OwnerID                   *string    `json:"ownerId"`
	LastMessageFromRespondent bool       `json:"lastMessageFromRespondent"`
	LastRespondentMessageAt   *time.Time `json:"lastRespondentMessageAt"`
	PendingCount              int        `json:"pendingCount"`
}

// ListMessagesParams selects a page of one conversation's history.
type ListMessagesParams struct {
	ConversationID string     // Required
	GroupParentID  string     // Optional: restrict to rows of this scope
	After          *time.Time // Optional: only messages created strictly after this instant
	Limit          int        // Clamped to [1, 200]
}

// Store defines the persistence contract for relayed messages.
type Store interface {
	// Append assigns the next id and durably records msg. The returned
	// message is a copy carrying the assigned id.
	Append(ctx context.Context, msg *Message) (*Message, error)

	// ListConversations aggregates every conversation in the scope.
	ListConversations(ctx context.Context, groupParentID string) ([]ThreadSummary, error)

	// ListMessages returns a conversation's messages newest first.
	ListMessages(ctx context.Context, params ListMessagesParams) ([]Message, error)

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}
