// ABOUTME: Matrix listener core for relay-matrix
// ABOUTME: Maps room messages to ingestion payloads and forwards them to support-relay

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/support-relay/internal/conversation"
	"github.com/2389/support-relay/internal/dedupe"
)

// networkTimeout is the timeout for Matrix API calls made while handling an event.
const networkTimeout = 10 * time.Second

// messagePoster delivers payloads to the relay.
type messagePoster interface {
	Post(ctx context.Context, p conversation.Payload) (*PostResult, error)
}

// threadNameStore remembers thread root names.
type threadNameStore interface {
	SaveThreadName(ctx context.Context, roomID id.RoomID, rootID id.EventID, name string) error
	LoadThreadName(ctx context.Context, roomID id.RoomID, rootID id.EventID) (string, bool, error)
}

// eventFetcher loads a single room event.
type eventFetcher interface {
	GetEvent(ctx context.Context, roomID id.RoomID, eventID id.EventID) (*event.Event, error)
}

// Bridge forwards Matrix room messages to support-relay.
type Bridge struct {
	config *Config
	matrix *mautrix.Client
	state  *StateStore
	relay  messagePoster
	names  threadNameStore
	fetch  eventFetcher
	seen   *dedupe.Set
	logger *slog.Logger

	// skipBefore drops backlog delivered by the first sync of a fresh state file.
	skipBefore time.Time
}

// NewBridge creates a new Matrix listener.
func NewBridge(cfg *Config, state *StateStore, logger *slog.Logger) (*Bridge, error) {
	client, err := mautrix.NewClient(cfg.Matrix.Homeserver, id.UserID(cfg.Matrix.UserID), cfg.Matrix.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	client.Store = state

	return &Bridge{
		config: cfg,
		matrix: client,
		state:  state,
		relay:  NewRelayClient(cfg.Relay.URL, cfg.Relay.Timeout),
		names:  state,
		fetch:  client,
		seen:   dedupe.New(defaultDedupeTTL, defaultDedupeSize),
		logger: logger,
	}, nil
}

// Login authenticates with username and password when no access token is
// configured.
func (b *Bridge) Login(ctx context.Context) error {
	if b.config.Matrix.AccessToken != "" {
		return nil
	}
	resp, err := b.matrix.Login(ctx, &mautrix.ReqLogin{
		Type: mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{
			Type: mautrix.IdentifierTypeUser,
			User: b.config.Matrix.Username,
		},
		Password:                 b.config.Matrix.Password,
		InitialDeviceDisplayName: "relay-matrix",
		StoreCredentials:         true,
	})
	if err != nil {
		return err
	}
	b.logger.Info("logged in to matrix", "user_id", resp.UserID.String(), "device_id", resp.DeviceID.String())
	return nil
}

// UserID returns the Matrix user the bridge listens as.
func (b *Bridge) UserID() id.UserID {
	return b.matrix.UserID
}

// Run syncs with the homeserver and blocks until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.seen.Close()

	b.logger.Info("starting matrix listener",
		"homeserver", b.config.Matrix.Homeserver,
		"user_id", b.matrix.UserID.String(),
		"relay", b.config.Relay.URL,
	)

	nextBatch, err := b.state.LoadNextBatch(ctx, b.matrix.UserID)
	if err != nil {
		return fmt.Errorf("loading sync position: %w", err)
	}
	if nextBatch == "" {
		b.skipBefore = time.Now()
		b.logger.Info("no saved sync position, skipping room backlog")
	}

	syncer, ok := b.matrix.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", b.matrix.Syncer)
	}
	syncer.OnEventType(event.EventMessage, b.handleMessageEvent)

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- b.matrix.SyncWithContext(ctx)
	}()

	select {
	case <-ctx.Done():
		b.logger.Info("shutting down matrix listener")
		return nil
	case err := <-syncErr:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

// handleMessageEvent filters one room message and forwards it.
func (b *Bridge) handleMessageEvent(ctx context.Context, evt *event.Event) {
	if evt.Sender == b.matrix.UserID {
		return
	}

	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || !relayable(content) {
		return
	}

	roomID := evt.RoomID.String()
	if !b.config.IsRoomAllowed(roomID) {
		b.logger.Debug("ignoring message from non-allowed room", "room", roomID)
		return
	}

	if !b.skipBefore.IsZero() && time.UnixMilli(evt.Timestamp).Before(b.skipBefore) {
		return
	}

	if b.seen.Seen(evt.ID.String()) {
		b.logger.Debug("dropping redelivered event", "event_id", evt.ID.String())
		return
	}

	b.forward(ctx, evt, content)
}

// forward builds the payload and posts it. Transient failures forget the
// event id so a redelivery is attempted again.
func (b *Bridge) forward(ctx context.Context, evt *event.Event, content *event.MessageEventContent) {
	rootID := threadRoot(evt, content)
	payload := payloadFromEvent(b.config, evt, content, rootID, b.threadName(ctx, evt, content, rootID))

	result, err := b.relay.Post(ctx, payload)
	switch {
	case errors.Is(err, ErrRejected):
		b.logger.Warn("relay rejected message", "event_id", evt.ID.String(), "error", err)
	case err != nil:
		b.seen.Forget(evt.ID.String())
		b.logger.Error("failed to forward message", "event_id", evt.ID.String(), "error", err)
	case result.Ignored:
		b.logger.Debug("relay ignored message", "event_id", evt.ID.String(), "room", evt.RoomID.String())
	default:
		b.logger.Info("forwarded message",
			"event_id", evt.ID.String(),
			"message_id", result.ID,
			"conversation_id", payload.ConversationID,
			"content", truncate(content.Body, 50),
		)
	}
}

// threadName returns the display name for rootID, recording it when evt is
// the root itself and fetching the root event otherwise.
func (b *Bridge) threadName(ctx context.Context, evt *event.Event, content *event.MessageEventContent, rootID id.EventID) string {
	limit := b.config.Bridge.ThreadNameLength

	if rootID == evt.ID {
		name := truncate(firstLine(content.Body), limit)
		if err := b.names.SaveThreadName(ctx, evt.RoomID, rootID, name); err != nil {
			b.logger.Warn("failed to save thread name", "error", err)
		}
		return name
	}

	if name, ok, err := b.names.LoadThreadName(ctx, evt.RoomID, rootID); err != nil {
		b.logger.Warn("failed to load thread name", "error", err)
	} else if ok {
		return name
	}

	fetchCtx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	root, err := b.fetch.GetEvent(fetchCtx, evt.RoomID, rootID)
	if err != nil {
		b.logger.Debug("failed to fetch thread root", "root_id", rootID.String(), "error", err)
		return ""
	}
	if root.Content.Parsed == nil {
		if err := root.Content.ParseRaw(root.Type); err != nil {
			return ""
		}
	}
	rootContent, ok := root.Content.Parsed.(*event.MessageEventContent)
	if !ok {
		return ""
	}

	name := truncate(firstLine(rootContent.Body), limit)
	if err := b.names.SaveThreadName(ctx, evt.RoomID, rootID, name); err != nil {
		b.logger.Warn("failed to save thread name", "error", err)
	}
	return name
}

// relayable reports whether content is a new text message. Edits are
// skipped since relayed messages are immutable.
func relayable(content *event.MessageEventContent) bool {
	if content.MsgType != event.MsgText && content.MsgType != event.MsgNotice {
		return false
	}
	if content.RelatesTo != nil && content.RelatesTo.Type == event.RelReplace {
		return false
	}
	return strings.TrimSpace(content.Body) != ""
}

// threadRoot returns the thread root event id, or the event's own id when it
// starts a conversation.
func threadRoot(evt *event.Event, content *event.MessageEventContent) id.EventID {
	if rel := content.RelatesTo; rel != nil && rel.Type == event.RelThread && rel.EventID != "" {
		return rel.EventID
	}
	return evt.ID
}

// payloadFromEvent maps a Matrix message onto an ingestion payload.
func payloadFromEvent(cfg *Config, evt *event.Event, content *event.MessageEventContent, rootID id.EventID, threadName string) conversation.Payload {
	author, _, err := evt.Sender.Parse()
	if err != nil || author == "" {
		author = evt.Sender.String()
	}
	respondent := cfg.IsRespondent(evt.Sender.String())

	return conversation.Payload{
		Author:           author,
		AuthorID:         evt.Sender.String(),
		Content:          content.Body,
		CreatedAt:        time.UnixMilli(evt.Timestamp).UTC().Format(time.RFC3339Nano),
		ConversationID:   rootID.String(),
		ConversationName: threadName,
		GroupParentID:    evt.RoomID.String(),
		GroupParentName:  cfg.Bridge.RoomNames[evt.RoomID.String()],
		IsFromRespondent: &respondent,
	}
}

// firstLine returns s up to its first newline.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

// truncate shortens a string to the given max rune count, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
