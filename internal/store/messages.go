// ABOUTME: Message append, history paging and thread aggregation queries
// ABOUTME: Thread summaries are computed per request from raw message rows

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// timestampLayout is fixed-width UTC so that text comparison in SQL orders
// timestamps chronologically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		// Unparsable legacy rows are left as written by older revisions
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// Append persists a message and returns it with the assigned id.
func (s *SQLiteStore) Append(ctx context.Context, msg *Message) (*Message, error) {
	query := `
		INSERT INTO messages (
			conversation_id, conversation_name, author, author_id, avatar_url,
			content, created_at, group_parent_id, group_parent_name, is_from_respondent
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	respondent := 0
	if msg.IsFromRespondent {
		respondent = 1
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, query,
		msg.ConversationID,
		nullString(msg.ConversationName),
		msg.Author,
		nullString(msg.AuthorID),
		nullString(msg.AvatarURL),
		msg.Content,
		formatTimestamp(msg.CreatedAt),
		nullString(msg.GroupParentID),
		nullString(msg.GroupParentName),
		respondent,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: inserting message: %w", ErrPersistence, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: reading message id: %w", ErrPersistence, err)
	}

	stored := *msg
	stored.ID = id
	stored.CreatedAt = msg.CreatedAt.UTC()

	s.logger.Debug("appended message",
		"id", id,
		"conversation_id", msg.ConversationID,
		"group_parent_id", msg.GroupParentID,
	)
	return &stored, nil
}

// ListMessages returns messages for a conversation, newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, params ListMessagesParams) ([]Message, error) {
	query := `
		SELECT id, conversation_id, conversation_name, author, author_id, avatar_url,
		       content, created_at, group_parent_id, group_parent_name, is_from_respondent
		FROM messages
		WHERE conversation_id = ?
	`
	args := []any{params.ConversationID}

	if params.GroupParentID != "" {
		query += " AND group_parent_id = ?"
		args = append(args, params.GroupParentID)
	}

	if params.After != nil {
		query += " AND created_at > ?"
		args = append(args, formatTimestamp(*params.After))
	}

	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, ClampLimit(params.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying messages: %w", ErrPersistence, err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating messages: %w", ErrPersistence, err)
	}

	return messages, nil
}

func scanMessage(rows *sql.Rows) (Message, error) {
	var msg Message
	var name, authorID, avatar, parentID, parentName sql.NullString
	var createdAt string
	var respondent int

	err := rows.Scan(
		&msg.ID,
		&msg.ConversationID,
		&name,
		&msg.Author,
		&authorID,
		&avatar,
		&msg.Content,
		&createdAt,
		&parentID,
		&parentName,
		&respondent,
	)
	if err != nil {
		return Message{}, fmt.Errorf("%w: scanning message: %w", ErrPersistence, err)
	}

	msg.CreatedAt, err = parseTimestamp(createdAt)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	msg.ConversationName = name.String
	msg.AuthorID = authorID.String
	msg.AvatarURL = avatar.String
	msg.GroupParentID = parentID.String
	msg.GroupParentName = parentName.String
	msg.IsFromRespondent = respondent != 0
	return msg, nil
}

// listConversationsQuery aggregates one scope in a single pass over its rows.
// Every correlated subquery reads from the scoped CTE, so rows belonging to
// another group parent never influence a summary.
const listConversationsQuery = `
	WITH scoped AS (
		SELECT id, conversation_id, conversation_name, author, author_id, created_at,
		       group_parent_name, COALESCE(is_from_respondent, 0) AS respondent
		FROM messages
		WHERE group_parent_id = ?
	),
	stats AS (
		SELECT conversation_id,
		       COUNT(*) AS message_count,
		       MAX(created_at) AS last_message_at,
		       MAX(CASE WHEN respondent = 1 THEN created_at END) AS last_respondent_at
		FROM scoped
		GROUP BY conversation_id
	)
	SELECT
		st.conversation_id,
		(SELECT n.conversation_name FROM scoped n
		  WHERE n.conversation_id = st.conversation_id AND COALESCE(n.conversation_name, '') <> ''
		  ORDER BY n.id DESC LIMIT 1) AS name,
		st.last_message_at,
		st.message_count,
		(SELECT p.group_parent_name FROM scoped p
		  WHERE p.conversation_id = st.conversation_id AND COALESCE(p.group_parent_name, '') <> ''
		  ORDER BY p.id DESC LIMIT 1) AS parent_name,
		(SELECT f.author FROM scoped f
		  WHERE f.conversation_id = st.conversation_id
		  ORDER BY f.created_at ASC, f.id ASC LIMIT 1) AS owner_name,
		(SELECT f.author_id FROM scoped f
		  WHERE f.conversation_id = st.conversation_id
		  ORDER BY f.created_at ASC, f.id ASC LIMIT 1) AS owner_id,
		COALESCE((SELECT MAX(l.respondent) FROM scoped l
		  WHERE l.conversation_id = st.conversation_id
		    AND l.created_at = st.last_message_at), 0) AS last_from_respondent,
		st.last_respondent_at,
		(SELECT COUNT(*) FROM scoped c
		  WHERE c.conversation_id = st.conversation_id
		    AND c.respondent = 0
		    AND (st.last_respondent_at IS NULL OR c.created_at > st.last_respondent_at)) AS pending_count
	FROM stats st
	ORDER BY last_from_respondent ASC,
	         st.last_message_at IS NULL,
	         st.last_message_at DESC,
	         st.conversation_id ASC
`

// ListConversations returns a summary for every conversation in the scope,
// unanswered conversations first and most recent activity first within that.
func (s *SQLiteStore) ListConversations(ctx context.Context, groupParentID string) ([]ThreadSummary, error) {
	rows, err := s.db.QueryContext(ctx, listConversationsQuery, groupParentID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying conversations: %w", ErrPersistence, err)
	}
	defer rows.Close()

	summaries := []ThreadSummary{}
	for rows.Next() {
		var (
			summary                      ThreadSummary
			name, parentName             sql.NullString
			ownerName, ownerID           sql.NullString
			lastMessageAt, lastRespondAt sql.NullString
			lastFromRespondent           int
		)

		err := rows.Scan(
			&summary.ID,
			&name,
			&lastMessageAt,
			&summary.MessageCount,
			&parentName,
			&ownerName,
			&ownerID,
			&lastFromRespondent,
			&lastRespondAt,
			&summary.PendingCount,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning conversation: %w", ErrPersistence, err)
		}

		summary.Name = summary.ID
		if name.Valid && name.String != "" {
			summary.Name = name.String
		}
		summary.ParentID = groupParentID
		summary.ParentName = nullableString(parentName)
		summary.OwnerName = nullableString(ownerName)
		summary.OwnerID = nullableString(ownerID)
		summary.LastMessageFromRespondent = lastFromRespondent != 0

		if summary.LastMessageAt, err = nullableTimestamp(lastMessageAt); err != nil {
			return nil, err
		}
		if summary.LastRespondentMessageAt, err = nullableTimestamp(lastRespondAt); err != nil {
			return nil, err
		}

		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating conversations: %w", ErrPersistence, err)
	}

	return summaries, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	v := ns.String
	return &v
}

func nullableTimestamp(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTimestamp(ns.String)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return &t, nil
}
