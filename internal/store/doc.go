// Package store provides the append-only message store for support-relay.
//
// # Data Model
//
//   - Message: one relayed chat message. The id is assigned at append time and
//     strictly increases with insertion order. CreatedAt is supplied by the
//     producer and is not guaranteed to follow id order.
//   - ThreadSummary: a read-time projection of one conversation within a
//     group parent scope. It is never stored.
//
// # Aggregation
//
// ListConversations recomputes every summary from raw rows of the requested
// scope:
//
//  1. LastRespondentMessageAt is the newest respondent row, if any.
//  2. PendingCount counts non-respondent rows newer than that instant, or all
//     of them when no respondent has replied.
//  3. LastMessageFromRespondent is true when any row tied at the newest
//     timestamp is a respondent row.
//  4. OwnerName/OwnerID come from the oldest row, lowest id on ties.
//
// Results are ordered unanswered first, then by most recent activity.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// Appends are serialized by a store-level mutex. Reads use the connection pool
// and are never blocked by it.
//
// # Error Handling
//
// Every storage failure is wrapped in ErrPersistence:
//
//	if errors.Is(err, store.ErrPersistence) { ... }
//
// # Testing
//
// Use NewMockStore() for unit tests of higher layers. Use NewSQLiteStore with a
// path under t.TempDir() for integration tests against real SQLite.
package store
