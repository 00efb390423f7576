// Package conversation implements message ingestion and live fan-out.
//
// # Overview
//
// The conversation package sits between the transports and the message
// store. Producers submit payloads through Service.Ingest; viewers read
// thread summaries and history through the Service and follow new messages
// through a Broadcaster subscription.
//
//	b := conversation.NewBroadcaster(64, metrics, logger)
//	svc := conversation.New(store, b, "forum-1", metrics, logger)
//
// # Ingestion
//
// Validation runs in a fixed order and the first failure wins:
//
//  1. author, content, createdAt and conversationId must be non-blank, and
//     createdAt must parse as ISO-8601 (ErrInvalidPayload)
//  2. groupParentId must be present (ErrMissingScope)
//  3. groupParentId must equal the configured scope, otherwise the payload
//     is acknowledged as ignored with no side effect
//
// Accepted payloads are appended to the store and then published. Append and
// publish happen under one lock, so every subscriber observes messages in id
// order. A persistence failure publishes nothing.
//
// # Broadcasting
//
// Subscribe queues a connected event before the subscriber becomes visible to
// Publish, so it is always the first event received. Publish never blocks: a
// subscriber with a full buffer misses that event and remains subscribed.
//
// Events have a fixed JSON shape:
//
//	{"type":"connected"}
//	{"type":"message","data":{...stored message...}}
//
// A subscription ends when its context is cancelled, when Unsubscribe is
// called, or when the Broadcaster is closed. The Events channel is closed in
// every case.
package conversation
