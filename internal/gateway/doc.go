// Package gateway orchestrates the support-relay server components.
//
// # Overview
//
// The gateway owns the store, the live-event broadcaster and the ingestion
// service, and exposes them over HTTP. A gRPC listener carries the standard
// health service for orchestrators that probe over gRPC.
//
// # HTTP API
//
//	POST /message                 ingest one message
//	GET  /threads                 thread summaries for the configured scope
//	GET  /threads/{id}/messages   history, newest first
//	GET  /stream                  Server-Sent Events
//	GET  /ws                      WebSocket carrying the same events
//	GET  /health                  liveness
//	GET  /health/ready            readiness (store ping)
//	GET  /metrics                 Prometheus, when enabled
//
// POST /message answers:
//
//	201 {"id": 42}
//	202 {"ignored": true}                        other scope
//	400 {"error": "Invalid message payload"}
//	400 {"error": "Missing thread parent id"}
//	500 {"error": "internal server error"}
//
// Older producers may send threadId, threadName, threadParentId,
// threadParentName and isSupportAgent; they map onto the conversation and
// group parent fields.
//
// History accepts limit (1-200, default 50), after (ISO-8601, exclusive) and
// render=html, which adds a contentHtml field rendered with goldmark.
//
// # Live Events
//
// Both /stream and /ws deliver JSON events:
//
//	{"type":"connected"}
//	{"type":"message","data":{...}}
//
// SSE frames are `data: <json>` followed by a blank line. A `: keepalive`
// comment is written every stream.keepalive_interval. WebSocket connections
// are push-only and receive pings on the same interval.
//
// # Listeners
//
// With tailscale.enabled the gateway joins the tailnet via tsnet and listens
// on :80 (or :443 with https or funnel) for HTTP and :50051 for gRPC.
// Otherwise it binds server.http_addr and, when set, server.grpc_addr.
//
// # Shutdown
//
// Shutdown closes every subscription, drains HTTP, stops gRPC (forcing a
// stop when the context expires), closes the tsnet node and finally the store.
package gateway
