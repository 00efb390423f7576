// Package config handles configuration loading for support-relay.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from RELAY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/support-relay/relay.yaml
//  3. ~/.config/support-relay/relay.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	scope:
//	  group_parent_id: "${DISCORD_THREAD_PARENT_ID}"
//
// Unset variables expand to the empty string.
//
// # Overrides
//
// These variables replace file values after expansion:
//
//	RELAY_DB_PATH          database.path
//	RELAY_GROUP_PARENT_ID  scope.group_parent_id
//	RELAY_HTTP_ADDR        server.http_addr
//
// # Configuration Sections
//
//	server:
//	  http_addr: "localhost:3001"
//	  grpc_addr: "localhost:50051"   # empty disables gRPC health
//	  shutdown_timeout: "10s"
//
//	tailscale:
//	  enabled: false
//	  hostname: "support-relay"
//	  auth_key: "${TS_AUTHKEY}"
//	  ephemeral: false
//	  https: false    # tailnet-only TLS on :443
//	  funnel: false   # public HTTPS on :443
//
//	database:
//	  path: "~/.local/share/support-relay/relay.db"
//
//	scope:
//	  group_parent_id: "1234567890"  # required
//
//	cors:
//	  allowed_origin: "https://support.example.com"  # default "*"
//
//	stream:
//	  buffer_size: 64
//	  keepalive_interval: "25s"
//
//	logging:
//	  level: "info"     # debug, info, warn, error
//	  format: "text"    # text or json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax (ns, us, ms, s, m, h).
package config
