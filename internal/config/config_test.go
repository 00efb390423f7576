// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, overrides, defaults and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "relay.yaml")

	configContent := `
server:
  http_addr: "0.0.0.0:8080"
  grpc_addr: "0.0.0.0:50051"
  shutdown_timeout: "5s"

database:
  path: "./relay.db"

scope:
  group_parent_id: "1234567890"

cors:
  allowed_origin: "https://support.example.com"

stream:
  buffer_size: 128
  keepalive_interval: "15s"

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/internal/metrics"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Server.GRPCAddr != "0.0.0.0:50051" {
		t.Errorf("Server.GRPCAddr = %q, want %q", cfg.Server.GRPCAddr, "0.0.0.0:50051")
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want %v", cfg.Server.ShutdownTimeout, 5*time.Second)
	}
	if cfg.Database.Path != "./relay.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./relay.db")
	}
	if cfg.Scope.GroupParentID != "1234567890" {
		t.Errorf("Scope.GroupParentID = %q, want %q", cfg.Scope.GroupParentID, "1234567890")
	}
	if got := cfg.AllowedOrigin(); got != "https://support.example.com" {
		t.Errorf("AllowedOrigin() = %q, want %q", got, "https://support.example.com")
	}
	if cfg.Stream.BufferSize != 128 {
		t.Errorf("Stream.BufferSize = %d, want 128", cfg.Stream.BufferSize)
	}
	if cfg.Stream.KeepaliveInterval != 15*time.Second {
		t.Errorf("Stream.KeepaliveInterval = %v, want %v", cfg.Stream.KeepaliveInterval, 15*time.Second)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/internal/metrics" {
		t.Errorf("Metrics = %+v, want enabled at /internal/metrics", cfg.Metrics)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  http_addr: "localhost:3001"
database:
  path: "relay.db"
scope:
  group_parent_id: "forum-1"
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Stream.BufferSize != DefaultBufferSize {
		t.Errorf("Stream.BufferSize = %d, want %d", cfg.Stream.BufferSize, DefaultBufferSize)
	}
	if cfg.Stream.KeepaliveInterval != DefaultKeepaliveInterval {
		t.Errorf("Stream.KeepaliveInterval = %v, want %v", cfg.Stream.KeepaliveInterval, DefaultKeepaliveInterval)
	}
	if cfg.Server.ShutdownTimeout != DefaultShutdownTimeout {
		t.Errorf("Server.ShutdownTimeout = %v, want %v", cfg.Server.ShutdownTimeout, DefaultShutdownTimeout)
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, DefaultMetricsPath)
	}
	if cfg.Server.GRPCAddr != "" {
		t.Errorf("Server.GRPCAddr = %q, want empty", cfg.Server.GRPCAddr)
	}
	if got := cfg.AllowedOrigin(); got != "*" {
		t.Errorf("AllowedOrigin() = %q, want *", got)
	}
}

func TestParse_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_RELAY_SCOPE", "from-env")
	t.Setenv("TEST_RELAY_ORIGIN", "https://viewer.example.com")

	cfg, err := Parse([]byte(`
server:
  http_addr: "localhost:3001"
database:
  path: "relay.db"
scope:
  group_parent_id: "${TEST_RELAY_SCOPE}"
cors:
  allowed_origin: "${TEST_RELAY_ORIGIN}"
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Scope.GroupParentID != "from-env" {
		t.Errorf("Scope.GroupParentID = %q, want %q", cfg.Scope.GroupParentID, "from-env")
	}
	if cfg.CORS.AllowedOrigin != "https://viewer.example.com" {
		t.Errorf("CORS.AllowedOrigin = %q", cfg.CORS.AllowedOrigin)
	}
}

func TestParse_UnsetEnvVarExpandsToEmpty(t *testing.T) {
	_, err := Parse([]byte(`
server:
  http_addr: "localhost:3001"
database:
  path: "relay.db"
scope:
  group_parent_id: "${TEST_RELAY_DEFINITELY_UNSET}"
`))
	if err == nil {
		t.Fatal("Parse() expected error for empty scope")
	}
	if !strings.Contains(err.Error(), "scope.group_parent_id") {
		t.Errorf("error = %v, want mention of scope.group_parent_id", err)
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("RELAY_DB_PATH", "/var/lib/relay/override.db")
	t.Setenv("RELAY_GROUP_PARENT_ID", "override-scope")

	cfg, err := Parse([]byte(`
server:
  http_addr: "localhost:3001"
database:
  path: "relay.db"
scope:
  group_parent_id: "file-scope"
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Database.Path != "/var/lib/relay/override.db" {
		t.Errorf("Database.Path = %q, want override", cfg.Database.Path)
	}
	if cfg.Scope.GroupParentID != "override-scope" {
		t.Errorf("Scope.GroupParentID = %q, want override", cfg.Scope.GroupParentID)
	}
}

func TestParse_InvalidDuration(t *testing.T) {
	_, err := Parse([]byte(`
server:
  http_addr: "localhost:3001"
database:
  path: "relay.db"
scope:
  group_parent_id: "forum-1"
stream:
  keepalive_interval: "soon"
`))
	if err == nil {
		t.Fatal("Parse() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "keepalive_interval") {
		t.Errorf("error = %v, want mention of keepalive_interval", err)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("server: [unterminated"))
	if err == nil {
		t.Fatal("Parse() expected error for invalid YAML")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:   ServerConfig{HTTPAddr: "localhost:3001"},
			Database: DatabaseConfig{Path: "relay.db"},
			Scope:    ScopeConfig{GroupParentID: "forum-1"},
			Stream:   StreamConfig{BufferSize: 64, KeepaliveInterval: time.Second},
			Metrics:  MetricsConfig{Path: "/metrics"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing http addr", mutate: func(c *Config) { c.Server.HTTPAddr = "" }, wantErr: "server.http_addr"},
		{
			name: "tailscale replaces http addr",
			mutate: func(c *Config) {
				c.Server.HTTPAddr = ""
				c.Tailscale = TailscaleConfig{Enabled: true, Hostname: "relay"}
			},
		},
		{
			name:    "tailscale without hostname",
			mutate:  func(c *Config) { c.Tailscale = TailscaleConfig{Enabled: true} },
			wantErr: "tailscale.hostname",
		},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "blank scope", mutate: func(c *Config) { c.Scope.GroupParentID = "  " }, wantErr: "scope.group_parent_id"},
		{name: "negative buffer", mutate: func(c *Config) { c.Stream.BufferSize = -1 }, wantErr: "stream.buffer_size"},
		{
			name: "relative metrics path",
			mutate: func(c *Config) {
				c.Metrics = MetricsConfig{Enabled: true, Path: "metrics"}
			},
			wantErr: "metrics.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
