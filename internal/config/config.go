// ABOUTME: Configuration loading and parsing for support-relay
// ABOUTME: Supports YAML files with environment variable expansion, duration parsing and defaults

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when a field is left unset.
const (
	DefaultBufferSize        = 64
	DefaultKeepaliveInterval = 25 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultMetricsPath       = "/metrics"
	DefaultAllowedOrigin     = "*"
)

// Config represents the complete support-relay configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database"`
	Scope     ScopeConfig     `yaml:"scope"`
	CORS      CORSConfig      `yaml:"cors"`
	Stream    StreamConfig    `yaml:"stream"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
	HTTPS     bool   `yaml:"https"`  // TLS with Tailscale-issued certificates on :443
	Funnel    bool   `yaml:"funnel"` // Public HTTPS through Tailscale Funnel
}

// ServerConfig holds listener addresses. An empty GRPCAddr disables the
// gRPC health listener.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`

	ShutdownTimeout    time.Duration `yaml:"-"`
	ShutdownTimeoutRaw string        `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ScopeConfig names the group parent this deployment accepts and serves.
type ScopeConfig struct {
	GroupParentID string `yaml:"group_parent_id"`
}

// CORSConfig holds the Access-Control-Allow-Origin value for HTTP responses.
type CORSConfig struct {
	AllowedOrigin string `yaml:"allowed_origin"`
}

// StreamConfig tunes live-event delivery.
type StreamConfig struct {
	BufferSize int `yaml:"buffer_size"`

	KeepaliveInterval    time.Duration `yaml:"-"`
	KeepaliveIntervalRaw string        `yaml:"keepalive_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse builds a Config from raw YAML bytes. It applies environment
// expansion, RELAY_* overrides, duration parsing, defaults and validation.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnvOverrides lets deployment environments replace individual values
// without editing the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RELAY_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("RELAY_GROUP_PARENT_ID"); v != "" {
		cfg.Scope.GroupParentID = v
	}
	if v := os.Getenv("RELAY_HTTP_ADDR"); v != "" {
		cfg.Server.HTTPAddr = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Stream.BufferSize == 0 {
		cfg.Stream.BufferSize = DefaultBufferSize
	}
	if cfg.Stream.KeepaliveInterval == 0 {
		cfg.Stream.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// The HTTP address is required unless Tailscale provides the listener
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if strings.TrimSpace(c.Scope.GroupParentID) == "" {
		return fmt.Errorf("scope.group_parent_id is required")
	}

	if c.Stream.BufferSize < 1 {
		return fmt.Errorf("stream.buffer_size must be positive, got %d", c.Stream.BufferSize)
	}

	if c.Stream.KeepaliveInterval < 0 {
		return fmt.Errorf("stream.keepalive_interval must not be negative")
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	return nil
}

// AllowedOrigin returns the configured CORS origin, or "*" when unset.
func (c *Config) AllowedOrigin() string {
	if c.CORS.AllowedOrigin == "" {
		return DefaultAllowedOrigin
	}
	return c.CORS.AllowedOrigin
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Stream.KeepaliveIntervalRaw != "" {
		cfg.Stream.KeepaliveInterval, err = time.ParseDuration(cfg.Stream.KeepaliveIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing keepalive_interval %q: %w", cfg.Stream.KeepaliveIntervalRaw, err)
		}
	}

	if cfg.Server.ShutdownTimeoutRaw != "" {
		cfg.Server.ShutdownTimeout, err = time.ParseDuration(cfg.Server.ShutdownTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing shutdown_timeout %q: %w", cfg.Server.ShutdownTimeoutRaw, err)
		}
	}

	return nil
}
