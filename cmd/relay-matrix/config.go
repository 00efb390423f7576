// ABOUTME: Configuration loading for the relay-matrix listener
// ABOUTME: Loads TOML config with environment variable expansion and defaults

package main

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"slices"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultRelayTimeout     = 10 * time.Second
	defaultThreadNameLength = 80
	defaultDedupeTTL        = 10 * time.Minute
	defaultDedupeSize       = 4096
)

type Config struct {
	Matrix  MatrixConfig  `toml:"matrix"`
	Relay   RelayConfig   `toml:"relay"`
	Bridge  BridgeConfig  `toml:"bridge"`
	State   StateConfig   `toml:"state"`
	Logging LoggingConfig `toml:"logging"`
}

// MatrixConfig holds homeserver credentials. Either access_token (with
// user_id) or username and password must be set.
type MatrixConfig struct {
	Homeserver  string `toml:"homeserver"`
	UserID      string `toml:"user_id"`
	AccessToken string `toml:"access_token"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
}

type RelayConfig struct {
	URL        string        `toml:"url"`
	Timeout    time.Duration `toml:"-"`
	TimeoutRaw string        `toml:"timeout"`
}

type BridgeConfig struct {
	// AllowedRooms limits which rooms are relayed. Empty relays every joined room.
	AllowedRooms []string `toml:"allowed_rooms"`
	// RoomNames maps room ids to the label sent as groupParentName.
	RoomNames map[string]string `toml:"room_names"`
	// Respondents are the user ids whose messages count as support replies.
	Respondents      []string `toml:"respondents"`
	ThreadNameLength int      `toml:"thread_name_length"`
}

type StateConfig struct {
	// Path is the SQLite file holding the sync position and thread names.
	Path string `toml:"path"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

// Load reads config from the given path, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(string(data))
}

// Parse decodes TOML text into a validated Config.
func Parse(data string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(expandEnvVars(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Relay.TimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.Relay.TimeoutRaw)
		if err != nil {
			return nil, fmt.Errorf("parsing relay.timeout %q: %w", cfg.Relay.TimeoutRaw, err)
		}
		cfg.Relay.Timeout = d
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyDefaults() {
	if c.Relay.Timeout == 0 {
		c.Relay.Timeout = defaultRelayTimeout
	}
	if c.Bridge.ThreadNameLength == 0 {
		c.Bridge.ThreadNameLength = defaultThreadNameLength
	}
}

// Validate checks that required config fields are present and valid.
func (c *Config) Validate() error {
	if c.Matrix.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver is required")
	}
	if _, err := url.Parse(c.Matrix.Homeserver); err != nil {
		return fmt.Errorf("matrix.homeserver is not a valid URL: %w", err)
	}
	switch {
	case c.Matrix.AccessToken != "":
		if c.Matrix.UserID == "" {
			return fmt.Errorf("matrix.user_id is required with matrix.access_token")
		}
	case c.Matrix.Username == "" || c.Matrix.Password == "":
		return fmt.Errorf("matrix.access_token or matrix.username and matrix.password are required")
	}

	if c.Relay.URL == "" {
		return fmt.Errorf("relay.url is required")
	}
	u, err := url.Parse(c.Relay.URL)
	if err != nil {
		return fmt.Errorf("relay.url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("relay.url must use http or https scheme")
	}
	if c.Bridge.ThreadNameLength < 1 {
		return fmt.Errorf("bridge.thread_name_length must be positive")
	}
	return nil
}

// IsRoomAllowed reports whether messages from roomID are relayed.
func (c *Config) IsRoomAllowed(roomID string) bool {
	if len(c.Bridge.AllowedRooms) == 0 {
		return true
	}
	return slices.Contains(c.Bridge.AllowedRooms, roomID)
}

// IsRespondent reports whether userID answers on behalf of support.
func (c *Config) IsRespondent(userID string) bool {
	return slices.Contains(c.Bridge.Respondents, userID)
}
