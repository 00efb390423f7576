// ABOUTME: Tests for relay-matrix configuration loading
// ABOUTME: Covers TOML parsing, env expansion, defaults, validation and generated init config

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleConfig = `
[matrix]
homeserver = "https://matrix.example.org"
username = "relay"
password = "${TEST_MATRIX_PASSWORD}"

[relay]
url = "http://localhost:3001"
timeout = "3s"

[bridge]
allowed_rooms = ["!support:example.org"]
respondents = ["@agent:example.org"]

[bridge.room_names]
"!support:example.org" = "Support"

[logging]
level = "debug"
`

func TestLoad_ValidConfig(t *testing.T) {
	t.Setenv("TEST_MATRIX_PASSWORD", "hunter2")
	path := filepath.Join(t.TempDir(), "matrix.toml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Matrix.Password != "hunter2" {
		t.Errorf("Matrix.Password = %q, want expanded value", cfg.Matrix.Password)
	}
	if cfg.Relay.Timeout != 3*time.Second {
		t.Errorf("Relay.Timeout = %v, want 3s", cfg.Relay.Timeout)
	}
	if cfg.Bridge.ThreadNameLength != defaultThreadNameLength {
		t.Errorf("Bridge.ThreadNameLength = %d, want default", cfg.Bridge.ThreadNameLength)
	}
	if cfg.Bridge.RoomNames["!support:example.org"] != "Support" {
		t.Errorf("Bridge.RoomNames = %v", cfg.Bridge.RoomNames)
	}
	if !cfg.IsRoomAllowed("!support:example.org") || cfg.IsRoomAllowed("!other:example.org") {
		t.Error("IsRoomAllowed does not honour allowed_rooms")
	}
	if !cfg.IsRespondent("@agent:example.org") || cfg.IsRespondent("@alice:example.org") {
		t.Error("IsRespondent does not honour respondents")
	}
}

func TestParse_DefaultTimeout(t *testing.T) {
	cfg, err := Parse(`
[matrix]
homeserver = "https://matrix.example.org"
user_id = "@relay:example.org"
access_token = "syt_token"

[relay]
url = "https://relay.example.org"
`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Relay.Timeout != defaultRelayTimeout {
		t.Errorf("Relay.Timeout = %v, want %v", cfg.Relay.Timeout, defaultRelayTimeout)
	}
	if !cfg.IsRoomAllowed("!anything:example.org") {
		t.Error("empty allowed_rooms should allow every room")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{
			name:    "invalid toml",
			config:  `[matrix`,
			wantErr: "parsing config",
		},
		{
			name:    "missing homeserver",
			config:  "[relay]\nurl = \"http://x\"\n",
			wantErr: "matrix.homeserver",
		},
		{
			name: "token without user id",
			config: `[matrix]
homeserver = "https://m.org"
access_token = "t"
[relay]
url = "http://x"`,
			wantErr: "matrix.user_id",
		},
		{
			name: "no credentials",
			config: `[matrix]
homeserver = "https://m.org"
username = "relay"
[relay]
url = "http://x"`,
			wantErr: "matrix.access_token",
		},
		{
			name: "bad relay scheme",
			config: `[matrix]
homeserver = "https://m.org"
user_id = "@r:m.org"
access_token = "t"
[relay]
url = "ftp://x"`,
			wantErr: "http or https",
		},
		{
			name: "bad timeout",
			config: `[matrix]
homeserver = "https://m.org"
user_id = "@r:m.org"
access_token = "t"
[relay]
url = "http://x"
timeout = "later"`,
			wantErr: "relay.timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.config)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestRenderInitConfig_RoundTrips(t *testing.T) {
	t.Setenv("MATRIX_PASSWORD", "pw")
	text := renderInitConfig("https://matrix.org", "relay", "http://localhost:3001", "!r:matrix.org", "@agent:matrix.org")

	cfg, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse(init output) error = %v\n%s", err, text)
	}
	if cfg.Matrix.Password != "pw" {
		t.Errorf("password = %q, want value from MATRIX_PASSWORD", cfg.Matrix.Password)
	}
	if len(cfg.Bridge.AllowedRooms) != 1 || cfg.Bridge.AllowedRooms[0] != "!r:matrix.org" {
		t.Errorf("allowed_rooms = %v", cfg.Bridge.AllowedRooms)
	}
	if !cfg.IsRespondent("@agent:matrix.org") {
		t.Error("respondent not written")
	}
}
