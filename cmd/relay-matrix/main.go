// ABOUTME: Entry point for the relay-matrix listener
// ABOUTME: Forwards Matrix room messages into support-relay via POST /message

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
)

const banner = `
            _                                  _        _
  _ __ ___ | | __ _ _   _       _ __ ___   __ _| |_ _ __(_)_  __
 | '__/ _ \| |/ _' | | | |_____| '_ ' _ \ / _' | __| '__| \ \/ /
 | | |  __/| | (_| | |_| |_____| | | | | | (_| | |_| |  | |>  <
 |_|  \___||_|\__,_|\__, |     |_| |_| |_|\__,_|\__|_|  |_/_/\_\
                    |___/
`

// getConfigPath returns the path to the listener config file.
// Priority: RELAY_MATRIX_CONFIG env var > XDG_CONFIG_HOME/support-relay/matrix.toml > ~/.config/support-relay/matrix.toml
func getConfigPath() string {
	if envPath := os.Getenv("RELAY_MATRIX_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "matrix.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "support-relay", "matrix.toml")
}

// getDataPath returns the path to the support-relay data directory.
// Priority: XDG_DATA_HOME/support-relay > ~/.local/share/support-relay
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "support-relay")
}

func main() {
	// A missing .env is fine
	_ = godotenv.Load()

	if len(os.Args) > 1 && os.Args[1] == "init" {
		if err := runInit(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	configPath := getConfigPath()
	cfg, err := Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}

	statePath := cfg.State.Path
	if statePath == "" {
		statePath = filepath.Join(getDataPath(), "matrix-state.db")
	}

	logger := setupLogger(cfg.Logging.Level)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Homeserver: %s\n", cfg.Matrix.Homeserver)
	green.Print("    ▶ ")
	fmt.Printf("Relay:      %s\n", cfg.Relay.URL)
	green.Print("    ▶ ")
	fmt.Printf("State:      %s\n", statePath)
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	state, err := OpenStateStore(statePath)
	if err != nil {
		return err
	}
	defer state.Close()

	bridge, err := NewBridge(cfg, state, logger)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	if err := bridge.Login(ctx); err != nil {
		return fmt.Errorf("matrix login: %w", err)
	}

	return bridge.Run(ctx)
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})).
		With("component", "relay-matrix")
}

// prompt asks a question and returns the trimmed answer or def when empty.
func prompt(reader *bufio.Reader, question, def string) string {
	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	if def != "" {
		fmt.Printf("%s [%s]: ", question, def)
	} else {
		fmt.Printf("%s: ", question)
	}
	answer, _ := reader.ReadString('\n')
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return def
	}
	return answer
}

func runInit() error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println("    Interactive Setup")
	fmt.Println("    -----------------")
	fmt.Println()

	configPath := getConfigPath()
	reader := bufio.NewReader(os.Stdin)

	if _, err := os.Stat(configPath); err == nil {
		yellow.Printf("    Config already exists at %s\n", configPath)
		fmt.Print("    Overwrite? [y/N]: ")
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("    Aborted.")
			return nil
		}
		fmt.Println()
	}

	homeserver := prompt(reader, "Matrix homeserver URL", "https://matrix.org")
	username := prompt(reader, "Matrix username", "")
	relayURL := prompt(reader, "Relay URL", "http://localhost:3001")
	room := prompt(reader, "Support room id (e.g. !abc:matrix.org)", "")
	respondent := prompt(reader, "Support agent user id (e.g. @agent:matrix.org)", "")

	content := renderInitConfig(homeserver, username, relayURL, room, respondent)

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Println()
	green.Printf("    ✓ Config written to %s\n", configPath)
	fmt.Println()
	fmt.Println("    Next steps:")
	fmt.Println("    1. export MATRIX_PASSWORD=...")
	fmt.Println("    2. Run: relay-matrix")
	fmt.Println()
	return nil
}

// renderInitConfig builds the TOML written by init. The password is read
// from MATRIX_PASSWORD at startup.
func renderInitConfig(homeserver, username, relayURL, room, respondent string) string {
	var b strings.Builder
	b.WriteString("# relay-matrix configuration\n")
	b.WriteString("# Generated by relay-matrix init\n\n")
	b.WriteString("[matrix]\n")
	fmt.Fprintf(&b, "homeserver = %q\n", homeserver)
	fmt.Fprintf(&b, "username = %q\n", username)
	b.WriteString("password = \"${MATRIX_PASSWORD}\"\n\n")
	b.WriteString("[relay]\n")
	fmt.Fprintf(&b, "url = %q\n", relayURL)
	b.WriteString("timeout = \"10s\"\n\n")
	b.WriteString("[bridge]\n")
	b.WriteString("# Only relay these rooms (empty = all joined rooms)\n")
	if room != "" {
		fmt.Fprintf(&b, "allowed_rooms = [%q]\n", room)
	} else {
		b.WriteString("allowed_rooms = []\n")
	}
	b.WriteString("# Messages from these users count as support replies\n")
	if respondent != "" {
		fmt.Fprintf(&b, "respondents = [%q]\n", respondent)
	} else {
		b.WriteString("respondents = []\n")
	}
	b.WriteString("thread_name_length = 80\n\n")
	b.WriteString("[logging]\n")
	b.WriteString("level = \"info\"\n")
	return b.String()
}
