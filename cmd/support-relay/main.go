// ABOUTME: Entry point for the support-relay server
// ABOUTME: Ingests support chat messages and serves thread views and live events

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/support-relay/internal/config"
	"github.com/2389/support-relay/internal/gateway"
	"github.com/2389/support-relay/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                        _                     _
  ___ _   _ _ __  _ __   ___  _ __| |_       _ __ ___| | __ _ _   _
 / __| | | | '_ \| '_ \ / _ \| '__| __|_____| '__/ _ \ |/ _' | | | |
 \__ \ |_| | |_) | |_) | (_) | |  | ||_____| | |  __/ | (_| | |_| |
 |___/\__,_| .__/| .__/ \___/|_|   \__|    |_|  \___|_|\__,_|\__, |
           |_|   |_|                                         |___/
`

// getConfigPath returns the path to the relay config file.
// Priority: RELAY_CONFIG env var > XDG_CONFIG_HOME/support-relay/relay.yaml > ~/.config/support-relay/relay.yaml
func getConfigPath() string {
	if envPath := os.Getenv("RELAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "relay.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "support-relay", "relay.yaml")
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

func usage() {
	fmt.Println("Usage: support-relay <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     Start the relay server")
	fmt.Println("  init      Create a new config file interactively")
	fmt.Println("  health    Check relay readiness")
	fmt.Println("  threads   List threads for the configured scope")
	fmt.Println("  version   Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// A missing .env is fine; real environment variables take precedence
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "threads":
		err = runThreads(ctx, os.Stdout)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Scope:     %s\n", cfg.Scope.GroupParentID)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	if cfg.Server.GRPCAddr != "" {
		green.Print("    ▶ ")
		fmt.Printf("gRPC:      %s\n", cfg.Server.GRPCAddr)
	}
	if cfg.CORS.AllowedOrigin == "" {
		yellow.Print("    ! ")
		fmt.Println("CORS:      * (set cors.allowed_origin)")
	}

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		} else if cfg.Tailscale.HTTPS {
			yellow.Print(" [https]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting support-relay",
		"config", configPath,
		"version", version,
		"http_addr", cfg.Server.HTTPAddr,
		"grpc_addr", cfg.Server.GRPCAddr,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// baseURL returns the local HTTP base URL for client commands.
func baseURL(cfg *config.Config) string {
	return "http://" + cfg.Server.HTTPAddr
}

func getJSON(ctx context.Context, url string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL(cfg)+"/health/ready", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, body)
	}

	fmt.Println(string(body))
	return nil
}

func runThreads(ctx context.Context, out io.Writer) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	var summaries []store.ThreadSummary
	if err := getJSON(ctx, baseURL(cfg)+"/threads", &summaries); err != nil {
		return fmt.Errorf("listing threads: %w", err)
	}

	printThreads(out, summaries)
	return nil
}

// printThreads writes summaries as an aligned table, pending threads first.
func printThreads(out io.Writer, summaries []store.ThreadSummary) {
	if len(summaries) == 0 {
		fmt.Fprintln(out, "no threads")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tPENDING\tMESSAGES\tLAST MESSAGE\tOWNER\tNAME")
	for _, s := range summaries {
		status := "pending"
		if s.LastMessageFromRespondent {
			status = "answered"
		}
		last := "-"
		if s.LastMessageAt != nil {
			last = s.LastMessageAt.Local().Format("2006-01-02 15:04")
		}
		owner := "-"
		if s.OwnerName != nil {
			owner = *s.OwnerName
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\n", status, s.PendingCount, s.MessageCount, last, owner, s.Name)
	}
	_ = tw.Flush()
}
