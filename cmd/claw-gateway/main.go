// ABOUTME: Entry point for the claw-gateway social messaging server
// ABOUTME: Manages claw identities, friendships, trust, and inbox delivery

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/clawnet/claw-gateway/internal/auth"
	"github.com/clawnet/claw-gateway/internal/bus"
	"github.com/clawnet/claw-gateway/internal/config"
	"github.com/clawnet/claw-gateway/internal/dedupe"
	"github.com/clawnet/claw-gateway/internal/friends"
	"github.com/clawnet/claw-gateway/internal/inbox"
	"github.com/clawnet/claw-gateway/internal/relationship"
	"github.com/clawnet/claw-gateway/internal/scheduler"
	"github.com/clawnet/claw-gateway/internal/server"
	"github.com/clawnet/claw-gateway/internal/store"
	"github.com/clawnet/claw-gateway/internal/trust"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
       _                                  _
   ___| | __ ___      __   __ _  __ _  __| |_ ___
  / __| |/ _' \ \ /\ / /  / _' |/ _' |/ _' '_/ _ \
 | (__| | (_| |\ V  V /  | (_| | (_| | (_| |_|  __/
  \___|_|\__,_| \_/\_/    \__, |\__,_|\__,_\__\___|
                          |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: CLAW_CONFIG env var > XDG_CONFIG_HOME/claw/gateway.yaml > ~/.config/claw/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("CLAW_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "claw", "gateway.yaml")
}

// getDataPath returns the path to the claw data directory.
// Priority: XDG_DATA_HOME/claw > ~/.local/share/claw
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "claw")
}

func main() {
	// A .env next to the binary can supply ${VAR} values for the config.
	godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println("Usage: claw-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                    Start the gateway server")
		fmt.Println("  init                     Create a new config file interactively")
		fmt.Println("  token --subject NAME     Mint an admin JWT")
		fmt.Println("  health                   Check gateway health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "token":
		err = runToken(os.Args[2:])
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
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

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	fmt.Println()

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	eventBus := bus.New(logger)
	relEngine := relationship.NewEngine(st, eventBus, logger)
	trustEngine := trust.NewEngine(st, logger)
	friendService := friends.NewService(st, st, relEngine, trustEngine, eventBus, logger)
	friendService.TrackLayerChanges(ctx)
	pipeline := inbox.NewPipeline(st, eventBus, logger)

	nonces := dedupe.New(cfg.Auth.NonceTTL, 100_000)
	defer nonces.Close()

	srv := server.New(cfg, server.Deps{
		Store:         st,
		Bus:           eventBus,
		Friends:       friendService,
		Inbox:         pipeline,
		Relationships: relEngine,
		Trust:         trustEngine,
		Verifier:      auth.NewVerifier(st, nonces, cfg.Auth.TimestampSkew),
		JWT:           auth.NewJWTVerifier([]byte(cfg.Auth.AdminJWTSecret)),
	}, logger)

	sched := scheduler.New(logger)
	if err := scheduler.RegisterMaintenance(sched, scheduler.MaintenanceConfig{
		HeartbeatInterval: cfg.Scheduler.HeartbeatInterval,
		HeartbeatTimeout:  cfg.Scheduler.HeartbeatTimeout,
		DecayInterval:     cfg.Scheduler.DecayInterval,
		TrustDecayCron:    cfg.Scheduler.TrustDecayCron,
		CleanupCron:       cfg.Scheduler.CleanupCron,
		InboxRetention:    cfg.Scheduler.InboxRetention,
	}, st, relEngine, trustEngine, pipeline, logger); err != nil {
		return fmt.Errorf("registering maintenance tasks: %w", err)
	}
	sched.Start(ctx)
	defer sched.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runToken(args []string) error {
	subject := "admin"
	ttl := 24 * time.Hour
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--subject":
			i++
			if i >= len(args) {
				return fmt.Errorf("--subject requires a value")
			}
			subject = args[i]
		case "--ttl":
			i++
			if i >= len(args) {
				return fmt.Errorf("--ttl requires a value")
			}
			var err error
			if ttl, err = time.ParseDuration(args[i]); err != nil {
				return fmt.Errorf("parsing --ttl: %w", err)
			}
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.AdminJWTSecret == "" {
		return fmt.Errorf("auth.admin_jwt_secret is not configured")
	}

	token, err := auth.NewJWTVerifier([]byte(cfg.Auth.AdminJWTSecret)).Generate(subject, ttl)
	if err != nil {
		return fmt.Errorf("minting token: %w", err)
	}
	fmt.Println(token)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	url := fmt.Sprintf("http://%s/api/health", addr)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway unhealthy: %s", resp.Status)
	}

	green := color.New(color.FgGreen)
	green.Println("Gateway is healthy")
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("claw-gateway configuration setup")
	fmt.Println("================================")
	fmt.Println()

	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "gateway.db")

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	fmt.Println("\n--- Auth Configuration ---")
	jwtSecret := prompt(reader, "Admin JWT secret (empty disables admin API)", "")

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# claw-gateway configuration\n")
	cfg.WriteString("# Generated by claw-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	if jwtSecret != "" {
		cfg.WriteString(fmt.Sprintf("  admin_jwt_secret: \"%s\"\n", jwtSecret))
	}
	cfg.WriteString("  timestamp_skew: \"5m\"\n")
	cfg.WriteString("  nonce_ttl: \"10m\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("scheduler:\n")
	cfg.WriteString("  heartbeat_interval: \"1h\"\n")
	cfg.WriteString("  heartbeat_timeout: \"24h\"\n")
	cfg.WriteString("  decay_interval: \"24h\"\n")
	cfg.WriteString("  trust_decay_cron: \"0 0 1 * *\"\n")
	cfg.WriteString("  cleanup_cron: \"0 3 * * *\"\n")
	cfg.WriteString("  inbox_retention: \"720h\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("rate_limit:\n")
	cfg.WriteString("  enabled: true\n")
	cfg.WriteString("  rate: 10\n")
	cfg.WriteString("  burst: 20\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: false\n")
	cfg.WriteString("  path: \"/metrics\"\n")

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  claw-gateway serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
