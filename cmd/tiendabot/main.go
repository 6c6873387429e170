package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tiendabot/tiendabot/internal/api"
	"github.com/tiendabot/tiendabot/internal/broadcast"
	"github.com/tiendabot/tiendabot/internal/dispatch"
	"github.com/tiendabot/tiendabot/internal/greeting"
	"github.com/tiendabot/tiendabot/internal/jobs"
	"github.com/tiendabot/tiendabot/internal/keyword"
	"github.com/tiendabot/tiendabot/internal/messaging"
	"github.com/tiendabot/tiendabot/internal/order"
	"github.com/tiendabot/tiendabot/internal/session"
	"github.com/tiendabot/tiendabot/internal/store"
	"github.com/tiendabot/tiendabot/internal/timeout"
	"github.com/tiendabot/tiendabot/internal/util"
	"github.com/tiendabot/tiendabot/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for tiendabot state data
	DefaultStateDir = "/var/lib/tiendabot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "tiendabot.db"
)

func main() {
	// The .env file is loaded before logger setup so TIENDABOT_DEBUG can
	// come from it.
	config := loadEnvironmentConfig()
	initializeLogger()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	if err := run(flags); err != nil {
		slog.Error("tiendabot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("tiendabot exited successfully")
}

// Config holds environment configuration
type Config struct {
	Backend     string
	DatabaseURL string
	StateDir    string
	APIAddr     string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput *string
	numeric  *bool
	backend  *string
	dbDSN    *string
	apiAddr  *string
}

// initializeLogger sets up structured logging. Debug level is the
// default; set TIENDABOT_DEBUG=false to quiet it down to info.
func initializeLogger() {
	level := slog.LevelInfo
	if util.BoolEnv("TIENDABOT_DEBUG", true) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		Backend:     os.Getenv("MESSAGING_BACKEND"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("TIENDABOT_STATE_DIR"),
		APIAddr:     os.Getenv("API_ADDR"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No TIENDABOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"MESSAGING_BACKEND", config.Backend,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"TIENDABOT_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput: flag.String("qr-output", "", "path to write login QR codes"),
		numeric:  flag.Bool("numeric-code", util.BoolEnv("NUMERIC_LOGIN_CODE", false), "use numeric login codes instead of QR codes (overrides $NUMERIC_LOGIN_CODE)"),
		backend:  flag.String("backend", config.Backend, "messaging backend: whatsapp or twilio (overrides $MESSAGING_BACKEND)"),
		dbDSN:    flag.String("db-dsn", config.DatabaseURL, "database DSN (overrides $DATABASE_URL)"),
		apiAddr:  flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"backend", *flags.backend,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if !strings.Contains(*flags.dbDSN, "postgres://") && !strings.Contains(*flags.dbDSN, "host=") {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// buildStore selects the store backend from the DSN.
func buildStore(dsn string) (store.Store, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// buildMessagingService selects the transport backend.
func buildMessagingService(flags Flags) (messaging.Service, *messaging.TwilioService, error) {
	if strings.EqualFold(*flags.backend, "twilio") {
		svc, err := messaging.NewTwilioService()
		if err != nil {
			return nil, nil, err
		}
		return svc, svc, nil
	}

	var waOpts []whatsapp.Option
	waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.dbDSN))
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	manager, err := whatsapp.NewManager(waOpts...)
	if err != nil {
		return nil, nil, err
	}
	return messaging.NewWhatsAppService(manager), nil, nil
}

func run(flags Flags) error {
	st, err := buildStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	svc, twilioSvc, err := buildMessagingService(flags)
	if err != nil {
		return err
	}
	defer svc.Stop()

	registry := session.NewRegistry(st, svc)
	timers := timeout.NewScheduler(st, registry)
	defer timers.Stop()

	keywords := keyword.NewEngine(st, registry)
	machine := order.NewMachine(st, registry, timers)
	greeter := greeting.NewGreeter(st, registry)
	dispatcher := dispatch.NewDispatcher(st, keywords, machine, greeter)
	bc := broadcast.NewEngine(registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go registry.Run(ctx)
	if err := registry.RecoverOperational(ctx); err != nil {
		slog.Error("Session recovery failed", "error", err)
	}
	go dispatcher.Run(ctx, svc.Messages())

	sched := jobs.NewScheduler()
	defer sched.Stop()
	if err := sched.ScheduleLoginExpiry(st, registry, jobs.DefaultLoginExpiry); err != nil {
		return err
	}

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if twilioSvc != nil {
		apiOpts = append(apiOpts, api.WithWebhookHandler(twilioSvc.WebhookHandler))
	}
	server := api.NewServer(registry, st, bc, apiOpts...)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("Shutting down", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("API server shutdown error", "error", err)
	}
	cancel()
	return nil
}
