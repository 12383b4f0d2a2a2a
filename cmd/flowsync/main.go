package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/flowsync/flowsync/internal/api"
	"github.com/flowsync/flowsync/internal/classifier"
	"github.com/flowsync/flowsync/internal/conversation"
	"github.com/flowsync/flowsync/internal/genai"
	"github.com/flowsync/flowsync/internal/lockfile"
	"github.com/flowsync/flowsync/internal/messaging"
	"github.com/flowsync/flowsync/internal/scheduler"
	"github.com/flowsync/flowsync/internal/store"
	"github.com/flowsync/flowsync/internal/twiliowhatsapp"
	"github.com/flowsync/flowsync/internal/util"
	"github.com/flowsync/flowsync/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for FlowSync state data
	DefaultStateDir = "/var/lib/flowsync"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "flowsync.db"
	// shutdownTimeout bounds graceful HTTP shutdown on SIGINT/SIGTERM
	shutdownTimeout = 10 * time.Second
	// DefaultCleanupSchedule runs the idle-conversation sweep nightly
	DefaultCleanupSchedule = "0 3 * * *"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	if err := run(flags); err != nil {
		slog.Error("FlowSync failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("FlowSync exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseDSN string
	WhatsAppDSN string
	StateDir    string
	OpenAIKey   string
	OpenAIModel string
	APIAddr     string
	VerifyToken string
	Provider    string
	QROutput    string
	NumericCode bool
	CleanupCron string
	IdleTimeout time.Duration
}

// Flags holds command line flag values
type Flags struct {
	qrOutput    *string
	numeric     *bool
	stateDir    *string
	dbDSN       *string
	waDSN       *string
	openaiKey   *string
	openaiModel *string
	apiAddr     *string
	verifyToken *string
	provider    *string
	cleanupCron *string
	idleTimeout *time.Duration
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
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
		DatabaseDSN: os.Getenv("DATABASE_URL"),
		WhatsAppDSN: os.Getenv("WHATSAPP_DB_DSN"),
		StateDir:    os.Getenv("FLOWSYNC_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel: os.Getenv("OPENAI_MODEL"),
		APIAddr:     os.Getenv("API_ADDR"),
		VerifyToken: os.Getenv("WEBHOOK_VERIFY_TOKEN"),
		Provider:    os.Getenv("MESSAGING_PROVIDER"),
		QROutput:    os.Getenv("WHATSAPP_QR_OUTPUT"),
		NumericCode: util.ParseBoolEnv("WHATSAPP_NUMERIC_CODE", false),
		CleanupCron: os.Getenv("CLEANUP_SCHEDULE"),
		IdleTimeout: conversation.DefaultIdleTimeout,
	}
	if raw := os.Getenv("IDLE_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			config.IdleTimeout = d
		} else {
			slog.Warn("Invalid IDLE_TIMEOUT, using default", "value", raw, "error", err)
		}
	}
	if config.CleanupCron == "" {
		config.CleanupCron = DefaultCleanupSchedule
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No FLOWSYNC_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseDSN)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", os.Getenv("DATABASE_URL") != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"FLOWSYNC_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"MESSAGING_PROVIDER", config.Provider)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:    flag.String("qr-output", config.QROutput, "path to write WhatsApp login QR code (overrides $WHATSAPP_QR_OUTPUT)"),
		numeric:     flag.Bool("numeric-code", config.NumericCode, "use numeric WhatsApp login code instead of QR code (overrides $WHATSAPP_NUMERIC_CODE)"),
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for FlowSync data (overrides $FLOWSYNC_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseDSN, "database DSN for the conversation store (overrides $DATABASE_URL)"),
		waDSN:       flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "database DSN for the WhatsApp session store (overrides $WHATSAPP_DB_DSN)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel: flag.String("openai-model", config.OpenAIModel, "OpenAI model for intent classification (overrides $OPENAI_MODEL)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		verifyToken: flag.String("verify-token", config.VerifyToken, "webhook verification token (overrides $WEBHOOK_VERIFY_TOKEN)"),
		provider:    flag.String("messaging-provider", config.Provider, "outbound messaging provider: whatsapp, twilio or none (overrides $MESSAGING_PROVIDER)"),
		cleanupCron: flag.String("cleanup-schedule", config.CleanupCron, "cron expression for the idle-conversation sweep (overrides $CLEANUP_SCHEDULE)"),
		idleTimeout: flag.Duration("idle-timeout", config.IdleTimeout, "close active conversations idle longer than this (overrides $IDLE_TIMEOUT)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"provider", *flags.provider)

	return flags
}

// ensureDirectoriesExist creates the state directory and, for file-based
// databases, the directory holding the database file.
func ensureDirectoriesExist(flags Flags) error {
	dirs := []string{*flags.stateDir}
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		dirs = append(dirs, filepath.Dir(*flags.dbDSN))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", dir)
			return err
		}
	}
	return nil
}

// buildStore opens the conversation store matching the DSN type
func buildStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// buildClassifier assembles the message classifier. Without an OpenAI key the
// rule chain still runs; only the generative fallback is disabled.
func buildClassifier(flags Flags) (*classifier.Classifier, error) {
	if *flags.openaiKey == "" {
		slog.Warn("No OpenAI API key configured; generative classification disabled")
		return classifier.New(nil), nil
	}
	genaiOpts := []genai.Option{genai.WithAPIKey(*flags.openaiKey)}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	gen, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return classifier.New(gen), nil
}

// buildMessagingService assembles the outbound channel for the configured
// provider. An empty or "none" provider disables outbound delivery; the API
// still accepts webhooks and records conversations.
func buildMessagingService(flags Flags) (messaging.Service, error) {
	switch *flags.provider {
	case "", "none":
		slog.Info("No messaging provider configured; running webhook-only")
		return nil, nil
	case "twilio":
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		return messaging.NewTwilioService(client), nil
	case "whatsapp":
		waOpts := []whatsapp.Option{}
		if *flags.waDSN != "" {
			waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.waDSN))
		}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil
	default:
		return nil, fmt.Errorf("unknown messaging provider: %s", *flags.provider)
	}
}

func run(flags Flags) error {
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return fmt.Errorf("failed to acquire state directory lock: %w", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Error("Failed to release lock", "error", err)
		}
	}()

	st, err := buildStore(flags)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("Failed to close store", "error", err)
		}
	}()

	cls, err := buildClassifier(flags)
	if err != nil {
		return err
	}
	ctrl := conversation.NewController(st, cls)
	agents := conversation.NewAgentService(st)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	janitor := conversation.NewJanitor(st, *flags.idleTimeout)
	if err := sched.AddJob(*flags.cleanupCron, func() { janitor.Sweep() }); err != nil {
		return fmt.Errorf("failed to schedule idle-conversation sweep: %w", err)
	}
	slog.Debug("Idle-conversation sweep scheduled", "cron", *flags.cleanupCron, "idle_timeout", *flags.idleTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	msgService, err := buildMessagingService(flags)
	if err != nil {
		return err
	}

	apiOpts := []api.Option{}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.verifyToken != "" {
		apiOpts = append(apiOpts, api.WithVerifyToken(*flags.verifyToken))
	}
	if msgService != nil {
		apiOpts = append(apiOpts, api.WithMessagingService(msgService))
	}
	srv := api.NewServer(st, ctrl, agents, apiOpts...)

	if msgService != nil {
		if err := msgService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start messaging service: %w", err)
		}
		defer func() {
			if err := msgService.Stop(); err != nil {
				slog.Error("Failed to stop messaging service", "error", err)
			}
		}()
		dispatcher := messaging.NewDispatcher(msgService, ctrl)
		go dispatcher.Run(ctx)
	}

	go func() {
		<-ctx.Done()
		slog.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown failed", "error", err)
		}
	}()

	slog.Info("Bootstrapping FlowSync")
	return srv.Run()
}
