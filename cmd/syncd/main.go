package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/nivora/mailsync/internal/adapter"
	"github.com/nivora/mailsync/internal/config"
	"github.com/nivora/mailsync/internal/database"
	"github.com/nivora/mailsync/internal/notify"
	"github.com/nivora/mailsync/internal/sink"
	"github.com/nivora/mailsync/internal/syncer"
	"github.com/nivora/mailsync/pkg/crypto"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting mailbox sync daemon")

	// Connect to database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations completed")

	// Credential vault
	vault, err := crypto.NewVault([]byte(cfg.EncryptionKey))
	if err != nil {
		logger.Error("failed to create credential vault", "error", err)
		os.Exit(1)
	}

	// Operator notifications
	var notifier notify.Notifier
	if cfg.TelegramEnabled() {
		notifier, err = notify.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID, logger)
		if err != nil {
			logger.Error("failed to create telegram notifier", "error", err)
			os.Exit(1)
		}
		logger.Info("telegram operator alerts enabled", "chat_id", cfg.TelegramChatID)
	} else {
		notifier = notify.NewLogNotifier(logger)
	}

	// Create components
	factory := adapter.NewFactory(adapter.Options{
		DialTimeout:           cfg.IMAPDialTimeout,
		CommandTimeout:        cfg.FetchTimeout,
		GoogleClientID:        cfg.GoogleClientID,
		GoogleClientSecret:    cfg.GoogleClientSecret,
		MicrosoftClientID:     cfg.MicrosoftClientID,
		MicrosoftClientSecret: cfg.MicrosoftClientSecret,
	}, logger)

	orchestrator := syncer.NewOrchestrator(syncer.OrchestratorDeps{
		DB:           db,
		Factory:      factory,
		Sink:         sink.NewStoreSink(db, logger),
		Vault:        vault,
		Notifier:     notifier,
		Logger:       logger,
		ChunkSize:    cfg.ChunkSize,
		FetchTimeout: cfg.FetchTimeout,
	})

	dispatcher := syncer.NewDispatcher(db, orchestrator, cfg.DispatchInterval, cfg.IncrementalInterval, logger)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		logger.Info("received shutdown signal", "signal", sig)
		logger.Info("shutting down...")
		cancel()
	}()

	// The watchdog supervising this process runs separately (cmd/watchdogd)
	// so a reap cannot take the supervisor down with the worker
	logger.Info("sync daemon is running, press Ctrl+C to stop")
	if err := dispatcher.Run(ctx); err != nil {
		logger.Error("dispatcher exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("sync daemon stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
			NoColor:    false,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
