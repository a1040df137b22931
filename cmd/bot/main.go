package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/mixelka/mailpool/internal/config"
	"github.com/mixelka/mailpool/internal/database"
	"github.com/mixelka/mailpool/internal/email"
	"github.com/mixelka/mailpool/internal/formatter"
	"github.com/mixelka/mailpool/internal/poller"
	"github.com/mixelka/mailpool/internal/proxy"
	"github.com/mixelka/mailpool/internal/sender"
	"github.com/mixelka/mailpool/internal/state"
	"github.com/mixelka/mailpool/internal/telegram"
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
	logger.Info("starting mailpool bot")

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

	// Create components
	pool := proxy.NewPool(db, logger)
	tracker := state.NewTracker()
	tgFormatter := formatter.NewTelegramFormatter()
	notifier := telegram.NewNotifier(tgFormatter, logger)

	fetcher := email.NewFetcher(pool, db, db, tracker, email.FetcherConfig{
		DialTimeout:   cfg.IMAPDialTimeout,
		ProxyAttempts: cfg.ProxyAttempts,
		BodyMaxLen:    cfg.BodyMaxLen,
	}, logger)
	submitter := email.NewSubmitter(email.SubmitConfig{
		DialTimeout: cfg.SMTPDialTimeout,
	}, logger)

	pollSched := poller.NewScheduler(db, db, fetcher, tracker, notifier, poller.Config{
		Interval:    cfg.PollInterval,
		MaxParallel: cfg.MaxParallelFetch,
	}, logger)
	sendSched := sender.NewScheduler(db, db, db, pool, submitter, notifier, sender.Config{
		DelayMin: cfg.SendDelayMin,
		DelayMax: cfg.SendDelayMax,
	}, logger)

	// Create bot
	bot, err := telegram.NewBot(telegram.BotDeps{
		Config:    cfg,
		DB:        db,
		Pool:      pool,
		Tracker:   tracker,
		Poller:    pollSched,
		Sender:    sendSched,
		Notifier:  notifier,
		Formatter: tgFormatter,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to create bot", "error", err)
		os.Exit(1)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		logger.Info("received shutdown signal", "signal", sig)
		logger.Info("shutting down...")

		pollSched.StopAll()
		sendSched.StopAll()
		cancel()
	}()

	// Start bot
	logger.Info("bot is running, press Ctrl+C to stop")
	bot.Start(ctx)

	logger.Info("bot stopped")
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
