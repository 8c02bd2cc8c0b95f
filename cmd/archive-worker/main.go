package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"balancete/internal/amqp"
	"balancete/internal/classify"
	"balancete/internal/config"
	"balancete/internal/ledger"
	"balancete/internal/log"
	"balancete/internal/publish"
	gsheet "balancete/internal/publish/google"
	mem "balancete/internal/publish/memory"
	"balancete/internal/statement"
	"balancete/internal/storage"
	"balancete/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := log.New(log.Config{Component: log.ComponentWorker})
	log.SetDefault(logger)

	logger.Info("Starting archive-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var publisher publish.StatementPublisher
	switch cfg.PublishBackend {
	case "sheets":
		cli, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets publisher", "error", err)
			os.Exit(1)
		}
		publisher = cli
		logger.Info("Initialized Google Sheets publisher", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	default:
		publisher = mem.New()
		logger.Info("Initialized memory publisher")
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	amqpClient, err := amqp.DialWithRetry(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	engineLog := logger.WithComponent(log.ComponentEngine).Logger
	agg := ledger.NewAggregator(repo, classify.Default(), engineLog)
	builder := statement.NewBuilder(agg, repo, repo, engineLog)
	w := worker.New(builder, amqpClient, publisher, cfg.RecomputeDebounce, cfg.BuildTimeout, logger.Logger)

	go func() {
		if err := w.Run(ctx); err != nil {
			if err != context.Canceled {
				logger.Error("Message consumption failed", "error", err)
			}
			cancel()
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down worker...")
	cancel()

	// Give in-flight recomputations a moment to settle
	time.Sleep(2 * time.Second)
	logger.Info("Worker shutdown complete")
}
