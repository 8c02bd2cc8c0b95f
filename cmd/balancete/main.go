package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"balancete/internal/amqp"
	"balancete/internal/classify"
	"balancete/internal/config"
	"balancete/internal/core"
	apphttp "balancete/internal/http"
	"balancete/internal/ingest"
	"balancete/internal/ledger"
	"balancete/internal/log"
	"balancete/internal/statement"
	"balancete/internal/storage"
)

// amqpEvents adapts the AMQP client to the API's event port.
type amqpEvents struct {
	client *amqp.Client
}

func (a amqpEvents) PublishLedgerChanged(ctx context.Context, entryID string, date core.Date) error {
	return a.client.PublishLedgerChanged(ctx, amqp.NewLedgerChangedMessage(entryID, date))
}

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)

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

	engineLog := logger.WithComponent(log.ComponentEngine).Logger
	agg := ledger.NewAggregator(repo, classify.Default(), engineLog)
	builder := statement.NewBuilder(agg, repo, repo, engineLog)
	recomputer := statement.NewRecomputer(builder, cfg.RecomputeDebounce, cfg.BuildTimeout, nil, engineLog)
	importer := ingest.NewImporter(repo, logger.WithComponent(log.ComponentIngest).Logger)

	// Ledger change events feed the archive worker. The API still works
	// without a broker; recomputation then stays local.
	var events apphttp.EventPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, change events disabled", "error", err)
		} else {
			defer amqpClient.Close()
			events = amqpEvents{client: amqpClient}
			logger.Info("AMQP event publication enabled", "exchange", cfg.AMQPExchange)
		}
	}

	srv := apphttp.NewServer(":"+cfg.Port, recomputer, builder, agg, repo, importer, events)

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting balancete server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
