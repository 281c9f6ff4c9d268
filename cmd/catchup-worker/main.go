package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tally/internal/amqp"
	"tally/internal/config"
	"tally/internal/core"
	"tally/internal/services"
	"tally/internal/storage"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting catchup-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	sqliteRepo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer sqliteRepo.Close()

	// Materialized transactions publish export events like any other append.
	var publisher services.TransactionPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing in SQLite-only mode", "error", err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
			logger.Info("AMQP client initialized - materialized transactions will sync via export-worker")
		}
	} else {
		logger.Info("AMQP disabled - materialized transactions will not publish export events")
	}

	ledger := services.NewLedgerService(sqliteRepo, publisher)
	processor := services.NewCatchupProcessor(sqliteRepo, ledger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Recurrence catch-up configured",
		"interval", cfg.CatchupInterval,
		"sqlite_db", cfg.SQLiteDBPath)

	runCatchUp := func(now time.Time) {
		count, err := processor.CatchUpAll(ctx, core.Date{Time: now.UTC()})
		if err != nil {
			logger.Error("Catch-up run failed", "error", err, "materialized", count)
			return
		}
		logger.Info("Catch-up run complete", "materialized", count)
	}

	// First pass right away so a restart doesn't wait a full interval.
	runCatchUp(time.Now())

	ticker := time.NewTicker(cfg.CatchupInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				runCatchUp(now)
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Shutting down catchup-worker...")
	cancel()

	select {
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout reached")
	case <-time.After(2 * time.Second):
		logger.Info("Catchup-worker shutdown complete")
	}
}
