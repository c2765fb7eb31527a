// The export worker consumes import events and mirrors each committed
// batch as one audit row in a Google spreadsheet.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	appamqp "findash/internal/amqp"
	"findash/internal/config"
	applog "findash/internal/log"
	"findash/internal/sheets/google"
	"findash/internal/storage"
	"findash/internal/worker"
)

func main() {
	_ = godotenv.Load()

	logger := applog.New(applog.Config{Component: "export-worker"})
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the export worker")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err, "db_path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	sheet, err := google.NewFromEnv(ctx)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}

	client, err := appamqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	w := worker.NewExportWorker(repo, sheet)

	logger.Info("Export worker started",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)

	err = client.ConsumeImportEvents(ctx, func(event *appamqp.ImportEvent) error {
		return w.HandleImportEvent(ctx, event)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Export worker stopped gracefully")
}
