package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	appamqp "findash/internal/amqp"
	"findash/internal/auth"
	"findash/internal/config"
	"findash/internal/dashboard"
	apphttp "findash/internal/http"
	applog "findash/internal/log"
	"findash/internal/spreadsheet"
	"findash/internal/storage"
)

func main() {
	// Optional .env for local development.
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err, "db_path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	authService := auth.NewService(repo, cfg.JWTSecret, cfg.SessionTTL)
	if err := seedAdmin(context.Background(), repo, authService, cfg); err != nil {
		logger.Error("Failed to seed admin user", "error", err)
		os.Exit(1)
	}

	// AMQP is optional: without it imports simply go unannounced.
	var notifier dashboard.ImportNotifier
	if cfg.AMQPURL != "" {
		client, err := appamqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without import events", "error", err)
		} else {
			defer client.Close()
			notifier = appamqp.NewNotifier(client)
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	vm := dashboard.New(repo, spreadsheet.NewParser(), nil, notifier)

	srv := apphttp.NewServer(":"+cfg.Port, vm, repo, authService, cfg.CacheTTL)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting findash server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

// seedAdmin creates the bootstrap account when configured and missing.
func seedAdmin(ctx context.Context, repo *storage.SQLiteRepository, svc *auth.Service, cfg *config.Config) error {
	if cfg.AdminEmail == "" {
		return nil
	}
	_, err := repo.GetUserByEmail(ctx, cfg.AdminEmail)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if _, err := svc.Register(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Seeded admin user", "email", cfg.AdminEmail)
	return nil
}
