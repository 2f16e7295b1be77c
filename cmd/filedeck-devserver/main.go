package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/filedeck/filedeck/internal/devserver"
	"github.com/filedeck/filedeck/internal/devserver/config"
	"github.com/filedeck/filedeck/internal/devserver/database"
	"github.com/filedeck/filedeck/internal/devserver/services"
	"github.com/filedeck/filedeck/internal/devserver/storage"
	"github.com/filedeck/filedeck/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	log := logger.Init(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(os.Getenv("LOG_LEVEL"), slog.LevelInfo),
		JSON:      true,
		SentryDSN: os.Getenv("SENTRY_DSN"),
	})
	defer logger.Flush()

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Error("database connection failed", "driver", cfg.DB.Driver, "error", err)
		os.Exit(1)
	}

	blobs, err := storage.NewBlobs(ctx, cfg.Storage, log)
	if err != nil {
		log.Error("storage initialization failed", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}

	srv := devserver.New(cfg, db, blobs,
		devserver.WithLogger(log),
		devserver.WithMailer(services.NewMailer(cfg.Mail, log)),
	)
	if err := srv.Run(ctx); err != nil {
		log.Error("server error", "error", err)
		logger.Flush()
		os.Exit(1)
	}
}
