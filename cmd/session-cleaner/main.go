package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/quickbill/quickbill-backend/internal/app/cleaner"
	"github.com/quickbill/quickbill-backend/internal/config"
)

func main() {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger.Info("starting session-cleaner", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := cleaner.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize cleaner", slog.Any("err", err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("cleaner stopped with error", slog.Any("err", err))
		os.Exit(1)
	}

	logger.Info("session-cleaner stopped gracefully")
}
