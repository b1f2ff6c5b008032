// Package cleaner собирает фоновую задачу уборки реестра сессий: старые
// неактивные записи удаляются по расписанию.
package cleaner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quickbill/quickbill-backend/internal/config"
	"github.com/quickbill/quickbill-backend/internal/lib/sl"
	sessionservice "github.com/quickbill/quickbill-backend/internal/services/session"
	"github.com/quickbill/quickbill-backend/internal/storage/repository"
)

// App — приложение уборщика сессий.
type App struct {
	sessionService *sessionservice.Service
	db             *repository.Storage
	interval       time.Duration
	logger         *slog.Logger
}

func waitForDB(db *repository.Storage) error {
	for i := 0; i < 10; i++ {
		err := repository.CheckDatabaseReady(db)
		if err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New создает уборщика с подключением к хранилищу.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}

	if err := waitForDB(db); err != nil {
		_ = db.DB.Close()
		return nil, err
	}

	sessionService := sessionservice.New(db, cfg.Billing, logger)

	return &App{
		sessionService: sessionService,
		db:             db,
		interval:       cfg.Billing.CleanupInterval,
		logger:         logger,
	}, nil
}

// Run выполняет уборку сразу при старте и далее по тикеру,
// пока контекст не отменён.
func (a *App) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.cleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("session cleaner shutting down gracefully")
			if err := a.db.DB.Close(); err != nil {
				a.logger.Error("failed to close storage", slog.Any("err", err))
			}
			return nil
		case <-ticker.C:
			a.cleanup(ctx)
		}
	}
}

func (a *App) cleanup(ctx context.Context) {
	removed, err := a.sessionService.CleanupStale(ctx)
	if err != nil {
		a.logger.Error("failed to cleanup stale sessions", sl.Err(err))
		return
	}
	a.logger.Info("stale sessions removed", slog.Int64("count", removed))
}
