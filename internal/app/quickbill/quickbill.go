// Package quickbill собирает основное приложение API: хранилище, миграции,
// кэш, брокер событий и HTTP-сервер с маршрутами.
package quickbill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/quickbill/quickbill-backend/internal/cache"
	"github.com/quickbill/quickbill-backend/internal/config"
	jwtlib "github.com/quickbill/quickbill-backend/internal/lib/jwt"
	librabbit "github.com/quickbill/quickbill-backend/internal/lib/rabbitmq"
	"github.com/quickbill/quickbill-backend/internal/migrations"
	"github.com/quickbill/quickbill-backend/internal/rabbitmq"
	authservice "github.com/quickbill/quickbill-backend/internal/services/auth"
	paymentservice "github.com/quickbill/quickbill-backend/internal/services/payment"
	sessionservice "github.com/quickbill/quickbill-backend/internal/services/session"
	subservice "github.com/quickbill/quickbill-backend/internal/services/subscription"
	"github.com/quickbill/quickbill-backend/internal/storage/repository"
)

// App — основное приложение API.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	conn   *amqp.Connection
	ch     *amqp.Channel
}

// New создает приложение: подключает все зависимости и собирает маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}
	ch, err := rabbitmq.SetupChannel(conn, librabbit.GetNotificationQueues())
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}
	publisher := librabbit.NewNotificationPublisher(ch)

	maker := jwtlib.NewJWTMaker(cfg.JWT.SecretKey, cfg.JWT.TokenTTL, cfg.JWT.RefreshTTL)

	// Реестр сессий собирается раньше движка подписок: блокировка аккаунта
	// гасит сессии через движок.
	sessionService := sessionservice.New(db, cfg.Billing, logger)
	subscriptionService := subservice.New(db, sessionService, cacheRedis, cfg.Billing, cfg.RedisConnection.SnapshotTTL, logger)
	authService := authservice.New(db, subscriptionService, sessionService, maker, cfg, logger)
	paymentService := paymentservice.New(db, publisher, cacheRedis, cfg.UPI, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, maker, authService, subscriptionService, sessionService, paymentService)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		conn:   conn,
		ch:     ch,
	}, nil
}

// Run запускает HTTP-сервер и корректно гасит его по отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if cerr := a.ch.Close(); cerr != nil {
			a.logger.Error("failed to close channel", slog.Any("err", cerr))
		}
		if cerr := a.conn.Close(); cerr != nil {
			a.logger.Error("failed to close connection", slog.Any("err", cerr))
		}
		if cerr := a.db.DB.Close(); cerr != nil {
			a.logger.Error("failed to close storage", slog.Any("err", cerr))
		}
		return err
	}
}
