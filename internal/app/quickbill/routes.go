// Package quickbill предоставляет маршруты для основного приложения.
package quickbill

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/quickbill/quickbill-backend/internal/http/handlers/admin/activate"
	"github.com/quickbill/quickbill-backend/internal/http/handlers/admin/changeplan"
	"github.com/quickbill/quickbill-backend/internal/http/handlers/admin/deactivate"
	"github.com/quickbill/quickbill-backend/internal/http/handlers/admin/disable"
	"github.com/quickbill/quickbill-backend/internal/http/handlers/admin/enable"
	"github.com/quickbill/quickbill-backend/internal/http/handlers/admin/extend"
	"github.com/quickbill/quickbill-backend/internal/http/handlers/admin/pending"
	"github.com/quickbill/quickbill-backend/internal/http/handlers/admin/reject"
	"github.com/quickbill/quickbill-backend/internal/http/handlers/admin/subhistory"
	"github.com/quickbill/quickbill-backend/internal/http/handlers/admin/usersessions"
	"github.com/quickbill/quickbill-backend/internal/http/handlers/admin/verify"
	"github.com/quickbill/quickbill-backend/internal/http/handlers/auth/login"
	"github.com/quickbill/quickbill-backend/internal/http/handlers/auth/register"
	"github.com/quickbill/quickbill-backend/internal/http/handlers/payment/order"
	"github.com/quickbill/quickbill-backend/internal/http/handlers/payment/plans"
	"github.com/quickbill/quickbill-backend/internal/http/handlers/payment/reference"
	"github.com/quickbill/quickbill-backend/internal/http/handlers/session/check"
	"github.com/quickbill/quickbill-backend/internal/http/handlers/session/forcelogout"
	sessionlist "github.com/quickbill/quickbill-backend/internal/http/handlers/session/list"
	"github.com/quickbill/quickbill-backend/internal/http/handlers/session/logout"
	"github.com/quickbill/quickbill-backend/internal/http/handlers/subscription/feature"
	"github.com/quickbill/quickbill-backend/internal/http/handlers/subscription/health"
	"github.com/quickbill/quickbill-backend/internal/http/handlers/subscription/status"
	"github.com/quickbill/quickbill-backend/internal/http/middlewarectx"
	jwtlib "github.com/quickbill/quickbill-backend/internal/lib/jwt"
	authservice "github.com/quickbill/quickbill-backend/internal/services/auth"
	paymentservice "github.com/quickbill/quickbill-backend/internal/services/payment"
	sessionservice "github.com/quickbill/quickbill-backend/internal/services/session"
	subservice "github.com/quickbill/quickbill-backend/internal/services/subscription"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(
	r chi.Router,
	logger *slog.Logger,
	maker jwtlib.Maker,
	authService *authservice.Service,
	subscriptionService *subservice.Service,
	sessionService *sessionservice.Service,
	paymentService *paymentservice.Service,
) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/register", register.New(logger, authService).ServeHTTP)
		r.Post("/login", login.New(logger, authService).ServeHTTP)
		r.Get("/health", health.New(logger).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(maker, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Get("/subscriptions/status", status.New(logger, subscriptionService).ServeHTTP)
			r.Get("/subscriptions/plans", plans.New(logger, paymentService).ServeHTTP)
			r.Get("/subscriptions/check-feature/{featureKey}", feature.New(logger, subscriptionService).ServeHTTP)
			r.Post("/payments/order", order.New(logger, paymentService).ServeHTTP)
			r.Post("/payments/reference", reference.New(logger, paymentService).ServeHTTP)
			r.Post("/sessions/check", check.New(logger, sessionService).ServeHTTP)
			r.Post("/sessions/logout", logout.New(logger, sessionService).ServeHTTP)
			r.Post("/sessions/force-logout-others", forcelogout.New(logger, sessionService).ServeHTTP)
			r.Get("/sessions/active", sessionlist.New(logger, sessionService).ServeHTTP)
		})

		// Админская консоль
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(maker, logger))
			r.Use(middlewarectx.AdminOnlyMiddleware(logger))
			r.Post("/admin/subscriptions/{userID}/activate", activate.New(logger, subscriptionService).ServeHTTP)
			r.Post("/admin/subscriptions/{userID}/deactivate", deactivate.New(logger, subscriptionService).ServeHTTP)
			r.Post("/admin/subscriptions/{userID}/extend", extend.New(logger, subscriptionService).ServeHTTP)
			r.Post("/admin/subscriptions/{userID}/change-plan", changeplan.New(logger, subscriptionService).ServeHTTP)
			r.Get("/admin/subscriptions/{userID}/history", subhistory.New(logger, subscriptionService).ServeHTTP)
			r.Post("/admin/users/{userID}/disable", disable.New(logger, subscriptionService).ServeHTTP)
			r.Post("/admin/users/{userID}/enable", enable.New(logger, subscriptionService).ServeHTTP)
			r.Get("/admin/users/{userID}/sessions", usersessions.New(logger, sessionService).ServeHTTP)
			r.Get("/admin/payments/pending", pending.New(logger, paymentService).ServeHTTP)
			r.Post("/admin/payments/verify", verify.New(logger, paymentService).ServeHTTP)
			r.Post("/admin/payments/reject", reject.New(logger, paymentService).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
