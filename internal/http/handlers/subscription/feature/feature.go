// Package feature реализует HTTP-обработчик проверки доступа к функции
// приложения по текущему тарифу пользователя.
package feature

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/quickbill/quickbill-backend/internal/http/middlewarectx"
	"github.com/quickbill/quickbill-backend/internal/http/response"
	"github.com/quickbill/quickbill-backend/internal/lib/sl"
	"github.com/quickbill/quickbill-backend/internal/models"
)

// Service описывает интерфейс движка подписок для проверки функции.
type Service interface {
	HasFeature(ctx context.Context, userID int64, featureKey string) (*models.FeatureAccess, error)
}

// Handler обрабатывает запросы проверки доступа к функции.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Проверка доступа к функции
// @Description Отвечает, доступна ли функция пользователю, и причину отказа, если нет. Отказ — это ответ 200, а не ошибка.
// @Tags Subscription
// @Produce  json
// @Security BearerAuth
// @Param featureKey path string true "Ключ функции, например inventory_management"
// @Success 200 {object} map[string]any "Результат проверки"
// @Failure 401 {object} response.ErrorResponse "Нет авторизации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /subscriptions/check-feature/{featureKey} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.feature"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID, ok := middlewarectx.UserIDFromContext(r.Context())
	if !ok {
		log.Error("user identification missing")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("user identification missing"))
		return
	}

	featureKey := chi.URLParam(r, "featureKey")
	if featureKey == "" {
		render.JSON(w, r, response.Error("feature key is required"))
		return
	}

	access, err := h.service.HasFeature(r.Context(), userID, featureKey)
	if err != nil {
		log.Error("failed to check feature access", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not check feature access"))
		return
	}

	render.JSON(w, r, response.OKWithData(access))
}
