// Package deactivate реализует админский HTTP-обработчик отмены подписки.
package deactivate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/quickbill/quickbill-backend/internal/http/response"
	"github.com/quickbill/quickbill-backend/internal/lib/sl"
	"github.com/quickbill/quickbill-backend/internal/models"
)

// Service описывает интерфейс движка подписок для отмены.
type Service interface {
	Deactivate(ctx context.Context, userID int64) error
}

// Handler обрабатывает запросы отмены подписки.
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
// @Summary Отмена подписки (админ)
// @Description Переводит живую подписку пользователя в статус cancelled. Отмена необратима.
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Param userID path int true "Идентификатор пользователя"
// @Success 200 {object} map[string]any "Подписка отменена"
// @Failure 422 {object} response.ErrorResponse "Нет живой подписки"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/subscriptions/{userID}/deactivate [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.deactivate"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		log.Error("failed to decode user id from url", sl.Err(err))
		render.JSON(w, r, response.Error("failed to decode user id from url"))
		return
	}

	if err := h.service.Deactivate(r.Context(), userID); err != nil {
		if errors.Is(err, models.ErrInvalidState) || errors.Is(err, models.ErrNotFound) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error("no live subscription to cancel"))
			return
		}
		log.Error("failed to deactivate subscription", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not deactivate subscription"))
		return
	}

	log.Info("subscription deactivated", sl.UID(userID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"status": models.StatusCancelled,
	}))
}
