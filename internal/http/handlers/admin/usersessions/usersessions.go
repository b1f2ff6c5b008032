// Package usersessions реализует админский HTTP-обработчик истории сессий
// пользователя, включая завершённые.
package usersessions

import (
	"context"
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

// Service описывает интерфейс реестра сессий для истории.
type Service interface {
	History(ctx context.Context, userID int64, limit int) ([]*models.Session, error)
}

// Handler обрабатывает запросы истории сессий.
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
// @Summary Сессии пользователя (админ)
// @Description Возвращает историю сессий пользователя с причинами завершения. Параметр limit ограничивает выборку.
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Param userID path int true "Идентификатор пользователя"
// @Param limit query int false "Максимум записей"
// @Success 200 {object} map[string]any "История сессий"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/users/{userID}/sessions [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.usersessions"

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

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	sessions, err := h.service.History(r.Context(), userID, limit)
	if err != nil {
		log.Error("failed to list user sessions", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not list user sessions"))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"sessions": sessions,
	}))
}
