// Package disable реализует админский HTTP-обработчик блокировки аккаунта:
// подписки пользователя переводятся в disabled, а все сессии завершаются.
package disable

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

// Service описывает интерфейс движка подписок для блокировки.
type Service interface {
	Disable(ctx context.Context, userID int64) error
}

// Handler обрабатывает запросы блокировки аккаунта.
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
// @Summary Блокировка аккаунта (админ)
// @Description Переводит живые подписки пользователя в disabled и завершает все его сессии.
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Param userID path int true "Идентификатор пользователя"
// @Success 200 {object} map[string]any "Аккаунт заблокирован"
// @Failure 404 {object} response.ErrorResponse "Нет живых подписок"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/users/{userID}/disable [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.disable"

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

	if err := h.service.Disable(r.Context(), userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("no live subscription to disable"))
			return
		}
		log.Error("failed to disable user", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not disable user"))
		return
	}

	log.Info("user disabled", sl.UID(userID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"status": models.StatusDisabled,
	}))
}
