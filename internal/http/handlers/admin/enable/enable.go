// Package enable реализует админский HTTP-обработчик разблокировки аккаунта.
package enable

import (
	"context"
	"encoding/json"
	"errors"
	"io"
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

// Request — структура входных данных для разблокировки. Тело опционально:
// по умолчанию подписка восстанавливается в активный статус.
type Request struct {
	RestorePrevious bool `json:"restorePrevious"`
}

// Service описывает интерфейс движка подписок для разблокировки.
type Service interface {
	Enable(ctx context.Context, userID int64, restorePrevious bool) error
}

// Handler обрабатывает запросы разблокировки аккаунта.
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
// @Summary Разблокировка аккаунта (админ)
// @Description Возвращает disabled-подписки пользователя в живой статус. Движок пересчитает реальный статус при следующем чтении.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param userID path int true "Идентификатор пользователя"
// @Param request body Request false "Режим восстановления"
// @Success 200 {object} map[string]any "Аккаунт разблокирован"
// @Failure 422 {object} response.ErrorResponse "Нет заблокированных подписок"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/users/{userID}/enable [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.enable"

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

	req := Request{RestorePrevious: true}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.service.Enable(r.Context(), userID, req.RestorePrevious); err != nil {
		if errors.Is(err, models.ErrInvalidState) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error("no disabled subscription to enable"))
			return
		}
		log.Error("failed to enable user", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not enable user"))
		return
	}

	log.Info("user enabled", sl.UID(userID), slog.Bool("restore", req.RestorePrevious))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"enabled": true,
	}))
}
