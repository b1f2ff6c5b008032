// Package forcelogout реализует HTTP-обработчик принудительного выхода
// со всех устройств пользователя, кроме текущего.
package forcelogout

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/quickbill/quickbill-backend/internal/http/middlewarectx"
	"github.com/quickbill/quickbill-backend/internal/http/response"
	"github.com/quickbill/quickbill-backend/internal/lib/sl"
)

// Request — структура входных данных принудительного выхода.
type Request struct {
	KeepSessionToken string `json:"keepSessionToken" validate:"required,len=64,alphanum"`
}

// Service описывает интерфейс реестра сессий.
type Service interface {
	ForceLogoutOthers(ctx context.Context, userID int64, keepToken string) (int64, error)
}

// Handler обрабатывает запросы принудительного выхода.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Выход со всех остальных устройств
// @Description Деактивирует все сессии пользователя, кроме переданной.
// @Tags Session
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Токен сессии, которую нужно сохранить"
// @Success 200 {object} map[string]any "Количество завершённых сессий"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /sessions/force-logout-others [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.session.forcelogout"

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

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	count, err := h.service.ForceLogoutOthers(r.Context(), userID, req.KeepSessionToken)
	if err != nil {
		log.Error("failed to force logout other sessions", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not log out other sessions"))
		return
	}

	log.Info("other sessions logged out", sl.UID(userID), slog.Int64("count", count))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"loggedOutCount": count,
	}))
}
