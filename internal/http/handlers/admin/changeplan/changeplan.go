// Package changeplan реализует админский HTTP-обработчик смены тарифа
// живой подписки без изменения дат.
package changeplan

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/quickbill/quickbill-backend/internal/http/response"
	"github.com/quickbill/quickbill-backend/internal/lib/sl"
	"github.com/quickbill/quickbill-backend/internal/models"
)

// Request — структура входных данных для смены тарифа.
type Request struct {
	Plan string `json:"plan" validate:"required,min=2,max=50"`
}

// Service описывает интерфейс движка подписок для смены тарифа.
type Service interface {
	ChangePlan(ctx context.Context, userID int64, plan string) error
}

// Handler обрабатывает запросы смены тарифа.
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
// @Summary Смена тарифа (админ)
// @Description Меняет тариф живой подписки пользователя, даты окончания не трогает.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param userID path int true "Идентификатор пользователя"
// @Param request body Request true "Новый тариф"
// @Success 200 {object} map[string]any "Тариф изменён"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "Нет живой подписки"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации или неизвестный тариф"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/subscriptions/{userID}/change-plan [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.changeplan"

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

	if err := h.service.ChangePlan(r.Context(), userID, req.Plan); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidState):
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error("unknown plan"))
		case errors.Is(err, models.ErrNotFound):
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("no live subscription"))
		default:
			log.Error("failed to change plan", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not change plan"))
		}
		return
	}

	log.Info("plan changed", sl.UID(userID), slog.String("plan", req.Plan))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"plan": models.NormalizePlan(req.Plan),
	}))
}
