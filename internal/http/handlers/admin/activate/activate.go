// Package activate реализует админский HTTP-обработчик ручной активации
// оплаченной подписки пользователю.
package activate

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

// Request — структура входных данных для активации подписки.
type Request struct {
	Plan         string  `json:"plan" validate:"required,min=2,max=50"`
	DurationDays int     `json:"durationDays" validate:"required,min=1,max=1095"`
	AmountPaid   float64 `json:"amountPaid" validate:"min=0"`
}

// Service описывает интерфейс движка подписок для активации.
type Service interface {
	Activate(ctx context.Context, userID int64, plan string, days int, amountPaid float64) (*models.Subscription, error)
}

// Handler обрабатывает запросы активации подписки.
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
// @Summary Активация подписки (админ)
// @Description Создает пользователю оплаченную подписку на указанный тариф и срок. Живые подписки пользователя отменяются.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param userID path int true "Идентификатор пользователя"
// @Param request body Request true "Тариф и срок"
// @Success 200 {object} map[string]any "Созданная подписка"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации или неизвестный тариф"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/subscriptions/{userID}/activate [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.activate"

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

	sub, err := h.service.Activate(r.Context(), userID, req.Plan, req.DurationDays, req.AmountPaid)
	if err != nil {
		if errors.Is(err, models.ErrInvalidState) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error("unknown plan"))
			return
		}
		log.Error("failed to activate subscription", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not activate subscription"))
		return
	}

	log.Info("subscription activated", sl.UID(userID), slog.String("plan", req.Plan))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"subscription": sub,
	}))
}
