// Package verify реализует админский HTTP-обработчик подтверждения заявки
// на оплату. Подтверждение создаёт оплаченную подписку и публикует событие
// для воркера уведомлений.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/quickbill/quickbill-backend/internal/http/middlewarectx"
	"github.com/quickbill/quickbill-backend/internal/http/response"
	"github.com/quickbill/quickbill-backend/internal/lib/sl"
	"github.com/quickbill/quickbill-backend/internal/models"
)

// Request — структура входных данных для подтверждения заявки.
type Request struct {
	PaymentID int64 `json:"paymentId" validate:"required,min=1"`
}

// Service описывает интерфейс бизнес-логики ручной оплаты.
type Service interface {
	Verify(ctx context.Context, paymentID int64, adminEmail string) error
}

// Handler обрабатывает запросы подтверждения заявки.
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
// @Summary Подтверждение заявки на оплату (админ)
// @Description Подтверждает заявку, создаёт оплаченную подписку и отправляет пользователю письмо. Повторное решение невозможно.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Идентификатор заявки"
// @Success 200 {object} map[string]any "Заявка подтверждена"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "Заявка не найдена"
// @Failure 409 {object} response.ErrorResponse "Заявка уже обработана"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/payments/verify [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.verify"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	adminEmail, _ := r.Context().Value(middlewarectx.Email).(string)

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

	if err := h.service.Verify(r.Context(), req.PaymentID, adminEmail); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("payment not found"))
		case errors.Is(err, models.ErrAlreadyProcessed):
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("payment already processed"))
		default:
			log.Error("failed to verify payment", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not verify payment"))
		}
		return
	}

	log.Info("payment verified", slog.Int64("payment_id", req.PaymentID), slog.String("verified_by", adminEmail))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"paymentId": req.PaymentID,
		"status":    models.PaymentVerified,
	}))
}
