// Package reject реализует админский HTTP-обработчик отклонения заявки
// на оплату с указанием причины.
package reject

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

// Request — структура входных данных для отклонения заявки.
type Request struct {
	PaymentID int64  `json:"paymentId" validate:"required,min=1"`
	Reason    string `json:"reason" validate:"required,min=3,max=500"`
}

// Service описывает интерфейс бизнес-логики ручной оплаты.
type Service interface {
	Reject(ctx context.Context, paymentID int64, adminEmail, reason string) error
}

// Handler обрабатывает запросы отклонения заявки.
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
// @Summary Отклонение заявки на оплату (админ)
// @Description Отклоняет заявку с причиной и отправляет пользователю письмо. Повторное решение невозможно.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Идентификатор заявки и причина"
// @Success 200 {object} map[string]any "Заявка отклонена"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "Заявка не найдена"
// @Failure 409 {object} response.ErrorResponse "Заявка уже обработана"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/payments/reject [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.reject"

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

	if err := h.service.Reject(r.Context(), req.PaymentID, adminEmail, req.Reason); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("payment not found"))
		case errors.Is(err, models.ErrAlreadyProcessed):
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("payment already processed"))
		default:
			log.Error("failed to reject payment", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not reject payment"))
		}
		return
	}

	log.Info("payment rejected", slog.Int64("payment_id", req.PaymentID), slog.String("verified_by", adminEmail))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"paymentId": req.PaymentID,
		"status":    models.PaymentRejected,
	}))
}
