// Package reference реализует HTTP-обработчик приёма номера UPI-транзакции
// по ожидающей заявке на оплату.
package reference

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

// Request — структура входных данных для отправки номера транзакции.
type Request struct {
	PaymentID     int64  `json:"paymentId" validate:"required,min=1"`
	Reference     string `json:"reference" validate:"required,min=4,max=64"`
	ScreenshotURL string `json:"screenshotUrl" validate:"omitempty,url"`
}

// Service описывает интерфейс бизнес-логики ручной оплаты.
type Service interface {
	SubmitReference(ctx context.Context, userID, paymentID int64, reference, screenshotURL string) error
}

// Handler обрабатывает запросы отправки номера транзакции.
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
// @Summary Отправка номера UPI-транзакции
// @Description Прикладывает номер транзакции и, опционально, скриншот к ожидающей заявке пользователя.
// @Tags Payment
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Номер транзакции"
// @Success 200 {object} map[string]any "Номер принят"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "Заявка не найдена или уже обработана"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /payments/reference [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.reference"

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

	err := h.service.SubmitReference(r.Context(), userID, req.PaymentID, req.Reference, req.ScreenshotURL)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("pending payment not found"))
			return
		}
		log.Error("failed to submit payment reference", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not submit payment reference"))
		return
	}

	log.Info("payment reference submitted", sl.UID(userID), slog.Int64("payment_id", req.PaymentID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"paymentId": req.PaymentID,
		"status":    models.PaymentPending,
	}))
}
