// Package check реализует HTTP-обработчик проверки сессии устройства.
//
// Недействительная сессия — это штатный ответ с isValid=false и причиной,
// а не ошибка: клиент по причине решает, какой экран показать пользователю.
package check

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

// Request — структура входных данных для проверки сессии.
type Request struct {
	SessionToken string `json:"sessionToken" validate:"required,len=64,alphanum"`
}

// Service описывает интерфейс реестра сессий.
type Service interface {
	Validate(ctx context.Context, userID int64, token string) (*models.SessionValidation, error)
}

// Handler обрабатывает запросы проверки сессии.
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
// @Summary Проверка сессии устройства
// @Description Проверяет, активна ли сессия с переданным токеном, и обновляет отметку последней активности.
// @Tags Session
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Токен сессии"
// @Success 200 {object} map[string]any "Результат проверки"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /sessions/check [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.session.check"

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

	validation, err := h.service.Validate(r.Context(), userID, req.SessionToken)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			render.JSON(w, r, response.OKWithData(&models.SessionValidation{
				Reason: models.SessionReasonNotFound,
			}))
			return
		}
		log.Error("failed to validate session", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not validate session"))
		return
	}

	render.JSON(w, r, response.OKWithData(validation))
}
