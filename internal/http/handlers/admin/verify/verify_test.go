package verify

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/quickbill/quickbill-backend/internal/http/middlewarectx"
	"github.com/quickbill/quickbill-backend/internal/models"
)

// MockService реализует интерфейс verify.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) Verify(ctx context.Context, paymentID int64, adminEmail string) error {
	return m.Called(ctx, paymentID, adminEmail).Error(0)
}

func TestVerifyHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "успешное подтверждение",
			body: `{"paymentId":7}`,
			setupMock: func(m *MockService) {
				m.On("Verify", mock.Anything, int64(7), "admin@quickbill.app").Return(nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"status":"verified"`,
		},
		{
			name: "повторное решение по заявке",
			body: `{"paymentId":7}`,
			setupMock: func(m *MockService) {
				m.On("Verify", mock.Anything, int64(7), "admin@quickbill.app").
					Return(models.ErrAlreadyProcessed)
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `"error":"payment already processed"`,
		},
		{
			name:           "заявка без идентификатора",
			body:           `{}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field PaymentID is a required field`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(logger, mockService)

			req := httptest.NewRequest(http.MethodPost, "/admin/payments/verify", strings.NewReader(tt.body))
			ctx := context.WithValue(req.Context(), middlewarectx.Email, "admin@quickbill.app")
			req = req.WithContext(ctx)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.True(t, strings.Contains(w.Body.String(), tt.expectedBody),
				"response body should contain %s, got %s", tt.expectedBody, w.Body.String())

			mockService.AssertExpectations(t)
		})
	}
}
