package middlewarectx

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwtlib "github.com/quickbill/quickbill-backend/internal/lib/jwt"
	"github.com/quickbill/quickbill-backend/internal/models"
)

func TestJWTMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	maker := jwtlib.NewJWTMaker("test_secret", 15*time.Minute, time.Hour)

	accessToken, err := maker.GenerateToken(42, "owner@shop.in", models.RoleUser, "sid-1")
	require.NoError(t, err)
	refreshToken, err := maker.GenerateRefreshToken(42, "owner@shop.in")
	require.NoError(t, err)

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
		wantNext       bool
	}{
		{
			name:           "валидный access-токен пропускается",
			authHeader:     "Bearer " + accessToken,
			expectedStatus: http.StatusOK,
			wantNext:       true,
		},
		{
			name:           "refresh-токен не годится для авторизации",
			authHeader:     "Bearer " + refreshToken,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "отсутствующий заголовок",
			authHeader:     "",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "мусор вместо токена",
			authHeader:     "Bearer not.a.jwt",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nextCalled := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				nextCalled = true
				userID, ok := UserIDFromContext(r.Context())
				assert.True(t, ok)
				assert.Equal(t, int64(42), userID)
				assert.Equal(t, models.RoleUser, r.Context().Value(Role))
				assert.Equal(t, "sid-1", r.Context().Value(SessionID))
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/subscriptions/status", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()

			JWTMiddleware(maker, logger)(next).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.wantNext, nextCalled)
		})
	}
}
