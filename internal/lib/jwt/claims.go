package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TokenTypeAccess — короткоживущий токен для авторизации запросов.
	TokenTypeAccess = "access"
	// TokenTypeRefresh — долгоживущий токен для обновления пары токенов.
	TokenTypeRefresh = "refresh"
)

// CustomClaims описывает пользовательские данные, хранящиеся в JWT.
// SessionID связывает токен с записью реестра сессий и пуст, если вход
// выполнен без данных об устройстве.
type CustomClaims struct {
	UserID               int64  `json:"user_id"`
	Email                string `json:"email"`
	Role                 string `json:"role"`
	SessionID            string `json:"session_id,omitempty"`
	TokenType            string `json:"token_type,omitempty"`
	jwt.RegisteredClaims        // Стандартные claims JWT (ExpiresAt, IssuedAt и пр.)
}

// GenerateToken создает токен доступа, подписывая его секретным ключом.
func (j *MakerImpl) GenerateToken(userID int64, email, role, sessionID string) (string, error) {
	claims := CustomClaims{
		UserID:    userID,
		Email:     email,
		Role:      role,
		SessionID: sessionID,
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(j.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.secretKey))
}

// GenerateRefreshToken создает долгоживущий токен обновления без роли и сессии.
func (j *MakerImpl) GenerateRefreshToken(userID int64, email string) (string, error) {
	claims := CustomClaims{
		UserID:    userID,
		Email:     email,
		TokenType: TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(j.refreshTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.secretKey))
}

// ParseToken парсит JWT токен, проверяет его подпись и валидность,
// возвращает CustomClaims с данными, если токен корректен.
func (j *MakerImpl) ParseToken(tokenStr string) (*CustomClaims, error) {
	const op = "jwt.ParseToken"
	token, err := jwt.ParseWithClaims(tokenStr, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(j.secretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: invalid token", op)
	}
	return claims, nil
}
