// Package jwt реализует генерацию и парсинг JWT токенов с пользовательскими claim полями.
//
// Maker определяет интерфейс для создания и проверки токенов доступа,
// MakerImpl — конкретная реализация с секретным ключом и сроком жизни.
package jwt

import (
	"time"
)

// Maker описывает интерфейс для генерации и парсинга JWT токенов.
type Maker interface {
	// GenerateToken выпускает токен доступа с идентификатором пользователя,
	// email, ролью и идентификатором сессии устройства (может быть пустым).
	GenerateToken(userID int64, email, role, sessionID string) (string, error)
	// GenerateRefreshToken выпускает долгоживущий токен обновления.
	GenerateRefreshToken(userID int64, email string) (string, error)
	// ParseToken возвращает *CustomClaims, если токен корректен.
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// MakerImpl реализует интерфейс Maker с использованием секретного ключа.
type MakerImpl struct {
	secretKey  string        // Секретный ключ для подписи токенов
	tokenTTL   time.Duration // Время жизни токена доступа
	refreshTTL time.Duration // Время жизни токена обновления
}

// NewJWTMaker создаёт новый экземпляр MakerImpl.
func NewJWTMaker(secretKey string, tokenTTL, refreshTTL time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey:  secretKey,
		tokenTTL:   tokenTTL,
		refreshTTL: refreshTTL,
	}
}
