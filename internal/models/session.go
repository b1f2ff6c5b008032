package models

import "time"

// Метки причины инвалидации сессии, пишутся в sessions.invalidated_by.
const (
	InvalidatedByNewLogin      = "new_login"
	InvalidatedByForceLogout   = "force_logout"
	InvalidatedByManualLogout  = "manual_logout"
	InvalidatedByAdminDisabled = "admin_disabled"
)

// Причины отказа при проверке сессии.
const (
	SessionReasonNotFound    = "session_not_found"
	SessionReasonInvalidated = "session_invalidated"
)

// Session — запись реестра сессий. Инвариант хранилища: не более одной
// строки с is_active = true на пользователя.
type Session struct {
	ID            string     // uuid записи
	UserID        int64      // Владелец сессии
	SessionToken  string     // Случайный токен, уникален глобально
	DeviceID      string     // Идентификатор устройства
	DeviceInfo    DeviceInfo // Описание устройства
	IsActive      bool       // Живая ли сессия
	CreatedAt     time.Time  // Момент входа
	LastActive    time.Time  // Последняя успешная проверка
	InvalidatedAt *time.Time // Когда сессия была погашена
	InvalidatedBy string     // Причина погашения (см. InvalidatedBy*)
}

// DeviceInfo — описание устройства, передаётся клиентом при входе
// и хранится в jsonb.
type DeviceInfo struct {
	DeviceID   string `json:"deviceId,omitempty"`
	DeviceName string `json:"deviceName,omitempty"`
	DeviceType string `json:"deviceType,omitempty"`
	Platform   string `json:"platform,omitempty"`
	OSVersion  string `json:"osVersion,omitempty"`
	AppVersion string `json:"appVersion,omitempty"`
}

// SessionValidation — результат проверки сессии при поллинге клиента.
type SessionValidation struct {
	IsValid bool   `json:"isValid"`
	Reason  string `json:"reason,omitempty"`
}
