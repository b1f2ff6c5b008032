package models

import "time"

// Роли пользователей.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User представляет зарегистрированного владельца бизнеса.
// Email сравнивается без учёта регистра, уникальность обеспечивает индекс
// по lower(email).
type User struct {
	ID              int64      // Уникальный идентификатор пользователя
	Name            string     // Имя владельца
	Email           string     // Электронная почта (логин)
	Phone           string     // Телефон
	BusinessName    string     // Название бизнеса
	PasswordHash    string     // bcrypt-хэш пароля
	Role            string     // user или admin
	IsEmailVerified bool       // Подтверждена ли почта
	CreatedAt       time.Time  // Дата регистрации
	UpdatedAt       *time.Time // Дата последнего изменения
}

// PublicUser — представление пользователя в ответах API, без хэша пароля.
type PublicUser struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	BusinessName string `json:"businessName,omitempty"`
	Role         string `json:"role"`
}

// Public возвращает безопасное для выдачи наружу представление пользователя.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Phone:        u.Phone,
		BusinessName: u.BusinessName,
		Role:         u.Role,
	}
}
