// Package models содержит доменные структуры биллинга QuickBill:
// пользователей, подписки, сессии устройств и ручные платежи,
// а также типовые ошибки доменного уровня.
package models

import "errors"

// Типовые ошибки доменного уровня. Репозитории и сервисы возвращают их
// завёрнутыми через fmt.Errorf("%s: %w", op, err); HTTP-слой проверяет
// errors.Is и выбирает код ответа.
var (
	// ErrNotFound — пользователь, подписка, сессия или платеж не найдены.
	ErrNotFound = errors.New("not found")
	// ErrEmailTaken — пользователь с таким email уже зарегистрирован.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials — неверная пара email/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAlreadyHadTrial — пробный период уже выдавался этому пользователю.
	ErrAlreadyHadTrial = errors.New("trial already granted")
	// ErrAlreadyProcessed — платеж уже подтвержден или отклонен.
	ErrAlreadyProcessed = errors.New("payment already processed")
	// ErrInvalidState — операция неприменима к текущему состоянию записи,
	// например продление отключенной администратором подписки.
	ErrInvalidState = errors.New("operation not allowed in current state")
)
