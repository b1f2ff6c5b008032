// Package session реализует реестр сессий устройств: у пользователя не
// бывает двух активных сессий, побеждает последний вход. Клиент проверяет
// свою сессию поллингом, push-доставки инвалидации нет.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/quickbill/quickbill-backend/internal/config"
	"github.com/quickbill/quickbill-backend/internal/lib/sl"
	"github.com/quickbill/quickbill-backend/internal/models"
)

// Repository определяет методы хранилища реестра сессий.
type Repository interface {
	CreateSession(ctx context.Context, userID int64, token, deviceID string, deviceInfo models.DeviceInfo) (*models.Session, error)
	FindSessionByToken(ctx context.Context, userID int64, token string) (*models.Session, error)
	TouchSession(ctx context.Context, sessionID string) error
	InvalidateAllSessions(ctx context.Context, userID int64, reason string) (int64, error)
	InvalidateOtherSessions(ctx context.Context, userID int64, keepToken, reason string) (int64, error)
	InvalidateSessionByToken(ctx context.Context, token, reason string) (int64, error)
	ListSessions(ctx context.Context, userID int64, onlyActive bool, limit int) ([]*models.Session, error)
	DeleteStaleSessions(ctx context.Context, retentionDays int) (int64, error)
}

// Service реализует операции реестра сессий.
type Service struct {
	repo Repository
	cfg  config.Billing
	log  *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo Repository, cfg config.Billing, log *slog.Logger) *Service {
	return &Service{repo: repo, cfg: cfg, log: log}
}

const historyLimit = 50

// Create регистрирует новую сессию устройства. Все прежние активные сессии
// пользователя гасятся с меткой new_login в той же транзакции хранилища.
func (s *Service) Create(ctx context.Context, userID int64, device models.DeviceInfo) (*models.Session, error) {
	const op = "session.Create"

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	deviceID := device.DeviceID
	if deviceID == "" {
		deviceID = uuid.NewString()
		device.DeviceID = deviceID
	}

	session, err := s.repo.CreateSession(ctx, userID, token, deviceID, device)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("session created",
		sl.UID(userID),
		slog.String("session_id", session.ID),
		slog.String("device_id", deviceID))
	return session, nil
}

// Validate проверяет сессию по токену. Живая сессия получает отметку
// last_active; отсутствующая или погашенная возвращает причину отказа,
// а не ошибку.
func (s *Service) Validate(ctx context.Context, userID int64, token string) (*models.SessionValidation, error) {
	const op = "session.Validate"

	session, err := s.repo.FindSessionByToken(ctx, userID, token)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &models.SessionValidation{Reason: models.SessionReasonNotFound}, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !session.IsActive {
		return &models.SessionValidation{Reason: models.SessionReasonInvalidated}, nil
	}

	if err := s.repo.TouchSession(ctx, session.ID); err != nil {
		// Проверка прошла, неудачная отметка активности её не отменяет.
		s.log.Warn("failed to touch session", slog.String("session_id", session.ID), sl.Err(err))
	}
	return &models.SessionValidation{IsValid: true}, nil
}

// ForceLogoutOthers гасит все активные сессии пользователя, кроме текущей.
func (s *Service) ForceLogoutOthers(ctx context.Context, userID int64, keepToken string) (int64, error) {
	const op = "session.ForceLogoutOthers"

	n, err := s.repo.InvalidateOtherSessions(ctx, userID, keepToken, models.InvalidatedByForceLogout)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("other sessions invalidated", sl.UID(userID), slog.Int64("count", n))
	return n, nil
}

// Logout гасит одну сессию по её токену.
func (s *Service) Logout(ctx context.Context, token string) error {
	const op = "session.Logout"

	n, err := s.repo.InvalidateSessionByToken(ctx, token, models.InvalidatedByManualLogout)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return nil
}

// InvalidateAll гасит все активные сессии пользователя с переданной причиной.
// Используется движком подписок при отключении аккаунта администратором.
func (s *Service) InvalidateAll(ctx context.Context, userID int64, reason string) (int64, error) {
	const op = "session.InvalidateAll"

	n, err := s.repo.InvalidateAllSessions(ctx, userID, reason)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("all sessions invalidated",
		sl.UID(userID), slog.String("reason", reason), slog.Int64("count", n))
	return n, nil
}

// ListActive возвращает активные сессии пользователя.
func (s *Service) ListActive(ctx context.Context, userID int64) ([]*models.Session, error) {
	const op = "session.ListActive"

	sessions, err := s.repo.ListSessions(ctx, userID, true, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sessions, nil
}

// History возвращает последние сессии пользователя, включая погашенные.
func (s *Service) History(ctx context.Context, userID int64, limit int) ([]*models.Session, error) {
	const op = "session.History"

	if limit <= 0 || limit > historyLimit {
		limit = historyLimit
	}
	sessions, err := s.repo.ListSessions(ctx, userID, false, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sessions, nil
}

// CleanupStale удаляет сессии, погашенные или брошенные дольше срока
// хранения назад.
func (s *Service) CleanupStale(ctx context.Context) (int64, error) {
	const op = "session.CleanupStale"

	days := int(s.cfg.SessionRetention.Hours() / 24)
	if days <= 0 {
		days = 30
	}
	n, err := s.repo.DeleteStaleSessions(ctx, days)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("stale sessions removed", slog.Int64("count", n), slog.Int("retention_days", days))
	return n, nil
}

// generateToken возвращает 64 шестнадцатеричных символа из 32 случайных байт.
func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
