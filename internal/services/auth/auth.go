// Package auth реализует регистрацию и вход пользователей: проверку
// учётных данных, выпуск JWT, создание сессии устройства и автоматическую
// выдачу пробного периода при первом входе.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quickbill/quickbill-backend/internal/lib/jwt"
	"github.com/quickbill/quickbill-backend/internal/lib/password"
	"github.com/quickbill/quickbill-backend/internal/lib/sl"
	"github.com/quickbill/quickbill-backend/internal/models"
)

// UserRepository определяет методы хранилища пользователей.
type UserRepository interface {
	CreateUser(ctx context.Context, user models.User) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, userID int64) (*models.User, error)
	UpdateUserRole(ctx context.Context, userID int64, role string) error
}

// SubscriptionEngine — часть движка подписок, нужная входу.
type SubscriptionEngine interface {
	GetCurrent(ctx context.Context, userID int64) (*models.Snapshot, error)
	CreateTrial(ctx context.Context, userID int64) (*models.Subscription, error)
}

// SessionRegistry создает сессию устройства при входе.
type SessionRegistry interface {
	Create(ctx context.Context, userID int64, device models.DeviceInfo) (*models.Session, error)
}

// AdminList проверяет принадлежность email к списку администраторов.
type AdminList interface {
	IsAdminEmail(email string) bool
}

// Result — итог регистрации или входа.
type Result struct {
	User         models.PublicUser `json:"user"`
	Token        string            `json:"token"`
	RefreshToken string            `json:"refreshToken"`
	SessionToken string            `json:"sessionToken,omitempty"`
	SessionID    string            `json:"sessionId,omitempty"`
	Subscription *models.Snapshot  `json:"subscription,omitempty"`
	IsAdmin      bool              `json:"isAdmin"`
}

// Service реализует сценарии аутентификации.
type Service struct {
	users    UserRepository
	subs     SubscriptionEngine
	sessions SessionRegistry
	maker    jwt.Maker
	admins   AdminList
	log      *slog.Logger
}

// New создает новый экземпляр Service.
func New(users UserRepository, subs SubscriptionEngine, sessions SessionRegistry, maker jwt.Maker, admins AdminList, log *slog.Logger) *Service {
	return &Service{
		users:    users,
		subs:     subs,
		sessions: sessions,
		maker:    maker,
		admins:   admins,
		log:      log,
	}
}

// RegisterRequest — данные регистрации нового владельца бизнеса.
type RegisterRequest struct {
	Name         string
	Email        string
	Phone        string
	BusinessName string
	Password     string
}

// Register создает пользователя, выдает пробный период и выпускает токены.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Result, error) {
	const op = "auth.Register"

	hash, err := password.GetHash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	role := models.RoleUser
	if s.admins.IsAdminEmail(req.Email) {
		role = models.RoleAdmin
	}
	user := models.User{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		BusinessName: req.BusinessName,
		PasswordHash: hash,
		Role:         role,
	}
	userID, err := s.users.CreateUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user.ID = userID

	if _, err := s.subs.CreateTrial(ctx, userID); err != nil {
		// Регистрация состоялась, пробный период доберётся при первом входе.
		s.log.Error("failed to create trial at registration", sl.UID(userID), sl.Err(err))
	}

	result, err := s.issueTokens(&user, "")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("user registered", sl.UID(userID), slog.String("role", role))
	return result, nil
}

// Login проверяет учётные данные и собирает итог входа: токены, сессию
// устройства (если переданы данные об устройстве) и срез подписки.
// Email из списка администраторов повышается до роли admin прямо на входе.
func (s *Service) Login(ctx context.Context, email, pass string, device *models.DeviceInfo) (*Result, error) {
	const op = "auth.Login"

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(user.PasswordHash, pass); err != nil {
		return nil, fmt.Errorf("%s: %w", op, models.ErrInvalidCredentials)
	}

	if s.admins.IsAdminEmail(user.Email) && user.Role != models.RoleAdmin {
		if err := s.users.UpdateUserRole(ctx, user.ID, models.RoleAdmin); err != nil {
			s.log.Error("failed to promote admin", sl.UID(user.ID), sl.Err(err))
		} else {
			user.Role = models.RoleAdmin
			s.log.Info("user promoted to admin", sl.UID(user.ID))
		}
	}

	var sessionToken, sessionID string
	if device != nil {
		session, err := s.sessions.Create(ctx, user.ID, *device)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		sessionToken = session.SessionToken
		sessionID = session.ID
	}

	result, err := s.issueTokens(user, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	result.SessionToken = sessionToken
	result.Subscription = s.currentSnapshot(ctx, user.ID)

	s.log.Info("user logged in", sl.UID(user.ID), slog.Bool("with_session", device != nil))
	return result, nil
}

// currentSnapshot возвращает срез подписки, по пути выдавая пробный период
// пользователям без единой строки истории.
func (s *Service) currentSnapshot(ctx context.Context, userID int64) *models.Snapshot {
	snapshot, err := s.subs.GetCurrent(ctx, userID)
	if err == nil {
		return snapshot
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.log.Error("failed to load subscription at login", sl.UID(userID), sl.Err(err))
		return nil
	}

	if _, err := s.subs.CreateTrial(ctx, userID); err != nil {
		if !errors.Is(err, models.ErrAlreadyHadTrial) {
			s.log.Error("failed to create trial at login", sl.UID(userID), sl.Err(err))
		}
		return nil
	}
	snapshot, err = s.subs.GetCurrent(ctx, userID)
	if err != nil {
		s.log.Error("failed to load fresh trial snapshot", sl.UID(userID), sl.Err(err))
		return nil
	}
	return snapshot
}

func (s *Service) issueTokens(user *models.User, sessionID string) (*Result, error) {
	token, err := s.maker.GenerateToken(user.ID, user.Email, user.Role, sessionID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.maker.GenerateRefreshToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &Result{
		User:         user.Public(),
		Token:        token,
		RefreshToken: refresh,
		SessionID:    sessionID,
		IsAdmin:      user.Role == models.RoleAdmin,
	}, nil
}
