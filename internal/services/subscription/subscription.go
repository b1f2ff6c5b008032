// Package subscription реализует машину состояний жизненного цикла подписки.
// Статус в хранилище считается подсказкой: каждое чтение разрешает его
// заново по настенным часам и записывает коррекцию обратно.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quickbill/quickbill-backend/internal/cache"
	"github.com/quickbill/quickbill-backend/internal/config"
	"github.com/quickbill/quickbill-backend/internal/lib/sl"
	"github.com/quickbill/quickbill-backend/internal/models"
)

// Repository определяет методы хранилища, нужные машине состояний.
type Repository interface {
	CreateSubscription(ctx context.Context, sub models.Subscription) (int64, error)
	FindCurrentSubscription(ctx context.Context, userID int64) (*models.Subscription, error)
	FindLatestRenewable(ctx context.Context, userID int64) (*models.Subscription, error)
	CountTrials(ctx context.Context, userID int64) (int, error)
	UpdateSubscriptionState(ctx context.Context, subID int64, status string, gracePeriodEnd *time.Time) error
	UpdateEndDate(ctx context.Context, subID int64, endDate time.Time, status string) error
	UpdatePlanForLive(ctx context.Context, userID int64, plan string) (int64, error)
	ActivateSubscription(ctx context.Context, sub models.Subscription) (int64, error)
	DisableLiveSubscriptions(ctx context.Context, userID int64) (int64, error)
	EnableDisabledSubscriptions(ctx context.Context, userID int64, status string) (int64, error)
	ListSubscriptions(ctx context.Context, userID int64) ([]*models.Subscription, error)
}

// SessionInvalidator гасит сессии пользователя при отключении аккаунта.
type SessionInvalidator interface {
	InvalidateAll(ctx context.Context, userID int64, reason string) (int64, error)
}

// Cache описывает методы для кэширования срезов подписки.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// Service реализует операции движка подписок.
type Service struct {
	repo     Repository
	sessions SessionInvalidator
	cache    Cache
	cfg      config.Billing
	ttl      time.Duration
	log      *slog.Logger

	// now подменяется в тестах.
	now func() time.Time
}

// New создает новый экземпляр Service.
func New(repo Repository, sessions SessionInvalidator, c Cache, cfg config.Billing, snapshotTTL time.Duration, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		sessions: sessions,
		cache:    c,
		cfg:      cfg,
		ttl:      snapshotTTL,
		log:      log,
		now:      time.Now,
	}
}

// GetCurrent возвращает срез текущей подписки пользователя, предварительно
// разрешив и записав её фактический статус.
func (s *Service) GetCurrent(ctx context.Context, userID int64) (*models.Snapshot, error) {
	const op = "subscription.GetCurrent"

	cacheKey := cache.SnapshotKey(userID)
	var cached models.Snapshot
	if found, err := s.cache.Get(cacheKey, &cached); err != nil {
		s.log.Warn("cache lookup failed", slog.String("key", cacheKey), sl.Err(err))
	} else if found {
		return &cached, nil
	}

	sub, err := s.repo.FindCurrentSubscription(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	sub, err = s.settle(ctx, sub, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	snapshot := s.buildSnapshot(sub, now)
	if err := s.cache.Set(cacheKey, snapshot, s.ttl); err != nil {
		s.log.Warn("failed to cache snapshot", slog.String("key", cacheKey), sl.Err(err))
	}
	return snapshot, nil
}

// settle применяет resolve к строке и записывает коррекцию, если она есть.
func (s *Service) settle(ctx context.Context, sub *models.Subscription, now time.Time) (*models.Subscription, error) {
	res := resolve(sub, now, s.cfg.GracePeriodDays)
	if !res.Changed {
		return sub, nil
	}
	if err := s.repo.UpdateSubscriptionState(ctx, sub.ID, res.Status, res.GracePeriodEnd); err != nil {
		return nil, err
	}
	s.log.Info("subscription state corrected",
		sl.UID(sub.UserID),
		slog.Int64("subscription_id", sub.ID),
		slog.String("from", sub.Status),
		slog.String("to", res.Status))
	settled := *sub
	settled.Status = res.Status
	settled.GracePeriodEnd = res.GracePeriodEnd
	return &settled, nil
}

func (s *Service) buildSnapshot(sub *models.Subscription, now time.Time) *models.Snapshot {
	plan := models.NormalizePlan(sub.Plan)
	snapshot := &models.Snapshot{
		SubscriptionID: sub.ID,
		Plan:           plan,
		Status:         sub.Status,
		IsTrial:        sub.IsTrial,
		StartDate:      sub.StartDate,
		EndDate:        sub.EndDate,
		DaysRemaining:  models.DaysUntil(sub.EndDate, now),
		Features:       models.FeaturesForPlan(plan),
		Version:        now.UnixMilli(),
	}
	if sub.Status == models.StatusGracePeriod && sub.GracePeriodEnd != nil {
		snapshot.IsInGracePeriod = true
		snapshot.GracePeriodEnd = sub.GracePeriodEnd
		snapshot.GraceDaysRemaining = models.DaysUntil(*sub.GracePeriodEnd, now)
	}
	return snapshot
}

// CreateTrial выдает семидневный пробный период на тарифе platinum.
// Повторная выдача невозможна: проверка по истории плюс частичный
// уникальный индекс в хранилище.
func (s *Service) CreateTrial(ctx context.Context, userID int64) (*models.Subscription, error) {
	const op = "subscription.CreateTrial"

	count, err := s.repo.CountTrials(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if count > 0 {
		return nil, fmt.Errorf("%s: %w", op, models.ErrAlreadyHadTrial)
	}

	now := s.now()
	sub := models.Subscription{
		UserID:    userID,
		Plan:      models.PlanPlatinum,
		Status:    models.StatusTrial,
		IsTrial:   true,
		StartDate: now,
		EndDate:   now.AddDate(0, 0, s.cfg.TrialDays),
	}
	id, err := s.repo.CreateSubscription(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sub.ID = id

	s.invalidateSnapshot(userID)
	s.log.Info("trial subscription created", sl.UID(userID), slog.Int64("subscription_id", id))
	return &sub, nil
}

// Activate отменяет живые строки пользователя и создает новую оплаченную
// подписку на days дней вперед от текущего момента.
func (s *Service) Activate(ctx context.Context, userID int64, plan string, days int, amountPaid float64) (*models.Subscription, error) {
	const op = "subscription.Activate"

	plan = models.NormalizePlan(plan)
	if !models.IsKnownPlan(plan) {
		return nil, fmt.Errorf("%s: unknown plan %q: %w", op, plan, models.ErrInvalidState)
	}

	now := s.now()
	sub := models.Subscription{
		UserID:     userID,
		Plan:       plan,
		Status:     models.StatusActive,
		StartDate:  now,
		EndDate:    now.AddDate(0, 0, days),
		AmountPaid: amountPaid,
	}
	id, err := s.repo.ActivateSubscription(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sub.ID = id

	s.invalidateSnapshot(userID)
	s.log.Info("subscription activated",
		sl.UID(userID), slog.String("plan", plan), slog.Int("days", days))
	return &sub, nil
}

// Extend продлевает последнюю пригодную строку на days дней. База продления —
// максимум из текущей даты окончания и настоящего момента, поэтому продление
// истекшей подписки начинает отсчет от сегодня. Статус всегда возвращается
// в active: продление триала делает его оплаченной подпиской.
func (s *Service) Extend(ctx context.Context, userID int64, days int) (*models.Subscription, error) {
	const op = "subscription.Extend"

	sub, err := s.repo.FindLatestRenewable(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	base := sub.EndDate
	if base.Before(now) {
		base = now
	}
	newEnd := base.AddDate(0, 0, days)
	if err := s.repo.UpdateEndDate(ctx, sub.ID, newEnd, models.StatusActive); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.invalidateSnapshot(userID)
	s.log.Info("subscription extended",
		sl.UID(userID), slog.Int("days", days), slog.Time("new_end", newEnd))

	updated := *sub
	updated.EndDate = newEnd
	updated.Status = models.StatusActive
	updated.GracePeriodEnd = nil
	return &updated, nil
}

// ChangePlan меняет тариф живых строк пользователя без изменения дат.
func (s *Service) ChangePlan(ctx context.Context, userID int64, plan string) error {
	const op = "subscription.ChangePlan"

	plan = models.NormalizePlan(plan)
	if !models.IsKnownPlan(plan) {
		return fmt.Errorf("%s: unknown plan %q: %w", op, plan, models.ErrInvalidState)
	}

	n, err := s.repo.UpdatePlanForLive(ctx, userID, plan)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}

	s.invalidateSnapshot(userID)
	s.log.Info("subscription plan changed", sl.UID(userID), slog.String("plan", plan))
	return nil
}

// Deactivate досрочно отменяет живые строки пользователя.
func (s *Service) Deactivate(ctx context.Context, userID int64) error {
	const op = "subscription.Deactivate"

	sub, err := s.repo.FindCurrentSubscription(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !models.IsLive(sub.Status) {
		return fmt.Errorf("%s: %w", op, models.ErrInvalidState)
	}
	if err := s.repo.UpdateSubscriptionState(ctx, sub.ID, models.StatusCancelled, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.invalidateSnapshot(userID)
	s.log.Info("subscription cancelled", sl.UID(userID), slog.Int64("subscription_id", sub.ID))
	return nil
}

// Disable отключает аккаунт: живые строки переходят в disabled, все сессии
// пользователя гасятся с меткой admin_disabled.
func (s *Service) Disable(ctx context.Context, userID int64) error {
	const op = "subscription.Disable"

	n, err := s.repo.DisableLiveSubscriptions(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}

	invalidated, err := s.sessions.InvalidateAll(ctx, userID, models.InvalidatedByAdminDisabled)
	if err != nil {
		// Подписка уже отключена, клиента добьёт ближайший поллинг сессии.
		s.log.Error("failed to invalidate sessions after disable", sl.UID(userID), sl.Err(err))
	}

	s.invalidateSnapshot(userID)
	s.log.Info("subscriptions disabled",
		sl.UID(userID), slog.Int64("rows", n), slog.Int64("sessions_invalidated", invalidated))
	return nil
}

// Enable возвращает отключённые строки в оборот. При restorePrevious строки
// получают статус active и дальше уточняются машиной состояний на чтении,
// иначе помечаются истекшими.
func (s *Service) Enable(ctx context.Context, userID int64, restorePrevious bool) error {
	const op = "subscription.Enable"

	status := models.StatusExpired
	if restorePrevious {
		status = models.StatusActive
	}
	n, err := s.repo.EnableDisabledSubscriptions(ctx, userID, status)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrInvalidState)
	}

	s.invalidateSnapshot(userID)
	s.log.Info("subscriptions enabled", sl.UID(userID), slog.Bool("restore", restorePrevious))
	return nil
}

// HasFeature проверяет доступ пользователя к функции: живой статус, матрица
// тарифа и список функций, закрытых в льготный период.
func (s *Service) HasFeature(ctx context.Context, userID int64, featureKey string) (*models.FeatureAccess, error) {
	const op = "subscription.HasFeature"

	access := &models.FeatureAccess{FeatureKey: featureKey}

	snapshot, err := s.GetCurrent(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			access.Reason = models.ReasonNoSubscription
			return access, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	access.Plan = snapshot.Plan
	access.Status = snapshot.Status
	if !models.IsLive(snapshot.Status) {
		access.Reason = models.ReasonNoSubscription
		return access, nil
	}
	if !models.PlanHasFeature(snapshot.Plan, featureKey) {
		access.Reason = models.ReasonFeatureNotInPlan
		return access, nil
	}
	if snapshot.IsInGracePeriod && s.isGraceRestricted(featureKey) {
		access.Reason = models.ReasonGraceRestriction
		return access, nil
	}

	access.HasAccess = true
	return access, nil
}

func (s *Service) isGraceRestricted(featureKey string) bool {
	for _, restricted := range s.cfg.GraceRestrictedFeatures {
		if restricted == featureKey {
			return true
		}
	}
	return false
}

// History возвращает историю подписок пользователя для админской консоли.
func (s *Service) History(ctx context.Context, userID int64) ([]*models.Subscription, error) {
	const op = "subscription.History"

	subs, err := s.repo.ListSubscriptions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return subs, nil
}

func (s *Service) invalidateSnapshot(userID int64) {
	key := cache.SnapshotKey(userID)
	if err := s.cache.Invalidate(key); err != nil {
		s.log.Warn("failed to invalidate snapshot cache", slog.String("key", key), sl.Err(err))
	}
}
