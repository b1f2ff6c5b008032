// Package payment реализует ручной сценарий оплаты через UPI: создание
// заявки с QR-кодом, приём номера транзакции и админское подтверждение
// или отклонение с публикацией события для воркера уведомлений.
package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quickbill/quickbill-backend/internal/cache"
	"github.com/quickbill/quickbill-backend/internal/config"
	"github.com/quickbill/quickbill-backend/internal/lib/sl"
	"github.com/quickbill/quickbill-backend/internal/lib/upi"
	"github.com/quickbill/quickbill-backend/internal/models"
)

// Repository определяет методы хранилища для каталога тарифов и заявок.
type Repository interface {
	ListActivePlans(ctx context.Context) ([]*models.Plan, error)
	GetPlanByID(ctx context.Context, planID int64) (*models.Plan, error)
	GetPlanByName(ctx context.Context, name string) (*models.Plan, error)
	CreateManualPayment(ctx context.Context, payment models.ManualPayment) (int64, error)
	AttachPaymentReference(ctx context.Context, paymentID, userID int64, reference, screenshotURL string) (int64, error)
	GetManualPayment(ctx context.Context, paymentID int64) (*models.ManualPayment, error)
	ListPendingPayments(ctx context.Context) ([]*models.ManualPayment, error)
	VerifyManualPayment(ctx context.Context, paymentID int64, verifiedBy string, sub models.Subscription) (int64, error)
	RejectManualPayment(ctx context.Context, paymentID int64, verifiedBy, reason string) error
}

// EventPublisher публикует события решения по платежу.
type EventPublisher interface {
	PublishPaymentEvent(event models.PaymentEvent) error
}

// Cache инвалидирует кэшированные срезы подписок после провижининга.
type Cache interface {
	Invalidate(key string) error
}

// Service реализует сценарии ручной оплаты.
type Service struct {
	repo   Repository
	events EventPublisher
	cache  Cache
	upiCfg config.UPI
	log    *slog.Logger

	// now подменяется в тестах.
	now func() time.Time
}

// New создает новый экземпляр Service.
func New(repo Repository, events EventPublisher, c Cache, upiCfg config.UPI, log *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		events: events,
		cache:  c,
		upiCfg: upiCfg,
		log:    log,
		now:    time.Now,
	}
}

// Plans возвращает каталог активных тарифов.
func (s *Service) Plans(ctx context.Context) ([]*models.Plan, error) {
	const op = "payment.Plans"

	plans, err := s.repo.ListActivePlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return plans, nil
}

// CreateOrder создает заявку на оплату выбранного тарифа и возвращает
// реквизиты с UPI-ссылкой и QR-кодом.
func (s *Service) CreateOrder(ctx context.Context, userID, planID int64) (*models.PaymentOrder, error) {
	const op = "payment.CreateOrder"

	plan, err := s.repo.GetPlanByID(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	note := fmt.Sprintf("QuickBill %s subscription", plan.Name)
	uri := upi.PaymentURI(s.upiCfg.PayeeID, s.upiCfg.PayeeName, plan.PriceMonthly, note)
	qrImage, err := upi.QRCodeDataURL(uri)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	paymentID, err := s.repo.CreateManualPayment(ctx, models.ManualPayment{
		UserID:        userID,
		Plan:          plan.Name,
		Amount:        plan.PriceMonthly,
		PaymentMethod: "upi",
		QRCodeData:    uri,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("payment order created",
		sl.UID(userID), slog.Int64("payment_id", paymentID), slog.String("plan", plan.Name))
	return &models.PaymentOrder{
		PaymentID:   paymentID,
		Plan:        plan.Name,
		Amount:      plan.PriceMonthly,
		UPIID:       s.upiCfg.PayeeID,
		PayeeName:   s.upiCfg.PayeeName,
		UPIURI:      uri,
		QRCodeImage: qrImage,
	}, nil
}

// SubmitReference прикладывает номер UPI-транзакции к ожидающей заявке
// пользователя.
func (s *Service) SubmitReference(ctx context.Context, userID, paymentID int64, reference, screenshotURL string) error {
	const op = "payment.SubmitReference"

	n, err := s.repo.AttachPaymentReference(ctx, paymentID, userID, reference, screenshotURL)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}

	s.log.Info("payment reference submitted",
		sl.UID(userID), slog.Int64("payment_id", paymentID))
	return nil
}

// ListPending возвращает очередь необработанных заявок для администратора.
func (s *Service) ListPending(ctx context.Context) ([]*models.ManualPayment, error) {
	const op = "payment.ListPending"

	payments, err := s.repo.ListPendingPayments(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return payments, nil
}

// Verify подтверждает заявку и создаёт оплаченную подписку в одной
// транзакции хранилища. Повторное решение по заявке невозможно.
func (s *Service) Verify(ctx context.Context, paymentID int64, adminEmail string) error {
	const op = "payment.Verify"

	payment, err := s.repo.GetManualPayment(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if payment.VerificationStatus != models.PaymentPending {
		return fmt.Errorf("%s: %w", op, models.ErrAlreadyProcessed)
	}

	plan, err := s.repo.GetPlanByName(ctx, models.NormalizePlan(payment.Plan))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	sub := models.Subscription{
		UserID:     payment.UserID,
		Plan:       plan.Name,
		Status:     models.StatusActive,
		StartDate:  now,
		EndDate:    now.AddDate(0, 0, plan.DurationDays),
		AmountPaid: payment.Amount,
	}
	subID, err := s.repo.VerifyManualPayment(ctx, paymentID, adminEmail, sub)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidateSnapshot(payment.UserID)

	s.publishDecision(models.PaymentEvent{
		PaymentID: paymentID,
		UserEmail: payment.UserEmail,
		UserName:  payment.UserName,
		Plan:      plan.Name,
		Amount:    payment.Amount,
		Status:    models.PaymentVerified,
	})

	s.log.Info("payment verified",
		sl.UID(payment.UserID),
		slog.Int64("payment_id", paymentID),
		slog.Int64("subscription_id", subID),
		slog.String("verified_by", adminEmail))
	return nil
}

// Reject отклоняет заявку с указанием причины.
func (s *Service) Reject(ctx context.Context, paymentID int64, adminEmail, reason string) error {
	const op = "payment.Reject"

	payment, err := s.repo.GetManualPayment(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if payment.VerificationStatus != models.PaymentPending {
		return fmt.Errorf("%s: %w", op, models.ErrAlreadyProcessed)
	}

	if err := s.repo.RejectManualPayment(ctx, paymentID, adminEmail, reason); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.publishDecision(models.PaymentEvent{
		PaymentID: paymentID,
		UserEmail: payment.UserEmail,
		UserName:  payment.UserName,
		Plan:      models.NormalizePlan(payment.Plan),
		Amount:    payment.Amount,
		Status:    models.PaymentRejected,
		Reason:    reason,
	})

	s.log.Info("payment rejected",
		sl.UID(payment.UserID),
		slog.Int64("payment_id", paymentID),
		slog.String("verified_by", adminEmail))
	return nil
}

func (s *Service) publishDecision(event models.PaymentEvent) {
	if err := s.events.PublishPaymentEvent(event); err != nil {
		// Решение уже записано, письмо доотправит повторная публикация
		// или ручной прогон очереди.
		s.log.Error("failed to publish payment event",
			slog.Int64("payment_id", event.PaymentID), sl.Err(err))
	}
}

func (s *Service) invalidateSnapshot(userID int64) {
	key := cache.SnapshotKey(userID)
	if err := s.cache.Invalidate(key); err != nil {
		s.log.Warn("failed to invalidate snapshot cache", slog.String("key", key), sl.Err(err))
	}
}
