package payment

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/quickbill/quickbill-backend/internal/config"
	"github.com/quickbill/quickbill-backend/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) ListActivePlans(ctx context.Context) ([]*models.Plan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Plan), args.Error(1)
}
func (m *RepoMock) GetPlanByID(ctx context.Context, planID int64) (*models.Plan, error) {
	args := m.Called(ctx, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Plan), args.Error(1)
}
func (m *RepoMock) GetPlanByName(ctx context.Context, name string) (*models.Plan, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Plan), args.Error(1)
}
func (m *RepoMock) CreateManualPayment(ctx context.Context, payment models.ManualPayment) (int64, error) {
	args := m.Called(ctx, payment)
	return args.Get(0).(int64), args.Error(1)
}
func (m *RepoMock) AttachPaymentReference(ctx context.Context, paymentID, userID int64, reference, screenshotURL string) (int64, error) {
	args := m.Called(ctx, paymentID, userID, reference, screenshotURL)
	return args.Get(0).(int64), args.Error(1)
}
func (m *RepoMock) GetManualPayment(ctx context.Context, paymentID int64) (*models.ManualPayment, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ManualPayment), args.Error(1)
}
func (m *RepoMock) ListPendingPayments(ctx context.Context) ([]*models.ManualPayment, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ManualPayment), args.Error(1)
}
func (m *RepoMock) VerifyManualPayment(ctx context.Context, paymentID int64, verifiedBy string, sub models.Subscription) (int64, error) {
	args := m.Called(ctx, paymentID, verifiedBy, sub)
	return args.Get(0).(int64), args.Error(1)
}
func (m *RepoMock) RejectManualPayment(ctx context.Context, paymentID int64, verifiedBy, reason string) error {
	return m.Called(ctx, paymentID, verifiedBy, reason).Error(0)
}

type PublisherMock struct{ mock.Mock }

func (m *PublisherMock) PublishPaymentEvent(event models.PaymentEvent) error {
	return m.Called(event).Error(0)
}

type CacheMock struct{ mock.Mock }

func (m *CacheMock) Invalidate(key string) error {
	return m.Called(key).Error(0)
}

func newTestService(repo *RepoMock, events *PublisherMock, c *CacheMock, now time.Time) *Service {
	cfg := config.UPI{PayeeID: "quickbill@upi", PayeeName: "QuickBill"}
	svc := New(repo, events, c, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return now }
	return svc
}

func TestCreateOrder(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	userID := int64(42)

	repo := new(RepoMock)
	repo.On("GetPlanByID", mock.Anything, int64(2)).Return(&models.Plan{
		ID: 2, Name: "gold", PriceMonthly: 999, DurationDays: 30,
	}, nil)
	repo.On("CreateManualPayment", mock.Anything, mock.MatchedBy(func(p models.ManualPayment) bool {
		return p.UserID == userID && p.Plan == "gold" && p.Amount == 999 &&
			p.PaymentMethod == "upi" && strings.HasPrefix(p.QRCodeData, "upi://pay?")
	})).Return(int64(7), nil)
	svc := newTestService(repo, new(PublisherMock), new(CacheMock), now)

	order, err := svc.CreateOrder(context.Background(), userID, 2)

	assert.NoError(t, err)
	assert.Equal(t, int64(7), order.PaymentID)
	assert.Equal(t, "quickbill@upi", order.UPIID)
	assert.Contains(t, order.UPIURI, "pa=quickbill%40upi")
	assert.True(t, strings.HasPrefix(order.QRCodeImage, "data:image/png;base64,"))
	repo.AssertExpectations(t)
}

func TestCreateOrder_UnknownPlan(t *testing.T) {
	repo := new(RepoMock)
	repo.On("GetPlanByID", mock.Anything, int64(99)).Return(nil, models.ErrNotFound)
	svc := newTestService(repo, new(PublisherMock), new(CacheMock), time.Now())

	_, err := svc.CreateOrder(context.Background(), 42, 99)

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSubmitReference(t *testing.T) {
	t.Run("pending payment accepts a reference", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("AttachPaymentReference", mock.Anything, int64(7), int64(42), "UPI123", "").
			Return(int64(1), nil)
		svc := newTestService(repo, new(PublisherMock), new(CacheMock), time.Now())

		assert.NoError(t, svc.SubmitReference(context.Background(), 42, 7, "UPI123", ""))
	})

	t.Run("processed or foreign payment is reported as not found", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("AttachPaymentReference", mock.Anything, int64(7), int64(42), "UPI123", "").
			Return(int64(0), nil)
		svc := newTestService(repo, new(PublisherMock), new(CacheMock), time.Now())

		assert.ErrorIs(t, svc.SubmitReference(context.Background(), 42, 7, "UPI123", ""),
			models.ErrNotFound)
	})
}

func TestVerify(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("pending payment provisions a subscription and publishes an event", func(t *testing.T) {
		repo := new(RepoMock)
		events := new(PublisherMock)
		c := new(CacheMock)
		repo.On("GetManualPayment", mock.Anything, int64(7)).Return(&models.ManualPayment{
			ID: 7, UserID: 42, Plan: "gold_monthly", Amount: 999,
			VerificationStatus: models.PaymentPending,
			UserEmail:          "owner@shop.in", UserName: "Asha",
		}, nil)
		repo.On("GetPlanByName", mock.Anything, "gold").Return(&models.Plan{
			ID: 2, Name: "gold", PriceMonthly: 999, DurationDays: 30,
		}, nil)
		repo.On("VerifyManualPayment", mock.Anything, int64(7), "admin@quickbill.app",
			mock.MatchedBy(func(sub models.Subscription) bool {
				return sub.UserID == 42 && sub.Plan == "gold" &&
					sub.Status == models.StatusActive &&
					sub.EndDate.Equal(now.AddDate(0, 0, 30))
			})).Return(int64(101), nil)
		c.On("Invalidate", mock.Anything).Return(nil)
		events.On("PublishPaymentEvent", mock.MatchedBy(func(e models.PaymentEvent) bool {
			return e.PaymentID == 7 && e.Status == models.PaymentVerified &&
				e.UserEmail == "owner@shop.in"
		})).Return(nil)
		svc := newTestService(repo, events, c, now)

		err := svc.Verify(context.Background(), 7, "admin@quickbill.app")

		assert.NoError(t, err)
		repo.AssertExpectations(t)
		events.AssertExpectations(t)
	})

	t.Run("already processed payment is immutable", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("GetManualPayment", mock.Anything, int64(7)).Return(&models.ManualPayment{
			ID: 7, UserID: 42, Plan: "gold",
			VerificationStatus: models.PaymentVerified,
		}, nil)
		svc := newTestService(repo, new(PublisherMock), new(CacheMock), now)

		err := svc.Verify(context.Background(), 7, "admin@quickbill.app")

		assert.ErrorIs(t, err, models.ErrAlreadyProcessed)
		repo.AssertNotCalled(t, "VerifyManualPayment",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("racing admins lose on the storage guard", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("GetManualPayment", mock.Anything, int64(7)).Return(&models.ManualPayment{
			ID: 7, UserID: 42, Plan: "gold", Amount: 999,
			VerificationStatus: models.PaymentPending,
		}, nil)
		repo.On("GetPlanByName", mock.Anything, "gold").Return(&models.Plan{
			ID: 2, Name: "gold", PriceMonthly: 999, DurationDays: 30,
		}, nil)
		repo.On("VerifyManualPayment", mock.Anything, int64(7), mock.Anything, mock.Anything).
			Return(int64(0), models.ErrAlreadyProcessed)
		svc := newTestService(repo, new(PublisherMock), new(CacheMock), now)

		err := svc.Verify(context.Background(), 7, "admin@quickbill.app")

		assert.ErrorIs(t, err, models.ErrAlreadyProcessed)
	})
}

func TestReject(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("pending payment is rejected with a reason", func(t *testing.T) {
		repo := new(RepoMock)
		events := new(PublisherMock)
		repo.On("GetManualPayment", mock.Anything, int64(7)).Return(&models.ManualPayment{
			ID: 7, UserID: 42, Plan: "gold", Amount: 999,
			VerificationStatus: models.PaymentPending,
			UserEmail:          "owner@shop.in",
		}, nil)
		repo.On("RejectManualPayment", mock.Anything, int64(7), "admin@quickbill.app",
			"reference not found in bank statement").Return(nil)
		events.On("PublishPaymentEvent", mock.MatchedBy(func(e models.PaymentEvent) bool {
			return e.Status == models.PaymentRejected &&
				e.Reason == "reference not found in bank statement"
		})).Return(nil)
		svc := newTestService(repo, events, new(CacheMock), now)

		err := svc.Reject(context.Background(), 7, "admin@quickbill.app",
			"reference not found in bank statement")

		assert.NoError(t, err)
		repo.AssertExpectations(t)
		events.AssertExpectations(t)
	})

	t.Run("publish failure does not undo the decision", func(t *testing.T) {
		repo := new(RepoMock)
		events := new(PublisherMock)
		repo.On("GetManualPayment", mock.Anything, int64(7)).Return(&models.ManualPayment{
			ID: 7, UserID: 42, Plan: "gold", Amount: 999,
			VerificationStatus: models.PaymentPending,
		}, nil)
		repo.On("RejectManualPayment", mock.Anything, int64(7), mock.Anything, mock.Anything).
			Return(nil)
		events.On("PublishPaymentEvent", mock.Anything).Return(assert.AnError)
		svc := newTestService(repo, events, new(CacheMock), now)

		err := svc.Reject(context.Background(), 7, "admin@quickbill.app", "bad reference")

		assert.NoError(t, err)
	})
}
