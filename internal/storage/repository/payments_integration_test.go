package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickbill/quickbill-backend/internal/models"
)

func createPendingPayment(t *testing.T, storage *Storage, userID int64) int64 {
	t.Helper()
	paymentID, err := storage.CreateManualPayment(context.Background(), models.ManualPayment{
		UserID:        userID,
		Plan:          models.PlanGold,
		Amount:        999,
		PaymentMethod: "upi",
		QRCodeData:    "upi://pay?pa=quickbill%40upi",
	})
	require.NoError(t, err)
	return paymentID
}

func TestAttachPaymentReference(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	userID := createTestUser(t, storage, "owner@shop.in")
	otherID := createTestUser(t, storage, "other@shop.in")
	paymentID := createPendingPayment(t, storage, userID)

	// Чужой пользователь не может приложить номер к заявке.
	n, err := storage.AttachPaymentReference(ctx, paymentID, otherID, "UPI123", "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = storage.AttachPaymentReference(ctx, paymentID, userID, "UPI123", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	payment, err := storage.GetManualPayment(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, "UPI123", payment.TransactionReference)
	assert.Equal(t, "owner@shop.in", payment.UserEmail)
}

func TestVerifyManualPayment(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	userID := createTestUser(t, storage, "owner@shop.in")
	paymentID := createPendingPayment(t, storage, userID)
	now := time.Now()

	sub := models.Subscription{
		UserID:     userID,
		Plan:       models.PlanGold,
		Status:     models.StatusActive,
		StartDate:  now,
		EndDate:    now.AddDate(0, 0, 30),
		AmountPaid: 999,
	}
	subID, err := storage.VerifyManualPayment(ctx, paymentID, "admin@quickbill.app", sub)
	require.NoError(t, err)

	// Подписка и решение по заявке записаны в одной транзакции.
	current, err := storage.FindCurrentSubscription(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, subID, current.ID)

	payment, err := storage.GetManualPayment(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentVerified, payment.VerificationStatus)
	assert.Equal(t, "admin@quickbill.app", payment.VerifiedBy)
	assert.NotNil(t, payment.VerifiedAt)

	// Повторное подтверждение упирается в сторожевое условие.
	_, err = storage.VerifyManualPayment(ctx, paymentID, "admin@quickbill.app", sub)
	assert.ErrorIs(t, err, models.ErrAlreadyProcessed)
}

func TestRejectManualPayment(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	userID := createTestUser(t, storage, "owner@shop.in")
	paymentID := createPendingPayment(t, storage, userID)

	err := storage.RejectManualPayment(ctx, paymentID, "admin@quickbill.app", "reference not found")
	require.NoError(t, err)

	payment, err := storage.GetManualPayment(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRejected, payment.VerificationStatus)
	assert.Equal(t, "reference not found", payment.RejectionReason)

	pending, err := storage.ListPendingPayments(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	err = storage.RejectManualPayment(ctx, paymentID, "admin@quickbill.app", "again")
	assert.ErrorIs(t, err, models.ErrAlreadyProcessed)
}
