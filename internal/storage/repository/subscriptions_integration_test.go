package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickbill/quickbill-backend/internal/models"
)

func TestCreateSubscription_TrialOnlyOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	userID := createTestUser(t, storage, "owner@shop.in")
	now := time.Now()

	trial := models.Subscription{
		UserID:    userID,
		Plan:      models.PlanPlatinum,
		Status:    models.StatusTrial,
		IsTrial:   true,
		StartDate: now,
		EndDate:   now.AddDate(0, 0, 7),
	}
	_, err := storage.CreateSubscription(ctx, trial)
	require.NoError(t, err)

	// Частичный уникальный индекс не пускает вторую пробную строку
	// даже в обход проверки на уровне сервиса.
	_, err = storage.CreateSubscription(ctx, trial)
	assert.ErrorIs(t, err, models.ErrAlreadyHadTrial)

	count, err := storage.CountTrials(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestActivateSubscription_CancelsLiveRows(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	userID := createTestUser(t, storage, "owner@shop.in")
	now := time.Now()

	trialID, err := storage.CreateSubscription(ctx, models.Subscription{
		UserID:    userID,
		Plan:      models.PlanPlatinum,
		Status:    models.StatusTrial,
		IsTrial:   true,
		StartDate: now,
		EndDate:   now.AddDate(0, 0, 7),
	})
	require.NoError(t, err)

	paidID, err := storage.ActivateSubscription(ctx, models.Subscription{
		UserID:     userID,
		Plan:       models.PlanGold,
		Status:     models.StatusActive,
		StartDate:  now,
		EndDate:    now.AddDate(0, 0, 30),
		AmountPaid: 999,
	})
	require.NoError(t, err)
	assert.NotEqual(t, trialID, paidID)

	// Пробная строка отменена, текущей стала оплаченная.
	current, err := storage.FindCurrentSubscription(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, paidID, current.ID)
	assert.Equal(t, models.PlanGold, current.Plan)

	var trialStatus string
	err = storage.DB.QueryRow(`SELECT status FROM subscriptions WHERE id = $1`, trialID).Scan(&trialStatus)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, trialStatus)
}

func TestDisableAndEnableSubscriptions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	userID := createTestUser(t, storage, "owner@shop.in")
	now := time.Now()

	subID, err := storage.CreateSubscription(ctx, models.Subscription{
		UserID:    userID,
		Plan:      models.PlanGold,
		Status:    models.StatusActive,
		StartDate: now,
		EndDate:   now.AddDate(0, 0, 30),
	})
	require.NoError(t, err)

	n, err := storage.DisableLiveSubscriptions(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Disabled-строка всё ещё видна как текущая: пользователь должен
	// увидеть заблокированную подписку, а не пустоту.
	current, err := storage.FindCurrentSubscription(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, subID, current.ID)
	assert.Equal(t, models.StatusDisabled, current.Status)

	n, err = storage.EnableDisabledSubscriptions(ctx, userID, models.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	current, err = storage.FindCurrentSubscription(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, current.Status)
}

func TestFindCurrentSubscription_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	userID := createTestUser(t, storage, "owner@shop.in")

	_, err := storage.FindCurrentSubscription(context.Background(), userID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
