package subscription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/quickbill/quickbill-backend/internal/config"
	"github.com/quickbill/quickbill-backend/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) CreateSubscription(ctx context.Context, sub models.Subscription) (int64, error) {
	args := m.Called(ctx, sub)
	return args.Get(0).(int64), args.Error(1)
}
func (m *RepoMock) FindCurrentSubscription(ctx context.Context, userID int64) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}
func (m *RepoMock) FindLatestRenewable(ctx context.Context, userID int64) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}
func (m *RepoMock) CountTrials(ctx context.Context, userID int64) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}
func (m *RepoMock) UpdateSubscriptionState(ctx context.Context, subID int64, status string, gracePeriodEnd *time.Time) error {
	return m.Called(ctx, subID, status, gracePeriodEnd).Error(0)
}
func (m *RepoMock) UpdateEndDate(ctx context.Context, subID int64, endDate time.Time, status string) error {
	return m.Called(ctx, subID, endDate, status).Error(0)
}
func (m *RepoMock) UpdatePlanForLive(ctx context.Context, userID int64, plan string) (int64, error) {
	args := m.Called(ctx, userID, plan)
	return args.Get(0).(int64), args.Error(1)
}
func (m *RepoMock) ActivateSubscription(ctx context.Context, sub models.Subscription) (int64, error) {
	args := m.Called(ctx, sub)
	return args.Get(0).(int64), args.Error(1)
}
func (m *RepoMock) DisableLiveSubscriptions(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}
func (m *RepoMock) EnableDisabledSubscriptions(ctx context.Context, userID int64, status string) (int64, error) {
	args := m.Called(ctx, userID, status)
	return args.Get(0).(int64), args.Error(1)
}
func (m *RepoMock) ListSubscriptions(ctx context.Context, userID int64) ([]*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Subscription), args.Error(1)
}

type SessionsMock struct{ mock.Mock }

func (m *SessionsMock) InvalidateAll(ctx context.Context, userID int64, reason string) (int64, error) {
	args := m.Called(ctx, userID, reason)
	return args.Get(0).(int64), args.Error(1)
}

type CacheMock struct{ mock.Mock }

func (m *CacheMock) Get(key string, result any) (bool, error) {
	args := m.Called(key, result)
	return args.Bool(0), args.Error(1)
}
func (m *CacheMock) Set(key string, value any, expiration time.Duration) error {
	return m.Called(key, value, expiration).Error(0)
}
func (m *CacheMock) Invalidate(key string) error {
	return m.Called(key).Error(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBilling() config.Billing {
	return config.Billing{
		TrialDays:               7,
		GracePeriodDays:         4,
		GraceRestrictedFeatures: []string{"data_export", "inventory_management"},
	}
}

func newTestService(repo *RepoMock, sessions *SessionsMock, c *CacheMock, now time.Time) *Service {
	svc := New(repo, sessions, c, testBilling(), 30*time.Second, discardLogger())
	svc.now = func() time.Time { return now }
	return svc
}

func TestGetCurrent(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	userID := int64(42)

	tests := []struct {
		name       string
		setupMocks func(repo *RepoMock, c *CacheMock)
		wantStatus string
		wantPlan   string
		wantGrace  bool
		wantErr    error
	}{
		{
			name: "healthy active subscription with suffixed plan",
			setupMocks: func(repo *RepoMock, c *CacheMock) {
				c.On("Get", mock.Anything, mock.Anything).Return(false, nil)
				repo.On("FindCurrentSubscription", mock.Anything, userID).Return(&models.Subscription{
					ID: 1, UserID: userID, Plan: "gold_monthly",
					Status:  models.StatusActive,
					EndDate: now.AddDate(0, 0, 10),
				}, nil)
				c.On("Set", mock.Anything, mock.Anything, mock.Anything).Return(nil)
			},
			wantStatus: models.StatusActive,
			wantPlan:   "gold",
		},
		{
			name: "expired active enters grace and is persisted",
			setupMocks: func(repo *RepoMock, c *CacheMock) {
				c.On("Get", mock.Anything, mock.Anything).Return(false, nil)
				repo.On("FindCurrentSubscription", mock.Anything, userID).Return(&models.Subscription{
					ID: 2, UserID: userID, Plan: "gold",
					Status:  models.StatusActive,
					EndDate: now.AddDate(0, 0, -1),
				}, nil)
				repo.On("UpdateSubscriptionState", mock.Anything, int64(2),
					models.StatusGracePeriod, mock.Anything).Return(nil)
				c.On("Set", mock.Anything, mock.Anything, mock.Anything).Return(nil)
			},
			wantStatus: models.StatusGracePeriod,
			wantPlan:   "gold",
			wantGrace:  true,
		},
		{
			name: "no subscription at all",
			setupMocks: func(repo *RepoMock, c *CacheMock) {
				c.On("Get", mock.Anything, mock.Anything).Return(false, nil)
				repo.On("FindCurrentSubscription", mock.Anything, userID).
					Return(nil, models.ErrNotFound)
			},
			wantErr: models.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			sessions := new(SessionsMock)
			c := new(CacheMock)
			tt.setupMocks(repo, c)
			svc := newTestService(repo, sessions, c, now)

			snapshot, err := svc.GetCurrent(context.Background(), userID)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantStatus, snapshot.Status)
			assert.Equal(t, tt.wantPlan, snapshot.Plan)
			assert.Equal(t, tt.wantGrace, snapshot.IsInGracePeriod)
			repo.AssertExpectations(t)
			c.AssertExpectations(t)
		})
	}
}

func TestGetCurrent_SelfHealingIsIdempotent(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	userID := int64(42)
	graceEnd := now.AddDate(0, 0, 3)

	repo := new(RepoMock)
	sessions := new(SessionsMock)
	c := new(CacheMock)
	c.On("Get", mock.Anything, mock.Anything).Return(false, nil)
	c.On("Set", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	// Уже разрешённая строка: запись коррекции не ожидается.
	repo.On("FindCurrentSubscription", mock.Anything, userID).Return(&models.Subscription{
		ID: 3, UserID: userID, Plan: "gold",
		Status:         models.StatusGracePeriod,
		EndDate:        now.AddDate(0, 0, -1),
		GracePeriodEnd: &graceEnd,
	}, nil)
	svc := newTestService(repo, sessions, c, now)

	first, err := svc.GetCurrent(context.Background(), userID)
	assert.NoError(t, err)
	second, err := svc.GetCurrent(context.Background(), userID)
	assert.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.DaysRemaining, second.DaysRemaining)
	repo.AssertNotCalled(t, "UpdateSubscriptionState", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetCurrent_DaysRemainingRoundsUp(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	userID := int64(42)

	repo := new(RepoMock)
	c := new(CacheMock)
	c.On("Get", mock.Anything, mock.Anything).Return(false, nil)
	c.On("Set", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	// До конца 36 часов: остаётся 2 дня, не 1.
	repo.On("FindCurrentSubscription", mock.Anything, userID).Return(&models.Subscription{
		ID: 4, UserID: userID, Plan: "silver",
		Status:  models.StatusActive,
		EndDate: now.Add(36 * time.Hour),
	}, nil)
	svc := newTestService(repo, new(SessionsMock), c, now)

	snapshot, err := svc.GetCurrent(context.Background(), userID)
	assert.NoError(t, err)
	assert.Equal(t, 2, snapshot.DaysRemaining)
}

func TestCreateTrial(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	userID := int64(42)

	tests := []struct {
		name       string
		setupMocks func(repo *RepoMock, c *CacheMock)
		wantErr    error
	}{
		{
			name: "first trial is granted on platinum",
			setupMocks: func(repo *RepoMock, c *CacheMock) {
				repo.On("CountTrials", mock.Anything, userID).Return(0, nil)
				repo.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(sub models.Subscription) bool {
					return sub.IsTrial && sub.Plan == models.PlanPlatinum &&
						sub.Status == models.StatusTrial &&
						sub.EndDate.Equal(now.AddDate(0, 0, 7))
				})).Return(int64(10), nil)
				c.On("Invalidate", mock.Anything).Return(nil)
			},
		},
		{
			name: "second trial is refused",
			setupMocks: func(repo *RepoMock, c *CacheMock) {
				repo.On("CountTrials", mock.Anything, userID).Return(1, nil)
			},
			wantErr: models.ErrAlreadyHadTrial,
		},
		{
			name: "storage index also refuses a racing trial",
			setupMocks: func(repo *RepoMock, c *CacheMock) {
				repo.On("CountTrials", mock.Anything, userID).Return(0, nil)
				repo.On("CreateSubscription", mock.Anything, mock.Anything).
					Return(int64(0), models.ErrAlreadyHadTrial)
			},
			wantErr: models.ErrAlreadyHadTrial,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			c := new(CacheMock)
			tt.setupMocks(repo, c)
			svc := newTestService(repo, new(SessionsMock), c, now)

			sub, err := svc.CreateTrial(context.Background(), userID)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.True(t, sub.IsTrial)
			assert.Equal(t, int64(10), sub.ID)
			repo.AssertExpectations(t)
		})
	}
}

func TestExtend(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	userID := int64(42)

	tests := []struct {
		name       string
		sub        *models.Subscription
		days       int
		wantEnd    time.Time
		wantStatus string
	}{
		{
			name: "extending a live subscription adds to its end date",
			sub: &models.Subscription{
				ID: 1, UserID: userID, Plan: "gold",
				Status:  models.StatusActive,
				EndDate: now.AddDate(0, 0, 10),
			},
			days:       30,
			wantEnd:    now.AddDate(0, 0, 40),
			wantStatus: models.StatusActive,
		},
		{
			name: "extending an expired subscription starts from today",
			sub: &models.Subscription{
				ID: 2, UserID: userID, Plan: "gold",
				Status:  models.StatusExpired,
				EndDate: now.AddDate(0, 0, -20),
			},
			days:       30,
			wantEnd:    now.AddDate(0, 0, 30),
			wantStatus: models.StatusActive,
		},
		{
			name: "extending a trial turns it into a paid subscription",
			sub: &models.Subscription{
				ID: 3, UserID: userID, Plan: models.PlanPlatinum, IsTrial: true,
				Status:  models.StatusTrial,
				EndDate: now.AddDate(0, 0, 3),
			},
			days:       30,
			wantEnd:    now.AddDate(0, 0, 33),
			wantStatus: models.StatusActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			c := new(CacheMock)
			repo.On("FindLatestRenewable", mock.Anything, userID).Return(tt.sub, nil)
			repo.On("UpdateEndDate", mock.Anything, tt.sub.ID, tt.wantEnd, tt.wantStatus).Return(nil)
			c.On("Invalidate", mock.Anything).Return(nil)
			svc := newTestService(repo, new(SessionsMock), c, now)

			updated, err := svc.Extend(context.Background(), userID, tt.days)

			assert.NoError(t, err)
			assert.Equal(t, tt.wantEnd, updated.EndDate)
			assert.Equal(t, tt.wantStatus, updated.Status)
			repo.AssertExpectations(t)
		})
	}
}

func TestDisable_CascadesIntoSessions(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	userID := int64(42)

	repo := new(RepoMock)
	sessions := new(SessionsMock)
	c := new(CacheMock)
	repo.On("DisableLiveSubscriptions", mock.Anything, userID).Return(int64(1), nil)
	sessions.On("InvalidateAll", mock.Anything, userID, models.InvalidatedByAdminDisabled).
		Return(int64(2), nil)
	c.On("Invalidate", mock.Anything).Return(nil)
	svc := newTestService(repo, sessions, c, now)

	err := svc.Disable(context.Background(), userID)

	assert.NoError(t, err)
	repo.AssertExpectations(t)
	sessions.AssertExpectations(t)
}

func TestDisable_NoLiveRows(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	repo := new(RepoMock)
	sessions := new(SessionsMock)
	repo.On("DisableLiveSubscriptions", mock.Anything, int64(42)).Return(int64(0), nil)
	svc := newTestService(repo, sessions, new(CacheMock), now)

	err := svc.Disable(context.Background(), 42)

	assert.ErrorIs(t, err, models.ErrNotFound)
	sessions.AssertNotCalled(t, "InvalidateAll", mock.Anything, mock.Anything, mock.Anything)
}

func TestEnable(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	userID := int64(42)

	tests := []struct {
		name       string
		restore    bool
		wantStatus string
		rows       int64
		wantErr    error
	}{
		{
			name:       "restore previous lets the state machine settle it",
			restore:    true,
			wantStatus: models.StatusActive,
			rows:       1,
		},
		{
			name:       "without restore rows become expired",
			restore:    false,
			wantStatus: models.StatusExpired,
			rows:       1,
		},
		{
			name:       "enabling a user with no disabled rows fails",
			restore:    true,
			wantStatus: models.StatusActive,
			rows:       0,
			wantErr:    models.ErrInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			c := new(CacheMock)
			repo.On("EnableDisabledSubscriptions", mock.Anything, userID, tt.wantStatus).
				Return(tt.rows, nil)
			c.On("Invalidate", mock.Anything).Return(nil)
			svc := newTestService(repo, new(SessionsMock), c, now)

			err := svc.Enable(context.Background(), userID, tt.restore)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			repo.AssertExpectations(t)
		})
	}
}

func TestHasFeature(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	userID := int64(42)
	graceEnd := now.AddDate(0, 0, 3)

	tests := []struct {
		name       string
		featureKey string
		sub        *models.Subscription
		subErr     error
		wantAccess bool
		wantReason string
	}{
		{
			name:       "gold plan has inventory",
			featureKey: models.FeatureInventory,
			sub: &models.Subscription{
				ID: 1, UserID: userID, Plan: "gold_monthly",
				Status: models.StatusActive, EndDate: now.AddDate(0, 0, 10),
			},
			wantAccess: true,
		},
		{
			name:       "gold plan lacks kot billing",
			featureKey: models.FeatureKOTBilling,
			sub: &models.Subscription{
				ID: 1, UserID: userID, Plan: "gold",
				Status: models.StatusActive, EndDate: now.AddDate(0, 0, 10),
			},
			wantReason: models.ReasonFeatureNotInPlan,
		},
		{
			name:       "trial inherits the full platinum set",
			featureKey: models.FeatureKOTBilling,
			sub: &models.Subscription{
				ID: 1, UserID: userID, Plan: models.PlanPlatinum, IsTrial: true,
				Status: models.StatusTrial, EndDate: now.AddDate(0, 0, 5),
			},
			wantAccess: true,
		},
		{
			name:       "grace period blocks restricted features",
			featureKey: models.FeatureInventoryManagement,
			sub: &models.Subscription{
				ID: 1, UserID: userID, Plan: models.PlanPlatinum,
				Status: models.StatusGracePeriod, EndDate: now.AddDate(0, 0, -1),
				GracePeriodEnd: &graceEnd,
			},
			wantReason: models.ReasonGraceRestriction,
		},
		{
			name:       "grace period blocks data export",
			featureKey: models.FeatureDataExport,
			sub: &models.Subscription{
				ID: 1, UserID: userID, Plan: models.PlanPlatinum,
				Status: models.StatusGracePeriod, EndDate: now.AddDate(0, 0, -1),
				GracePeriodEnd: &graceEnd,
			},
			wantReason: models.ReasonGraceRestriction,
		},
		{
			name:       "data export is open outside the grace period",
			featureKey: models.FeatureDataExport,
			sub: &models.Subscription{
				ID: 1, UserID: userID, Plan: models.PlanPlatinum,
				Status: models.StatusActive, EndDate: now.AddDate(0, 0, 10),
			},
			wantAccess: true,
		},
		{
			name:       "plan gate wins over the grace restriction on silver",
			featureKey: models.FeatureDataExport,
			sub: &models.Subscription{
				ID: 1, UserID: userID, Plan: models.PlanSilver,
				Status: models.StatusGracePeriod, EndDate: now.AddDate(0, 0, -1),
				GracePeriodEnd: &graceEnd,
			},
			wantReason: models.ReasonFeatureNotInPlan,
		},
		{
			name:       "grace period keeps unrestricted features",
			featureKey: models.FeatureTaxReports,
			sub: &models.Subscription{
				ID: 1, UserID: userID, Plan: models.PlanPlatinum,
				Status: models.StatusGracePeriod, EndDate: now.AddDate(0, 0, -1),
				GracePeriodEnd: &graceEnd,
			},
			wantAccess: true,
		},
		{
			name:       "no subscription means no access",
			featureKey: models.FeatureInventory,
			subErr:     models.ErrNotFound,
			wantReason: models.ReasonNoSubscription,
		},
		{
			name:       "disabled subscription means no access",
			featureKey: models.FeatureInventory,
			sub: &models.Subscription{
				ID: 1, UserID: userID, Plan: models.PlanPlatinum,
				Status: models.StatusDisabled, EndDate: now.AddDate(0, 0, 10),
			},
			wantReason: models.ReasonNoSubscription,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			c := new(CacheMock)
			c.On("Get", mock.Anything, mock.Anything).Return(false, nil)
			c.On("Set", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
			if tt.subErr != nil {
				repo.On("FindCurrentSubscription", mock.Anything, userID).Return(nil, tt.subErr)
			} else {
				repo.On("FindCurrentSubscription", mock.Anything, userID).Return(tt.sub, nil)
				repo.On("UpdateSubscriptionState", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(nil).Maybe()
			}
			svc := newTestService(repo, new(SessionsMock), c, now)

			access, err := svc.HasFeature(context.Background(), userID, tt.featureKey)

			assert.NoError(t, err)
			assert.Equal(t, tt.wantAccess, access.HasAccess)
			assert.Equal(t, tt.wantReason, access.Reason)
		})
	}
}

func TestChangePlan(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	userID := int64(42)

	t.Run("suffixed plan name is normalized before update", func(t *testing.T) {
		repo := new(RepoMock)
		c := new(CacheMock)
		repo.On("UpdatePlanForLive", mock.Anything, userID, "platinum").Return(int64(1), nil)
		c.On("Invalidate", mock.Anything).Return(nil)
		svc := newTestService(repo, new(SessionsMock), c, now)

		err := svc.ChangePlan(context.Background(), userID, "platinum_yearly")

		assert.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("unknown plan is rejected", func(t *testing.T) {
		svc := newTestService(new(RepoMock), new(SessionsMock), new(CacheMock), now)

		err := svc.ChangePlan(context.Background(), userID, "diamond")

		assert.ErrorIs(t, err, models.ErrInvalidState)
	})

	t.Run("no live rows to update", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("UpdatePlanForLive", mock.Anything, userID, "gold").Return(int64(0), nil)
		svc := newTestService(repo, new(SessionsMock), new(CacheMock), now)

		err := svc.ChangePlan(context.Background(), userID, "gold")

		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestActivate(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	userID := int64(42)

	t.Run("activation cancels live rows and inserts a paid one", func(t *testing.T) {
		repo := new(RepoMock)
		c := new(CacheMock)
		repo.On("ActivateSubscription", mock.Anything, mock.MatchedBy(func(sub models.Subscription) bool {
			return sub.Plan == "gold" && sub.Status == models.StatusActive &&
				!sub.IsTrial && sub.EndDate.Equal(now.AddDate(0, 0, 30))
		})).Return(int64(77), nil)
		c.On("Invalidate", mock.Anything).Return(nil)
		svc := newTestService(repo, new(SessionsMock), c, now)

		sub, err := svc.Activate(context.Background(), userID, "gold_monthly", 30, 999)

		assert.NoError(t, err)
		assert.Equal(t, int64(77), sub.ID)
		repo.AssertExpectations(t)
	})

	t.Run("unknown plan is rejected", func(t *testing.T) {
		svc := newTestService(new(RepoMock), new(SessionsMock), new(CacheMock), now)

		_, err := svc.Activate(context.Background(), userID, "diamond", 30, 999)

		assert.ErrorIs(t, err, models.ErrInvalidState)
	})
}

func TestGetCurrent_ContextCancelled(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	repo := new(RepoMock)
	c := new(CacheMock)
	c.On("Get", mock.Anything, mock.Anything).Return(false, nil)
	repo.On("FindCurrentSubscription", mock.Anything, int64(42)).
		Return(nil, errors.New("context canceled"))
	svc := newTestService(repo, new(SessionsMock), c, now)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.GetCurrent(ctx, 42)
	assert.Error(t, err)
}
