package models

import (
	"math"
	"strings"
	"time"
)

// Статусы подписки. disabled и cancelled терминальные: машина состояний
// никогда не выводит из них автоматически.
const (
	StatusTrial       = "trial"
	StatusActive      = "active"
	StatusGracePeriod = "grace_period"
	StatusExpired     = "expired"
	StatusCancelled   = "cancelled"
	StatusDisabled    = "disabled"
)

// Канонические имена тарифов. В хранилище и в запросах могут встречаться
// варианты с суффиксом периодичности, например gold_monthly, поэтому
// перед любым сравнением имя прогоняется через NormalizePlan.
const (
	PlanSilver   = "silver"
	PlanGold     = "gold"
	PlanPlatinum = "platinum"
)

// Ключи функций тарифов.
const (
	FeatureInventory       = "inventory"
	FeatureTaxReports      = "tax_reports"
	FeatureCustomerReports = "customer_reports"
	FeatureUserReports     = "user_reports"
	FeatureKOTBilling      = "kot_billing"

	// Ключи, которые присылают клиенты при проверке доступа. Отображаются
	// на возможности тарифа; оба закрываются в льготный период.
	FeatureInventoryManagement = "inventory_management"
	FeatureDataExport          = "data_export"
)

// Subscription — строка истории подписок пользователя. История append-only:
// активация нового тарифа отменяет живые строки и добавляет новую.
type Subscription struct {
	ID             int64      // Идентификатор записи
	UserID         int64      // Владелец
	Plan           string     // Имя тарифа, возможно с суффиксом периодичности
	Status         string     // Текущий статус (см. константы Status*)
	IsTrial        bool       // Пробная ли это подписка
	StartDate      time.Time  // Начало действия
	EndDate        time.Time  // Конец оплаченного периода
	GracePeriodEnd *time.Time // Конец льготного периода, если статус grace_period
	AmountPaid     float64    // Оплаченная сумма
	AutoRenew      bool       // Флаг автопродления
	CreatedAt      time.Time  // Дата создания записи
	UpdatedAt      *time.Time // Дата последнего изменения
}

// IsLive сообщает, даёт ли статус доступ к приложению.
func IsLive(status string) bool {
	return status == StatusActive || status == StatusTrial || status == StatusGracePeriod
}

var planSuffixes = strings.NewReplacer(
	"_monthly", "",
	"_quarterly", "",
	"_yearly", "",
)

// NormalizePlan приводит имя тарифа к каноническому виду, убирая суффикс
// периодичности: gold_monthly -> gold. Вызывается на каждом чтении.
func NormalizePlan(plan string) string {
	return planSuffixes.Replace(strings.ToLower(strings.TrimSpace(plan)))
}

// IsKnownPlan проверяет, что нормализованное имя тарифа из каталога.
func IsKnownPlan(plan string) bool {
	switch NormalizePlan(plan) {
	case PlanSilver, PlanGold, PlanPlatinum:
		return true
	}
	return false
}

// Features — набор функций, доступных на тарифе.
type Features struct {
	HasInventory       bool `json:"hasInventory"`
	HasTaxReports      bool `json:"hasTaxReports"`
	HasCustomerReports bool `json:"hasCustomerReports"`
	HasUserReports     bool `json:"hasUserReports"`
	HasKOTBilling      bool `json:"hasKotBilling"`
	MaxUsers           int  `json:"maxUsers"`
}

// FeaturesForPlan возвращает матрицу функций тарифа. Пробные подписки
// заводятся на platinum и наследуют его набор целиком.
func FeaturesForPlan(plan string) Features {
	switch NormalizePlan(plan) {
	case PlanPlatinum:
		return Features{
			HasInventory:       true,
			HasTaxReports:      true,
			HasCustomerReports: true,
			HasUserReports:     true,
			HasKOTBilling:      true,
			MaxUsers:           5,
		}
	case PlanGold:
		return Features{
			HasInventory:       true,
			HasTaxReports:      true,
			HasCustomerReports: true,
			MaxUsers:           3,
		}
	default:
		return Features{MaxUsers: 1}
	}
}

// PlanHasFeature проверяет доступность функции по ключу на тарифе.
func PlanHasFeature(plan, featureKey string) bool {
	f := FeaturesForPlan(plan)
	switch featureKey {
	case FeatureInventory, FeatureInventoryManagement:
		return f.HasInventory
	case FeatureTaxReports:
		return f.HasTaxReports
	case FeatureDataExport:
		// Выгрузка данных доступна там же, где налоговые отчёты.
		return f.HasTaxReports
	case FeatureCustomerReports:
		return f.HasCustomerReports
	case FeatureUserReports:
		return f.HasUserReports
	case FeatureKOTBilling:
		return f.HasKOTBilling
	}
	return false
}

// Snapshot — согласованный срез состояния подписки после разрешения
// статуса. Именно он уходит клиентам и кладётся в кэш.
type Snapshot struct {
	SubscriptionID      int64      `json:"subscriptionId"`
	Plan                string     `json:"plan"` // всегда нормализованное имя
	Status              string     `json:"status"`
	IsTrial             bool       `json:"isTrial"`
	StartDate           time.Time  `json:"startDate"`
	EndDate             time.Time  `json:"endDate"`
	DaysRemaining       int        `json:"daysRemaining"`
	IsInGracePeriod     bool       `json:"isInGracePeriod"`
	GracePeriodEnd      *time.Time `json:"gracePeriodEnd,omitempty"`
	GraceDaysRemaining  int        `json:"graceDaysRemaining"`
	Features            Features   `json:"features"`
	Version             int64      `json:"version"` // unix millis момента расчёта
}

// DaysUntil возвращает количество оставшихся суток до deadline,
// округляя вверх и никогда не опускаясь ниже нуля.
func DaysUntil(deadline, now time.Time) int {
	if !deadline.After(now) {
		return 0
	}
	return int(math.Ceil(deadline.Sub(now).Hours() / 24))
}

// FeatureAccess — результат проверки доступа к функции.
type FeatureAccess struct {
	FeatureKey string `json:"featureKey"`
	HasAccess  bool   `json:"hasAccess"`
	Reason     string `json:"reason,omitempty"`
	Plan       string `json:"plan,omitempty"`
	Status     string `json:"status,omitempty"`
}

// Причины отказа в доступе к функции.
const (
	ReasonNoSubscription    = "no_subscription"
	ReasonFeatureNotInPlan  = "feature_not_in_plan"
	ReasonGraceRestriction  = "grace_period_restriction"
)
