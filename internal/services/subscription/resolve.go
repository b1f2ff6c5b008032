package subscription

import (
	"time"

	"github.com/quickbill/quickbill-backend/internal/models"
)

// resolution — результат разрешения статуса подписки по настенным часам.
type resolution struct {
	Status         string
	GracePeriodEnd *time.Time
	Changed        bool
}

// resolve вычисляет фактический статус строки подписки на момент now.
// Чистая функция без побочных эффектов, идемпотентная: повторный вызов
// для уже разрешённой строки возвращает Changed = false.
//
// Порядок проверок фиксирован: терминальные статусы, затем коррекция
// будущих дат, затем истечение.
func resolve(sub *models.Subscription, now time.Time, graceDays int) resolution {
	res := resolution{Status: sub.Status, GracePeriodEnd: sub.GracePeriodEnd}

	switch sub.Status {
	case models.StatusDisabled, models.StatusCancelled:
		// Выход только через явное действие администратора или оплату.
		return res
	}

	if sub.EndDate.After(now) {
		// Дата окончания в будущем: ошибочно истёкшая или льготная строка
		// возвращается в живой статус.
		want := models.StatusActive
		if sub.IsTrial {
			want = models.StatusTrial
		}
		if sub.Status != want || sub.GracePeriodEnd != nil {
			res.Status = want
			res.GracePeriodEnd = nil
			res.Changed = true
		}
		return res
	}

	switch sub.Status {
	case models.StatusTrial:
		res.Status = models.StatusExpired
		res.GracePeriodEnd = nil
		res.Changed = true
	case models.StatusActive:
		if sub.IsTrial {
			// Пробные строки не получают льготный период.
			res.Status = models.StatusExpired
			res.GracePeriodEnd = nil
			res.Changed = true
			return res
		}
		graceEnd := sub.EndDate.AddDate(0, 0, graceDays)
		if now.After(graceEnd) {
			res.Status = models.StatusExpired
			res.GracePeriodEnd = nil
		} else {
			res.Status = models.StatusGracePeriod
			res.GracePeriodEnd = &graceEnd
		}
		res.Changed = true
	case models.StatusGracePeriod:
		graceEnd := sub.GracePeriodEnd
		if graceEnd == nil {
			// Строка без границы льготного периода: достраиваем её от end_date.
			computed := sub.EndDate.AddDate(0, 0, graceDays)
			graceEnd = &computed
			res.GracePeriodEnd = graceEnd
			res.Changed = true
		}
		if now.After(*graceEnd) {
			res.Status = models.StatusExpired
			res.GracePeriodEnd = nil
			res.Changed = true
		}
	}
	return res
}
