package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/quickbill/quickbill-backend/internal/models"
)

const subscriptionColumns = `id, user_id, plan, status, is_trial, start_date,
			      end_date, grace_period_end, amount_paid, auto_renew,
			      created_at, updated_at`

// CreateSubscription добавляет строку истории подписок и возвращает её ID.
// Для пробной строки нарушение частичного индекса одного триала
// превращается в models.ErrAlreadyHadTrial.
func (s *Storage) CreateSubscription(ctx context.Context, sub models.Subscription) (int64, error) {
	const op = "storage.CreateSubscription"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var newID int64
	query := `INSERT INTO subscriptions (user_id, plan, status, is_trial, start_date,
			      end_date, amount_paid, auto_renew)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			  RETURNING id;`
	if err := s.DB.QueryRowContext(ctx, query,
		sub.UserID, sub.Plan, sub.Status, sub.IsTrial, sub.StartDate,
		sub.EndDate, sub.AmountPaid, sub.AutoRenew).Scan(&newID); err != nil {
		if sub.IsTrial && isUniqueViolation(err) {
			return 0, fmt.Errorf("%s: %w", op, models.ErrAlreadyHadTrial)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// FindCurrentSubscription возвращает текущую строку истории пользователя:
// живую либо с датой окончания в будущем, с наибольшей end_date.
func (s *Storage) FindCurrentSubscription(ctx context.Context, userID int64) (*models.Subscription, error) {
	const op = "storage.FindCurrentSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE user_id = $1
			    AND (status IN ('active', 'trial', 'grace_period', 'disabled')
			         OR end_date > NOW())
			  ORDER BY end_date DESC
			  LIMIT 1`
	return s.scanSubscription(s.DB.QueryRowContext(ctx, query, userID), op)
}

// FindLatestRenewable возвращает последнюю строку, пригодную для продления.
func (s *Storage) FindLatestRenewable(ctx context.Context, userID int64) (*models.Subscription, error) {
	const op = "storage.FindLatestRenewable"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE user_id = $1
			    AND status IN ('active', 'trial', 'grace_period', 'expired')
			  ORDER BY end_date DESC
			  LIMIT 1`
	return s.scanSubscription(s.DB.QueryRowContext(ctx, query, userID), op)
}

// CountTrials возвращает количество пробных подписок пользователя за всё время.
func (s *Storage) CountTrials(ctx context.Context, userID int64) (int, error) {
	const op = "storage.CountTrials"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var count int
	query := `SELECT COUNT(*) FROM subscriptions WHERE user_id = $1 AND is_trial`
	if err := s.DB.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// UpdateSubscriptionState записывает разрешённый статус и границу льготного
// периода. Вызывается на каждом чтении, обнаружившем расхождение.
func (s *Storage) UpdateSubscriptionState(ctx context.Context, subID int64, status string, gracePeriodEnd *time.Time) error {
	const op = "storage.UpdateSubscriptionState"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET status = $2, grace_period_end = $3, updated_at = NOW()
			  WHERE id = $1`
	if _, err := s.DB.ExecContext(ctx, query, subID, status, gracePeriodEnd); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateEndDate переносит дату окончания и статус строки подписки.
func (s *Storage) UpdateEndDate(ctx context.Context, subID int64, endDate time.Time, status string) error {
	const op = "storage.UpdateEndDate"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET end_date = $2, status = $3, grace_period_end = NULL, updated_at = NOW()
			  WHERE id = $1`
	if _, err := s.DB.ExecContext(ctx, query, subID, endDate, status); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdatePlanForLive меняет тариф у живых строк пользователя и возвращает
// количество изменённых строк.
func (s *Storage) UpdatePlanForLive(ctx context.Context, userID int64, plan string) (int64, error) {
	const op = "storage.UpdatePlanForLive"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET plan = $2, updated_at = NOW()
			  WHERE user_id = $1 AND status IN ('active', 'trial', 'grace_period')`
	res, err := s.DB.ExecContext(ctx, query, userID, plan)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// ActivateSubscription отменяет живые строки пользователя и добавляет новую
// оплаченную в одной транзакции.
func (s *Storage) ActivateSubscription(ctx context.Context, sub models.Subscription) (int64, error) {
	const op = "storage.ActivateSubscription"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	newID, err := insertPaidSubscription(ctx, tx, sub)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// insertPaidSubscription выполняет cancel-then-insert внутри переданной
// транзакции. Используется активацией и подтверждением платежа.
func insertPaidSubscription(ctx context.Context, tx *sql.Tx, sub models.Subscription) (int64, error) {
	cancelQuery := `UPDATE subscriptions
			  SET status = 'cancelled', grace_period_end = NULL, updated_at = NOW()
			  WHERE user_id = $1 AND status IN ('active', 'trial', 'grace_period')`
	if _, err := tx.ExecContext(ctx, cancelQuery, sub.UserID); err != nil {
		return 0, err
	}

	var newID int64
	insertQuery := `INSERT INTO subscriptions (user_id, plan, status, is_trial, start_date,
			      end_date, amount_paid, auto_renew)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			  RETURNING id;`
	if err := tx.QueryRowContext(ctx, insertQuery,
		sub.UserID, sub.Plan, sub.Status, sub.IsTrial, sub.StartDate,
		sub.EndDate, sub.AmountPaid, sub.AutoRenew).Scan(&newID); err != nil {
		return 0, err
	}
	return newID, nil
}

// DisableLiveSubscriptions переводит живые строки пользователя в disabled.
func (s *Storage) DisableLiveSubscriptions(ctx context.Context, userID int64) (int64, error) {
	const op = "storage.DisableLiveSubscriptions"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET status = 'disabled', updated_at = NOW()
			  WHERE user_id = $1 AND status IN ('active', 'trial', 'grace_period')`
	res, err := s.DB.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// EnableDisabledSubscriptions выводит строки пользователя из disabled в
// переданный статус, дальше статус уточняет машина состояний на чтении.
func (s *Storage) EnableDisabledSubscriptions(ctx context.Context, userID int64, status string) (int64, error) {
	const op = "storage.EnableDisabledSubscriptions"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET status = $2, updated_at = NOW()
			  WHERE user_id = $1 AND status = 'disabled'`
	res, err := s.DB.ExecContext(ctx, query, userID, status)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// ListSubscriptions возвращает историю подписок пользователя, новые сверху.
func (s *Storage) ListSubscriptions(ctx context.Context, userID int64) ([]*models.Subscription, error) {
	const op = "storage.ListSubscriptions"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE user_id = $1
			  ORDER BY created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var result []*models.Subscription
	for rows.Next() {
		sub := &models.Subscription{}
		var graceEnd, updatedAt sql.NullTime
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Plan, &sub.Status, &sub.IsTrial,
			&sub.StartDate, &sub.EndDate, &graceEnd, &sub.AmountPaid, &sub.AutoRenew,
			&sub.CreatedAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if graceEnd.Valid {
			sub.GracePeriodEnd = &graceEnd.Time
		}
		if updatedAt.Valid {
			sub.UpdatedAt = &updatedAt.Time
		}
		result = append(result, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

func (s *Storage) scanSubscription(row *sql.Row, op string) (*models.Subscription, error) {
	sub := &models.Subscription{}
	var graceEnd, updatedAt sql.NullTime
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.Plan, &sub.Status, &sub.IsTrial,
		&sub.StartDate, &sub.EndDate, &graceEnd, &sub.AmountPaid, &sub.AutoRenew,
		&sub.CreatedAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if graceEnd.Valid {
		sub.GracePeriodEnd = &graceEnd.Time
	}
	if updatedAt.Valid {
		sub.UpdatedAt = &updatedAt.Time
	}
	return sub, nil
}
