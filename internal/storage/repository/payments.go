package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quickbill/quickbill-backend/internal/models"
)

// ListActivePlans возвращает каталог тарифов по возрастанию приоритета.
func (s *Storage) ListActivePlans(ctx context.Context) ([]*models.Plan, error) {
	const op = "storage.ListActivePlans"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, name, display_name, tier_level, price_monthly, duration_days,
			      has_inventory, has_tax_reports, has_customer_reports,
			      has_user_reports, has_kot_billing, max_users, is_active, priority
			  FROM subscription_plans
			  WHERE is_active
			  ORDER BY priority`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var result []*models.Plan
	for rows.Next() {
		p := &models.Plan{}
		if err := rows.Scan(&p.ID, &p.Name, &p.DisplayName, &p.TierLevel,
			&p.PriceMonthly, &p.DurationDays, &p.Features.HasInventory,
			&p.Features.HasTaxReports, &p.Features.HasCustomerReports,
			&p.Features.HasUserReports, &p.Features.HasKOTBilling,
			&p.Features.MaxUsers, &p.IsActive, &p.Priority); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// GetPlanByID возвращает тариф каталога по идентификатору.
func (s *Storage) GetPlanByID(ctx context.Context, planID int64) (*models.Plan, error) {
	const op = "storage.GetPlanByID"
	return s.getPlan(ctx, op, `id = $1`, planID)
}

// GetPlanByName возвращает тариф каталога по нормализованному имени.
func (s *Storage) GetPlanByName(ctx context.Context, name string) (*models.Plan, error) {
	const op = "storage.GetPlanByName"
	return s.getPlan(ctx, op, `name = $1`, name)
}

func (s *Storage) getPlan(ctx context.Context, op, where string, arg any) (*models.Plan, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, name, display_name, tier_level, price_monthly, duration_days,
			      has_inventory, has_tax_reports, has_customer_reports,
			      has_user_reports, has_kot_billing, max_users, is_active, priority
			  FROM subscription_plans
			  WHERE ` + where
	p := &models.Plan{}
	if err := s.DB.QueryRowContext(ctx, query, arg).Scan(&p.ID, &p.Name, &p.DisplayName,
		&p.TierLevel, &p.PriceMonthly, &p.DurationDays, &p.Features.HasInventory,
		&p.Features.HasTaxReports, &p.Features.HasCustomerReports,
		&p.Features.HasUserReports, &p.Features.HasKOTBilling,
		&p.Features.MaxUsers, &p.IsActive, &p.Priority); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// CreateManualPayment сохраняет заявку на ручную оплату и возвращает её ID.
func (s *Storage) CreateManualPayment(ctx context.Context, payment models.ManualPayment) (int64, error) {
	const op = "storage.CreateManualPayment"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var newID int64
	query := `INSERT INTO manual_payments (user_id, plan, amount, payment_method, qr_code_data)
			  VALUES ($1, $2, $3, $4, $5)
			  RETURNING id;`
	if err := s.DB.QueryRowContext(ctx, query,
		payment.UserID, payment.Plan, payment.Amount, payment.PaymentMethod,
		payment.QRCodeData).Scan(&newID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// AttachPaymentReference записывает номер транзакции в ожидающую заявку
// пользователя. Возвращает количество изменённых строк: ноль означает,
// что заявки нет или она уже обработана.
func (s *Storage) AttachPaymentReference(ctx context.Context, paymentID, userID int64, reference, screenshotURL string) (int64, error) {
	const op = "storage.AttachPaymentReference"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE manual_payments
			  SET transaction_reference = $3, screenshot_url = $4, updated_at = NOW()
			  WHERE id = $1 AND user_id = $2 AND verification_status = 'pending'`
	res, err := s.DB.ExecContext(ctx, query, paymentID, userID, reference, screenshotURL)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// GetManualPayment возвращает заявку вместе с именем и почтой плательщика.
func (s *Storage) GetManualPayment(ctx context.Context, paymentID int64) (*models.ManualPayment, error) {
	const op = "storage.GetManualPayment"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT mp.id, mp.user_id, mp.plan, mp.amount, mp.payment_method,
			      mp.qr_code_data, mp.transaction_reference, mp.screenshot_url,
			      mp.verification_status, mp.rejection_reason, mp.verified_by,
			      mp.verified_at, mp.created_at, mp.updated_at, u.email, u.name
			  FROM manual_payments mp
			  JOIN users u ON u.id = mp.user_id
			  WHERE mp.id = $1`
	payment, err := scanManualPayment(s.DB.QueryRowContext(ctx, query, paymentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return payment, nil
}

// ListPendingPayments возвращает очередь необработанных заявок, старые сверху.
func (s *Storage) ListPendingPayments(ctx context.Context) ([]*models.ManualPayment, error) {
	const op = "storage.ListPendingPayments"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT mp.id, mp.user_id, mp.plan, mp.amount, mp.payment_method,
			      mp.qr_code_data, mp.transaction_reference, mp.screenshot_url,
			      mp.verification_status, mp.rejection_reason, mp.verified_by,
			      mp.verified_at, mp.created_at, mp.updated_at, u.email, u.name
			  FROM manual_payments mp
			  JOIN users u ON u.id = mp.user_id
			  WHERE mp.verification_status = 'pending'
			  ORDER BY mp.created_at`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var result []*models.ManualPayment
	for rows.Next() {
		payment, err := scanManualPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// VerifyManualPayment помечает ожидающую заявку подтверждённой и создаёт
// оплаченную подписку в одной транзакции. Ноль затронутых строк у UPDATE
// означает, что заявка уже обработана параллельным администратором.
func (s *Storage) VerifyManualPayment(ctx context.Context, paymentID int64, verifiedBy string, sub models.Subscription) (int64, error) {
	const op = "storage.VerifyManualPayment"
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

	verifyQuery := `UPDATE manual_payments
			  SET verification_status = 'verified', verified_by = $2,
			      verified_at = NOW(), updated_at = NOW()
			  WHERE id = $1 AND verification_status = 'pending'`
	res, err := tx.ExecContext(ctx, verifyQuery, paymentID, verifiedBy)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, fmt.Errorf("%s: %w", op, models.ErrAlreadyProcessed)
	}

	subID, err := insertPaidSubscription(ctx, tx, sub)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return subID, nil
}

// RejectManualPayment помечает ожидающую заявку отклонённой.
func (s *Storage) RejectManualPayment(ctx context.Context, paymentID int64, verifiedBy, reason string) error {
	const op = "storage.RejectManualPayment"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE manual_payments
			  SET verification_status = 'rejected', rejection_reason = $3,
			      verified_by = $2, verified_at = NOW(), updated_at = NOW()
			  WHERE id = $1 AND verification_status = 'pending'`
	res, err := s.DB.ExecContext(ctx, query, paymentID, verifiedBy, reason)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrAlreadyProcessed)
	}
	return nil
}

func scanManualPayment(row rowScanner) (*models.ManualPayment, error) {
	payment := &models.ManualPayment{}
	var verifiedAt, updatedAt sql.NullTime
	if err := row.Scan(&payment.ID, &payment.UserID, &payment.Plan, &payment.Amount,
		&payment.PaymentMethod, &payment.QRCodeData, &payment.TransactionReference,
		&payment.ScreenshotURL, &payment.VerificationStatus, &payment.RejectionReason,
		&payment.VerifiedBy, &verifiedAt, &payment.CreatedAt, &updatedAt,
		&payment.UserEmail, &payment.UserName); err != nil {
		return nil, err
	}
	if verifiedAt.Valid {
		payment.VerifiedAt = &verifiedAt.Time
	}
	if updatedAt.Valid {
		payment.UpdatedAt = &updatedAt.Time
	}
	return payment, nil
}
