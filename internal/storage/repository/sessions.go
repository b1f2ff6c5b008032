package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/quickbill/quickbill-backend/internal/models"
)

const sessionColumns = `id, user_id, session_token, device_id, device_info,
			      is_active, created_at, last_active, invalidated_at, invalidated_by`

// CreateSession гасит все активные сессии пользователя и создаёт новую в
// одной транзакции. Частичный индекс idx_sessions_one_active закрывает
// гонку параллельных входов: проигравшая вставка получает 23505 и
// повторяет транзакцию один раз, побеждает новая сессия.
func (s *Storage) CreateSession(ctx context.Context, userID int64, token, deviceID string, deviceInfo models.DeviceInfo) (*models.Session, error) {
	const op = "storage.CreateSession"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	infoJSON, err := json.Marshal(deviceInfo)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		session, err := s.createSessionTx(ctx, userID, token, deviceID, infoJSON)
		if err == nil {
			session.DeviceInfo = deviceInfo
			return session, nil
		}
		lastErr = err
		if !isUniqueViolation(err) {
			break
		}
	}
	return nil, fmt.Errorf("%s: %w", op, lastErr)
}

func (s *Storage) createSessionTx(ctx context.Context, userID int64, token, deviceID string, infoJSON []byte) (*models.Session, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	invalidateQuery := `UPDATE sessions
			  SET is_active = FALSE, invalidated_at = NOW(), invalidated_by = $2
			  WHERE user_id = $1 AND is_active`
	if _, err := tx.ExecContext(ctx, invalidateQuery, userID, models.InvalidatedByNewLogin); err != nil {
		return nil, err
	}

	session := &models.Session{
		UserID:       userID,
		SessionToken: token,
		DeviceID:     deviceID,
		IsActive:     true,
	}
	insertQuery := `INSERT INTO sessions (user_id, session_token, device_id, device_info)
			  VALUES ($1, $2, $3, $4)
			  RETURNING id, created_at, last_active;`
	if err := tx.QueryRowContext(ctx, insertQuery, userID, token, deviceID, infoJSON).
		Scan(&session.ID, &session.CreatedAt, &session.LastActive); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return session, nil
}

// FindSessionByToken возвращает сессию по токену и владельцу, включая
// уже погашенные строки.
func (s *Storage) FindSessionByToken(ctx context.Context, userID int64, token string) (*models.Session, error) {
	const op = "storage.FindSessionByToken"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + sessionColumns + `
			  FROM sessions
			  WHERE user_id = $1 AND session_token = $2`
	return s.scanSession(s.DB.QueryRowContext(ctx, query, userID, token), op)
}

// TouchSession обновляет отметку последней активности сессии.
func (s *Storage) TouchSession(ctx context.Context, sessionID string) error {
	const op = "storage.TouchSession"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE sessions SET last_active = NOW() WHERE id = $1`
	if _, err := s.DB.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// InvalidateAllSessions гасит все активные сессии пользователя с указанной
// причиной и возвращает количество погашенных строк.
func (s *Storage) InvalidateAllSessions(ctx context.Context, userID int64, reason string) (int64, error) {
	const op = "storage.InvalidateAllSessions"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE sessions
			  SET is_active = FALSE, invalidated_at = NOW(), invalidated_by = $2
			  WHERE user_id = $1 AND is_active`
	res, err := s.DB.ExecContext(ctx, query, userID, reason)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// InvalidateOtherSessions гасит все активные сессии пользователя, кроме
// сессии с переданным токеном.
func (s *Storage) InvalidateOtherSessions(ctx context.Context, userID int64, keepToken, reason string) (int64, error) {
	const op = "storage.InvalidateOtherSessions"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE sessions
			  SET is_active = FALSE, invalidated_at = NOW(), invalidated_by = $3
			  WHERE user_id = $1 AND is_active AND session_token <> $2`
	res, err := s.DB.ExecContext(ctx, query, userID, keepToken, reason)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// InvalidateSessionByToken гасит одну сессию по её токену.
func (s *Storage) InvalidateSessionByToken(ctx context.Context, token, reason string) (int64, error) {
	const op = "storage.InvalidateSessionByToken"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE sessions
			  SET is_active = FALSE, invalidated_at = NOW(), invalidated_by = $2
			  WHERE session_token = $1 AND is_active`
	res, err := s.DB.ExecContext(ctx, query, token, reason)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// ListSessions возвращает сессии пользователя, новые сверху. Если
// onlyActive истинно, погашенные строки отбрасываются.
func (s *Storage) ListSessions(ctx context.Context, userID int64, onlyActive bool, limit int) ([]*models.Session, error) {
	const op = "storage.ListSessions"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + sessionColumns + `
			  FROM sessions
			  WHERE user_id = $1 AND (NOT $2 OR is_active)
			  ORDER BY created_at DESC
			  LIMIT $3`
	rows, err := s.DB.QueryContext(ctx, query, userID, onlyActive, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var result []*models.Session
	for rows.Next() {
		session, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// DeleteStaleSessions удаляет давно погашенные и давно неактивные сессии.
func (s *Storage) DeleteStaleSessions(ctx context.Context, retentionDays int) (int64, error) {
	const op = "storage.DeleteStaleSessions"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM sessions
			  WHERE (NOT is_active AND invalidated_at < NOW() - make_interval(days => $1))
			     OR (NOT is_active AND invalidated_at IS NULL AND last_active < NOW() - make_interval(days => $1))`
	res, err := s.DB.ExecContext(ctx, query, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSessionRow(row rowScanner) (*models.Session, error) {
	session := &models.Session{}
	var infoJSON []byte
	var invalidatedAt sql.NullTime
	if err := row.Scan(&session.ID, &session.UserID, &session.SessionToken,
		&session.DeviceID, &infoJSON, &session.IsActive, &session.CreatedAt,
		&session.LastActive, &invalidatedAt, &session.InvalidatedBy); err != nil {
		return nil, err
	}
	if invalidatedAt.Valid {
		session.InvalidatedAt = &invalidatedAt.Time
	}
	if len(infoJSON) > 0 {
		if err := json.Unmarshal(infoJSON, &session.DeviceInfo); err != nil {
			return nil, err
		}
	}
	return session, nil
}

func (s *Storage) scanSession(row *sql.Row, op string) (*models.Session, error) {
	session, err := scanSessionRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return session, nil
}
