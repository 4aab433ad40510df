package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fableforge/fableforge/internal/services/lifecycle/storage"
)

// PutConfirmationToken inserts one confirmation token.
func (s *Store) PutConfirmationToken(ctx context.Context, record storage.ConfirmationTokenRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO confirmation_tokens (token, request_id, created_at, expires_at, used_at)
		 VALUES (?, ?, ?, ?, ?)`,
		record.Token,
		record.RequestID,
		toMillis(record.CreatedAt),
		toMillis(record.ExpiresAt),
		toMillisPtr(record.UsedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("put confirmation token: %w", err)
	}
	return nil
}

// GetConfirmationToken returns one confirmation token.
func (s *Store) GetConfirmationToken(ctx context.Context, token string) (storage.ConfirmationTokenRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ConfirmationTokenRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ConfirmationTokenRecord{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT token, request_id, created_at, expires_at, used_at
		   FROM confirmation_tokens
		  WHERE token = ?`,
		strings.TrimSpace(token),
	)
	var record storage.ConfirmationTokenRecord
	var createdAt, expiresAt int64
	var usedAt sql.NullInt64
	if err := row.Scan(&record.Token, &record.RequestID, &createdAt, &expiresAt, &usedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ConfirmationTokenRecord{}, storage.ErrNotFound
		}
		return storage.ConfirmationTokenRecord{}, fmt.Errorf("get confirmation token: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	record.ExpiresAt = fromMillis(expiresAt)
	record.UsedAt = fromMillisPtr(usedAt)
	return record, nil
}

// MarkConfirmationTokenUsed stamps used_at exactly once. The used_at IS
// NULL guard makes concurrent confirms lose with ErrConflict.
func (s *Store) MarkConfirmationTokenUsed(ctx context.Context, token string, usedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE confirmation_tokens SET used_at = ? WHERE token = ? AND used_at IS NULL`,
		toMillis(usedAt),
		strings.TrimSpace(token),
	)
	if err != nil {
		return fmt.Errorf("mark confirmation token used: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark confirmation token used: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetConfirmationToken(ctx, token); errors.Is(getErr, storage.ErrNotFound) {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}
	return nil
}

var _ storage.TokenStore = (*Store)(nil)
