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

// PutNotificationWithDelivery atomically persists one notification intent
// and its initial pending delivery row.
func (s *Store) PutNotificationWithDelivery(ctx context.Context, notification storage.NotificationRecord, delivery storage.DeliveryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin notification transaction: %w", err)
	}
	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO notifications (id, recipient_id, kind, payload_json, dedupe_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		notification.ID,
		notification.RecipientID,
		notification.Kind,
		notification.PayloadJSON,
		notification.DedupeKey,
		toMillis(notification.CreatedAt),
		toMillis(notification.UpdatedAt),
	)
	if err != nil {
		_ = tx.Rollback()
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO notification_deliveries (notification_id, status, attempt_count, next_attempt_at, last_error, created_at, updated_at, delivered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		delivery.NotificationID,
		string(delivery.Status),
		delivery.AttemptCount,
		toMillis(delivery.NextAttemptAt),
		delivery.LastError,
		toMillis(delivery.CreatedAt),
		toMillis(delivery.UpdatedAt),
		toMillisPtr(delivery.DeliveredAt),
	)
	if err != nil {
		_ = tx.Rollback()
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("insert notification delivery: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit notification transaction: %w", err)
	}
	return nil
}

// GetNotification returns one notification intent.
func (s *Store) GetNotification(ctx context.Context, id string) (storage.NotificationRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.NotificationRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.NotificationRecord{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, recipient_id, kind, payload_json, dedupe_key, created_at, updated_at
		   FROM notifications
		  WHERE id = ?`,
		strings.TrimSpace(id),
	)
	return scanNotification(row)
}

// GetNotificationByRecipientAndDedupeKey loads one recipient notification by
// dedupe key.
func (s *Store) GetNotificationByRecipientAndDedupeKey(ctx context.Context, recipientID string, dedupeKey string) (storage.NotificationRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.NotificationRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.NotificationRecord{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, recipient_id, kind, payload_json, dedupe_key, created_at, updated_at
		   FROM notifications
		  WHERE recipient_id = ? AND dedupe_key = ?`,
		strings.TrimSpace(recipientID),
		strings.TrimSpace(dedupeKey),
	)
	return scanNotification(row)
}

func scanNotification(row rowScanner) (storage.NotificationRecord, error) {
	var record storage.NotificationRecord
	var createdAt, updatedAt int64
	err := row.Scan(
		&record.ID,
		&record.RecipientID,
		&record.Kind,
		&record.PayloadJSON,
		&record.DedupeKey,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.NotificationRecord{}, storage.ErrNotFound
		}
		return storage.NotificationRecord{}, fmt.Errorf("get notification: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// ListDueDeliveries lists pending or retryable deliveries whose next attempt
// time has passed, oldest first.
func (s *Store) ListDueDeliveries(ctx context.Context, now time.Time, limit int) ([]storage.DeliveryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT notification_id, status, attempt_count, next_attempt_at, last_error, created_at, updated_at, delivered_at
		   FROM notification_deliveries
		  WHERE status IN ('pending', 'failed') AND next_attempt_at <= ?
		  ORDER BY next_attempt_at ASC, notification_id ASC
		  LIMIT ?`,
		toMillis(now),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due deliveries: %w", err)
	}
	defer rows.Close()

	var records []storage.DeliveryRecord
	for rows.Next() {
		var record storage.DeliveryRecord
		var nextAttemptAt, createdAt, updatedAt int64
		var deliveredAt sql.NullInt64
		if err := rows.Scan(
			&record.NotificationID,
			&record.Status,
			&record.AttemptCount,
			&nextAttemptAt,
			&record.LastError,
			&createdAt,
			&updatedAt,
			&deliveredAt,
		); err != nil {
			return nil, fmt.Errorf("list due deliveries: %w", err)
		}
		record.NextAttemptAt = fromMillis(nextAttemptAt)
		record.CreatedAt = fromMillis(createdAt)
		record.UpdatedAt = fromMillis(updatedAt)
		record.DeliveredAt = fromMillisPtr(deliveredAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list due deliveries: %w", err)
	}
	return records, nil
}

// MarkDeliveryRetry records one failed attempt and its next attempt time.
func (s *Store) MarkDeliveryRetry(ctx context.Context, notificationID string, attemptCount int, nextAttemptAt time.Time, lastError string) error {
	return s.updateDelivery(ctx,
		`UPDATE notification_deliveries
		    SET status = 'failed', attempt_count = ?, next_attempt_at = ?, last_error = ?, updated_at = ?
		  WHERE notification_id = ?`,
		attemptCount, toMillis(nextAttemptAt), lastError, toMillis(s.now()), strings.TrimSpace(notificationID),
	)
}

// MarkDeliveryDelivered finalizes one delivery as sent.
func (s *Store) MarkDeliveryDelivered(ctx context.Context, notificationID string, deliveredAt time.Time) error {
	at := toMillis(deliveredAt)
	return s.updateDelivery(ctx,
		`UPDATE notification_deliveries
		    SET status = 'delivered', delivered_at = ?, updated_at = ?
		  WHERE notification_id = ?`,
		at, at, strings.TrimSpace(notificationID),
	)
}

// MarkDeliveryDead finalizes one delivery after attempts were exhausted.
func (s *Store) MarkDeliveryDead(ctx context.Context, notificationID string, at time.Time, lastError string) error {
	return s.updateDelivery(ctx,
		`UPDATE notification_deliveries
		    SET status = 'dead', last_error = ?, updated_at = ?
		  WHERE notification_id = ?`,
		lastError, toMillis(at), strings.TrimSpace(notificationID),
	)
}

func (s *Store) updateDelivery(ctx context.Context, query string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	result, err := s.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update notification delivery: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update notification delivery: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

var _ storage.NotificationStore = (*Store)(nil)
