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

const deletionRequestColumns = `id, target_type, target_id, requested_by, status, reason,
	account_mode, character_stories, confirmation_token,
	created_at, updated_at, scheduled_deletion_at, executed_at,
	cancelled_by, cancelled_at, outcome, attempt_count, last_error, next_retry_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeletionRequest(row rowScanner) (storage.DeletionRequestRecord, error) {
	var record storage.DeletionRequestRecord
	var createdAt, updatedAt, scheduledAt int64
	var executedAt, cancelledAt, nextRetryAt sql.NullInt64
	err := row.Scan(
		&record.ID,
		&record.TargetType,
		&record.TargetID,
		&record.RequestedBy,
		&record.Status,
		&record.Reason,
		&record.AccountMode,
		&record.CharacterStories,
		&record.ConfirmationToken,
		&createdAt,
		&updatedAt,
		&scheduledAt,
		&executedAt,
		&record.CancelledBy,
		&cancelledAt,
		&record.Outcome,
		&record.AttemptCount,
		&record.LastError,
		&nextRetryAt,
	)
	if err != nil {
		return storage.DeletionRequestRecord{}, err
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	record.ScheduledDeletionAt = fromMillis(scheduledAt)
	record.ExecutedAt = fromMillisPtr(executedAt)
	record.CancelledAt = fromMillisPtr(cancelledAt)
	record.NextRetryAt = fromMillisPtr(nextRetryAt)
	return record, nil
}

// CreateRequest inserts one deletion request. The partial unique index over
// active statuses turns concurrent creates for the same target into
// ErrConflict.
func (s *Store) CreateRequest(ctx context.Context, record storage.DeletionRequestRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO deletion_requests (`+deletionRequestColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		string(record.TargetType),
		record.TargetID,
		record.RequestedBy,
		string(record.Status),
		record.Reason,
		string(record.AccountMode),
		string(record.CharacterStories),
		record.ConfirmationToken,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
		toMillis(record.ScheduledDeletionAt),
		toMillisPtr(record.ExecutedAt),
		record.CancelledBy,
		toMillisPtr(record.CancelledAt),
		record.Outcome,
		record.AttemptCount,
		record.LastError,
		toMillisPtr(record.NextRetryAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("create deletion request: %w", err)
	}
	return nil
}

// GetRequest returns one deletion request by ID.
func (s *Store) GetRequest(ctx context.Context, id string) (storage.DeletionRequestRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.DeletionRequestRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.DeletionRequestRecord{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+deletionRequestColumns+` FROM deletion_requests WHERE id = ?`,
		strings.TrimSpace(id),
	)
	record, err := scanDeletionRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.DeletionRequestRecord{}, storage.ErrNotFound
		}
		return storage.DeletionRequestRecord{}, fmt.Errorf("get deletion request: %w", err)
	}
	return record, nil
}

// GetActiveRequestByTarget returns the single non-terminal request for a
// target.
func (s *Store) GetActiveRequestByTarget(ctx context.Context, targetType storage.TargetType, targetID string) (storage.DeletionRequestRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.DeletionRequestRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.DeletionRequestRecord{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+deletionRequestColumns+`
		   FROM deletion_requests
		  WHERE target_type = ? AND target_id = ?
		    AND status IN ('scheduled', 'confirmed', 'executing')`,
		string(targetType),
		strings.TrimSpace(targetID),
	)
	record, err := scanDeletionRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.DeletionRequestRecord{}, storage.ErrNotFound
		}
		return storage.DeletionRequestRecord{}, fmt.Errorf("get active deletion request: %w", err)
	}
	return record, nil
}

// ListRequestsByTarget returns the audit history for one target, newest
// first.
func (s *Store) ListRequestsByTarget(ctx context.Context, targetType storage.TargetType, targetID string) ([]storage.DeletionRequestRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+deletionRequestColumns+`
		   FROM deletion_requests
		  WHERE target_type = ? AND target_id = ?
		  ORDER BY created_at DESC, id DESC`,
		string(targetType),
		strings.TrimSpace(targetID),
	)
	if err != nil {
		return nil, fmt.Errorf("list deletion requests: %w", err)
	}
	defer rows.Close()

	var records []storage.DeletionRequestRecord
	for rows.Next() {
		record, err := scanDeletionRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("list deletion requests: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list deletion requests: %w", err)
	}
	return records, nil
}

// ListDue returns requests eligible for claiming, oldest deadline first.
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]storage.DeletionRequestRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	nowMillis := toMillis(now)
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+deletionRequestColumns+`
		   FROM deletion_requests
		  WHERE (status = 'scheduled' AND scheduled_deletion_at <= ?)
		     OR status = 'confirmed'
		     OR (status = 'failed' AND next_retry_at IS NOT NULL AND next_retry_at <= ?)
		  ORDER BY scheduled_deletion_at ASC, id ASC
		  LIMIT ?`,
		nowMillis,
		nowMillis,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due deletion requests: %w", err)
	}
	defer rows.Close()

	var records []storage.DeletionRequestRecord
	for rows.Next() {
		record, err := scanDeletionRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("list due deletion requests: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list due deletion requests: %w", err)
	}
	return records, nil
}

// CASTransition atomically moves one request between statuses. The guarded
// UPDATE is the compare-and-swap: zero affected rows means the expected
// status no longer held.
func (s *Store) CASTransition(ctx context.Context, id string, expected []storage.RequestStatus, next storage.RequestStatus, fields storage.TransitionFields) (storage.DeletionRequestRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.DeletionRequestRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.DeletionRequestRecord{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.DeletionRequestRecord{}, storage.ErrNotFound
	}
	if len(expected) == 0 {
		return storage.DeletionRequestRecord{}, fmt.Errorf("expected statuses are required")
	}

	setClauses := []string{"status = ?", "updated_at = ?"}
	args := []any{string(next), toMillis(s.now())}
	if fields.ScheduledDeletionAt != nil {
		setClauses = append(setClauses, "scheduled_deletion_at = ?")
		args = append(args, toMillis(*fields.ScheduledDeletionAt))
	}
	if fields.ExecutedAt != nil {
		setClauses = append(setClauses, "executed_at = ?")
		args = append(args, toMillis(*fields.ExecutedAt))
	}
	if fields.CancelledBy != nil {
		setClauses = append(setClauses, "cancelled_by = ?")
		args = append(args, *fields.CancelledBy)
	}
	if fields.CancelledAt != nil {
		setClauses = append(setClauses, "cancelled_at = ?")
		args = append(args, toMillis(*fields.CancelledAt))
	}
	if fields.Outcome != nil {
		setClauses = append(setClauses, "outcome = ?")
		args = append(args, *fields.Outcome)
	}
	if fields.AttemptCount != nil {
		setClauses = append(setClauses, "attempt_count = ?")
		args = append(args, *fields.AttemptCount)
	}
	if fields.LastError != nil {
		setClauses = append(setClauses, "last_error = ?")
		args = append(args, *fields.LastError)
	}
	if fields.NextRetryAt != nil {
		setClauses = append(setClauses, "next_retry_at = ?")
		args = append(args, toMillis(*fields.NextRetryAt))
	}
	if fields.ConfirmationToken != nil {
		setClauses = append(setClauses, "confirmation_token = ?")
		args = append(args, *fields.ConfirmationToken)
	}

	placeholders := make([]string, len(expected))
	args = append(args, id)
	for i, status := range expected {
		placeholders[i] = "?"
		args = append(args, string(status))
	}
	query := fmt.Sprintf(
		`UPDATE deletion_requests SET %s WHERE id = ? AND status IN (%s)`,
		strings.Join(setClauses, ", "),
		strings.Join(placeholders, ", "),
	)

	result, err := s.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		// Re-entering the active set (a failed request reclaimed for retry)
		// collides with the partial unique index when a newer request holds
		// the target. That loss is a conflict, not a storage failure.
		if isUniqueConstraintError(err) {
			return storage.DeletionRequestRecord{}, storage.ErrConflict
		}
		return storage.DeletionRequestRecord{}, fmt.Errorf("transition deletion request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.DeletionRequestRecord{}, fmt.Errorf("transition deletion request: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetRequest(ctx, id); errors.Is(getErr, storage.ErrNotFound) {
			return storage.DeletionRequestRecord{}, storage.ErrNotFound
		}
		return storage.DeletionRequestRecord{}, storage.ErrConflict
	}
	return s.GetRequest(ctx, id)
}

var _ storage.RequestStore = (*Store)(nil)
