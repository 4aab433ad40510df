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

// RecordActivity upserts the last-active time and resets escalation state.
func (s *Store) RecordActivity(ctx context.Context, accountID string, lastActiveAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return fmt.Errorf("account id is required")
	}
	at := toMillis(lastActiveAt)
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO account_inactivity (account_id, last_active_at, current_tier, month_before_sent, seven_day_sent, final_sent, updated_at)
		 VALUES (?, ?, 'none', NULL, NULL, NULL, ?)
		 ON CONFLICT (account_id) DO UPDATE SET
		   last_active_at = excluded.last_active_at,
		   current_tier = 'none',
		   month_before_sent = NULL,
		   seven_day_sent = NULL,
		   final_sent = NULL,
		   updated_at = excluded.updated_at`,
		accountID,
		at,
		at,
	)
	if err != nil {
		return fmt.Errorf("record account activity: %w", err)
	}
	return nil
}

func scanInactivity(row rowScanner) (storage.InactivityRecord, error) {
	var record storage.InactivityRecord
	var lastActiveAt, updatedAt int64
	var monthBefore, sevenDay, final sql.NullInt64
	err := row.Scan(
		&record.AccountID,
		&lastActiveAt,
		&record.CurrentTier,
		&monthBefore,
		&sevenDay,
		&final,
		&updatedAt,
	)
	if err != nil {
		return storage.InactivityRecord{}, err
	}
	record.LastActiveAt = fromMillis(lastActiveAt)
	record.MonthBeforeSent = fromMillisPtr(monthBefore)
	record.SevenDaySent = fromMillisPtr(sevenDay)
	record.FinalSent = fromMillisPtr(final)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// GetInactivity returns one account's escalation state.
func (s *Store) GetInactivity(ctx context.Context, accountID string) (storage.InactivityRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.InactivityRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.InactivityRecord{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT account_id, last_active_at, current_tier, month_before_sent, seven_day_sent, final_sent, updated_at
		   FROM account_inactivity
		  WHERE account_id = ?`,
		strings.TrimSpace(accountID),
	)
	record, err := scanInactivity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.InactivityRecord{}, storage.ErrNotFound
		}
		return storage.InactivityRecord{}, fmt.Errorf("get account inactivity: %w", err)
	}
	return record, nil
}

// ListInactiveBefore lists accounts idle since before cutoff whose
// escalation has not yet scheduled deletion, oldest first.
func (s *Store) ListInactiveBefore(ctx context.Context, cutoff time.Time, limit int) ([]storage.InactivityRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT account_id, last_active_at, current_tier, month_before_sent, seven_day_sent, final_sent, updated_at
		   FROM account_inactivity
		  WHERE last_active_at <= ? AND current_tier <> 'scheduled_deletion'
		  ORDER BY last_active_at ASC, account_id ASC
		  LIMIT ?`,
		toMillis(cutoff),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list inactive accounts: %w", err)
	}
	defer rows.Close()

	var records []storage.InactivityRecord
	for rows.Next() {
		record, err := scanInactivity(rows)
		if err != nil {
			return nil, fmt.Errorf("list inactive accounts: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list inactive accounts: %w", err)
	}
	return records, nil
}

// AdvanceWarningTier stamps one tier's sent-at mark and moves the current
// tier forward. The IS NULL guard makes repeated sweeps idempotent.
func (s *Store) AdvanceWarningTier(ctx context.Context, accountID string, tier storage.WarningTier, sentAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	var column string
	switch tier {
	case storage.TierMonthBefore:
		column = "month_before_sent"
	case storage.TierSevenDay:
		column = "seven_day_sent"
	case storage.TierFinal:
		column = "final_sent"
	default:
		return fmt.Errorf("tier %q has no sent-at column", tier)
	}
	at := toMillis(sentAt)
	result, err := s.sqlDB.ExecContext(
		ctx,
		fmt.Sprintf(
			`UPDATE account_inactivity
			    SET %s = ?, current_tier = ?, updated_at = ?
			  WHERE account_id = ? AND %s IS NULL`,
			column, column,
		),
		at,
		string(tier),
		at,
		strings.TrimSpace(accountID),
	)
	if err != nil {
		return fmt.Errorf("advance warning tier: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance warning tier: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetInactivity(ctx, accountID); errors.Is(getErr, storage.ErrNotFound) {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}
	return nil
}

// SetTier moves the current tier without stamping a warning.
func (s *Store) SetTier(ctx context.Context, accountID string, tier storage.WarningTier, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE account_inactivity SET current_tier = ?, updated_at = ? WHERE account_id = ?`,
		string(tier),
		toMillis(at),
		strings.TrimSpace(accountID),
	)
	if err != nil {
		return fmt.Errorf("set inactivity tier: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set inactivity tier: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

var _ storage.InactivityStore = (*Store)(nil)
