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

const consentColumns = `id, library_id, adult_user_id, status, method, verification_token, created_at, expires_at, verified_at`

func scanConsent(row rowScanner) (storage.ConsentRecord, error) {
	var record storage.ConsentRecord
	var createdAt, expiresAt int64
	var verifiedAt sql.NullInt64
	err := row.Scan(
		&record.ID,
		&record.LibraryID,
		&record.AdultUserID,
		&record.Status,
		&record.Method,
		&record.VerificationToken,
		&createdAt,
		&expiresAt,
		&verifiedAt,
	)
	if err != nil {
		return storage.ConsentRecord{}, err
	}
	record.CreatedAt = fromMillis(createdAt)
	record.ExpiresAt = fromMillis(expiresAt)
	record.VerifiedAt = fromMillisPtr(verifiedAt)
	return record, nil
}

// PutConsent inserts one consent record. The partial unique index over
// pending rows turns concurrent requests for the same pair into
// ErrConflict.
func (s *Store) PutConsent(ctx context.Context, record storage.ConsentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO consent_records (`+consentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.LibraryID,
		record.AdultUserID,
		string(record.Status),
		record.Method,
		record.VerificationToken,
		toMillis(record.CreatedAt),
		toMillis(record.ExpiresAt),
		toMillisPtr(record.VerifiedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("put consent record: %w", err)
	}
	return nil
}

// GetConsentByToken returns one consent record by verification token.
func (s *Store) GetConsentByToken(ctx context.Context, token string) (storage.ConsentRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ConsentRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ConsentRecord{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+consentColumns+` FROM consent_records WHERE verification_token = ?`,
		strings.TrimSpace(token),
	)
	record, err := scanConsent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ConsentRecord{}, storage.ErrNotFound
		}
		return storage.ConsentRecord{}, fmt.Errorf("get consent record: %w", err)
	}
	return record, nil
}

// GetPendingConsent returns the pending record for a library/guardian pair.
func (s *Store) GetPendingConsent(ctx context.Context, libraryID string, adultUserID string) (storage.ConsentRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ConsentRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ConsentRecord{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+consentColumns+`
		   FROM consent_records
		  WHERE library_id = ? AND adult_user_id = ? AND status = 'pending'`,
		strings.TrimSpace(libraryID),
		strings.TrimSpace(adultUserID),
	)
	record, err := scanConsent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ConsentRecord{}, storage.ErrNotFound
		}
		return storage.ConsentRecord{}, fmt.Errorf("get pending consent: %w", err)
	}
	return record, nil
}

// TransitionConsent moves one record between statuses with a guarded
// UPDATE.
func (s *Store) TransitionConsent(ctx context.Context, id string, expected storage.ConsentStatus, next storage.ConsentStatus, verifiedAt *time.Time) (storage.ConsentRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ConsentRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ConsentRecord{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE consent_records
		    SET status = ?, verified_at = COALESCE(?, verified_at)
		  WHERE id = ? AND status = ?`,
		string(next),
		toMillisPtr(verifiedAt),
		id,
		string(expected),
	)
	if err != nil {
		return storage.ConsentRecord{}, fmt.Errorf("transition consent record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.ConsentRecord{}, fmt.Errorf("transition consent record: %w", err)
	}
	if affected == 0 {
		row := s.sqlDB.QueryRowContext(ctx, `SELECT `+consentColumns+` FROM consent_records WHERE id = ?`, id)
		if _, scanErr := scanConsent(row); errors.Is(scanErr, sql.ErrNoRows) {
			return storage.ConsentRecord{}, storage.ErrNotFound
		}
		return storage.ConsentRecord{}, storage.ErrConflict
	}

	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+consentColumns+` FROM consent_records WHERE id = ?`, id)
	record, err := scanConsent(row)
	if err != nil {
		return storage.ConsentRecord{}, fmt.Errorf("load consent record: %w", err)
	}
	return record, nil
}

var _ storage.ConsentStore = (*Store)(nil)
