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

// GetAccount returns one account's lifecycle state.
func (s *Store) GetAccount(ctx context.Context, id string) (storage.AccountRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.AccountRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.AccountRecord{}, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, display_name, status, created_at, hibernated_at, deleted_at
		   FROM accounts
		  WHERE id = ?`,
		strings.TrimSpace(id),
	)
	var record storage.AccountRecord
	var createdAt int64
	var hibernatedAt, deletedAt sql.NullInt64
	if err := row.Scan(&record.ID, &record.DisplayName, &record.Status, &createdAt, &hibernatedAt, &deletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.AccountRecord{}, storage.ErrNotFound
		}
		return storage.AccountRecord{}, fmt.Errorf("get account: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	record.HibernatedAt = fromMillisPtr(hibernatedAt)
	record.DeletedAt = fromMillisPtr(deletedAt)
	return record, nil
}

// PutAccount upserts one account row. Used by seeding and tests.
func (s *Store) PutAccount(ctx context.Context, record storage.AccountRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO accounts (id, display_name, status, created_at, hibernated_at, deleted_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   display_name = excluded.display_name,
		   status = excluded.status,
		   hibernated_at = excluded.hibernated_at,
		   deleted_at = excluded.deleted_at`,
		record.ID,
		record.DisplayName,
		string(record.Status),
		toMillis(record.CreatedAt),
		toMillisPtr(record.HibernatedAt),
		toMillisPtr(record.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("put account: %w", err)
	}
	return nil
}

// ListLibraryMemberships returns one account's memberships with ownership
// and sharing flags.
func (s *Store) ListLibraryMemberships(ctx context.Context, accountID string) ([]storage.LibraryRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT m.library_id, m.id, m.owner,
		        EXISTS (
		          SELECT 1 FROM library_members other
		           WHERE other.library_id = m.library_id AND other.account_id <> m.account_id
		        )
		   FROM library_members m
		  WHERE m.account_id = ?
		  ORDER BY m.library_id ASC`,
		strings.TrimSpace(accountID),
	)
	if err != nil {
		return nil, fmt.Errorf("list library memberships: %w", err)
	}
	defer rows.Close()

	var refs []storage.LibraryRef
	for rows.Next() {
		var ref storage.LibraryRef
		var owner, shared int
		if err := rows.Scan(&ref.LibraryID, &ref.MembershipID, &owner, &shared); err != nil {
			return nil, fmt.Errorf("list library memberships: %w", err)
		}
		ref.Owner = owner != 0
		ref.Shared = shared != 0
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list library memberships: %w", err)
	}
	return refs, nil
}

func (s *Store) listIDs(ctx context.Context, query string, arg string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, strings.TrimSpace(arg))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListOwnedStories returns story IDs owned by one account.
func (s *Store) ListOwnedStories(ctx context.Context, accountID string) ([]string, error) {
	ids, err := s.listIDs(ctx, `SELECT id FROM stories WHERE owner_account_id = ? ORDER BY id ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list owned stories: %w", err)
	}
	return ids, nil
}

// ListOwnedCharacters returns character IDs owned by one account.
func (s *Store) ListOwnedCharacters(ctx context.Context, accountID string) ([]string, error) {
	ids, err := s.listIDs(ctx, `SELECT id FROM characters WHERE owner_account_id = ? ORDER BY id ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list owned characters: %w", err)
	}
	return ids, nil
}

// ListConversationSessions returns session IDs owned by one account.
func (s *Store) ListConversationSessions(ctx context.Context, accountID string) ([]string, error) {
	ids, err := s.listIDs(ctx, `SELECT id FROM conversation_sessions WHERE account_id = ? ORDER BY id ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list conversation sessions: %w", err)
	}
	return ids, nil
}

// ListConversationAssets returns asset IDs within one session.
func (s *Store) ListConversationAssets(ctx context.Context, sessionID string) ([]string, error) {
	ids, err := s.listIDs(ctx, `SELECT id FROM conversation_assets WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list conversation assets: %w", err)
	}
	return ids, nil
}

// ListWebhookRegistrations returns webhook IDs owned by one account.
func (s *Store) ListWebhookRegistrations(ctx context.Context, accountID string) ([]string, error) {
	ids, err := s.listIDs(ctx, `SELECT id FROM webhook_registrations WHERE account_id = ? ORDER BY id ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list webhook registrations: %w", err)
	}
	return ids, nil
}

// ListPushTokens returns push token IDs owned by one account.
func (s *Store) ListPushTokens(ctx context.Context, accountID string) ([]string, error) {
	ids, err := s.listIDs(ctx, `SELECT id FROM push_tokens WHERE account_id = ? ORDER BY id ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list push tokens: %w", err)
	}
	return ids, nil
}

// ListPendingTransfers returns pending transfer IDs touching one account on
// either side.
func (s *Store) ListPendingTransfers(ctx context.Context, accountID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	accountID = strings.TrimSpace(accountID)
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id FROM transfers
		  WHERE status = 'pending' AND (from_account_id = ? OR to_account_id = ?)
		  ORDER BY id ASC`,
		accountID,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending transfers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list pending transfers: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending transfers: %w", err)
	}
	return ids, nil
}

// ListStoriesWithCharacter returns story IDs referencing one character.
func (s *Store) ListStoriesWithCharacter(ctx context.Context, characterID string) ([]string, error) {
	ids, err := s.listIDs(ctx, `SELECT story_id FROM story_characters WHERE character_id = ? ORDER BY story_id ASC`, characterID)
	if err != nil {
		return nil, fmt.Errorf("list stories with character: %w", err)
	}
	return ids, nil
}

func (s *Store) rowExists(ctx context.Context, query string, arg string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	var found int
	err := s.sqlDB.QueryRowContext(ctx, query, strings.TrimSpace(arg)).Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// StoryExists reports whether one story row exists.
func (s *Store) StoryExists(ctx context.Context, storyID string) (bool, error) {
	exists, err := s.rowExists(ctx, `SELECT 1 FROM stories WHERE id = ?`, storyID)
	if err != nil {
		return false, fmt.Errorf("lookup story: %w", err)
	}
	return exists, nil
}

// CharacterExists reports whether one character row exists.
func (s *Store) CharacterExists(ctx context.Context, characterID string) (bool, error) {
	exists, err := s.rowExists(ctx, `SELECT 1 FROM characters WHERE id = ?`, characterID)
	if err != nil {
		return false, fmt.Errorf("lookup character: %w", err)
	}
	return exists, nil
}

// MembershipExists reports whether one library membership row exists.
func (s *Store) MembershipExists(ctx context.Context, membershipID string) (bool, error) {
	exists, err := s.rowExists(ctx, `SELECT 1 FROM library_members WHERE id = ?`, membershipID)
	if err != nil {
		return false, fmt.Errorf("lookup library membership: %w", err)
	}
	return exists, nil
}

// ConversationAssetExists reports whether one conversation asset row exists.
func (s *Store) ConversationAssetExists(ctx context.Context, assetID string) (bool, error) {
	exists, err := s.rowExists(ctx, `SELECT 1 FROM conversation_assets WHERE id = ?`, assetID)
	if err != nil {
		return false, fmt.Errorf("lookup conversation asset: %w", err)
	}
	return exists, nil
}

// exec runs one idempotent mutation: missing rows count as success so
// re-resolved plans can replay.
func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	_, err := s.sqlDB.ExecContext(ctx, query, args...)
	return err
}

// HibernateAccount reversibly suspends one account.
func (s *Store) HibernateAccount(ctx context.Context, id string, at time.Time) error {
	err := s.exec(ctx,
		`UPDATE accounts SET status = 'hibernated', hibernated_at = ? WHERE id = ? AND status = 'active'`,
		toMillis(at), strings.TrimSpace(id),
	)
	if err != nil {
		return fmt.Errorf("hibernate account: %w", err)
	}
	return nil
}

// DeleteAccount irreversibly tombstones one account row. The row survives
// as an audit anchor; all owned content is removed by the cascade.
func (s *Store) DeleteAccount(ctx context.Context, id string, at time.Time) error {
	err := s.exec(ctx,
		`UPDATE accounts SET status = 'deleted', display_name = '', deleted_at = ? WHERE id = ? AND status <> 'deleted'`,
		toMillis(at), strings.TrimSpace(id),
	)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

// DeleteLibrary removes one library and all of its membership grants.
func (s *Store) DeleteLibrary(ctx context.Context, libraryID string) error {
	libraryID = strings.TrimSpace(libraryID)
	if err := s.exec(ctx, `DELETE FROM library_members WHERE library_id = ?`, libraryID); err != nil {
		return fmt.Errorf("delete library members: %w", err)
	}
	if err := s.exec(ctx, `DELETE FROM libraries WHERE id = ?`, libraryID); err != nil {
		return fmt.Errorf("delete library: %w", err)
	}
	return nil
}

// RemoveLibraryMember removes one membership grant.
func (s *Store) RemoveLibraryMember(ctx context.Context, membershipID string) error {
	if err := s.exec(ctx, `DELETE FROM library_members WHERE id = ?`, strings.TrimSpace(membershipID)); err != nil {
		return fmt.Errorf("remove library member: %w", err)
	}
	return nil
}

// DetachStoryLinks severs collection, favorite, and tag references to one
// story without touching the story row.
func (s *Store) DetachStoryLinks(ctx context.Context, storyID string) error {
	storyID = strings.TrimSpace(storyID)
	if err := s.exec(ctx, `DELETE FROM collection_stories WHERE story_id = ?`, storyID); err != nil {
		return fmt.Errorf("detach collection links: %w", err)
	}
	if err := s.exec(ctx, `DELETE FROM favorites WHERE story_id = ?`, storyID); err != nil {
		return fmt.Errorf("detach favorites: %w", err)
	}
	if err := s.exec(ctx, `DELETE FROM story_tags WHERE story_id = ?`, storyID); err != nil {
		return fmt.Errorf("detach story tags: %w", err)
	}
	return nil
}

// DeleteStory removes one story and its character references.
func (s *Store) DeleteStory(ctx context.Context, storyID string) error {
	storyID = strings.TrimSpace(storyID)
	if err := s.exec(ctx, `DELETE FROM story_characters WHERE story_id = ?`, storyID); err != nil {
		return fmt.Errorf("delete story characters: %w", err)
	}
	if err := s.exec(ctx, `DELETE FROM stories WHERE id = ?`, storyID); err != nil {
		return fmt.Errorf("delete story: %w", err)
	}
	return nil
}

// RemoveCharacterFromStory severs one character reference inside one story.
func (s *Store) RemoveCharacterFromStory(ctx context.Context, storyID string, characterID string) error {
	err := s.exec(ctx,
		`DELETE FROM story_characters WHERE story_id = ? AND character_id = ?`,
		strings.TrimSpace(storyID), strings.TrimSpace(characterID),
	)
	if err != nil {
		return fmt.Errorf("remove character from story: %w", err)
	}
	return nil
}

// DeleteCharacter removes one character row.
func (s *Store) DeleteCharacter(ctx context.Context, characterID string) error {
	if err := s.exec(ctx, `DELETE FROM characters WHERE id = ?`, strings.TrimSpace(characterID)); err != nil {
		return fmt.Errorf("delete character: %w", err)
	}
	return nil
}

// DeleteConversationSession removes one session row.
func (s *Store) DeleteConversationSession(ctx context.Context, sessionID string) error {
	if err := s.exec(ctx, `DELETE FROM conversation_sessions WHERE id = ?`, strings.TrimSpace(sessionID)); err != nil {
		return fmt.Errorf("delete conversation session: %w", err)
	}
	return nil
}

// DeleteConversationAsset removes one asset row.
func (s *Store) DeleteConversationAsset(ctx context.Context, assetID string) error {
	if err := s.exec(ctx, `DELETE FROM conversation_assets WHERE id = ?`, strings.TrimSpace(assetID)); err != nil {
		return fmt.Errorf("delete conversation asset: %w", err)
	}
	return nil
}

// DeleteWebhookRegistration removes one webhook row.
func (s *Store) DeleteWebhookRegistration(ctx context.Context, registrationID string) error {
	if err := s.exec(ctx, `DELETE FROM webhook_registrations WHERE id = ?`, strings.TrimSpace(registrationID)); err != nil {
		return fmt.Errorf("delete webhook registration: %w", err)
	}
	return nil
}

// DeletePushToken removes one push token row.
func (s *Store) DeletePushToken(ctx context.Context, tokenID string) error {
	if err := s.exec(ctx, `DELETE FROM push_tokens WHERE id = ?`, strings.TrimSpace(tokenID)); err != nil {
		return fmt.Errorf("delete push token: %w", err)
	}
	return nil
}

// RejectTransfer finalizes one pending transfer as rejected.
func (s *Store) RejectTransfer(ctx context.Context, transferID string) error {
	err := s.exec(ctx,
		`UPDATE transfers SET status = 'rejected' WHERE id = ? AND status = 'pending'`,
		strings.TrimSpace(transferID),
	)
	if err != nil {
		return fmt.Errorf("reject transfer: %w", err)
	}
	return nil
}

// ScheduleAssetCleanup queues best-effort generated-asset removal for one
// story.
func (s *Store) ScheduleAssetCleanup(ctx context.Context, storyID string, at time.Time) error {
	err := s.exec(ctx,
		`INSERT INTO asset_cleanup_queue (story_id, requested_at)
		 VALUES (?, ?)
		 ON CONFLICT (story_id) DO UPDATE SET requested_at = excluded.requested_at`,
		strings.TrimSpace(storyID),
		toMillis(at),
	)
	if err != nil {
		return fmt.Errorf("schedule asset cleanup: %w", err)
	}
	return nil
}

var _ storage.EntityStore = (*Store)(nil)
