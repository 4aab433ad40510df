package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fableforge/fableforge/internal/services/lifecycle/storage"
)

var errIDGeneratorExhausted = errors.New("id generator exhausted")

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func sequentialIDGenerator(ids ...string) func() (string, error) {
	queue := append([]string(nil), ids...)
	index := 0
	var mu sync.Mutex
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if index >= len(queue) {
			return "", errIDGeneratorExhausted
		}
		value := queue[index]
		index++
		return value, nil
	}
}

type notifyEvent struct {
	kind      NotificationKind
	recipient string
	payload   map[string]string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifyEvent
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, kind NotificationKind, recipientID string, payload map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	copied := make(map[string]string, len(payload))
	for k, v := range payload {
		copied[k] = v
	}
	n.events = append(n.events, notifyEvent{kind: kind, recipient: recipientID, payload: copied})
	return nil
}

func (n *recordingNotifier) kinds() []NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]NotificationKind, 0, len(n.events))
	for _, event := range n.events {
		kinds = append(kinds, event.kind)
	}
	return kinds
}

type fakeMembership struct {
	libraryID string
	accountID string
	owner     bool
}

type fakeTransfer struct {
	fromAccountID string
	toAccountID   string
	status        string
}

// fakeStore is an in-memory implementation of every lifecycle store
// interface. Entity hooks append to ops so tests can assert plan execution
// order, and failures injects per-operation transient errors.
type fakeStore struct {
	mu sync.Mutex

	requests   map[string]storage.DeletionRequestRecord
	tokens     map[string]storage.ConfirmationTokenRecord
	inactivity map[string]storage.InactivityRecord
	consents   map[string]storage.ConsentRecord

	accounts        map[string]storage.AccountRecord
	libraries       map[string]bool
	memberships     map[string]fakeMembership
	stories         map[string]string
	characters      map[string]string
	storyCharacters map[string]map[string]bool
	sessions        map[string]string
	assets          map[string]string
	webhooks        map[string]string
	pushTokens      map[string]string
	transfers       map[string]fakeTransfer
	assetCleanups   map[string]time.Time

	ops      []string
	failures map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		requests:        make(map[string]storage.DeletionRequestRecord),
		tokens:          make(map[string]storage.ConfirmationTokenRecord),
		inactivity:      make(map[string]storage.InactivityRecord),
		consents:        make(map[string]storage.ConsentRecord),
		accounts:        make(map[string]storage.AccountRecord),
		libraries:       make(map[string]bool),
		memberships:     make(map[string]fakeMembership),
		stories:         make(map[string]string),
		characters:      make(map[string]string),
		storyCharacters: make(map[string]map[string]bool),
		sessions:        make(map[string]string),
		assets:          make(map[string]string),
		webhooks:        make(map[string]string),
		pushTokens:      make(map[string]string),
		transfers:       make(map[string]fakeTransfer),
		assetCleanups:   make(map[string]time.Time),
		failures:        make(map[string]int),
	}
}

// failOnce schedules count transient failures for one op key, such as
// "DeleteStory:story-1".
func (f *fakeStore) failOnce(op string, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = count
}

func (f *fakeStore) maybeFail(op string) error {
	if remaining, ok := f.failures[op]; ok && remaining > 0 {
		f.failures[op] = remaining - 1
		return fmt.Errorf("injected failure for %s", op)
	}
	return nil
}

func (f *fakeStore) record(op string) {
	f.ops = append(f.ops, op)
}

func (f *fakeStore) operations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

// --- RequestStore ---

func (f *fakeStore) CreateRequest(_ context.Context, record storage.DeletionRequestRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.requests {
		if existing.TargetType == record.TargetType && existing.TargetID == record.TargetID && !existing.Status.Terminal() {
			return storage.ErrConflict
		}
	}
	f.requests[record.ID] = record
	return nil
}

func (f *fakeStore) GetRequest(_ context.Context, id string) (storage.DeletionRequestRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.requests[strings.TrimSpace(id)]
	if !ok {
		return storage.DeletionRequestRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (f *fakeStore) GetActiveRequestByTarget(_ context.Context, targetType storage.TargetType, targetID string) (storage.DeletionRequestRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, record := range f.requests {
		if record.TargetType == targetType && record.TargetID == targetID && !record.Status.Terminal() {
			return record, nil
		}
	}
	return storage.DeletionRequestRecord{}, storage.ErrNotFound
}

func (f *fakeStore) ListRequestsByTarget(_ context.Context, targetType storage.TargetType, targetID string) ([]storage.DeletionRequestRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var records []storage.DeletionRequestRecord
	for _, record := range f.requests {
		if record.TargetType == targetType && record.TargetID == targetID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].CreatedAt.After(records[j].CreatedAt) })
	return records, nil
}

func (f *fakeStore) ListDue(_ context.Context, now time.Time, limit int) ([]storage.DeletionRequestRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []storage.DeletionRequestRecord
	for _, record := range f.requests {
		switch record.Status {
		case storage.StatusScheduled:
			if !record.ScheduledDeletionAt.After(now) {
				due = append(due, record)
			}
		case storage.StatusConfirmed:
			due = append(due, record)
		case storage.StatusFailed:
			if record.NextRetryAt != nil && !record.NextRetryAt.After(now) {
				due = append(due, record)
			}
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledDeletionAt.Before(due[j].ScheduledDeletionAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (f *fakeStore) CASTransition(_ context.Context, id string, expected []storage.RequestStatus, next storage.RequestStatus, fields storage.TransitionFields) (storage.DeletionRequestRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.requests[strings.TrimSpace(id)]
	if !ok {
		return storage.DeletionRequestRecord{}, storage.ErrNotFound
	}
	matched := false
	for _, status := range expected {
		if record.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return storage.DeletionRequestRecord{}, storage.ErrConflict
	}
	if !next.Terminal() {
		// Mirrors the store's partial unique index: a request cannot
		// re-enter the active set while a newer request holds the target.
		for otherID, other := range f.requests {
			if otherID != record.ID && other.TargetType == record.TargetType && other.TargetID == record.TargetID && !other.Status.Terminal() {
				return storage.DeletionRequestRecord{}, storage.ErrConflict
			}
		}
	}
	record.Status = next
	if fields.ScheduledDeletionAt != nil {
		record.ScheduledDeletionAt = *fields.ScheduledDeletionAt
	}
	if fields.ExecutedAt != nil {
		record.ExecutedAt = fields.ExecutedAt
	}
	if fields.CancelledBy != nil {
		record.CancelledBy = *fields.CancelledBy
	}
	if fields.CancelledAt != nil {
		record.CancelledAt = fields.CancelledAt
	}
	if fields.Outcome != nil {
		record.Outcome = *fields.Outcome
	}
	if fields.AttemptCount != nil {
		record.AttemptCount = *fields.AttemptCount
	}
	if fields.LastError != nil {
		record.LastError = *fields.LastError
	}
	if fields.NextRetryAt != nil {
		record.NextRetryAt = fields.NextRetryAt
	}
	if fields.ConfirmationToken != nil {
		record.ConfirmationToken = *fields.ConfirmationToken
	}
	f.requests[record.ID] = record
	return record, nil
}

// --- TokenStore ---

func (f *fakeStore) PutConfirmationToken(_ context.Context, record storage.ConfirmationTokenRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.tokens[record.Token]; exists {
		return storage.ErrConflict
	}
	f.tokens[record.Token] = record
	return nil
}

func (f *fakeStore) GetConfirmationToken(_ context.Context, token string) (storage.ConfirmationTokenRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.tokens[strings.TrimSpace(token)]
	if !ok {
		return storage.ConfirmationTokenRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (f *fakeStore) MarkConfirmationTokenUsed(_ context.Context, token string, usedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.tokens[strings.TrimSpace(token)]
	if !ok {
		return storage.ErrNotFound
	}
	if record.UsedAt != nil {
		return storage.ErrConflict
	}
	record.UsedAt = &usedAt
	f.tokens[record.Token] = record
	return nil
}

// --- InactivityStore ---

func (f *fakeStore) RecordActivity(_ context.Context, accountID string, lastActiveAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inactivity[accountID] = storage.InactivityRecord{
		AccountID:    accountID,
		LastActiveAt: lastActiveAt,
		CurrentTier:  storage.TierNone,
		UpdatedAt:    lastActiveAt,
	}
	return nil
}

func (f *fakeStore) GetInactivity(_ context.Context, accountID string) (storage.InactivityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.inactivity[accountID]
	if !ok {
		return storage.InactivityRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (f *fakeStore) ListInactiveBefore(_ context.Context, cutoff time.Time, limit int) ([]storage.InactivityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var records []storage.InactivityRecord
	for _, record := range f.inactivity {
		if !record.LastActiveAt.After(cutoff) && record.CurrentTier != storage.TierScheduled {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].LastActiveAt.Before(records[j].LastActiveAt) })
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (f *fakeStore) AdvanceWarningTier(_ context.Context, accountID string, tier storage.WarningTier, sentAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.inactivity[accountID]
	if !ok {
		return storage.ErrNotFound
	}
	var slot **time.Time
	switch tier {
	case storage.TierMonthBefore:
		slot = &record.MonthBeforeSent
	case storage.TierSevenDay:
		slot = &record.SevenDaySent
	case storage.TierFinal:
		slot = &record.FinalSent
	default:
		return fmt.Errorf("tier %q has no sent-at slot", tier)
	}
	if *slot != nil {
		return storage.ErrConflict
	}
	stamp := sentAt
	*slot = &stamp
	record.CurrentTier = tier
	record.UpdatedAt = sentAt
	f.inactivity[accountID] = record
	return nil
}

func (f *fakeStore) SetTier(_ context.Context, accountID string, tier storage.WarningTier, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.inactivity[accountID]
	if !ok {
		return storage.ErrNotFound
	}
	record.CurrentTier = tier
	record.UpdatedAt = at
	f.inactivity[accountID] = record
	return nil
}

// --- ConsentStore ---

func (f *fakeStore) PutConsent(_ context.Context, record storage.ConsentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.consents {
		if existing.LibraryID == record.LibraryID && existing.AdultUserID == record.AdultUserID && existing.Status == storage.ConsentPending && record.Status == storage.ConsentPending {
			return storage.ErrConflict
		}
	}
	f.consents[record.ID] = record
	return nil
}

func (f *fakeStore) GetConsentByToken(_ context.Context, token string) (storage.ConsentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, record := range f.consents {
		if record.VerificationToken == token {
			return record, nil
		}
	}
	return storage.ConsentRecord{}, storage.ErrNotFound
}

func (f *fakeStore) GetPendingConsent(_ context.Context, libraryID string, adultUserID string) (storage.ConsentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, record := range f.consents {
		if record.LibraryID == libraryID && record.AdultUserID == adultUserID && record.Status == storage.ConsentPending {
			return record, nil
		}
	}
	return storage.ConsentRecord{}, storage.ErrNotFound
}

func (f *fakeStore) TransitionConsent(_ context.Context, id string, expected storage.ConsentStatus, next storage.ConsentStatus, verifiedAt *time.Time) (storage.ConsentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.consents[id]
	if !ok {
		return storage.ConsentRecord{}, storage.ErrNotFound
	}
	if record.Status != expected {
		return storage.ConsentRecord{}, storage.ErrConflict
	}
	record.Status = next
	if verifiedAt != nil {
		record.VerifiedAt = verifiedAt
	}
	f.consents[id] = record
	return record, nil
}

// --- EntityStore reads ---

func (f *fakeStore) GetAccount(_ context.Context, id string) (storage.AccountRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.accounts[strings.TrimSpace(id)]
	if !ok {
		return storage.AccountRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (f *fakeStore) ListLibraryMemberships(_ context.Context, accountID string) ([]storage.LibraryRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var refs []storage.LibraryRef
	for id, membership := range f.memberships {
		if membership.accountID != accountID {
			continue
		}
		shared := false
		for otherID, other := range f.memberships {
			if otherID != id && other.libraryID == membership.libraryID && other.accountID != accountID {
				shared = true
				break
			}
		}
		refs = append(refs, storage.LibraryRef{
			LibraryID:    membership.libraryID,
			MembershipID: id,
			Owner:        membership.owner,
			Shared:       shared,
		})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].LibraryID < refs[j].LibraryID })
	return refs, nil
}

func (f *fakeStore) listByOwner(owned map[string]string, ownerID string) []string {
	var ids []string
	for id, owner := range owned {
		if owner == ownerID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (f *fakeStore) ListOwnedStories(_ context.Context, accountID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listByOwner(f.stories, accountID), nil
}

func (f *fakeStore) ListOwnedCharacters(_ context.Context, accountID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listByOwner(f.characters, accountID), nil
}

func (f *fakeStore) ListConversationSessions(_ context.Context, accountID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listByOwner(f.sessions, accountID), nil
}

func (f *fakeStore) ListConversationAssets(_ context.Context, sessionID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listByOwner(f.assets, sessionID), nil
}

func (f *fakeStore) ListWebhookRegistrations(_ context.Context, accountID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listByOwner(f.webhooks, accountID), nil
}

func (f *fakeStore) ListPushTokens(_ context.Context, accountID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listByOwner(f.pushTokens, accountID), nil
}

func (f *fakeStore) ListPendingTransfers(_ context.Context, accountID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, transfer := range f.transfers {
		if transfer.status == "pending" && (transfer.fromAccountID == accountID || transfer.toAccountID == accountID) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeStore) ListStoriesWithCharacter(_ context.Context, characterID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for storyID, chars := range f.storyCharacters {
		if chars[characterID] {
			ids = append(ids, storyID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeStore) StoryExists(_ context.Context, storyID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.stories[storyID]
	return ok, nil
}

func (f *fakeStore) CharacterExists(_ context.Context, characterID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.characters[characterID]
	return ok, nil
}

func (f *fakeStore) MembershipExists(_ context.Context, membershipID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.memberships[membershipID]
	return ok, nil
}

func (f *fakeStore) ConversationAssetExists(_ context.Context, assetID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.assets[assetID]
	return ok, nil
}

// --- EntityStore hooks ---

func (f *fakeStore) HibernateAccount(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("HibernateAccount:" + id); err != nil {
		return err
	}
	record, ok := f.accounts[id]
	if ok && record.Status == storage.AccountActive {
		record.Status = storage.AccountHibernated
		record.HibernatedAt = &at
		f.accounts[id] = record
	}
	f.record("hibernate_account:" + id)
	return nil
}

func (f *fakeStore) DeleteAccount(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("DeleteAccount:" + id); err != nil {
		return err
	}
	record, ok := f.accounts[id]
	if ok && record.Status != storage.AccountDeleted {
		record.Status = storage.AccountDeleted
		record.DeletedAt = &at
		f.accounts[id] = record
	}
	f.record("delete_account:" + id)
	return nil
}

func (f *fakeStore) DeleteLibrary(_ context.Context, libraryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("DeleteLibrary:" + libraryID); err != nil {
		return err
	}
	delete(f.libraries, libraryID)
	for id, membership := range f.memberships {
		if membership.libraryID == libraryID {
			delete(f.memberships, id)
		}
	}
	f.record("delete_library:" + libraryID)
	return nil
}

func (f *fakeStore) RemoveLibraryMember(_ context.Context, membershipID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("RemoveLibraryMember:" + membershipID); err != nil {
		return err
	}
	delete(f.memberships, membershipID)
	f.record("remove_member:" + membershipID)
	return nil
}

func (f *fakeStore) DetachStoryLinks(_ context.Context, storyID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("DetachStoryLinks:" + storyID); err != nil {
		return err
	}
	f.record("detach_story_links:" + storyID)
	return nil
}

func (f *fakeStore) DeleteStory(_ context.Context, storyID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("DeleteStory:" + storyID); err != nil {
		return err
	}
	delete(f.stories, storyID)
	delete(f.storyCharacters, storyID)
	f.record("delete_story:" + storyID)
	return nil
}

func (f *fakeStore) RemoveCharacterFromStory(_ context.Context, storyID string, characterID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("RemoveCharacterFromStory:" + storyID); err != nil {
		return err
	}
	if chars, ok := f.storyCharacters[storyID]; ok {
		delete(chars, characterID)
	}
	f.record("remove_story_character:" + storyID + ":" + characterID)
	return nil
}

func (f *fakeStore) DeleteCharacter(_ context.Context, characterID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("DeleteCharacter:" + characterID); err != nil {
		return err
	}
	delete(f.characters, characterID)
	f.record("delete_character:" + characterID)
	return nil
}

func (f *fakeStore) DeleteConversationSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("DeleteConversationSession:" + sessionID); err != nil {
		return err
	}
	delete(f.sessions, sessionID)
	f.record("delete_session:" + sessionID)
	return nil
}

func (f *fakeStore) DeleteConversationAsset(_ context.Context, assetID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("DeleteConversationAsset:" + assetID); err != nil {
		return err
	}
	delete(f.assets, assetID)
	f.record("delete_asset:" + assetID)
	return nil
}

func (f *fakeStore) DeleteWebhookRegistration(_ context.Context, registrationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("DeleteWebhookRegistration:" + registrationID); err != nil {
		return err
	}
	delete(f.webhooks, registrationID)
	f.record("delete_webhook:" + registrationID)
	return nil
}

func (f *fakeStore) DeletePushToken(_ context.Context, tokenID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("DeletePushToken:" + tokenID); err != nil {
		return err
	}
	delete(f.pushTokens, tokenID)
	f.record("delete_push_token:" + tokenID)
	return nil
}

func (f *fakeStore) RejectTransfer(_ context.Context, transferID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("RejectTransfer:" + transferID); err != nil {
		return err
	}
	if transfer, ok := f.transfers[transferID]; ok && transfer.status == "pending" {
		transfer.status = "rejected"
		f.transfers[transferID] = transfer
	}
	f.record("reject_transfer:" + transferID)
	return nil
}

func (f *fakeStore) ScheduleAssetCleanup(_ context.Context, storyID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.maybeFail("ScheduleAssetCleanup:" + storyID); err != nil {
		return err
	}
	f.assetCleanups[storyID] = at
	f.record("schedule_asset_cleanup:" + storyID)
	return nil
}

func (f *fakeStore) addAccount(id string, status storage.AccountStatus, hibernatedAt *time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[id] = storage.AccountRecord{
		ID:           id,
		Status:       status,
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		HibernatedAt: hibernatedAt,
	}
}

var (
	_ storage.RequestStore    = (*fakeStore)(nil)
	_ storage.TokenStore      = (*fakeStore)(nil)
	_ storage.InactivityStore = (*fakeStore)(nil)
	_ storage.ConsentStore    = (*fakeStore)(nil)
	_ storage.EntityStore     = (*fakeStore)(nil)
)
