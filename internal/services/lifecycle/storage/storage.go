// Package storage defines the persistence boundary for the lifecycle
// service: deletion requests, confirmation and consent tokens, inactivity
// tracking, the owned-entity graph, and the queued notification outbox.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a guarded write lost to a concurrent transition
	// or violated a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
)

// TargetType identifies the kind of entity a deletion request targets.
type TargetType string

const (
	// TargetAccount targets a whole user account.
	TargetAccount TargetType = "account"
	// TargetStory targets one story.
	TargetStory TargetType = "story"
	// TargetCharacter targets one character.
	TargetCharacter TargetType = "character"
	// TargetLibraryMember targets one library membership grant.
	TargetLibraryMember TargetType = "library_member"
	// TargetConversationAsset targets one conversation asset.
	TargetConversationAsset TargetType = "conversation_asset"
)

// RequestStatus identifies one deletion request lifecycle state.
type RequestStatus string

const (
	// StatusScheduled means the request waits out its grace period.
	StatusScheduled RequestStatus = "scheduled"
	// StatusConfirmed means the request is eligible for immediate execution.
	StatusConfirmed RequestStatus = "confirmed"
	// StatusCancelled means the request was cancelled before execution.
	StatusCancelled RequestStatus = "cancelled"
	// StatusExecuting means one worker holds the execution claim.
	StatusExecuting RequestStatus = "executing"
	// StatusCompleted means the cascade finished.
	StatusCompleted RequestStatus = "completed"
	// StatusFailed means execution exhausted retries and awaits review.
	StatusFailed RequestStatus = "failed"
)

// Terminal reports whether the status ends the active lifecycle of a
// request. Failed requests are terminal for the single-active-request
// invariant even though the sweep may retry them later.
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// AccountMode selects the terminal branch for account execution.
type AccountMode string

const (
	// AccountModeHibernateFirst hibernates the account unless dormancy
	// already ran out.
	AccountModeHibernateFirst AccountMode = "hibernate_first"
	// AccountModePurge runs the irreversible cascade.
	AccountModePurge AccountMode = "purge"
)

// StoryMode selects how character deletion treats referencing stories.
type StoryMode string

const (
	// StoryModeRetain leaves referencing stories untouched.
	StoryModeRetain StoryMode = "retain"
	// StoryModeDelete cascades deletion to referencing stories.
	StoryModeDelete StoryMode = "delete"
	// StoryModeDetach nulls the character reference in referencing stories.
	StoryModeDetach StoryMode = "detach"
)

// DeletionRequestRecord stores one deletion request row. Rows are
// append-only with respect to terminal status and are never hard-deleted.
type DeletionRequestRecord struct {
	ID                  string
	TargetType          TargetType
	TargetID            string
	RequestedBy         string
	Status              RequestStatus
	Reason              string
	AccountMode         AccountMode
	CharacterStories    StoryMode
	ConfirmationToken   string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ScheduledDeletionAt time.Time
	ExecutedAt          *time.Time
	CancelledBy         string
	CancelledAt         *time.Time
	Outcome             string
	AttemptCount        int
	LastError           string
	NextRetryAt         *time.Time
}

// TransitionFields carries the optional column updates applied together
// with a CAS status transition. Nil pointers leave columns untouched.
type TransitionFields struct {
	ScheduledDeletionAt *time.Time
	ExecutedAt          *time.Time
	CancelledBy         *string
	CancelledAt         *time.Time
	Outcome             *string
	AttemptCount        *int
	LastError           *string
	NextRetryAt         *time.Time
	ConfirmationToken   *string
}

// RequestStore persists deletion request state. CASTransition is the only
// mutation path after creation; it must be atomic with respect to
// concurrent callers.
type RequestStore interface {
	// CreateRequest inserts a new request. It returns ErrConflict when an
	// active (non-terminal) request already exists for the same target.
	CreateRequest(ctx context.Context, record DeletionRequestRecord) error
	GetRequest(ctx context.Context, id string) (DeletionRequestRecord, error)
	// GetActiveRequestByTarget returns the single non-terminal request for
	// a target, or ErrNotFound.
	GetActiveRequestByTarget(ctx context.Context, targetType TargetType, targetID string) (DeletionRequestRecord, error)
	ListRequestsByTarget(ctx context.Context, targetType TargetType, targetID string) ([]DeletionRequestRecord, error)
	// ListDue lists requests eligible for claiming: scheduled requests past
	// their deletion time, confirmed requests, and failed requests past
	// their retry cool-off.
	ListDue(ctx context.Context, now time.Time, limit int) ([]DeletionRequestRecord, error)
	// CASTransition atomically moves a request from one of the expected
	// statuses to next, applying fields in the same write. It returns
	// ErrConflict when the current status is not in expected.
	CASTransition(ctx context.Context, id string, expected []RequestStatus, next RequestStatus, fields TransitionFields) (DeletionRequestRecord, error)
}

// ConfirmationTokenRecord stores one single-use request confirmation token.
type ConfirmationTokenRecord struct {
	Token     string
	RequestID string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// TokenStore persists confirmation tokens. Expiry is checked lazily by the
// caller; the store only guards single use.
type TokenStore interface {
	PutConfirmationToken(ctx context.Context, record ConfirmationTokenRecord) error
	GetConfirmationToken(ctx context.Context, token string) (ConfirmationTokenRecord, error)
	// MarkConfirmationTokenUsed stamps used_at exactly once. It returns
	// ErrConflict when the token was already consumed.
	MarkConfirmationTokenUsed(ctx context.Context, token string, usedAt time.Time) error
}

// WarningTier identifies one inactivity escalation tier.
type WarningTier string

const (
	// TierNone means the account is considered active.
	TierNone WarningTier = "none"
	// TierMonthBefore is the first warning, one month ahead of deletion.
	TierMonthBefore WarningTier = "month_before"
	// TierSevenDay is the second warning, seven days ahead.
	TierSevenDay WarningTier = "seven_day"
	// TierFinal is the last warning before scheduling deletion.
	TierFinal WarningTier = "final"
	// TierScheduled means deletion was handed off to the scheduler.
	TierScheduled WarningTier = "scheduled_deletion"
)

// InactivityRecord tracks per-account inactivity escalation state.
type InactivityRecord struct {
	AccountID       string
	LastActiveAt    time.Time
	CurrentTier     WarningTier
	MonthBeforeSent *time.Time
	SevenDaySent    *time.Time
	FinalSent       *time.Time
	UpdatedAt       time.Time
}

// InactivityStore persists inactivity escalation state.
type InactivityStore interface {
	// RecordActivity upserts last-active time and resets escalation state.
	RecordActivity(ctx context.Context, accountID string, lastActiveAt time.Time) error
	GetInactivity(ctx context.Context, accountID string) (InactivityRecord, error)
	// ListInactiveBefore lists accounts whose last activity predates cutoff
	// and whose escalation has not yet scheduled deletion.
	ListInactiveBefore(ctx context.Context, cutoff time.Time, limit int) ([]InactivityRecord, error)
	// AdvanceWarningTier stamps the sent-at mark for tier and moves the
	// current tier forward. It returns ErrConflict when the tier warning
	// was already sent, making repeated sweeps idempotent.
	AdvanceWarningTier(ctx context.Context, accountID string, tier WarningTier, sentAt time.Time) error
	// SetTier moves the current tier without stamping a warning.
	SetTier(ctx context.Context, accountID string, tier WarningTier, at time.Time) error
}

// ConsentStatus identifies one consent record state.
type ConsentStatus string

const (
	// ConsentPending awaits guardian verification.
	ConsentPending ConsentStatus = "pending"
	// ConsentGranted means the guardian verified the request.
	ConsentGranted ConsentStatus = "granted"
	// ConsentExpired means the verification token lapsed.
	ConsentExpired ConsentStatus = "expired"
	// ConsentRevoked means the guardian withdrew consent.
	ConsentRevoked ConsentStatus = "revoked"
)

// ConsentRecord stores one guardian consent flow for a library membership.
type ConsentRecord struct {
	ID                string
	LibraryID         string
	AdultUserID       string
	Status            ConsentStatus
	Method            string
	VerificationToken string
	CreatedAt         time.Time
	ExpiresAt         time.Time
	VerifiedAt        *time.Time
}

// ConsentStore persists guardian consent records.
type ConsentStore interface {
	PutConsent(ctx context.Context, record ConsentRecord) error
	GetConsentByToken(ctx context.Context, token string) (ConsentRecord, error)
	// GetPendingConsent returns the pending record for a library/guardian
	// pair, or ErrNotFound.
	GetPendingConsent(ctx context.Context, libraryID string, adultUserID string) (ConsentRecord, error)
	// TransitionConsent moves a record from one status to another,
	// returning ErrConflict when the expected status no longer holds.
	TransitionConsent(ctx context.Context, id string, expected ConsentStatus, next ConsentStatus, verifiedAt *time.Time) (ConsentRecord, error)
}

// AccountStatus identifies one account lifecycle state.
type AccountStatus string

const (
	// AccountActive is a live account.
	AccountActive AccountStatus = "active"
	// AccountHibernated is a reversibly suspended account.
	AccountHibernated AccountStatus = "hibernated"
	// AccountDeleted is an irreversibly removed account.
	AccountDeleted AccountStatus = "deleted"
)

// AccountRecord stores one account's lifecycle state.
type AccountRecord struct {
	ID           string
	DisplayName  string
	Status       AccountStatus
	CreatedAt    time.Time
	HibernatedAt *time.Time
	DeletedAt    *time.Time
}

// LibraryRef describes one library membership from an account's view.
type LibraryRef struct {
	LibraryID    string
	MembershipID string
	Owner        bool
	// Shared reports whether other accounts still hold memberships.
	Shared bool
}

// EntityStore exposes the owned-entity graph reads the cascade resolver
// needs and the idempotent execution hooks the engine applies. Hooks must
// treat missing rows as success so re-resolved plans can replay safely.
type EntityStore interface {
	GetAccount(ctx context.Context, id string) (AccountRecord, error)
	ListLibraryMemberships(ctx context.Context, accountID string) ([]LibraryRef, error)
	ListOwnedStories(ctx context.Context, accountID string) ([]string, error)
	ListOwnedCharacters(ctx context.Context, accountID string) ([]string, error)
	ListConversationSessions(ctx context.Context, accountID string) ([]string, error)
	ListConversationAssets(ctx context.Context, sessionID string) ([]string, error)
	ListWebhookRegistrations(ctx context.Context, accountID string) ([]string, error)
	ListPushTokens(ctx context.Context, accountID string) ([]string, error)
	ListPendingTransfers(ctx context.Context, accountID string) ([]string, error)
	ListStoriesWithCharacter(ctx context.Context, characterID string) ([]string, error)
	StoryExists(ctx context.Context, storyID string) (bool, error)
	CharacterExists(ctx context.Context, characterID string) (bool, error)
	MembershipExists(ctx context.Context, membershipID string) (bool, error)
	ConversationAssetExists(ctx context.Context, assetID string) (bool, error)

	HibernateAccount(ctx context.Context, id string, at time.Time) error
	DeleteAccount(ctx context.Context, id string, at time.Time) error
	DeleteLibrary(ctx context.Context, libraryID string) error
	RemoveLibraryMember(ctx context.Context, membershipID string) error
	DetachStoryLinks(ctx context.Context, storyID string) error
	DeleteStory(ctx context.Context, storyID string) error
	RemoveCharacterFromStory(ctx context.Context, storyID string, characterID string) error
	DeleteCharacter(ctx context.Context, characterID string) error
	DeleteConversationSession(ctx context.Context, sessionID string) error
	DeleteConversationAsset(ctx context.Context, assetID string) error
	DeleteWebhookRegistration(ctx context.Context, registrationID string) error
	DeletePushToken(ctx context.Context, tokenID string) error
	RejectTransfer(ctx context.Context, transferID string) error
	// ScheduleAssetCleanup queues best-effort generated-asset removal for a
	// story; it is not part of the transactional cascade.
	ScheduleAssetCleanup(ctx context.Context, storyID string, at time.Time) error
}

// DeliveryStatus identifies one queued notification delivery state.
type DeliveryStatus string

const (
	// DeliveryPending means the delivery is queued for dispatch.
	DeliveryPending DeliveryStatus = "pending"
	// DeliveryFailed means the last attempt failed and a retry is due.
	DeliveryFailed DeliveryStatus = "failed"
	// DeliveryDelivered means the sender accepted the notification.
	DeliveryDelivered DeliveryStatus = "delivered"
	// DeliveryDead means attempts were exhausted.
	DeliveryDead DeliveryStatus = "dead"
)

// NotificationRecord stores one queued notification intent.
type NotificationRecord struct {
	ID          string
	RecipientID string
	Kind        string
	PayloadJSON string
	DedupeKey   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DeliveryRecord stores one notification delivery attempt state.
type DeliveryRecord struct {
	NotificationID string
	Status         DeliveryStatus
	AttemptCount   int
	NextAttemptAt  time.Time
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeliveredAt    *time.Time
}

// NotificationStore persists the at-least-once notification outbox.
type NotificationStore interface {
	// PutNotificationWithDelivery atomically persists one intent and its
	// initial pending delivery row.
	PutNotificationWithDelivery(ctx context.Context, notification NotificationRecord, delivery DeliveryRecord) error
	GetNotification(ctx context.Context, id string) (NotificationRecord, error)
	// GetNotificationByRecipientAndDedupeKey loads one recipient
	// notification by dedupe key, or ErrNotFound.
	GetNotificationByRecipientAndDedupeKey(ctx context.Context, recipientID string, dedupeKey string) (NotificationRecord, error)
	// ListDueDeliveries lists pending or retryable deliveries whose next
	// attempt time has passed.
	ListDueDeliveries(ctx context.Context, now time.Time, limit int) ([]DeliveryRecord, error)
	MarkDeliveryRetry(ctx context.Context, notificationID string, attemptCount int, nextAttemptAt time.Time, lastError string) error
	MarkDeliveryDelivered(ctx context.Context, notificationID string, deliveredAt time.Time) error
	MarkDeliveryDead(ctx context.Context, notificationID string, at time.Time, lastError string) error
}
