package domain

import "context"

// NotificationKind identifies one lifecycle notification type.
type NotificationKind string

const (
	// KindInactivityWarning carries an inactivity tier warning; the payload
	// names the tier.
	KindInactivityWarning NotificationKind = "inactivity_warning"
	// KindDeletionScheduled announces a new deletion request and its
	// execution time.
	KindDeletionScheduled NotificationKind = "deletion_scheduled"
	// KindDeletionConfirmed announces an out-of-band confirmation.
	KindDeletionConfirmed NotificationKind = "deletion_confirmed"
	// KindDeletionCancelled announces a cancellation.
	KindDeletionCancelled NotificationKind = "deletion_cancelled"
	// KindDeletionCompleted announces finished execution.
	KindDeletionCompleted NotificationKind = "deletion_completed"
	// KindConsentRequested asks a guardian to verify library consent.
	KindConsentRequested NotificationKind = "consent_requested"
)

// Notifier is the outbound notification boundary. Implementations must not
// block deletion flows: callers treat every error as log-and-continue, so
// durable implementations should only fail on local persistence problems.
type Notifier interface {
	Notify(ctx context.Context, kind NotificationKind, recipientID string, payload map[string]string) error
}
