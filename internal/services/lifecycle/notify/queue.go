// Package notify provides the at-least-once notification outbox: lifecycle
// events are queued durably and a dispatcher loop delivers them with
// retries.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fableforge/fableforge/internal/platform/id"
	"github.com/fableforge/fableforge/internal/services/lifecycle/domain"
	"github.com/fableforge/fableforge/internal/services/lifecycle/storage"
)

// ErrQueueNotConfigured indicates the queue is missing persistence wiring.
var ErrQueueNotConfigured = errors.New("notification queue is not configured")

// Queue persists notification intents with an initial pending delivery.
// Payloads carrying a dedupe_key collapse onto the existing notification.
type Queue struct {
	store storage.NotificationStore
	clock func() time.Time
	newID func() (string, error)
}

// NewQueue constructs a notification queue.
func NewQueue(store storage.NotificationStore, clock func() time.Time, newID func() (string, error)) *Queue {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Queue{store: store, clock: clock, newID: newID}
}

// Notify enqueues one notification for durable delivery. The payload key
// "dedupe_key" is lifted out of the payload and used to suppress duplicate
// enqueues for the same recipient.
func (q *Queue) Notify(ctx context.Context, kind domain.NotificationKind, recipientID string, payload map[string]string) error {
	if q == nil || q.store == nil {
		return ErrQueueNotConfigured
	}
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return errors.New("notification recipient is required")
	}

	dedupeKey := payload["dedupe_key"]
	if dedupeKey == "" {
		dedupeKey = defaultDedupeKey(kind, payload)
	}
	if dedupeKey != "" {
		if _, err := q.store.GetNotificationByRecipientAndDedupeKey(ctx, recipientID, dedupeKey); err == nil {
			return nil
		} else if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("lookup notification by dedupe key: %w", err)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode notification payload: %w", err)
	}
	notificationID, err := q.newID()
	if err != nil {
		return fmt.Errorf("generate notification id: %w", err)
	}
	now := q.clock().UTC()
	notification := storage.NotificationRecord{
		ID:          notificationID,
		RecipientID: recipientID,
		Kind:        string(kind),
		PayloadJSON: string(body),
		DedupeKey:   dedupeKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	delivery := storage.DeliveryRecord{
		NotificationID: notificationID,
		Status:         storage.DeliveryPending,
		NextAttemptAt:  now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := q.store.PutNotificationWithDelivery(ctx, notification, delivery); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// A concurrent enqueue with the same dedupe key won.
			return nil
		}
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// defaultDedupeKey derives a stable key for event kinds that should only
// ever be sent once per subject.
func defaultDedupeKey(kind domain.NotificationKind, payload map[string]string) string {
	switch kind {
	case domain.KindInactivityWarning:
		return fmt.Sprintf("%s:%s:%s", kind, payload["account_id"], payload["tier"])
	case domain.KindDeletionScheduled, domain.KindDeletionConfirmed, domain.KindDeletionCancelled, domain.KindDeletionCompleted:
		return fmt.Sprintf("%s:%s", kind, payload["request_id"])
	default:
		return ""
	}
}
