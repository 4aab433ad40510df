package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/fableforge/fableforge/internal/platform/id"
	"github.com/fableforge/fableforge/internal/services/lifecycle/storage"
)

// SchedulerConfig tunes deletion request creation.
type SchedulerConfig struct {
	Grace GracePeriods
}

// CreateDeletionInput describes one deletion request to create.
type CreateDeletionInput struct {
	TargetType  string
	TargetID    string
	RequestedBy string
	Immediate   bool
	Reason      string
	Policy      CascadePolicyInput
}

// Scheduler creates and deduplicates deletion requests and computes
// grace-period deadlines.
type Scheduler struct {
	requests storage.RequestStore
	entities storage.EntityStore
	gate     *ConfirmationGate
	notifier Notifier
	cfg      SchedulerConfig
	clock    func() time.Time
	newID    func() (string, error)
}

// NewScheduler constructs a deletion scheduler.
func NewScheduler(requests storage.RequestStore, entities storage.EntityStore, gate *ConfirmationGate, notifier Notifier, cfg SchedulerConfig, clock func() time.Time, newID func() (string, error)) *Scheduler {
	if cfg.Grace == (GracePeriods{}) {
		cfg.Grace = DefaultGracePeriods()
	}
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Scheduler{
		requests: requests,
		entities: entities,
		gate:     gate,
		notifier: notifier,
		cfg:      cfg,
		clock:    clock,
		newID:    newID,
	}
}

// Create persists one deletion request. When an active request already
// exists for the target it is returned unchanged instead of erroring, so
// repeated calls are idempotent. Notification and confirmation-token side
// effects never fail the call.
func (s *Scheduler) Create(ctx context.Context, input CreateDeletionInput) (storage.DeletionRequestRecord, error) {
	if s == nil || s.requests == nil || s.entities == nil {
		return storage.DeletionRequestRecord{}, ErrStoreNotConfigured
	}
	target, err := ParseTargetType(input.TargetType)
	if err != nil {
		return storage.DeletionRequestRecord{}, err
	}
	targetID := strings.TrimSpace(input.TargetID)
	if targetID == "" {
		return storage.DeletionRequestRecord{}, ErrTargetIDRequired
	}
	requestedBy := strings.TrimSpace(input.RequestedBy)
	if requestedBy == "" {
		return storage.DeletionRequestRecord{}, ErrRequesterRequired
	}
	policy, err := ResolveCascadePolicy(target, input.Policy)
	if err != nil {
		return storage.DeletionRequestRecord{}, err
	}
	if err := s.verifyTargetExists(ctx, target, targetID); err != nil {
		return storage.DeletionRequestRecord{}, err
	}

	if existing, err := s.requests.GetActiveRequestByTarget(ctx, target, targetID); err == nil {
		return existing, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return storage.DeletionRequestRecord{}, fmt.Errorf("lookup active deletion request: %w", err)
	}

	requestID, err := s.newID()
	if err != nil {
		return storage.DeletionRequestRecord{}, fmt.Errorf("generate request id: %w", err)
	}
	now := s.clock().UTC()
	record := storage.DeletionRequestRecord{
		ID:                  requestID,
		TargetType:          target,
		TargetID:            targetID,
		RequestedBy:         requestedBy,
		Status:              storage.StatusScheduled,
		Reason:              strings.TrimSpace(input.Reason),
		AccountMode:         policy.AccountMode,
		CharacterStories:    policy.CharacterStories,
		CreatedAt:           now,
		UpdatedAt:           now,
		ScheduledDeletionAt: now.Add(s.cfg.Grace.For(target)),
	}
	if input.Immediate {
		record.Status = storage.StatusConfirmed
		record.ScheduledDeletionAt = now
	}

	if err := s.requests.CreateRequest(ctx, record); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Lost a concurrent-create race; the winner is the active request.
			existing, lookupErr := s.requests.GetActiveRequestByTarget(ctx, target, targetID)
			if lookupErr == nil {
				return existing, nil
			}
			return storage.DeletionRequestRecord{}, fmt.Errorf("lookup winning deletion request: %w", lookupErr)
		}
		return storage.DeletionRequestRecord{}, fmt.Errorf("create deletion request: %w", err)
	}

	payload := map[string]string{
		"request_id":            record.ID,
		"target_type":           string(record.TargetType),
		"target_id":             record.TargetID,
		"scheduled_deletion_at": record.ScheduledDeletionAt.Format(time.RFC3339),
		"immediate":             strconv.FormatBool(input.Immediate),
	}
	if !input.Immediate && s.gate != nil {
		token, tokenErr := s.gate.IssueToken(ctx, record.ID)
		if tokenErr != nil {
			log.Printf("issue confirmation token for request %s: %v", record.ID, tokenErr)
		} else {
			record.ConfirmationToken = token
			payload["confirmation_token"] = token
		}
	}
	s.notify(ctx, KindDeletionScheduled, requestedBy, payload)
	return record, nil
}

func (s *Scheduler) verifyTargetExists(ctx context.Context, target storage.TargetType, targetID string) error {
	switch target {
	case storage.TargetAccount:
		account, err := s.entities.GetAccount(ctx, targetID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrTargetNotFound
			}
			return fmt.Errorf("lookup account: %w", err)
		}
		if account.Status == storage.AccountDeleted {
			return ErrTargetNotFound
		}
		return nil
	case storage.TargetStory:
		return s.checkExists(s.entities.StoryExists(ctx, targetID))
	case storage.TargetCharacter:
		return s.checkExists(s.entities.CharacterExists(ctx, targetID))
	case storage.TargetLibraryMember:
		return s.checkExists(s.entities.MembershipExists(ctx, targetID))
	case storage.TargetConversationAsset:
		return s.checkExists(s.entities.ConversationAssetExists(ctx, targetID))
	default:
		return ErrInvalidTargetType
	}
}

func (s *Scheduler) checkExists(exists bool, err error) error {
	if err != nil {
		return fmt.Errorf("lookup deletion target: %w", err)
	}
	if !exists {
		return ErrTargetNotFound
	}
	return nil
}

func (s *Scheduler) notify(ctx context.Context, kind NotificationKind, recipient string, payload map[string]string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, kind, recipient, payload); err != nil {
		log.Printf("notify %s for %s: %v", kind, recipient, err)
	}
}
