package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fableforge/fableforge/internal/services/lifecycle/storage"
)

// CancellationHandler performs race-safe cancellation of pending deletion
// requests. Once the execution engine's claim succeeds, cancellation is
// permanently foreclosed and surfaces as ErrAlreadyExecuted.
type CancellationHandler struct {
	requests storage.RequestStore
	notifier Notifier
	clock    func() time.Time
}

// NewCancellationHandler constructs a cancellation handler.
func NewCancellationHandler(requests storage.RequestStore, notifier Notifier, clock func() time.Time) *CancellationHandler {
	if clock == nil {
		clock = time.Now
	}
	return &CancellationHandler{
		requests: requests,
		notifier: notifier,
		clock:    clock,
	}
}

// Cancel moves a scheduled or confirmed request to cancelled. Only the
// original requester or the system may cancel. Cancelling an already
// cancelled request is a no-op returning the existing record.
func (h *CancellationHandler) Cancel(ctx context.Context, requestID string, requestedBy string) (storage.DeletionRequestRecord, error) {
	if h == nil || h.requests == nil {
		return storage.DeletionRequestRecord{}, ErrStoreNotConfigured
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return storage.DeletionRequestRecord{}, ErrRequestNotFound
	}
	requestedBy = strings.TrimSpace(requestedBy)
	if requestedBy == "" {
		return storage.DeletionRequestRecord{}, ErrRequesterRequired
	}

	request, err := h.requests.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.DeletionRequestRecord{}, ErrRequestNotFound
		}
		return storage.DeletionRequestRecord{}, fmt.Errorf("load deletion request: %w", err)
	}
	if requestedBy != request.RequestedBy && requestedBy != SystemRequester {
		return storage.DeletionRequestRecord{}, ErrForbidden
	}
	switch request.Status {
	case storage.StatusCancelled:
		return request, nil
	case storage.StatusExecuting, storage.StatusCompleted, storage.StatusFailed:
		return storage.DeletionRequestRecord{}, ErrAlreadyExecuted
	}

	now := h.clock().UTC()
	cancelled, err := h.requests.CASTransition(ctx, request.ID,
		[]storage.RequestStatus{storage.StatusScheduled, storage.StatusConfirmed}, storage.StatusCancelled,
		storage.TransitionFields{CancelledBy: &requestedBy, CancelledAt: &now},
	)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Lost the race: either another cancel won or execution claimed it.
			current, lookupErr := h.requests.GetRequest(ctx, request.ID)
			if lookupErr == nil && current.Status == storage.StatusCancelled {
				return current, nil
			}
			return storage.DeletionRequestRecord{}, ErrAlreadyExecuted
		}
		return storage.DeletionRequestRecord{}, fmt.Errorf("cancel deletion request: %w", err)
	}

	if h.notifier != nil {
		payload := map[string]string{
			"request_id":   cancelled.ID,
			"target_type":  string(cancelled.TargetType),
			"target_id":    cancelled.TargetID,
			"cancelled_by": requestedBy,
		}
		if err := h.notifier.Notify(ctx, KindDeletionCancelled, cancelled.RequestedBy, payload); err != nil {
			log.Printf("notify deletion cancelled for %s: %v", cancelled.ID, err)
		}
	}
	return cancelled, nil
}
