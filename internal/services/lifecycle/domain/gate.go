package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fableforge/fableforge/internal/platform/id"
	"github.com/fableforge/fableforge/internal/services/lifecycle/storage"
)

// DefaultConfirmationTTL bounds how long a confirmation token stays valid.
const DefaultConfirmationTTL = 7 * 24 * time.Hour

// ConfirmationGate issues and validates single-use, expiring confirmation
// tokens proving requester intent via an out-of-band channel.
type ConfirmationGate struct {
	requests storage.RequestStore
	tokens   storage.TokenStore
	notifier Notifier
	ttl      time.Duration
	clock    func() time.Time
	newID    func() (string, error)
}

// NewConfirmationGate constructs a confirmation gate.
func NewConfirmationGate(requests storage.RequestStore, tokens storage.TokenStore, notifier Notifier, ttl time.Duration, clock func() time.Time, newID func() (string, error)) *ConfirmationGate {
	if ttl <= 0 {
		ttl = DefaultConfirmationTTL
	}
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &ConfirmationGate{
		requests: requests,
		tokens:   tokens,
		notifier: notifier,
		ttl:      ttl,
		clock:    clock,
		newID:    newID,
	}
}

// IssueToken mints a single-use token for a scheduled request and records
// it on the request for audit.
func (g *ConfirmationGate) IssueToken(ctx context.Context, requestID string) (string, error) {
	if g == nil || g.requests == nil || g.tokens == nil {
		return "", ErrStoreNotConfigured
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return "", ErrRequestNotFound
	}
	request, err := g.requests.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrRequestNotFound
		}
		return "", fmt.Errorf("load deletion request: %w", err)
	}
	if request.Status != storage.StatusScheduled {
		return "", ErrRequestNotActive
	}

	token, err := g.newID()
	if err != nil {
		return "", fmt.Errorf("generate confirmation token: %w", err)
	}
	now := g.clock().UTC()
	if err := g.tokens.PutConfirmationToken(ctx, storage.ConfirmationTokenRecord{
		Token:     token,
		RequestID: request.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(g.ttl),
	}); err != nil {
		return "", fmt.Errorf("store confirmation token: %w", err)
	}
	if _, err := g.requests.CASTransition(ctx, request.ID,
		[]storage.RequestStatus{storage.StatusScheduled}, storage.StatusScheduled,
		storage.TransitionFields{ConfirmationToken: &token},
	); err != nil && !errors.Is(err, storage.ErrConflict) {
		return "", fmt.Errorf("record confirmation token: %w", err)
	}
	return token, nil
}

// Confirm consumes a token and promotes its request from scheduled to
// confirmed, collapsing the scheduled deletion time to now so the next
// sweep picks it up.
func (g *ConfirmationGate) Confirm(ctx context.Context, token string) (storage.DeletionRequestRecord, error) {
	if g == nil || g.requests == nil || g.tokens == nil {
		return storage.DeletionRequestRecord{}, ErrStoreNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return storage.DeletionRequestRecord{}, ErrTokenInvalid
	}
	record, err := g.tokens.GetConfirmationToken(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.DeletionRequestRecord{}, ErrTokenInvalid
		}
		return storage.DeletionRequestRecord{}, fmt.Errorf("load confirmation token: %w", err)
	}

	now := g.clock().UTC()
	if record.UsedAt != nil {
		return storage.DeletionRequestRecord{}, ErrTokenAlreadyUsed
	}
	if now.After(record.ExpiresAt) {
		return storage.DeletionRequestRecord{}, ErrTokenExpired
	}
	if err := g.tokens.MarkConfirmationTokenUsed(ctx, token, now); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// A concurrent confirm consumed the token first.
			return storage.DeletionRequestRecord{}, ErrTokenAlreadyUsed
		}
		return storage.DeletionRequestRecord{}, fmt.Errorf("mark confirmation token used: %w", err)
	}

	confirmedAt := now
	request, err := g.requests.CASTransition(ctx, record.RequestID,
		[]storage.RequestStatus{storage.StatusScheduled}, storage.StatusConfirmed,
		storage.TransitionFields{ScheduledDeletionAt: &confirmedAt},
	)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return storage.DeletionRequestRecord{}, ErrRequestNotActive
		}
		if errors.Is(err, storage.ErrNotFound) {
			return storage.DeletionRequestRecord{}, ErrRequestNotFound
		}
		return storage.DeletionRequestRecord{}, fmt.Errorf("confirm deletion request: %w", err)
	}

	if g.notifier != nil {
		payload := map[string]string{
			"request_id":  request.ID,
			"target_type": string(request.TargetType),
			"target_id":   request.TargetID,
		}
		if err := g.notifier.Notify(ctx, KindDeletionConfirmed, request.RequestedBy, payload); err != nil {
			log.Printf("notify deletion confirmed for %s: %v", request.ID, err)
		}
	}
	return request, nil
}
