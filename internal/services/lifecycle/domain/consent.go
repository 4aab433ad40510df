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

// DefaultConsentTTL bounds how long a guardian verification link stays valid.
const DefaultConsentTTL = 14 * 24 * time.Hour

// ConsentMethodEmailLink is the only verification method currently issued.
const ConsentMethodEmailLink = "email_link"

// ConsentService runs the guardian consent flow for library memberships:
// a pending record with a verification token, verified out of band.
type ConsentService struct {
	consents storage.ConsentStore
	notifier Notifier
	ttl      time.Duration
	clock    func() time.Time
	newID    func() (string, error)
}

// NewConsentService constructs a consent service.
func NewConsentService(consents storage.ConsentStore, notifier Notifier, ttl time.Duration, clock func() time.Time, newID func() (string, error)) *ConsentService {
	if ttl <= 0 {
		ttl = DefaultConsentTTL
	}
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &ConsentService{
		consents: consents,
		notifier: notifier,
		ttl:      ttl,
		clock:    clock,
		newID:    newID,
	}
}

// RequestConsent creates or returns the pending consent record for one
// library and guardian. A still-valid pending record is returned unchanged;
// an expired one is retired and replaced.
func (s *ConsentService) RequestConsent(ctx context.Context, libraryID string, adultUserID string) (storage.ConsentRecord, error) {
	if s == nil || s.consents == nil {
		return storage.ConsentRecord{}, ErrStoreNotConfigured
	}
	libraryID = strings.TrimSpace(libraryID)
	if libraryID == "" {
		return storage.ConsentRecord{}, ErrTargetIDRequired
	}
	adultUserID = strings.TrimSpace(adultUserID)
	if adultUserID == "" {
		return storage.ConsentRecord{}, ErrRequesterRequired
	}

	now := s.clock().UTC()
	if pending, err := s.consents.GetPendingConsent(ctx, libraryID, adultUserID); err == nil {
		if now.Before(pending.ExpiresAt) {
			return pending, nil
		}
		if _, err := s.consents.TransitionConsent(ctx, pending.ID, storage.ConsentPending, storage.ConsentExpired, nil); err != nil && !errors.Is(err, storage.ErrConflict) {
			return storage.ConsentRecord{}, fmt.Errorf("expire stale consent: %w", err)
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return storage.ConsentRecord{}, fmt.Errorf("lookup pending consent: %w", err)
	}

	recordID, err := s.newID()
	if err != nil {
		return storage.ConsentRecord{}, fmt.Errorf("generate consent id: %w", err)
	}
	token, err := s.newID()
	if err != nil {
		return storage.ConsentRecord{}, fmt.Errorf("generate verification token: %w", err)
	}
	record := storage.ConsentRecord{
		ID:                recordID,
		LibraryID:         libraryID,
		AdultUserID:       adultUserID,
		Status:            storage.ConsentPending,
		Method:            ConsentMethodEmailLink,
		VerificationToken: token,
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.ttl),
	}
	if err := s.consents.PutConsent(ctx, record); err != nil {
		return storage.ConsentRecord{}, fmt.Errorf("store consent record: %w", err)
	}

	if s.notifier != nil {
		payload := map[string]string{
			"library_id":         libraryID,
			"verification_token": token,
			"expires_at":         record.ExpiresAt.Format(time.RFC3339),
		}
		if err := s.notifier.Notify(ctx, KindConsentRequested, adultUserID, payload); err != nil {
			log.Printf("notify consent requested for library %s: %v", libraryID, err)
		}
	}
	return record, nil
}

// VerifyConsent consumes a verification token and grants the consent. An
// expired pending record is retired before the error is surfaced.
func (s *ConsentService) VerifyConsent(ctx context.Context, token string) (storage.ConsentRecord, error) {
	if s == nil || s.consents == nil {
		return storage.ConsentRecord{}, ErrStoreNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return storage.ConsentRecord{}, ErrTokenInvalid
	}
	record, err := s.consents.GetConsentByToken(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.ConsentRecord{}, ErrTokenInvalid
		}
		return storage.ConsentRecord{}, fmt.Errorf("load consent record: %w", err)
	}
	if record.Status != storage.ConsentPending {
		return storage.ConsentRecord{}, ErrTokenAlreadyUsed
	}

	now := s.clock().UTC()
	if now.After(record.ExpiresAt) {
		if _, err := s.consents.TransitionConsent(ctx, record.ID, storage.ConsentPending, storage.ConsentExpired, nil); err != nil && !errors.Is(err, storage.ErrConflict) {
			return storage.ConsentRecord{}, fmt.Errorf("expire consent record: %w", err)
		}
		return storage.ConsentRecord{}, ErrTokenExpired
	}

	granted, err := s.consents.TransitionConsent(ctx, record.ID, storage.ConsentPending, storage.ConsentGranted, &now)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return storage.ConsentRecord{}, ErrTokenAlreadyUsed
		}
		return storage.ConsentRecord{}, fmt.Errorf("grant consent: %w", err)
	}
	return granted, nil
}

// RevokeConsent withdraws a previously granted consent.
func (s *ConsentService) RevokeConsent(ctx context.Context, consentID string) (storage.ConsentRecord, error) {
	if s == nil || s.consents == nil {
		return storage.ConsentRecord{}, ErrStoreNotConfigured
	}
	consentID = strings.TrimSpace(consentID)
	if consentID == "" {
		return storage.ConsentRecord{}, ErrTargetIDRequired
	}
	revoked, err := s.consents.TransitionConsent(ctx, consentID, storage.ConsentGranted, storage.ConsentRevoked, nil)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.ConsentRecord{}, ErrRequestNotFound
		}
		if errors.Is(err, storage.ErrConflict) {
			return storage.ConsentRecord{}, ErrTokenAlreadyUsed
		}
		return storage.ConsentRecord{}, fmt.Errorf("revoke consent: %w", err)
	}
	return revoked, nil
}
