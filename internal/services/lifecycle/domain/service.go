package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fableforge/fableforge/internal/platform/id"
	"github.com/fableforge/fableforge/internal/services/lifecycle/storage"
)

// Deps carries the stores and notifier the lifecycle service depends on.
type Deps struct {
	Requests   storage.RequestStore
	Tokens     storage.TokenStore
	Inactivity storage.InactivityStore
	Consents   storage.ConsentStore
	Entities   storage.EntityStore
	Notifier   Notifier
}

// Config carries the tunable knobs for every lifecycle subsystem.
type Config struct {
	Grace           GracePeriods
	ConfirmationTTL time.Duration
	ConsentTTL      time.Duration
	Engine          EngineConfig
	Retention       RetentionConfig

	// Clock and NewID override time and identifier generation in tests.
	Clock func() time.Time
	NewID func() (string, error)
}

// Service is the lifecycle façade: one entry point per exposed operation,
// delegating to the focused subsystems underneath.
type Service struct {
	scheduler *Scheduler
	gate      *ConfirmationGate
	canceller *CancellationHandler
	engine    *ExecutionEngine
	retention *RetentionMonitor
	consent   *ConsentService
	requests  storage.RequestStore
}

// NewService wires the lifecycle subsystems together.
func NewService(deps Deps, cfg Config) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = id.NewID
	}

	gate := NewConfirmationGate(deps.Requests, deps.Tokens, deps.Notifier, cfg.ConfirmationTTL, clock, newID)
	scheduler := NewScheduler(deps.Requests, deps.Entities, gate, deps.Notifier, SchedulerConfig{Grace: cfg.Grace}, clock, newID)
	canceller := NewCancellationHandler(deps.Requests, deps.Notifier, clock)
	resolver := NewCascadeResolver(deps.Entities)
	engine := NewExecutionEngine(deps.Requests, deps.Entities, resolver, deps.Notifier, cfg.Engine, clock)
	retention := NewRetentionMonitor(deps.Inactivity, deps.Requests, scheduler, canceller, deps.Notifier, cfg.Retention, clock)
	consent := NewConsentService(deps.Consents, deps.Notifier, cfg.ConsentTTL, clock, newID)

	return &Service{
		scheduler: scheduler,
		gate:      gate,
		canceller: canceller,
		engine:    engine,
		retention: retention,
		consent:   consent,
		requests:  deps.Requests,
	}
}

// RequestDeletion files a deletion request for a target.
func (s *Service) RequestDeletion(ctx context.Context, input CreateDeletionInput) (storage.DeletionRequestRecord, error) {
	if s == nil {
		return storage.DeletionRequestRecord{}, ErrStoreNotConfigured
	}
	return s.scheduler.Create(ctx, input)
}

// CancelDeletion withdraws a pending deletion request.
func (s *Service) CancelDeletion(ctx context.Context, requestID string, requestedBy string) (storage.DeletionRequestRecord, error) {
	if s == nil {
		return storage.DeletionRequestRecord{}, ErrStoreNotConfigured
	}
	return s.canceller.Cancel(ctx, requestID, requestedBy)
}

// ConfirmDeletion consumes a confirmation token, making the request
// immediately eligible for execution.
func (s *Service) ConfirmDeletion(ctx context.Context, token string) (storage.DeletionRequestRecord, error) {
	if s == nil {
		return storage.DeletionRequestRecord{}, ErrStoreNotConfigured
	}
	return s.gate.Confirm(ctx, token)
}

// GetDeletionRequest loads one request by ID.
func (s *Service) GetDeletionRequest(ctx context.Context, requestID string) (storage.DeletionRequestRecord, error) {
	if s == nil || s.requests == nil {
		return storage.DeletionRequestRecord{}, ErrStoreNotConfigured
	}
	record, err := s.requests.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.DeletionRequestRecord{}, ErrRequestNotFound
		}
		return storage.DeletionRequestRecord{}, fmt.Errorf("load deletion request: %w", err)
	}
	return record, nil
}

// ListDeletionRequests returns the full audit history for one target,
// terminal rows included.
func (s *Service) ListDeletionRequests(ctx context.Context, targetType string, targetID string) ([]storage.DeletionRequestRecord, error) {
	if s == nil || s.requests == nil {
		return nil, ErrStoreNotConfigured
	}
	target, err := ParseTargetType(targetType)
	if err != nil {
		return nil, err
	}
	records, err := s.requests.ListRequestsByTarget(ctx, target, targetID)
	if err != nil {
		return nil, fmt.Errorf("list deletion requests: %w", err)
	}
	return records, nil
}

// RequestConsent starts or resumes the guardian consent flow.
func (s *Service) RequestConsent(ctx context.Context, libraryID string, adultUserID string) (storage.ConsentRecord, error) {
	if s == nil {
		return storage.ConsentRecord{}, ErrStoreNotConfigured
	}
	return s.consent.RequestConsent(ctx, libraryID, adultUserID)
}

// VerifyConsent consumes a guardian verification token.
func (s *Service) VerifyConsent(ctx context.Context, token string) (storage.ConsentRecord, error) {
	if s == nil {
		return storage.ConsentRecord{}, ErrStoreNotConfigured
	}
	return s.consent.VerifyConsent(ctx, token)
}

// RecordActivity marks an account active, resetting inactivity escalation.
func (s *Service) RecordActivity(ctx context.Context, accountID string) error {
	if s == nil {
		return ErrStoreNotConfigured
	}
	return s.retention.RecordActivity(ctx, accountID)
}

// Engine exposes the execution engine for the sweep loop.
func (s *Service) Engine() *ExecutionEngine {
	if s == nil {
		return nil
	}
	return s.engine
}

// Retention exposes the retention monitor for the sweep loop.
func (s *Service) Retention() *RetentionMonitor {
	if s == nil {
		return nil
	}
	return s.retention
}
