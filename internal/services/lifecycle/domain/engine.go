package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/fableforge/fableforge/internal/services/lifecycle/storage"
)

// EngineConfig tunes claim-and-execute behavior.
type EngineConfig struct {
	// MaxItemAttempts bounds retries for a single plan step.
	MaxItemAttempts int
	// RetryBackoff is the initial delay between step retries.
	RetryBackoff time.Duration
	// RetryMaxDelay caps the delay between step retries.
	RetryMaxDelay time.Duration
	// FailedRetryCoolOff delays re-sweeping a failed request.
	FailedRetryCoolOff time.Duration
	// DormancyPeriod is how long an account must stay hibernated before a
	// new deletion request purges it for good.
	DormancyPeriod time.Duration
	// SweepLimit bounds how many due requests one sweep pass claims.
	SweepLimit int
}

func (c EngineConfig) normalized() EngineConfig {
	if c.MaxItemAttempts <= 0 {
		c.MaxItemAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 5 * time.Second
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 5 * time.Minute
	}
	if c.FailedRetryCoolOff <= 0 {
		c.FailedRetryCoolOff = time.Hour
	}
	if c.DormancyPeriod <= 0 {
		c.DormancyPeriod = 90 * 24 * time.Hour
	}
	if c.SweepLimit <= 0 {
		c.SweepLimit = 50
	}
	return c
}

// Request outcomes recorded on completion.
const (
	// OutcomeHibernated means the account branch suspended reversibly.
	OutcomeHibernated = "hibernated"
	// OutcomePurged means the account cascade ran irreversibly.
	OutcomePurged = "purged"
	// OutcomeDeleted means the target entity was removed.
	OutcomeDeleted = "deleted"
	// OutcomeDetached means only a relationship was severed.
	OutcomeDetached = "detached"
)

// ExecutionEngine claims due deletion requests and applies their cascade
// plans with at-most-once completion guaranteed by the claim CAS.
type ExecutionEngine struct {
	requests storage.RequestStore
	entities storage.EntityStore
	resolver *CascadeResolver
	notifier Notifier
	cfg      EngineConfig
	clock    func() time.Time
}

// NewExecutionEngine constructs an execution engine.
func NewExecutionEngine(requests storage.RequestStore, entities storage.EntityStore, resolver *CascadeResolver, notifier Notifier, cfg EngineConfig, clock func() time.Time) *ExecutionEngine {
	if clock == nil {
		clock = time.Now
	}
	return &ExecutionEngine{
		requests: requests,
		entities: entities,
		resolver: resolver,
		notifier: notifier,
		cfg:      cfg.normalized(),
		clock:    clock,
	}
}

// SweepOnce claims and executes every due request, returning how many
// completed. Per-request failures are logged and do not stop the pass.
func (e *ExecutionEngine) SweepOnce(ctx context.Context) (int, error) {
	if e == nil || e.requests == nil {
		return 0, ErrStoreNotConfigured
	}
	now := e.clock().UTC()
	due, err := e.requests.ListDue(ctx, now, e.cfg.SweepLimit)
	if err != nil {
		return 0, fmt.Errorf("list due deletion requests: %w", err)
	}
	completed := 0
	for _, request := range due {
		if err := ctx.Err(); err != nil {
			return completed, err
		}
		if _, err := e.ClaimAndExecute(ctx, request.ID); err != nil {
			if errors.Is(err, ErrRequestNotActive) {
				continue
			}
			log.Printf("execute deletion request %s: %v", request.ID, err)
			continue
		}
		completed++
	}
	return completed, nil
}

// ClaimAndExecute atomically claims one request and runs its cascade plan.
// A lost claim returns ErrRequestNotActive with no side effects; step
// exhaustion parks the request as failed and returns
// ErrExecutionIncomplete.
func (e *ExecutionEngine) ClaimAndExecute(ctx context.Context, requestID string) (storage.DeletionRequestRecord, error) {
	if e == nil || e.requests == nil || e.entities == nil || e.resolver == nil {
		return storage.DeletionRequestRecord{}, ErrStoreNotConfigured
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return storage.DeletionRequestRecord{}, ErrRequestNotFound
	}
	request, err := e.requests.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.DeletionRequestRecord{}, ErrRequestNotFound
		}
		return storage.DeletionRequestRecord{}, fmt.Errorf("load deletion request: %w", err)
	}
	now := e.clock().UTC()
	if !e.eligible(request, now) {
		return storage.DeletionRequestRecord{}, ErrRequestNotActive
	}

	// The claim CAS is the sole at-most-once guarantee: losing it means a
	// concurrent worker or a cancellation got there first.
	claimed, err := e.requests.CASTransition(ctx, request.ID,
		[]storage.RequestStatus{storage.StatusScheduled, storage.StatusConfirmed, storage.StatusFailed},
		storage.StatusExecuting, storage.TransitionFields{},
	)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return storage.DeletionRequestRecord{}, ErrRequestNotActive
		}
		return storage.DeletionRequestRecord{}, fmt.Errorf("claim deletion request: %w", err)
	}

	policy, outcome, err := e.effectivePolicy(ctx, claimed, now)
	if err != nil {
		return e.parkFailed(ctx, claimed, err)
	}
	plan, err := e.resolver.Resolve(ctx, claimed.TargetType, claimed.TargetID, policy)
	if err != nil {
		return e.parkFailed(ctx, claimed, fmt.Errorf("resolve cascade plan: %w", err))
	}
	for _, step := range plan {
		if err := e.executeStep(ctx, step); err != nil {
			if step.Entity == EntityGeneratedAssets {
				// Asset cleanup is best-effort and outside the
				// transactional core.
				log.Printf("schedule asset cleanup for story %s: %v", step.EntityID, err)
				continue
			}
			return e.parkFailed(ctx, claimed, fmt.Errorf("apply %s %s step for %s: %w", step.Action, step.Entity, step.EntityID, err))
		}
	}

	executedAt := e.clock().UTC()
	completed, err := e.requests.CASTransition(ctx, claimed.ID,
		[]storage.RequestStatus{storage.StatusExecuting}, storage.StatusCompleted,
		storage.TransitionFields{ExecutedAt: &executedAt, Outcome: &outcome},
	)
	if err != nil {
		return storage.DeletionRequestRecord{}, fmt.Errorf("complete deletion request: %w", err)
	}

	if e.notifier != nil {
		payload := map[string]string{
			"request_id":  completed.ID,
			"target_type": string(completed.TargetType),
			"target_id":   completed.TargetID,
			"outcome":     outcome,
		}
		if err := e.notifier.Notify(ctx, KindDeletionCompleted, completed.RequestedBy, payload); err != nil {
			log.Printf("notify deletion completed for %s: %v", completed.ID, err)
		}
	}
	return completed, nil
}

func (e *ExecutionEngine) eligible(request storage.DeletionRequestRecord, now time.Time) bool {
	switch request.Status {
	case storage.StatusConfirmed:
		return true
	case storage.StatusScheduled:
		return !request.ScheduledDeletionAt.After(now)
	case storage.StatusFailed:
		return request.NextRetryAt != nil && !request.NextRetryAt.After(now)
	default:
		return false
	}
}

// effectivePolicy applies the dormancy rule: hibernate-first account
// requests purge only once the account has been hibernated longer than the
// configured dormancy period.
func (e *ExecutionEngine) effectivePolicy(ctx context.Context, request storage.DeletionRequestRecord, now time.Time) (CascadePolicy, string, error) {
	policy := PolicyFromRecord(request)
	switch request.TargetType {
	case storage.TargetAccount:
		if policy.AccountMode == storage.AccountModePurge {
			return policy, OutcomePurged, nil
		}
		account, err := e.entities.GetAccount(ctx, request.TargetID)
		if err != nil {
			return CascadePolicy{}, "", fmt.Errorf("load account for policy: %w", err)
		}
		if account.Status == storage.AccountHibernated && account.HibernatedAt != nil &&
			now.Sub(*account.HibernatedAt) >= e.cfg.DormancyPeriod {
			policy.AccountMode = storage.AccountModePurge
			return policy, OutcomePurged, nil
		}
		return policy, OutcomeHibernated, nil
	case storage.TargetLibraryMember:
		return policy, OutcomeDetached, nil
	default:
		return policy, OutcomeDeleted, nil
	}
}

// executeStep applies one plan step, retrying transient failures with
// exponential backoff up to the configured attempt budget.
func (e *ExecutionEngine) executeStep(ctx context.Context, step PlanStep) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = e.cfg.RetryBackoff
	expo.MaxInterval = e.cfg.RetryMaxDelay
	operation := func() (struct{}, error) {
		if err := e.applyStep(ctx, step); err != nil {
			if IsPermanent(err) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	}
	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(e.cfg.MaxItemAttempts)),
	)
	return err
}

func (e *ExecutionEngine) applyStep(ctx context.Context, step PlanStep) error {
	now := e.clock().UTC()
	switch {
	case step.Entity == EntityTransfer && step.Action == ActionDetach:
		return e.entities.RejectTransfer(ctx, step.EntityID)
	case step.Entity == EntityPushToken && step.Action == ActionDelete:
		return e.entities.DeletePushToken(ctx, step.EntityID)
	case step.Entity == EntityWebhook && step.Action == ActionDelete:
		return e.entities.DeleteWebhookRegistration(ctx, step.EntityID)
	case step.Entity == EntityConversationAsset && step.Action == ActionDelete:
		return e.entities.DeleteConversationAsset(ctx, step.EntityID)
	case step.Entity == EntityConversationSession && step.Action == ActionDelete:
		return e.entities.DeleteConversationSession(ctx, step.EntityID)
	case step.Entity == EntityStory && step.Action == ActionDetach:
		return e.entities.DetachStoryLinks(ctx, step.EntityID)
	case step.Entity == EntityStory && step.Action == ActionDelete:
		return e.entities.DeleteStory(ctx, step.EntityID)
	case step.Entity == EntityGeneratedAssets && step.Action == ActionDetach:
		return e.entities.ScheduleAssetCleanup(ctx, step.EntityID, now)
	case step.Entity == EntityStoryCharacter && step.Action == ActionDetach:
		return e.entities.RemoveCharacterFromStory(ctx, step.EntityID, step.RelatedID)
	case step.Entity == EntityCharacter && step.Action == ActionDelete:
		return e.entities.DeleteCharacter(ctx, step.EntityID)
	case step.Entity == EntityLibrary && step.Action == ActionDelete:
		return e.entities.DeleteLibrary(ctx, step.EntityID)
	case step.Entity == EntityLibraryMember && step.Action == ActionDetach:
		return e.entities.RemoveLibraryMember(ctx, step.EntityID)
	case step.Entity == EntityAccount && step.Action == ActionDetach:
		return e.entities.HibernateAccount(ctx, step.EntityID, now)
	case step.Entity == EntityAccount && step.Action == ActionDelete:
		return e.entities.DeleteAccount(ctx, step.EntityID, now)
	default:
		return Permanent(fmt.Errorf("unsupported plan step %s/%s", step.Entity, step.Action))
	}
}

// parkFailed records a step failure and schedules the retry cool-off. The
// request stays resumable: the next claim re-resolves the plan against
// current state so completed steps are not repeated.
func (e *ExecutionEngine) parkFailed(ctx context.Context, request storage.DeletionRequestRecord, cause error) (storage.DeletionRequestRecord, error) {
	now := e.clock().UTC()
	nextRetry := now.Add(e.cfg.FailedRetryCoolOff)
	attempts := request.AttemptCount + 1
	lastError := cause.Error()
	failed, casErr := e.requests.CASTransition(ctx, request.ID,
		[]storage.RequestStatus{storage.StatusExecuting}, storage.StatusFailed,
		storage.TransitionFields{
			AttemptCount: &attempts,
			LastError:    &lastError,
			NextRetryAt:  &nextRetry,
		},
	)
	if casErr != nil {
		return storage.DeletionRequestRecord{}, fmt.Errorf("park failed deletion request %s: %v (cause: %w)", request.ID, casErr, cause)
	}
	return failed, fmt.Errorf("%w: %w", ErrExecutionIncomplete, cause)
}
