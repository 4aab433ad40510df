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

// RetentionConfig tunes the inactivity escalation ladder.
type RetentionConfig struct {
	// InactivityLimit is how long an account may stay idle before a
	// system deletion request is filed.
	InactivityLimit time.Duration
	// MonthBeforeLead is how far ahead of the limit the first warning goes.
	MonthBeforeLead time.Duration
	// SevenDayLead is how far ahead of the limit the second warning goes.
	SevenDayLead time.Duration
	// FinalLead is how far ahead of the limit the last warning goes.
	FinalLead time.Duration
	// ScanLimit bounds how many idle accounts one sweep pass examines.
	ScanLimit int
}

func (c RetentionConfig) normalized() RetentionConfig {
	if c.InactivityLimit <= 0 {
		c.InactivityLimit = 365 * 24 * time.Hour
	}
	if c.MonthBeforeLead <= 0 {
		c.MonthBeforeLead = 30 * 24 * time.Hour
	}
	if c.SevenDayLead <= 0 {
		c.SevenDayLead = 7 * 24 * time.Hour
	}
	if c.FinalLead <= 0 {
		c.FinalLead = 24 * time.Hour
	}
	if c.ScanLimit <= 0 {
		c.ScanLimit = 100
	}
	return c
}

// RetentionMonitor walks idle accounts through the warning ladder and
// hands fully expired ones to the deletion scheduler. Any recorded
// activity resets the ladder and withdraws the system's own request.
type RetentionMonitor struct {
	inactivity storage.InactivityStore
	requests   storage.RequestStore
	scheduler  *Scheduler
	canceller  *CancellationHandler
	notifier   Notifier
	cfg        RetentionConfig
	clock      func() time.Time
}

// NewRetentionMonitor constructs a retention monitor.
func NewRetentionMonitor(inactivity storage.InactivityStore, requests storage.RequestStore, scheduler *Scheduler, canceller *CancellationHandler, notifier Notifier, cfg RetentionConfig, clock func() time.Time) *RetentionMonitor {
	if clock == nil {
		clock = time.Now
	}
	return &RetentionMonitor{
		inactivity: inactivity,
		requests:   requests,
		scheduler:  scheduler,
		canceller:  canceller,
		notifier:   notifier,
		cfg:        cfg.normalized(),
		clock:      clock,
	}
}

// RecordActivity marks an account active, resetting its warning ladder. If
// the retention monitor itself had already scheduled deletion, that request
// is withdrawn; user-initiated requests are left alone.
func (m *RetentionMonitor) RecordActivity(ctx context.Context, accountID string) error {
	if m == nil || m.inactivity == nil {
		return ErrStoreNotConfigured
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return ErrTargetIDRequired
	}
	now := m.clock().UTC()
	if err := m.inactivity.RecordActivity(ctx, accountID, now); err != nil {
		return fmt.Errorf("record account activity: %w", err)
	}
	if m.requests == nil || m.canceller == nil {
		return nil
	}
	active, err := m.requests.GetActiveRequestByTarget(ctx, storage.TargetAccount, accountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lookup active deletion request: %w", err)
	}
	if active.RequestedBy != SystemRequester {
		return nil
	}
	if _, err := m.canceller.Cancel(ctx, active.ID, SystemRequester); err != nil {
		// The execution engine may have claimed it between the lookup
		// and the cancel.
		if errors.Is(err, ErrAlreadyExecuted) {
			return nil
		}
		return fmt.Errorf("withdraw inactivity deletion request: %w", err)
	}
	return nil
}

// SweepOnce advances the warning ladder for every account idle long enough
// to have entered it, returning how many accounts were escalated to a
// deletion request.
func (m *RetentionMonitor) SweepOnce(ctx context.Context) (int, error) {
	if m == nil || m.inactivity == nil || m.scheduler == nil {
		return 0, ErrStoreNotConfigured
	}
	now := m.clock().UTC()
	cutoff := now.Add(-(m.cfg.InactivityLimit - m.cfg.MonthBeforeLead))
	records, err := m.inactivity.ListInactiveBefore(ctx, cutoff, m.cfg.ScanLimit)
	if err != nil {
		return 0, fmt.Errorf("list inactive accounts: %w", err)
	}
	escalated := 0
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return escalated, err
		}
		if record.CurrentTier == storage.TierScheduled {
			continue
		}
		scheduled, err := m.advance(ctx, record, now)
		if err != nil {
			log.Printf("advance inactivity ladder for %s: %v", record.AccountID, err)
			continue
		}
		if scheduled {
			escalated++
		}
	}
	return escalated, nil
}

func (m *RetentionMonitor) advance(ctx context.Context, record storage.InactivityRecord, now time.Time) (bool, error) {
	idle := now.Sub(record.LastActiveAt)
	if idle >= m.cfg.InactivityLimit {
		return true, m.schedule(ctx, record)
	}

	tier, ok := m.dueTier(idle)
	if !ok || record.CurrentTier == tier {
		return false, nil
	}
	if err := m.inactivity.AdvanceWarningTier(ctx, record.AccountID, tier, now); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Another sweep already sent this tier.
			return false, nil
		}
		return false, fmt.Errorf("advance warning tier: %w", err)
	}
	m.warn(ctx, record.AccountID, tier, record.LastActiveAt)
	return false, nil
}

// dueTier picks the most severe warning the idle duration has earned.
func (m *RetentionMonitor) dueTier(idle time.Duration) (storage.WarningTier, bool) {
	switch {
	case idle >= m.cfg.InactivityLimit-m.cfg.FinalLead:
		return storage.TierFinal, true
	case idle >= m.cfg.InactivityLimit-m.cfg.SevenDayLead:
		return storage.TierSevenDay, true
	case idle >= m.cfg.InactivityLimit-m.cfg.MonthBeforeLead:
		return storage.TierMonthBefore, true
	default:
		return storage.TierNone, false
	}
}

func (m *RetentionMonitor) schedule(ctx context.Context, record storage.InactivityRecord) error {
	_, err := m.scheduler.Create(ctx, CreateDeletionInput{
		TargetType:  string(storage.TargetAccount),
		TargetID:    record.AccountID,
		RequestedBy: SystemRequester,
		Reason:      "inactivity limit exceeded",
	})
	if err != nil {
		if errors.Is(err, ErrTargetNotFound) {
			// Account already gone; park the ladder so the sweep stops
			// revisiting it.
			return m.inactivity.SetTier(ctx, record.AccountID, storage.TierScheduled, m.clock().UTC())
		}
		return fmt.Errorf("schedule inactivity deletion: %w", err)
	}
	if err := m.inactivity.SetTier(ctx, record.AccountID, storage.TierScheduled, m.clock().UTC()); err != nil {
		return fmt.Errorf("mark inactivity ladder scheduled: %w", err)
	}
	return nil
}

func (m *RetentionMonitor) warn(ctx context.Context, accountID string, tier storage.WarningTier, lastActiveAt time.Time) {
	if m.notifier == nil {
		return
	}
	payload := map[string]string{
		"account_id":     accountID,
		"tier":           string(tier),
		"last_active_at": lastActiveAt.Format(time.RFC3339),
	}
	if err := m.notifier.Notify(ctx, KindInactivityWarning, accountID, payload); err != nil {
		log.Printf("notify inactivity warning (%s) for %s: %v", tier, accountID, err)
	}
}
