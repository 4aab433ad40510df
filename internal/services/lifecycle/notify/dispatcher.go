package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fableforge/fableforge/internal/services/lifecycle/storage"
)

// Sender delivers one notification to its transport. Implementations must
// tolerate redelivery; the outbox guarantees at-least-once, not exactly-once.
type Sender interface {
	Send(ctx context.Context, notification storage.NotificationRecord) error
}

// LogSender writes notifications to the process log. It stands in for a
// real email or push transport in development and tests.
type LogSender struct{}

// Send logs the notification and reports success.
func (LogSender) Send(_ context.Context, notification storage.NotificationRecord) error {
	log.Printf("notify %s -> %s: %s", notification.Kind, notification.RecipientID, notification.PayloadJSON)
	return nil
}

// DispatcherConfig tunes delivery retry behavior.
type DispatcherConfig struct {
	// MaxAttempts bounds delivery attempts before a notification is dead.
	MaxAttempts int
	// RetryBackoff is the base delay between attempts, doubled each retry.
	RetryBackoff time.Duration
	// BatchLimit bounds how many due deliveries one pass claims.
	BatchLimit int
}

func (c DispatcherConfig) normalized() DispatcherConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Minute
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 50
	}
	return c
}

// Dispatcher drains due deliveries from the outbox and hands them to the
// sender, recording retries with exponential spacing.
type Dispatcher struct {
	store  storage.NotificationStore
	sender Sender
	cfg    DispatcherConfig
	clock  func() time.Time
}

// NewDispatcher constructs a notification dispatcher.
func NewDispatcher(store storage.NotificationStore, sender Sender, cfg DispatcherConfig, clock func() time.Time) *Dispatcher {
	if clock == nil {
		clock = time.Now
	}
	return &Dispatcher{store: store, sender: sender, cfg: cfg.normalized(), clock: clock}
}

// DispatchOnce sends every due delivery, returning how many were delivered.
// Individual failures are recorded for retry and do not stop the pass.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	if d == nil || d.store == nil || d.sender == nil {
		return 0, ErrQueueNotConfigured
	}
	now := d.clock().UTC()
	due, err := d.store.ListDueDeliveries(ctx, now, d.cfg.BatchLimit)
	if err != nil {
		return 0, fmt.Errorf("list due deliveries: %w", err)
	}
	delivered := 0
	for _, delivery := range due {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		if err := d.dispatch(ctx, delivery); err != nil {
			log.Printf("dispatch notification %s: %v", delivery.NotificationID, err)
			continue
		}
		delivered++
	}
	return delivered, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, delivery storage.DeliveryRecord) error {
	notification, err := d.store.GetNotification(ctx, delivery.NotificationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			if markErr := d.store.MarkDeliveryDead(ctx, delivery.NotificationID, d.clock().UTC(), "notification record missing"); markErr != nil {
				return fmt.Errorf("mark orphan delivery dead: %w", markErr)
			}
			return errors.New("notification record missing")
		}
		return fmt.Errorf("load notification: %w", err)
	}

	sendErr := d.sender.Send(ctx, notification)
	now := d.clock().UTC()
	if sendErr == nil {
		if err := d.store.MarkDeliveryDelivered(ctx, notification.ID, now); err != nil {
			return fmt.Errorf("mark delivery delivered: %w", err)
		}
		return nil
	}

	attempts := delivery.AttemptCount + 1
	if attempts >= d.cfg.MaxAttempts {
		if err := d.store.MarkDeliveryDead(ctx, notification.ID, now, sendErr.Error()); err != nil {
			return fmt.Errorf("mark delivery dead: %w", err)
		}
		return fmt.Errorf("delivery exhausted after %d attempts: %w", attempts, sendErr)
	}
	nextAttempt := now.Add(d.cfg.RetryBackoff << (attempts - 1))
	if err := d.store.MarkDeliveryRetry(ctx, notification.ID, attempts, nextAttempt, sendErr.Error()); err != nil {
		return fmt.Errorf("mark delivery retry: %w", err)
	}
	return fmt.Errorf("send attempt %d failed: %w", attempts, sendErr)
}
