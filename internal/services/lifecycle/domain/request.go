// Package domain implements the deletion and retention lifecycle: request
// scheduling, confirmation, cancellation, cascade resolution, execution,
// inactivity escalation, and guardian consent.
package domain

import (
	"strings"
	"time"

	"github.com/fableforge/fableforge/internal/services/lifecycle/storage"
)

// SystemRequester identifies lifecycle actions initiated by the platform
// itself rather than a user, such as inactivity-driven deletions.
const SystemRequester = "system"

// ParseTargetType converts a target type label into its canonical value.
func ParseTargetType(label string) (storage.TargetType, error) {
	switch storage.TargetType(strings.TrimSpace(label)) {
	case storage.TargetAccount:
		return storage.TargetAccount, nil
	case storage.TargetStory:
		return storage.TargetStory, nil
	case storage.TargetCharacter:
		return storage.TargetCharacter, nil
	case storage.TargetLibraryMember:
		return storage.TargetLibraryMember, nil
	case storage.TargetConversationAsset:
		return storage.TargetConversationAsset, nil
	default:
		return "", ErrInvalidTargetType
	}
}

// CascadePolicyInput carries the caller-facing cascade flags before they
// are narrowed into a per-target policy.
type CascadePolicyInput struct {
	// DeleteStories cascades character deletion to referencing stories.
	DeleteStories bool
	// RemoveFromStories nulls the character reference in referencing
	// stories instead of deleting them.
	RemoveFromStories bool
	// Purge skips the reversible hibernation branch for account targets.
	Purge bool
}

// CascadePolicy is the validated, per-target cascade configuration. Only
// the fields relevant to Target carry meaning.
type CascadePolicy struct {
	Target           storage.TargetType
	AccountMode      storage.AccountMode
	CharacterStories storage.StoryMode
}

// ResolveCascadePolicy narrows raw cascade flags into the policy for one
// target type. Flags that do not apply to the target are rejected rather
// than ignored, and the two character flags are mutually exclusive.
func ResolveCascadePolicy(target storage.TargetType, input CascadePolicyInput) (CascadePolicy, error) {
	policy := CascadePolicy{Target: target}
	switch target {
	case storage.TargetAccount:
		if input.DeleteStories || input.RemoveFromStories {
			return CascadePolicy{}, ErrInvalidCascadePolicy
		}
		policy.AccountMode = storage.AccountModeHibernateFirst
		if input.Purge {
			policy.AccountMode = storage.AccountModePurge
		}
	case storage.TargetCharacter:
		if input.Purge {
			return CascadePolicy{}, ErrInvalidCascadePolicy
		}
		if input.DeleteStories && input.RemoveFromStories {
			return CascadePolicy{}, ErrInvalidCascadePolicy
		}
		switch {
		case input.DeleteStories:
			policy.CharacterStories = storage.StoryModeDelete
		case input.RemoveFromStories:
			policy.CharacterStories = storage.StoryModeDetach
		default:
			policy.CharacterStories = storage.StoryModeRetain
		}
	case storage.TargetStory, storage.TargetLibraryMember, storage.TargetConversationAsset:
		if input.DeleteStories || input.RemoveFromStories || input.Purge {
			return CascadePolicy{}, ErrInvalidCascadePolicy
		}
	default:
		return CascadePolicy{}, ErrInvalidTargetType
	}
	return policy, nil
}

// PolicyFromRecord rebuilds the validated policy persisted on a request.
func PolicyFromRecord(record storage.DeletionRequestRecord) CascadePolicy {
	return CascadePolicy{
		Target:           record.TargetType,
		AccountMode:      record.AccountMode,
		CharacterStories: record.CharacterStories,
	}
}

// GracePeriods configures the per-target interval between a deletion
// request and its earliest allowed execution.
type GracePeriods struct {
	Account           time.Duration
	Story             time.Duration
	Character         time.Duration
	LibraryMember     time.Duration
	ConversationAsset time.Duration
}

// DefaultGracePeriods returns the platform defaults: 30 days for accounts,
// 7 days for everything else.
func DefaultGracePeriods() GracePeriods {
	return GracePeriods{
		Account:           30 * 24 * time.Hour,
		Story:             7 * 24 * time.Hour,
		Character:         7 * 24 * time.Hour,
		LibraryMember:     7 * 24 * time.Hour,
		ConversationAsset: 7 * 24 * time.Hour,
	}
}

// For returns the grace period configured for a target type.
func (g GracePeriods) For(target storage.TargetType) time.Duration {
	switch target {
	case storage.TargetAccount:
		return g.Account
	case storage.TargetStory:
		return g.Story
	case storage.TargetCharacter:
		return g.Character
	case storage.TargetLibraryMember:
		return g.LibraryMember
	case storage.TargetConversationAsset:
		return g.ConversationAsset
	default:
		return 0
	}
}
