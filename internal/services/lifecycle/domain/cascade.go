package domain

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fableforge/fableforge/internal/services/lifecycle/storage"
)

// EntityType identifies the kind of entity one plan step acts on.
type EntityType string

const (
	// EntityTransfer is a pending cross-account story transfer.
	EntityTransfer EntityType = "transfer"
	// EntityPushToken is a device push registration.
	EntityPushToken EntityType = "push_token"
	// EntityWebhook is an integrator webhook registration.
	EntityWebhook EntityType = "webhook_registration"
	// EntityConversationAsset is one generated conversation artifact.
	EntityConversationAsset EntityType = "conversation_asset"
	// EntityConversationSession is one conversation session.
	EntityConversationSession EntityType = "conversation_session"
	// EntityStory is one story.
	EntityStory EntityType = "story"
	// EntityGeneratedAssets is the best-effort generated-asset cleanup for
	// one story.
	EntityGeneratedAssets EntityType = "generated_assets"
	// EntityStoryCharacter is the character reference inside one story.
	EntityStoryCharacter EntityType = "story_character"
	// EntityCharacter is one character.
	EntityCharacter EntityType = "character"
	// EntityLibrary is one library.
	EntityLibrary EntityType = "library"
	// EntityLibraryMember is one library membership grant.
	EntityLibraryMember EntityType = "library_member"
	// EntityAccount is the account itself.
	EntityAccount EntityType = "account"
)

// Action identifies what a plan step does to its entity.
type Action string

const (
	// ActionDelete removes the entity outright.
	ActionDelete Action = "delete"
	// ActionDetach severs a relationship without deleting content. On a
	// transfer it rejects the transfer; on an account it hibernates.
	ActionDetach Action = "detach"
)

// PlanStep is one ordered unit of cascade work. RelatedID carries the
// second identity for relationship steps, such as the character removed
// from a story.
type PlanStep struct {
	Entity    EntityType
	EntityID  string
	RelatedID string
	Action    Action
}

// CascadeResolver computes deterministic, children-before-parents cleanup
// plans against the current state of the entity graph. Resolving again
// after partial execution yields only the remaining work.
type CascadeResolver struct {
	entities storage.EntityStore
}

// NewCascadeResolver constructs a cascade resolver.
func NewCascadeResolver(entities storage.EntityStore) *CascadeResolver {
	return &CascadeResolver{entities: entities}
}

// Resolve builds the execution plan for one target under a validated
// policy. Listings are sorted so identical inputs always produce
// identical plans.
func (r *CascadeResolver) Resolve(ctx context.Context, target storage.TargetType, targetID string, policy CascadePolicy) ([]PlanStep, error) {
	if r == nil || r.entities == nil {
		return nil, ErrStoreNotConfigured
	}
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return nil, ErrTargetIDRequired
	}
	switch target {
	case storage.TargetAccount:
		return r.resolveAccount(ctx, targetID, policy)
	case storage.TargetStory:
		return r.resolveStory(ctx, targetID)
	case storage.TargetCharacter:
		return r.resolveCharacter(ctx, targetID, policy)
	case storage.TargetLibraryMember:
		return r.resolveLibraryMember(ctx, targetID)
	case storage.TargetConversationAsset:
		return r.resolveConversationAsset(ctx, targetID)
	default:
		return nil, ErrInvalidTargetType
	}
}

func (r *CascadeResolver) resolveAccount(ctx context.Context, accountID string, policy CascadePolicy) ([]PlanStep, error) {
	account, err := r.entities.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if account.Status == storage.AccountDeleted {
		return nil, nil
	}

	var plan []PlanStep
	transfers, err := r.entities.ListPendingTransfers(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list pending transfers: %w", err)
	}
	sort.Strings(transfers)
	for _, transferID := range transfers {
		plan = append(plan, PlanStep{Entity: EntityTransfer, EntityID: transferID, Action: ActionDetach})
	}

	if policy.AccountMode != storage.AccountModePurge {
		if account.Status != storage.AccountHibernated {
			plan = append(plan, PlanStep{Entity: EntityAccount, EntityID: accountID, Action: ActionDetach})
		}
		return plan, nil
	}

	pushTokens, err := r.entities.ListPushTokens(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list push tokens: %w", err)
	}
	sort.Strings(pushTokens)
	for _, tokenID := range pushTokens {
		plan = append(plan, PlanStep{Entity: EntityPushToken, EntityID: tokenID, Action: ActionDelete})
	}

	webhooks, err := r.entities.ListWebhookRegistrations(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list webhook registrations: %w", err)
	}
	sort.Strings(webhooks)
	for _, webhookID := range webhooks {
		plan = append(plan, PlanStep{Entity: EntityWebhook, EntityID: webhookID, Action: ActionDelete})
	}

	sessions, err := r.entities.ListConversationSessions(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list conversation sessions: %w", err)
	}
	sort.Strings(sessions)
	for _, sessionID := range sessions {
		assets, err := r.entities.ListConversationAssets(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("list conversation assets: %w", err)
		}
		sort.Strings(assets)
		for _, assetID := range assets {
			plan = append(plan, PlanStep{Entity: EntityConversationAsset, EntityID: assetID, Action: ActionDelete})
		}
		plan = append(plan, PlanStep{Entity: EntityConversationSession, EntityID: sessionID, Action: ActionDelete})
	}

	stories, err := r.entities.ListOwnedStories(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list owned stories: %w", err)
	}
	sort.Strings(stories)
	for _, storyID := range stories {
		plan = append(plan, storySteps(storyID)...)
	}

	characters, err := r.entities.ListOwnedCharacters(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list owned characters: %w", err)
	}
	sort.Strings(characters)
	for _, characterID := range characters {
		referencing, err := r.entities.ListStoriesWithCharacter(ctx, characterID)
		if err != nil {
			return nil, fmt.Errorf("list stories with character: %w", err)
		}
		sort.Strings(referencing)
		for _, storyID := range referencing {
			plan = append(plan, PlanStep{Entity: EntityStoryCharacter, EntityID: storyID, RelatedID: characterID, Action: ActionDetach})
		}
		plan = append(plan, PlanStep{Entity: EntityCharacter, EntityID: characterID, Action: ActionDelete})
	}

	memberships, err := r.entities.ListLibraryMemberships(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list library memberships: %w", err)
	}
	sort.Slice(memberships, func(i, j int) bool { return memberships[i].LibraryID < memberships[j].LibraryID })
	for _, membership := range memberships {
		if membership.Owner && !membership.Shared {
			plan = append(plan, PlanStep{Entity: EntityLibrary, EntityID: membership.LibraryID, Action: ActionDelete})
			continue
		}
		// Shared content survives; only the grant goes.
		plan = append(plan, PlanStep{Entity: EntityLibraryMember, EntityID: membership.MembershipID, Action: ActionDetach})
	}

	plan = append(plan, PlanStep{Entity: EntityAccount, EntityID: accountID, Action: ActionDelete})
	return plan, nil
}

func (r *CascadeResolver) resolveStory(ctx context.Context, storyID string) ([]PlanStep, error) {
	exists, err := r.entities.StoryExists(ctx, storyID)
	if err != nil {
		return nil, fmt.Errorf("lookup story: %w", err)
	}
	if !exists {
		return nil, nil
	}
	return storySteps(storyID), nil
}

func (r *CascadeResolver) resolveCharacter(ctx context.Context, characterID string, policy CascadePolicy) ([]PlanStep, error) {
	exists, err := r.entities.CharacterExists(ctx, characterID)
	if err != nil {
		return nil, fmt.Errorf("lookup character: %w", err)
	}
	if !exists {
		return nil, nil
	}

	var plan []PlanStep
	if policy.CharacterStories != storage.StoryModeRetain {
		referencing, err := r.entities.ListStoriesWithCharacter(ctx, characterID)
		if err != nil {
			return nil, fmt.Errorf("list stories with character: %w", err)
		}
		sort.Strings(referencing)
		for _, storyID := range referencing {
			if policy.CharacterStories == storage.StoryModeDelete {
				plan = append(plan, storySteps(storyID)...)
				continue
			}
			plan = append(plan, PlanStep{Entity: EntityStoryCharacter, EntityID: storyID, RelatedID: characterID, Action: ActionDetach})
		}
	}
	plan = append(plan, PlanStep{Entity: EntityCharacter, EntityID: characterID, Action: ActionDelete})
	return plan, nil
}

func (r *CascadeResolver) resolveLibraryMember(ctx context.Context, membershipID string) ([]PlanStep, error) {
	exists, err := r.entities.MembershipExists(ctx, membershipID)
	if err != nil {
		return nil, fmt.Errorf("lookup library membership: %w", err)
	}
	if !exists {
		return nil, nil
	}
	return []PlanStep{{Entity: EntityLibraryMember, EntityID: membershipID, Action: ActionDetach}}, nil
}

func (r *CascadeResolver) resolveConversationAsset(ctx context.Context, assetID string) ([]PlanStep, error) {
	exists, err := r.entities.ConversationAssetExists(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("lookup conversation asset: %w", err)
	}
	if !exists {
		return nil, nil
	}
	return []PlanStep{{Entity: EntityConversationAsset, EntityID: assetID, Action: ActionDelete}}, nil
}

// storySteps orders one story's cleanup: sever collection/favorite/tag
// links, queue best-effort asset cleanup, then delete the row.
func storySteps(storyID string) []PlanStep {
	return []PlanStep{
		{Entity: EntityStory, EntityID: storyID, Action: ActionDetach},
		{Entity: EntityGeneratedAssets, EntityID: storyID, Action: ActionDetach},
		{Entity: EntityStory, EntityID: storyID, Action: ActionDelete},
	}
}
