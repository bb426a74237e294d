package domain

import (
	"context"
	"errors"
)

var (
	ErrFamilyIDRequired = errors.New("family id is required")
	ErrOwnerIDRequired  = errors.New("owner id is required")
	ErrUserIDRequired   = errors.New("user id is required")
	ErrMemberIDRequired = errors.New("member id is required")
	ErrFamilyNotFound   = errors.New("family not found")
	ErrMemberNotFound   = errors.New("member not found in family")
	ErrNotOwner         = errors.New("caller is not the family owner")
)

// Service drives the family plan lifecycle: applying the shared plan on
// creation, restoring members when it lapses, and the manual owner
// operations.
type Service interface {
	// CreateFamily persists a new family record and announces its
	// creation on the change bus.
	CreateFamily(ctx context.Context, family Family) error

	// UpdateSubscription rewrites one user's subscription record and
	// announces the before/after pair on the change bus.
	UpdateSubscription(ctx context.Context, subscription Subscription) error

	// ApplyPlanToGroup upserts every listed member onto the family plan.
	// Re-application is idempotent and never overwrites a recorded
	// original plan.
	ApplyPlanToGroup(ctx context.Context, familyID string) error

	// HandleSubscriptionChange inspects a before/after pair and, when an
	// active family plan flipped inactive, restores the other members.
	HandleSubscriptionChange(ctx context.Context, before, after Subscription) error

	// RestoreMembers returns each member to their pre-family plan and
	// forces the owner's record to free/inactive. Safe to re-run.
	RestoreMembers(ctx context.Context, ownerID string, memberIDs []string) error

	// Dissolve deactivates a family and detaches every member. Owner only.
	Dissolve(ctx context.Context, callerID, familyID string) error

	// RemoveMember soft-removes one member and restores their plan.
	// Owner only.
	RemoveMember(ctx context.Context, callerID, familyID, memberID string) error

	// SweepExpired deactivates lapsed family plans and runs member
	// restoration for each. Returns the number of plans swept.
	SweepExpired(ctx context.Context, limit int) (int, error)
}

// Notifier delivers user-facing notices about plan changes. Delivery is
// best-effort from the caller's point of view.
type Notifier interface {
	FamilyPlanExpired(ctx context.Context, memberID, ownerID string) error
}
