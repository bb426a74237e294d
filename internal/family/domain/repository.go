package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Repository is the persistence surface for families, users, and
// subscriptions. Every method takes the handle it should run on so callers
// control transaction scope.
type Repository interface {
	FindFamily(ctx context.Context, db *gorm.DB, id string) (*Family, error)
	SaveFamily(ctx context.Context, db *gorm.DB, family *Family) error

	FindUser(ctx context.Context, db *gorm.DB, id string) (*User, error)
	SaveUser(ctx context.Context, db *gorm.DB, user *User) error
	ClearFamilyPointer(ctx context.Context, db *gorm.DB, userID string) error

	FindSubscription(ctx context.Context, db *gorm.DB, userID string) (*Subscription, error)
	// FindSubscriptionForUpdate locks the row for the duration of the
	// surrounding transaction on dialects that support it.
	FindSubscriptionForUpdate(ctx context.Context, db *gorm.DB, userID string) (*Subscription, error)
	SaveSubscription(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindExpiredFamilySubscriptions(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Subscription, error)
	FindStrandedFamilySubscriptions(ctx context.Context, db *gorm.DB, limit int) ([]Subscription, error)
}
