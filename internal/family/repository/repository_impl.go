package repository

import (
	"context"
	"errors"
	"time"

	familydomain "github.com/kaimoapp/kaimo/internal/family/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() familydomain.Repository {
	return &repo{}
}

func (r *repo) FindFamily(ctx context.Context, db *gorm.DB, id string) (*familydomain.Family, error) {
	var family familydomain.Family
	err := db.WithContext(ctx).Where("id = ?", id).Take(&family).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &family, nil
}

func (r *repo) SaveFamily(ctx context.Context, db *gorm.DB, family *familydomain.Family) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(family).Error
}

func (r *repo) FindUser(ctx context.Context, db *gorm.DB, id string) (*familydomain.User, error) {
	var user familydomain.User
	err := db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repo) SaveUser(ctx context.Context, db *gorm.DB, user *familydomain.User) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(user).Error
}

func (r *repo) ClearFamilyPointer(ctx context.Context, db *gorm.DB, userID string) error {
	return db.WithContext(ctx).
		Model(&familydomain.User{}).
		Where("id = ?", userID).
		Update("family_id", nil).Error
}

func (r *repo) FindSubscription(ctx context.Context, db *gorm.DB, userID string) (*familydomain.Subscription, error) {
	return findSubscription(ctx, db, userID, false)
}

func (r *repo) FindSubscriptionForUpdate(ctx context.Context, db *gorm.DB, userID string) (*familydomain.Subscription, error) {
	return findSubscription(ctx, db, userID, true)
}

func findSubscription(ctx context.Context, db *gorm.DB, userID string, forUpdate bool) (*familydomain.Subscription, error) {
	q := db.WithContext(ctx)
	if forUpdate && db.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var subscription familydomain.Subscription
	err := q.Where("user_id = ?", userID).Take(&subscription).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &subscription, nil
}

func (r *repo) SaveSubscription(ctx context.Context, db *gorm.DB, subscription *familydomain.Subscription) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(subscription).Error
}

// FindStrandedFamilySubscriptions returns family rows that were deactivated
// but never restored to their original plans. Restoration rewrites the plan
// type, so an inactive family row is always a pending restoration.
func (r *repo) FindStrandedFamilySubscriptions(ctx context.Context, db *gorm.DB, limit int) ([]familydomain.Subscription, error) {
	var subscriptions []familydomain.Subscription
	q := db.WithContext(ctx).
		Where("plan_type = ?", familydomain.PlanFamily).
		Where("is_active = ?", false).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&subscriptions).Error; err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repo) FindExpiredFamilySubscriptions(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]familydomain.Subscription, error) {
	var subscriptions []familydomain.Subscription
	q := db.WithContext(ctx).
		Where("plan_type = ?", familydomain.PlanFamily).
		Where("is_active = ?", true).
		Where("expiry_date IS NOT NULL AND expiry_date < ?", now).
		Order("expiry_date ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&subscriptions).Error; err != nil {
		return nil, err
	}
	return subscriptions, nil
}
