package service

import (
	"context"

	"github.com/kaimoapp/kaimo/internal/events"
	familydomain "github.com/kaimoapp/kaimo/internal/family/domain"
	"go.uber.org/zap"
)

// CreateFamily implements domain.Service.
func (s *Service) CreateFamily(ctx context.Context, family familydomain.Family) error {
	if family.ID == "" {
		return familydomain.ErrFamilyIDRequired
	}
	if family.OwnerID == "" {
		return familydomain.ErrOwnerIDRequired
	}

	now := s.clock.Now()
	family.IsActive = true
	family.DissolvedAt = nil
	if family.CreatedAt.IsZero() {
		family.CreatedAt = now
	}
	family.UpdatedAt = now

	if err := s.repo.SaveFamily(ctx, s.db, &family); err != nil {
		return err
	}

	s.log.Info("family created",
		zap.String("family_id", family.ID),
		zap.String("owner_id", family.OwnerID),
	)
	s.bus.PublishFamilyCreated(ctx, events.FamilyCreated{FamilyID: family.ID})
	return nil
}

// UpdateSubscription implements domain.Service.
func (s *Service) UpdateSubscription(ctx context.Context, subscription familydomain.Subscription) error {
	if subscription.UserID == "" {
		return familydomain.ErrUserIDRequired
	}

	before, err := s.repo.FindSubscription(ctx, s.db, subscription.UserID)
	if err != nil {
		return err
	}
	if before == nil {
		before = &familydomain.Subscription{UserID: subscription.UserID}
	}

	subscription.UpdatedAt = s.clock.Now()
	if err := s.repo.SaveSubscription(ctx, s.db, &subscription); err != nil {
		return err
	}

	s.bus.PublishSubscriptionUpdated(ctx, events.SubscriptionUpdated{Before: *before, After: subscription})
	return nil
}
