package service

import (
	"context"
	"time"

	"github.com/kaimoapp/kaimo/internal/clock"
	"github.com/kaimoapp/kaimo/internal/events"
	familydomain "github.com/kaimoapp/kaimo/internal/family/domain"
	obsmetrics "github.com/kaimoapp/kaimo/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// restoredPlanGraceDays is how long a restored paid plan stays valid before
// its own expiry kicks in.
const restoredPlanGraceDays = 30

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	clock    clock.Clock
	repo     familydomain.Repository
	notifier familydomain.Notifier
	bus      *events.Bus
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     familydomain.Repository
	Notifier familydomain.Notifier
	Bus      *events.Bus
}

func NewService(p ServiceParam) familydomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("family.service"),

		clock:    p.Clock,
		repo:     p.Repo,
		notifier: p.Notifier,
		bus:      p.Bus,
	}
}

// ApplyPlanToGroup implements domain.Service.
func (s *Service) ApplyPlanToGroup(ctx context.Context, familyID string) error {
	if familyID == "" {
		return familydomain.ErrFamilyIDRequired
	}

	family, err := s.repo.FindFamily(ctx, s.db, familyID)
	if err != nil {
		return err
	}
	if family == nil {
		return familydomain.ErrFamilyNotFound
	}

	memberIDs := family.MemberIDs()
	now := s.clock.Now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, memberID := range memberIDs {
			sub, err := s.repo.FindSubscriptionForUpdate(ctx, tx, memberID)
			if err != nil {
				return err
			}
			if sub == nil {
				sub = &familydomain.Subscription{UserID: memberID, PlanType: familydomain.PlanFree}
			}

			// Remember the plan the member is leaving, but never
			// clobber a previously recorded one.
			if sub.OriginalPlanType == "" && sub.PlanType != familydomain.PlanFamily {
				sub.OriginalPlanType = sub.PlanType
			}

			sub.PlanType = familydomain.PlanFamily
			sub.IsActive = true
			sub.ExpiryDate = nil
			sub.FamilyMembers = datatypes.JSONSlice[string](memberIDs)
			ownerID := family.OwnerID
			sub.FamilyOwnerID = &ownerID
			sub.FamilyOwnerActive = true
			sub.UpdatedAt = now

			if err := s.repo.SaveSubscription(ctx, tx, sub); err != nil {
				return err
			}

			user, err := s.repo.FindUser(ctx, tx, memberID)
			if err != nil {
				return err
			}
			if user == nil {
				user = &familydomain.User{ID: memberID, CreatedAt: now}
			}
			fid := family.ID
			user.FamilyID = &fid
			user.UpdatedAt = now
			if err := s.repo.SaveUser(ctx, tx, user); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("family plan applied to group",
		zap.String("family_id", familyID),
		zap.Int("member_count", len(memberIDs)),
	)
	return nil
}

// HandleSubscriptionChange implements domain.Service.
func (s *Service) HandleSubscriptionChange(ctx context.Context, before, after familydomain.Subscription) error {
	if before.PlanType != familydomain.PlanFamily || !before.IsActive || after.IsActive {
		return nil
	}

	s.log.Info("family plan deactivation detected",
		zap.String("owner_id", before.UserID),
		zap.Int("member_count", len(before.FamilyMembers)),
	)
	return s.RestoreMembers(ctx, before.UserID, before.FamilyMembers)
}

// RestoreMembers implements domain.Service.
func (s *Service) RestoreMembers(ctx context.Context, ownerID string, memberIDs []string) error {
	now := s.clock.Now()

	var notificationTargets []string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, memberID := range memberIDs {
			if memberID == ownerID {
				continue
			}

			sub, err := s.repo.FindSubscriptionForUpdate(ctx, tx, memberID)
			if err != nil {
				return err
			}
			if sub == nil {
				s.log.Warn("member subscription missing", zap.String("member_id", memberID))
				continue
			}
			if sub.PlanType != familydomain.PlanFamily && len(sub.FamilyMembers) == 0 {
				// Already restored by an earlier invocation.
				continue
			}

			s.restoreSubscription(sub, now)
			if err := s.repo.SaveSubscription(ctx, tx, sub); err != nil {
				return err
			}
			notificationTargets = append(notificationTargets, memberID)

			s.log.Info("member plan restored",
				zap.String("member_id", memberID),
				zap.String("plan_type", string(sub.PlanType)),
			)
		}

		owner, err := s.repo.FindSubscriptionForUpdate(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		if owner == nil {
			owner = &familydomain.Subscription{UserID: ownerID}
		}
		owner.PlanType = familydomain.PlanFree
		owner.IsActive = false
		owner.ExpiryDate = nil
		owner.FamilyMembers = datatypes.JSONSlice[string]{}
		owner.FamilyOwnerID = nil
		owner.FamilyOwnerActive = false
		owner.UpdatedAt = now
		return s.repo.SaveSubscription(ctx, tx, owner)
	})
	if err != nil {
		return err
	}

	// Notices go out once the restoration is committed; a failed send is
	// logged and never undoes the restoration itself.
	for _, memberID := range notificationTargets {
		if err := s.notifier.FamilyPlanExpired(ctx, memberID, ownerID); err != nil {
			s.log.Error("expiration notice failed",
				zap.String("member_id", memberID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// restoreSubscription rewrites one member record back to its pre-family
// plan. Free restores deactivate with no expiry; paid restores get a fresh
// grace window.
func (s *Service) restoreSubscription(sub *familydomain.Subscription, now time.Time) {
	original := sub.OriginalPlanType
	if original == "" {
		original = familydomain.PlanFree
	}

	sub.PlanType = original
	sub.IsActive = original != familydomain.PlanFree
	if original != familydomain.PlanFree {
		expiry := now.AddDate(0, 0, restoredPlanGraceDays)
		sub.ExpiryDate = &expiry
	} else {
		sub.ExpiryDate = nil
	}
	sub.FamilyMembers = datatypes.JSONSlice[string]{}
	sub.FamilyOwnerID = nil
	sub.FamilyOwnerActive = false
	sub.UpdatedAt = now
}

// Dissolve implements domain.Service.
func (s *Service) Dissolve(ctx context.Context, callerID, familyID string) error {
	if familyID == "" {
		return familydomain.ErrFamilyIDRequired
	}

	family, err := s.repo.FindFamily(ctx, s.db, familyID)
	if err != nil {
		return err
	}
	if family == nil {
		return familydomain.ErrFamilyNotFound
	}
	if family.OwnerID != callerID {
		return familydomain.ErrNotOwner
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		family.IsActive = false
		family.DissolvedAt = &now
		family.UpdatedAt = now
		if err := s.repo.SaveFamily(ctx, tx, family); err != nil {
			return err
		}

		for _, memberID := range family.MemberIDs() {
			if err := s.repo.ClearFamilyPointer(ctx, tx, memberID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("family dissolved",
		zap.String("family_id", familyID),
		zap.String("owner_id", callerID),
	)
	return nil
}

// RemoveMember implements domain.Service.
func (s *Service) RemoveMember(ctx context.Context, callerID, familyID, memberID string) error {
	if familyID == "" {
		return familydomain.ErrFamilyIDRequired
	}
	if memberID == "" {
		return familydomain.ErrMemberIDRequired
	}

	family, err := s.repo.FindFamily(ctx, s.db, familyID)
	if err != nil {
		return err
	}
	if family == nil {
		return familydomain.ErrFamilyNotFound
	}
	if family.OwnerID != callerID {
		return familydomain.ErrNotOwner
	}

	members := family.Members.Data()
	found := false
	for i := range members {
		if members[i].ID == memberID {
			found = true
			members[i].IsActive = false
		}
	}
	if !found {
		return familydomain.ErrMemberNotFound
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		family.Members = datatypes.NewJSONType(members)
		family.UpdatedAt = now
		if err := s.repo.SaveFamily(ctx, tx, family); err != nil {
			return err
		}

		if err := s.repo.ClearFamilyPointer(ctx, tx, memberID); err != nil {
			return err
		}

		sub, err := s.repo.FindSubscriptionForUpdate(ctx, tx, memberID)
		if err != nil {
			return err
		}
		if sub == nil {
			return nil
		}

		restored := sub.AutoUpgradedFrom
		if restored == "" {
			restored = familydomain.PlanFree
		}
		sub.PlanType = restored
		sub.IsActive = restored != familydomain.PlanFree
		if restored != familydomain.PlanFree {
			expiry := now.AddDate(0, 0, restoredPlanGraceDays)
			sub.ExpiryDate = &expiry
		} else {
			sub.ExpiryDate = nil
		}
		sub.AutoUpgradedFrom = ""
		sub.FamilyMembers = datatypes.JSONSlice[string]{}
		sub.FamilyOwnerID = nil
		sub.FamilyOwnerActive = false
		sub.UpdatedAt = now
		return s.repo.SaveSubscription(ctx, tx, sub)
	})
	if err != nil {
		return err
	}

	s.log.Info("family member removed",
		zap.String("family_id", familyID),
		zap.String("member_id", memberID),
	)
	return nil
}

// SweepExpired implements domain.Service.
func (s *Service) SweepExpired(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()

	expired, err := s.repo.FindExpiredFamilySubscriptions(ctx, s.db, now, limit)
	if err != nil {
		return 0, err
	}
	// Deactivation and restoration commit separately, so a crash between
	// the two leaves an inactive family row with its member list intact.
	// Pick those up here; RestoreMembers is idempotent.
	stranded, err := s.repo.FindStrandedFamilySubscriptions(ctx, s.db, limit)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 && len(stranded) == 0 {
		return 0, nil
	}

	s.log.Info("expired family plans found",
		zap.Int("expired", len(expired)),
		zap.Int("stranded", len(stranded)),
	)

	swept := 0
	for i := range stranded {
		sub := stranded[i]
		if err := s.RestoreMembers(ctx, sub.UserID, sub.FamilyMembers); err != nil {
			s.log.Error("member restoration failed",
				zap.String("owner_id", sub.UserID),
				zap.Error(err),
			)
			continue
		}
		swept++
	}
	for i := range expired {
		sub := expired[i]

		sub.IsActive = false
		sub.UpdatedAt = now
		if err := s.repo.SaveSubscription(ctx, s.db, &sub); err != nil {
			s.log.Error("failed to deactivate expired plan",
				zap.String("owner_id", sub.UserID),
				zap.Error(err),
			)
			continue
		}

		if err := s.RestoreMembers(ctx, sub.UserID, sub.FamilyMembers); err != nil {
			s.log.Error("member restoration failed",
				zap.String("owner_id", sub.UserID),
				zap.Error(err),
			)
			continue
		}
		swept++
	}

	obsmetrics.Scheduler().AddSwept(swept)
	return swept, nil
}
