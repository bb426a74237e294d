// Package notification stores user-facing notices.
package notification

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kaimoapp/kaimo/internal/clock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TypeFamilyPlanExpired marks a notice sent when a member's family plan
// lapsed and their previous plan was restored.
const TypeFamilyPlanExpired = "family_plan_expired"

const (
	familyExpiredTitle   = "ファミリープランの期限が切れました"
	familyExpiredMessage = "参加していたファミリープランの期限が切れたため、元のプランに戻りました。"
)

// Notification is one inbox entry for a user.
type Notification struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UserID    string       `gorm:"not null;index"`
	Type      string       `gorm:"type:text;not null"`
	Title     string       `gorm:"type:text;not null"`
	Message   string       `gorm:"type:text;not null"`
	OwnerID   string       `gorm:"type:text"`
	IsRead    bool         `gorm:"not null;default:false"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Notification) TableName() string { return "notifications" }

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(db *gorm.DB, log *zap.Logger, genID *snowflake.Node, clk clock.Clock) *Service {
	return &Service{
		db:    db,
		log:   log.Named("notification"),
		genID: genID,
		clock: clk,
	}
}

// FamilyPlanExpired writes one expiry notice for a restored member.
func (s *Service) FamilyPlanExpired(ctx context.Context, memberID, ownerID string) error {
	n := Notification{
		ID:        s.genID.Generate(),
		UserID:    memberID,
		Type:      TypeFamilyPlanExpired,
		Title:     familyExpiredTitle,
		Message:   familyExpiredMessage,
		OwnerID:   ownerID,
		CreatedAt: s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		return err
	}

	s.log.Info("family expiration notice stored",
		zap.String("member_id", memberID),
		zap.String("owner_id", ownerID),
	)
	return nil
}
