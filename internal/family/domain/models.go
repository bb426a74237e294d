// Package domain contains persistence models for families and member
// subscriptions.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// PlanType represents a subscription tier.
type PlanType string

const (
	PlanFree   PlanType = "free"
	PlanPaid   PlanType = "paid"
	PlanFamily PlanType = "family"
)

// User is the account record; FamilyID points at the family the user
// currently belongs to, if any.
type User struct {
	ID        string    `gorm:"primaryKey"`
	FamilyID  *string   `gorm:"index"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Subscription is the per-user plan record. Original* fields remember the
// plan a member held before joining a family so expiry can restore it.
type Subscription struct {
	UserID            string                      `gorm:"primaryKey"`
	PlanType          PlanType                    `gorm:"type:text;not null"`
	IsActive          bool                        `gorm:"not null;default:false"`
	ExpiryDate        *time.Time                  `gorm:""`
	OriginalPlanType  PlanType                    `gorm:"type:text"`
	OriginalPlan      datatypes.JSONMap           `gorm:"type:jsonb"`
	AutoUpgradedFrom  PlanType                    `gorm:"type:text"`
	FamilyMembers     datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	FamilyOwnerID     *string                     `gorm:""`
	FamilyOwnerActive bool                        `gorm:"not null;default:false"`
	UpdatedAt         time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// Member is one entry in a family's member list.
type Member struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	IsActive bool   `json:"isActive"`
}

// Family groups members under one owner. Members are soft-removed: the list
// keeps every member ever added, flagged inactive on removal.
type Family struct {
	ID      string                       `gorm:"primaryKey"`
	OwnerID string                       `gorm:"not null;index"`
	Members datatypes.JSONType[[]Member] `gorm:"type:jsonb"`
	// No default tag here: gorm drops zero-valued defaulted columns from
	// the upsert column list, which would make IsActive=false unsaveable.
	IsActive    bool       `gorm:"not null"`
	DissolvedAt *time.Time `gorm:""`
	CreatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Family) TableName() string { return "families" }

// MemberIDs returns the ids of every listed member, including inactive ones.
func (f *Family) MemberIDs() []string {
	members := f.Members.Data()
	ids := make([]string, 0, len(members))
	for _, m := range members {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids
}
