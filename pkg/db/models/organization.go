package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Organization is the tenant that owns members, plans, and memberships.
type Organization struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name             string    `gorm:"column:name;not null"`
	Slug             string    `gorm:"column:slug;not null;uniqueIndex"`
	PassFeesToMember bool      `gorm:"column:pass_fees_to_member;not null;default:false"`
	PlatformFeeBps   int       `gorm:"column:platform_fee_bps;not null;default:0"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Organization) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
