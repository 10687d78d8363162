package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/duesengine/pkg/enums"
)

// Plan prices dues per billing frequency for an organization.
type Plan struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrganizationID     uuid.UUID `gorm:"column:organization_id;type:uuid;not null;index"`
	Name               string    `gorm:"column:name;not null"`
	MonthlyDuesCents   int64     `gorm:"column:monthly_dues_cents;not null"`
	BiannualDuesCents  int64     `gorm:"column:biannual_dues_cents;not null"`
	AnnualDuesCents    int64     `gorm:"column:annual_dues_cents;not null"`
	EnrollmentFeeCents int64     `gorm:"column:enrollment_fee_cents;not null;default:0"`
	Active             bool      `gorm:"column:active;not null"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Plan) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// DuesFor returns the amount billed for one period of the given frequency.
func (p Plan) DuesFor(freq enums.BillingFrequency) int64 {
	switch freq {
	case enums.BillingFrequencyMonthly:
		return p.MonthlyDuesCents
	case enums.BillingFrequencyBiannual:
		return p.BiannualDuesCents
	case enums.BillingFrequencyAnnual:
		return p.AnnualDuesCents
	default:
		return 0
	}
}
