package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/duesengine/pkg/enums"
)

// OnboardingInvite tracks collection of the first dues and enrollment fee.
type OnboardingInvite struct {
	ID                       uuid.UUID                    `gorm:"type:uuid;primaryKey"`
	OrganizationID           uuid.UUID                    `gorm:"column:organization_id;type:uuid;not null;index"`
	MembershipID             uuid.UUID                    `gorm:"column:membership_id;type:uuid;not null;index"`
	MemberID                 uuid.UUID                    `gorm:"column:member_id;type:uuid;not null"`
	Method                   enums.OnboardingMethod       `gorm:"column:method;not null"`
	Status                   enums.OnboardingInviteStatus `gorm:"column:status;not null;default:'pending'"`
	IncludesEnrollmentFee    bool                         `gorm:"column:includes_enrollment_fee;not null;default:false"`
	DuesAmountCents          int64                        `gorm:"column:dues_amount_cents;not null"`
	EnrollmentFeeAmountCents int64                        `gorm:"column:enrollment_fee_amount_cents;not null;default:0"`
	DuesPaymentID            *uuid.UUID                   `gorm:"column:dues_payment_id;type:uuid"`
	EnrollmentFeePaymentID   *uuid.UUID                   `gorm:"column:enrollment_fee_payment_id;type:uuid"`
	DuesPaid                 bool                         `gorm:"column:dues_paid;not null;default:false"`
	EnrollmentFeePaid        bool                         `gorm:"column:enrollment_fee_paid;not null;default:false"`
	SetupURL                 *string                      `gorm:"column:setup_url"`
	EmailSentAt              *time.Time                   `gorm:"column:email_sent_at"`
	CompletedAt              *time.Time                   `gorm:"column:completed_at"`
	ExpiresAt                time.Time                    `gorm:"column:expires_at;not null"`
	CreatedAt                time.Time                    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time                    `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *OnboardingInvite) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// AllPartsPaid reports whether every required sub-payment is marked paid.
func (i OnboardingInvite) AllPartsPaid() bool {
	if !i.DuesPaid {
		return false
	}
	return !i.IncludesEnrollmentFee || i.EnrollmentFeePaid
}
