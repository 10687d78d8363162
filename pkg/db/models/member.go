package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Member is a person enrolled in an organization's program.
type Member struct {
	ID                     uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrganizationID         uuid.UUID `gorm:"column:organization_id;type:uuid;not null;index"`
	FirstName              string    `gorm:"column:first_name;not null"`
	LastName               string    `gorm:"column:last_name;not null"`
	Email                  string    `gorm:"column:email;not null"`
	StripeCustomerID       *string   `gorm:"column:stripe_customer_id"`
	DefaultPaymentMethodID *string   `gorm:"column:default_payment_method_id"`
	CreatedAt              time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *Member) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// FullName joins first and last name.
func (m Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// HasCardOnFile reports whether the member can be charged without a setup step.
func (m Member) HasCardOnFile() bool {
	return m.StripeCustomerID != nil && m.DefaultPaymentMethodID != nil && *m.DefaultPaymentMethodID != ""
}
