package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/duesengine/pkg/enums"
)

// CardDetails is the display-safe summary of the card funding a subscription.
type CardDetails struct {
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int64  `json:"exp_month"`
	ExpYear  int64  `json:"exp_year"`
}

func (c CardDetails) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *CardDetails) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported card details type %T", value)
	}
	return json.Unmarshal(raw, c)
}

// Membership is the aggregate root of a member's billing state.
type Membership struct {
	ID                    uuid.UUID                 `gorm:"type:uuid;primaryKey"`
	OrganizationID        uuid.UUID                 `gorm:"column:organization_id;type:uuid;not null;index"`
	MemberID              uuid.UUID                 `gorm:"column:member_id;type:uuid;not null;uniqueIndex"`
	PlanID                uuid.UUID                 `gorm:"column:plan_id;type:uuid;not null"`
	Status                enums.MembershipStatus    `gorm:"column:status;not null;default:'pending'"`
	PaidMonths            int                       `gorm:"column:paid_months;not null;default:0"`
	EnrollmentFeeStatus   enums.EnrollmentFeeStatus `gorm:"column:enrollment_fee_status;not null;default:'unpaid'"`
	BillingFrequency      enums.BillingFrequency    `gorm:"column:billing_frequency;not null;default:'monthly'"`
	BillingAnniversaryDay int                       `gorm:"column:billing_anniversary_day;not null;default:1"`
	NextPaymentDue        *time.Time                `gorm:"column:next_payment_due;index"`
	LastPaymentDate       *time.Time                `gorm:"column:last_payment_date"`
	EligibleDate          *time.Time                `gorm:"column:eligible_date"`
	CancelledDate         *time.Time                `gorm:"column:cancelled_date"`
	AgreementSignedAt     *time.Time                `gorm:"column:agreement_signed_at"`
	PayerMemberID         *uuid.UUID                `gorm:"column:payer_member_id;type:uuid;index"`
	AutoPayEnabled        bool                      `gorm:"column:auto_pay_enabled;not null;default:false"`
	StripeSubscriptionID  *string                   `gorm:"column:stripe_subscription_id;uniqueIndex"`
	StripeCustomerID      *string                   `gorm:"column:stripe_customer_id"`
	SubscriptionStatus    *enums.SubscriptionStatus `gorm:"column:subscription_status"`
	PaymentMethodDetails  *CardDetails              `gorm:"column:payment_method_details;type:jsonb"`
	Version               int                       `gorm:"column:version;not null;default:0"`
	CreatedAt             time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *Membership) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return m.ValidateBinding()
}

var (
	ErrSubscriptionWithoutAutoPay = errors.New("subscription id requires auto-pay enabled")
	ErrAutoPayWithoutCustomer     = errors.New("auto-pay requires a processor customer id")
)

// ValidateBinding checks the recurring-charge fields are mutually consistent:
// a subscription implies auto-pay, and auto-pay implies a customer.
func (m Membership) ValidateBinding() error {
	if m.StripeSubscriptionID != nil && !m.AutoPayEnabled {
		return ErrSubscriptionWithoutAutoPay
	}
	if m.AutoPayEnabled && m.StripeCustomerID == nil {
		return ErrAutoPayWithoutCustomer
	}
	return nil
}

// HasPayer reports whether another member funds this membership.
func (m Membership) HasPayer() bool {
	return m.PayerMemberID != nil
}

// HasActiveSubscription reports whether a processor subscription is bound.
func (m Membership) HasActiveSubscription() bool {
	if m.StripeSubscriptionID == nil {
		return false
	}
	return m.SubscriptionStatus == nil || m.SubscriptionStatus.IsLive()
}

// ClearPayerBinding drops every payer and processor field.
func (m *Membership) ClearPayerBinding() {
	m.PayerMemberID = nil
	m.AutoPayEnabled = false
	m.StripeSubscriptionID = nil
	m.StripeCustomerID = nil
	m.SubscriptionStatus = nil
	m.PaymentMethodDetails = nil
}
