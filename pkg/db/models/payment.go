package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/duesengine/pkg/enums"
)

// Payment is an append-only ledger row. A pending row is completed in place
// when it is paid; after that only status, reminder fields and refunded_at change.
type Payment struct {
	ID                    uuid.UUID           `gorm:"type:uuid;primaryKey"`
	OrganizationID        uuid.UUID           `gorm:"column:organization_id;type:uuid;not null;index"`
	MembershipID          uuid.UUID           `gorm:"column:membership_id;type:uuid;not null;index"`
	MemberID              uuid.UUID           `gorm:"column:member_id;type:uuid;not null"`
	Type                  enums.PaymentType   `gorm:"column:type;not null"`
	Method                enums.PaymentMethod `gorm:"column:method;not null"`
	Status                enums.PaymentStatus `gorm:"column:status;not null;default:'completed'"`
	AmountCents           int64               `gorm:"column:amount_cents;not null"`
	StripeFeeCents        int64               `gorm:"column:stripe_fee_cents;not null;default:0"`
	PlatformFeeCents      int64               `gorm:"column:platform_fee_cents;not null;default:0"`
	TotalChargedCents     int64               `gorm:"column:total_charged_cents;not null"`
	NetAmountCents        int64               `gorm:"column:net_amount_cents;not null"`
	MonthsCredited        int                 `gorm:"column:months_credited;not null;default:0"`
	CheckNumber           *string             `gorm:"column:check_number"`
	ZelleTransactionID    *string             `gorm:"column:zelle_transaction_id"`
	StripePaymentIntentID *string             `gorm:"column:stripe_payment_intent_id"`
	StripeInvoiceID       *string             `gorm:"column:stripe_invoice_id;uniqueIndex"`
	RecordedBy            *uuid.UUID          `gorm:"column:recorded_by;type:uuid"`
	Notes                 *string             `gorm:"column:notes"`
	DueDate               *time.Time          `gorm:"column:due_date"`
	PaidAt                *time.Time          `gorm:"column:paid_at"`
	RefundedAt            *time.Time          `gorm:"column:refunded_at"`
	ReminderCount         int                 `gorm:"column:reminder_count;not null;default:0"`
	ReminderSentAt        *time.Time          `gorm:"column:reminder_sent_at"`
	RemindersPaused       bool                `gorm:"column:reminders_paused;not null;default:false"`
	RequiresReview        bool                `gorm:"column:requires_review;not null;default:false"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
