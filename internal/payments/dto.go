package payments

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/duesengine/internal/memberships"
	"github.com/angelmondragon/duesengine/pkg/db/models"
	"github.com/angelmondragon/duesengine/pkg/enums"
)

// RecordInput describes one payment to write against a membership.
type RecordInput struct {
	OrganizationID uuid.UUID
	MembershipID   uuid.UUID
	// MemberID is who paid; defaults to the membership's member and may be its payer.
	MemberID       uuid.UUID
	Type           enums.PaymentType
	Method         enums.PaymentMethod
	AmountCents    int64
	MonthsCredited int
	// Reference is the check number, Zelle transaction id, or payment intent id.
	Reference       string
	StripeInvoiceID string
	RecordedBy      *uuid.UUID
	Notes           string
	// PendingPaymentID settles an existing pending payment instead of inserting one.
	PendingPaymentID *uuid.UUID
}

// ListInput selects one page of a membership's ledger.
type ListInput struct {
	OrganizationID uuid.UUID
	MembershipID   uuid.UUID
	Limit          int
	Cursor         string
}

// ListResult is one ledger page; NextCursor is empty on the last page.
type ListResult struct {
	Payments   []PaymentView `json:"payments"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// RecordResult is what Record reports back to callers. Settled is set when an
// existing pending row was completed instead of a new row being inserted.
type RecordResult struct {
	Payment          PaymentView            `json:"payment"`
	Membership       memberships.View       `json:"membership"`
	StatusChanged    bool                   `json:"status_changed"`
	PreviousStatus   enums.MembershipStatus `json:"previous_status"`
	NewStatus        enums.MembershipStatus `json:"new_status"`
	Settled          bool                   `json:"settled_pending"`
	NotificationSent bool                   `json:"notification_sent"`
}

// PreviewInput asks what a payment would do without writing it. Zero values
// default to the plan price and the processor method.
type PreviewInput struct {
	OrganizationID uuid.UUID
	MembershipID   uuid.UUID
	Type           enums.PaymentType
	Method         enums.PaymentMethod
	AmountCents    int64
	MonthsCredited int
}

// ProcessorInvoice is a paid recurring invoice reported by the processor.
type ProcessorInvoice struct {
	InvoiceID       string
	SubscriptionID  string
	PaymentIntentID string
	AmountPaidCents int64
}

// PaymentView is the client-facing projection of a payment.
type PaymentView struct {
	ID                    uuid.UUID           `json:"id"`
	MembershipID          uuid.UUID           `json:"membership_id"`
	MemberID              uuid.UUID           `json:"member_id"`
	Type                  enums.PaymentType   `json:"type"`
	Method                enums.PaymentMethod `json:"method"`
	Status                enums.PaymentStatus `json:"status"`
	AmountCents           int64               `json:"amount_cents"`
	StripeFeeCents        int64               `json:"stripe_fee_cents"`
	PlatformFeeCents      int64               `json:"platform_fee_cents"`
	TotalChargedCents     int64               `json:"total_charged_cents"`
	NetAmountCents        int64               `json:"net_amount_cents"`
	MonthsCredited        int                 `json:"months_credited"`
	CheckNumber           *string             `json:"check_number,omitempty"`
	ZelleTransactionID    *string             `json:"zelle_transaction_id,omitempty"`
	StripePaymentIntentID *string             `json:"stripe_payment_intent_id,omitempty"`
	StripeInvoiceID       *string             `json:"stripe_invoice_id,omitempty"`
	RecordedBy            *uuid.UUID          `json:"recorded_by,omitempty"`
	Notes                 *string             `json:"notes,omitempty"`
	DueDate               *time.Time          `json:"due_date,omitempty"`
	PaidAt                *time.Time          `json:"paid_at,omitempty"`
	RefundedAt            *time.Time          `json:"refunded_at,omitempty"`
	ReminderCount         int                 `json:"reminder_count"`
	ReminderSentAt        *time.Time          `json:"reminder_sent_at,omitempty"`
	RemindersPaused       bool                `json:"reminders_paused"`
	RequiresReview        bool                `json:"requires_review"`
	CreatedAt             time.Time           `json:"created_at"`
}

// NewPaymentView maps a payment row to its view.
func NewPaymentView(p models.Payment) PaymentView {
	return PaymentView{
		ID:                    p.ID,
		MembershipID:          p.MembershipID,
		MemberID:              p.MemberID,
		Type:                  p.Type,
		Method:                p.Method,
		Status:                p.Status,
		AmountCents:           p.AmountCents,
		StripeFeeCents:        p.StripeFeeCents,
		PlatformFeeCents:      p.PlatformFeeCents,
		TotalChargedCents:     p.TotalChargedCents,
		NetAmountCents:        p.NetAmountCents,
		MonthsCredited:        p.MonthsCredited,
		CheckNumber:           p.CheckNumber,
		ZelleTransactionID:    p.ZelleTransactionID,
		StripePaymentIntentID: p.StripePaymentIntentID,
		StripeInvoiceID:       p.StripeInvoiceID,
		RecordedBy:            p.RecordedBy,
		Notes:                 p.Notes,
		DueDate:               p.DueDate,
		PaidAt:                p.PaidAt,
		RefundedAt:            p.RefundedAt,
		ReminderCount:         p.ReminderCount,
		ReminderSentAt:        p.ReminderSentAt,
		RemindersPaused:       p.RemindersPaused,
		RequiresReview:        p.RequiresReview,
		CreatedAt:             p.CreatedAt,
	}
}
