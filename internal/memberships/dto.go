package memberships

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/duesengine/pkg/db/models"
	"github.com/angelmondragon/duesengine/pkg/enums"
)

// View is the client-facing projection of a membership.
type View struct {
	ID                    uuid.UUID                 `json:"id"`
	MemberID              uuid.UUID                 `json:"member_id"`
	PlanID                uuid.UUID                 `json:"plan_id"`
	Status                enums.MembershipStatus    `json:"status"`
	CanonicalStatus       enums.CanonicalStatus     `json:"canonical_status"`
	DisplayStatus         string                    `json:"display_status"`
	PaidMonths            int                       `json:"paid_months"`
	EnrollmentFeeStatus   enums.EnrollmentFeeStatus `json:"enrollment_fee_status"`
	BillingFrequency      enums.BillingFrequency    `json:"billing_frequency"`
	BillingAnniversaryDay int                       `json:"billing_anniversary_day"`
	NextPaymentDue        *time.Time                `json:"next_payment_due,omitempty"`
	LastPaymentDate       *time.Time                `json:"last_payment_date,omitempty"`
	EligibleDate          *time.Time                `json:"eligible_date,omitempty"`
	CancelledDate         *time.Time                `json:"cancelled_date,omitempty"`
	AgreementSignedAt     *time.Time                `json:"agreement_signed_at,omitempty"`
	PayerMemberID         *uuid.UUID                `json:"payer_member_id,omitempty"`
	AutoPayEnabled        bool                      `json:"auto_pay_enabled"`
	SubscriptionStatus    *enums.SubscriptionStatus `json:"subscription_status,omitempty"`
	PaymentMethod         *models.CardDetails       `json:"payment_method,omitempty"`
}

// NewView maps a membership row to its view.
func NewView(m models.Membership) View {
	return View{
		ID:                    m.ID,
		MemberID:              m.MemberID,
		PlanID:                m.PlanID,
		Status:                m.Status,
		CanonicalStatus:       m.Status.Canonical(),
		DisplayStatus:         DisplayLabel(m),
		PaidMonths:            m.PaidMonths,
		EnrollmentFeeStatus:   m.EnrollmentFeeStatus,
		BillingFrequency:      m.BillingFrequency,
		BillingAnniversaryDay: m.BillingAnniversaryDay,
		NextPaymentDue:        m.NextPaymentDue,
		LastPaymentDate:       m.LastPaymentDate,
		EligibleDate:          m.EligibleDate,
		CancelledDate:         m.CancelledDate,
		AgreementSignedAt:     m.AgreementSignedAt,
		PayerMemberID:         m.PayerMemberID,
		AutoPayEnabled:        m.AutoPayEnabled,
		SubscriptionStatus:    m.SubscriptionStatus,
		PaymentMethod:         m.PaymentMethodDetails,
	}
}

// FrequencyChange reports the outcome of ChangeBillingFrequency.
type FrequencyChange struct {
	PreviousFrequency enums.BillingFrequency `json:"previous_frequency"`
	NewFrequency      enums.BillingFrequency `json:"new_frequency"`
	NextPaymentDue    *time.Time             `json:"next_payment_due,omitempty"`
}
