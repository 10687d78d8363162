package payments

import (
	"time"

	"github.com/angelmondragon/duesengine/internal/billing"
	"github.com/angelmondragon/duesengine/internal/memberships"
	"github.com/angelmondragon/duesengine/pkg/db/models"
	"github.com/angelmondragon/duesengine/pkg/enums"
)

// CalculationInput is everything needed to work out a payment's effect on a membership.
type CalculationInput struct {
	Membership     models.Membership
	Type           enums.PaymentType
	Method         enums.PaymentMethod
	AmountCents    int64
	MonthsCredited int
	FeePolicy      billing.FeePolicy
	Threshold      int
	Now            time.Time
}

// Calculation is the membership delta a payment produces. Record applies it;
// Preview returns it unsaved.
type Calculation struct {
	Fees                billing.Fees              `json:"fees"`
	Type                enums.PaymentType         `json:"type"`
	MonthsCredited      int                       `json:"months_credited"`
	PreviousPaidMonths  int                       `json:"previous_paid_months"`
	NewPaidMonths       int                       `json:"new_paid_months"`
	PreviousStatus      enums.MembershipStatus    `json:"previous_status"`
	NewStatus           enums.MembershipStatus    `json:"new_status"`
	StatusChanged       bool                      `json:"status_changed"`
	EnrollmentFeeStatus enums.EnrollmentFeeStatus `json:"enrollment_fee_status"`
	BecomesEligible     bool                      `json:"becomes_eligible"`
	EligibleDate        *time.Time                `json:"eligible_date,omitempty"`
	NextPaymentDue      *time.Time                `json:"next_payment_due,omitempty"`
	LastPaymentDate     *time.Time                `json:"last_payment_date,omitempty"`
}

// Calculate derives fees and the membership's next state for one payment.
//
// Enrollment-fee payments settle the fee and credit no months. Dues payments
// add their months, restart the billing cycle from now and record the payment
// date. A cancelled membership only accrues months: its status, due date and
// eligibility stay frozen.
func Calculate(in CalculationInput) Calculation {
	m := in.Membership
	now := in.Now.UTC()

	calc := Calculation{
		Fees:                billing.CalculateFees(in.AmountCents, in.Method, in.FeePolicy),
		Type:                in.Type,
		PreviousPaidMonths:  m.PaidMonths,
		NewPaidMonths:       m.PaidMonths,
		PreviousStatus:      m.Status,
		EnrollmentFeeStatus: m.EnrollmentFeeStatus,
		EligibleDate:        m.EligibleDate,
		NextPaymentDue:      m.NextPaymentDue,
		LastPaymentDate:     m.LastPaymentDate,
	}

	if in.Type == enums.PaymentTypeEnrollmentFee {
		calc.EnrollmentFeeStatus = enums.EnrollmentFeeStatusPaid
	} else if in.MonthsCredited > 0 {
		calc.MonthsCredited = in.MonthsCredited
		calc.NewPaidMonths += in.MonthsCredited
	}

	calc.NewStatus = memberships.NextStatus(m.Status, calc.NewPaidMonths, calc.EnrollmentFeeStatus.IsSettled(), in.Threshold)
	calc.StatusChanged = calc.NewStatus != calc.PreviousStatus

	if m.Status == enums.MembershipStatusCancelled {
		return calc
	}

	threshold := in.Threshold
	if threshold <= 0 {
		threshold = memberships.DefaultEligibilityThreshold
	}
	if m.EligibleDate == nil && calc.NewPaidMonths >= threshold {
		calc.BecomesEligible = true
		calc.EligibleDate = &now
	}

	if calc.MonthsCredited > 0 {
		next := billing.NextPaymentDue(now, m.BillingFrequency, m.BillingAnniversaryDay)
		calc.NextPaymentDue = &next
		calc.LastPaymentDate = &now
	}
	return calc
}

// Apply copies the calculated state onto the membership.
func (c Calculation) Apply(m *models.Membership) {
	m.PaidMonths = c.NewPaidMonths
	m.Status = c.NewStatus
	m.EnrollmentFeeStatus = c.EnrollmentFeeStatus
	m.EligibleDate = c.EligibleDate
	m.NextPaymentDue = c.NextPaymentDue
	m.LastPaymentDate = c.LastPaymentDate
}
