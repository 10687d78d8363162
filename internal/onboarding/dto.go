package onboarding

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/duesengine/internal/payments"
	"github.com/angelmondragon/duesengine/pkg/db/models"
	"github.com/angelmondragon/duesengine/pkg/enums"
)

// StartInput opens an invite for a membership's first payments.
type StartInput struct {
	OrganizationID       uuid.UUID
	MembershipID         uuid.UUID
	Method               enums.OnboardingMethod
	IncludeEnrollmentFee bool
}

// StepStatus is the outcome of one saga step.
type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepResult reports one step. Failed steps can be retried with RetryStep.
type StepResult struct {
	Step   enums.OnboardingStep `json:"step"`
	Status StepStatus           `json:"status"`
	Error  string               `json:"error,omitempty"`
}

// Result is returned by Start and RetryStep.
type Result struct {
	Invite InviteView   `json:"invite"`
	Steps  []StepResult `json:"steps"`
}

// Failed reports whether any step failed.
func (r Result) Failed() bool {
	for _, step := range r.Steps {
		if step.Status == StepFailed {
			return true
		}
	}
	return false
}

// MarkPaidInput settles one part of an invite.
type MarkPaidInput struct {
	OrganizationID uuid.UUID
	InviteID       uuid.UUID
	// Part is dues or enrollment_fee.
	Part       enums.PaymentType
	Method     enums.PaymentMethod
	RecordedBy *uuid.UUID
	Reference  string
	Notes      string
}

// MarkPaidResult reports the settled payment and the invite after the update.
type MarkPaidResult struct {
	Invite    InviteView             `json:"invite"`
	Payment   *payments.RecordResult `json:"payment,omitempty"`
	Completed bool                   `json:"completed"`
}

// InviteView is the client-facing projection of an invite.
type InviteView struct {
	ID                       uuid.UUID                    `json:"id"`
	MembershipID             uuid.UUID                    `json:"membership_id"`
	MemberID                 uuid.UUID                    `json:"member_id"`
	Method                   enums.OnboardingMethod       `json:"method"`
	Status                   enums.OnboardingInviteStatus `json:"status"`
	IncludesEnrollmentFee    bool                         `json:"includes_enrollment_fee"`
	DuesAmountCents          int64                        `json:"dues_amount_cents"`
	EnrollmentFeeAmountCents int64                        `json:"enrollment_fee_amount_cents"`
	DuesPaid                 bool                         `json:"dues_paid"`
	EnrollmentFeePaid        bool                         `json:"enrollment_fee_paid"`
	SetupURL                 *string                      `json:"setup_url,omitempty"`
	EmailSentAt              *time.Time                   `json:"email_sent_at,omitempty"`
	CompletedAt              *time.Time                   `json:"completed_at,omitempty"`
	ExpiresAt                time.Time                    `json:"expires_at"`
}

// NewInviteView maps an invite row to its view.
func NewInviteView(i models.OnboardingInvite) InviteView {
	return InviteView{
		ID:                       i.ID,
		MembershipID:             i.MembershipID,
		MemberID:                 i.MemberID,
		Method:                   i.Method,
		Status:                   i.Status,
		IncludesEnrollmentFee:    i.IncludesEnrollmentFee,
		DuesAmountCents:          i.DuesAmountCents,
		EnrollmentFeeAmountCents: i.EnrollmentFeeAmountCents,
		DuesPaid:                 i.DuesPaid,
		EnrollmentFeePaid:        i.EnrollmentFeePaid,
		SetupURL:                 i.SetupURL,
		EmailSentAt:              i.EmailSentAt,
		CompletedAt:              i.CompletedAt,
		ExpiresAt:                i.ExpiresAt,
	}
}
