package overdue

import (
	"time"

	"github.com/google/uuid"
)

// Step names a sweep phase. Used in failures and metrics.
type Step string

const (
	StepInvoice      Step = "invoice"
	StepLapse        Step = "lapse"
	StepRemind       Step = "remind"
	StepFlag         Step = "flag"
	StepCancel       Step = "cancel"
	StepSubscription Step = "cancel_subscription"
	StepList         Step = "list"
)

// Failure is one unit the sweep could not finish. The rest of the sweep still ran.
type Failure struct {
	OrganizationID uuid.UUID  `json:"organization_id"`
	MembershipID   *uuid.UUID `json:"membership_id,omitempty"`
	PaymentID      *uuid.UUID `json:"payment_id,omitempty"`
	Step           Step       `json:"step"`
	Error          string     `json:"error"`
}

// SweepResult summarizes one sweep. Transitioned holds memberships moved to
// lapsed; Reminded, Flagged and Invoiced hold payment ids.
type SweepResult struct {
	AsOf          time.Time   `json:"as_of"`
	Organizations int         `json:"organizations"`
	Processed     int         `json:"processed"`
	Invoiced      []uuid.UUID `json:"invoiced"`
	Transitioned  []uuid.UUID `json:"transitioned"`
	Reminded      []uuid.UUID `json:"reminded"`
	Flagged       []uuid.UUID `json:"flagged"`
	Cancelled     []uuid.UUID `json:"cancelled"`
	Failures      []Failure   `json:"failures"`
}

func newResult(asOf time.Time) *SweepResult {
	return &SweepResult{
		AsOf:         asOf,
		Invoiced:     []uuid.UUID{},
		Transitioned: []uuid.UUID{},
		Reminded:     []uuid.UUID{},
		Flagged:      []uuid.UUID{},
		Cancelled:    []uuid.UUID{},
		Failures:     []Failure{},
	}
}

func (r *SweepResult) fail(orgID uuid.UUID, membershipID, paymentID *uuid.UUID, step Step, err error) {
	r.Failures = append(r.Failures, Failure{
		OrganizationID: orgID,
		MembershipID:   membershipID,
		PaymentID:      paymentID,
		Step:           step,
		Error:          err.Error(),
	})
}
