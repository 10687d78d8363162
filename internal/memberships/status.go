package memberships

import (
	"github.com/angelmondragon/duesengine/pkg/db/models"
	"github.com/angelmondragon/duesengine/pkg/enums"
)

// DefaultEligibilityThreshold is the paid-months count that makes a member benefit eligible.
const DefaultEligibilityThreshold = 60

// NextStatus applies the lifecycle rules for a membership that just had its
// paid months or enrollment fee updated. It never moves a membership into
// lapsed or cancelled; only the overdue sweep does that.
//
// Rules, first match wins:
//   - cancelled is terminal
//   - an unsettled enrollment fee freezes the status
//   - pending with at least one paid month starts the waiting period
//   - waiting_period reaching the threshold becomes active
//   - lapsed reinstates to active at the threshold, otherwise to waiting_period
func NextStatus(current enums.MembershipStatus, paidMonths int, feeSettled bool, threshold int) enums.MembershipStatus {
	if threshold <= 0 {
		threshold = DefaultEligibilityThreshold
	}
	if current == enums.MembershipStatusCancelled || !feeSettled {
		return current
	}

	switch current {
	case enums.MembershipStatusPending:
		if paidMonths <= 0 {
			return current
		}
		if paidMonths >= threshold {
			return enums.MembershipStatusActive
		}
		return enums.MembershipStatusWaitingPeriod
	case enums.MembershipStatusWaitingPeriod:
		if paidMonths >= threshold {
			return enums.MembershipStatusActive
		}
	case enums.MembershipStatusLapsed:
		if paidMonths >= threshold {
			return enums.MembershipStatusActive
		}
		return enums.MembershipStatusWaitingPeriod
	}
	return current
}

// DisplayLabel returns the UI-facing status, including derived sub-reasons.
func DisplayLabel(m models.Membership) string {
	if m.Status == enums.MembershipStatusPending && m.AgreementSignedAt == nil {
		return enums.MembershipLabelAwaitingSignature
	}
	return m.Status.String()
}
