package enums

import "fmt"

// MembershipStatus is the persisted lifecycle state of a membership.
type MembershipStatus string

const (
	MembershipStatusPending       MembershipStatus = "pending"
	MembershipStatusWaitingPeriod MembershipStatus = "waiting_period"
	MembershipStatusActive        MembershipStatus = "active"
	MembershipStatusLapsed        MembershipStatus = "lapsed"
	MembershipStatusCancelled     MembershipStatus = "cancelled"
)

// MembershipLabelAwaitingSignature is a display label derived from a pending
// membership whose agreement is unsigned. It is never persisted.
const MembershipLabelAwaitingSignature = "awaiting_signature"

var validMembershipStatuses = []MembershipStatus{
	MembershipStatusPending,
	MembershipStatusWaitingPeriod,
	MembershipStatusActive,
	MembershipStatusLapsed,
	MembershipStatusCancelled,
}

// String implements fmt.Stringer.
func (s MembershipStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known MembershipStatus.
func (s MembershipStatus) IsValid() bool {
	for _, candidate := range validMembershipStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsCurrent reports whether the member is in good standing (waiting or active).
func (s MembershipStatus) IsCurrent() bool {
	return s == MembershipStatusWaitingPeriod || s == MembershipStatusActive
}

// Canonical projects the status onto the four-state model.
func (s MembershipStatus) Canonical() CanonicalStatus {
	switch s {
	case MembershipStatusWaitingPeriod, MembershipStatusActive:
		return CanonicalStatusCurrent
	case MembershipStatusLapsed:
		return CanonicalStatusLapsed
	case MembershipStatusCancelled:
		return CanonicalStatusCancelled
	default:
		return CanonicalStatusPending
	}
}

// ParseMembershipStatus converts raw input into a MembershipStatus. The legacy
// awaiting_signature value folds into pending.
func ParseMembershipStatus(value string) (MembershipStatus, error) {
	if value == MembershipLabelAwaitingSignature {
		return MembershipStatusPending, nil
	}
	for _, candidate := range validMembershipStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid membership status %q", value)
}

// CanonicalStatus is the simplified four-state view exposed to clients.
type CanonicalStatus string

const (
	CanonicalStatusPending   CanonicalStatus = "pending"
	CanonicalStatusCurrent   CanonicalStatus = "current"
	CanonicalStatusLapsed    CanonicalStatus = "lapsed"
	CanonicalStatusCancelled CanonicalStatus = "cancelled"
)
