package enums

import (
	"fmt"
	"strings"
)

// SubscriptionStatus is the processor's view of a membership's recurring
// charge, copied from customer.subscription.* events.
type SubscriptionStatus string

const (
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusPaused            SubscriptionStatus = "paused"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
)

func (s SubscriptionStatus) String() string {
	return string(s)
}

func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case SubscriptionStatusTrialing, SubscriptionStatusActive, SubscriptionStatusPastDue,
		SubscriptionStatusUnpaid, SubscriptionStatusPaused, SubscriptionStatusIncomplete,
		SubscriptionStatusIncompleteExpired, SubscriptionStatusCanceled:
		return true
	}
	return false
}

// ParseSubscriptionStatus accepts the processor's lower-case status names.
func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	s := SubscriptionStatus(strings.ToLower(strings.TrimSpace(value)))
	if !s.IsValid() {
		return "", fmt.Errorf("invalid subscription status %q", value)
	}
	return s, nil
}

// IsLive reports whether the processor will keep attempting charges.
func (s SubscriptionStatus) IsLive() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusPastDue, SubscriptionStatusIncomplete:
		return true
	}
	return false
}

// IsTerminal reports whether the subscription can never charge again, so the
// membership's processor binding should be dropped.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCanceled || s == SubscriptionStatusIncompleteExpired
}
