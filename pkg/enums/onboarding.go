package enums

import "fmt"

// OnboardingInviteStatus tracks the initial dues collection handshake.
type OnboardingInviteStatus string

const (
	OnboardingInviteStatusPending   OnboardingInviteStatus = "pending"
	OnboardingInviteStatusCompleted OnboardingInviteStatus = "completed"
	OnboardingInviteStatusCancelled OnboardingInviteStatus = "cancelled"
)

var validOnboardingInviteStatuses = []OnboardingInviteStatus{
	OnboardingInviteStatusPending,
	OnboardingInviteStatusCompleted,
	OnboardingInviteStatusCancelled,
}

// String implements fmt.Stringer.
func (v OnboardingInviteStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known OnboardingInviteStatus.
func (v OnboardingInviteStatus) IsValid() bool {
	for _, candidate := range validOnboardingInviteStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseOnboardingInviteStatus converts raw input into a OnboardingInviteStatus.
func ParseOnboardingInviteStatus(value string) (OnboardingInviteStatus, error) {
	for _, candidate := range validOnboardingInviteStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid onboarding invite status %q", value)
}

// OnboardingMethod selects how the first payments are collected.
type OnboardingMethod string

const (
	OnboardingMethodStripe OnboardingMethod = "stripe"
	OnboardingMethodManual OnboardingMethod = "manual"
)

// IsValid reports whether the value is a known OnboardingMethod.
func (v OnboardingMethod) IsValid() bool {
	return v == OnboardingMethodStripe || v == OnboardingMethodManual
}

// OnboardingStep names one retryable step of the onboarding saga.
type OnboardingStep string

const (
	OnboardingStepCreateInvite OnboardingStep = "create_invite"
	OnboardingStepPaymentSetup OnboardingStep = "payment_setup"
	OnboardingStepSendEmail    OnboardingStep = "send_email"
)

var validOnboardingSteps = []OnboardingStep{
	OnboardingStepCreateInvite,
	OnboardingStepPaymentSetup,
	OnboardingStepSendEmail,
}

// ParseOnboardingStep converts raw input into an OnboardingStep.
func ParseOnboardingStep(value string) (OnboardingStep, error) {
	for _, candidate := range validOnboardingSteps {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid onboarding step %q", value)
}
