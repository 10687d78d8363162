package payers

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/duesengine/internal/memberships"
)

// Path names which branch of payer assignment ran.
type Path string

const (
	// PathSubscription: the payer had a card, so a subscription now bills them.
	PathSubscription Path = "subscription"
	// PathSetupLink: the payer has no card yet and was sent a setup link.
	PathSetupLink Path = "setup_link"
)

// AssignResult reports what Assign did.
type AssignResult struct {
	Path                Path             `json:"path"`
	SubscriptionCreated bool             `json:"subscription_created"`
	SubscriptionID      string           `json:"subscription_id,omitempty"`
	AwaitingSetup       bool             `json:"awaiting_setup"`
	SetupURL            string           `json:"setup_url,omitempty"`
	PaymentLinkSent     bool             `json:"payment_link_sent"`
	Membership          memberships.View `json:"membership"`
}

// SetupResult reports which beneficiaries were switched to auto-pay once a
// payer finished card setup.
type SetupResult struct {
	PayerMemberID uuid.UUID            `json:"payer_member_id"`
	Activated     []uuid.UUID          `json:"activated"`
	Failed        map[uuid.UUID]string `json:"failed,omitempty"`
}

// Validation reasons reported in error details.
const (
	ReasonSelfPayer          = "payer_is_member"
	ReasonAlreadyHasPayer    = "membership_has_payer"
	ReasonActiveSubscription = "membership_has_subscription"
	ReasonPayerIsFunded      = "payer_is_paid_for"
	ReasonMemberIsPayer      = "member_pays_for_others"
)
