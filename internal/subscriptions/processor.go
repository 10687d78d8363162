package subscriptions

import (
	"context"
	"errors"

	"github.com/angelmondragon/duesengine/pkg/db/models"
	"github.com/angelmondragon/duesengine/pkg/enums"
)

// ErrSubscriptionNotFound is returned by CancelSubscription when the processor
// no longer knows the subscription.
var ErrSubscriptionNotFound = errors.New("subscription not found at processor")

// Processor is the recurring-charge collaborator. Every call is a single
// network round trip with no retry.
type Processor interface {
	CreateCustomer(ctx context.Context, params CustomerParams) (string, error)
	CreateSubscription(ctx context.Context, params SubscriptionParams) (*Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
	CreateSetupSession(ctx context.Context, params SetupParams) (*CheckoutSession, error)
	CreatePaymentSession(ctx context.Context, params PaymentSessionParams) (*CheckoutSession, error)
	DescribePaymentMethod(ctx context.Context, paymentMethodID string) (*models.CardDetails, error)
	SetupIntentPaymentMethod(ctx context.Context, setupIntentID string) (string, error)
}

// CustomerParams describes the person the processor will charge.
type CustomerParams struct {
	Email    string
	Name     string
	Metadata map[string]string
}

// SubscriptionParams describes a dues subscription billed on the membership's cadence.
type SubscriptionParams struct {
	CustomerID      string
	PaymentMethodID string
	AmountCents     int64
	Frequency       enums.BillingFrequency
	Metadata        map[string]string
}

// Subscription is the processor's view of a created subscription.
type Subscription struct {
	ID     string
	Status enums.SubscriptionStatus
}

// SetupParams requests a hosted page where the customer saves a card.
type SetupParams struct {
	CustomerID string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// LineItem is one charge on a hosted payment page.
type LineItem struct {
	Name        string
	AmountCents int64
}

// PaymentSessionParams requests a hosted page collecting a one-off payment.
type PaymentSessionParams struct {
	CustomerID    string
	CustomerEmail string
	LineItems     []LineItem
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// CheckoutSession is a hosted processor page.
type CheckoutSession struct {
	ID  string
	URL string
}
