// Package subscriptionstest provides an in-memory subscriptions.Processor for tests.
package subscriptionstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/angelmondragon/duesengine/internal/subscriptions"
	"github.com/angelmondragon/duesengine/pkg/db/models"
	"github.com/angelmondragon/duesengine/pkg/enums"
)

// Processor records calls and returns canned results. Set the *Err fields to
// make the matching call fail.
type Processor struct {
	mu sync.Mutex

	CreateCustomerErr     error
	CreateSubscriptionErr error
	CancelErr             error
	SetupSessionErr       error
	PaymentSessionErr     error
	DescribeErr           error

	Card *models.CardDetails

	Customers      []subscriptions.CustomerParams
	Subscriptions  []subscriptions.SubscriptionParams
	Cancelled      []string
	SetupSessions  []subscriptions.SetupParams
	PaymentSession []subscriptions.PaymentSessionParams

	// SetupIntents maps setup intent ids to payment method ids.
	SetupIntents map[string]string

	seq int
}

var _ subscriptions.Processor = (*Processor)(nil)

func (p *Processor) next(prefix string) string {
	p.seq++
	return fmt.Sprintf("%s_%d", prefix, p.seq)
}

func (p *Processor) CreateCustomer(ctx context.Context, params subscriptions.CustomerParams) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreateCustomerErr != nil {
		return "", p.CreateCustomerErr
	}
	p.Customers = append(p.Customers, params)
	return p.next("cus"), nil
}

func (p *Processor) CreateSubscription(ctx context.Context, params subscriptions.SubscriptionParams) (*subscriptions.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreateSubscriptionErr != nil {
		return nil, p.CreateSubscriptionErr
	}
	p.Subscriptions = append(p.Subscriptions, params)
	return &subscriptions.Subscription{ID: p.next("sub"), Status: enums.SubscriptionStatusActive}, nil
}

func (p *Processor) CancelSubscription(ctx context.Context, subscriptionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CancelErr != nil {
		return p.CancelErr
	}
	p.Cancelled = append(p.Cancelled, subscriptionID)
	return nil
}

func (p *Processor) CreateSetupSession(ctx context.Context, params subscriptions.SetupParams) (*subscriptions.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SetupSessionErr != nil {
		return nil, p.SetupSessionErr
	}
	p.SetupSessions = append(p.SetupSessions, params)
	id := p.next("cs")
	return &subscriptions.CheckoutSession{ID: id, URL: "https://checkout.test/" + id}, nil
}

func (p *Processor) CreatePaymentSession(ctx context.Context, params subscriptions.PaymentSessionParams) (*subscriptions.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.PaymentSessionErr != nil {
		return nil, p.PaymentSessionErr
	}
	p.PaymentSession = append(p.PaymentSession, params)
	id := p.next("cs")
	return &subscriptions.CheckoutSession{ID: id, URL: "https://checkout.test/" + id}, nil
}

func (p *Processor) DescribePaymentMethod(ctx context.Context, paymentMethodID string) (*models.CardDetails, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.DescribeErr != nil {
		return nil, p.DescribeErr
	}
	if p.Card != nil {
		card := *p.Card
		return &card, nil
	}
	return &models.CardDetails{Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030}, nil
}

func (p *Processor) SetupIntentPaymentMethod(ctx context.Context, setupIntentID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pm, ok := p.SetupIntents[setupIntentID]; ok {
		return pm, nil
	}
	return "", fmt.Errorf("unknown setup intent %s", setupIntentID)
}

// CancelledCount returns how many cancellations succeeded.
func (p *Processor) CancelledCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Cancelled)
}
