package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/duesengine/pkg/db/models"
	"github.com/angelmondragon/duesengine/pkg/enums"
)

// StripeProcessor implements Processor on top of Stripe customers,
// subscriptions with inline prices, and hosted checkout sessions.
type StripeProcessor struct {
	api       StripeAPI
	productID string
	currency  string
}

// StripeProcessorParams groups the processor dependencies.
type StripeProcessorParams struct {
	API       StripeAPI
	ProductID string
	Currency  string
}

// NewStripeProcessor validates the Stripe dependencies.
func NewStripeProcessor(params StripeProcessorParams) (*StripeProcessor, error) {
	if params.API == nil {
		return nil, fmt.Errorf("stripe api required")
	}
	if strings.TrimSpace(params.ProductID) == "" {
		return nil, fmt.Errorf("stripe dues product id required")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "usd"
	}
	return &StripeProcessor{api: params.API, productID: strings.TrimSpace(params.ProductID), currency: currency}, nil
}

func (p *StripeProcessor) CreateCustomer(ctx context.Context, params CustomerParams) (string, error) {
	req := &stripe.CustomerParams{
		Email: stripe.String(params.Email),
		Name:  stripe.String(params.Name),
	}
	req.Metadata = copyMetadata(params.Metadata)
	cus, err := p.api.CreateCustomer(ctx, req)
	if err != nil {
		return "", err
	}
	return cus.ID, nil
}

func (p *StripeProcessor) CreateSubscription(ctx context.Context, params SubscriptionParams) (*Subscription, error) {
	if params.AmountCents <= 0 {
		return nil, fmt.Errorf("subscription amount must be positive")
	}
	interval, count, err := recurringInterval(params.Frequency)
	if err != nil {
		return nil, err
	}

	req := &stripe.SubscriptionParams{
		Customer:             stripe.String(params.CustomerID),
		DefaultPaymentMethod: stripe.String(params.PaymentMethodID),
		Items: []*stripe.SubscriptionItemsParams{{
			PriceData: &stripe.SubscriptionItemPriceDataParams{
				Currency:   stripe.String(p.currency),
				Product:    stripe.String(p.productID),
				UnitAmount: stripe.Int64(params.AmountCents),
				Recurring: &stripe.SubscriptionItemPriceDataRecurringParams{
					Interval:      stripe.String(interval),
					IntervalCount: stripe.Int64(count),
				},
			},
		}},
	}
	req.Metadata = copyMetadata(params.Metadata)

	sub, err := p.api.CreateSubscription(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Subscription{ID: sub.ID, Status: enums.SubscriptionStatus(sub.Status)}, nil
}

func (p *StripeProcessor) CancelSubscription(ctx context.Context, subscriptionID string) error {
	_, err := p.api.CancelSubscription(ctx, subscriptionID, &stripe.SubscriptionCancelParams{})
	if err != nil && isResourceMissing(err) {
		return ErrSubscriptionNotFound
	}
	return err
}

func (p *StripeProcessor) CreateSetupSession(ctx context.Context, params SetupParams) (*CheckoutSession, error) {
	req := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSetup)),
		Customer:           stripe.String(params.CustomerID),
		Currency:           stripe.String(p.currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(params.SuccessURL),
		CancelURL:          stripe.String(params.CancelURL),
		SetupIntentData:    &stripe.CheckoutSessionSetupIntentDataParams{Metadata: copyMetadata(params.Metadata)},
	}
	req.Metadata = copyMetadata(params.Metadata)
	return p.createSession(ctx, req)
}

func (p *StripeProcessor) CreatePaymentSession(ctx context.Context, params PaymentSessionParams) (*CheckoutSession, error) {
	if len(params.LineItems) == 0 {
		return nil, fmt.Errorf("payment session needs at least one line item")
	}
	req := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(params.SuccessURL),
		CancelURL:         stripe.String(params.CancelURL),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: copyMetadata(params.Metadata)},
	}
	if params.CustomerID != "" {
		req.Customer = stripe.String(params.CustomerID)
	} else if params.CustomerEmail != "" {
		req.CustomerEmail = stripe.String(params.CustomerEmail)
	}
	for _, item := range params.LineItems {
		req.LineItems = append(req.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(p.currency),
				UnitAmount: stripe.Int64(item.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
		})
	}
	req.Metadata = copyMetadata(params.Metadata)
	return p.createSession(ctx, req)
}

func (p *StripeProcessor) createSession(ctx context.Context, req *stripe.CheckoutSessionParams) (*CheckoutSession, error) {
	sess, err := p.api.CreateCheckoutSession(ctx, req)
	if err != nil {
		return nil, err
	}
	if sess.URL == "" {
		return nil, fmt.Errorf("checkout session %s has no url", sess.ID)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (p *StripeProcessor) DescribePaymentMethod(ctx context.Context, paymentMethodID string) (*models.CardDetails, error) {
	pm, err := p.api.GetPaymentMethod(ctx, paymentMethodID, &stripe.PaymentMethodParams{})
	if err != nil {
		return nil, err
	}
	if pm.Card == nil {
		return nil, fmt.Errorf("payment method %s is not a card", paymentMethodID)
	}
	return &models.CardDetails{
		Brand:    string(pm.Card.Brand),
		Last4:    pm.Card.Last4,
		ExpMonth: pm.Card.ExpMonth,
		ExpYear:  pm.Card.ExpYear,
	}, nil
}

func (p *StripeProcessor) SetupIntentPaymentMethod(ctx context.Context, setupIntentID string) (string, error) {
	si, err := p.api.GetSetupIntent(ctx, setupIntentID, &stripe.SetupIntentParams{})
	if err != nil {
		return "", err
	}
	if si.PaymentMethod == nil || si.PaymentMethod.ID == "" {
		return "", fmt.Errorf("setup intent %s has no payment method", setupIntentID)
	}
	return si.PaymentMethod.ID, nil
}

func recurringInterval(freq enums.BillingFrequency) (string, int64, error) {
	switch freq {
	case enums.BillingFrequencyMonthly:
		return string(stripe.PriceRecurringIntervalMonth), 1, nil
	case enums.BillingFrequencyBiannual:
		return string(stripe.PriceRecurringIntervalMonth), 6, nil
	case enums.BillingFrequencyAnnual:
		return string(stripe.PriceRecurringIntervalYear), 1, nil
	default:
		return "", 0, fmt.Errorf("unsupported billing frequency %q", freq)
	}
}

func copyMetadata(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(metadata))
	for key, value := range metadata {
		out[key] = value
	}
	return out
}

func isResourceMissing(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	return stripeErr.Code == stripe.ErrorCodeResourceMissing || stripeErr.HTTPStatusCode == http.StatusNotFound
}
