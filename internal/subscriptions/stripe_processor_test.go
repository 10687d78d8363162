package subscriptions

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/duesengine/pkg/enums"
)

type stubStripeAPI struct {
	subParams    *stripe.SubscriptionParams
	sessParams   *stripe.CheckoutSessionParams
	cancelErr    error
	subscription *stripe.Subscription
	session      *stripe.CheckoutSession
	setupIntent  *stripe.SetupIntent
	method       *stripe.PaymentMethod
}

func (s *stubStripeAPI) CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error) {
	return &stripe.Customer{ID: "cus_123", Email: *params.Email}, nil
}

func (s *stubStripeAPI) CreateSubscription(ctx context.Context, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	s.subParams = params
	if s.subscription != nil {
		return s.subscription, nil
	}
	return &stripe.Subscription{ID: "sub_123", Status: stripe.SubscriptionStatusActive}, nil
}

func (s *stubStripeAPI) CancelSubscription(ctx context.Context, id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error) {
	if s.cancelErr != nil {
		return nil, s.cancelErr
	}
	return &stripe.Subscription{ID: id, Status: stripe.SubscriptionStatusCanceled}, nil
}

func (s *stubStripeAPI) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	s.sessParams = params
	if s.session != nil {
		return s.session, nil
	}
	return &stripe.CheckoutSession{ID: "cs_123", URL: "https://checkout.stripe.test/cs_123"}, nil
}

func (s *stubStripeAPI) GetSetupIntent(ctx context.Context, id string, params *stripe.SetupIntentParams) (*stripe.SetupIntent, error) {
	return s.setupIntent, nil
}

func (s *stubStripeAPI) GetPaymentMethod(ctx context.Context, id string, params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error) {
	return s.method, nil
}

func newTestProcessor(t *testing.T, api *stubStripeAPI) *StripeProcessor {
	t.Helper()
	proc, err := NewStripeProcessor(StripeProcessorParams{API: api, ProductID: "prod_dues", Currency: "USD"})
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	return proc
}

func TestNewStripeProcessorRequiresProduct(t *testing.T) {
	if _, err := NewStripeProcessor(StripeProcessorParams{API: &stubStripeAPI{}}); err == nil {
		t.Fatalf("expected product id error")
	}
	if _, err := NewStripeProcessor(StripeProcessorParams{ProductID: "prod"}); err == nil {
		t.Fatalf("expected api error")
	}
}

func TestCreateSubscriptionBuildsInlinePrice(t *testing.T) {
	tests := []struct {
		freq     enums.BillingFrequency
		interval string
		count    int64
	}{
		{enums.BillingFrequencyMonthly, "month", 1},
		{enums.BillingFrequencyBiannual, "month", 6},
		{enums.BillingFrequencyAnnual, "year", 1},
	}
	for _, tc := range tests {
		t.Run(string(tc.freq), func(t *testing.T) {
			api := &stubStripeAPI{}
			proc := newTestProcessor(t, api)

			sub, err := proc.CreateSubscription(context.Background(), SubscriptionParams{
				CustomerID:      "cus_1",
				PaymentMethodID: "pm_1",
				AmountCents:     5000,
				Frequency:       tc.freq,
				Metadata:        map[string]string{"membership_id": "m1"},
			})
			if err != nil {
				t.Fatalf("create subscription: %v", err)
			}
			if sub.ID != "sub_123" || sub.Status != enums.SubscriptionStatusActive {
				t.Fatalf("unexpected subscription %+v", sub)
			}

			params := api.subParams
			if *params.Customer != "cus_1" || *params.DefaultPaymentMethod != "pm_1" {
				t.Fatalf("unexpected customer binding")
			}
			var price *stripe.SubscriptionItemPriceDataParams = params.Items[0].PriceData
			if *price.Product != "prod_dues" || *price.Currency != "usd" || *price.UnitAmount != 5000 {
				t.Fatalf("unexpected price data")
			}
			if *price.Recurring.Interval != tc.interval || *price.Recurring.IntervalCount != tc.count {
				t.Fatalf("expected %s/%d got %s/%d", tc.interval, tc.count, *price.Recurring.Interval, *price.Recurring.IntervalCount)
			}
			if params.Metadata["membership_id"] != "m1" {
				t.Fatalf("metadata not forwarded")
			}
		})
	}
}

func TestCreateSubscriptionRejectsBadInput(t *testing.T) {
	proc := newTestProcessor(t, &stubStripeAPI{})
	if _, err := proc.CreateSubscription(context.Background(), SubscriptionParams{AmountCents: 0, Frequency: enums.BillingFrequencyMonthly}); err == nil {
		t.Fatalf("expected amount error")
	}
	if _, err := proc.CreateSubscription(context.Background(), SubscriptionParams{AmountCents: 100, Frequency: "weekly"}); err == nil {
		t.Fatalf("expected frequency error")
	}
}

func TestCancelSubscriptionMapsMissingResource(t *testing.T) {
	api := &stubStripeAPI{cancelErr: &stripe.Error{Code: stripe.ErrorCodeResourceMissing, HTTPStatusCode: http.StatusNotFound}}
	proc := newTestProcessor(t, api)
	if err := proc.CancelSubscription(context.Background(), "sub_gone"); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}

	api.cancelErr = &stripe.Error{Code: stripe.ErrorCode("rate_limit"), HTTPStatusCode: http.StatusTooManyRequests}
	if err := proc.CancelSubscription(context.Background(), "sub_1"); err == nil || errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("expected raw processor error, got %v", err)
	}

	api.cancelErr = nil
	if err := proc.CancelSubscription(context.Background(), "sub_1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateSetupSessionUsesSetupMode(t *testing.T) {
	api := &stubStripeAPI{}
	proc := newTestProcessor(t, api)

	sess, err := proc.CreateSetupSession(context.Background(), SetupParams{
		CustomerID: "cus_1",
		SuccessURL: "https://dues.test/ok",
		CancelURL:  "https://dues.test/cancel",
		Metadata:   map[string]string{"payer_member_id": "p1"},
	})
	if err != nil {
		t.Fatalf("setup session: %v", err)
	}
	if sess.URL == "" {
		t.Fatalf("expected url")
	}
	if *api.sessParams.Mode != "setup" || *api.sessParams.Customer != "cus_1" {
		t.Fatalf("unexpected session params")
	}
	if api.sessParams.SetupIntentData.Metadata["payer_member_id"] != "p1" {
		t.Fatalf("setup intent metadata missing")
	}
}

func TestCreatePaymentSessionAddsLineItems(t *testing.T) {
	api := &stubStripeAPI{}
	proc := newTestProcessor(t, api)

	_, err := proc.CreatePaymentSession(context.Background(), PaymentSessionParams{
		CustomerEmail: "ada@example.org",
		LineItems:     []LineItem{{Name: "Dues", AmountCents: 5000}, {Name: "Enrollment fee", AmountCents: 10000}},
	})
	if err != nil {
		t.Fatalf("payment session: %v", err)
	}
	if *api.sessParams.Mode != "payment" || *api.sessParams.CustomerEmail != "ada@example.org" {
		t.Fatalf("unexpected session params")
	}
	if len(api.sessParams.LineItems) != 2 || *api.sessParams.LineItems[1].PriceData.UnitAmount != 10000 {
		t.Fatalf("unexpected line items")
	}

	if _, err := proc.CreatePaymentSession(context.Background(), PaymentSessionParams{}); err == nil {
		t.Fatalf("expected error without line items")
	}

	api.session = &stripe.CheckoutSession{ID: "cs_nourl"}
	if _, err := proc.CreatePaymentSession(context.Background(), PaymentSessionParams{LineItems: []LineItem{{Name: "Dues", AmountCents: 1}}}); err == nil {
		t.Fatalf("expected error for session without url")
	}
}

func TestDescribePaymentMethodAndSetupIntent(t *testing.T) {
	api := &stubStripeAPI{
		method: &stripe.PaymentMethod{ID: "pm_1", Card: &stripe.PaymentMethodCard{
			Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030,
		}},
		setupIntent: &stripe.SetupIntent{ID: "seti_1", PaymentMethod: &stripe.PaymentMethod{ID: "pm_1"}},
	}
	proc := newTestProcessor(t, api)

	card, err := proc.DescribePaymentMethod(context.Background(), "pm_1")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if card.Brand != "visa" || card.Last4 != "4242" || card.ExpYear != 2030 {
		t.Fatalf("unexpected card %+v", card)
	}

	pmID, err := proc.SetupIntentPaymentMethod(context.Background(), "seti_1")
	if err != nil || pmID != "pm_1" {
		t.Fatalf("expected pm_1, got %q %v", pmID, err)
	}

	api.setupIntent = &stripe.SetupIntent{ID: "seti_2"}
	if _, err := proc.SetupIntentPaymentMethod(context.Background(), "seti_2"); err == nil {
		t.Fatalf("expected error for setup intent without payment method")
	}
}
