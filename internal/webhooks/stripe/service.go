package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/duesengine/internal/memberships"
	"github.com/angelmondragon/duesengine/internal/onboarding"
	"github.com/angelmondragon/duesengine/internal/payers"
	"github.com/angelmondragon/duesengine/internal/payments"
	"github.com/angelmondragon/duesengine/pkg/enums"
	pkgerrors "github.com/angelmondragon/duesengine/pkg/errors"
	"github.com/angelmondragon/duesengine/pkg/logger"
)

type invoiceRecorder interface {
	RecordProcessorInvoice(ctx context.Context, invoice payments.ProcessorInvoice) (*payments.RecordResult, bool, error)
}

type setupCompleter interface {
	CompleteSetup(ctx context.Context, customerID, paymentMethodID string) (*payers.SetupResult, error)
}

type checkoutCompleter interface {
	CompleteCheckout(ctx context.Context, orgID, inviteID uuid.UUID, paymentIntentID string) (*onboarding.MarkPaidResult, error)
}

type setupIntentResolver interface {
	SetupIntentPaymentMethod(ctx context.Context, setupIntentID string) (string, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Payments          invoiceRecorder
	Payers            setupCompleter
	Onboarding        checkoutCompleter
	MembershipRepo    memberships.Repository
	Processor         setupIntentResolver
	TransactionRunner txRunner
	Logger            *logger.Logger
}

// Service applies processor events to memberships.
type Service struct {
	payments    invoiceRecorder
	payers      setupCompleter
	onboarding  checkoutCompleter
	memberships memberships.Repository
	processor   setupIntentResolver
	txRunner    txRunner
	logg        *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment service required")
	}
	if params.Payers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payer service required")
	}
	if params.Onboarding == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "onboarding service required")
	}
	if params.MembershipRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "membership repo required")
	}
	if params.Processor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "processor required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		payments:    params.Payments,
		payers:      params.Payers,
		onboarding:  params.Onboarding,
		memberships: params.MembershipRepo,
		processor:   params.Processor,
		txRunner:    params.TransactionRunner,
		logg:        params.Logger,
	}, nil
}

// invoicePayload covers both the legacy top-level subscription field and the
// parent.subscription_details shape of newer API versions.
type invoicePayload struct {
	ID            string `json:"id"`
	Subscription  string `json:"subscription"`
	PaymentIntent string `json:"payment_intent"`
	AmountPaid    int64  `json:"amount_paid"`
	Parent        *struct {
		SubscriptionDetails *struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (p invoicePayload) subscriptionID() string {
	if p.Subscription != "" {
		return p.Subscription
	}
	if p.Parent != nil && p.Parent.SubscriptionDetails != nil {
		return p.Parent.SubscriptionDetails.Subscription
	}
	return ""
}

type checkoutPayload struct {
	ID            string            `json:"id"`
	Mode          string            `json:"mode"`
	Customer      string            `json:"customer"`
	SetupIntent   string            `json:"setup_intent"`
	PaymentIntent string            `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
}

type subscriptionPayload struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"stripe_event_id": event.ID, "stripe_event_type": string(event.Type)})

	switch event.Type {
	case stripe.EventTypeInvoicePaid:
		var invoice invoicePayload
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode invoice event")
		}
		return s.recordInvoice(ctx, invoice)
	case stripe.EventTypeCustomerSubscriptionUpdated, stripe.EventTypeCustomerSubscriptionDeleted:
		var sub subscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription event")
		}
		return s.syncSubscription(ctx, sub, event.Type == stripe.EventTypeCustomerSubscriptionDeleted)
	case stripe.EventTypeCheckoutSessionCompleted:
		var session checkoutPayload
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		return s.completeCheckout(ctx, session)
	default:
		return nil
	}
}

func (s *Service) recordInvoice(ctx context.Context, invoice invoicePayload) error {
	subscriptionID := invoice.subscriptionID()
	if subscriptionID == "" {
		// One-off invoices carry no subscription and are not dues.
		return nil
	}
	result, duplicate, err := s.payments.RecordProcessorInvoice(ctx, payments.ProcessorInvoice{
		InvoiceID:       invoice.ID,
		SubscriptionID:  subscriptionID,
		PaymentIntentID: invoice.PaymentIntent,
		AmountPaidCents: invoice.AmountPaid,
	})
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			s.logg.Warn(s.logg.WithField(ctx, "stripe_subscription_id", subscriptionID), "paid invoice for unknown subscription ignored")
			return nil
		}
		return err
	}
	if duplicate {
		s.logg.Info(ctx, "invoice already recorded")
		return nil
	}
	s.logg.Info(s.logg.WithField(ctx, "payment_id", result.Payment.ID.String()), "subscription invoice recorded")
	return nil
}

func (s *Service) syncSubscription(ctx context.Context, sub subscriptionPayload, deleted bool) error {
	if sub.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription id missing")
	}
	status := enums.SubscriptionStatusCanceled
	if !deleted {
		parsed, err := enums.ParseSubscriptionStatus(sub.Status)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "subscription status")
		}
		status = parsed
	}
	ended := deleted || status.IsTerminal()

	found, err := s.memberships.FindBySubscriptionID(ctx, sub.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load membership")
	}
	if found == nil {
		s.logg.Info(s.logg.WithField(ctx, "stripe_subscription_id", sub.ID), "subscription not bound to a membership")
		return nil
	}

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.memberships.WithTx(tx)
		m, err := repo.FindForUpdate(ctx, found.OrganizationID, found.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock membership")
		}
		if m == nil || m.StripeSubscriptionID == nil || *m.StripeSubscriptionID != sub.ID {
			return nil
		}
		m.SubscriptionStatus = &status
		if ended {
			m.StripeSubscriptionID = nil
			m.AutoPayEnabled = false
		}
		if err := repo.Save(ctx, m); err != nil {
			return memberships.MapSaveError(err)
		}
		s.logg.Info(s.logg.WithMembershipID(ctx, m.ID.String()), "subscription status synced")
		return nil
	})
}

func (s *Service) completeCheckout(ctx context.Context, session checkoutPayload) error {
	switch session.Mode {
	case string(stripe.CheckoutSessionModeSetup):
		if session.SetupIntent == "" || session.Customer == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "setup session missing customer or setup intent")
		}
		pmID, err := s.processor.SetupIntentPaymentMethod(ctx, session.SetupIntent)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve setup intent")
		}
		result, err := s.payers.CompleteSetup(ctx, session.Customer, pmID)
		if err != nil {
			return err
		}
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"activated": len(result.Activated),
			"failed":    len(result.Failed),
		}), "payer setup completed")
		return nil
	case string(stripe.CheckoutSessionModePayment):
		rawInvite := strings.TrimSpace(session.Metadata["invite_id"])
		if rawInvite == "" {
			return nil
		}
		inviteID, err := uuid.Parse(rawInvite)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invite_id metadata")
		}
		orgID, err := uuid.Parse(strings.TrimSpace(session.Metadata["organization_id"]))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "organization_id metadata")
		}
		_, err = s.onboarding.CompleteCheckout(ctx, orgID, inviteID, session.PaymentIntent)
		return err
	default:
		return nil
	}
}
