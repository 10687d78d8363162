// Package app assembles the billing services from their infrastructure so the
// API and the cron worker run the same graph.
package app

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/duesengine/internal/members"
	"github.com/angelmondragon/duesengine/internal/memberships"
	"github.com/angelmondragon/duesengine/internal/notifications"
	"github.com/angelmondragon/duesengine/internal/onboarding"
	"github.com/angelmondragon/duesengine/internal/organizations"
	"github.com/angelmondragon/duesengine/internal/overdue"
	"github.com/angelmondragon/duesengine/internal/payers"
	"github.com/angelmondragon/duesengine/internal/payments"
	"github.com/angelmondragon/duesengine/internal/subscriptions"
	stripewebhook "github.com/angelmondragon/duesengine/internal/webhooks/stripe"
	"github.com/angelmondragon/duesengine/pkg/config"
	"github.com/angelmondragon/duesengine/pkg/db"
	"github.com/angelmondragon/duesengine/pkg/email"
	"github.com/angelmondragon/duesengine/pkg/logger"
	"github.com/angelmondragon/duesengine/pkg/metrics"
	"github.com/angelmondragon/duesengine/pkg/redis"
	pkgstripe "github.com/angelmondragon/duesengine/pkg/stripe"
)

const webhookDedupeTTL = 72 * time.Hour

type Params struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        *gorm.DB
	Redis     *redis.Client
	Processor subscriptions.Processor
	// Sender may be nil; notifications then report as undelivered.
	Sender  email.Sender
	Metrics *metrics.BillingMetrics
	Now     func() time.Time
}

// Services is the wired service graph.
type Services struct {
	Memberships   memberships.Service
	Payments      payments.Service
	Payers        payers.Service
	Onboarding    onboarding.Service
	Overdue       overdue.Service
	SweepCache    *overdue.ResultCache
	Webhooks      *stripewebhook.Service
	WebhookGuard  *stripewebhook.EventDeduper
	Notifications *notifications.Dispatcher
}

// Build constructs every service on top of one database handle.
func Build(p Params) (*Services, error) {
	if p.Config == nil {
		return nil, errors.New("config required")
	}
	if p.DB == nil {
		return nil, errors.New("database required")
	}
	if p.Redis == nil {
		return nil, errors.New("redis required")
	}
	if p.Processor == nil {
		return nil, errors.New("payment processor required")
	}
	cfg := p.Config

	txRunner := db.NewFromConn(p.DB)
	membershipRepo := memberships.NewRepository(p.DB)
	memberRepo := members.NewRepository(p.DB)
	orgRepo := organizations.NewRepository(p.DB)
	paymentRepo := payments.NewRepository(p.DB)
	dispatcher := notifications.NewDispatcher(p.Sender, notifications.TemplatesFromConfig(cfg.Sendgrid), p.Logger)

	out := &Services{Notifications: dispatcher}
	var err error

	if out.Memberships, err = memberships.NewService(memberships.ServiceParams{
		Repo:              membershipRepo,
		TransactionRunner: txRunner,
		Logger:            p.Logger,
		Now:               p.Now,
	}); err != nil {
		return nil, fmt.Errorf("membership service: %w", err)
	}

	if out.Payments, err = payments.NewService(payments.ServiceParams{
		Repo:                 paymentRepo,
		MembershipRepo:       membershipRepo,
		MemberRepo:           memberRepo,
		OrganizationRepo:     orgRepo,
		TransactionRunner:    txRunner,
		Notifier:             dispatcher,
		Metrics:              p.Metrics,
		Logger:               p.Logger,
		EligibilityThreshold: cfg.Billing.EligibilityThreshold,
		Now:                  p.Now,
	}); err != nil {
		return nil, fmt.Errorf("payment service: %w", err)
	}

	if out.Payers, err = payers.NewService(payers.ServiceParams{
		MembershipRepo:    membershipRepo,
		MemberRepo:        memberRepo,
		OrganizationRepo:  orgRepo,
		Processor:         p.Processor,
		TransactionRunner: txRunner,
		Notifier:          dispatcher,
		Metrics:           p.Metrics,
		Logger:            p.Logger,
		PublicURL:         cfg.App.PublicURL,
	}); err != nil {
		return nil, fmt.Errorf("payer service: %w", err)
	}

	if out.Onboarding, err = onboarding.NewService(onboarding.ServiceParams{
		Repo:              onboarding.NewRepository(p.DB),
		PaymentRepo:       paymentRepo,
		Payments:          out.Payments,
		MembershipRepo:    membershipRepo,
		MemberRepo:        memberRepo,
		OrganizationRepo:  orgRepo,
		Processor:         p.Processor,
		TransactionRunner: txRunner,
		Notifier:          dispatcher,
		Logger:            p.Logger,
		PublicURL:         cfg.App.PublicURL,
		InviteTTL:         cfg.Billing.InviteTTL,
		Now:               p.Now,
	}); err != nil {
		return nil, fmt.Errorf("onboarding service: %w", err)
	}

	if out.Overdue, err = overdue.NewService(overdue.ServiceParams{
		Policy:            cfg.Billing,
		MembershipRepo:    membershipRepo,
		PaymentRepo:       paymentRepo,
		MemberRepo:        memberRepo,
		OrganizationRepo:  orgRepo,
		Processor:         p.Processor,
		TransactionRunner: txRunner,
		Notifier:          dispatcher,
		Metrics:           p.Metrics,
		Logger:            p.Logger,
	}); err != nil {
		return nil, fmt.Errorf("overdue service: %w", err)
	}

	if out.SweepCache, err = overdue.NewResultCache(p.Redis, cfg.Cron.SweepCacheTTL); err != nil {
		return nil, fmt.Errorf("sweep cache: %w", err)
	}

	if out.Webhooks, err = stripewebhook.NewService(stripewebhook.ServiceParams{
		Payments:          out.Payments,
		Payers:            out.Payers,
		Onboarding:        out.Onboarding,
		MembershipRepo:    membershipRepo,
		Processor:         p.Processor,
		TransactionRunner: txRunner,
		Logger:            p.Logger,
	}); err != nil {
		return nil, fmt.Errorf("stripe webhook service: %w", err)
	}

	if out.WebhookGuard, err = stripewebhook.NewEventDeduper(p.Redis, webhookDedupeTTL); err != nil {
		return nil, fmt.Errorf("stripe webhook guard: %w", err)
	}

	return out, nil
}

// NewStripeProcessor adapts the configured Stripe client to the processor port.
func NewStripeProcessor(client *pkgstripe.Client) (*subscriptions.StripeProcessor, error) {
	if client == nil {
		return nil, errors.New("stripe client required")
	}
	return subscriptions.NewStripeProcessor(subscriptions.StripeProcessorParams{
		API:       subscriptions.NewStripeClient(client),
		ProductID: client.DuesProductID(),
		Currency:  client.Currency(),
	})
}
