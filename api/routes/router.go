package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/duesengine/api/controllers"
	webhookcontrollers "github.com/angelmondragon/duesengine/api/controllers/webhooks"
	"github.com/angelmondragon/duesengine/api/middleware"
	"github.com/angelmondragon/duesengine/internal/memberships"
	"github.com/angelmondragon/duesengine/internal/onboarding"
	"github.com/angelmondragon/duesengine/internal/overdue"
	"github.com/angelmondragon/duesengine/internal/payers"
	"github.com/angelmondragon/duesengine/internal/payments"
	"github.com/angelmondragon/duesengine/pkg/config"
	"github.com/angelmondragon/duesengine/pkg/db"
	"github.com/angelmondragon/duesengine/pkg/logger"
	"github.com/angelmondragon/duesengine/pkg/redis"
)

type signingClient interface {
	SigningSecret() string
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type sweepCache interface {
	Lookup(ctx context.Context, day time.Time) (*overdue.SweepResult, error)
	Remember(ctx context.Context, result *overdue.SweepResult) error
}

type redisStore interface {
	redis.Pinger
	redis.IdempotencyStore
}

// RouterParams carries everything the HTTP surface is wired to. Leave a field
// as an untyped nil when the binary does not provide it; handlers answer with
// an internal error instead of panicking.
type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          db.Pinger
	Redis       redisStore
	Metrics     http.Handler
	Memberships memberships.Service
	Payments    payments.Service
	Payers      payers.Service
	Onboarding  onboarding.Service
	Sweeper     overdue.Service
	SweepCache  sweepCache
	Now         func() time.Time

	StripeClient         signingClient
	StripeWebhookService webhookcontrollers.StripeWebhookService
	StripeWebhookGuard   webhookGuard
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	var redisPinger redis.Pinger
	var idemStore redis.IdempotencyStore
	if p.Redis != nil {
		redisPinger = p.Redis
		idemStore = p.Redis
	}
	idempotent := middleware.Idempotency(idemStore, logg, middleware.IdempotencyTTL)
	moneyIdempotent := middleware.Idempotency(idemStore, logg, middleware.PaymentIdempotencyTTL)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, redisPinger))
	})
	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(p.StripeWebhookService, p.StripeClient, p.StripeWebhookGuard, logg))
	})

	r.Route("/api/internal/v1", func(r chi.Router) {
		r.Use(middleware.CronSecret(cfg.Cron.Secret, logg))
		r.Post("/billing/sweep", controllers.BillingSweep(p.Sweeper, p.SweepCache, p.Now, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.OrganizationContext(logg))

		r.Route("/memberships/{membershipId}", func(r chi.Router) {
			r.Get("/", controllers.MembershipGet(p.Memberships, logg))
			r.Put("/billing-frequency", controllers.MembershipChangeFrequency(p.Memberships, logg))
			r.Post("/agreement", controllers.MembershipRecordAgreement(p.Memberships, logg))

			r.Get("/payments", controllers.PaymentList(p.Payments, logg))
			r.With(moneyIdempotent).Post("/payments", controllers.PaymentRecord(p.Payments, logg))
			r.Post("/payments/preview", controllers.PaymentPreview(p.Payments, logg))

			r.With(idempotent).Post("/payer", controllers.PayerAssign(p.Payers, logg))
			r.Delete("/payer", controllers.PayerRemove(p.Payers, logg))
		})

		r.Route("/payments/{paymentId}", func(r chi.Router) {
			r.Post("/reminders", controllers.PaymentSetReminders(p.Payments, logg))
			r.With(moneyIdempotent).Post("/refund", controllers.PaymentRefund(p.Payments, logg))
		})

		r.With(idempotent).Post("/onboarding/invites", controllers.OnboardingStart(p.Onboarding, logg))
		r.Post("/onboarding/invites/{inviteId}/steps/{step}", controllers.OnboardingRetryStep(p.Onboarding, logg))
		r.With(moneyIdempotent).Post("/onboarding/invites/{inviteId}/payments", controllers.OnboardingMarkPaid(p.Onboarding, logg))
	})

	return r
}
