package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/duesengine/api/responses"
	pkgerrors "github.com/angelmondragon/duesengine/pkg/errors"
	"github.com/angelmondragon/duesengine/pkg/logger"
)

const (
	signatureHeader = "Stripe-Signature"
	// Stripe payloads are well under this; anything larger is not an event.
	maxWebhookBody = 1 << 20
)

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type eventDeduper interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type stripeClient interface {
	SigningSecret() string
}

type ack struct {
	Received  bool   `json:"received"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Ignored   string `json:"ignored,omitempty"`
}

// StripeWebhook verifies the signature, drops redeliveries and applies the
// event. Retryable failures are unmarked and answered with an error so Stripe
// redelivers; final failures are acknowledged so it stops.
func StripeWebhook(svc StripeWebhookService, client stripeClient, dedupe eventDeduper, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || client == nil || dedupe == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhook not configured"))
			return
		}

		sig := r.Header.Get(signatureHeader)
		if sig == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}
		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read webhook body"))
			return
		}
		event, err := webhook.ConstructEventWithOptions(payload, sig, client.SigningSecret(), webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature"))
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"stripe_event_id": event.ID, "stripe_event_type": string(event.Type)})
		}

		seen, err := dedupe.CheckAndMark(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dedupe stripe event"))
			return
		}
		if seen {
			responses.WriteSuccess(w, ack{Received: true, Duplicate: true})
			return
		}

		err = svc.HandleEvent(ctx, &event)
		switch {
		case err == nil:
			if logg != nil {
				logg.Info(ctx, "stripe.event_applied")
			}
			responses.WriteSuccess(w, ack{Received: true})
		case pkgerrors.IsRetryable(err):
			if delErr := dedupe.Delete(ctx, event.ID); delErr != nil && logg != nil {
				logg.Error(ctx, "stripe.event_unmark_failed", delErr)
			}
			responses.WriteError(ctx, logg, w, err)
		default:
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "stripe.event_rejected")
			}
			responses.WriteSuccess(w, ack{Received: true, Ignored: string(pkgerrors.CodeOf(err))})
		}
	}
}
