package notifications

import (
	"context"
	"time"

	"github.com/angelmondragon/duesengine/pkg/config"
	"github.com/angelmondragon/duesengine/pkg/db/models"
	"github.com/angelmondragon/duesengine/pkg/email"
	"github.com/angelmondragon/duesengine/pkg/enums"
	"github.com/angelmondragon/duesengine/pkg/logger"
)

// Templates maps each notification to a SendGrid dynamic template id.
type Templates struct {
	StatusChanged   string
	PaymentReminder string
	PayerSetup      string
	Onboarding      string
}

// TemplatesFromConfig reads template ids from the SendGrid config section.
func TemplatesFromConfig(cfg config.SendgridConfig) Templates {
	return Templates{
		StatusChanged:   cfg.StatusChangedTemplate,
		PaymentReminder: cfg.PaymentReminderTemplate,
		PayerSetup:      cfg.PayerSetupTemplate,
		Onboarding:      cfg.OnboardingTemplate,
	}
}

// Dispatcher sends member-facing emails. Every method is best-effort: it
// reports whether the send succeeded and logs failures instead of returning them.
type Dispatcher struct {
	sender    email.Sender
	templates Templates
	logg      *logger.Logger
}

// NewDispatcher builds a dispatcher; a nil sender makes every send report false.
func NewDispatcher(sender email.Sender, templates Templates, logg *logger.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, templates: templates, logg: logg}
}

// StatusChanged tells the member their membership status moved.
func (d *Dispatcher) StatusChanged(ctx context.Context, member models.Member, from, to enums.MembershipStatus) bool {
	if d == nil {
		return false
	}
	return d.send(ctx, "status_changed", email.Message{
		TemplateID: d.templates.StatusChanged,
		ToEmail:    member.Email,
		ToName:     member.FullName(),
		Data: map[string]any{
			"first_name":      member.FirstName,
			"previous_status": from.String(),
			"new_status":      to.String(),
		},
	})
}

// PaymentReminder nudges the member about an unpaid dues invoice.
func (d *Dispatcher) PaymentReminder(ctx context.Context, member models.Member, payment models.Payment, reminderNumber int) bool {
	if d == nil {
		return false
	}
	data := map[string]any{
		"first_name":      member.FirstName,
		"amount_cents":    payment.AmountCents,
		"reminder_number": reminderNumber,
	}
	if payment.DueDate != nil {
		data["due_date"] = payment.DueDate.Format(time.DateOnly)
	}
	return d.send(ctx, "payment_reminder", email.Message{
		TemplateID: d.templates.PaymentReminder,
		ToEmail:    member.Email,
		ToName:     member.FullName(),
		Data:       data,
	})
}

// PayerSetupRequested asks the payer to put a card on file for the beneficiary's dues.
func (d *Dispatcher) PayerSetupRequested(ctx context.Context, payer, beneficiary models.Member, setupURL string) bool {
	if d == nil {
		return false
	}
	return d.send(ctx, "payer_setup", email.Message{
		TemplateID: d.templates.PayerSetup,
		ToEmail:    payer.Email,
		ToName:     payer.FullName(),
		Data: map[string]any{
			"first_name":       payer.FirstName,
			"beneficiary_name": beneficiary.FullName(),
			"setup_url":        setupURL,
		},
	})
}

// OnboardingInvite sends the first-payment invitation.
func (d *Dispatcher) OnboardingInvite(ctx context.Context, member models.Member, invite models.OnboardingInvite) bool {
	if d == nil {
		return false
	}
	data := map[string]any{
		"first_name":                  member.FirstName,
		"method":                      string(invite.Method),
		"dues_amount_cents":           invite.DuesAmountCents,
		"includes_enrollment_fee":     invite.IncludesEnrollmentFee,
		"enrollment_fee_amount_cents": invite.EnrollmentFeeAmountCents,
		"expires_at":                  invite.ExpiresAt.Format(time.DateOnly),
	}
	if invite.SetupURL != nil {
		data["setup_url"] = *invite.SetupURL
	}
	return d.send(ctx, "onboarding_invite", email.Message{
		TemplateID: d.templates.Onboarding,
		ToEmail:    member.Email,
		ToName:     member.FullName(),
		Data:       data,
	})
}

func (d *Dispatcher) send(ctx context.Context, kind string, msg email.Message) bool {
	if d.sender == nil {
		return false
	}
	if msg.ToEmail == "" {
		d.warn(ctx, kind, "recipient has no email address")
		return false
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		if d.logg != nil {
			d.logg.Error(d.logg.WithField(ctx, "notification", kind), "notification send failed", err)
		}
		return false
	}
	return true
}

func (d *Dispatcher) warn(ctx context.Context, kind, msg string) {
	if d.logg == nil {
		return
	}
	d.logg.Warn(d.logg.WithField(ctx, "notification", kind), msg)
}
