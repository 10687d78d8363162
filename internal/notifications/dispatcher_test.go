package notifications

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/duesengine/pkg/db/models"
	"github.com/angelmondragon/duesengine/pkg/email"
	"github.com/angelmondragon/duesengine/pkg/enums"
	"github.com/angelmondragon/duesengine/pkg/logger"
)

type recordingSender struct {
	sent []email.Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg email.Message) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func TestStatusChangedUsesTemplate(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, Templates{StatusChanged: "d-status"}, nil)

	ok := d.StatusChanged(context.Background(), models.Member{FirstName: "Ada", LastName: "L", Email: "ada@example.org"},
		enums.MembershipStatusWaitingPeriod, enums.MembershipStatusActive)
	if !ok {
		t.Fatalf("expected send to succeed")
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.TemplateID != "d-status" || msg.ToName != "Ada L" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.Data["new_status"] != "active" {
		t.Fatalf("unexpected data %+v", msg.Data)
	}
}

func TestPaymentReminderIncludesDueDate(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, Templates{PaymentReminder: "d-remind"}, nil)
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	d.PaymentReminder(context.Background(), models.Member{Email: "bo@example.org"}, models.Payment{AmountCents: 5000, DueDate: &due}, 2)
	if got := sender.sent[0].Data["due_date"]; got != "2026-03-01" {
		t.Fatalf("unexpected due date %v", got)
	}
}

func TestSendFailureIsLoggedNotReturned(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	d := NewDispatcher(&recordingSender{err: errors.New("smtp down")}, Templates{}, logg)

	if d.PayerSetupRequested(context.Background(), models.Member{Email: "p@example.org"}, models.Member{}, "https://setup") {
		t.Fatalf("expected failed send to report false")
	}
	if !strings.Contains(buf.String(), "notification send failed") {
		t.Fatalf("expected failure to be logged, got %s", buf.String())
	}
}

func TestMissingRecipientOrSender(t *testing.T) {
	d := NewDispatcher(&recordingSender{}, Templates{}, nil)
	if d.OnboardingInvite(context.Background(), models.Member{}, models.OnboardingInvite{}) {
		t.Fatalf("expected missing email to report false")
	}
	var nilDispatcher *Dispatcher
	member := models.Member{Email: "x@example.org"}
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sends := map[string]bool{
		"status_changed":    nilDispatcher.StatusChanged(context.Background(), member, "", ""),
		"payment_reminder":  nilDispatcher.PaymentReminder(context.Background(), member, models.Payment{DueDate: &due}, 1),
		"payer_setup":       nilDispatcher.PayerSetupRequested(context.Background(), member, member, "https://example.org/setup"),
		"onboarding_invite": nilDispatcher.OnboardingInvite(context.Background(), member, models.OnboardingInvite{}),
	}
	for kind, sent := range sends {
		if sent {
			t.Fatalf("nil dispatcher should report false for %s", kind)
		}
	}
	if NewDispatcher(nil, Templates{}, nil).StatusChanged(context.Background(), member, "", "") {
		t.Fatalf("dispatcher without sender should report false")
	}
}
