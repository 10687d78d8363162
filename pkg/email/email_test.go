package email

import (
	"context"
	"testing"

	"github.com/angelmondragon/duesengine/pkg/config"
)

func TestNewSendgridSenderValidatesConfig(t *testing.T) {
	if _, err := NewSendgridSender(config.SendgridConfig{}); err == nil {
		t.Fatalf("expected missing api key error")
	}
	if _, err := NewSendgridSender(config.SendgridConfig{APIKey: "SG.x"}); err == nil {
		t.Fatalf("expected missing from error")
	}
	if _, err := NewSendgridSender(config.SendgridConfig{APIKey: "SG.x", DefaultFrom: "dues@example.org"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBuildMailCarriesTemplateAndData(t *testing.T) {
	m := BuildMail("Dues", "dues@example.org", Message{
		TemplateID: "d-123",
		ToEmail:    "ada@example.org",
		ToName:     "Ada",
		Data:       map[string]any{"reminder_number": 2},
	})
	if m.TemplateID != "d-123" {
		t.Fatalf("unexpected template %q", m.TemplateID)
	}
	if m.From == nil || m.From.Address != "dues@example.org" {
		t.Fatalf("unexpected from %+v", m.From)
	}
	if len(m.Personalizations) != 1 {
		t.Fatalf("expected one personalization, got %d", len(m.Personalizations))
	}
	p := m.Personalizations[0]
	if len(p.To) != 1 || p.To[0].Address != "ada@example.org" {
		t.Fatalf("unexpected recipients %+v", p.To)
	}
	if p.DynamicTemplateData["reminder_number"] != 2 {
		t.Fatalf("missing template data: %+v", p.DynamicTemplateData)
	}
}

func TestLogSenderNeverFails(t *testing.T) {
	if err := (LogSender{}).Send(context.Background(), Message{ToEmail: "x@example.org"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
