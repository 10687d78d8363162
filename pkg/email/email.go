package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/duesengine/pkg/config"
	"github.com/angelmondragon/duesengine/pkg/logger"
)

// Message is a dynamic-template email to a single recipient.
type Message struct {
	TemplateID string
	ToEmail    string
	ToName     string
	Data       map[string]any
}

// Sender delivers transactional email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}


// SendgridSender delivers messages through SendGrid dynamic templates.
type SendgridSender struct {
	client   *sendgrid.Client
	fromAddr string
	fromName string
}

// NewSendgridSender validates the configuration and builds a sender.
func NewSendgridSender(cfg config.SendgridConfig) (*SendgridSender, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("sendgrid api key is required")
	}
	if cfg.DefaultFrom == "" {
		return nil, errors.New("sendgrid from email is required")
	}
	return &SendgridSender{
		client:   sendgrid.NewSendClient(cfg.APIKey),
		fromAddr: cfg.DefaultFrom,
		fromName: cfg.FromName,
	}, nil
}

// Send implements Sender.
func (s *SendgridSender) Send(ctx context.Context, msg Message) error {
	resp, err := s.client.SendWithContext(ctx, BuildMail(s.fromName, s.fromAddr, msg))
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// BuildMail renders msg into a SendGrid v3 payload.
func BuildMail(fromName, fromAddr string, msg Message) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(fromName, fromAddr))
	m.SetTemplateID(msg.TemplateID)

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.ToName, msg.ToEmail))
	for key, value := range msg.Data {
		p.SetDynamicTemplateData(key, value)
	}
	m.AddPersonalizations(p)
	return m
}

// LogSender records messages in the log instead of sending them. Used when no
// SendGrid key is configured.
type LogSender struct {
	Logger *logger.Logger
}

// Send implements Sender.
func (s LogSender) Send(ctx context.Context, msg Message) error {
	if s.Logger == nil {
		return nil
	}
	logCtx := s.Logger.WithFields(ctx, map[string]any{
		"template_id": msg.TemplateID,
		"to":          msg.ToEmail,
	})
	s.Logger.Info(logCtx, "email delivery disabled; message logged")
	return nil
}
