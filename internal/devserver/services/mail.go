package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/filedeck/filedeck/internal/devserver/config"
	"github.com/resend/resend-go/v2"
)

// Mailer delivers account and sharing emails.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NewMailer sends through Resend when an API key is configured and logs
// messages otherwise.
func NewMailer(cfg config.MailConfig, log *slog.Logger) Mailer {
	if cfg.ResendAPIKey == "" {
		return LogMailer{Log: log}
	}
	return &ResendMailer{client: resend.NewClient(cfg.ResendAPIKey), from: cfg.From, log: log}
}

// LogMailer writes every message to the log instead of sending it.
type LogMailer struct {
	Log *slog.Logger
}

func (m LogMailer) Send(ctx context.Context, to, subject, body string) error {
	m.Log.InfoContext(ctx, "email_outbound", "to", to, "subject", subject, "body", body)
	return nil
}

type ResendMailer struct {
	client *resend.Client
	from   string
	log    *slog.Logger
}

func (m *ResendMailer) Send(ctx context.Context, to, subject, body string) error {
	if m.from == "" {
		return errors.New("MAIL_FROM is not set")
	}
	sent, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		Text:    body,
	})
	if err != nil {
		m.log.ErrorContext(ctx, "email_send_failed", "to", to, "subject", subject, "error", err)
		return err
	}
	m.log.InfoContext(ctx, "email_sent", "to", to, "subject", subject, "id", sent.Id)
	return nil
}
