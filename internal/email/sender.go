package email

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"

	"github.com/Cedctf/foodbridge-sub000/internal/config"
)

// Message is a rendered plain-text email.
type Message struct {
	To         []string
	Subject    string
	Body       string
	TemplateID string // set for templated mail; used by capture senders as a lookup key
}

// Sender defines the interface for sending emails.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// dialer is the part of *gomail.Dialer SMTPSender uses.
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender sends mail through an SMTP relay with gomail.
type SMTPSender struct {
	from   string
	dialer dialer
}

// NewSMTPSender returns an SMTP sender, or a LoggingSender when no SMTP host is configured.
func NewSMTPSender(cfg *config.Config) Sender {
	if cfg.SmtpHost == "" {
		slog.Info("SMTP host not configured, using logging email sender")
		return &LoggingSender{from: cfg.SmtpFromAddress}
	}
	return &SMTPSender{
		from:   cfg.SmtpFromAddress,
		dialer: gomail.NewDialer(cfg.SmtpHost, cfg.SmtpPort, cfg.SmtpUsername, cfg.SmtpPassword),
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("email %q has no recipients", msg.Subject)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp error: %w", err)
	}
	slog.Info("email sent via SMTP", "to", msg.To, "subject", msg.Subject)
	return nil
}

// LoggingSender only logs the message. Used when SMTP isn't configured.
type LoggingSender struct {
	from string
}

func (s *LoggingSender) Send(_ context.Context, msg Message) error {
	slog.Info("email (logged, not sent)",
		"from", s.from, "to", msg.To, "subject", msg.Subject, "template", msg.TemplateID, "body", msg.Body)
	return nil
}
