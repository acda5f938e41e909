package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/spec-kit/ticket-triage/internal/config"
)

const smtpTimeout = 15 * time.Second

// SMTPMailer sends plain-text mail through a relay.
type SMTPMailer struct {
	client *mail.Client
	from   string
}

// NewSMTPMailer configures a relay client. Authentication is only enabled
// when a username is set.
func NewSMTPMailer(cfg config.SMTPConfig) (*SMTPMailer, error) {
	if !cfg.Enabled() {
		return nil, errors.New("smtp host is not configured")
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(smtpTimeout),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPMailer{client: client, from: cfg.From}, nil
}

func (m *SMTPMailer) Channel() string { return "email" }

// Notify delivers msg in a single SMTP session.
func (m *SMTPMailer) Notify(ctx context.Context, msg Message) error {
	mm, err := buildMail(m.from, msg)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, mm); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}

func buildMail(from string, msg Message) (*mail.Msg, error) {
	mm := mail.NewMsg()
	if err := mm.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}
	if err := mm.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	mm.Subject(msg.Subject)
	mm.SetBodyString(mail.TypeTextPlain, msg.Body)
	return mm, nil
}
