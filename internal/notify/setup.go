package notify

import (
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/config"
)

// Routes holds the notifier for each kind of notice.
type Routes struct {
	// Assignment goes to mail and, when set, the ops webhook.
	Assignment *Fanout
	// Welcome goes to mail only. User emails stay out of the ops channel.
	Welcome *Fanout
}

// FromConfig assembles the configured channels. Mail goes through SMTP when a
// relay is set and is only logged otherwise; the webhook is added to
// assignment notices when a URL is set.
func FromConfig(cfg *config.Config, recorder Recorder, logger *zap.Logger) (*Routes, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var mail Notifier
	if cfg.SMTP.Enabled() {
		mailer, err := NewSMTPMailer(cfg.SMTP)
		if err != nil {
			return nil, err
		}
		mail = mailer
	} else {
		logger.Warn("smtp not configured, notifications will only be logged")
		mail = NewLogNotifier(logger)
	}
	var hook Notifier
	if url := strings.TrimSpace(cfg.Notification.WebhookURL); url != "" {
		hook = NewSlackWebhook(url)
	}
	return &Routes{
		Assignment: NewFanout(recorder, logger, mail, hook),
		Welcome:    NewFanout(recorder, logger, mail),
	}, nil
}
