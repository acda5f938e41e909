package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackWebhook copies notices into an ops channel through an incoming webhook.
type SlackWebhook struct {
	url string
}

// NewSlackWebhook posts to url.
func NewSlackWebhook(url string) *SlackWebhook {
	return &SlackWebhook{url: url}
}

func (w *SlackWebhook) Channel() string { return "webhook" }

func (w *SlackWebhook) Notify(ctx context.Context, msg Message) error {
	text := fmt.Sprintf("*%s* (to %s)\n%s", msg.Subject, msg.To, msg.Body)
	if err := slack.PostWebhookContext(ctx, w.url, &slack.WebhookMessage{Text: text}); err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	return nil
}
