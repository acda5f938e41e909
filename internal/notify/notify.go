// Package notify delivers best-effort notices to people.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Message is a single notice to one recipient.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers a message.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Recorder counts delivery attempts per channel.
type Recorder interface {
	RecordNotification(channel string, err error)
}

type channelNamer interface {
	Channel() string
}

func channelOf(n Notifier) string {
	if named, ok := n.(channelNamer); ok {
		return named.Channel()
	}
	return "custom"
}

// Fanout sends every message to each of its notifiers.
type Fanout struct {
	notifiers []Notifier
	recorder  Recorder
	logger    *zap.Logger
}

// NewFanout builds a fan-out over the non-nil notifiers.
func NewFanout(recorder Recorder, logger *zap.Logger, notifiers ...Notifier) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	kept := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			kept = append(kept, n)
		}
	}
	return &Fanout{notifiers: kept, recorder: recorder, logger: logger}
}

// Notify tries every notifier and joins their errors.
func (f *Fanout) Notify(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("notification recipient is required")
	}
	var errs []error
	for _, n := range f.notifiers {
		channel := channelOf(n)
		err := n.Notify(ctx, msg)
		if f.recorder != nil {
			f.recorder.RecordNotification(channel, err)
		}
		if err != nil {
			f.logger.Warn("notification failed",
				zap.String("channel", channel),
				zap.String("to", msg.To),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", channel, err))
		}
	}
	return errors.Join(errs...)
}

// Channel names the single channel of a one-notifier fan-out.
func (f *Fanout) Channel() string {
	if len(f.notifiers) == 1 {
		return channelOf(f.notifiers[0])
	}
	return "fanout"
}

// Channels splits f into one fan-out per channel. Each keeps recording its
// own attempts, so a caller can retry one channel without resending on the
// others.
func (f *Fanout) Channels() []Notifier {
	out := make([]Notifier, 0, len(f.notifiers))
	for _, n := range f.notifiers {
		out = append(out, &Fanout{notifiers: []Notifier{n}, recorder: f.recorder, logger: f.logger})
	}
	return out
}

// LogNotifier only logs messages. Used when no mail relay is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier builds a log-only notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Channel() string { return "log" }

func (l *LogNotifier) Notify(_ context.Context, msg Message) error {
	l.logger.Info("notification",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}
