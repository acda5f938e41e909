package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spec-kit/ticket-triage/internal/config"
)

type fakeNotifier struct {
	channel  string
	notifyFn func(ctx context.Context, msg Message) error
	sent     []Message
}

func (f *fakeNotifier) Channel() string { return f.channel }

func (f *fakeNotifier) Notify(ctx context.Context, msg Message) error {
	f.sent = append(f.sent, msg)
	if f.notifyFn != nil {
		return f.notifyFn(ctx, msg)
	}
	return nil
}

type recorderSpy struct {
	results map[string][]error
}

func (r *recorderSpy) RecordNotification(channel string, err error) {
	if r.results == nil {
		r.results = map[string][]error{}
	}
	r.results[channel] = append(r.results[channel], err)
}

func TestFanoutDeliversToAllAndJoinsErrors(t *testing.T) {
	boom := errors.New("relay down")
	email := &fakeNotifier{channel: "email", notifyFn: func(context.Context, Message) error { return boom }}
	hook := &fakeNotifier{channel: "webhook"}
	spy := &recorderSpy{}

	f := NewFanout(spy, nil, email, nil, hook)
	err := f.Notify(context.Background(), AssignmentMessage("mod@x.io", "Cannot reset password"))
	if !errors.Is(err, boom) {
		t.Fatalf("Notify() error = %v, want relay error", err)
	}
	if len(email.sent) != 1 || len(hook.sent) != 1 {
		t.Fatalf("expected both channels attempted, got email=%d webhook=%d", len(email.sent), len(hook.sent))
	}
	if spy.results["email"][0] == nil || spy.results["webhook"][0] != nil {
		t.Fatalf("unexpected recorder state %+v", spy.results)
	}
}

func TestFanoutRequiresRecipient(t *testing.T) {
	n := &fakeNotifier{channel: "email"}
	if err := NewFanout(nil, nil, n).Notify(context.Background(), Message{Subject: "s"}); err == nil {
		t.Fatal("expected error without recipient")
	}
	if len(n.sent) != 0 {
		t.Fatal("no channel should be attempted without a recipient")
	}
}

func TestChannelOfUnnamedNotifier(t *testing.T) {
	type plain struct{ Notifier }
	if got := channelOf(plain{}); got != "custom" {
		t.Fatalf("channelOf() = %s", got)
	}
	if got := channelOf(NewLogNotifier(nil)); got != "log" {
		t.Fatalf("channelOf(log) = %s", got)
	}
}

func TestTemplates(t *testing.T) {
	msg := AssignmentMessage("mod@x.io", "Printer on fire")
	if msg.To != "mod@x.io" || msg.Subject != "New Ticket Assigned to You" || !strings.Contains(msg.Body, `"Printer on fire"`) {
		t.Fatalf("unexpected assignment message %+v", msg)
	}
	welcome := WelcomeMessage("new@x.io")
	if welcome.To != "new@x.io" || welcome.Subject == "" {
		t.Fatalf("unexpected welcome message %+v", welcome)
	}
}

func TestSlackWebhookPostsText(t *testing.T) {
	var got struct {
		Text string `json:"text"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode webhook body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	hook := NewSlackWebhook(server.URL)
	if err := hook.Notify(context.Background(), AssignmentMessage("mod@x.io", "T")); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if !strings.Contains(got.Text, "New Ticket Assigned to You") || !strings.Contains(got.Text, "mod@x.io") {
		t.Fatalf("unexpected webhook text %q", got.Text)
	}
}

func TestSlackWebhookSurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	if err := NewSlackWebhook(server.URL).Notify(context.Background(), Message{To: "a@x.io"}); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestNewSMTPMailer(t *testing.T) {
	if _, err := NewSMTPMailer(config.SMTPConfig{}); err == nil {
		t.Fatal("expected error without host")
	}
	m, err := NewSMTPMailer(config.SMTPConfig{Host: "smtp.example.com", Port: 2525, Username: "u", Password: "p", From: "noreply@example.com"})
	if err != nil {
		t.Fatalf("NewSMTPMailer() error = %v", err)
	}
	if m.Channel() != "email" {
		t.Fatalf("Channel() = %s", m.Channel())
	}
}

func TestBuildMail(t *testing.T) {
	if _, err := buildMail("noreply@example.com", Message{To: "not an address"}); err == nil {
		t.Fatal("expected invalid recipient error")
	}
	if _, err := buildMail("", Message{To: "a@example.com"}); err == nil {
		t.Fatal("expected invalid sender error")
	}
	mm, err := buildMail("noreply@example.com", WelcomeMessage("a@example.com"))
	if err != nil {
		t.Fatalf("buildMail() error = %v", err)
	}
	if to := mm.GetToString(); len(to) != 1 || !strings.Contains(to[0], "a@example.com") {
		t.Fatalf("unexpected recipients %v", to)
	}
}

func TestFromConfigChannels(t *testing.T) {
	cfg := config.Defaults()
	cfg.SMTP.Host = ""
	cfg.Notification.WebhookURL = ""
	routes, err := FromConfig(cfg, nil, nil)
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	if n := routes.Assignment.notifiers; len(n) != 1 || channelOf(n[0]) != "log" {
		t.Fatalf("expected log notifier only, got %d", len(n))
	}

	cfg.SMTP.Host = "smtp.example.com"
	cfg.SMTP.Port = 587
	cfg.Notification.WebhookURL = "https://hooks.example.com/x"
	routes, err = FromConfig(cfg, nil, nil)
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	if n := routes.Assignment.notifiers; len(n) != 2 || channelOf(n[0]) != "email" || channelOf(n[1]) != "webhook" {
		t.Fatalf("unexpected assignment channels")
	}
	if n := routes.Welcome.notifiers; len(n) != 1 || channelOf(n[0]) != "email" {
		t.Fatalf("welcome mail must not reach the webhook, got %d channels", len(n))
	}
}

func TestFanoutChannelsSplitsAndKeepsRecording(t *testing.T) {
	email := &fakeNotifier{channel: "email"}
	hook := &fakeNotifier{channel: "webhook", notifyFn: func(context.Context, Message) error { return errors.New("503") }}
	spy := &recorderSpy{}
	f := NewFanout(spy, nil, email, hook)
	if f.Channel() != "fanout" {
		t.Fatalf("Channel() = %s", f.Channel())
	}

	parts := f.Channels()
	if len(parts) != 2 || channelOf(parts[0]) != "email" || channelOf(parts[1]) != "webhook" {
		t.Fatalf("unexpected split %v", parts)
	}
	msg := AssignmentMessage("mod@x.io", "Cannot reset password")
	if err := parts[0].Notify(context.Background(), msg); err != nil {
		t.Fatalf("email Notify() error = %v", err)
	}
	if err := parts[1].Notify(context.Background(), msg); err == nil {
		t.Fatal("expected webhook error")
	}
	if len(email.sent) != 1 || len(hook.sent) != 1 {
		t.Fatalf("each part should hit only its channel, got email=%d webhook=%d", len(email.sent), len(hook.sent))
	}
	if len(spy.results["email"]) != 1 || len(spy.results["webhook"]) != 1 {
		t.Fatalf("unexpected recorder state %+v", spy.results)
	}
}
