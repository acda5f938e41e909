package classifier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/spec-kit/ticket-triage/internal/config"
)

type fakeMessages struct {
	newFn func(ctx context.Context, body anthropic.MessageNewParams) (*anthropic.Message, error)
	calls int
}

func (f *fakeMessages) New(ctx context.Context, body anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	f.calls++
	return f.newFn(ctx, body)
}

type latencySpy struct{ n int }

func (s *latencySpy) RecordClassifierLatency(time.Duration) { s.n++ }

func textMessage(text string) *anthropic.Message {
	return &anthropic.Message{Content: []anthropic.ContentBlockUnion{{Type: "text", Text: text}}}
}

func testConfig() config.LLMConfig {
	return config.LLMConfig{Model: "test-model", MaxTokens: 256, TimeoutSeconds: 5}
}

func TestClassifySuccess(t *testing.T) {
	var captured anthropic.MessageNewParams
	fake := &fakeMessages{newFn: func(_ context.Context, body anthropic.MessageNewParams) (*anthropic.Message, error) {
		captured = body
		return textMessage("```json\n{\"priority\":\"high\",\"relatedSkills\":[\"auth\",\" \"],\"helpfulNotes\":\"reset tokens\"}\n```"), nil
	}}
	spy := &latencySpy{}
	gw := NewGatewayWithClient(fake, testConfig(), DefaultPrompt(), spy, nil)

	result, err := gw.Classify(context.Background(), "Cannot reset password", "link expired")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if result.Priority != "high" || len(result.RelatedSkills) != 1 || result.RelatedSkills[0] != "auth" {
		t.Fatalf("unexpected result %+v", result)
	}
	if string(captured.Model) != "test-model" || captured.MaxTokens != 256 {
		t.Fatalf("unexpected params model=%s max=%d", captured.Model, captured.MaxTokens)
	}
	if spy.n != 1 {
		t.Fatalf("expected one latency sample, got %d", spy.n)
	}
}

func TestClassifyFailures(t *testing.T) {
	tests := []struct {
		name      string
		reply     *anthropic.Message
		err       error
		malformed bool
	}{
		{name: "transport error", err: context.DeadlineExceeded},
		{name: "no text block", reply: &anthropic.Message{}},
		{name: "empty text", reply: textMessage("   ")},
		{name: "not json", reply: textMessage("I cannot help with that"), malformed: true},
		{name: "broken json", reply: textMessage(`{"priority": "high",`), malformed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeMessages{newFn: func(context.Context, anthropic.MessageNewParams) (*anthropic.Message, error) {
				return tt.reply, tt.err
			}}
			gw := NewGatewayWithClient(fake, testConfig(), Prompt{}, nil, nil)
			_, err := gw.Classify(context.Background(), "t", "d")
			if !errors.Is(err, ErrUnavailable) {
				t.Fatalf("Classify() error = %v, want ErrUnavailable", err)
			}
			if errors.Is(err, ErrMalformed) != tt.malformed {
				t.Fatalf("malformed = %v, want %v (err %v)", errors.Is(err, ErrMalformed), tt.malformed, err)
			}
		})
	}
}

func TestClassifyKeepsEmptySkills(t *testing.T) {
	fake := &fakeMessages{newFn: func(context.Context, anthropic.MessageNewParams) (*anthropic.Message, error) {
		return textMessage(`{"priority":"low","relatedSkills":[],"helpfulNotes":""}`), nil
	}}
	gw := NewGatewayWithClient(fake, testConfig(), DefaultPrompt(), nil, nil)
	result, err := gw.Classify(context.Background(), "t", "d")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if result.Usable() {
		t.Fatal("result without skills must not be usable")
	}
}

func TestClassifyHonoursCancelledContext(t *testing.T) {
	fake := &fakeMessages{newFn: func(context.Context, anthropic.MessageNewParams) (*anthropic.Message, error) {
		return textMessage(`{}`), nil
	}}
	cfg := testConfig()
	cfg.RequestsPerSecond = 0.001
	cfg.Burst = 1
	gw := NewGatewayWithClient(fake, cfg, DefaultPrompt(), nil, nil)

	if _, err := gw.Classify(context.Background(), "t", "d"); err != nil {
		t.Fatalf("first Classify() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := gw.Classify(ctx, "t", "d"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Classify() with exhausted limiter = %v", err)
	}
	if fake.calls != 1 {
		t.Fatalf("expected 1 model call, got %d", fake.calls)
	}
}

func TestParseResultExtractsEmbeddedObject(t *testing.T) {
	result, err := ParseResult("Sure! {\"priority\":\" Medium \",\"relatedSkills\":[\"React\"],\"helpfulNotes\":\"n\"} hope that helps")
	if err != nil {
		t.Fatalf("ParseResult() error = %v", err)
	}
	if result.Priority != "Medium" || result.RelatedSkills[0] != "React" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestNewAnthropicGatewayRequiresKey(t *testing.T) {
	if _, err := NewAnthropicGateway(config.LLMConfig{}, DefaultPrompt(), nil, nil); err == nil {
		t.Fatal("expected error without api key")
	}
	gw, err := NewAnthropicGateway(config.LLMConfig{AnthropicAPIKey: "k", Model: "m"}, DefaultPrompt(), nil, nil)
	if err != nil || gw == nil {
		t.Fatalf("NewAnthropicGateway() = %v, %v", gw, err)
	}
}

func TestLoadPrompt(t *testing.T) {
	p, err := LoadPrompt("")
	if err != nil || p.System != defaultSystemPrompt {
		t.Fatalf("LoadPrompt(\"\") = %+v, %v", p, err)
	}

	path := filepath.Join(t.TempDir(), "prompt.yaml")
	if err := os.WriteFile(path, []byte("system: be terse\n"), 0o600); err != nil {
		t.Fatalf("write prompt: %v", err)
	}
	p, err = LoadPrompt(path)
	if err != nil {
		t.Fatalf("LoadPrompt() error = %v", err)
	}
	if p.System != "be terse" || p.Instructions != defaultInstructions {
		t.Fatalf("unexpected prompt %+v", p)
	}

	if _, err := LoadPrompt(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}

	rendered := p.Render(" Title ", "Body")
	if !strings.Contains(rendered, "- Title: Title\n") || !strings.Contains(rendered, "- Description: Body") {
		t.Fatalf("unexpected render %q", rendered)
	}
}

func TestFromConfigUsesPromptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.yaml")
	if err := os.WriteFile(path, []byte("instructions: only json\n"), 0o600); err != nil {
		t.Fatalf("write prompt: %v", err)
	}
	gw, err := FromConfig(config.LLMConfig{AnthropicAPIKey: "k", PromptFile: path}, nil, nil)
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	if gw.prompt.Instructions != "only json" || gw.prompt.System != defaultSystemPrompt {
		t.Fatalf("unexpected prompt %+v", gw.prompt)
	}
	if _, err := FromConfig(config.LLMConfig{AnthropicAPIKey: "k", PromptFile: path + ".missing"}, nil, nil); err == nil {
		t.Fatal("expected error for missing prompt file")
	}
}
