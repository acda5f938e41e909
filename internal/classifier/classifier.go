// Package classifier turns a ticket's title and description into a triage
// judgment using an LLM.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spec-kit/ticket-triage/internal/config"
	"github.com/spec-kit/ticket-triage/internal/domain"
)

var (
	// ErrUnavailable covers every way classification can fail.
	ErrUnavailable = errors.New("classification unavailable")
	// ErrMalformed marks a response that arrived but could not be parsed.
	// It wraps ErrUnavailable.
	ErrMalformed = fmt.Errorf("%w: malformed response", ErrUnavailable)
)

// Gateway classifies a ticket.
type Gateway interface {
	Classify(ctx context.Context, title, description string) (*domain.TriageResult, error)
}

// MessagesAPI is the part of the Anthropic client the gateway calls.
type MessagesAPI interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// LatencyRecorder receives the duration of each model call.
type LatencyRecorder interface {
	RecordClassifierLatency(d time.Duration)
}

// AnthropicGateway calls the Messages API.
type AnthropicGateway struct {
	messages  MessagesAPI
	model     string
	maxTokens int64
	timeout   time.Duration
	prompt    Prompt
	limiter   *rate.Limiter
	metrics   LatencyRecorder
	logger    *zap.Logger
}

// NewAnthropicGateway builds the gateway from config. SDK retries are turned
// off; callers retry whole steps.
func NewAnthropicGateway(cfg config.LLMConfig, prompt Prompt, metrics LatencyRecorder, logger *zap.Logger) (*AnthropicGateway, error) {
	if strings.TrimSpace(cfg.AnthropicAPIKey) == "" {
		return nil, errors.New("anthropic api key is required")
	}
	client := anthropic.NewClient(
		option.WithAPIKey(cfg.AnthropicAPIKey),
		option.WithMaxRetries(0),
	)
	return NewGatewayWithClient(&client.Messages, cfg, prompt, metrics, logger), nil
}

// FromConfig loads the prompt overrides named by cfg and builds the gateway.
func FromConfig(cfg config.LLMConfig, metrics LatencyRecorder, logger *zap.Logger) (*AnthropicGateway, error) {
	prompt, err := LoadPrompt(cfg.PromptFile)
	if err != nil {
		return nil, err
	}
	return NewAnthropicGateway(cfg, prompt, metrics, logger)
}

// NewGatewayWithClient wires an existing messages client.
func NewGatewayWithClient(messages MessagesAPI, cfg config.LLMConfig, prompt Prompt, metrics LatencyRecorder, logger *zap.Logger) *AnthropicGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &AnthropicGateway{
		messages:  messages,
		model:     cfg.Model,
		maxTokens: maxTokens,
		timeout:   cfg.Timeout(),
		prompt:    prompt.withDefaults(),
		limiter:   rate.NewLimiter(limit, burst),
		metrics:   metrics,
		logger:    logger,
	}
}

// Classify asks the model for a priority, related skills and notes.
// A result with no skills is returned as is; deciding whether it is usable is
// up to the caller.
func (g *AnthropicGateway) Classify(ctx context.Context, title, description string) (*domain.TriageResult, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	message, err := g.messages.New(callCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: g.prompt.System},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(g.prompt.Render(title, description))),
		},
	})
	if g.metrics != nil {
		g.metrics.RecordClassifierLatency(time.Since(start))
	}
	if err != nil {
		g.logger.Warn("classifier call failed", zap.String("model", g.model), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	text := ""
	for _, block := range message.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	result, err := ParseResult(text)
	if err != nil {
		g.logger.Warn("classifier response rejected",
			zap.String("model", g.model),
			zap.Int("response_size", len(text)),
			zap.Error(err),
		)
		return nil, err
	}

	g.logger.Debug("classifier response",
		zap.String("model", g.model),
		zap.Int64("tokens_in", message.Usage.InputTokens),
		zap.Int64("tokens_out", message.Usage.OutputTokens),
		zap.Int("skills", len(result.RelatedSkills)),
	)
	return result, nil
}
