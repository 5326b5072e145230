package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const DefaultAnthropicModel = "claude-sonnet-4-5"

// AnthropicOracle completes prompts through the Anthropic Messages API.
type AnthropicOracle struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	log       *slog.Logger
}

// NewAnthropicOracle builds a client with SDK retries disabled; transport
// retries are owned by Retrying.
func NewAnthropicOracle(log *slog.Logger, apiKey, model string, maxTokens int64, opts ...option.RequestOption) (*AnthropicOracle, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("missing anthropic api key")
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultAnthropicModel
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	if log == nil {
		log = slog.Default()
	}
	reqOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &AnthropicOracle{
		client:    anthropic.NewClient(reqOpts...),
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
		log:       log,
	}, nil
}

func (c *AnthropicOracle) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	c.log.Debug("anthropic call starting", "model", c.model, "prompt_len", len(prompt))

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	duration := time.Since(start)
	if err != nil {
		c.log.Warn("anthropic call failed", "duration", duration, "error", err)
		return "", fmt.Errorf("anthropic API error: %w", err)
	}
	c.log.Debug("anthropic call completed", "duration", duration, "stop_reason", msg.StopReason)

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no text content in response")
	}
	return b.String(), nil
}
