package nlq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	bedrockruntime "github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// Oracle is an opaque text-completion service.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type BedrockClient interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockOracle sends prompts to a Claude model hosted on Bedrock.
type BedrockOracle struct {
	client    BedrockClient
	modelID   string
	maxTokens int
}

func NewBedrockOracle(c BedrockClient, modelID string, maxTokens int) (*BedrockOracle, error) {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return nil, fmt.Errorf("missing bedrock model id")
	}
	if maxTokens <= 0 {
		maxTokens = 700
	}
	return &BedrockOracle{client: c, modelID: modelID, maxTokens: maxTokens}, nil
}

// Complete uses the Anthropic-style payload Bedrock accepts for Claude models.
func (b *BedrockOracle) Complete(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        b.maxTokens,
		"temperature":       0.0,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": prompt},
				},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("bedrock payload: %w", err)
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("bedrock InvokeModel: %w", err)
	}

	// { "content":[{"type":"text","text":"..."}], ... }
	var raw struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(out.Body, &raw); err != nil {
		return "", fmt.Errorf("bedrock response unmarshal: %w", err)
	}

	var text strings.Builder
	for _, c := range raw.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	s := strings.TrimSpace(text.String())
	if s == "" {
		return "", fmt.Errorf("bedrock returned no text content")
	}
	return s, nil
}
