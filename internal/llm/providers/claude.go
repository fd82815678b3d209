package providers

import (
	"context"
	"fmt"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"dreamlog/backend/internal/llm/contract"
)

type ClaudeBackend struct {
	client anthropic.Client
	config *contract.BackendConfig
}

func NewClaudeBackend(config *contract.BackendConfig) *ClaudeBackend {
	client := anthropic.NewClient(option.WithAPIKey(config.APIKey), option.WithMaxRetries(0))
	return &ClaudeBackend{client: client, config: config}
}

func (c *ClaudeBackend) Name() string { return "claude" }

func (c *ClaudeBackend) Classify(ctx context.Context, text string) (*contract.Classification, error) {
	response, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.config.ModelName),
		MaxTokens:   int64(c.config.MaxTokens),
		Temperature: anthropic.Float(c.config.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(text))),
		},
	})
	if err != nil {
		return nil, unavailable(err)
	}
	if response == nil || len(response.Content) == 0 {
		return nil, fmt.Errorf("%w: empty response", contract.ErrMalformedResponse)
	}
	parsed, err := parseReply(response.Content[0].Text)
	if err != nil {
		return nil, err
	}
	parsed.Usage = contract.Usage{
		InputTokens:  int(response.Usage.InputTokens),
		OutputTokens: int(response.Usage.OutputTokens),
	}
	return parsed, nil
}

func (c *ClaudeBackend) HealthCheck(ctx context.Context) (*contract.HealthCheckResult, error) {
	start := time.Now()
	_, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.config.ModelName),
		MaxTokens:   int64(32),
		Temperature: anthropic.Float(0),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("Respond with: OK")),
		},
	})
	return healthResult(c.Name(), start, err), err
}
