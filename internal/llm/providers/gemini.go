package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"dreamlog/backend/internal/llm/contract"
)

type GeminiBackend struct {
	client  *genai.Client
	config  *contract.BackendConfig
	initErr error
}

func NewGeminiBackend(ctx context.Context, config *contract.BackendConfig) *GeminiBackend {
	if config.APIKey == "" {
		return &GeminiBackend{config: config, initErr: errors.New("gemini API key is required")}
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return &GeminiBackend{config: config, initErr: fmt.Errorf("failed to create GenAI client: %w", err)}
	}
	return &GeminiBackend{client: client, config: config}
}

func (g *GeminiBackend) Name() string { return "gemini" }

func (g *GeminiBackend) generate(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if g.client == nil {
		return nil, unavailable(g.initErr)
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.config.ModelName, genai.Text(prompt), cfg)
	if err != nil {
		return nil, unavailable(err)
	}
	return resp, nil
}

func (g *GeminiBackend) Classify(ctx context.Context, text string) (*contract.Classification, error) {
	resp, err := g.generate(ctx, buildPrompt(text), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(g.config.Temperature)),
		MaxOutputTokens:  int32(g.config.MaxTokens),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, err
	}
	content := strings.TrimSpace(resp.Text())
	if content == "" {
		return nil, fmt.Errorf("%w: empty response", contract.ErrMalformedResponse)
	}
	parsed, err := parseReply(content)
	if err != nil {
		return nil, err
	}
	if usage := resp.UsageMetadata; usage != nil {
		parsed.Usage = contract.Usage{
			InputTokens:  int(usage.PromptTokenCount),
			OutputTokens: int(usage.CandidatesTokenCount),
		}
	}
	return parsed, nil
}

func (g *GeminiBackend) HealthCheck(ctx context.Context) (*contract.HealthCheckResult, error) {
	start := time.Now()
	_, err := g.generate(ctx, "Respond with: OK", &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(0)),
		MaxOutputTokens: 8,
	})
	return healthResult(g.Name(), start, err), err
}
