package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	cohere "github.com/cohere-ai/cohere-go"

	"dreamlog/backend/internal/llm/contract"
)

var errCohereNotInitialized = errors.New("cohere client not initialized")

type CohereBackend struct {
	client *cohere.Client
	config *contract.BackendConfig
}

func NewCohereBackend(config *contract.BackendConfig) *CohereBackend {
	client, err := cohere.CreateClient(config.APIKey)
	if err != nil {
		client = nil
	}
	return &CohereBackend{client: client, config: config}
}

func (c *CohereBackend) Name() string { return "cohere" }

type cohereResult struct {
	response *cohere.GenerateResponse
	err      error
}

// generate runs the SDK call, which takes no context, on its own goroutine so
// the caller is released as soon as ctx ends.
func (c *CohereBackend) generate(ctx context.Context, opts cohere.GenerateOptions) (*cohere.GenerateResponse, error) {
	if c.client == nil {
		return nil, unavailable(errCohereNotInitialized)
	}
	done := make(chan cohereResult, 1)
	go func() {
		response, err := c.client.Generate(opts)
		done <- cohereResult{response: response, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, unavailable(ctx.Err())
	case result := <-done:
		if result.err != nil {
			return nil, unavailable(result.err)
		}
		return result.response, nil
	}
}

func (c *CohereBackend) Classify(ctx context.Context, text string) (*contract.Classification, error) {
	maxTokens := uint(c.config.MaxTokens)
	temperature := c.config.Temperature
	response, err := c.generate(ctx, cohere.GenerateOptions{
		Model:       c.config.ModelName,
		Prompt:      buildPrompt(text),
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, err
	}
	if response == nil || len(response.Generations) == 0 {
		return nil, fmt.Errorf("%w: empty response", contract.ErrMalformedResponse)
	}
	return parseReply(response.Generations[0].Text)
}

func (c *CohereBackend) HealthCheck(ctx context.Context) (*contract.HealthCheckResult, error) {
	start := time.Now()
	maxTokens := uint(10)
	temperature := 0.0
	_, err := c.generate(ctx, cohere.GenerateOptions{
		Model:       c.config.ModelName,
		Prompt:      "Respond with: OK",
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	})
	return healthResult(c.Name(), start, err), err
}
