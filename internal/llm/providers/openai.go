package providers

import (
	"context"
	"fmt"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"dreamlog/backend/internal/llm/contract"
)

type OpenAIBackend struct {
	client openai.Client
	config *contract.BackendConfig
}

func NewOpenAIBackend(config *contract.BackendConfig) *OpenAIBackend {
	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	return &OpenAIBackend{
		client: openai.NewClient(opts...),
		config: config,
	}
}

func (o *OpenAIBackend) Name() string { return "openai" }

func (o *OpenAIBackend) Classify(ctx context.Context, text string) (*contract.Classification, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(o.config.ModelName),
		Temperature: openai.Float(o.config.Temperature),
		MaxTokens:   openai.Int(int64(o.config.MaxTokens)),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "dream_interpretation",
					Schema: interpretationSchema,
					Strict: openai.Bool(true),
				},
			},
		},
		Messages: []openai.ChatCompletionMessageParamUnion{
			userMessage(buildPrompt(text)),
		},
	})
	if err != nil {
		return nil, unavailable(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", contract.ErrMalformedResponse)
	}
	parsed, err := parseReply(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	parsed.Usage = contract.Usage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
	return parsed, nil
}

func (o *OpenAIBackend) HealthCheck(ctx context.Context) (*contract.HealthCheckResult, error) {
	start := time.Now()
	_, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(o.config.ModelName),
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(8),
		Messages: []openai.ChatCompletionMessageParamUnion{
			userMessage("Respond with: OK"),
		},
	})
	return healthResult(o.Name(), start, err), err
}

func userMessage(content string) openai.ChatCompletionMessageParamUnion {
	return openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfString: openai.String(content),
			},
		},
	}
}

func healthResult(name string, start time.Time, err error) *contract.HealthCheckResult {
	status := "ok"
	msg := ""
	if err != nil {
		status = "error"
		msg = err.Error()
	}
	return &contract.HealthCheckResult{
		Backend:      name,
		Status:       status,
		Latency:      time.Since(start),
		ErrorMessage: msg,
		Timestamp:    time.Now().UTC(),
	}
}
