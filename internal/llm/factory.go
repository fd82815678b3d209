package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"dreamlog/backend/internal/llm/providers"
)

var (
	ErrUnknownBackend = errors.New("unknown sentiment backend")
	errMissingAPIKey  = errors.New("api key not configured")
)

type Factory struct {
	logger *zap.Logger
}

func NewFactory(logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{logger: logger}
}

func (f *Factory) CreateBackend(ctx context.Context, config *BackendConfig) (Backend, error) {
	name := strings.ToLower(strings.TrimSpace(config.Name))
	switch name {
	case "claude", "anthropic":
		if config.APIKey == "" {
			return nil, errMissingAPIKey
		}
		return providers.NewClaudeBackend(config), nil
	case "openai":
		if config.APIKey == "" {
			return nil, errMissingAPIKey
		}
		return providers.NewOpenAIBackend(config), nil
	case "cohere":
		if config.APIKey == "" {
			return nil, errMissingAPIKey
		}
		return providers.NewCohereBackend(config), nil
	case "google", "gemini":
		if config.APIKey == "" {
			return nil, errMissingAPIKey
		}
		return providers.NewGeminiBackend(ctx, config), nil
	case "lexicon", "local":
		backend := providers.NewLexiconBackend(config.LexiconPath)
		if !backend.Available() {
			// Kept in the chain so every request records the failure.
			f.logger.Warn("local classifier could not load its lexicon",
				zap.String("path", config.LexiconPath))
		}
		return backend, nil
	case "null", "none":
		return providers.NewNullBackend(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, config.Name)
	}
}

// BuildChain creates backends in configured order. Remote backends without
// credentials are skipped; unknown names are a configuration error.
func (f *Factory) BuildChain(ctx context.Context, configs []BackendConfig) ([]Backend, error) {
	chain := make([]Backend, 0, len(configs))
	for i := range configs {
		config := configs[i]
		backend, err := f.CreateBackend(ctx, &config)
		if errors.Is(err, errMissingAPIKey) {
			f.logger.Warn("skipping sentiment backend without credentials",
				zap.String("backend", config.Name))
			continue
		}
		if err != nil {
			return nil, err
		}
		chain = append(chain, backend)
	}
	return chain, nil
}
