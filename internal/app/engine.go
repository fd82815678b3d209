package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"dreamlog/backend/internal/config"
	"dreamlog/backend/internal/dream"
	"dreamlog/backend/internal/llm"
)

// BuildEngine assembles the interpretation engine and its sentiment chain
// from configuration. The server and the CLI share it.
func BuildEngine(ctx context.Context, cfg config.DreamConfig, logger *zap.Logger) (*dream.Engine, *llm.Orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dict, err := dream.LoadDictionary(cfg.SymbolsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("symbols: %w", err)
	}

	configs := make([]llm.BackendConfig, len(cfg.Backends))
	copy(configs, cfg.Backends)
	for i := range configs {
		if configs[i].LexiconPath == "" {
			configs[i].LexiconPath = cfg.LexiconPath
		}
	}
	chain, err := llm.NewFactory(logger).BuildChain(ctx, configs)
	if err != nil {
		return nil, nil, err
	}
	orch := llm.NewOrchestrator(chain, cfg.BackendTimeout, logger)

	var rnd dream.RandomSource = dream.NewRandomSource()
	if cfg.Seeded {
		rnd = dream.NewSeededSource(cfg.Seed)
	}

	logger.Info("dream engine ready",
		zap.Strings("chain", orch.Chain()),
		zap.Int("symbols", dict.Len()),
		zap.Bool("seeded", cfg.Seeded))
	return dream.New(dict, orch, rnd, logger), orch, nil
}
