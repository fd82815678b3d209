package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dreamlog/backend/internal/config"
	"dreamlog/backend/internal/dream"
	"dreamlog/backend/internal/llm"
)

func TestBuildEngineSeededIsReproducible(t *testing.T) {
	cfg := config.DreamConfig{
		Backends:       []llm.BackendConfig{{Name: "lexicon"}, {Name: "openai"}},
		BackendTimeout: time.Second,
		Seed:           42,
		Seeded:         true,
	}
	input := dream.DreamInput{Content: "我在一間很大的房子裡迷路了，一直找不到出口，後來醒了", MoodLevel: 2}

	first, orch, err := BuildEngine(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"lexicon", "null"}, orch.Chain())

	second, _, err := BuildEngine(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, first.Analyze(context.Background(), input), second.Analyze(context.Background(), input))
}

func TestBuildEngineErrors(t *testing.T) {
	_, _, err := BuildEngine(context.Background(), config.DreamConfig{SymbolsPath: "/does/not/exist.yaml"}, nil)
	assert.Error(t, err)

	_, _, err = BuildEngine(context.Background(), config.DreamConfig{Backends: []llm.BackendConfig{{Name: "oracle"}}}, nil)
	assert.ErrorIs(t, err, llm.ErrUnknownBackend)
}
