package providers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dreamlog/backend/internal/llm/contract"
)

func TestExtractJSON(t *testing.T) {
	input := "prefix {\"key\":\"value\"} suffix"
	output := extractJSON(input)
	if output != "{\"key\":\"value\"}" {
		t.Fatalf("unexpected output: %s", output)
	}

	input = "[\"a\",\"b\"]"
	output = extractJSON(input)
	if output != input {
		t.Fatalf("unexpected output for array")
	}
}

func TestParseReply(t *testing.T) {
	reply := "```json\n{\"narrative\":\"蛇代表轉變\",\"keywords\":[\"蛇\",\" \",\"水\"],\"sentiment\":{\"positive\":0.2,\"neutral\":0.3,\"negative\":1.7}}\n```"
	parsed, err := parseReply(reply)
	require.NoError(t, err)
	assert.Equal(t, "蛇代表轉變", parsed.Narrative)
	assert.Equal(t, []string{"蛇", "水"}, parsed.Keywords)
	assert.InDelta(t, 0.2, parsed.Distribution.Positive, 1e-9)
	assert.InDelta(t, 0.3, parsed.Distribution.Neutral, 1e-9)
	assert.InDelta(t, 1.0, parsed.Distribution.Negative, 1e-9)
}

func TestParseReplyAcceptsInterpretationField(t *testing.T) {
	parsed, err := parseReply(`{"interpretation":"平靜的夢","sentiment":{"positive":0.6}}`)
	require.NoError(t, err)
	assert.Equal(t, "平靜的夢", parsed.Narrative)
	assert.Empty(t, parsed.Keywords)
	assert.Zero(t, parsed.Distribution.Negative)
}

func TestParseReplyMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":          "I cannot help with that",
		"missing sentiment": `{"narrative":"x"}`,
		"empty sentiment":   `{"sentiment":{}}`,
		"string weight":     `{"sentiment":{"positive":"high"}}`,
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseReply(reply)
			require.Error(t, err)
			assert.True(t, errors.Is(err, contract.ErrMalformedResponse))
		})
	}
}

func TestInterpretationSchemaIsStrict(t *testing.T) {
	assert.Equal(t, false, interpretationSchema["additionalProperties"])
	required, ok := interpretationSchema["required"].([]string)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"narrative", "keywords", "sentiment"}, required)

	props := interpretationSchema["properties"].(map[string]any)
	sentiment := props["sentiment"].(map[string]any)
	assert.Equal(t, false, sentiment["additionalProperties"])
}

func TestLexiconBackendScoresTerms(t *testing.T) {
	backend := NewLexiconBackend("")
	require.True(t, backend.Available())

	happy, err := backend.Classify(context.Background(), "夢裡很快樂，大家一起擁抱")
	require.NoError(t, err)
	assert.Greater(t, happy.Distribution.Positive, happy.Distribution.Negative)

	scared, err := backend.Classify(context.Background(), "被怪物追，好害怕")
	require.NoError(t, err)
	assert.Greater(t, scared.Distribution.Negative, scared.Distribution.Positive)
}

func TestLexiconBackendNegation(t *testing.T) {
	backend := NewLexiconBackendFrom(&Lexicon{
		Positive: map[string]float64{"快樂": 1},
		Negators: []string{"不"},
	})
	result, err := backend.Classify(context.Background(), "一點都不快樂")
	require.NoError(t, err)
	assert.Zero(t, result.Distribution.Positive)
	assert.Greater(t, result.Distribution.Negative, 0.0)
}

func TestLexiconBackendNoSignalIsNeutral(t *testing.T) {
	backend := NewLexiconBackend("")
	result, err := backend.Classify(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, contract.NeutralDistribution(), result.Distribution)
}

func TestLexiconBackendLoadFailureIsPermanent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("positive: [unclosed"), 0o600))

	backend := NewLexiconBackend(path)
	assert.False(t, backend.Available())
	for i := 0; i < 2; i++ {
		_, err := backend.Classify(context.Background(), "快樂")
		require.Error(t, err)
		assert.True(t, errors.Is(err, contract.ErrBackendUnavailable))
	}

	missing := NewLexiconBackend(filepath.Join(dir, "missing.yaml"))
	assert.False(t, missing.Available())
}

func TestNullBackendNeverFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := NewNullBackend().Classify(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, contract.NeutralDistribution(), result.Distribution)
}

func TestCohereBackendWithoutClient(t *testing.T) {
	backend := &CohereBackend{config: &contract.BackendConfig{MaxTokens: 10}}
	_, err := backend.Classify(context.Background(), "夢")
	require.Error(t, err)
	assert.True(t, errors.Is(err, contract.ErrBackendUnavailable))
}

func TestGeminiBackendWithoutKey(t *testing.T) {
	backend := NewGeminiBackend(context.Background(), &contract.BackendConfig{ModelName: "gemini-2.0-flash"})
	_, err := backend.Classify(context.Background(), "夢")
	require.Error(t, err)
	assert.True(t, errors.Is(err, contract.ErrBackendUnavailable))
}

func TestUnavailableKeepsCause(t *testing.T) {
	err := unavailable(context.DeadlineExceeded)
	assert.True(t, errors.Is(err, contract.ErrBackendUnavailable))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
