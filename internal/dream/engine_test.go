package dream

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"dreamlog/backend/internal/llm"
	"dreamlog/backend/internal/llm/contract"
	"dreamlog/backend/internal/llm/providers"
)

type fixedSource struct {
	high bool
}

func (f fixedSource) NextInRange(lo, hi int) int {
	if f.high {
		return hi
	}
	return lo
}

type stubClassifier struct {
	calls   atomic.Int32
	outcome llm.Outcome
}

func (s *stubClassifier) Classify(ctx context.Context, text string) llm.Outcome {
	s.calls.Add(1)
	return s.outcome
}

type failingBackend struct {
	name  string
	calls atomic.Int32
}

func (f *failingBackend) Name() string { return f.name }

func (f *failingBackend) Classify(ctx context.Context, text string) (*contract.Classification, error) {
	f.calls.Add(1)
	return nil, fmt.Errorf("%w: connection refused", contract.ErrBackendUnavailable)
}

func TestAnalyzeSymbolScenario(t *testing.T) {
	engine := New(nil, llm.NewOrchestrator(nil, time.Second, nil), NewSeededSource(7), nil)

	result := engine.Analyze(context.Background(), DreamInput{Content: "昨晚夢到蛇和水", MoodLevel: 3})
	assert.Equal(t, []string{"蛇", "水"}, result.Keywords)
	assert.NotEmpty(t, result.Narrative)
	assert.True(t, result.Radar.InRange(), "radar %+v", result.Radar)
	assert.GreaterOrEqual(t, result.Radar.Joy, RadarMin)
	assert.LessOrEqual(t, result.Radar.Anxiety, RadarMax)
}

func TestAnalyzeEmptyContent(t *testing.T) {
	remote := &failingBackend{name: "remote"}
	engine := New(nil, llm.NewOrchestrator([]llm.Backend{remote}, time.Second, nil), fixedSource{}, nil)

	result, report := engine.AnalyzeWithReport(context.Background(), DreamInput{Content: "", MoodLevel: 5})
	assert.Equal(t, int32(0), remote.calls.Load())
	assert.Empty(t, report.Attempts)
	assert.False(t, report.Degraded)
	assert.Equal(t, []string{"快樂", "正向", "能量"}, result.Keywords)

	// Neutral distribution: 0.33*70 + 5*6 = 53.1.
	assert.Equal(t, 53, result.Radar.Joy)
	assert.Equal(t, 30, result.Radar.Anxiety)
	assert.Equal(t, 29, result.Radar.Stress)
	assert.Equal(t, 66, result.Radar.Clarity)
	assert.Equal(t, mysticDefault, result.Radar.Mystic)
	assert.NotEmpty(t, result.Narrative)
}

func TestAnalyzeEveryBackendFails(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger := zap.New(core)
	remote := &failingBackend{name: "remote"}
	local := providers.NewLexiconBackendFrom(nil)
	engine := New(nil, llm.NewOrchestrator([]llm.Backend{remote, local}, time.Second, logger), NewSeededSource(1), logger)

	result, report := engine.AnalyzeWithReport(context.Background(), DreamInput{
		Content:   "我在一棟陌生的房子裡迷路了，走廊一直延伸到看不見的地方，最後醒來滿身大汗",
		MoodLevel: 2,
	})

	assert.NotEmpty(t, result.Narrative)
	assert.LessOrEqual(t, len(result.Keywords), 3)
	assert.True(t, result.Radar.InRange(), "radar %+v", result.Radar)
	assert.True(t, report.Degraded)
	assert.Equal(t, "null", report.Backend)
	require.Len(t, report.Attempts, 3)

	failed := logs.FilterMessage("sentiment backend failed")
	assert.Equal(t, 2, failed.Len())
	assert.Equal(t, 1, failed.FilterField(zap.String("backend", "remote")).Len())
	assert.Equal(t, 1, failed.FilterField(zap.String("backend", "lexicon")).Len())
	assert.Equal(t, int32(1), remote.calls.Load())
}

func TestAnalyzeUsesBackendNarrative(t *testing.T) {
	classifier := &stubClassifier{outcome: llm.Outcome{
		Backend: "openai",
		Classification: contract.Classification{
			Distribution: contract.SentimentDistribution{Positive: 0.9, Neutral: 0.1},
			Narrative:    "  海洋||RADAR:代表平靜  ",
			Keywords:     []string{"ocean", "calm"},
		},
	}}
	engine := New(nil, classifier, fixedSource{}, nil)

	result, report := engine.AnalyzeWithReport(context.Background(), DreamInput{Content: "I dreamt of the ocean", MoodLevel: 4})
	assert.Equal(t, "海洋代表平靜", result.Narrative)
	assert.Equal(t, FallbackKeywords(4), result.Keywords)
	assert.Equal(t, "openai", report.Backend)
	assert.False(t, report.Degraded)

	narrative, radar, err := Parse(result.Packed())
	require.NoError(t, err)
	assert.Equal(t, result.Narrative, narrative)
	assert.Equal(t, result.Radar, radar)
}

func TestAnalyzeClampsMood(t *testing.T) {
	engine := New(nil, &stubClassifier{outcome: llm.Outcome{
		Classification: contract.Classification{Distribution: contract.NeutralDistribution()},
	}}, fixedSource{}, nil)

	low := engine.Analyze(context.Background(), DreamInput{Content: "abc", MoodLevel: -3})
	assert.Equal(t, FallbackKeywords(1), low.Keywords)
	high := engine.Analyze(context.Background(), DreamInput{Content: "abc", MoodLevel: 42})
	assert.Equal(t, FallbackKeywords(5), high.Keywords)
	assert.True(t, low.Radar.InRange())
	assert.True(t, high.Radar.InRange())
}

func TestAnalyzeConcurrent(t *testing.T) {
	engine := New(nil, llm.NewOrchestrator([]llm.Backend{providers.NewLexiconBackend("")}, time.Second, nil), NewSeededSource(3), nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := engine.Analyze(context.Background(), DreamInput{Content: "夢見飛行，很快樂", MoodLevel: 4})
			assert.Equal(t, []string{"飛行"}, result.Keywords)
			assert.True(t, result.Radar.InRange())
		}()
	}
	wg.Wait()
}

func TestScoreAlwaysInRange(t *testing.T) {
	long := "這是一個非常漫長而且充滿細節的夢境描述，超過二十個字元"
	vivid := []SymbolEntry{{Token: "火", Meaning: "m", Imagery: ImageryFire}}
	dists := []contract.SentimentDistribution{
		{},
		{Positive: 1, Neutral: 1, Negative: 1},
		{Positive: 7, Neutral: -2, Negative: math.Inf(1)},
		{Positive: math.NaN(), Neutral: math.NaN(), Negative: math.NaN()},
		contract.NeutralDistribution(),
	}
	for mood := -1; mood <= 7; mood++ {
		for _, dist := range dists {
			for _, content := range []string{"", "短", long} {
				for _, symbols := range [][]SymbolEntry{nil, vivid} {
					for _, rnd := range []RandomSource{fixedSource{}, fixedSource{high: true}} {
						radar := Score(mood, dist, content, symbols, rnd)
						assert.True(t, radar.InRange(), "mood=%d dist=%+v radar=%+v", mood, dist, radar)
					}
				}
			}
		}
	}
}

func TestScoreFormulas(t *testing.T) {
	dist := contract.SentimentDistribution{Positive: 0.5, Neutral: 0.2, Negative: 1}
	radar := Score(3, dist, "短夢", nil, fixedSource{high: true})
	assert.Equal(t, RadarProfile{Joy: 53, Anxiety: 92, Stress: 90, Clarity: 40, Mystic: 40}, radar)

	long := "這是一個非常漫長而且充滿細節的夢境描述，超過二十個字元"
	fire := []SymbolEntry{{Token: "火", Meaning: "m", Imagery: ImageryFire}}
	assert.Equal(t, 20, Score(3, dist, long, nil, fixedSource{}).Mystic)
	assert.Equal(t, 20+mysticImageryBonus, Score(3, dist, long, fire, fixedSource{}).Mystic)
	assert.Equal(t, RadarMax, Score(3, dist, long, fire, fixedSource{high: true}).Mystic)
	assert.Equal(t, mysticDefault+mysticImageryBonus, Score(3, dist, "火", fire, fixedSource{}).Mystic)
}

func TestSeededSourceIsReproducible(t *testing.T) {
	a, b := NewSeededSource(99), NewSeededSource(99)
	var first []int
	for i := 0; i < 20; i++ {
		x := a.NextInRange(10, 30)
		require.Equal(t, x, b.NextInRange(10, 30))
		require.GreaterOrEqual(t, x, 10)
		require.LessOrEqual(t, x, 30)
		first = append(first, x)
	}
	a.Seed(99)
	for i := 0; i < 20; i++ {
		require.Equal(t, first[i], a.NextInRange(10, 30))
	}
	assert.Equal(t, 5, a.NextInRange(5, 5))
	v := NewRandomSource().NextInRange(30, 20)
	assert.True(t, v >= 20 && v <= 30)
}
