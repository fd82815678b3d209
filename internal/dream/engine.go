package dream

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"dreamlog/backend/internal/llm"
)

const (
	MinMood = 1
	MaxMood = 5
)

type DreamInput struct {
	Content        string
	MoodLevel      int
	RealityContext string
}

type AnalysisResult struct {
	Narrative string       `json:"narrative"`
	Keywords  []string     `json:"keywords"`
	Radar     RadarProfile `json:"radar"`
}

// Packed returns the single-string form stored for legacy readers.
func (r *AnalysisResult) Packed() string {
	return Format(r.Narrative, r.Radar)
}

// Report describes how the sentiment distribution was obtained.
type Report struct {
	Backend  string        `json:"backend"`
	Degraded bool          `json:"degraded"`
	Attempts []llm.Attempt `json:"attempts"`
}

// Classifier resolves a sentiment distribution and never fails.
type Classifier interface {
	Classify(ctx context.Context, text string) llm.Outcome
}

// Engine turns a dream description into an AnalysisResult. It keeps no
// per-call state and is safe for concurrent use.
type Engine struct {
	dict       *Dictionary
	classifier Classifier
	rnd        RandomSource
	logger     *zap.Logger
}

func New(dict *Dictionary, classifier Classifier, rnd RandomSource, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dict == nil {
		dict = DefaultDictionary()
	}
	if classifier == nil {
		classifier = llm.NewOrchestrator(nil, 0, logger)
	}
	if rnd == nil {
		rnd = NewRandomSource()
	}
	return &Engine{dict: dict, classifier: classifier, rnd: rnd, logger: logger}
}

func (e *Engine) Dictionary() *Dictionary { return e.dict }

func (e *Engine) Analyze(ctx context.Context, input DreamInput) *AnalysisResult {
	result, _ := e.AnalyzeWithReport(ctx, input)
	return result
}

func (e *Engine) AnalyzeWithReport(ctx context.Context, input DreamInput) (*AnalysisResult, Report) {
	mood := ClampMood(input.MoodLevel)
	content := input.Content

	symbols := e.dict.Match(content)
	outcome := e.classifier.Classify(ctx, content)
	keywords := selectKeywords(symbols, content, mood)
	radar := Score(mood, outcome.Classification.Distribution, content, symbols, e.rnd)

	narrative := strings.TrimSpace(SanitizeNarrative(outcome.Classification.Narrative))
	if narrative == "" {
		narrative = ComposeNarrative(symbols, keywords, mood)
	}

	report := Report{
		Backend:  outcome.Backend,
		Degraded: outcome.Degraded(),
		Attempts: outcome.Attempts,
	}
	e.logger.Debug("dream analysed",
		zap.String("backend", report.Backend),
		zap.Bool("degraded", report.Degraded),
		zap.Int("symbols", len(symbols)))

	return &AnalysisResult{Narrative: narrative, Keywords: keywords, Radar: radar}, report
}

// selectKeywords prefers matched symbols, then words extracted from the
// content, then the mood set. Backend suggestions are never used.
func selectKeywords(symbols []SymbolEntry, content string, mood int) []string {
	if len(symbols) > 0 {
		return dedupe(symbolTokens(symbols))
	}
	if extracted := ExtractKeywords(content); len(extracted) > 0 {
		return dedupe(extracted)
	}
	return FallbackKeywords(mood)
}

// ClampMood bounds a mood rating to [1,5].
func ClampMood(mood int) int {
	if mood < MinMood {
		return MinMood
	}
	if mood > MaxMood {
		return MaxMood
	}
	return mood
}
