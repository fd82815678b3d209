package providers

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"dreamlog/backend/internal/llm/contract"
)

//go:embed lexicon_zh.yaml
var defaultLexicon []byte

// neutralPrior keeps short texts with one strong term from collapsing to a
// single category.
const neutralPrior = 0.5

type Lexicon struct {
	Positive map[string]float64 `yaml:"positive"`
	Negative map[string]float64 `yaml:"negative"`
	Neutral  map[string]float64 `yaml:"neutral"`
	Negators []string           `yaml:"negators"`
}

// LoadLexicon reads a lexicon from path, or the built-in Traditional Chinese
// lexicon when path is empty.
func LoadLexicon(path string) (*Lexicon, error) {
	data := defaultLexicon
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read lexicon: %w", err)
		}
		data = raw
	}
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}
	if len(lex.Positive) == 0 && len(lex.Negative) == 0 {
		return nil, errors.New("lexicon has no positive or negative terms")
	}
	return &lex, nil
}

// LexiconBackend is the on-process classifier. A lexicon that fails to load
// leaves the backend permanently unavailable.
type LexiconBackend struct {
	lexicon *Lexicon
	loadErr error
}

func NewLexiconBackend(path string) *LexiconBackend {
	lex, err := LoadLexicon(path)
	return &LexiconBackend{lexicon: lex, loadErr: err}
}

func NewLexiconBackendFrom(lex *Lexicon) *LexiconBackend {
	if lex == nil {
		return &LexiconBackend{loadErr: errors.New("nil lexicon")}
	}
	return &LexiconBackend{lexicon: lex}
}

func (l *LexiconBackend) Name() string { return "lexicon" }

func (l *LexiconBackend) Available() bool { return l.loadErr == nil }

func (l *LexiconBackend) Classify(ctx context.Context, text string) (*contract.Classification, error) {
	if l.loadErr != nil {
		return nil, unavailable(fmt.Errorf("lexicon not loaded: %w", l.loadErr))
	}
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}

	var positive, negative, neutral float64
	for term, weight := range l.lexicon.Positive {
		plain, negated := l.occurrences(text, term)
		positive += float64(plain) * weight
		negative += float64(negated) * weight
	}
	for term, weight := range l.lexicon.Negative {
		plain, negated := l.occurrences(text, term)
		negative += float64(plain) * weight
		positive += float64(negated) * weight
	}
	for term, weight := range l.lexicon.Neutral {
		plain, negated := l.occurrences(text, term)
		neutral += float64(plain+negated) * weight
	}

	if positive == 0 && negative == 0 && neutral == 0 {
		return &contract.Classification{Distribution: contract.NeutralDistribution()}, nil
	}
	total := positive + negative + neutral + neutralPrior
	dist := contract.SentimentDistribution{
		Positive: positive / total,
		Neutral:  (neutral + neutralPrior) / total,
		Negative: negative / total,
	}
	return &contract.Classification{Distribution: dist.Clamped()}, nil
}

// occurrences counts term in text, split by whether a negator immediately
// precedes the occurrence.
func (l *LexiconBackend) occurrences(text, term string) (plain, negated int) {
	if term == "" {
		return 0, 0
	}
	offset := 0
	for {
		idx := strings.Index(text[offset:], term)
		if idx < 0 {
			return plain, negated
		}
		at := offset + idx
		if l.negatedAt(text[:at]) {
			negated++
		} else {
			plain++
		}
		offset = at + len(term)
	}
}

func (l *LexiconBackend) negatedAt(prefix string) bool {
	for _, negator := range l.lexicon.Negators {
		if negator != "" && strings.HasSuffix(prefix, negator) {
			return true
		}
	}
	return false
}

func (l *LexiconBackend) HealthCheck(ctx context.Context) (*contract.HealthCheckResult, error) {
	start := time.Now()
	var err error
	if l.loadErr != nil {
		err = unavailable(l.loadErr)
	}
	return healthResult(l.Name(), start, err), err
}
