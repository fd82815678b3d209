package contract

import (
	"context"
	"errors"
	"time"
)

var (
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrMalformedResponse  = errors.New("malformed backend response")
)

// Backend classifies text into a sentiment distribution. Implementations
// must honour ctx; the orchestrator places the per-call timeout on it.
type Backend interface {
	Name() string
	Classify(ctx context.Context, text string) (*Classification, error)
}

// HealthChecker is implemented by backends that can be probed out of band.
type HealthChecker interface {
	HealthCheck(ctx context.Context) (*HealthCheckResult, error)
}

type BackendConfig struct {
	Name        string
	APIKey      string
	ModelName   string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	// LexiconPath is only read by the local lexicon backend.
	LexiconPath string
}

type SentimentDistribution struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

func NeutralDistribution() SentimentDistribution {
	return SentimentDistribution{Positive: 0.33, Neutral: 0.33, Negative: 0.33}
}

// Clamped returns the distribution with every weight forced into [0,1].
// Weights are not normalised.
func (d SentimentDistribution) Clamped() SentimentDistribution {
	return SentimentDistribution{
		Positive: clampUnit(d.Positive),
		Neutral:  clampUnit(d.Neutral),
		Negative: clampUnit(d.Negative),
	}
}

func clampUnit(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

type Classification struct {
	Distribution SentimentDistribution `json:"distribution"`
	// Narrative is set by generative backends only.
	Narrative string   `json:"narrative,omitempty"`
	Keywords  []string `json:"keywords,omitempty"`
	Usage     Usage    `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

type HealthCheckResult struct {
	Backend      string        `json:"backend"`
	Status       string        `json:"status"`
	Latency      time.Duration `json:"latency"`
	ErrorMessage string        `json:"error_message"`
	Timestamp    time.Time     `json:"timestamp"`
}

// Attempt records one backend call made while resolving a classification.
type Attempt struct {
	Backend string        `json:"backend"`
	Success bool          `json:"success"`
	Kind    string        `json:"kind,omitempty"`
	Error   string        `json:"error,omitempty"`
	Latency time.Duration `json:"latency"`
	Usage   Usage         `json:"usage"`
}
