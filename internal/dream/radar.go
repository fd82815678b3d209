package dream

import (
	"math"
	"unicode/utf8"

	"dreamlog/backend/internal/llm"
)

const (
	RadarMin = 10
	RadarMax = 100

	// Content longer than this many characters gets a random mystic base.
	mysticLengthThreshold = 20
	mysticDefault         = 40
	mysticImageryBonus    = 20
)

type RadarProfile struct {
	Joy     int `json:"joy"`
	Anxiety int `json:"anxiety"`
	Stress  int `json:"stress"`
	Clarity int `json:"clarity"`
	Mystic  int `json:"mystic"`
}

// Score computes the five radar axes. Each axis is bounded to [10,100] on
// its own; the profile is not normalised.
func Score(mood int, dist llm.SentimentDistribution, content string, symbols []SymbolEntry, rnd RandomSource) RadarProfile {
	mood = ClampMood(mood)
	dist = dist.Clamped()
	m := float64(mood)

	mystic := float64(mysticDefault)
	if utf8.RuneCountInString(content) > mysticLengthThreshold {
		mystic = float64(rnd.NextInRange(20, 90))
	}
	if hasVividImagery(symbols) {
		mystic += mysticImageryBonus
	}

	return RadarProfile{
		Joy:     clampAxis(dist.Positive*70 + m*6),
		Anxiety: clampAxis(dist.Negative*80 + (6-m)*4),
		Stress:  clampAxis(dist.Negative*60 + float64(rnd.NextInRange(10, 30))),
		Clarity: clampAxis(dist.Neutral*50 + m*10),
		Mystic:  clampAxis(mystic),
	}
}

func hasVividImagery(symbols []SymbolEntry) bool {
	for _, symbol := range symbols {
		if symbol.Imagery != ImageryNone {
			return true
		}
	}
	return false
}

// clampAxis truncates toward zero and bounds the value to [RadarMin, RadarMax].
func clampAxis(v float64) int {
	switch {
	case math.IsNaN(v) || v < RadarMin:
		return RadarMin
	case v > RadarMax:
		return RadarMax
	}
	return int(v)
}

func (r RadarProfile) InRange() bool {
	for _, v := range []int{r.Joy, r.Anxiety, r.Stress, r.Clarity, r.Mystic} {
		if v < RadarMin || v > RadarMax {
			return false
		}
	}
	return true
}
