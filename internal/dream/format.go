package dream

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// RadarDelimiter separates the narrative from the radar values in the packed
// form. It never appears inside a narrative.
const RadarDelimiter = "||RADAR:"

var (
	ErrNoRadar        = errors.New("packed analysis has no radar section")
	ErrMalformedRadar = errors.New("malformed radar section")
)

// SanitizeNarrative removes every occurrence of the radar delimiter,
// including ones formed by joining the pieces left after a removal.
func SanitizeNarrative(narrative string) string {
	for strings.Contains(narrative, RadarDelimiter) {
		narrative = strings.ReplaceAll(narrative, RadarDelimiter, "")
	}
	return narrative
}

// Format packs a narrative and radar into
// "<narrative>||RADAR:<joy>,<anxiety>,<stress>,<clarity>,<mystic>".
func Format(narrative string, radar RadarProfile) string {
	var b strings.Builder
	b.WriteString(SanitizeNarrative(narrative))
	b.WriteString(RadarDelimiter)
	for i, v := range []int{radar.Joy, radar.Anxiety, radar.Stress, radar.Clarity, radar.Mystic} {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(v))
	}
	return b.String()
}

// Parse is the inverse of Format. Legacy rows without a radar section return
// the whole string as narrative together with ErrNoRadar.
func Parse(packed string) (string, RadarProfile, error) {
	narrative, values, found := strings.Cut(packed, RadarDelimiter)
	if !found {
		return packed, RadarProfile{}, ErrNoRadar
	}
	parts := strings.Split(values, ",")
	if len(parts) != 5 {
		return narrative, RadarProfile{}, fmt.Errorf("%w: want 5 values, got %d", ErrMalformedRadar, len(parts))
	}
	var axes [5]int
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return narrative, RadarProfile{}, fmt.Errorf("%w: value %d: %v", ErrMalformedRadar, i+1, err)
		}
		axes[i] = v
	}
	return narrative, RadarProfile{
		Joy:     axes[0],
		Anxiety: axes[1],
		Stress:  axes[2],
		Clarity: axes[3],
		Mystic:  axes[4],
	}, nil
}
