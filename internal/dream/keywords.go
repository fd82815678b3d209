package dream

import (
	"regexp"
	"sort"
	"strings"
)

const maxKeywords = 3

var hanRun = regexp.MustCompile(`\p{Han}{2,4}`)

var (
	positiveFallback = []string{"快樂", "正向", "能量"}
	negativeFallback = []string{"壓力", "釋放", "療癒"}
	neutralFallback  = []string{"潛意識", "情緒", "自我"}
)

// ExtractKeywords returns up to three Han-script words of two to four
// characters, most frequent first. Ties keep first-appearance order.
func ExtractKeywords(content string) []string {
	words := hanRun.FindAllString(content, -1)
	if len(words) == 0 {
		return nil
	}
	counts := make(map[string]int, len(words))
	var order []string
	for _, word := range words {
		if counts[word] == 0 {
			order = append(order, word)
		}
		counts[word]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > maxKeywords {
		order = order[:maxKeywords]
	}
	return order
}

func FallbackKeywords(mood int) []string {
	var set []string
	switch {
	case mood >= 4:
		set = positiveFallback
	case mood <= 2:
		set = negativeFallback
	default:
		set = neutralFallback
	}
	return append([]string(nil), set...)
}

func symbolTokens(symbols []SymbolEntry) []string {
	tokens := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		tokens = append(tokens, symbol.Token)
	}
	return tokens
}

// dedupe trims, drops blanks and repeats, and caps the list at three.
func dedupe(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, maxKeywords)
	for _, word := range words {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		out = append(out, word)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}
