package dream

import "strings"

const maxNarrativeSymbols = 3

// ComposeNarrative writes the commentary used when no backend supplied one.
// The result is never empty.
func ComposeNarrative(symbols []SymbolEntry, keywords []string, mood int) string {
	var b strings.Builder
	switch {
	case len(symbols) > 0:
		b.WriteString("夢中出現的意象值得留意：")
		for i, symbol := range symbols {
			if i == maxNarrativeSymbols {
				break
			}
			b.WriteString(strings.TrimRight(symbol.Meaning, "。"))
			b.WriteString("。")
		}
	case len(keywords) > 0:
		b.WriteString("這個夢圍繞著「")
		b.WriteString(strings.Join(keywords, "」、「"))
		b.WriteString("」，反映你近期內心關注的主題。")
	default:
		b.WriteString("這個夢的畫面較為模糊，卻仍映照出你此刻的心境。")
	}

	switch mood = ClampMood(mood); {
	case mood >= 4:
		b.WriteString("整體情緒偏向正面，好好保持這份能量。")
	case mood <= 2:
		b.WriteString("你可能正承受一些壓力，試著給自己多一點休息與照顧。")
	default:
		b.WriteString("不妨靜下心來，觀察內在情緒的細微變化。")
	}
	return SanitizeNarrative(b.String())
}
