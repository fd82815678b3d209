package dream

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Imagery marks symbols whose presence lifts the mystic axis.
type Imagery string

const (
	ImageryNone   Imagery = ""
	ImageryFlight Imagery = "flight"
	ImageryDeath  Imagery = "death"
	ImageryFire   Imagery = "fire"
)

func (i Imagery) valid() bool {
	switch i {
	case ImageryNone, ImageryFlight, ImageryDeath, ImageryFire:
		return true
	}
	return false
}

type SymbolEntry struct {
	Token   string  `yaml:"token" json:"token"`
	Meaning string  `yaml:"meaning" json:"meaning"`
	Imagery Imagery `yaml:"imagery,omitempty" json:"imagery,omitempty"`
}

// Dictionary is an ordered, read-only symbol table. The first matched entry
// is the primary symbol of a dream.
type Dictionary struct {
	entries []SymbolEntry
}

var defaultSymbols = []SymbolEntry{
	{Token: "蛇", Meaning: "蛇象徵轉變與蛻皮重生，也可能暗示潛藏的恐懼或誘惑"},
	{Token: "水", Meaning: "水代表情緒的流動，水的清濁反映你內心的平靜程度"},
	{Token: "墜落", Meaning: "墜落常反映失控感，或是對失敗與失去支撐的擔憂"},
	{Token: "飛行", Meaning: "飛行象徵渴望自由，想擺脫現實中的束縛", Imagery: ImageryFlight},
	{Token: "考試", Meaning: "考試與自我評價有關，暗示你正面對某種被檢視的壓力"},
	{Token: "海", Meaning: "海象徵廣闊的潛意識與尚未探索的未知"},
	{Token: "貓", Meaning: "貓代表獨立與直覺，也可能提醒你留意身邊隱藏的訊息"},
	{Token: "追逐", Meaning: "被追逐通常反映你正在逃避某個問題或情緒"},
	{Token: "火", Meaning: "火象徵熱情與憤怒，也代表轉化與淨化的力量", Imagery: ImageryFire},
	{Token: "迷路", Meaning: "迷路反映對人生方向的迷惘，需要重新找回目標"},
	{Token: "死", Meaning: "夢見死亡多半象徵某個階段的結束與新的開始", Imagery: ImageryDeath},
	{Token: "牙齒", Meaning: "牙齒掉落常與焦慮、失去掌控或在意外表有關"},
	{Token: "房子", Meaning: "房子象徵自我，不同的房間代表內在不同的面向"},
	{Token: "鬼", Meaning: "鬼魂代表尚未處理的過去，或心中揮之不去的內疚"},
}

func NewDictionary(entries []SymbolEntry) (*Dictionary, error) {
	seen := make(map[string]struct{}, len(entries))
	out := make([]SymbolEntry, 0, len(entries))
	for i, entry := range entries {
		entry.Token = strings.TrimSpace(entry.Token)
		entry.Meaning = strings.TrimSpace(entry.Meaning)
		if entry.Token == "" {
			return nil, fmt.Errorf("symbol %d: empty token", i)
		}
		if entry.Meaning == "" {
			return nil, fmt.Errorf("symbol %q: empty meaning", entry.Token)
		}
		if !entry.Imagery.valid() {
			return nil, fmt.Errorf("symbol %q: unknown imagery %q", entry.Token, entry.Imagery)
		}
		if _, dup := seen[entry.Token]; dup {
			return nil, fmt.Errorf("symbol %q: duplicate token", entry.Token)
		}
		seen[entry.Token] = struct{}{}
		out = append(out, entry)
	}
	return &Dictionary{entries: out}, nil
}

func DefaultDictionary() *Dictionary {
	return &Dictionary{entries: append([]SymbolEntry(nil), defaultSymbols...)}
}

type dictionaryFile struct {
	Symbols []SymbolEntry `yaml:"symbols"`
}

// LoadDictionary reads a YAML symbol file. An empty path yields the built-in
// dictionary.
func LoadDictionary(path string) (*Dictionary, error) {
	if path == "" {
		return DefaultDictionary(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read symbols: %w", err)
	}
	var file dictionaryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse symbols: %w", err)
	}
	if len(file.Symbols) == 0 {
		return nil, errors.New("symbol file defines no symbols")
	}
	return NewDictionary(file.Symbols)
}

func (d *Dictionary) Len() int { return len(d.entries) }

func (d *Dictionary) Entries() []SymbolEntry {
	return append([]SymbolEntry(nil), d.entries...)
}

// Match returns every entry whose token occurs in content, in dictionary
// order. Tokens contained in other matched tokens are reported on their own.
func (d *Dictionary) Match(content string) []SymbolEntry {
	if content == "" {
		return nil
	}
	var matched []SymbolEntry
	for _, entry := range d.entries {
		if strings.Contains(content, entry.Token) {
			matched = append(matched, entry)
		}
	}
	return matched
}
