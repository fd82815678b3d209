package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/tidwall/gjson"

	"dreamlog/backend/internal/llm/contract"
)

const interpretationPrompt = `你是一位溫和的夢境解析師。閱讀下列夢境描述，只回傳一個 JSON 物件：
{"narrative": "不超過120字的中文解析", "keywords": ["最多3個關鍵詞"], "sentiment": {"positive": 0到1, "neutral": 0到1, "negative": 0到1}}

夢境：`

type interpretationReply struct {
	Narrative string          `json:"narrative" jsonschema:"required,description=Short interpretation of the dream in Traditional Chinese"`
	Keywords  []string        `json:"keywords" jsonschema:"required"`
	Sentiment sentimentWeight `json:"sentiment" jsonschema:"required"`
}

type sentimentWeight struct {
	Positive float64 `json:"positive" jsonschema:"required"`
	Neutral  float64 `json:"neutral" jsonschema:"required"`
	Negative float64 `json:"negative" jsonschema:"required"`
}

var interpretationSchema = generateSchema[interpretationReply]()

func buildPrompt(text string) string {
	return interpretationPrompt + text
}

func extractJSON(text string) string {
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "}]")
	if start == -1 || end == -1 || end <= start {
		return text
	}
	return text[start : end+1]
}

// parseReply reads a generative backend's reply. Only the sentiment object is
// mandatory; narrative and keywords are optional.
func parseReply(text string) (*contract.Classification, error) {
	raw := extractJSON(text)
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("%w: reply is not JSON", contract.ErrMalformedResponse)
	}
	root := gjson.Parse(raw)
	sentiment := root.Get("sentiment")
	if !sentiment.IsObject() {
		return nil, fmt.Errorf("%w: missing sentiment object", contract.ErrMalformedResponse)
	}

	var dist contract.SentimentDistribution
	found := 0
	for key, dst := range map[string]*float64{
		"positive": &dist.Positive,
		"neutral":  &dist.Neutral,
		"negative": &dist.Negative,
	} {
		value := sentiment.Get(key)
		if !value.Exists() {
			continue
		}
		if value.Type != gjson.Number {
			return nil, fmt.Errorf("%w: sentiment.%s is %s", contract.ErrMalformedResponse, key, value.Type)
		}
		*dst = value.Float()
		found++
	}
	if found == 0 {
		return nil, fmt.Errorf("%w: empty sentiment object", contract.ErrMalformedResponse)
	}

	narrative := root.Get("narrative")
	if !narrative.Exists() {
		narrative = root.Get("interpretation")
	}
	keywords := []string{}
	for _, item := range root.Get("keywords").Array() {
		if word := strings.TrimSpace(item.String()); word != "" {
			keywords = append(keywords, word)
		}
	}

	return &contract.Classification{
		Distribution: dist.Clamped(),
		Narrative:    strings.TrimSpace(narrative.String()),
		Keywords:     keywords,
	}, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", contract.ErrBackendUnavailable, err)
}

func generateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	b, err := schema.MarshalJSON()
	if err != nil {
		panic(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	ensureStrict(m)
	return m
}

// ensureStrict marks every object closed and every property required, which
// strict structured output demands.
func ensureStrict(schema map[string]any) {
	delete(schema, "$schema")
	delete(schema, "$id")
	if schemaType, ok := schema["type"].(string); ok && schemaType == "object" {
		schema["additionalProperties"] = false
		if properties, ok := schema["properties"].(map[string]any); ok {
			required := make([]string, 0, len(properties))
			for name := range properties {
				required = append(required, name)
			}
			schema["required"] = required
		}
	}
	if properties, ok := schema["properties"].(map[string]any); ok {
		for _, prop := range properties {
			if propMap, ok := prop.(map[string]any); ok {
				ensureStrict(propMap)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		ensureStrict(items)
	}
}
