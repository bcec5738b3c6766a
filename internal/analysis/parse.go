package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/starford/deckdoctor/internal/models"
)

// DefaultScore is used when the provider omits or garbles the overall score.
const DefaultScore = 5

// UnparsedPrefix starts the reasoning of a result that could not be parsed.
const UnparsedPrefix = "Could not parse AI response. Raw output:\n"

var fenceRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// ParseResult is the outcome of Parse. When OK is false, Result holds
// defaults and its reasoning embeds the raw text.
type ParseResult struct {
	Result     models.LLMAnalysisResult
	OK         bool
	Diagnostic string
}

// Parse recovers an analysis result from provider text. It never fails:
// unusable input yields a default result with OK false.
func Parse(raw string) ParseResult {
	obj, how, ok := DecodeObject(raw)
	if !ok {
		return ParseResult{Result: unparsed(raw), Diagnostic: "no JSON object found in response"}
	}
	return ParseResult{Result: normalize(obj), OK: true, Diagnostic: how}
}

// DecodeObject finds the first JSON object in text: inside a fenced code
// block, as the whole text, or as the first balanced {...} substring.
func DecodeObject(text string) (map[string]any, string, bool) {
	var candidates [][2]string
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, [2]string{"fenced", strings.TrimSpace(m[1])})
	}
	candidates = append(candidates, [2]string{"direct", strings.TrimSpace(text)})
	if s, ok := ExtractJSONObject(text); ok {
		candidates = append(candidates, [2]string{"extracted", s})
	}

	for _, c := range candidates {
		var obj map[string]any
		if err := json.Unmarshal([]byte(c[1]), &obj); err == nil && obj != nil {
			return obj, c[0], true
		}
		if s, ok := ExtractJSONObject(c[1]); ok {
			if err := json.Unmarshal([]byte(s), &obj); err == nil && obj != nil {
				return obj, c[0], true
			}
		}
	}
	return nil, "", false
}

// ExtractJSONObject returns the first balanced {...} substring of text that
// is valid JSON. Braces inside string literals are ignored.
func ExtractJSONObject(text string) (string, bool) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchBrace(text, start); end > 0 {
			s := text[start : end+1]
			if json.Valid([]byte(s)) {
				return s, true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(text string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func unparsed(raw string) models.LLMAnalysisResult {
	return models.LLMAnalysisResult{
		Feedback: models.Feedback{
			OverallScore: DefaultScore,
			Issues:       []string{},
			Suggestions:  []string{},
			Reasoning:    UnparsedPrefix + raw,
		},
		SuggestedCards: []models.SuggestedCard{},
	}
}

func normalize(obj map[string]any) models.LLMAnalysisResult {
	fb, _ := obj["feedback"].(map[string]any)
	if fb == nil {
		fb = map[string]any{}
	}

	var moved []models.SuggestedCard
	issues, cards := textList(fb["issues"])
	moved = append(moved, cards...)
	suggestions, cards := textList(fb["suggestions"])
	moved = append(moved, cards...)

	res := models.LLMAnalysisResult{
		Feedback: models.Feedback{
			IsUnambiguous:  asBool(fb["isUnambiguous"]),
			IsAtomic:       asBool(fb["isAtomic"]),
			IsRecognizable: asBool(fb["isRecognizable"]),
			IsActiveRecall: asBool(fb["isActiveRecall"]),
			OverallScore:   ClampScore(fb["overallScore"], 1, 10, DefaultScore),
			Issues:         issues,
			Suggestions:    suggestions,
			Reasoning:      AsString(fb["reasoning"]),
		},
		SuggestedCards: SuggestedCards(obj["suggestedCards"]),
		DeleteOriginal: asBool(obj["deleteOriginal"]),
		DeleteReason:   AsString(obj["deleteReason"]),
	}
	res.SuggestedCards = append(res.SuggestedCards, moved...)
	return res
}

// textList flattens a provider list into strings, pulling out entries that
// are really suggested cards.
func textList(v any) ([]string, []models.SuggestedCard) {
	texts := []string{}
	var cards []models.SuggestedCard
	items, _ := v.([]any)
	for _, item := range items {
		switch t := item.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				texts = append(texts, s)
			}
		case map[string]any:
			if looksLikeCard(t) {
				if sc, ok := suggestedCard(t); ok {
					cards = append(cards, sc)
				}
				continue
			}
			if s := objectText(t); s != "" {
				texts = append(texts, s)
			}
		case nil:
		default:
			texts = append(texts, fmt.Sprint(t))
		}
	}
	return texts, cards
}

func looksLikeCard(m map[string]any) bool {
	if _, ok := m["type"].(string); !ok {
		return false
	}
	_, ok := m["fields"].([]any)
	return ok
}

var textKeys = []string{"text", "issue", "suggestion", "description", "message", "content"}

func objectText(m map[string]any) string {
	for _, k := range textKeys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}

// SuggestedCards normalises a provider suggestedCards array. Entries without
// any field are dropped.
func SuggestedCards(v any) []models.SuggestedCard {
	out := []models.SuggestedCard{}
	items, _ := v.([]any)
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if sc, ok := suggestedCard(m); ok {
			out = append(out, sc)
		}
	}
	return out
}

var preferredFieldOrder = map[string]int{"front": 0, "text": 0, "back": 1, "extra": 1}

func suggestedCard(m map[string]any) (models.SuggestedCard, bool) {
	sc := models.SuggestedCard{
		Type:        models.ParseCardType(AsString(m["type"])),
		Explanation: AsString(m["explanation"]),
	}
	switch f := m["fields"].(type) {
	case []any:
		for _, item := range f {
			fm, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name := AsString(fm["name"])
			if name == "" {
				continue
			}
			sc.Fields = append(sc.Fields, models.Field{Name: name, Value: AsString(fm["value"])})
		}
	case map[string]any:
		for name, val := range f {
			sc.Fields = append(sc.Fields, models.Field{Name: name, Value: AsString(val)})
		}
		sort.SliceStable(sc.Fields, func(i, j int) bool {
			ri, iok := preferredFieldOrder[strings.ToLower(sc.Fields[i].Name)]
			rj, jok := preferredFieldOrder[strings.ToLower(sc.Fields[j].Name)]
			if iok != jok {
				return iok
			}
			if iok && ri != rj {
				return ri < rj
			}
			return sc.Fields[i].Name < sc.Fields[j].Name
		})
	}
	return sc, len(sc.Fields) > 0
}

// ClampScore rounds a numeric or numeric-string value into [lo, hi]. Missing
// or non-numeric input, NaN and infinities yield def.
func ClampScore(v any, lo, hi, def int) int {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return def
		}
		f = p
	default:
		return def
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	f = math.Round(f)
	if f < float64(lo) {
		return lo
	}
	if f > float64(hi) {
		return hi
	}
	return int(f)
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	default:
		return false
	}
}

// AsString coerces a decoded JSON value to text.
func AsString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64, bool:
		return fmt.Sprint(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
