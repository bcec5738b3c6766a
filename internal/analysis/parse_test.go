package analysis

import (
	"reflect"
	"strings"
	"testing"

	"github.com/starford/deckdoctor/internal/models"
)

const validJSON = `{"feedback":{"isUnambiguous":true,"isAtomic":false,"isRecognizable":true,"isActiveRecall":true,"overallScore":7,"issues":["too long"],"suggestions":["split it"],"reasoning":"ok"},"suggestedCards":[]}`

func TestParse_FencedEqualsPlain(t *testing.T) {
	plain := Parse(validJSON)
	fenced := Parse("Here you go:\n```json\n" + validJSON + "\n```")
	if !plain.OK || !fenced.OK {
		t.Fatalf("ok = %v / %v", plain.OK, fenced.OK)
	}
	if !reflect.DeepEqual(plain.Result, fenced.Result) {
		t.Errorf("fenced result differs:\n%+v\n%+v", plain.Result, fenced.Result)
	}
	if plain.Result.Feedback.OverallScore != 7 || plain.Result.Feedback.IsAtomic {
		t.Errorf("feedback = %+v", plain.Result.Feedback)
	}
}

func TestParse_ProseAroundJSON(t *testing.T) {
	res := Parse(`Sure! {"feedback":{"overallScore":4,"reasoning":"uses } in a string"}} Hope that helps {not json}`)
	if !res.OK {
		t.Fatalf("expected OK, diagnostic %q", res.Diagnostic)
	}
	if res.Result.Feedback.OverallScore != 4 || res.Result.Feedback.Reasoning != "uses } in a string" {
		t.Errorf("feedback = %+v", res.Result.Feedback)
	}
}

func TestParse_SoftFailure(t *testing.T) {
	raw := "I cannot review this card."
	res := Parse(raw)
	if res.OK {
		t.Fatal("expected soft failure")
	}
	if res.Result.Feedback.Reasoning != UnparsedPrefix+raw {
		t.Errorf("reasoning = %q", res.Result.Feedback.Reasoning)
	}
	if res.Result.Feedback.OverallScore != DefaultScore {
		t.Errorf("score = %d", res.Result.Feedback.OverallScore)
	}
	if res.Result.Feedback.Issues == nil || res.Result.SuggestedCards == nil {
		t.Error("arrays should default to empty, not nil")
	}
}

func TestParse_ReclassifiesCardShapedIssues(t *testing.T) {
	raw := `{"feedback":{"overallScore":6,
		"issues":["vague", {"type":"cloze","fields":[{"name":"Text","value":"{{c1::Paris}} is the capital"}],"explanation":"cloze it"}],
		"suggestions":[{"text":"add context"}, 3]},
		"suggestedCards":[{"type":"basic","fields":[{"name":"Front","value":"Q"},{"name":"Back","value":"A"}]}]}`
	res := Parse(raw)
	if !res.OK {
		t.Fatal("expected OK")
	}
	fb := res.Result.Feedback
	if len(fb.Issues) != 1 || fb.Issues[0] != "vague" {
		t.Errorf("issues = %v", fb.Issues)
	}
	if len(fb.Suggestions) != 2 || fb.Suggestions[0] != "add context" || fb.Suggestions[1] != "3" {
		t.Errorf("suggestions = %v", fb.Suggestions)
	}
	cards := res.Result.SuggestedCards
	if len(cards) != 2 {
		t.Fatalf("suggested cards = %+v", cards)
	}
	if cards[0].Type != models.CardBasic || cards[1].Type != models.CardCloze {
		t.Errorf("types = %q, %q", cards[0].Type, cards[1].Type)
	}
}

func TestParse_ClampsScore(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{`{"feedback":{"overallScore":42}}`, 10},
		{`{"feedback":{"overallScore":0}}`, 1},
		{`{"feedback":{"overallScore":"8"}}`, 8},
		{`{"feedback":{"overallScore":6.6}}`, 7},
		{`{"feedback":{}}`, DefaultScore},
		{`{"feedback":{"overallScore":"high"}}`, DefaultScore},
		{`{"feedback":{"overallScore":1e20}}`, 10},
		{`{"feedback":{"overallScore":-1e20}}`, 1},
		{`{"feedback":{"overallScore":"Inf"}}`, DefaultScore},
		{`{"feedback":{"overallScore":"-Inf"}}`, DefaultScore},
		{`{"feedback":{"overallScore":"NaN"}}`, DefaultScore},
	}
	for _, tt := range tests {
		if got := Parse(tt.raw).Result.Feedback.OverallScore; got != tt.want {
			t.Errorf("%s: score = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestParse_FieldsAsObject(t *testing.T) {
	res := Parse(`{"suggestedCards":[{"type":"weird","fields":{"Back":"A","Front":"Q"}},{"type":"basic","fields":[]}]}`)
	cards := res.Result.SuggestedCards
	if len(cards) != 1 {
		t.Fatalf("cards = %+v", cards)
	}
	if cards[0].Type != models.CardBasic {
		t.Errorf("unknown type should default to basic, got %q", cards[0].Type)
	}
	if cards[0].Fields[0].Name != "Front" || cards[0].Fields[1].Name != "Back" {
		t.Errorf("fields = %+v", cards[0].Fields)
	}
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{`abc {"a":{"b":1}} def`, `{"a":{"b":1}}`, true},
		{`{"s":"\"}{"}`, `{"s":"\"}{"}`, true},
		{`{broken {"ok":true}`, `{"ok":true}`, true},
		{`no braces`, "", false},
		{`{"unterminated": 1`, "", false},
	}
	for _, tt := range tests {
		got, ok := ExtractJSONObject(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ExtractJSONObject(%q) = %q, %v", tt.in, got, ok)
		}
	}
}

func TestUserPrompt(t *testing.T) {
	p := UserPrompt(CardPrompt{DeckName: "Bio", ModelName: "Cloze", Cloze: true, Front: "F", Back: "B", Tags: []string{"cell"}})
	for _, want := range []string{"Deck: Bio", "(cloze)", "Tags: cell", "Front:\nF", "Back:\nB"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}
}
