package render

import (
	"strings"
	"testing"

	"github.com/starford/deckdoctor/internal/media"
	"github.com/starford/deckdoctor/internal/models"
)

func basicModel() *models.Model {
	return &models.Model{
		ID:     1,
		Name:   "Basic",
		Type:   models.ModelStandard,
		Fields: []string{"Front", "Back", "Hint"},
		Templates: []models.Template{
			{
				Name:  "Card 1",
				Front: "{{Front}}{{#Hint}}<i>{{Hint}}</i>{{/Hint}}{{^Hint}}<b>no hint</b>{{/Hint}}",
				Back:  "{{FrontSide}}<hr id=answer>{{Back}}{{type:Back}}",
			},
			{Name: "Card 2", Front: "{{Back}}", Back: "{{Front}}"},
		},
		CSS: ".card{}",
	}
}

func clozeModel() *models.Model {
	return &models.Model{ID: 2, Name: "Cloze", Type: models.ModelCloze, Fields: []string{"Text", "Extra"}}
}

func TestRender_BasicSubstitution(t *testing.T) {
	note := &models.Note{ID: 10, ModelID: 1, Fields: []string{"hablar", "to speak", ""}, Tags: []string{"verb"}}
	rc := Render(models.Card{ID: 100, NoteID: 10, Ord: 0}, note, basicModel(), &models.Deck{ID: 1, Name: "Spanish"}, nil)

	if rc.Front != "hablar<b>no hint</b>" {
		t.Errorf("front = %q", rc.Front)
	}
	if rc.Back != "<hr id=answer>to speak" {
		t.Errorf("back = %q", rc.Back)
	}
	if rc.DeckName != "Spanish" || rc.ModelName != "Basic" || rc.CSS != ".card{}" {
		t.Errorf("metadata = %+v", rc)
	}
	if len(rc.Tags) != 1 || rc.Tags[0] != "verb" {
		t.Errorf("tags = %v", rc.Tags)
	}
}

func TestRender_ConditionalPresent(t *testing.T) {
	note := &models.Note{Fields: []string{"hablar", "to speak", "think English"}}
	rc := Render(models.Card{Ord: 0}, note, basicModel(), nil, nil)
	if rc.Front != "hablar<i>think English</i>" {
		t.Errorf("front = %q", rc.Front)
	}
}

func TestRender_WhitespaceFieldCountsAsBlank(t *testing.T) {
	note := &models.Note{Fields: []string{"hablar", "to speak", "   "}}
	rc := Render(models.Card{Ord: 0}, note, basicModel(), nil, nil)
	if !strings.Contains(rc.Front, "no hint") {
		t.Errorf("blank hint should take the negated branch: %q", rc.Front)
	}
}

func TestRender_SecondTemplate(t *testing.T) {
	note := &models.Note{Fields: []string{"hablar", "to speak", ""}}
	rc := Render(models.Card{Ord: 1}, note, basicModel(), nil, nil)
	if rc.Front != "to speak" || rc.Back != "hablar" {
		t.Errorf("front/back = %q / %q", rc.Front, rc.Back)
	}
}

func TestRender_UnknownTokensRemoved(t *testing.T) {
	m := &models.Model{Fields: []string{"A"}, Templates: []models.Template{{Front: "{{A}} {{Nope}} {{text:A}}", Back: "{{FrontSide}}"}}}
	rc := Render(models.Card{}, &models.Note{Fields: []string{"x"}}, m, nil, nil)
	if rc.Front != "x  " {
		t.Errorf("front = %q", rc.Front)
	}
	if rc.Back != "" {
		t.Errorf("back = %q", rc.Back)
	}
}

func TestRender_DollarSignsAreLiteral(t *testing.T) {
	note := &models.Note{Fields: []string{"costs $1 and ${2}", "b", ""}}
	rc := Render(models.Card{}, note, basicModel(), nil, nil)
	if !strings.HasPrefix(rc.Front, "costs $1 and ${2}") {
		t.Errorf("front = %q", rc.Front)
	}
}

func TestRender_Deterministic(t *testing.T) {
	hex := "0123456789abcdef0123456789abcdef"
	store := media.Store{"a.png": []byte("x"), "b-" + hex + ".png": []byte("y"), "c-" + hex + ".png": []byte("z")}
	note := &models.Note{ID: 1, Fields: []string{`<img src="a.png"><img src="q` + hex + `.png">`, "[sound:none.mp3]", ""}}
	first := Render(models.Card{ID: 1}, note, basicModel(), nil, store)
	for i := 0; i < 10; i++ {
		again := Render(models.Card{ID: 1}, note, basicModel(), nil, store)
		if again.Front != first.Front || again.Back != first.Back {
			t.Fatal("render output differs between identical calls")
		}
	}
	if !strings.Contains(first.Fields[0].Value, "data:image/png;base64,") {
		t.Errorf("fields should be media-resolved: %q", first.Fields[0].Value)
	}
}

func TestRender_ClozeExample(t *testing.T) {
	note := &models.Note{Fields: []string{"The {{c1::mitochondria}} is the {{c2::powerhouse}}", ""}}
	rc := Render(models.Card{Ord: 0}, note, clozeModel(), nil, nil)

	if !strings.Contains(rc.Front, `<span class="cloze">[...]</span>`) {
		t.Errorf("question should hide c1: %q", rc.Front)
	}
	if strings.Contains(rc.Front, "mitochondria") {
		t.Errorf("question leaks the answer: %q", rc.Front)
	}
	if !strings.Contains(rc.Front, "powerhouse") {
		t.Errorf("question should reveal c2: %q", rc.Front)
	}
	if !strings.Contains(rc.Back, `<span class="cloze">mitochondria</span>`) {
		t.Errorf("answer should wrap c1: %q", rc.Back)
	}
	if !strings.Contains(rc.Back, "powerhouse") || strings.Contains(rc.Back, `<span class="cloze">powerhouse`) {
		t.Errorf("answer should reveal c2 as plain text: %q", rc.Back)
	}
}

func TestRender_ClozeHintAndExtra(t *testing.T) {
	note := &models.Note{Fields: []string{"Capital: {{c1::Paris::city}}", "France"}}
	rc := Render(models.Card{Ord: 0}, note, clozeModel(), nil, nil)
	if rc.Front != `Capital: <span class="cloze">[city]</span>` {
		t.Errorf("front = %q", rc.Front)
	}
	if rc.Back != `Capital: <span class="cloze">Paris</span><div class="extra">France</div>` {
		t.Errorf("back = %q", rc.Back)
	}
	if strings.Contains(rc.Front, "France") {
		t.Error("extra must not appear on the question")
	}
}

func TestCloze_RoundTrip(t *testing.T) {
	texts := []string{
		"The {{c1::mitochondria}} is the {{c2::powerhouse}} of the {{c3::cell::unit}}",
		"{{c1::a}} {{c1::b}} {{c2::c::hint}} plain",
		"{{c10::ten}} and {{c2::two}}",
		"multi\nline {{c1::an\nswer}}",
	}
	for _, text := range texts {
		for _, ord := range ClozeOrdinals(text) {
			answers := ClozeAnswers(text, ord)
			revealed := Answer(text, ord)
			for _, a := range answers {
				if !strings.Contains(revealed, `<span class="cloze">`+a+`</span>`) {
					t.Errorf("ord %d of %q: answer %q not revealed in %q", ord, text, a, revealed)
				}
			}
			unwrapped := strings.ReplaceAll(strings.ReplaceAll(revealed, `<span class="cloze">`, ""), "</span>", "")
			if unwrapped != RevealAll(text) {
				t.Errorf("ord %d of %q: unwrapped answer %q != %q", ord, text, unwrapped, RevealAll(text))
			}
			hidden := Question(text, ord)
			for _, a := range answers {
				if strings.Contains(hidden, `<span class="cloze">`+a) {
					t.Errorf("ord %d: question reveals %q", ord, a)
				}
			}
		}
	}
}

func TestClozeOrdinals(t *testing.T) {
	got := ClozeOrdinals("{{c3::x}} {{c1::y}} {{c3::z}} {{c0::bad}}")
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("ordinals = %v", got)
	}
}

func TestText_StripsAndDescribesImages(t *testing.T) {
	note := &models.Note{Fields: []string{`What is <b>this</b>?<br><img src="media/dog.jpg">`, "a&nbsp;dog [sound:bark.mp3]", ""}}
	front, back := Text(models.Card{}, note, basicModel(), true)
	if front != "What is this?\n[Image: dog.jpg]no hint" {
		t.Errorf("front = %q", front)
	}
	if back != "a dog [Audio: bark.mp3]" {
		t.Errorf("back = %q", back)
	}

	front, back = Text(models.Card{}, note, basicModel(), false)
	if strings.Contains(front, "Image") || strings.Contains(back, "Audio") {
		t.Errorf("media should be omitted: %q / %q", front, back)
	}
}

func TestStripHTML_BlocksAndScripts(t *testing.T) {
	got := StripHTML("<div>one</div><div>two</div><script>alert(1)</script><style>.x{}</style>", true)
	if got != "one\ntwo" {
		t.Errorf("StripHTML = %q", got)
	}
}
