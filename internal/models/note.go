// Package models defines the domain types for deckdoctor.
package models

import "strings"

// ModelType selects how a model's notes are turned into cards.
type ModelType string

const (
	ModelStandard ModelType = "standard"
	ModelCloze    ModelType = "cloze"
)

// Field is a named HTML value. Field order follows the owning model's field definitions.
type Field struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Template is one question/answer pair of a standard model.
type Template struct {
	Name  string `json:"name" yaml:"name"`
	Front string `json:"front" yaml:"front"`
	Back  string `json:"back" yaml:"back"`
}

// Model is the schema and presentation shared by notes of one kind.
type Model struct {
	ID        int64      `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	Type      ModelType  `json:"type" yaml:"type"`
	Fields    []string   `json:"fields" yaml:"fields"`
	Templates []Template `json:"templates,omitempty" yaml:"templates"`
	CSS       string     `json:"css,omitempty" yaml:"css"`
}

// IsCloze reports whether cards of this model are cloze deletions.
func (m *Model) IsCloze() bool {
	return m.Type == ModelCloze
}

// Note owns the raw field values and tags; one note backs one or more cards.
type Note struct {
	ID      int64    `json:"id" yaml:"id"`
	ModelID int64    `json:"model_id" yaml:"model_id"`
	Fields  []string `json:"fields" yaml:"fields"`
	Tags    []string `json:"tags,omitempty" yaml:"tags"`
}

// NamedFields pairs the note's values with the model's field names by position.
// Missing values are treated as empty; surplus values are dropped.
func (n *Note) NamedFields(m *Model) []Field {
	out := make([]Field, len(m.Fields))
	for i, name := range m.Fields {
		out[i].Name = name
		if i < len(n.Fields) {
			out[i].Value = n.Fields[i]
		}
	}
	return out
}

// Deck is the named grouping a card belongs to.
type Deck struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Card selects one presentation of a note. Scheduling metadata is carried
// through untouched.
type Card struct {
	ID         int64 `json:"id" yaml:"id"`
	NoteID     int64 `json:"note_id" yaml:"note_id"`
	DeckID     int64 `json:"deck_id" yaml:"deck_id"`
	Ord        int   `json:"ord" yaml:"ord"`
	Queue      int   `json:"queue" yaml:"queue"`
	Interval   int   `json:"interval" yaml:"interval"`
	EaseFactor int   `json:"ease_factor" yaml:"ease_factor"`
	Reps       int   `json:"reps" yaml:"reps"`
	Lapses     int   `json:"lapses" yaml:"lapses"`
}

// RenderedCard is the immutable result of rendering a card.
type RenderedCard struct {
	CardID    int64    `json:"card_id"`
	NoteID    int64    `json:"note_id"`
	Front     string   `json:"front"`
	Back      string   `json:"back"`
	Fields    []Field  `json:"fields"`
	Tags      []string `json:"tags"`
	CSS       string   `json:"css,omitempty"`
	DeckName  string   `json:"deck_name"`
	ModelName string   `json:"model_name"`
}

// CardType is the kind of a suggested card.
type CardType string

const (
	CardBasic         CardType = "basic"
	CardBasicReversed CardType = "basic-reversed"
	CardCloze         CardType = "cloze"
)

// ParseCardType normalises provider spellings, defaulting to basic.
func ParseCardType(s string) CardType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic-reversed", "basic_reversed", "reversed", "basic (and reversed card)":
		return CardBasicReversed
	case "cloze":
		return CardCloze
	default:
		return CardBasic
	}
}

// SuggestedCard is a provider-proposed card that has not been accepted yet.
type SuggestedCard struct {
	Type        CardType `json:"type"`
	Fields      []Field  `json:"fields"`
	Explanation string   `json:"explanation"`
}

// ViewKind discriminates CardView.
type ViewKind string

const (
	ViewRendered  ViewKind = "rendered"
	ViewSuggested ViewKind = "suggested"
)

// CardView lets a consumer hold either an existing rendered card or a
// suggestion. Exactly one of Rendered and Suggested is set, matching Kind.
type CardView struct {
	Kind      ViewKind       `json:"kind"`
	Rendered  *RenderedCard  `json:"rendered,omitempty"`
	Suggested *SuggestedCard `json:"suggested,omitempty"`
}

// RenderedView wraps a rendered card.
func RenderedView(rc RenderedCard) CardView {
	return CardView{Kind: ViewRendered, Rendered: &rc}
}

// SuggestedView wraps a suggestion.
func SuggestedView(sc SuggestedCard) CardView {
	return CardView{Kind: ViewSuggested, Suggested: &sc}
}

// Fields returns the view's fields regardless of kind.
func (v CardView) Fields() []Field {
	switch v.Kind {
	case ViewRendered:
		return v.Rendered.Fields
	case ViewSuggested:
		return v.Suggested.Fields
	default:
		return nil
	}
}
