// Package render turns note fields into displayable card content.
//
// The grammar is fixed: {{Field}}, {{#Field}}…{{/Field}}, {{^Field}}…{{/Field}},
// {{FrontSide}} and cloze deletions {{cN::answer[::hint]}}. It is not a general
// template language.
package render

import (
	"regexp"
	"strings"

	"github.com/starford/deckdoctor/internal/media"
	"github.com/starford/deckdoctor/internal/models"
)

var (
	frontSideRe = regexp.MustCompile(`\{\{\s*FrontSide\s*\}\}`)
	leftoverRe  = regexp.MustCompile(`\{\{[^{}]*\}\}`)
)

// Render produces the rendered card. It is a pure function of its inputs.
// deck may be nil.
func Render(card models.Card, note *models.Note, model *models.Model, deck *models.Deck, store media.Store) models.RenderedCard {
	resolve := func(s string) string { return media.Resolve(s, store) }
	fields := resolvedFields(note.NamedFields(model), resolve)
	front, back := renderFields(card, model, fields)

	rc := models.RenderedCard{
		CardID:    card.ID,
		NoteID:    note.ID,
		Front:     front,
		Back:      back,
		Fields:    fields,
		Tags:      append([]string{}, note.Tags...),
		CSS:       model.CSS,
		ModelName: model.Name,
	}
	if deck != nil {
		rc.DeckName = deck.Name
	}
	return rc
}

// Text renders the card without media resolution and returns plain-text
// front and back, as sent to analysis providers.
func Text(card models.Card, note *models.Note, model *models.Model, sendImages bool) (string, string) {
	front, back := renderFields(card, model, note.NamedFields(model))
	return StripHTML(front, sendImages), StripHTML(back, sendImages)
}

func resolvedFields(fields []models.Field, resolve func(string) string) []models.Field {
	out := make([]models.Field, len(fields))
	for i, f := range fields {
		out[i] = models.Field{Name: f.Name, Value: resolve(f.Value)}
	}
	return out
}

func renderFields(card models.Card, model *models.Model, fields []models.Field) (string, string) {
	if model.IsCloze() {
		return renderCloze(card.Ord+1, fields)
	}
	tmpl, ok := templateFor(model, card.Ord)
	if !ok {
		return "", ""
	}
	front := cleanup(Substitute(tmpl.Front, fields), false)
	back := cleanup(Substitute(tmpl.Back, fields), true)
	return front, back
}

func templateFor(model *models.Model, ord int) (models.Template, bool) {
	if len(model.Templates) == 0 {
		return models.Template{}, false
	}
	if ord < 0 || ord >= len(model.Templates) {
		return model.Templates[0], true
	}
	return model.Templates[ord], true
}

// Substitute applies conditional, negated and plain substitutions for each
// field in order. Unknown tokens are left for cleanup.
func Substitute(tmpl string, fields []models.Field) string {
	out := tmpl
	for _, f := range fields {
		name := regexp.QuoteMeta(f.Name)
		present := strings.TrimSpace(f.Value) != ""

		section := regexp.MustCompile(`(?s)\{\{\s*#\s*` + name + `\s*\}\}(.*?)\{\{\s*/\s*` + name + `\s*\}\}`)
		out = section.ReplaceAllStringFunc(out, func(m string) string {
			if !present {
				return ""
			}
			return section.FindStringSubmatch(m)[1]
		})

		inverted := regexp.MustCompile(`(?s)\{\{\s*\^\s*` + name + `\s*\}\}(.*?)\{\{\s*/\s*` + name + `\s*\}\}`)
		out = inverted.ReplaceAllStringFunc(out, func(m string) string {
			if present {
				return ""
			}
			return inverted.FindStringSubmatch(m)[1]
		})

		plain := regexp.MustCompile(`\{\{\s*` + name + `\s*\}\}`)
		out = plain.ReplaceAllLiteralString(out, f.Value)
	}
	return out
}

func cleanup(s string, answer bool) string {
	if answer {
		s = frontSideRe.ReplaceAllString(s, "")
	}
	return leftoverRe.ReplaceAllString(s, "")
}
