package render

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/starford/deckdoctor/internal/models"
)

// HiddenMarker replaces a hidden cloze that has no hint.
const HiddenMarker = "[...]"

var clozeRe = regexp.MustCompile(`(?s)\{\{c(\d+)::(.*?)(?:::(.*?))?\}\}`)

type clozeMatch struct {
	ord    int
	answer string
	hint   string
}

func parseCloze(sub []string) clozeMatch {
	n, _ := strconv.Atoi(sub[1])
	return clozeMatch{ord: n, answer: sub[2], hint: sub[3]}
}

// Question hides every deletion numbered ord and reveals all others as plain text.
func Question(text string, ord int) string {
	return clozeRe.ReplaceAllStringFunc(text, func(m string) string {
		c := parseCloze(clozeRe.FindStringSubmatch(m))
		if c.ord != ord {
			return c.answer
		}
		if c.hint != "" {
			return `<span class="cloze">[` + c.hint + `]</span>`
		}
		return `<span class="cloze">` + HiddenMarker + `</span>`
	})
}

// Answer reveals deletion ord inside a cloze span and all others as plain text.
func Answer(text string, ord int) string {
	return clozeRe.ReplaceAllStringFunc(text, func(m string) string {
		c := parseCloze(clozeRe.FindStringSubmatch(m))
		if c.ord != ord {
			return c.answer
		}
		return `<span class="cloze">` + c.answer + `</span>`
	})
}

// RevealAll replaces every deletion with its answer.
func RevealAll(text string) string {
	return clozeRe.ReplaceAllString(text, "${2}")
}

// ClozeOrdinals lists the distinct deletion numbers in ascending order.
func ClozeOrdinals(text string) []int {
	seen := map[int]struct{}{}
	var out []int
	for _, sub := range clozeRe.FindAllStringSubmatch(text, -1) {
		c := parseCloze(sub)
		if c.ord < 1 {
			continue
		}
		if _, ok := seen[c.ord]; ok {
			continue
		}
		seen[c.ord] = struct{}{}
		out = append(out, c.ord)
	}
	sort.Ints(out)
	return out
}

// ClozeAnswers returns the literal answers of deletion ord, in order of appearance.
func ClozeAnswers(text string, ord int) []string {
	var out []string
	for _, sub := range clozeRe.FindAllStringSubmatch(text, -1) {
		if c := parseCloze(sub); c.ord == ord {
			out = append(out, c.answer)
		}
	}
	return out
}

// renderCloze builds both views from the first field. A non-blank second
// field is appended to the answer only.
func renderCloze(ord int, fields []models.Field) (string, string) {
	if len(fields) == 0 {
		return "", ""
	}
	text := fields[0].Value
	front := Question(text, ord)
	back := Answer(text, ord)
	if len(fields) > 1 && strings.TrimSpace(fields[1].Value) != "" {
		back += `<div class="extra">` + fields[1].Value + `</div>`
	}
	return front, back
}
