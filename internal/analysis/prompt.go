package analysis

import (
	"fmt"
	"strings"
)

// ResponseContract is the JSON shape every card analysis must return.
const ResponseContract = `{
  "feedback": {
    "isUnambiguous": boolean,
    "isAtomic": boolean,
    "isRecognizable": boolean,
    "isActiveRecall": boolean,
    "overallScore": integer from 1 to 10,
    "issues": [string],
    "suggestions": [string],
    "reasoning": string
  },
  "suggestedCards": [
    {
      "type": "basic" | "basic-reversed" | "cloze",
      "fields": [{"name": string, "value": string}],
      "explanation": string
    }
  ],
  "deleteOriginal": boolean,
  "deleteReason": string (optional)
}`

// SystemPrompt frames the per-card review.
const SystemPrompt = `You review spaced-repetition flashcards for learning quality.

Judge the card against four principles:
1. Unambiguous: the question has exactly one correct answer.
2. Atomic: the card tests a single fact or idea.
3. Recognizable: the prompt gives enough context to know what is asked.
4. Active recall: the learner must produce the answer, not just recognize it.

Score the card from 1 (unusable) to 10 (excellent). List concrete issues and
suggestions as plain strings. When the card should be split or rewritten,
propose replacement cards in "suggestedCards", never inside "issues" or
"suggestions". Cloze cards use {{c1::answer}} syntax in a field named "Text".
Set "deleteOriginal" only when the suggested cards fully replace the original.

Respond with a single JSON object and nothing else, in this shape:
` + ResponseContract

// CardPrompt describes one card for the user message.
type CardPrompt struct {
	DeckName  string
	ModelName string
	Cloze     bool
	Front     string
	Back      string
	Tags      []string
}

// UserPrompt renders the card description sent with SystemPrompt.
func UserPrompt(p CardPrompt) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Deck: %s\n", p.DeckName)
	fmt.Fprintf(&sb, "Note type: %s", p.ModelName)
	if p.Cloze {
		sb.WriteString(" (cloze)")
	}
	sb.WriteString("\n")
	if len(p.Tags) > 0 {
		fmt.Fprintf(&sb, "Tags: %s\n", strings.Join(p.Tags, ", "))
	}
	fmt.Fprintf(&sb, "\nFront:\n%s\n\nBack:\n%s\n", p.Front, p.Back)
	return sb.String()
}
