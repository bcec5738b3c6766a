package mcpserver

import (
	"github.com/starford/deckdoctor/internal/analysis"
	"github.com/starford/deckdoctor/internal/insight"
)

// AnalysisContract documents the JSON replies deckdoctor expects from a
// provider, for clients that want to review cards themselves.
const AnalysisContract = `# deckdoctor Analysis Contract

## Card review

Each card is judged against four criteria and scored 1-10 overall.

- **isUnambiguous**: the prompt has exactly one correct answer.
- **isAtomic**: the card tests a single fact.
- **isRecognizable**: the learner can tell what is being asked.
- **isActiveRecall**: the answer must be produced, not recognised.

A reply MUST be one JSON object of this shape:

` + "```json\n" + analysis.ResponseContract + "\n```" + `

Rules:

1. ` + "`overallScore`" + ` is an integer from 1 to 10. Missing or invalid scores become 5.
2. ` + "`suggestedCards[].type`" + ` is ` + "`basic`" + `, ` + "`basic-reversed`" + ` or ` + "`cloze`" + `. Cloze text uses ` + "`{{c1::answer::hint}}`" + `.
3. Suggested cards without fields are dropped.
4. Set ` + "`deleteOriginal`" + ` only when the suggestions fully replace the card, and say why in ` + "`deleteReason`" + `.

## Deck coverage

A coverage review MUST be one JSON object of this shape:

` + "```json\n" + insight.CoverageContract + "\n```" + `

Rules:

1. ` + "`overallCoverage`" + ` is one of excellent, good, fair, poor.
2. ` + "`gaps[].importance`" + ` is one of high, medium, low.
3. ` + "`coverageScore`" + ` is an integer from 1 to 10.
`
