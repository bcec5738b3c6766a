package insight

import (
	"fmt"
	"strings"

	"github.com/starford/deckdoctor/internal/models"
)

// CoverageContract is the JSON shape of a coverage review.
const CoverageContract = `{
  "summary": string,
  "knowledgeCoverage": {
    "overallCoverage": "excellent" | "good" | "fair" | "poor",
    "coverageScore": integer from 1 to 10,
    "summary": string,
    "coveredTopics": [string],
    "gaps": [{"topic": string, "importance": "high" | "medium" | "low", "description": string}],
    "recommendations": [string]
  },
  "suggestedCards": [
    {"type": "basic" | "basic-reversed" | "cloze", "fields": [{"name": string, "value": string}], "explanation": string}
  ]
}`

// CoverageSystemPrompt frames the deck-level review.
const CoverageSystemPrompt = `You assess how well a flashcard deck covers its subject.

Do not grade individual card quality; that has already been done. Infer the
subject from the sample cards, list the topics the deck covers, and identify
important topics or facts a learner of this subject would expect but the deck
is missing. Propose new cards that fill the most important gaps.

Respond with a single JSON object and nothing else, in this shape:
` + CoverageContract

const maxPromptIssues = 5

func coveragePrompt(stats *models.DeckAnalysisResult, samples []Sample) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Deck: %s\n", stats.DeckName)
	fmt.Fprintf(&sb, "Total cards: %d\n", stats.TotalCards)
	fmt.Fprintf(&sb, "Analyzed cards: %d\n", stats.AnalyzedCards)
	fmt.Fprintf(&sb, "Average card score: %.1f/10\n", stats.AverageScore)

	if len(stats.CommonIssues) > 0 {
		sb.WriteString("Most common card issues:\n")
		for i, ic := range stats.CommonIssues {
			if i == maxPromptIssues {
				break
			}
			fmt.Fprintf(&sb, "- %s (%d cards)\n", ic.Issue, ic.Count)
		}
	}

	fmt.Fprintf(&sb, "\nSample of %d cards:\n", len(samples))
	for i, s := range samples {
		fmt.Fprintf(&sb, "\n[%d]\nFront: %s\nBack: %s\n", i+1, s.Front, s.Back)
	}
	return sb.String()
}
