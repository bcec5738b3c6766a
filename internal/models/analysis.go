package models

import "time"

// Feedback is the per-card quality assessment.
type Feedback struct {
	IsUnambiguous  bool     `json:"isUnambiguous"`
	IsAtomic       bool     `json:"isAtomic"`
	IsRecognizable bool     `json:"isRecognizable"`
	IsActiveRecall bool     `json:"isActiveRecall"`
	OverallScore   int      `json:"overallScore"`
	Issues         []string `json:"issues"`
	Suggestions    []string `json:"suggestions"`
	Reasoning      string   `json:"reasoning"`
}

// LLMAnalysisResult is the normalised output of one card analysis.
type LLMAnalysisResult struct {
	Feedback       Feedback        `json:"feedback"`
	SuggestedCards []SuggestedCard `json:"suggestedCards"`
	DeleteOriginal bool            `json:"deleteOriginal"`
	DeleteReason   string          `json:"deleteReason,omitempty"`
}

// CardAnalysis is one card's outcome within a deck run.
type CardAnalysis struct {
	CardID     int64              `json:"card_id"`
	DeckName   string             `json:"deck_name,omitempty"`
	Result     *LLMAnalysisResult `json:"result,omitempty"`
	Fields     []Field            `json:"fields,omitempty"`
	Error      string             `json:"error,omitempty"` // set when the provider reply could not be parsed
	FromCache  bool               `json:"from_cache,omitempty"`
	AnalyzedAt time.Time          `json:"analyzed_at"`
}

// OK reports whether the analysis carries a usable result.
func (a CardAnalysis) OK() bool {
	return a.Error == "" && a.Result != nil
}

// Coverage levels.
const (
	CoverageExcellent = "excellent"
	CoverageGood      = "good"
	CoverageFair      = "fair"
	CoveragePoor      = "poor"
)

// Gap importance levels.
const (
	ImportanceHigh   = "high"
	ImportanceMedium = "medium"
	ImportanceLow    = "low"
)

// KnowledgeGap is a topic the deck should cover but does not.
type KnowledgeGap struct {
	Topic       string `json:"topic"`
	Importance  string `json:"importance"`
	Description string `json:"description"`
}

// KnowledgeCoverage describes subject-matter coverage of a deck.
type KnowledgeCoverage struct {
	OverallCoverage string         `json:"overallCoverage"`
	CoverageScore   int            `json:"coverageScore"`
	Summary         string         `json:"summary"`
	CoveredTopics   []string       `json:"coveredTopics"`
	Gaps            []KnowledgeGap `json:"gaps"`
	Recommendations []string       `json:"recommendations"`
}

// IssueCount is a recurring issue and how many cards reported it.
type IssueCount struct {
	Issue string `json:"issue"`
	Count int    `json:"count"`
}

// DeckAnalysisResult is the deck-level aggregate.
type DeckAnalysisResult struct {
	DeckID              int64              `json:"deck_id"`
	DeckName            string             `json:"deck_name"`
	TotalCards          int                `json:"total_cards"`
	AnalyzedCards       int                `json:"analyzed_cards"`
	AverageScore        float64            `json:"average_score"`
	ScoreDistribution   [10]int            `json:"score_distribution"`
	TotalSuggestedCards int                `json:"total_suggested_cards"`
	CommonIssues        []IssueCount       `json:"common_issues"`
	Summary             string             `json:"summary"`
	Coverage            *KnowledgeCoverage `json:"knowledge_coverage,omitempty"`
	SuggestedCards      []SuggestedCard    `json:"suggested_cards"`
	Error               string             `json:"error,omitempty"`
	GeneratedAt         time.Time          `json:"generated_at"`
}
