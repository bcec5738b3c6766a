// Package insight aggregates per-card analyses into a deck-level report and
// asks the provider for a subject-matter coverage review.
package insight

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/starford/deckdoctor/internal/analysis"
	"github.com/starford/deckdoctor/internal/llm"
	"github.com/starford/deckdoctor/internal/models"
)

// MaxSamples bounds the cards shown to the provider.
const MaxSamples = 30

// maxCommonIssues bounds DeckAnalysisResult.CommonIssues.
const maxCommonIssues = 10

// NoResultsMessage is reported when a deck has no usable card analyses.
const NoResultsMessage = "No analyzed cards available. Analyze the deck before requesting insights."

// Sample is one card's stripped front and back text.
type Sample struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

// Request is the input of Aggregate. Samples may hold the whole deck; it is
// reduced to MaxSamples evenly spaced entries.
type Request struct {
	DeckID     int64
	DeckName   string
	TotalCards int
	Results    []models.CardAnalysis
	Samples    []Sample
}

// Aggregator builds deck reports.
type Aggregator struct {
	caller llm.Caller
	now    func() time.Time
}

// New returns an aggregator that uses caller for the coverage review.
func New(caller llm.Caller) *Aggregator {
	return &Aggregator{caller: caller, now: time.Now}
}

// Aggregate computes deck statistics and asks for a coverage review. A deck
// without usable analyses yields a result with Error set and a nil error.
// Provider failures are returned together with the statistics computed so far.
func (a *Aggregator) Aggregate(ctx context.Context, req Request) (models.DeckAnalysisResult, error) {
	out := models.DeckAnalysisResult{
		DeckID:         req.DeckID,
		DeckName:       req.DeckName,
		TotalCards:     req.TotalCards,
		CommonIssues:   []models.IssueCount{},
		SuggestedCards: []models.SuggestedCard{},
		GeneratedAt:    a.now().UTC(),
	}

	var valid []models.CardAnalysis
	for _, r := range req.Results {
		if r.OK() {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		out.Error = NoResultsMessage
		return out, nil
	}
	computeStats(&out, valid)

	samples := SampleEvenly(req.Samples, MaxSamples)
	raw, err := a.caller.Call(ctx, CoverageSystemPrompt, coveragePrompt(&out, samples))
	if err != nil {
		return out, fmt.Errorf("insight: coverage review: %w", err)
	}

	cov := parseCoverage(raw)
	out.Summary = cov.summary
	out.Coverage = cov.coverage
	out.SuggestedCards = cov.cards
	if cov.diagnostic != "" {
		slog.Warn("coverage response only partly parsed",
			slog.String("deck", req.DeckName),
			slog.String("diagnostic", cov.diagnostic),
		)
	}
	return out, nil
}

func computeStats(out *models.DeckAnalysisResult, valid []models.CardAnalysis) {
	out.AnalyzedCards = len(valid)

	sum := 0
	counts := map[string]*models.IssueCount{}
	for _, r := range valid {
		score := r.Result.Feedback.OverallScore
		sum += score
		out.ScoreDistribution[min(max(score, 1), 10)-1]++
		out.TotalSuggestedCards += len(r.Result.SuggestedCards)

		for _, issue := range r.Result.Feedback.Issues {
			key := strings.ToLower(strings.TrimSpace(issue))
			if key == "" {
				continue
			}
			if c, ok := counts[key]; ok {
				c.Count++
				continue
			}
			counts[key] = &models.IssueCount{Issue: strings.TrimSpace(issue), Count: 1}
		}
	}
	out.AverageScore = math.Round(float64(sum)/float64(len(valid))*10) / 10

	for _, c := range counts {
		out.CommonIssues = append(out.CommonIssues, *c)
	}
	sort.Slice(out.CommonIssues, func(i, j int) bool {
		a, b := out.CommonIssues[i], out.CommonIssues[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Issue < b.Issue
	})
	if len(out.CommonIssues) > maxCommonIssues {
		out.CommonIssues = out.CommonIssues[:maxCommonIssues]
	}
}

// SampleEvenly picks at most n items spread evenly across items, keeping order.
func SampleEvenly[T any](items []T, n int) []T {
	if n <= 0 {
		return nil
	}
	if len(items) <= n {
		return items
	}
	out := make([]T, n)
	step := float64(len(items)) / float64(n)
	for i := range out {
		out[i] = items[int(float64(i)*step)]
	}
	return out
}

type coverageResult struct {
	summary    string
	coverage   *models.KnowledgeCoverage
	cards      []models.SuggestedCard
	diagnostic string
}

var summaryRe = regexp.MustCompile(`"summary"\s*:\s*"((?:[^"\\]|\\.)*)"`)

func parseCoverage(raw string) coverageResult {
	obj, _, ok := analysis.DecodeObject(raw)
	if !ok {
		res := coverageResult{cards: []models.SuggestedCard{}, diagnostic: "no JSON object found"}
		if m := summaryRe.FindStringSubmatch(raw); m != nil {
			if s, err := strconv.Unquote(`"` + m[1] + `"`); err == nil {
				res.summary = s
			} else {
				res.summary = m[1]
			}
			return res
		}
		res.summary = strings.TrimSpace(raw)
		return res
	}

	res := coverageResult{
		summary: analysis.AsString(obj["summary"]),
		cards:   analysis.SuggestedCards(obj["suggestedCards"]),
	}
	if m, ok := obj["knowledgeCoverage"].(map[string]any); ok {
		res.coverage = normalizeCoverage(m)
	} else {
		res.diagnostic = "knowledgeCoverage missing"
	}
	if res.summary == "" && res.coverage != nil {
		res.summary = res.coverage.Summary
	}
	return res
}

func normalizeCoverage(m map[string]any) *models.KnowledgeCoverage {
	level := enum(m["overallCoverage"], models.CoverageFair,
		models.CoverageExcellent, models.CoverageGood, models.CoverageFair, models.CoveragePoor)
	cov := &models.KnowledgeCoverage{
		OverallCoverage: level,
		CoverageScore:   analysis.ClampScore(m["coverageScore"], 1, 10, analysis.DefaultScore),
		Summary:         analysis.AsString(m["summary"]),
		CoveredTopics:   stringList(m["coveredTopics"]),
		Gaps:            []models.KnowledgeGap{},
		Recommendations: stringList(m["recommendations"]),
	}
	gaps, _ := m["gaps"].([]any)
	for _, g := range gaps {
		gm, ok := g.(map[string]any)
		if !ok {
			continue
		}
		topic := strings.TrimSpace(analysis.AsString(gm["topic"]))
		if topic == "" {
			continue
		}
		importance := enum(gm["importance"], models.ImportanceMedium,
			models.ImportanceHigh, models.ImportanceMedium, models.ImportanceLow)
		cov.Gaps = append(cov.Gaps, models.KnowledgeGap{
			Topic:       topic,
			Importance:  importance,
			Description: analysis.AsString(gm["description"]),
		})
	}
	return cov
}

func enum(v any, def string, allowed ...string) string {
	s := strings.ToLower(strings.TrimSpace(analysis.AsString(v)))
	for _, a := range allowed {
		if s == a {
			return s
		}
	}
	return def
}

func stringList(v any) []string {
	out := []string{}
	items, _ := v.([]any)
	for _, item := range items {
		if s := strings.TrimSpace(analysis.AsString(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
