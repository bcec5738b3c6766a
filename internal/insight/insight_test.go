package insight

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/starford/deckdoctor/internal/llm"
	"github.com/starford/deckdoctor/internal/models"
)

type stubCaller struct {
	reply string
	err   error
	user  string
	calls int
}

func (s *stubCaller) Call(_ context.Context, _, user string) (string, error) {
	s.calls++
	s.user = user
	return s.reply, s.err
}

func analyzed(id int64, score int, issues []string, suggestions int) models.CardAnalysis {
	res := &models.LLMAnalysisResult{Feedback: models.Feedback{OverallScore: score, Issues: issues}}
	for i := 0; i < suggestions; i++ {
		res.SuggestedCards = append(res.SuggestedCards, models.SuggestedCard{Type: models.CardBasic})
	}
	return models.CardAnalysis{CardID: id, Result: res}
}

const coverageReply = "Here is my review:\n```json\n" + `{
  "summary": "Solid basics, thin on history.",
  "knowledgeCoverage": {
    "overallCoverage": "GOOD",
    "coverageScore": 14,
    "coveredTopics": ["capitals"],
    "gaps": [{"topic": "rivers", "importance": "critical", "description": "none"}, {"topic": ""}]
  },
  "suggestedCards": [{"type": "basic", "fields": [{"name": "Front", "value": "Longest river?"}]}]
}` + "\n```"

func TestAggregate_Stats(t *testing.T) {
	caller := &stubCaller{reply: coverageReply}
	a := New(caller)
	req := Request{
		DeckID:     1,
		DeckName:   "Geo",
		TotalCards: 10,
		Results: []models.CardAnalysis{
			analyzed(1, 7, []string{"Too long", "vague"}, 1),
			analyzed(2, 8, []string{"too long "}, 2),
			analyzed(3, 10, nil, 0),
			{CardID: 4, Error: "failed"},
		},
		Samples: []Sample{{Front: "Capital of France?", Back: "Paris"}},
	}

	res, err := a.Aggregate(context.Background(), req)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if res.AnalyzedCards != 3 || res.TotalCards != 10 {
		t.Errorf("counts = %d/%d", res.AnalyzedCards, res.TotalCards)
	}
	if res.AverageScore != 8.3 {
		t.Errorf("average = %v", res.AverageScore)
	}
	if res.ScoreDistribution[6] != 1 || res.ScoreDistribution[7] != 1 || res.ScoreDistribution[9] != 1 {
		t.Errorf("distribution = %v", res.ScoreDistribution)
	}
	if res.TotalSuggestedCards != 3 {
		t.Errorf("suggested = %d", res.TotalSuggestedCards)
	}
	if len(res.CommonIssues) != 2 || res.CommonIssues[0].Issue != "Too long" || res.CommonIssues[0].Count != 2 {
		t.Errorf("common issues = %+v", res.CommonIssues)
	}
	if !strings.Contains(caller.user, "Capital of France?") || !strings.Contains(caller.user, "Average card score: 8.3/10") {
		t.Errorf("prompt = %s", caller.user)
	}

	if res.Summary != "Solid basics, thin on history." {
		t.Errorf("summary = %q", res.Summary)
	}
	cov := res.Coverage
	if cov == nil {
		t.Fatal("coverage missing")
	}
	if cov.OverallCoverage != models.CoverageGood || cov.CoverageScore != 10 {
		t.Errorf("coverage = %+v", cov)
	}
	if len(cov.Gaps) != 1 || cov.Gaps[0].Importance != models.ImportanceMedium {
		t.Errorf("gaps = %+v", cov.Gaps)
	}
	if cov.Recommendations == nil {
		t.Error("missing arrays should default to empty")
	}
	if len(res.SuggestedCards) != 1 {
		t.Errorf("suggested cards = %+v", res.SuggestedCards)
	}
}

func TestAggregate_NoResults(t *testing.T) {
	caller := &stubCaller{}
	res, err := New(caller).Aggregate(context.Background(), Request{DeckName: "Empty", Results: []models.CardAnalysis{{CardID: 1, Error: "x"}}})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if res.Error == "" || res.AnalyzedCards != 0 || res.AverageScore != 0 {
		t.Errorf("result = %+v", res)
	}
	if caller.calls != 0 {
		t.Error("provider must not be called without results")
	}
}

func TestAggregate_ProviderErrorKeepsStats(t *testing.T) {
	caller := &stubCaller{err: &llm.Error{Kind: llm.KindRateLimit, RetryAfter: 30}}
	res, err := New(caller).Aggregate(context.Background(), Request{Results: []models.CardAnalysis{analyzed(1, 6, nil, 0)}})
	var le *llm.Error
	if !errors.As(err, &le) || le.RetryAfter != 30 {
		t.Fatalf("expected *llm.Error, got %v", err)
	}
	if res.AnalyzedCards != 1 || res.AverageScore != 6 {
		t.Errorf("stats should survive the error: %+v", res)
	}
}

func TestParseCoverage_SummaryFallbacks(t *testing.T) {
	res := parseCoverage(`truncated {"summary": "Covers \"basics\" well", "knowledgeCoverage": {`)
	if res.summary != `Covers "basics" well` || res.coverage != nil {
		t.Errorf("regex fallback = %+v", res)
	}
	res = parseCoverage("  The deck is fine.  ")
	if res.summary != "The deck is fine." {
		t.Errorf("raw fallback = %q", res.summary)
	}
}

func TestSampleEvenly(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}
	got := SampleEvenly(items, 30)
	if len(got) != 30 || got[0] != 0 {
		t.Fatalf("sample = %v", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Fatalf("sample not ordered: %v", got)
		}
	}
	if len(SampleEvenly(items[:5], 30)) != 5 {
		t.Error("short input should be returned whole")
	}
}

func TestAggregate_CoverageScoreOutOfRange(t *testing.T) {
	tests := []struct {
		score string
		want  int
	}{
		{`1e20`, 10},
		{`-1e20`, 1},
		{`"Inf"`, 5},
	}
	for _, tt := range tests {
		caller := &stubCaller{reply: `{"knowledgeCoverage":{"coverageScore":` + tt.score + `}}`}
		res, err := New(caller).Aggregate(context.Background(), Request{DeckName: "Geo", Results: []models.CardAnalysis{analyzed(1, 7, nil, 0)}})
		if err != nil {
			t.Fatalf("Aggregate: %v", err)
		}
		if res.Coverage == nil || res.Coverage.CoverageScore != tt.want {
			t.Errorf("score %s: coverage = %+v, want %d", tt.score, res.Coverage, tt.want)
		}
	}
}
