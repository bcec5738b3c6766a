package cache

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/starford/deckdoctor/internal/checksum"
	"github.com/starford/deckdoctor/internal/kv"
	"github.com/starford/deckdoctor/internal/models"
)

func newCache(t *testing.T) (*Cache, kv.Store) {
	t.Helper()
	store, err := kv.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return New(store), store
}

func fields() []models.Field {
	return []models.Field{{Name: "Front", Value: "hablar"}, {Name: "Back", Value: "to speak"}}
}

func result(score int) *models.LLMAnalysisResult {
	return &models.LLMAnalysisResult{Feedback: models.Feedback{OverallScore: score, Reasoning: "ok"}}
}

func TestCache_RoundTrip(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()
	l := Lookup{Scope: "Spanish", File: "spanish.yaml", CardID: 7, Fields: fields()}

	if _, _, ok, err := c.Get(ctx, l); err != nil || ok {
		t.Fatalf("empty cache Get: ok=%v err=%v", ok, err)
	}
	if err := c.Put(ctx, l, result(8)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, tier, ok, err := c.Get(ctx, l)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if tier != TierGlobal {
		t.Errorf("tier = %q", tier)
	}
	if got.Feedback.OverallScore != 8 {
		t.Errorf("score = %d", got.Feedback.OverallScore)
	}
}

func TestCache_MutatedFieldMisses(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()
	l := Lookup{Scope: "Spanish", File: "spanish.yaml", CardID: 7, Fields: fields()}
	_ = c.Put(ctx, l, result(8))

	changed := fields()
	changed[1].Value = "to talk"
	l.Fields = changed
	if _, _, ok, err := c.Get(ctx, l); err != nil || ok {
		t.Errorf("mutated content should miss: ok=%v err=%v", ok, err)
	}
}

func TestCache_SharedAcrossFiles(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()
	_ = c.Put(ctx, Lookup{Scope: "Spanish", File: "a.yaml", CardID: 1, Fields: fields()}, result(6))

	_, tier, ok, _ := c.Get(ctx, Lookup{Scope: "Spanish", File: "b.yaml", CardID: 99, Fields: fields()})
	if !ok || tier != TierGlobal {
		t.Errorf("identical content in another file should hit the global tier: ok=%v tier=%q", ok, tier)
	}
	if _, _, ok, _ := c.Get(ctx, Lookup{Scope: "French", Fields: fields()}); ok {
		t.Error("a different deck name must not share the entry")
	}
}

func TestCache_LegacyTierVerifiesHash(t *testing.T) {
	c, store := newCache(t)
	ctx := context.Background()

	records := []legacyRecord{{CardID: 7, ContentHash: checksum.FieldsHash(fields()), Result: result(4)}}
	data, _ := json.Marshal(records)
	if err := store.Put(ctx, legacyKey("old.yaml"), data); err != nil {
		t.Fatal(err)
	}

	got, tier, ok, err := c.Get(ctx, Lookup{Scope: "Spanish", File: "old.yaml", CardID: 7, Fields: fields()})
	if err != nil || !ok || tier != TierLegacy || got.Feedback.OverallScore != 4 {
		t.Fatalf("legacy Get: ok=%v tier=%q err=%v", ok, tier, err)
	}

	changed := fields()
	changed[0].Value = "comer"
	if _, _, ok, _ := c.Get(ctx, Lookup{Scope: "Spanish", File: "old.yaml", CardID: 7, Fields: changed}); ok {
		t.Error("hash mismatch should be a miss")
	}
}

func TestCache_LegacyTierPerFile(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()
	if err := c.Put(ctx, Lookup{Scope: "Spanish", File: "a/b.yaml", CardID: 7, Fields: fields()}, result(4)); err != nil {
		t.Fatal(err)
	}

	if _, _, ok, _ := c.Get(ctx, Lookup{Scope: "Other", File: "a_b.yaml", CardID: 7, Fields: fields()}); ok {
		t.Error("a_b.yaml must not share the legacy tier of a/b.yaml")
	}
	got, tier, ok, err := c.Get(ctx, Lookup{Scope: "Other", File: "a/b.yaml", CardID: 7, Fields: fields()})
	if err != nil || !ok || tier != TierLegacy || got.Feedback.OverallScore != 4 {
		t.Fatalf("legacy Get: ok=%v tier=%q err=%v", ok, tier, err)
	}
	if legacyKey("C:\\decks\\a.yaml") == legacyKey("C_decks_a.yaml") {
		t.Error("escaped keys collide")
	}
}

func TestCache_PutReplaces(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()
	l := Lookup{Scope: "Spanish", File: "spanish.yaml", CardID: 7, Fields: fields()}
	_ = c.Put(ctx, l, result(3))
	_ = c.Put(ctx, l, result(9))

	got, _, _, _ := c.Get(ctx, l)
	if got.Feedback.OverallScore != 9 {
		t.Errorf("score = %d, want latest", got.Feedback.OverallScore)
	}
	st, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Global.Entries != 1 || st.Legacy.Entries != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestCache_StatsAndClear(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()
	for i, file := range []string{"a.yaml", "b.yaml", "b.yaml"} {
		f := fields()
		f[0].Value += string(rune('a' + i))
		_ = c.Put(ctx, Lookup{Scope: "S", File: file, CardID: int64(i), Fields: f}, result(5))
	}

	st, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Global.Entries != 3 || st.Legacy.Entries != 3 || st.LegacyFiles != 2 {
		t.Errorf("stats = %+v", st)
	}
	if st.Global.Bytes == 0 || st.Legacy.Bytes == 0 {
		t.Errorf("sizes should be non-zero: %+v", st)
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	st, _ = c.Stats(ctx)
	if st.Global.Entries != 0 || st.LegacyFiles != 0 {
		t.Errorf("after clear = %+v", st)
	}
}
