// Package deckservice coordinates the collection, renderer, cache and
// analysis pipeline behind the CLI, REST and MCP surfaces.
package deckservice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/deckdoctor/internal/analysis"
	"github.com/starford/deckdoctor/internal/apperr"
	"github.com/starford/deckdoctor/internal/cache"
	"github.com/starford/deckdoctor/internal/collection"
	"github.com/starford/deckdoctor/internal/insight"
	"github.com/starford/deckdoctor/internal/llm"
	"github.com/starford/deckdoctor/internal/media"
	"github.com/starford/deckdoctor/internal/models"
	"github.com/starford/deckdoctor/internal/render"
	"github.com/starford/deckdoctor/internal/sse"
)

// Publisher receives run and reload notifications. The SSE broker
// implements it.
type Publisher interface {
	PublishRun(kind, runID string, data any)
	PublishReload(path string, cards int)
}

// Config holds the service settings.
type Config struct {
	CollectionPath string
	MediaDir       string
	Analysis       analysis.Config
	SendImages     bool
}

// DeckSummary is a deck with its card count.
type DeckSummary struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Cards int    `json:"cards"`
}

// CardReview is a single-card analysis together with the original card and
// its suggested replacements as views.
type CardReview struct {
	Analysis models.CardAnalysis `json:"analysis"`
	Views    []models.CardView   `json:"views"`
}

// Service is safe for concurrent use.
type Service struct {
	cfg        Config
	cache      *cache.Cache
	analyzer   analysis.CardAnalyzer
	aggregator *insight.Aggregator
	pub        Publisher

	mu      sync.RWMutex
	coll    *collection.Collection
	results map[int64]map[int64]models.CardAnalysis // deck id -> card id -> latest analysis

	runs *registry
}

// New builds a service around an already loaded collection. pub may be nil.
func New(cfg Config, coll *collection.Collection, c *cache.Cache, caller llm.Caller, pub Publisher) *Service {
	return &Service{
		cfg:        cfg,
		cache:      c,
		analyzer:   analysis.NewAnalyzer(caller, c, cfg.SendImages),
		aggregator: insight.New(caller),
		pub:        pub,
		coll:       coll,
		results:    make(map[int64]map[int64]models.CardAnalysis),
		runs:       newRegistry(),
	}
}

func (s *Service) collection() *collection.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coll
}

// Decks lists decks with card counts.
func (s *Service) Decks(_ context.Context) []DeckSummary {
	coll := s.collection()
	decks := coll.Decks()
	out := make([]DeckSummary, len(decks))
	for i, d := range decks {
		out[i] = DeckSummary{ID: d.ID, Name: d.Name, Cards: len(coll.CardsInDeck(d.ID))}
	}
	return out
}

// CardSummary is a card with its plain-text question.
type CardSummary struct {
	ID       int64  `json:"id"`
	NoteID   int64  `json:"note_id"`
	Ord      int    `json:"ord"`
	Question string `json:"question"`
}

// DeckCards lists the cards of a deck in collection order.
func (s *Service) DeckCards(_ context.Context, deckID int64) ([]CardSummary, error) {
	coll := s.collection()
	if _, err := coll.Deck(deckID); err != nil {
		return nil, err
	}
	cards := coll.CardsInDeck(deckID)
	out := make([]CardSummary, 0, len(cards))
	for _, card := range cards {
		in, err := cardInput(coll, card.ID)
		if err != nil {
			return nil, err
		}
		front, _ := render.Text(in.Card, in.Note, in.Model, false)
		out = append(out, CardSummary{ID: card.ID, NoteID: card.NoteID, Ord: card.Ord, Question: front})
	}
	return out, nil
}

// ResolveDeck finds a deck by name.
func (s *Service) ResolveDeck(name string) (*models.Deck, error) {
	return s.collection().DeckByName(name)
}

// RenderCard renders a card with media resolved.
func (s *Service) RenderCard(_ context.Context, cardID int64) (models.RenderedCard, error) {
	return s.collection().Render(cardID)
}

// AnalyzeCard analyzes one card and records the result for its deck.
func (s *Service) AnalyzeCard(ctx context.Context, cardID int64) (CardReview, error) {
	coll := s.collection()
	in, err := cardInput(coll, cardID)
	if err != nil {
		return CardReview{}, err
	}
	res, err := s.analyzer.Analyze(ctx, in)
	if err != nil {
		return CardReview{}, err
	}
	s.record(in.Card.DeckID, []models.CardAnalysis{res})

	rc, err := coll.Render(cardID)
	if err != nil {
		return CardReview{}, err
	}
	views := []models.CardView{models.RenderedView(rc)}
	if res.Result != nil {
		for _, sc := range res.Result.SuggestedCards {
			views = append(views, models.SuggestedView(sc))
		}
	}
	return CardReview{Analysis: res, Views: views}, nil
}

// AnalyzeDeck runs a deck analysis on the caller's goroutine. Cancelling
// ctx stops the run at the next boundary.
func (s *Service) AnalyzeDeck(ctx context.Context, deckID int64, progress analysis.ProgressFunc) (analysis.RunResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	run, req, err := s.prepareRun(ctx, deckID, cancel)
	if err != nil {
		return analysis.RunResult{}, err
	}
	return s.execute(ctx, run, req, progress)
}

// StartDeckAnalysis starts a background deck run and returns its snapshot.
// Only one run per deck may be active.
func (s *Service) StartDeckAnalysis(_ context.Context, deckID int64) (RunSnapshot, error) {
	ctx, cancel := context.WithCancel(context.Background())
	run, req, err := s.prepareRun(ctx, deckID, cancel)
	if err != nil {
		cancel()
		return RunSnapshot{}, err
	}
	go func() {
		defer cancel()
		_, _ = s.execute(ctx, run, req, nil)
	}()
	return run.snapshot(), nil
}

// Run returns a run snapshot.
func (s *Service) Run(_ context.Context, id string) (RunSnapshot, error) {
	run, err := s.runs.get(id)
	if err != nil {
		return RunSnapshot{}, err
	}
	return run.snapshot(), nil
}

// CancelRun requests cancellation; the run stops at its next card or batch
// boundary.
func (s *Service) CancelRun(_ context.Context, id string) (RunSnapshot, error) {
	run, err := s.runs.get(id)
	if err != nil {
		return RunSnapshot{}, err
	}
	if err := run.requestCancel(); err != nil {
		return RunSnapshot{}, err
	}
	return run.snapshot(), nil
}

// prepareRun seeds Existing with this process's results and, for cards it
// has not analyzed yet, with hits from the persistent cache.
func (s *Service) prepareRun(ctx context.Context, deckID int64, cancel context.CancelFunc) (*Run, analysis.RunRequest, error) {
	coll := s.collection()
	deck, err := coll.Deck(deckID)
	if err != nil {
		return nil, analysis.RunRequest{}, err
	}
	existing := s.existing(deckID)
	var inputs []analysis.CardInput
	for _, card := range coll.CardsInDeck(deckID) {
		in, err := cardInput(coll, card.ID)
		if err != nil {
			return nil, analysis.RunRequest{}, err
		}
		inputs = append(inputs, in)
		if prev, ok := existing[card.ID]; ok && prev.OK() {
			continue
		}
		if hit, ok := s.cached(ctx, deck.Name, in); ok {
			existing[card.ID] = hit
		}
	}
	run, err := s.runs.start(deck, cancel)
	if err != nil {
		return nil, analysis.RunRequest{}, err
	}
	return run, analysis.RunRequest{Cards: inputs, Existing: existing}, nil
}

func (s *Service) execute(ctx context.Context, run *Run, req analysis.RunRequest, progress analysis.ProgressFunc) (analysis.RunResult, error) {
	logger := slog.With(slog.String("run_id", run.ID), slog.String("deck", run.DeckName))
	logger.Info("deck analysis started", slog.Int("cards", len(req.Cards)))
	s.publish(sse.EventRunStarted, run, nil)

	orch := analysis.NewOrchestrator(s.analyzer, s.cfg.Analysis)
	res, err := orch.Run(ctx, req, func(p analysis.Progress) {
		run.progress(p)
		s.publish(sse.EventRunProgress, run, &p)
		if progress != nil {
			progress(p)
		}
	})

	s.record(run.DeckID, res.Results)
	run.finish(res)
	s.runs.release(run)
	s.publish(sse.EventRunFinished, run, nil)

	if err != nil {
		logger.Warn("deck analysis failed", slog.String("error", err.Error()), slog.Int("results", len(res.Results)))
	} else {
		logger.Info("deck analysis finished", slog.String("status", string(res.Status)), slog.Int("results", len(res.Results)))
	}
	return res, err
}

// DeckInsight aggregates the deck's analyses, from this process or the
// cache, into a coverage report.
func (s *Service) DeckInsight(ctx context.Context, deckID int64) (models.DeckAnalysisResult, error) {
	coll := s.collection()
	deck, err := coll.Deck(deckID)
	if err != nil {
		return models.DeckAnalysisResult{}, err
	}
	known := s.existing(deckID)
	cards := coll.CardsInDeck(deckID)

	var results []models.CardAnalysis
	samples := make([]insight.Sample, 0, len(cards))
	for _, card := range cards {
		in, err := cardInput(coll, card.ID)
		if err != nil {
			return models.DeckAnalysisResult{}, err
		}
		front, back := render.Text(in.Card, in.Note, in.Model, s.cfg.SendImages)
		samples = append(samples, insight.Sample{Front: front, Back: back})

		if prev, ok := known[card.ID]; ok && prev.OK() {
			results = append(results, prev)
			continue
		}
		if hit, ok := s.cached(ctx, deck.Name, in); ok {
			results = append(results, hit)
		}
	}

	return s.aggregator.Aggregate(ctx, insight.Request{
		DeckID:     deck.ID,
		DeckName:   deck.Name,
		TotalCards: len(cards),
		Results:    results,
		Samples:    samples,
	})
}

// CacheStats reports cache sizes.
func (s *Service) CacheStats(ctx context.Context) (cache.Stats, error) {
	if s.cache == nil {
		return cache.Stats{}, nil
	}
	return s.cache.Stats(ctx)
}

// ClearCache drops persisted and in-memory results.
func (s *Service) ClearCache(ctx context.Context) error {
	s.mu.Lock()
	s.results = make(map[int64]map[int64]models.CardAnalysis)
	s.mu.Unlock()
	if s.cache == nil {
		return nil
	}
	return s.cache.Clear(ctx)
}

// Reload re-reads the collection file. On failure the previous snapshot is kept.
func (s *Service) Reload(_ context.Context) error {
	coll, err := collection.Load(s.cfg.CollectionPath, s.cfg.MediaDir)
	if err != nil {
		return fmt.Errorf("deckservice: reload: %w", err)
	}
	s.mu.Lock()
	s.coll = coll
	s.mu.Unlock()

	cards := 0
	for _, d := range coll.Decks() {
		cards += len(coll.CardsInDeck(d.ID))
	}
	slog.Info("collection reloaded", slog.String("path", coll.Path()), slog.Int("cards", cards))
	if s.pub != nil {
		s.pub.PublishReload(coll.Path(), cards)
	}
	return nil
}

func (s *Service) existing(deckID int64) map[int64]models.CardAnalysis {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]models.CardAnalysis, len(s.results[deckID]))
	for id, r := range s.results[deckID] {
		out[id] = r
	}
	return out
}

// cached returns the persisted analysis of a card whose content is unchanged.
func (s *Service) cached(ctx context.Context, deckName string, in analysis.CardInput) (models.CardAnalysis, bool) {
	if s.cache == nil {
		return models.CardAnalysis{}, false
	}
	lookup := in.CacheLookup()
	hit, _, ok, err := s.cache.Get(ctx, lookup)
	if err != nil {
		slog.Warn("cache lookup failed", slog.Int64("card_id", in.Card.ID), slog.String("error", err.Error()))
		return models.CardAnalysis{}, false
	}
	if !ok {
		return models.CardAnalysis{}, false
	}
	return models.CardAnalysis{CardID: in.Card.ID, DeckName: deckName, Result: hit, Fields: lookup.Fields, FromCache: true}, true
}

func (s *Service) record(deckID int64, results []models.CardAnalysis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.results[deckID]
	if m == nil {
		m = make(map[int64]models.CardAnalysis)
		s.results[deckID] = m
	}
	for _, r := range results {
		m[r.CardID] = r
	}
}

func cardInput(coll *collection.Collection, cardID int64) (analysis.CardInput, error) {
	cc, err := coll.Context(cardID)
	if err != nil {
		return analysis.CardInput{}, err
	}
	return analysis.CardInput{Card: cc.Card, Note: cc.Note, Model: cc.Model, Deck: cc.Deck, File: coll.File()}, nil
}

// MediaFile returns a media file by the name a card references, using the
// same fuzzy lookup as rendering.
func (s *Service) MediaFile(name string) (string, []byte, error) {
	store := s.collection().Media()
	key, ok := media.Lookup(name, store)
	if !ok {
		return "", nil, fmt.Errorf("deckservice: media %q: %w", name, apperr.ErrNotFound)
	}
	return key, store[key], nil
}
