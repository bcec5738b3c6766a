// Package analysis reviews cards with a language model: prompt building,
// response recovery, per-card analysis and deck runs.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/deckdoctor/internal/cache"
	"github.com/starford/deckdoctor/internal/llm"
	"github.com/starford/deckdoctor/internal/models"
	"github.com/starford/deckdoctor/internal/render"
)

// CardInput is everything needed to analyze one card.
type CardInput struct {
	Card  models.Card
	Note  *models.Note
	Model *models.Model
	Deck  *models.Deck
	File  string // collection file, for the legacy cache tier
}

// DeckName returns the card's deck name, or "".
func (in CardInput) DeckName() string {
	if in.Deck == nil {
		return ""
	}
	return in.Deck.Name
}

// CacheLookup identifies the card's content for the result cache.
func (in CardInput) CacheLookup() cache.Lookup {
	return cache.Lookup{Scope: in.DeckName(), File: in.File, CardID: in.Card.ID, Fields: in.Note.NamedFields(in.Model)}
}

// CardAnalyzer analyzes a single card.
type CardAnalyzer interface {
	Analyze(ctx context.Context, in CardInput) (models.CardAnalysis, error)
}

// UnparsedError prefixes CardAnalysis.Error for responses with no
// recoverable JSON.
const UnparsedError = "unparsed response"

// Analyzer is the cache-aware CardAnalyzer backed by a provider.
type Analyzer struct {
	caller     llm.Caller
	cache      *cache.Cache
	sendImages bool
	now        func() time.Time
}

// NewAnalyzer builds an analyzer. c may be nil to disable caching.
func NewAnalyzer(caller llm.Caller, c *cache.Cache, sendImages bool) *Analyzer {
	return &Analyzer{caller: caller, cache: c, sendImages: sendImages, now: time.Now}
}

// Analyze returns a cached result when the card's content is unchanged,
// otherwise asks the provider. Provider failures are returned as errors;
// unparseable output is a soft failure: the placeholder result is kept with
// Error set, and it is not cached.
func (a *Analyzer) Analyze(ctx context.Context, in CardInput) (models.CardAnalysis, error) {
	lookup := in.CacheLookup()
	out := models.CardAnalysis{CardID: in.Card.ID, DeckName: in.DeckName(), Fields: lookup.Fields}

	if a.cache != nil {
		res, tier, ok, err := a.cache.Get(ctx, lookup)
		if err != nil {
			slog.Warn("cache lookup failed", slog.Int64("card_id", in.Card.ID), slog.String("error", err.Error()))
		}
		if ok {
			slog.Debug("cache hit", slog.Int64("card_id", in.Card.ID), slog.String("tier", string(tier)))
			out.Result = res
			out.FromCache = true
			out.AnalyzedAt = a.now().UTC()
			return out, nil
		}
	}

	front, back := render.Text(in.Card, in.Note, in.Model, a.sendImages)
	user := UserPrompt(CardPrompt{
		DeckName:  in.DeckName(),
		ModelName: in.Model.Name,
		Cloze:     in.Model.IsCloze(),
		Front:     front,
		Back:      back,
		Tags:      in.Note.Tags,
	})

	raw, err := a.caller.Call(ctx, SystemPrompt, user)
	if err != nil {
		return out, fmt.Errorf("analysis: card %d: %w", in.Card.ID, err)
	}

	parsed := Parse(raw)
	if !parsed.OK {
		slog.Warn("unparseable analysis response",
			slog.Int64("card_id", in.Card.ID),
			slog.String("diagnostic", parsed.Diagnostic),
		)
		out.Error = UnparsedError + ": " + parsed.Diagnostic
	}
	out.Result = &parsed.Result
	out.AnalyzedAt = a.now().UTC()

	if parsed.OK && a.cache != nil {
		if err := a.cache.Put(ctx, lookup, &parsed.Result); err != nil {
			slog.Warn("cache write failed", slog.Int64("card_id", in.Card.ID), slog.String("error", err.Error()))
		}
	}
	return out, nil
}
