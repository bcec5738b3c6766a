package api

import (
	"github.com/starford/deckdoctor/internal/cache"
	"github.com/starford/deckdoctor/internal/deckservice"
	"github.com/starford/deckdoctor/internal/models"
)

// DeckSummary is a deck in the list response (aliased from the domain layer).
type DeckSummary = deckservice.DeckSummary

// DeckListResponse wraps the deck listing.
type DeckListResponse struct {
	Decks []DeckSummary `json:"decks" validate:"required"`
}

// CardSummary is a card in a deck listing.
type CardSummary = deckservice.CardSummary

// CardListResponse wraps a deck's cards.
type CardListResponse struct {
	Cards []CardSummary `json:"cards" validate:"required"`
	Total int           `json:"total" example:"42" validate:"required"`
}

// RenderedCard is a card with its templates applied and media inlined.
type RenderedCard = models.RenderedCard

// CardReview is a single-card analysis with card views.
type CardReview = deckservice.CardReview

// RunSnapshot is the state of a deck analysis run.
type RunSnapshot = deckservice.RunSnapshot

// DeckAnalysisResult is the deck-level insight report.
type DeckAnalysisResult = models.DeckAnalysisResult

// InsightFailure carries the statistics computed before the coverage
// review failed.
type InsightFailure struct {
	errResponse
	Result DeckAnalysisResult `json:"result"`
}

// CacheStats reports the analysis cache tiers.
type CacheStats = cache.Stats
