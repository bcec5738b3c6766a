package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/deckdoctor/internal/apperr"
	"github.com/starford/deckdoctor/internal/deckservice"
	"github.com/starford/deckdoctor/internal/llm"
	"github.com/starford/deckdoctor/internal/media"
)

// Handler holds HTTP handlers backed by the deck service.
type Handler struct {
	svc *deckservice.Service
}

// NewHandler creates a new API handler.
func NewHandler(svc *deckservice.Service) *Handler {
	return &Handler{svc: svc}
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

// writeError maps domain and provider errors to HTTP responses.
func writeError(w http.ResponseWriter, op string, err error) {
	var pe *llm.Error
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.As(err, &pe):
		status := http.StatusBadGateway
		if pe.Kind == llm.KindRateLimit {
			status = http.StatusTooManyRequests
			if pe.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(pe.RetryAfter))
			}
		}
		slog.Warn(op+" failed", slog.String("kind", string(pe.Kind)), slog.String("error", err.Error()))
		writeJSON(w, status, providerErrorBody(pe))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// ListDecks handles GET /api/decks.
//
//	@Summary		List decks
//	@Tags			decks
//	@Produce		json
//	@Success		200	{object}	DeckListResponse
//	@Security		BearerAuth
//	@Router			/decks [get]
func (h *Handler) ListDecks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, DeckListResponse{Decks: h.svc.Decks(r.Context())})
}

// ListDeckCards handles GET /api/decks/{id}/cards.
//
//	@Summary		List the cards of a deck
//	@Tags			decks
//	@Produce		json
//	@Param			id	path		int	true	"Deck ID"
//	@Success		200	{object}	CardListResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/decks/{id}/cards [get]
func (h *Handler) ListDeckCards(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid deck id"))
		return
	}
	cards, err := h.svc.DeckCards(r.Context(), id)
	if err != nil {
		writeError(w, "list deck cards", err)
		return
	}
	writeJSON(w, http.StatusOK, CardListResponse{Cards: cards, Total: len(cards)})
}

// RenderCard handles GET /api/cards/{id}/render.
//
//	@Summary		Render a card with media inlined
//	@Tags			cards
//	@Produce		json
//	@Param			id	path		int	true	"Card ID"
//	@Success		200	{object}	RenderedCard
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cards/{id}/render [get]
func (h *Handler) RenderCard(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid card id"))
		return
	}
	rc, err := h.svc.RenderCard(r.Context(), id)
	if err != nil {
		writeError(w, "render card", err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

// AnalyzeCard handles POST /api/cards/{id}/analyze.
//
//	@Summary		Analyze a single card
//	@Tags			cards
//	@Produce		json
//	@Param			id	path		int	true	"Card ID"
//	@Success		200	{object}	CardReview
//	@Failure		404	{object}	errResponse
//	@Failure		429	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cards/{id}/analyze [post]
func (h *Handler) AnalyzeCard(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid card id"))
		return
	}
	review, err := h.svc.AnalyzeCard(r.Context(), id)
	if err != nil {
		writeError(w, "analyze card", err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

// StartDeckAnalysis handles POST /api/decks/{id}/analyze.
//
//	@Summary		Start a background deck analysis
//	@Tags			decks
//	@Produce		json
//	@Param			id	path		int	true	"Deck ID"
//	@Success		202	{object}	RunSnapshot
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/decks/{id}/analyze [post]
func (h *Handler) StartDeckAnalysis(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid deck id"))
		return
	}
	snap, err := h.svc.StartDeckAnalysis(r.Context(), id)
	if err != nil {
		writeError(w, "start deck analysis", err)
		return
	}
	w.Header().Set("Location", "/api/runs/"+snap.ID)
	writeJSON(w, http.StatusAccepted, snap)
}

// GetRun handles GET /api/runs/{id}.
//
//	@Summary		Get a deck analysis run
//	@Tags			runs
//	@Produce		json
//	@Param			id	path		string	true	"Run ID"
//	@Success		200	{object}	RunSnapshot
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/runs/{id} [get]
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Run(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get run", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// CancelRun handles POST /api/runs/{id}/cancel.
//
//	@Summary		Request cancellation of a run
//	@Description	The run stops at its next card or batch boundary.
//	@Tags			runs
//	@Produce		json
//	@Param			id	path		string	true	"Run ID"
//	@Success		202	{object}	RunSnapshot
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/runs/{id}/cancel [post]
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.CancelRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "cancel run", err)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

// DeckInsight handles POST /api/decks/{id}/insight.
//
//	@Summary		Aggregate deck analyses into a coverage report
//	@Tags			decks
//	@Produce		json
//	@Param			id	path		int	true	"Deck ID"
//	@Success		200	{object}	DeckAnalysisResult
//	@Failure		404	{object}	errResponse
//	@Failure		502	{object}	InsightFailure
//	@Security		BearerAuth
//	@Router			/decks/{id}/insight [post]
func (h *Handler) DeckInsight(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid deck id"))
		return
	}
	res, err := h.svc.DeckInsight(r.Context(), id)
	if err != nil {
		var pe *llm.Error
		if errors.As(err, &pe) {
			slog.Warn("coverage review failed", slog.Int64("deck", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusBadGateway, InsightFailure{errResponse: providerErrorBody(pe), Result: res})
			return
		}
		writeError(w, "deck insight", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CacheStats handles GET /api/cache/stats.
//
//	@Summary		Report analysis cache sizes
//	@Tags			cache
//	@Produce		json
//	@Success		200	{object}	CacheStats
//	@Security		BearerAuth
//	@Router			/cache/stats [get]
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.CacheStats(r.Context())
	if err != nil {
		writeError(w, "cache stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ClearCache handles DELETE /api/cache.
//
//	@Summary		Clear the analysis cache
//	@Tags			cache
//	@Success		204	"Cache cleared"
//	@Security		BearerAuth
//	@Router			/cache [delete]
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearCache(r.Context()); err != nil {
		writeError(w, "clear cache", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reload handles POST /api/collection/reload.
//
//	@Summary		Re-read the collection file
//	@Tags			collection
//	@Success		204	"Collection reloaded"
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collection/reload [post]
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Reload(r.Context()); err != nil {
		writeError(w, "reload collection", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MediaFile handles GET /api/media/{filename}.
//
//	@Summary		Serve a media file referenced by a card
//	@Tags			collection
//	@Param			filename	path	string	true	"Media file name"
//	@Success		200			"File content"
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/media/{filename} [get]
func (h *Handler) MediaFile(w http.ResponseWriter, r *http.Request) {
	name, data, err := h.svc.MediaFile(chi.URLParam(r, "filename"))
	if err != nil {
		writeError(w, "media file", err)
		return
	}
	w.Header().Set("Content-Type", media.MIMEType(name, data))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
