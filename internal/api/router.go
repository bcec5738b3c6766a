package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/deckdoctor/internal/deckservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *deckservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/decks", h.ListDecks)
	r.Get("/decks/{id}/cards", h.ListDeckCards)
	r.Post("/decks/{id}/analyze", h.StartDeckAnalysis)
	r.Post("/decks/{id}/insight", h.DeckInsight)

	r.Get("/cards/{id}/render", h.RenderCard)
	r.Post("/cards/{id}/analyze", h.AnalyzeCard)

	r.Get("/runs/{id}", h.GetRun)
	r.Post("/runs/{id}/cancel", h.CancelRun)

	r.Get("/cache/stats", h.CacheStats)
	r.Delete("/cache", h.ClearCache)

	r.Post("/collection/reload", h.Reload)
	r.Get("/media/{filename}", h.MediaFile)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
