package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/raido/internal/deckservice"
	"github.com/starford/raido/internal/settings"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *deckservice.Service, store *settings.Store, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, store)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Deck lifecycle.
	r.Post("/deck", h.LoadDeck)
	r.Get("/deck", h.GetDeck)
	r.Delete("/deck", h.CloseDeck)
	r.Post("/deck/export", h.Export)

	// Note and card mutations.
	r.Put("/notes/{id}/fields/{name}", h.UpdateField)
	r.Post("/notes/{id}/fields/{name}/images", h.AddImage)
	r.Delete("/notes/{id}/fields/{name}/images/{index}", h.RemoveImage)
	r.Delete("/notes/{id}", h.DeleteCard)
	r.Post("/cards", h.CreateCard)

	// Preview rendering.
	r.Post("/render", h.Preview)

	// Settings.
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
