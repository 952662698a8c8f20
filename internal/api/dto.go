package api

import (
	"github.com/starford/raido/internal/deckservice"
	"github.com/starford/raido/internal/models"
)

// LoadDeckRequest is the request body for opening an archive.
type LoadDeckRequest struct {
	Path string `json:"path"`
}

// UpdateFieldRequest is the request body for replacing a field value.
type UpdateFieldRequest struct {
	HTML string `json:"html"`
}

// CreateCardRequest is the request body for creating an empty card.
// Position is the presentation index the new card should occupy.
type CreateCardRequest struct {
	ModelID  int64 `json:"model_id"`
	Position int   `json:"position"`
}

// ExportRequest is the request body for saving the deck. An empty mode
// uses the stored preference; an empty path in copy mode derives a
// "_modified" sibling of the original. Cancelled marks a dismissed save
// dialog: a deliberate no-op, never surfaced as an error.
type ExportRequest struct {
	Mode      string `json:"mode"`
	Path      string `json:"path"`
	Cancelled bool   `json:"cancelled"`
}

// ExportResponse reports where the archive was written.
type ExportResponse struct {
	Path string `json:"path"`
}

// PreviewRequest is the request body for rendering a field value.
type PreviewRequest struct {
	HTML string `json:"html"`
}

// PreviewResponse carries the display HTML for a field value.
type PreviewResponse struct {
	HTML string `json:"html"`
}

// Snapshot is the deck payload returned by load and get (aliased from
// the domain layer).
type Snapshot = deckservice.Snapshot

// CardView is the flashcard record surfaced to callers (aliased from
// the domain layer).
type CardView = models.CardView
