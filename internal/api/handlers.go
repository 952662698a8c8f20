package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/deckservice"
	"github.com/starford/raido/internal/render"
	"github.com/starford/raido/internal/settings"
)

const maxUploadBytes = 50 << 20 // 50 MB

// Handler holds API route handlers.
type Handler struct {
	svc   *deckservice.Service
	store *settings.Store
}

// NewHandler creates a new Handler.
func NewHandler(svc *deckservice.Service, store *settings.Store) *Handler {
	return &Handler{svc: svc, store: store}
}

// respondError maps engine error kinds to HTTP statuses and short
// messages. Cancelled is a deliberate no-op: acknowledged, never logged
// or displayed as a failure.
func respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrCancelled):
		writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrUnknownModel):
		writeJSON(w, http.StatusNotFound, errorBody(apperr.Message(err)))
	case errors.Is(err, apperr.ErrInvalidField):
		writeJSON(w, http.StatusBadRequest, errorBody(apperr.Message(err)))
	case errors.Is(err, apperr.ErrSessionClosed):
		writeJSON(w, http.StatusConflict, errorBody(apperr.Message(err)))
	case errors.Is(err, apperr.ErrArchiveCorrupt),
		errors.Is(err, apperr.ErrUnsupportedFormat),
		errors.Is(err, apperr.ErrSchemaUnrecognized):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(apperr.Message(err)))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody(apperr.Message(err)))
	}
}

// noteID extracts the {id} route parameter.
func noteID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// LoadDeck handles POST /api/deck.
func (h *Handler) LoadDeck(w http.ResponseWriter, r *http.Request) {
	var req LoadDeckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	snap, err := h.svc.LoadArchive(r.Context(), req.Path)
	if err != nil {
		respondError(w, "load deck", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetDeck handles GET /api/deck.
func (h *Handler) GetDeck(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(r.Context())
	if err != nil {
		respondError(w, "get deck", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// CloseDeck handles DELETE /api/deck.
func (h *Handler) CloseDeck(w http.ResponseWriter, r *http.Request) {
	h.svc.CloseSession(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// UpdateField handles PUT /api/notes/{id}/fields/{name}.
func (h *Handler) UpdateField(w http.ResponseWriter, r *http.Request) {
	id, err := noteID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id"))
		return
	}
	field := chi.URLParam(r, "name")

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	var req UpdateFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	if err := h.svc.UpdateField(r.Context(), id, field, req.HTML); err != nil {
		respondError(w, "update field", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateCard handles POST /api/cards.
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	var req CreateCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	card, err := h.svc.CreateCard(r.Context(), req.ModelID, req.Position)
	if err != nil {
		respondError(w, "create card", err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

// DeleteCard handles DELETE /api/notes/{id}.
func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	id, err := noteID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id"))
		return
	}
	if err := h.svc.DeleteCard(r.Context(), id); err != nil {
		respondError(w, "delete card", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Export handles POST /api/deck/export.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Cancelled {
		respondError(w, "export", apperr.ErrCancelled)
		return
	}
	path, err := h.svc.Export(r.Context(), req.Mode, req.Path)
	if err != nil {
		respondError(w, "export", err)
		return
	}
	writeJSON(w, http.StatusOK, ExportResponse{Path: path})
}

// AddImage handles POST /api/notes/{id}/fields/{name}/images
// (multipart/form-data, field "file").
func (h *Handler) AddImage(w http.ResponseWriter, r *http.Request) {
	id, err := noteID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id"))
		return
	}
	field := chi.URLParam(r, "name")

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}

	uri, err := h.svc.AddImage(r.Context(), id, field, data, filepath.Ext(header.Filename))
	if err != nil {
		respondError(w, "add image", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"data_uri": uri})
}

// RemoveImage handles DELETE /api/notes/{id}/fields/{name}/images/{index}.
func (h *Handler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	id, err := noteID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id"))
		return
	}
	field := chi.URLParam(r, "name")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid image index"))
		return
	}

	if err := h.svc.RemoveImage(r.Context(), id, field, index); err != nil {
		respondError(w, "remove image", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Preview handles POST /api/render.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	html, err := render.Preview(req.HTML)
	if err != nil {
		respondError(w, "render preview", err)
		return
	}
	writeJSON(w, http.StatusOK, PreviewResponse{HTML: html})
}

// GetSettings handles GET /api/settings.
func (h *Handler) GetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Load())
}

// UpdateSettings handles PUT /api/settings.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settings.Settings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.SaveMode != settings.SaveModeCopy && req.SaveMode != settings.SaveModeOverwrite {
		writeJSON(w, http.StatusBadRequest, errorBody("save_mode must be copy or overwrite"))
		return
	}
	current := h.store.Load()
	current.SaveMode = req.SaveMode
	if err := h.store.Save(current); err != nil {
		respondError(w, "update settings", err)
		return
	}
	writeJSON(w, http.StatusOK, current)
}
