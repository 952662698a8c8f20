// Package deckservice coordinates the single active deck session with
// the preference store, the event broker, and the archive watcher. The
// embedding surfaces (REST, MCP) route every operation through it.
package deckservice

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/deck"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/settings"
	"github.com/starford/raido/internal/sse"
	"github.com/starford/raido/internal/watch"
)

// Snapshot is the caller-facing view of the open deck.
type Snapshot struct {
	Path      string            `json:"path"`
	Schema    string            `json:"schema"`
	Cards     []models.CardView `json:"cards"`
	NoteTypes []models.NoteType `json:"note_types"`
}

// Service holds at most one active session at a time.
type Service struct {
	mu      sync.Mutex
	baseCtx context.Context
	store   *settings.Store
	broker  *sse.Broker
	logger  *slog.Logger

	sess        *deck.Session
	watchCancel context.CancelFunc
}

// NewService creates the coordinator. baseCtx bounds the lifetime of
// background watchers; broker may be nil when no event surface is wired.
func NewService(baseCtx context.Context, store *settings.Store, broker *sse.Broker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		baseCtx: baseCtx,
		store:   store,
		broker:  broker,
		logger:  logger,
	}
}

func (s *Service) lock()   { s.mu.Lock() }
func (s *Service) unlock() { s.mu.Unlock() }

// LoadArchive opens the archive at path as the active session, closing
// any previous session first. On failure no session is left active.
func (s *Service) LoadArchive(_ context.Context, path string) (*Snapshot, error) {
	s.lock()
	defer s.unlock()

	s.closeLocked()

	sess, err := deck.Open(path, s.logger)
	if err != nil {
		return nil, err
	}
	s.sess = sess

	if s.store != nil {
		if err := s.store.AddRecent(path); err != nil {
			s.logger.Warn("recent list update failed", slog.String("error", err.Error()))
		}
	}

	watchCtx, cancel := context.WithCancel(s.baseCtx)
	s.watchCancel = cancel
	go func() {
		err := watch.Watch(watchCtx, path, s.logger, func() {
			s.publish("archive.changed", map[string]string{"path": path})
		})
		if err != nil {
			s.logger.Warn("watcher unavailable", slog.String("error", err.Error()))
		}
	}()

	s.publish("deck.loaded", map[string]string{"path": path})
	return s.snapshotLocked(), nil
}

// Snapshot returns the current session's cards and note types.
func (s *Service) Snapshot(_ context.Context) (*Snapshot, error) {
	s.lock()
	defer s.unlock()
	if s.sess == nil {
		return nil, apperr.ErrSessionClosed
	}
	return s.snapshotLocked(), nil
}

func (s *Service) snapshotLocked() *Snapshot {
	byID := s.sess.NoteTypes()
	noteTypes := make([]models.NoteType, 0, len(byID))
	for _, nt := range byID {
		noteTypes = append(noteTypes, nt)
	}
	sort.Slice(noteTypes, func(i, j int) bool { return noteTypes[i].ID < noteTypes[j].ID })

	return &Snapshot{
		Path:      s.sess.Path(),
		Schema:    s.sess.Schema().String(),
		Cards:     s.sess.Cards(),
		NoteTypes: noteTypes,
	}
}

// UpdateField updates one field of a note in the active session.
func (s *Service) UpdateField(_ context.Context, noteID int64, field, html string) error {
	s.lock()
	defer s.unlock()
	if s.sess == nil {
		return apperr.ErrSessionClosed
	}
	if err := s.sess.UpdateField(noteID, field, html); err != nil {
		return err
	}
	s.publish("note.updated", map[string]string{"note_id": strconv.FormatInt(noteID, 10)})
	return nil
}

// CreateCard creates an empty flashcard on the given note type, placed
// at the given presentation position.
func (s *Service) CreateCard(_ context.Context, modelID int64, position int) (models.CardView, error) {
	s.lock()
	defer s.unlock()
	if s.sess == nil {
		return models.CardView{}, apperr.ErrSessionClosed
	}
	card, err := s.sess.CreateCard(modelID, position)
	if err != nil {
		return models.CardView{}, err
	}
	s.publish("card.created", map[string]string{"note_id": strconv.FormatInt(card.NoteID, 10)})
	return card, nil
}

// DeleteCard deletes the note and all its cards.
func (s *Service) DeleteCard(_ context.Context, noteID int64) error {
	s.lock()
	defer s.unlock()
	if s.sess == nil {
		return apperr.ErrSessionClosed
	}
	if err := s.sess.DeleteCard(noteID); err != nil {
		return err
	}
	s.publish("card.deleted", map[string]string{"note_id": strconv.FormatInt(noteID, 10)})
	return nil
}

// AddImage appends an image to a note field and returns its data URI.
func (s *Service) AddImage(_ context.Context, noteID int64, field string, data []byte, ext string) (string, error) {
	s.lock()
	defer s.unlock()
	if s.sess == nil {
		return "", apperr.ErrSessionClosed
	}
	uri, err := s.sess.AddImage(noteID, field, data, ext)
	if err != nil {
		return "", err
	}
	s.publish("note.updated", map[string]string{"note_id": strconv.FormatInt(noteID, 10)})
	return uri, nil
}

// RemoveImage removes the n-th image from a note field.
func (s *Service) RemoveImage(_ context.Context, noteID int64, field string, index int) error {
	s.lock()
	defer s.unlock()
	if s.sess == nil {
		return apperr.ErrSessionClosed
	}
	if err := s.sess.RemoveImage(noteID, field, index); err != nil {
		return err
	}
	s.publish("note.updated", map[string]string{"note_id": strconv.FormatInt(noteID, 10)})
	return nil
}

// Export writes the deck back to disk. An empty mode falls back to the
// stored save-mode preference; an empty path in copy mode derives a
// "_modified" sibling of the original archive.
func (s *Service) Export(_ context.Context, mode, path string) (string, error) {
	s.lock()
	defer s.unlock()
	if s.sess == nil {
		return "", apperr.ErrSessionClosed
	}

	if mode == "" && s.store != nil {
		mode = s.store.Load().SaveMode
	}

	var dest string
	var err error
	switch mode {
	case settings.SaveModeOverwrite:
		dest, err = s.sess.Export(deck.ModeOverwrite, "")
	case settings.SaveModeCopy, "":
		if path == "" {
			path = defaultCopyPath(s.sess.Path())
		}
		dest, err = s.sess.Export(deck.ModeCopy, path)
	default:
		return "", fmt.Errorf("%w: unknown save mode %q", apperr.ErrExportFailed, mode)
	}
	if err != nil {
		return "", err
	}

	s.publish("deck.exported", map[string]string{"path": dest})
	return dest, nil
}

// CloseSession ends the active session and releases its working copy.
// Closing when nothing is open is a no-op.
func (s *Service) CloseSession(_ context.Context) {
	s.lock()
	defer s.unlock()
	s.closeLocked()
}

// Close shuts the service down, releasing any active session.
func (s *Service) Close() {
	s.CloseSession(context.Background())
}

func (s *Service) closeLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.sess == nil {
		return
	}
	if err := s.sess.Close(); err != nil {
		s.logger.Warn("session close failed", slog.String("error", err.Error()))
	}
	s.sess = nil
	s.publish("deck.closed", nil)
}

func (s *Service) publish(kind string, data map[string]string) {
	if s.broker != nil {
		s.broker.PublishDeckEvent(kind, data)
	}
}

// defaultCopyPath derives the copy-mode destination the way the UI's
// save dialog pre-fills it: <name>_modified.apkg next to the original.
func defaultCopyPath(original string) string {
	dir := filepath.Dir(original)
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	return filepath.Join(dir, base+"_modified.apkg")
}
