// Package deck implements the archive session: one open deck archive's
// working copy, its in-memory note/card/model graph, and the mutation
// operations against both.
package deck

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/archive"
	"github.com/starford/raido/internal/collection"
	"github.com/starford/raido/internal/media"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/storage"
)

// fieldSep joins field values inside a note row.
const fieldSep = "\x1f"

// defaultDeckID is the deck every Anki collection is born with; new
// cards fall back to it when the archive has no cards to copy a deck
// id from.
const defaultDeckID = 1

// ExportMode selects the save policy for Export.
type ExportMode int

const (
	// ModeCopy writes a new archive at the given path, leaving the
	// original untouched.
	ModeCopy ExportMode = iota
	// ModeOverwrite atomically replaces the archive the session was
	// opened from.
	ModeOverwrite
)

// Session owns one open archive: the extracted working copy, the open
// database handle, the detected schema generation, the media manifest,
// and the in-memory graph callers see. Mutations are serialized by an
// internal lock and each performs its database write before returning.
type Session struct {
	mu sync.Mutex

	path      string
	wc        *archive.WorkingCopy
	work      *storage.WorkDir
	db        *collection.DB
	schema    collection.Kind
	resolver  *media.Resolver
	noteTypes map[int64]models.NoteType
	notes     map[int64]*models.Note
	cards     map[int64][]models.Card
	order     []int64
	alloc     *allocator
	logger    *slog.Logger
	closed    bool
}

// Open extracts the archive at path, detects its schema generation, and
// loads the full note/card/model graph with media inlined. On any
// failure after extraction the working copy is cleaned up and no session
// is left active.
func Open(path string, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}

	wc, err := archive.Open(path)
	if err != nil {
		return nil, err
	}

	s := &Session{
		path:   path,
		wc:     wc,
		logger: logger,
		alloc:  newAllocator(),
	}
	success := false
	defer func() {
		if !success {
			_ = s.releaseLocked()
		}
	}()

	if s.work, err = storage.NewWorkDir(wc.Dir); err != nil {
		return nil, err
	}

	rawManifest, err := wc.ManifestBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrArchiveCorrupt, err)
	}
	manifest, err := media.ParseManifest(rawManifest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrArchiveCorrupt, err)
	}
	s.resolver = media.NewResolver(s.work, manifest, logger)

	if s.db, err = collection.Open(wc.DBPath()); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrArchiveCorrupt, err)
	}

	src, kind, err := collection.SourceFor(s.db)
	if err != nil {
		return nil, err
	}
	s.schema = kind

	if s.noteTypes, err = src.NoteTypes(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrSchemaUnrecognized, err)
	}

	if err := s.loadGraph(); err != nil {
		return nil, err
	}

	logger.Info("deck loaded",
		slog.String("path", path),
		slog.String("schema", kind.String()),
		slog.Int("notes", len(s.notes)),
		slog.Int("note_types", len(s.noteTypes)))

	success = true
	return s, nil
}

// loadGraph reads every note and card row, inlines media into field
// values, derives the presentation order from card due positions, and
// normalizes due values to a dense sequence.
func (s *Session) loadGraph() error {
	noteRows, err := s.db.Notes()
	if err != nil {
		return err
	}
	cardRows, err := s.db.Cards()
	if err != nil {
		return err
	}

	s.notes = make(map[int64]*models.Note, len(noteRows))
	s.cards = make(map[int64][]models.Card)

	for _, row := range noteRows {
		s.alloc.reserve(row.ID)
		nt, ok := s.noteTypes[row.ModelID]
		if !ok {
			s.logger.Warn("note references unknown note type; skipped",
				slog.Int64("note_id", row.ID), slog.Int64("model_id", row.ModelID))
			continue
		}

		values := strings.Split(row.Flds, fieldSep)
		fields := make(map[string]string, len(nt.Fields))
		for i, name := range nt.Fields {
			val := ""
			if i < len(values) {
				val = values[i]
			}
			fields[name] = s.resolver.Inline(val)
		}

		s.notes[row.ID] = &models.Note{
			ID:      row.ID,
			GUID:    row.GUID,
			ModelID: row.ModelID,
			Fields:  fields,
			Mod:     row.Mod,
		}
	}

	// Card rows arrive in due order; the first card of each note fixes
	// the note's presentation position.
	seen := make(map[int64]struct{}, len(s.notes))
	for _, row := range cardRows {
		s.alloc.reserve(row.ID)
		if _, ok := s.notes[row.NoteID]; !ok {
			continue
		}
		s.cards[row.NoteID] = append(s.cards[row.NoteID], models.Card{
			ID: row.ID, NoteID: row.NoteID, DeckID: row.DeckID, Ord: row.Ord, Due: row.Due,
		})
		if _, dup := seen[row.NoteID]; !dup {
			seen[row.NoteID] = struct{}{}
			s.order = append(s.order, row.NoteID)
		}
	}

	// Notes without any card still surface, after the ordered ones.
	var orphans []int64
	for id := range s.notes {
		if _, ok := seen[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i] < orphans[j] })
	s.order = append(s.order, orphans...)

	return s.renumberDue()
}

// renumberDue rewrites card due values as the dense sequence 0..n-1
// following the current presentation order.
func (s *Session) renumberDue() error {
	for i, noteID := range s.order {
		if err := s.db.SetCardDue(noteID, i); err != nil {
			return err
		}
		for j := range s.cards[noteID] {
			s.cards[noteID][j].Due = i
		}
	}
	return nil
}

// Path returns the archive path the session was opened from.
func (s *Session) Path() string { return s.path }

// Schema returns the schema generation the archive was opened with.
func (s *Session) Schema() collection.Kind { return s.schema }

// Cards returns the caller-facing flashcard list in presentation order,
// media already inlined. The returned views are copies.
func (s *Session) Cards() []models.CardView {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.CardView, 0, len(s.order))
	for _, noteID := range s.order {
		note, ok := s.notes[noteID]
		if !ok {
			continue
		}
		out = append(out, s.viewLocked(note))
	}
	return out
}

// NoteTypes returns the note types of the open archive.
func (s *Session) NoteTypes() map[int64]models.NoteType {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[int64]models.NoteType, len(s.noteTypes))
	for id, nt := range s.noteTypes {
		out[id] = nt
	}
	return out
}

func (s *Session) viewLocked(note *models.Note) models.CardView {
	fields := make(map[string]string, len(note.Fields))
	for k, v := range note.Fields {
		fields[k] = v
	}
	ord := 0
	if cs := s.cards[note.ID]; len(cs) > 0 {
		ord = cs[0].Ord
	}
	return models.CardView{
		NoteID:    note.ID,
		ModelID:   note.ModelID,
		Model:     s.noteTypes[note.ModelID].Name,
		Fields:    fields,
		CreatedTS: note.ID / 1000,
		ModTS:     note.Mod,
		CardOrd:   ord,
	}
}

// UpdateField replaces one field's value. The new value is written to
// the database row (media de-inlined back to filename references) and to
// the in-memory note in the same call, so the two never diverge.
func (s *Session) UpdateField(noteID int64, field, html string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperr.ErrSessionClosed
	}

	note, ok := s.notes[noteID]
	if !ok {
		return fmt.Errorf("%w: note %d", apperr.ErrNotFound, noteID)
	}
	nt := s.noteTypes[note.ModelID]
	if nt.FieldIndex(field) < 0 {
		return fmt.Errorf("%w: %q on note type %q", apperr.ErrInvalidField, field, nt.Name)
	}

	return s.writeFieldLocked(note, nt, field, html)
}

// writeFieldLocked persists a single-field change: database row first,
// then the in-memory note.
func (s *Session) writeFieldLocked(note *models.Note, nt models.NoteType, field, html string) error {
	values := make([]string, len(nt.Fields))
	for i, name := range nt.Fields {
		val := note.Fields[name]
		if name == field {
			val = html
		}
		raw, err := s.resolver.Deinline(val)
		if err != nil {
			return err
		}
		values[i] = raw
	}

	now := time.Now().Unix()
	if err := s.db.UpdateNoteFields(note.ID, strings.Join(values, fieldSep), now); err != nil {
		return err
	}

	note.Fields[field] = html
	note.Mod = now
	return nil
}

// CreateCard creates a note with every field empty and one card on the
// note type's first template, appended in the database and placed at the
// requested presentation position for callers.
func (s *Session) CreateCard(modelID int64, position int) (models.CardView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.CardView{}, apperr.ErrSessionClosed
	}

	nt, ok := s.noteTypes[modelID]
	if !ok {
		return models.CardView{}, fmt.Errorf("%w: model %d", apperr.ErrUnknownModel, modelID)
	}

	noteID := s.alloc.next()
	cardID := s.alloc.next()
	now := time.Now().Unix()

	deckID, found, err := s.db.AnyDeckID()
	if err != nil {
		return models.CardView{}, err
	}
	if !found {
		deckID = defaultDeckID
	}
	maxDue, err := s.db.MaxDue()
	if err != nil {
		return models.CardView{}, err
	}

	emptyRaw := strings.Join(make([]string, len(nt.Fields)), fieldSep)
	note := collection.NoteRow{
		ID:      noteID,
		GUID:    uuid.NewString()[:10],
		ModelID: modelID,
		Mod:     now,
		Flds:    emptyRaw,
	}
	card := collection.CardRow{
		ID:     cardID,
		NoteID: noteID,
		DeckID: deckID,
		Ord:    0,
		Due:    maxDue + 1,
	}
	if err := s.db.InsertNoteWithCard(note, card); err != nil {
		return models.CardView{}, err
	}

	fields := make(map[string]string, len(nt.Fields))
	for _, name := range nt.Fields {
		fields[name] = ""
	}
	s.notes[noteID] = &models.Note{
		ID: noteID, GUID: note.GUID, ModelID: modelID, Fields: fields, Mod: now,
	}
	s.cards[noteID] = []models.Card{{
		ID: cardID, NoteID: noteID, DeckID: deckID, Ord: 0, Due: maxDue + 1,
	}}

	if position < 0 || position > len(s.order) {
		position = len(s.order)
	}
	s.order = append(s.order, 0)
	copy(s.order[position+1:], s.order[position:])
	s.order[position] = noteID

	return s.viewLocked(s.notes[noteID]), nil
}

// DeleteCard removes the note and every card referencing it, from the
// database and the in-memory graph atomically with respect to both.
func (s *Session) DeleteCard(noteID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperr.ErrSessionClosed
	}

	if _, ok := s.notes[noteID]; !ok {
		return fmt.Errorf("%w: note %d", apperr.ErrNotFound, noteID)
	}
	if err := s.db.DeleteNoteCascade(noteID); err != nil {
		return err
	}

	delete(s.notes, noteID)
	delete(s.cards, noteID)
	for i, id := range s.order {
		if id == noteID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// AddImage stores image bytes as a new media entry and appends an <img>
// tag to the named field, persisting immediately. It returns the data
// URI callers display.
func (s *Session) AddImage(noteID int64, field string, data []byte, ext string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", apperr.ErrSessionClosed
	}

	note, ok := s.notes[noteID]
	if !ok {
		return "", fmt.Errorf("%w: note %d", apperr.ErrNotFound, noteID)
	}
	nt := s.noteTypes[note.ModelID]
	if nt.FieldIndex(field) < 0 {
		return "", fmt.Errorf("%w: %q on note type %q", apperr.ErrInvalidField, field, nt.Name)
	}

	_, uri, err := s.resolver.AddImage(data, ext)
	if err != nil {
		return "", err
	}
	html := note.Fields[field] + `<img src="` + uri + `">`
	if err := s.writeFieldLocked(note, nt, field, html); err != nil {
		return "", err
	}
	return uri, nil
}

// RemoveImage deletes the n-th <img> tag from the named field,
// persisting immediately.
func (s *Session) RemoveImage(noteID int64, field string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperr.ErrSessionClosed
	}

	note, ok := s.notes[noteID]
	if !ok {
		return fmt.Errorf("%w: note %d", apperr.ErrNotFound, noteID)
	}
	nt := s.noteTypes[note.ModelID]
	if nt.FieldIndex(field) < 0 {
		return fmt.Errorf("%w: %q on note type %q", apperr.ErrInvalidField, field, nt.Name)
	}

	val := note.Fields[field]
	spans := media.ImageTagSpans(val)
	if index < 0 || index >= len(spans) {
		return fmt.Errorf("%w: image %d in field %q", apperr.ErrNotFound, index, field)
	}
	span := spans[index]
	return s.writeFieldLocked(note, nt, field, val[:span[0]]+val[span[1]:])
}

// Export writes the session's current graph back into a deck archive.
// Media is de-inlined, the database is upgraded to the modern schema,
// and the container is rebuilt through a temporary file, so a failure
// mid-write never corrupts the destination. In overwrite mode the
// destination is the original archive; in copy mode it is destPath.
func (s *Session) Export(mode ExportMode, destPath string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", apperr.ErrSessionClosed
	}

	dest := destPath
	if mode == ModeOverwrite {
		dest = s.path
	}
	if dest == "" {
		return "", fmt.Errorf("%w: no destination path", apperr.ErrExportFailed)
	}

	if err := s.exportLocked(dest); err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrExportFailed, err)
	}

	s.logger.Info("deck exported", slog.String("path", dest))
	return dest, nil
}

func (s *Session) exportLocked(dest string) error {
	// Flush every note with media de-inlined back to filename
	// references; new payloads land in the working copy and manifest.
	for _, note := range s.notes {
		nt := s.noteTypes[note.ModelID]
		values := make([]string, len(nt.Fields))
		for i, name := range nt.Fields {
			raw, err := s.resolver.Deinline(note.Fields[name])
			if err != nil {
				return err
			}
			values[i] = raw
		}
		if err := s.db.UpdateNoteFields(note.ID, strings.Join(values, fieldSep), note.Mod); err != nil {
			return err
		}
	}

	// Due values follow the presentation order, so a card inserted
	// mid-deck keeps its position when the archive is reopened.
	if err := s.renumberDue(); err != nil {
		return err
	}

	if err := collection.EnsureModern(s.db, s.noteTypes); err != nil {
		return err
	}
	s.db.Checkpoint()

	manifest := s.resolver.Manifest()
	encoded, err := manifest.Encode()
	if err != nil {
		return err
	}
	if err := s.work.Write("media", encoded); err != nil {
		return err
	}

	return archive.Pack(s.wc.Dir, s.wc.DBName, manifest.Keys(), dest)
}

// Close releases the database handle and the working copy's temporary
// storage. Safe to call more than once; every later operation fails
// with ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.releaseLocked()
}

func (s *Session) releaseLocked() error {
	var firstErr error
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			firstErr = err
		}
		s.db = nil
	}
	if s.wc != nil {
		if err := s.wc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
