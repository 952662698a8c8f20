// Package models defines the domain types for Raido.
package models

// Template is one renderable card layout of a note type: a question
// format string and an answer format string.
type Template struct {
	Name string `json:"name"`
	Qfmt string `json:"qfmt"`
	Afmt string `json:"afmt"`
	Ord  int    `json:"ord"`
}

// NoteType (Anki calls it a model) is the schema shared by many notes:
// an ordered list of field names, an ordered list of card templates, and
// a shared style sheet. Field order is the only identity a field value
// has in the stored row; names are unique within a note type.
type NoteType struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Fields    []string   `json:"fields"`
	Templates []Template `json:"templates"`
	CSS       string     `json:"css"`
}

// FieldIndex returns the ordinal of the named field, or -1 if the note
// type does not declare it.
func (nt NoteType) FieldIndex(name string) int {
	for i, f := range nt.Fields {
		if f == name {
			return i
		}
	}
	return -1
}

// Note is one piece of content with named fields, independent of how many
// cards render it. Field values are HTML strings; plain tag-free text is a
// render-time markdown concern, never a stored distinction.
type Note struct {
	ID      int64             `json:"id"`
	GUID    string            `json:"guid"`
	ModelID int64             `json:"model_id"`
	Fields  map[string]string `json:"fields"`
	Mod     int64             `json:"mod"`
}

// Card is one renderable instance of a note under one template ordinal.
type Card struct {
	ID     int64 `json:"id"`
	NoteID int64 `json:"note_id"`
	DeckID int64 `json:"deck_id"`
	Ord    int   `json:"ord"`
	Due    int   `json:"due"`
}

// CardView is the note-with-card record surfaced to callers: the note's
// fields with media already inlined, plus the single card's template
// ordinal. The engine treats a note and its card as one flashcard.
type CardView struct {
	NoteID    int64             `json:"note_id"`
	ModelID   int64             `json:"model_id"`
	Model     string            `json:"model"`
	Fields    map[string]string `json:"fields"`
	CreatedTS int64             `json:"created_ts"`
	ModTS     int64             `json:"mod_ts"`
	CardOrd   int               `json:"card_ord"`
}
