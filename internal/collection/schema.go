package collection

import (
	"fmt"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
)

// Kind identifies the note-type schema generation of a collection.
type Kind int

const (
	// SchemaLegacy stores note-type definitions as a JSON blob in the
	// col table's models column.
	SchemaLegacy Kind = iota
	// SchemaModern stores note types, fields, and templates in
	// dedicated tables with one row per field/template.
	SchemaModern
)

func (k Kind) String() string {
	if k == SchemaModern {
		return "modern"
	}
	return "legacy"
}

// NoteTypeSource yields the same NoteType shape regardless of which
// schema generation the collection uses.
type NoteTypeSource interface {
	NoteTypes() (map[int64]models.NoteType, error)
}

// Detect inspects the database for the modern note-type tables. Their
// presence means modern schema; otherwise a col table means legacy.
func Detect(db *DB) (Kind, error) {
	tables, err := db.tables()
	if err != nil {
		return SchemaLegacy, err
	}
	if _, ok := tables["notetypes"]; ok {
		return SchemaModern, nil
	}
	if _, ok := tables["col"]; ok {
		return SchemaLegacy, nil
	}
	return SchemaLegacy, fmt.Errorf("%w: neither notetypes nor col table present", apperr.ErrSchemaUnrecognized)
}

// SourceFor detects the schema generation and returns the matching
// note-type source.
func SourceFor(db *DB) (NoteTypeSource, Kind, error) {
	kind, err := Detect(db)
	if err != nil {
		return nil, kind, err
	}
	if kind == SchemaModern {
		return &modernSource{db: db}, kind, nil
	}
	return &legacySource{db: db}, kind, nil
}
