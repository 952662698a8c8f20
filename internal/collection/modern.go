package collection

import (
	"fmt"
	"time"

	"github.com/starford/raido/internal/models"
)

// modernSource reads note-type definitions from the dedicated
// notetypes/fields/templates tables, decoding the protobuf config blobs
// for css and template formats.
type modernSource struct {
	db *DB
}

func (s *modernSource) NoteTypes() (map[int64]models.NoteType, error) {
	tables, err := s.db.tables()
	if err != nil {
		return nil, err
	}
	_, hasTemplates := tables["templates"]

	rows, err := s.db.conn.Query(`SELECT id, name, config FROM notetypes`)
	if err != nil {
		return nil, fmt.Errorf("collection: read notetypes: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]models.NoteType)
	for rows.Next() {
		var (
			id     int64
			name   string
			config []byte
		)
		if err := rows.Scan(&id, &name, &config); err != nil {
			return nil, err
		}
		out[id] = models.NoteType{ID: id, Name: name, CSS: extractCSS(config)}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for id, nt := range out {
		fields, err := s.fieldNames(id)
		if err != nil {
			return nil, err
		}
		nt.Fields = fields

		if hasTemplates {
			templates, err := s.templates(id)
			if err != nil {
				return nil, err
			}
			nt.Templates = templates
		}
		out[id] = nt
	}
	return out, nil
}

func (s *modernSource) fieldNames(ntid int64) ([]string, error) {
	rows, err := s.db.conn.Query(`SELECT name FROM fields WHERE ntid = ? ORDER BY ord`, ntid)
	if err != nil {
		return nil, fmt.Errorf("collection: read fields: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *modernSource) templates(ntid int64) ([]models.Template, error) {
	rows, err := s.db.conn.Query(`SELECT name, config FROM templates WHERE ntid = ? ORDER BY ord`, ntid)
	if err != nil {
		return nil, fmt.Errorf("collection: read templates: %w", err)
	}
	defer rows.Close()

	var out []models.Template
	for rows.Next() {
		var (
			name   string
			config []byte
		)
		if err := rows.Scan(&name, &config); err != nil {
			return nil, err
		}
		qfmt, afmt := extractTemplateFormats(config)
		out = append(out, models.Template{Name: name, Qfmt: qfmt, Afmt: afmt, Ord: len(out)})
	}
	return out, rows.Err()
}

const modernSchemaSQL = `
CREATE TABLE IF NOT EXISTS notetypes (
	id         INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	mtime_secs INTEGER NOT NULL DEFAULT 0,
	usn        INTEGER NOT NULL DEFAULT -1,
	config     BLOB NOT NULL DEFAULT x''
);

CREATE TABLE IF NOT EXISTS fields (
	ntid   INTEGER NOT NULL,
	ord    INTEGER NOT NULL,
	name   TEXT NOT NULL,
	config BLOB NOT NULL DEFAULT x'',
	PRIMARY KEY (ntid, ord)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS templates (
	ntid       INTEGER NOT NULL,
	ord        INTEGER NOT NULL,
	name       TEXT NOT NULL,
	mtime_secs INTEGER NOT NULL DEFAULT 0,
	usn        INTEGER NOT NULL DEFAULT -1,
	config     BLOB NOT NULL DEFAULT x'',
	PRIMARY KEY (ntid, ord)
) WITHOUT ROWID;
`

// EnsureModern upgrades the collection to the modern note-type schema:
// the dedicated tables are created when absent and fully repopulated
// from the given note types, with css and template formats re-encoded
// into their config blobs. Export always runs this, so a saved archive
// carries the modern schema regardless of what it was opened with. The
// upgrade is one-directional; a legacy col.models blob, if present, is
// left alone and simply stops being authoritative.
func EnsureModern(db *DB, noteTypes map[int64]models.NoteType) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("collection: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(modernSchemaSQL); err != nil {
		return fmt.Errorf("collection: apply modern schema: %w", err)
	}

	now := time.Now().Unix()
	for id, nt := range noteTypes {
		_, err := tx.Exec(`INSERT OR REPLACE INTO notetypes (id, name, mtime_secs, usn, config) VALUES (?, ?, ?, -1, ?)`,
			id, nt.Name, now, encodeNotetypeConfig(nt.CSS))
		if err != nil {
			return fmt.Errorf("collection: write notetype %d: %w", id, err)
		}

		if _, err := tx.Exec(`DELETE FROM fields WHERE ntid = ?`, id); err != nil {
			return fmt.Errorf("collection: clear fields: %w", err)
		}
		for ord, name := range nt.Fields {
			if _, err := tx.Exec(`INSERT INTO fields (ntid, ord, name) VALUES (?, ?, ?)`, id, ord, name); err != nil {
				return fmt.Errorf("collection: write field %s: %w", name, err)
			}
		}

		if _, err := tx.Exec(`DELETE FROM templates WHERE ntid = ?`, id); err != nil {
			return fmt.Errorf("collection: clear templates: %w", err)
		}
		for ord, t := range nt.Templates {
			_, err := tx.Exec(`INSERT INTO templates (ntid, ord, name, mtime_secs, usn, config) VALUES (?, ?, ?, ?, -1, ?)`,
				id, ord, t.Name, now, encodeTemplateConfig(t.Qfmt, t.Afmt))
			if err != nil {
				return fmt.Errorf("collection: write template %s: %w", t.Name, err)
			}
		}
	}

	return tx.Commit()
}
