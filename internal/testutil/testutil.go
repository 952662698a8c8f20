// Package testutil provides shared test helpers for building deck archives.
package testutil

import (
	"archive/zip"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/raido/internal/collection"
	"github.com/starford/raido/internal/models"
)

// FieldSep joins field values inside a stored note row.
const FieldSep = "\x1f"

// BasicModelID is the note type id used by the fixture decks.
const BasicModelID int64 = 1700000000001

// PNGPixel is a valid 1x1 transparent PNG.
var PNGPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
	0x89, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9c, 0x62, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00,
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
	0x42, 0x60, 0x82,
}

// BasicNoteType returns the two-field note type the fixture decks use.
func BasicNoteType() models.NoteType {
	return models.NoteType{
		ID:     BasicModelID,
		Name:   "Basic",
		Fields: []string{"Front", "Back"},
		Templates: []models.Template{
			{Name: "Card 1", Qfmt: "{{Front}}", Afmt: "{{FrontSide}}<hr id=answer>{{Back}}", Ord: 0},
		},
		CSS: ".card { font-family: arial; }",
	}
}

// NoteFixture is one note row to seed into a fixture deck.
type NoteFixture struct {
	ID     int64
	GUID   string
	Fields []string
	Due    int
}

// DefaultNotes returns the two notes the fixture decks ship with. The
// first references the bundled image.
func DefaultNotes() []NoteFixture {
	return []NoteFixture{
		{ID: 1700000001000, GUID: "fixGuid001", Fields: []string{`What is shown? <img src="pic.png">`, "A pixel"}, Due: 0},
		{ID: 1700000002000, GUID: "fixGuid002", Fields: []string{"Capital of France", "Paris"}, Due: 1},
	}
}

const coreSchemaSQL = `
CREATE TABLE notes (
	id    INTEGER PRIMARY KEY,
	guid  TEXT NOT NULL,
	mid   INTEGER NOT NULL,
	mod   INTEGER NOT NULL,
	usn   INTEGER NOT NULL,
	tags  TEXT NOT NULL,
	flds  TEXT NOT NULL,
	sfld  INTEGER NOT NULL,
	csum  INTEGER NOT NULL,
	flags INTEGER NOT NULL,
	data  TEXT NOT NULL
);
CREATE TABLE cards (
	id     INTEGER PRIMARY KEY,
	nid    INTEGER NOT NULL,
	did    INTEGER NOT NULL,
	ord    INTEGER NOT NULL,
	mod    INTEGER NOT NULL,
	usn    INTEGER NOT NULL,
	type   INTEGER NOT NULL,
	queue  INTEGER NOT NULL,
	due    INTEGER NOT NULL,
	ivl    INTEGER NOT NULL,
	factor INTEGER NOT NULL,
	reps   INTEGER NOT NULL,
	lapses INTEGER NOT NULL,
	left   INTEGER NOT NULL,
	odue   INTEGER NOT NULL,
	odid   INTEGER NOT NULL,
	flags  INTEGER NOT NULL,
	data   TEXT NOT NULL
);
`

const legacyColSQL = `
CREATE TABLE col (
	id     INTEGER PRIMARY KEY,
	crt    INTEGER NOT NULL,
	mod    INTEGER NOT NULL,
	scm    INTEGER NOT NULL,
	ver    INTEGER NOT NULL,
	dty    INTEGER NOT NULL,
	usn    INTEGER NOT NULL,
	ls     INTEGER NOT NULL,
	conf   TEXT NOT NULL,
	models TEXT NOT NULL,
	decks  TEXT NOT NULL,
	dconf  TEXT NOT NULL,
	tags   TEXT NOT NULL
);
`

// legacyModelsJSON is the col.models blob matching BasicNoteType.
const legacyModelsJSON = `{
	"1700000000001": {
		"id": 1700000000001,
		"name": "Basic",
		"css": ".card { font-family: arial; }",
		"flds": [
			{"name": "Front", "ord": 0},
			{"name": "Back", "ord": 1}
		],
		"tmpls": [
			{"name": "Card 1", "ord": 0, "qfmt": "{{Front}}", "afmt": "{{FrontSide}}<hr id=answer>{{Back}}"}
		]
	}
}`

// BuildLegacyArchive writes a deck archive with an old-generation
// collection (collection.anki2, note types in col.models) and one media
// file, returning its path.
func BuildLegacyArchive(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "collection.anki2")
	buildDB(t, dbPath, false)
	return buildZip(t, dir, "legacy.apkg", "collection.anki2", dbPath, false)
}

// BuildModernArchive writes a deck archive with a new-generation
// collection (collection.anki21, notetypes/fields/templates tables) and
// one media file, returning its path.
func BuildModernArchive(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "collection.anki21")
	buildDB(t, dbPath, true)
	return buildZip(t, dir, "modern.apkg", "collection.anki21", dbPath, false)
}

// BuildCompressedArchive writes a deck archive carrying only the
// zstd-compressed collection (collection.anki21b) plus a compressed
// media manifest, returning its path.
func BuildCompressedArchive(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "collection.anki21")
	buildDB(t, dbPath, true)

	raw, err := os.ReadFile(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	compressed := zstdCompress(t, raw)
	compressedPath := filepath.Join(dir, "collection.anki21b")
	if err := os.WriteFile(compressedPath, compressed, 0o644); err != nil {
		t.Fatal(err)
	}
	return buildZip(t, dir, "compressed.apkg", "collection.anki21b", compressedPath, true)
}

func buildDB(t *testing.T, path string, modern bool) {
	t.Helper()
	raw, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := raw.Exec(coreSchemaSQL); err != nil {
		t.Fatal(err)
	}

	if modern {
		insertNotes(t, raw)
		if err := raw.Close(); err != nil {
			t.Fatal(err)
		}
		db, err := collection.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		nt := BasicNoteType()
		if err := collection.EnsureModern(db, map[int64]models.NoteType{nt.ID: nt}); err != nil {
			t.Fatal(err)
		}
		if err := db.Close(); err != nil {
			t.Fatal(err)
		}
		return
	}

	if _, err := raw.Exec(legacyColSQL); err != nil {
		t.Fatal(err)
	}
	if _, err := raw.Exec(
		`INSERT INTO col (id, crt, mod, scm, ver, dty, usn, ls, conf, models, decks, dconf, tags)
		 VALUES (1, 0, 0, 0, 11, 0, 0, 0, '{}', ?, '{}', '{}', '{}')`,
		legacyModelsJSON,
	); err != nil {
		t.Fatal(err)
	}
	insertNotes(t, raw)
	if err := raw.Close(); err != nil {
		t.Fatal(err)
	}
}

func insertNotes(t *testing.T, db *sql.DB) {
	t.Helper()
	for _, n := range DefaultNotes() {
		flds := n.Fields[0] + FieldSep + n.Fields[1]
		if _, err := db.Exec(
			`INSERT INTO notes (id, guid, mid, mod, usn, tags, flds, sfld, csum, flags, data)
			 VALUES (?, ?, ?, ?, 0, '', ?, '', 0, 0, '')`,
			n.ID, n.GUID, BasicModelID, n.ID/1000, flds,
		); err != nil {
			t.Fatal(err)
		}
		if _, err := db.Exec(
			`INSERT INTO cards (id, nid, did, ord, mod, usn, type, queue, due, ivl, factor, reps, lapses, left, odue, odid, flags, data)
			 VALUES (?, ?, 1, 0, ?, 0, 0, 0, ?, 0, 0, 0, 0, 0, 0, 0, 0, '')`,
			n.ID+1, n.ID, n.ID/1000, n.Due,
		); err != nil {
			t.Fatal(err)
		}
	}
}

func buildZip(t *testing.T, dir, archiveName, dbEntry, dbPath string, compressManifest bool) string {
	t.Helper()
	out := filepath.Join(dir, archiveName)
	f, err := os.Create(out)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)

	dbBytes, err := os.ReadFile(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	addZipEntry(t, zw, dbEntry, dbBytes)

	manifest := []byte(`{"0":"pic.png"}`)
	if compressManifest {
		manifest = zstdCompress(t, manifest)
	}
	addZipEntry(t, zw, "media", manifest)
	addZipEntry(t, zw, "0", PNGPixel)

	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return out
}

func addZipEntry(t *testing.T, zw *zip.Writer, name string, data []byte) {
	t.Helper()
	w, err := zw.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
}

func zstdCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}
