// Package collection provides access to the deck's embedded SQLite
// database across both schema generations, hiding the generation
// difference behind a uniform note-type source.
package collection

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a sql.DB opened on an extracted collection file.
type DB struct {
	conn *sql.DB
}

// Open opens the collection database. The journal mode is forced to
// DELETE so the file stays self-contained for repackaging.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=DELETE&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("collection: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("collection: ping: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Checkpoint flushes any WAL data into the main database file so the
// on-disk file is complete before packing. Best effort: a collection in
// DELETE journal mode has nothing to checkpoint.
func (db *DB) Checkpoint() {
	_, _ = db.conn.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`)
}

// tables returns the set of table names in the database.
func (db *DB) tables() (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	if err != nil {
		return nil, fmt.Errorf("collection: list tables: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = struct{}{}
	}
	return out, rows.Err()
}
