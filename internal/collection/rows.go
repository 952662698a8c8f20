package collection

import (
	"fmt"
	"time"
)

// NoteRow mirrors the columns of the notes table this engine touches.
// Flds holds the field values joined by the 0x1f separator.
type NoteRow struct {
	ID      int64
	GUID    string
	ModelID int64
	Mod     int64
	Flds    string
}

// CardRow mirrors the columns of the cards table this engine touches.
type CardRow struct {
	ID     int64
	NoteID int64
	DeckID int64
	Ord    int
	Due    int
}

// Notes returns every note row.
func (db *DB) Notes() ([]NoteRow, error) {
	rows, err := db.conn.Query(`SELECT id, guid, mid, mod, flds FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("collection: read notes: %w", err)
	}
	defer rows.Close()

	var out []NoteRow
	for rows.Next() {
		var n NoteRow
		if err := rows.Scan(&n.ID, &n.GUID, &n.ModelID, &n.Mod, &n.Flds); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Cards returns every card row ordered by due position.
func (db *DB) Cards() ([]CardRow, error) {
	rows, err := db.conn.Query(`SELECT id, nid, did, ord, due FROM cards ORDER BY due`)
	if err != nil {
		return nil, fmt.Errorf("collection: read cards: %w", err)
	}
	defer rows.Close()

	var out []CardRow
	for rows.Next() {
		var c CardRow
		if err := rows.Scan(&c.ID, &c.NoteID, &c.DeckID, &c.Ord, &c.Due); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateNoteFields writes a note's joined field values, stamping the
// given modification time and marking the row unsynced.
func (db *DB) UpdateNoteFields(id int64, flds string, mod int64) error {
	_, err := db.conn.Exec(`UPDATE notes SET flds = ?, mod = ?, usn = -1 WHERE id = ?`, flds, mod, id)
	if err != nil {
		return fmt.Errorf("collection: update note %d: %w", id, err)
	}
	return nil
}

// SetCardDue writes the due position for every card of a note.
func (db *DB) SetCardDue(noteID int64, due int) error {
	_, err := db.conn.Exec(`UPDATE cards SET due = ? WHERE nid = ?`, due, noteID)
	if err != nil {
		return fmt.Errorf("collection: set due: %w", err)
	}
	return nil
}

// AnyDeckID returns the deck id of an arbitrary existing card, so new
// cards land in a deck the archive already uses.
func (db *DB) AnyDeckID() (int64, bool, error) {
	var did int64
	err := db.conn.QueryRow(`SELECT did FROM cards LIMIT 1`).Scan(&did)
	if err != nil {
		// No cards at all is fine; the caller falls back to the
		// default deck.
		return 0, false, nil
	}
	return did, true, nil
}

// MaxDue returns the largest due value in the cards table.
func (db *DB) MaxDue() (int, error) {
	var due *int
	if err := db.conn.QueryRow(`SELECT MAX(due) FROM cards`).Scan(&due); err != nil {
		return 0, fmt.Errorf("collection: max due: %w", err)
	}
	if due == nil {
		return -1, nil
	}
	return *due, nil
}

// InsertNoteWithCard creates a note row and its single card in one
// transaction. The card is appended at the database's natural position;
// presentation ordering is the session's concern.
func (db *DB) InsertNoteWithCard(n NoteRow, c CardRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("collection: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().Unix()
	_, err = tx.Exec(
		`INSERT INTO notes (id, guid, mid, mod, usn, tags, flds, sfld, csum, flags, data)
		 VALUES (?, ?, ?, ?, -1, '', ?, '', 0, 0, '')`,
		n.ID, n.GUID, n.ModelID, n.Mod, n.Flds)
	if err != nil {
		return fmt.Errorf("collection: insert note: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO cards (id, nid, did, ord, mod, usn, type, queue, due, ivl, factor, reps, lapses, left, odue, odid, flags, data)
		 VALUES (?, ?, ?, ?, ?, -1, 0, 0, ?, 0, 0, 0, 0, 0, 0, 0, 0, '')`,
		c.ID, c.NoteID, c.DeckID, c.Ord, now, c.Due)
	if err != nil {
		return fmt.Errorf("collection: insert card: %w", err)
	}

	return tx.Commit()
}

// DeleteNoteCascade removes a note and every card referencing it in one
// transaction.
func (db *DB) DeleteNoteCascade(id int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("collection: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM cards WHERE nid = ?`, id); err != nil {
		return fmt.Errorf("collection: delete cards: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("collection: delete note: %w", err)
	}

	return tx.Commit()
}
