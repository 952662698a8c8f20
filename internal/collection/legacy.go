package collection

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/starford/raido/internal/models"
)

// legacySource reads note-type definitions from the col.models JSON
// blob: one object per model keyed by its id, with flds/tmpls arrays
// carrying an explicit ord.
type legacySource struct {
	db *DB
}

type legacyField struct {
	Name string `json:"name"`
	Ord  int    `json:"ord"`
}

type legacyTemplate struct {
	Name string `json:"name"`
	Qfmt string `json:"qfmt"`
	Afmt string `json:"afmt"`
	Ord  int    `json:"ord"`
}

type legacyModel struct {
	Name  string           `json:"name"`
	Flds  []legacyField    `json:"flds"`
	Tmpls []legacyTemplate `json:"tmpls"`
	CSS   string           `json:"css"`
}

func (s *legacySource) NoteTypes() (map[int64]models.NoteType, error) {
	var blob string
	if err := s.db.conn.QueryRow(`SELECT models FROM col`).Scan(&blob); err != nil {
		return nil, fmt.Errorf("collection: read col.models: %w", err)
	}

	var raw map[string]legacyModel
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		return nil, fmt.Errorf("collection: parse col.models: %w", err)
	}

	out := make(map[int64]models.NoteType, len(raw))
	for idStr, m := range raw {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("collection: model id %q: %w", idStr, err)
		}

		sort.Slice(m.Flds, func(i, j int) bool { return m.Flds[i].Ord < m.Flds[j].Ord })
		fields := make([]string, len(m.Flds))
		for i, f := range m.Flds {
			fields[i] = f.Name
		}

		sort.Slice(m.Tmpls, func(i, j int) bool { return m.Tmpls[i].Ord < m.Tmpls[j].Ord })
		templates := make([]models.Template, len(m.Tmpls))
		for i, t := range m.Tmpls {
			templates[i] = models.Template{Name: t.Name, Qfmt: t.Qfmt, Afmt: t.Afmt, Ord: t.Ord}
		}

		out[id] = models.NoteType{
			ID:        id,
			Name:      m.Name,
			Fields:    fields,
			Templates: templates,
			CSS:       m.CSS,
		}
	}
	return out, nil
}
