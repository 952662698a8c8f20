// Package settings persists user preferences: the preferred save mode
// and the recently opened archives.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Save modes.
const (
	SaveModeCopy      = "copy"
	SaveModeOverwrite = "overwrite"
)

const (
	fileName  = "settings.json"
	maxRecent = 10
)

// Settings holds the persisted preferences.
type Settings struct {
	SaveMode string   `json:"save_mode"`
	Recent   []string `json:"recent,omitempty"`
}

// Defaults returns the settings used when nothing is stored yet or the
// stored file is unreadable.
func Defaults() Settings {
	return Settings{SaveMode: SaveModeCopy}
}

// Store reads and writes settings under a single directory.
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore creates a store rooted at dir. An empty dir falls back to
// ~/.raido.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("settings: resolve home: %w", err)
		}
		dir = filepath.Join(home, ".raido")
	}
	return &Store{dir: dir}, nil
}

// Load returns the stored settings, falling back to defaults on any
// read or parse error. Unknown keys are ignored; missing keys keep
// their default values.
func (s *Store) Load() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() Settings {
	out := Defaults()
	data, err := os.ReadFile(filepath.Join(s.dir, fileName))
	if err != nil {
		return out
	}
	var stored Settings
	if err := json.Unmarshal(data, &stored); err != nil {
		return out
	}
	if stored.SaveMode == SaveModeCopy || stored.SaveMode == SaveModeOverwrite {
		out.SaveMode = stored.SaveMode
	}
	out.Recent = stored.Recent
	if len(out.Recent) > maxRecent {
		out.Recent = out.Recent[:maxRecent]
	}
	return out
}

// Save writes the settings to disk, creating the directory if needed.
func (s *Store) Save(settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(settings)
}

func (s *Store) saveLocked(settings Settings) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("settings: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, fileName), data, 0o644); err != nil {
		return fmt.Errorf("settings: write: %w", err)
	}
	return nil
}

// AddRecent records an archive path at the head of the recent list,
// deduplicating and capping the list.
func (s *Store) AddRecent(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := s.loadLocked()
	recent := make([]string, 0, maxRecent)
	recent = append(recent, path)
	for _, p := range settings.Recent {
		if p == path {
			continue
		}
		recent = append(recent, p)
		if len(recent) == maxRecent {
			break
		}
	}
	settings.Recent = recent
	return s.saveLocked(settings)
}
