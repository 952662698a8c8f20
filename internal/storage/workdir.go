// Package storage provides file access scoped to a session's extracted
// working copy. All paths are plain names relative to the working
// directory; anything that would escape it is rejected.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WorkDir is a file provider rooted at an extracted archive's directory.
type WorkDir struct {
	root string
}

// NewWorkDir creates a provider rooted at dir, which must already exist.
func NewWorkDir(dir string) (*WorkDir, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &WorkDir{root: abs}, nil
}

// Root returns the absolute working directory path.
func (w *WorkDir) Root() string { return w.root }

// safePath resolves a relative name against the working directory and
// rejects any result that escapes it.
func (w *WorkDir) safePath(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("storage: empty name")
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(w.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, w.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path escapes working copy: %s", rel)
	}
	return abs, nil
}

// Exists reports whether the named file exists in the working copy.
func (w *WorkDir) Exists(name string) bool {
	abs, err := w.safePath(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

// Read returns the raw bytes of a working-copy file.
func (w *WorkDir) Read(name string) ([]byte, error) {
	abs, err := w.safePath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", name, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (w *WorkDir) Write(name string, content []byte) error {
	abs, err := w.safePath(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(w.root, ".raido-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Remove deletes a working-copy file.
func (w *WorkDir) Remove(name string) error {
	abs, err := w.safePath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("storage: remove %s: %w", name, err)
	}
	return nil
}
