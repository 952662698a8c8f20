// Package archive reads and writes deck package containers: a zip holding
// an embedded SQLite collection, a media manifest, and numbered media files.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/raido/internal/apperr"
)

// Candidate database names inside the container, in priority order. The
// first is zstd-compressed; the other two are plain SQLite files from the
// newer and older collection generations.
const (
	dbNameCompressed = "collection.anki21b"
	dbNameModern     = "collection.anki21"
	dbNameLegacy     = "collection.anki2"
)

// manifestName is the media index file inside the container.
const manifestName = "media"

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// WorkingCopy is an archive extracted into an isolated temporary
// directory. The session owns it exclusively; Close releases it.
type WorkingCopy struct {
	// Dir is the temporary directory holding the extracted entries.
	Dir string
	// DBName is the collection filename the database was opened under.
	// A compressed collection is decompressed and stored under the
	// modern uncompressed name.
	DBName string
}

// DBPath returns the absolute path of the extracted database file.
func (wc *WorkingCopy) DBPath() string {
	return filepath.Join(wc.Dir, wc.DBName)
}

// Close removes the working copy's temporary storage. Safe to call more
// than once.
func (wc *WorkingCopy) Close() error {
	if wc.Dir == "" {
		return nil
	}
	err := os.RemoveAll(wc.Dir)
	wc.Dir = ""
	return err
}

// ManifestBytes returns the raw media manifest JSON, decompressing it if
// the archive stored it zstd-compressed. A missing or empty manifest
// returns nil.
func (wc *WorkingCopy) ManifestBytes() ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(wc.Dir, manifestName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("archive: read manifest: %w", err)
	}
	return maybeDecompress(raw)
}

// Open extracts the container at path into a fresh temporary directory
// and locates the embedded collection database. The temporary directory
// is removed on every failure path.
func Open(path string) (*WorkingCopy, error) {
	dir, err := os.MkdirTemp("", "raido-*")
	if err != nil {
		return nil, fmt.Errorf("archive: temp dir: %w", err)
	}
	success := false
	defer func() {
		if !success {
			_ = os.RemoveAll(dir)
		}
	}()

	if err := extractZip(path, dir); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrArchiveCorrupt, err)
	}

	dbName, err := locateDB(dir)
	if err != nil {
		return nil, err
	}

	success = true
	return &WorkingCopy{Dir: dir, DBName: dbName}, nil
}

// locateDB finds the collection database among the candidate names. The
// compressed variant wins when zstd support is present; without it the
// uncompressed names are still honored, and an archive carrying only the
// compressed name fails with a distinct unsupported-format error.
func locateDB(dir string) (string, error) {
	compressedPresent := false
	if _, err := os.Stat(filepath.Join(dir, dbNameCompressed)); err == nil {
		compressedPresent = true
		if zstdAvailable {
			raw, err := os.ReadFile(filepath.Join(dir, dbNameCompressed))
			if err != nil {
				return "", fmt.Errorf("archive: read %s: %w", dbNameCompressed, err)
			}
			data, err := maybeDecompress(raw)
			if err != nil {
				return "", fmt.Errorf("%w: %v", apperr.ErrArchiveCorrupt, err)
			}
			if err := os.WriteFile(filepath.Join(dir, dbNameModern), data, 0o644); err != nil {
				return "", fmt.Errorf("archive: write decompressed db: %w", err)
			}
			return dbNameModern, nil
		}
	}

	for _, name := range []string{dbNameModern, dbNameLegacy} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return name, nil
		}
	}

	if compressedPresent {
		return "", fmt.Errorf("%w: %s requires zstd support", apperr.ErrUnsupportedFormat, dbNameCompressed)
	}
	return "", fmt.Errorf("%w: no collection database in archive", apperr.ErrUnsupportedFormat)
}

// maybeDecompress returns data as-is unless it starts with the zstd
// frame magic, in which case it is decompressed.
func maybeDecompress(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}
	if !zstdAvailable {
		return nil, fmt.Errorf("%w: zstd support unavailable", apperr.ErrUnsupportedFormat)
	}
	return zstdDecompress(data)
}

// extractZip unpacks every file entry of the zip at src into dir,
// rejecting entry names that would escape it.
func extractZip(src, dir string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := filepath.Clean(f.Name)
		if filepath.IsAbs(name) || strings.HasPrefix(name, "..") {
			return fmt.Errorf("entry escapes extraction dir: %s", f.Name)
		}
		dest := filepath.Join(dir, name)
		if !strings.HasPrefix(dest, dir+string(os.PathSeparator)) {
			return fmt.Errorf("entry escapes extraction dir: %s", f.Name)
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
		if err := extractFile(f, dest); err != nil {
			return fmt.Errorf("extract %s: %w", f.Name, err)
		}
	}
	return nil
}

func extractFile(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
