package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

// Pack assembles a deck archive at dest from a working directory: the
// collection database read from dbName, the media manifest, and one file
// per manifest key. The database entry is always stored under the modern
// collection name, whatever generation the source archive carried. The
// zip is built in a temporary file next to dest and swapped into place
// only when complete, so a failure mid-write never leaves a partial or
// corrupted archive at dest; in particular, packing over an existing
// archive either fully replaces it or leaves it byte-identical.
func Pack(workDir, dbName string, mediaKeys []string, dest string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".raido-export-*")
	if err != nil {
		return fmt.Errorf("archive: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := writeZip(tmp, workDir, dbName, mediaKeys); err != nil {
		return fmt.Errorf("archive: pack: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("archive: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("archive: close temp: %w", err)
	}
	if err := atomic.ReplaceFile(tmpName, dest); err != nil {
		return fmt.Errorf("archive: replace %s: %w", dest, err)
	}
	success = true
	return nil
}

func writeZip(w io.Writer, workDir, dbName string, mediaKeys []string) error {
	zw := zip.NewWriter(w)

	if err := addFile(zw, workDir, dbName, dbNameModern); err != nil {
		return err
	}
	if err := addFile(zw, workDir, manifestName, manifestName); err != nil {
		return err
	}
	for _, key := range mediaKeys {
		// A manifest entry whose bytes went missing from the working
		// copy is skipped rather than failing the whole export.
		if _, err := os.Stat(filepath.Join(workDir, key)); os.IsNotExist(err) {
			continue
		}
		if err := addFile(zw, workDir, key, key); err != nil {
			return err
		}
	}

	return zw.Close()
}

func addFile(zw *zip.Writer, workDir, name, entry string) error {
	in, err := os.Open(filepath.Join(workDir, name))
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer in.Close()

	out, err := zw.Create(entry)
	if err != nil {
		return fmt.Errorf("zip entry %s: %w", entry, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("write %s: %w", entry, err)
	}
	return nil
}
