package archive

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/testutil"
)

func TestOpen_ModernArchive(t *testing.T) {
	wc, err := Open(testutil.BuildModernArchive(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer wc.Close()

	if wc.DBName != "collection.anki21" {
		t.Errorf("DBName = %q, want collection.anki21", wc.DBName)
	}
	if _, err := os.Stat(wc.DBPath()); err != nil {
		t.Errorf("db file missing: %v", err)
	}

	manifest, err := wc.ManifestBytes()
	if err != nil {
		t.Fatalf("ManifestBytes: %v", err)
	}
	if string(manifest) != `{"0":"pic.png"}` {
		t.Errorf("manifest = %s", manifest)
	}
	if _, err := os.Stat(filepath.Join(wc.Dir, "0")); err != nil {
		t.Errorf("media file missing: %v", err)
	}
}

func TestOpen_LegacyArchive(t *testing.T) {
	wc, err := Open(testutil.BuildLegacyArchive(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer wc.Close()

	if wc.DBName != "collection.anki2" {
		t.Errorf("DBName = %q, want collection.anki2", wc.DBName)
	}
}

func TestOpen_CompressedArchive(t *testing.T) {
	wc, err := Open(testutil.BuildCompressedArchive(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer wc.Close()

	// The compressed collection is decompressed and stored under the
	// modern uncompressed name.
	if wc.DBName != "collection.anki21" {
		t.Errorf("DBName = %q, want collection.anki21", wc.DBName)
	}

	// The compressed manifest decompresses transparently.
	manifest, err := wc.ManifestBytes()
	if err != nil {
		t.Fatalf("ManifestBytes: %v", err)
	}
	if string(manifest) != `{"0":"pic.png"}` {
		t.Errorf("manifest = %s", manifest)
	}
}

func TestOpen_CompressedWithoutZstd(t *testing.T) {
	path := testutil.BuildCompressedArchive(t)

	zstdAvailable = false
	defer func() { zstdAvailable = true }()

	_, err := Open(path)
	if !errors.Is(err, apperr.ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestOpen_NotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.apkg")
	if err := os.WriteFile(path, []byte("not a zip at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path)
	if !errors.Is(err, apperr.ErrArchiveCorrupt) {
		t.Fatalf("err = %v, want ErrArchiveCorrupt", err)
	}
}

func TestOpen_NoCollection(t *testing.T) {
	// A valid zip carrying no collection database at all.
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.apkg")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	// Minimal empty zip: writer with no entries.
	if _, err := f.Write([]byte("PK\x05\x06" + string(make([]byte, 18)))); err != nil {
		t.Fatal(err)
	}
	f.Close()

	_, err = Open(path)
	if !errors.Is(err, apperr.ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestWorkingCopy_CloseIdempotent(t *testing.T) {
	wc, err := Open(testutil.BuildModernArchive(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := wc.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := wc.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestPack_RoundTrip(t *testing.T) {
	work := t.TempDir()
	files := map[string][]byte{
		"collection.anki2": []byte("db bytes"),
		"media":            []byte(`{"0":"pic.png"}`),
		"0":                []byte("image bytes"),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(work, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	dest := filepath.Join(t.TempDir(), "out.apkg")
	if err := Pack(work, "collection.anki2", []string{"0"}, dest); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	wc, err := Open(dest)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer wc.Close()

	// Whatever generation went in, the packed entry carries the modern name.
	if wc.DBName != "collection.anki21" {
		t.Errorf("DBName = %q, want collection.anki21", wc.DBName)
	}
	got, err := os.ReadFile(wc.DBPath())
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "db bytes" {
		t.Errorf("db content = %q", got)
	}
	media, err := os.ReadFile(filepath.Join(wc.Dir, "0"))
	if err != nil {
		t.Fatal(err)
	}
	if string(media) != "image bytes" {
		t.Errorf("media content = %q", media)
	}
}

func TestPack_SkipsMissingMedia(t *testing.T) {
	work := t.TempDir()
	if err := os.WriteFile(filepath.Join(work, "collection.anki21"), []byte("db"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(work, "media"), []byte(`{"0":"gone.png"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "out.apkg")
	if err := Pack(work, "collection.anki21", []string{"0"}, dest); err != nil {
		t.Fatalf("Pack with missing media entry: %v", err)
	}
}

func TestPack_FailureLeavesDestUntouched(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "existing.apkg")
	original := []byte("precious original archive")
	if err := os.WriteFile(dest, original, 0o644); err != nil {
		t.Fatal(err)
	}
	before := checksum.Sum(original)

	// Packing from a working dir without the database fails before the swap.
	if err := Pack(t.TempDir(), "collection.anki21", nil, dest); err == nil {
		t.Fatal("Pack should fail without a database file")
	}

	after, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if checksum.Sum(after) != before {
		t.Error("destination modified by failed pack")
	}

	// No temp droppings left next to the destination.
	entries, err := os.ReadDir(filepath.Dir(dest))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("leftover files in dest dir: %d entries", len(entries))
	}
}
