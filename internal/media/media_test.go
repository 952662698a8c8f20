package media

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/raido/internal/storage"
)

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(`{"0":"a.png","1":"b.jpg"}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(m) != 2 || m["0"] != "a.png" || m["1"] != "b.jpg" {
		t.Errorf("manifest = %v", m)
	}

	empty, err := ParseManifest(nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("nil input: %v, %v", empty, err)
	}

	if _, err := ParseManifest([]byte(`nope`)); err == nil {
		t.Error("malformed manifest should fail")
	}
}

func TestManifest_Lookup(t *testing.T) {
	m := Manifest{"0": "a.png", "1": "b.jpg"}
	if key, ok := m.Lookup("b.jpg"); !ok || key != "1" {
		t.Errorf("Lookup(b.jpg) = %q, %v", key, ok)
	}
	if _, ok := m.Lookup("missing.png"); ok {
		t.Error("Lookup of absent filename should miss")
	}
}

func TestManifest_KeysNumericOrder(t *testing.T) {
	m := Manifest{"10": "j.png", "2": "b.png", "0": "a.png"}
	keys := m.Keys()
	want := []string{"0", "2", "10"}
	for i, k := range want {
		if keys[i] != k {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
}

func TestManifest_NextKey(t *testing.T) {
	if got := (Manifest{}).NextKey(); got != 0 {
		t.Errorf("empty NextKey = %d", got)
	}
	if got := (Manifest{"0": "a", "7": "b"}).NextKey(); got != 8 {
		t.Errorf("NextKey = %d, want 8", got)
	}
}

func testResolver(t *testing.T, manifest Manifest, files map[string][]byte) (*Resolver, *storage.WorkDir) {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	work, err := storage.NewWorkDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	return NewResolver(work, manifest, nil), work
}

func TestResolver_InlineAndBack(t *testing.T) {
	png := []byte("fake png bytes")
	r, _ := testResolver(t, Manifest{"0": "pic.png"}, map[string][]byte{"0": png})

	field := `Question <img src="pic.png"> rest`
	inlined := r.Inline(field)

	wantURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	if !strings.Contains(inlined, `src="`+wantURI+`"`) {
		t.Fatalf("inlined = %q", inlined)
	}

	// The inverse restores the original reference byte for byte.
	back, err := r.Deinline(inlined)
	if err != nil {
		t.Fatal(err)
	}
	if back != field {
		t.Errorf("round trip = %q, want %q", back, field)
	}
}

func TestResolver_InlineStripsSoundTokens(t *testing.T) {
	r, _ := testResolver(t, Manifest{}, nil)
	got := r.Inline(`Hello [sound:voice.mp3] world [sound:two.ogg]`)
	if got != `Hello  world ` {
		t.Errorf("got %q", got)
	}
}

func TestResolver_InlineMissingMediaPassthrough(t *testing.T) {
	// Filename absent from the manifest: left as-is, no error.
	r, _ := testResolver(t, Manifest{}, nil)
	field := `<img src="ghost.png">`
	if got := r.Inline(field); got != field {
		t.Errorf("got %q", got)
	}

	// Present in the manifest but bytes gone from the working copy.
	r, _ = testResolver(t, Manifest{"0": "gone.png"}, nil)
	field = `<img src="gone.png">`
	if got := r.Inline(field); got != field {
		t.Errorf("got %q", got)
	}
}

func TestResolver_InlineLeavesDataURIs(t *testing.T) {
	r, _ := testResolver(t, Manifest{}, nil)
	field := `<img src="data:image/png;base64,aGk=">`
	if got := r.Inline(field); got != field {
		t.Errorf("got %q", got)
	}
}

func TestResolver_DeinlineStoresNewContent(t *testing.T) {
	r, work := testResolver(t, Manifest{"0": "existing.png"}, map[string][]byte{"0": []byte("old")})

	payload := []byte("pasted image bytes")
	uri := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(payload)
	out, err := r.Deinline(`<img src="` + uri + `">`)
	if err != nil {
		t.Fatal(err)
	}
	if out != `<img src="paste_1.jpg">` {
		t.Errorf("out = %q", out)
	}

	stored, err := work.Read("1")
	if err != nil {
		t.Fatal(err)
	}
	if string(stored) != string(payload) {
		t.Errorf("stored bytes = %q", stored)
	}
	if r.Manifest()["1"] != "paste_1.jpg" {
		t.Errorf("manifest = %v", r.Manifest())
	}

	// The same payload again dedupes to the same filename.
	out2, err := r.Deinline(`<img src="` + uri + `">`)
	if err != nil {
		t.Fatal(err)
	}
	if out2 != out {
		t.Errorf("dedupe failed: %q vs %q", out2, out)
	}
	if r.Manifest().NextKey() != 2 {
		t.Errorf("manifest grew on duplicate: %v", r.Manifest())
	}
}

func TestResolver_DeinlineMalformedURIPassthrough(t *testing.T) {
	r, _ := testResolver(t, Manifest{}, nil)
	field := `<img src="data:image/png;base64,%%%not-base64%%%">`
	out, err := r.Deinline(field)
	if err != nil {
		t.Fatal(err)
	}
	if out != field {
		t.Errorf("out = %q", out)
	}
}

func TestResolver_AddImage(t *testing.T) {
	r, work := testResolver(t, Manifest{}, nil)

	data := []byte("new image")
	filename, uri, err := r.AddImage(data, ".gif")
	if err != nil {
		t.Fatal(err)
	}
	if filename != "paste_0.gif" {
		t.Errorf("filename = %q", filename)
	}
	if !strings.HasPrefix(uri, "data:image/gif;base64,") {
		t.Errorf("uri = %q", uri)
	}
	if got, _ := work.Read("0"); string(got) != string(data) {
		t.Errorf("stored = %q", got)
	}

	// A URI minted by AddImage de-inlines back to its filename.
	out, err := r.Deinline(`<img src="` + uri + `">`)
	if err != nil {
		t.Fatal(err)
	}
	if out != `<img src="paste_0.gif">` {
		t.Errorf("out = %q", out)
	}

	// Missing or bare extension falls back to png.
	name2, _, err := r.AddImage([]byte("other"), "")
	if err != nil {
		t.Fatal(err)
	}
	if name2 != "paste_1.png" {
		t.Errorf("fallback filename = %q", name2)
	}
}

func TestImageTagSpans(t *testing.T) {
	field := `a <img src="x.png"> b <img class="big" src="y.png"> c`
	spans := ImageTagSpans(field)
	if len(spans) != 2 {
		t.Fatalf("spans = %v", spans)
	}
	if field[spans[0][0]:spans[0][1]] != `<img src="x.png">` {
		t.Errorf("first span = %q", field[spans[0][0]:spans[0][1]])
	}
	if len(ImageTagSpans("no images here")) != 0 {
		t.Error("expected no spans")
	}
}
