package render

import (
	"strings"
	"testing"
)

func TestLooksLikeHTML(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"<b>bold</b>", true},
		{"<img src=\"x.png\">", true},
		{"</div>", true},
		{"<br>", true},
		{"plain text", false},
		{"# markdown heading", false},
		{"a < b and b > c", false},
		{"x <3 y", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := LooksLikeHTML(tt.in); got != tt.want {
			t.Errorf("LooksLikeHTML(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPreview_HTMLVerbatim(t *testing.T) {
	in := `<b>**not markdown**</b>`
	got, err := Preview(in)
	if err != nil {
		t.Fatal(err)
	}
	// Already HTML: returned untouched, markdown syntax inside ignored.
	if got != in {
		t.Errorf("got %q", got)
	}
}

func TestPreview_MarkdownRendered(t *testing.T) {
	got, err := Preview("# Heading\n\nsome **bold** text")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "<h1>Heading</h1>") {
		t.Errorf("heading not rendered: %q", got)
	}
	if !strings.Contains(got, "<strong>bold</strong>") {
		t.Errorf("emphasis not rendered: %q", got)
	}
}

func TestPreview_GFMTable(t *testing.T) {
	got, err := Preview("| a | b |\n|---|---|\n| 1 | 2 |")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "<table>") {
		t.Errorf("table not rendered: %q", got)
	}
}
