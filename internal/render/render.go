// Package render implements the preview-time interpretation of field
// content. Stored values are always plain strings; a value containing no
// HTML tag is treated as markdown at render time only. The heuristic is
// deliberately exactly "contains an HTML tag" — changing it silently
// changes how existing decks display.
package render

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var htmlTagRe = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// LooksLikeHTML reports whether the field value contains an HTML tag and
// should therefore be displayed verbatim rather than markdown-rendered.
func LooksLikeHTML(field string) bool {
	return htmlTagRe.MatchString(field)
}

// Preview returns the HTML a viewer should display for a field value:
// the value untouched when it already contains HTML, otherwise the
// markdown rendering of it.
func Preview(field string) (string, error) {
	if LooksLikeHTML(field) {
		return field, nil
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(field), &buf); err != nil {
		return "", fmt.Errorf("render: markdown: %w", err)
	}
	return buf.String(), nil
}
