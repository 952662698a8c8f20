package media

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/storage"
)

var (
	srcRe    = regexp.MustCompile(`src="([^"]+)"`)
	dataRe   = regexp.MustCompile(`src="(data:[^"]+)"`)
	soundRe  = regexp.MustCompile(`\[sound:[^\]]+\]`)
	imgTagRe = regexp.MustCompile(`<img\s[^>]*>`)
)

// extByMIME drives the filename extension chosen for media that arrives
// as a bare data URI. Fixed rather than derived from the mime package so
// the same input always produces the same filename.
var extByMIME = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/bmp":     ".bmp",
	"image/svg+xml": ".svg",
}

// Resolver converts between filename-based media references in field
// HTML and self-contained data URIs. It remembers every URI it produces
// so the inverse transform restores the original filename, and it
// deduplicates new payloads by content hash.
type Resolver struct {
	work      *storage.WorkDir
	manifest  Manifest
	uriToFile map[string]string
	sumToFile map[string]string
	nextKey   int
	logger    *slog.Logger
}

// NewResolver creates a resolver over a working copy and its manifest.
func NewResolver(work *storage.WorkDir, manifest Manifest, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		work:      work,
		manifest:  manifest,
		uriToFile: make(map[string]string),
		sumToFile: make(map[string]string),
		nextKey:   manifest.NextKey(),
		logger:    logger,
	}
}

// Manifest returns the resolver's live manifest, including entries added
// since load.
func (r *Resolver) Manifest() Manifest { return r.manifest }

// Inline replaces every resolvable src="filename" reference with a
// self-contained data URI and removes [sound:...] tokens outright (audio
// has no inline representation; the drop is deliberate and lossy).
// References whose filename is missing from the manifest or whose bytes
// are gone pass through unresolved rather than failing the load.
func (r *Resolver) Inline(html string) string {
	html = soundRe.ReplaceAllString(html, "")

	return srcRe.ReplaceAllStringFunc(html, func(m string) string {
		filename := srcRe.FindStringSubmatch(m)[1]
		if strings.HasPrefix(filename, "data:") {
			return m
		}
		uri, ok := r.inlineFile(filename)
		if !ok {
			return m
		}
		return `src="` + uri + `"`
	})
}

func (r *Resolver) inlineFile(filename string) (string, bool) {
	key, ok := r.manifest.Lookup(filename)
	if !ok {
		r.logger.Debug("media missing from manifest", slog.String("filename", filename))
		return "", false
	}
	data, err := r.work.Read(key)
	if err != nil {
		r.logger.Warn("media bytes unreadable", slog.String("filename", filename), slog.String("error", err.Error()))
		return "", false
	}

	uri := dataURI(mimeByName(filename), data)
	r.uriToFile[uri] = filename
	r.sumToFile[checksum.Sum(data)] = filename
	return uri, true
}

// Deinline is the inverse of Inline: every data URI becomes a filename
// reference again. A URI this resolver produced maps back to its original
// filename; a URI it has never seen (content pasted by a caller) is
// decoded, deduplicated by content hash, stored in the working copy under
// a fresh manifest index, and referenced by its new filename. Anything
// that is not a well-formed data URI passes through unchanged.
func (r *Resolver) Deinline(html string) (string, error) {
	var firstErr error
	out := dataRe.ReplaceAllStringFunc(html, func(m string) string {
		uri := dataRe.FindStringSubmatch(m)[1]
		if filename, ok := r.uriToFile[uri]; ok {
			return `src="` + filename + `"`
		}

		mimeType, data, err := parseDataURI(uri)
		if err != nil {
			return m
		}
		filename, err := r.store(data, extForMIME(mimeType))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return m
		}
		r.uriToFile[uri] = filename
		return `src="` + filename + `"`
	})
	return out, firstErr
}

// AddImage stores new image bytes as a media entry and returns the
// filename reference plus the data URI callers display. Identical bytes
// already stored reuse the existing entry.
func (r *Resolver) AddImage(data []byte, ext string) (filename, uri string, err error) {
	if ext == "" || !strings.HasPrefix(ext, ".") {
		ext = ".png"
	}
	filename, err = r.store(data, ext)
	if err != nil {
		return "", "", err
	}
	uri = dataURI(mimeByName(filename), data)
	r.uriToFile[uri] = filename
	return filename, uri, nil
}

// store writes data into the working copy under a fresh manifest index,
// deduplicating by content hash.
func (r *Resolver) store(data []byte, ext string) (string, error) {
	sum := checksum.Sum(data)
	if filename, ok := r.sumToFile[sum]; ok {
		return filename, nil
	}

	key := strconv.Itoa(r.nextKey)
	filename := fmt.Sprintf("paste_%d%s", r.nextKey, ext)
	if err := r.work.Write(key, data); err != nil {
		return "", fmt.Errorf("media: store %s: %w", filename, err)
	}
	r.nextKey++
	r.manifest[key] = filename
	r.sumToFile[sum] = filename
	return filename, nil
}

// ImageTagSpans returns the byte spans of every <img> tag in the field,
// in order of appearance.
func ImageTagSpans(field string) [][]int {
	return imgTagRe.FindAllStringIndex(field, -1)
}

func dataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func parseDataURI(uri string) (mimeType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("media: not a data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("media: malformed data URI")
	}
	mimeType, enc, _ := strings.Cut(meta, ";")
	if enc != "base64" {
		return "", nil, fmt.Errorf("media: unsupported data URI encoding %q", enc)
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("media: decode data URI: %w", err)
	}
	return mimeType, data, nil
}

// mimeByName infers a MIME type from a filename's extension, falling
// back to application/octet-stream.
func mimeByName(filename string) string {
	t := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if t == "" {
		return "application/octet-stream"
	}
	// TypeByExtension may attach a charset parameter; references keep
	// just the bare type.
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return t
}

func extForMIME(mimeType string) string {
	if ext, ok := extByMIME[mimeType]; ok {
		return ext
	}
	return ".png"
}
