// Package media maps between filename references in field HTML and the
// numbered media blobs stored inside a deck archive.
package media

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Manifest maps a decimal string index to the media file's original
// filename. Inside the archive the bytes live in a file named by the
// index; field HTML references the original filename.
type Manifest map[string]string

// ParseManifest decodes the manifest JSON. Nil or blank input yields an
// empty manifest, matching archives that carry no media.
func ParseManifest(raw []byte) (Manifest, error) {
	if len(raw) == 0 {
		return Manifest{}, nil
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("media: parse manifest: %w", err)
	}
	if m == nil {
		m = Manifest{}
	}
	return m, nil
}

// Encode serializes the manifest back to JSON.
func (m Manifest) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("media: encode manifest: %w", err)
	}
	return data, nil
}

// Lookup finds the storage key for an original filename.
func (m Manifest) Lookup(filename string) (string, bool) {
	for key, name := range m {
		if name == filename {
			return key, true
		}
	}
	return "", false
}

// Keys returns the storage keys in ascending numeric order.
func (m Manifest) Keys() []string {
	out := make([]string, 0, len(m))
	for key := range m {
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.Atoi(out[i])
		b, _ := strconv.Atoi(out[j])
		return a < b
	})
	return out
}

// NextKey returns the smallest unused numeric index.
func (m Manifest) NextKey() int {
	next := 0
	for key := range m {
		if n, err := strconv.Atoi(key); err == nil && n >= next {
			next = n + 1
		}
	}
	return next
}
