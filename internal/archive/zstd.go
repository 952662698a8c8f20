//go:build !nozstd

package archive

import "github.com/klauspost/compress/zstd"

// zstdAvailable reports whether this build can decompress zstd payloads.
// A variable (not a constant) so tests can simulate a build without it.
var zstdAvailable = true

func zstdDecompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
