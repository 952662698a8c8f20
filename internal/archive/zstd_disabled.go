//go:build nozstd

package archive

import "errors"

var zstdAvailable = false

func zstdDecompress([]byte) ([]byte, error) {
	return nil, errors.New("archive: built without zstd support")
}
