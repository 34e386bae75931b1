package gresource

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zlib"
)

// compressZlib and decompressZlib wrap klauspost/compress/zlib (the
// teacher's own choice for payload compression, e.g.
// gsfa/linkedlog/compress.go's zstd helpers) rather than stdlib
// compress/zlib, per the mandate to prefer the corpus's own libraries
// wherever it demonstrates one for the same family of concern.
func compressZlib(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("gresource: zlib compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gresource: zlib compress: %w", err)
	}
	return buf.Bytes(), nil
}

func decompressZlib(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gresource: zlib decompress: %w", err)
	}
	defer r.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("gresource: zlib decompress: %w", err)
	}
	return buf.Bytes(), nil
}
