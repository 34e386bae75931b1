package gvdb

import (
	"io"

	"golang.org/x/exp/mmap"
)

// byteSource is "a byte container that can be viewed as a slice with a
// stable address for the lifetime of the container" (spec §9, design
// notes): the single abstraction the reader is generic over, whether
// the bytes are owned, borrowed, or memory-mapped. It is intentionally
// just io.ReaderAt plus a length, the same shape compactindexsized.DB
// uses for its Stream field. An mmap.ReaderAt needs only the thin
// mmapSource adapter below, because its Len returns int, not int64.
type byteSource interface {
	io.ReaderAt
	Len() int64
}

// sliceSource adapts an owned or borrowed []byte to byteSource.
type sliceSource []byte

func (s sliceSource) Len() int64 { return int64(len(s)) }

func (s sliceSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(s)) {
		return 0, io.EOF
	}
	n := copy(p, s[off:])
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

// mmapSource adapts *mmap.ReaderAt to byteSource.
type mmapSource struct{ r *mmap.ReaderAt }

func (m mmapSource) Len() int64 { return int64(m.r.Len()) }

func (m mmapSource) ReadAt(p []byte, off int64) (int, error) { return m.r.ReadAt(p, off) }

// readRange reads exactly [start, end) from src into a freshly allocated
// slice, bounds-checking against src.Len() first so a corrupt or
// truncated file produces a structured error instead of a panic deep
// inside io.ReaderAt.
func readRange(src byteSource, start, end int64, where string) ([]byte, error) {
	if start < 0 || end < start {
		return nil, errInvalidPointer(where, uint32(start), uint32(end))
	}
	if end > src.Len() {
		return nil, errInvalidPointer(where, uint32(start), uint32(end))
	}
	buf := make([]byte, end-start)
	if end == start {
		return buf, nil
	}
	if _, err := src.ReadAt(buf, start); err != nil && err != io.EOF {
		return nil, dataErrorf("%s: short read: %v", where, err)
	}
	return buf, nil
}

var _ byteSource = sliceSource(nil)
var _ byteSource = mmapSource{}

// NewSectionSource restricts src to the half-open byte range [start,
// end). FromBytesRange uses it to parse a GVDB file embedded inside a
// larger buffer without copying the surrounding bytes out first,
// mirroring io.NewSectionReader's role in compactindexsized/query.go
// for a caller multiplexing several sections into one file.
func NewSectionSource(src byteSource, start, end int64) byteSource {
	return &sectionSource{src: src, start: start, end: end}
}

type sectionSource struct {
	src        byteSource
	start, end int64
}

func (s *sectionSource) Len() int64 { return s.end - s.start }

func (s *sectionSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || s.start+off >= s.end {
		return 0, io.EOF
	}
	max := s.end - s.start - off
	if int64(len(p)) > max {
		n, err := s.src.ReadAt(p[:max], s.start+off)
		if err == nil {
			err = io.EOF
		}
		return n, err
	}
	return s.src.ReadAt(p, s.start+off)
}
