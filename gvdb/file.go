package gvdb

import (
	"os"

	"golang.org/x/exp/mmap"
)

// fileDescriptor is the subset of *os.File that lets us issue
// access-pattern hints without committing to the concrete type.
type fileDescriptor interface {
	Fd() uintptr
	Name() string
}

// File is a parsed GVDB file: a validated header plus the byteSource
// (owned, borrowed, or memory-mapped) it was parsed from. Once
// constructed a File is immutable and safe to share across goroutines
// provided its backing bytes are themselves safe to share (true for all
// three constructors below).
type File struct {
	src    byteSource
	closer func() error
	hdr    header
	root   *HashTable
}

// FromBytes parses data as a GVDB file in place. data is borrowed: the
// returned File must not outlive it. The trusted flag is reserved for
// future use (spec §4.3 allows it to skip recomputation, never safety
// validation); this implementation performs full validation regardless,
// so trusted currently has no effect beyond documenting caller intent.
func FromBytes(data []byte, trusted bool) (*File, error) {
	return fromSource(sliceSource(data))
}

// FromBytesRange parses a GVDB file embedded in data[start:end], for
// callers that multiplex several sections into one buffer (a combined
// blob with a custom prologue ahead of the GVDB table, for instance)
// and want to hand off the relevant byte range without copying it out
// first.
func FromBytesRange(data []byte, start, end int, trusted bool) (*File, error) {
	return fromSource(NewSectionSource(sliceSource(data), int64(start), int64(end)))
}

func fromSource(src byteSource) (*File, error) {
	hdrBuf, err := readRange(src, 0, HeaderSize, "file header")
	if err != nil {
		return nil, err
	}
	hdr, err := parseHeader(hdrBuf)
	if err != nil {
		return nil, err
	}
	if hdr.root.Start%4 != 0 {
		return nil, errInvalidPointer("root hash table", hdr.root.Start, hdr.root.End)
	}
	root, err := newHashTable(src, int64(hdr.root.Start), int64(hdr.root.End), hdr.byteOrder)
	if err != nil {
		return nil, err
	}
	return &File{src: src, hdr: hdr, root: root}, nil
}

// FromFile reads the whole file at path into memory and parses it.
func FromFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	warmupRandom(f)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromBytes(data, false)
}

// FromFileMmap opens path read-only via a memory map. The returned
// File's Close method unmaps it; the map's lifetime is that of the
// File, mirroring bucketteer.Reader's OpenMMAP/Close contract in the
// teacher package. Unlike FromFile, this never reads the whole file
// up front: bytes are paged in by the kernel as the hash table and its
// items are actually touched.
func FromFileMmap(path string) (*File, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	f, err := fromSource(mmapSource{r: r})
	if err != nil {
		r.Close()
		return nil, err
	}
	f.closer = r.Close
	return f, nil
}

// Close releases resources held by File. It is a no-op unless the File
// was constructed via FromFileMmap.
func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer()
}

// ByteOrder reports the byte order this file was written in.
func (f *File) ByteOrder() ByteOrder { return f.hdr.byteOrder }

// IsValid reports whether the file parsed and validated successfully.
// Since the constructors never return a *File alongside a non-nil
// error, a non-nil File is always valid; this accessor exists to match
// the library surface named in spec §4.3.
func (f *File) IsValid() bool { return f != nil }

// HashTable returns the root hash table of the file.
func (f *File) HashTable() *HashTable { return f.root }
