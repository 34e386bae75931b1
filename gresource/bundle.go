package gresource

import (
	"errors"

	"github.com/gvdbfs/gvdb/gvariant"
	"github.com/gvdbfs/gvdb/gvdb"
)

// Bundle is a read-only view over a GVDB file known to follow the
// GResource value schema.
type Bundle struct {
	file *gvdb.File
}

// OpenBundle wraps an already-parsed GVDB file as a Bundle.
func OpenBundle(file *gvdb.File) *Bundle { return &Bundle{file: file} }

// Lookup returns the decoded payload stored at virtualPath: the
// original uncompressed size, whether the stored value was
// zlib-compressed, and the payload bytes (already decompressed and with
// the trailing zero byte stripped).
func (b *Bundle) Lookup(virtualPath string) (size uint32, compressed bool, payload []byte, err error) {
	raw, err := b.file.HashTable().GetValue(normalizeVirtualPath(virtualPath))
	if err != nil {
		return 0, false, nil, err
	}
	return DecodeFileValue(raw, gvariantByteOrder(b.file.ByteOrder()))
}

// Metadata returns the bundle-level Metadata SetMetadata attached at
// build time, or an empty Metadata if none was set.
func (b *Bundle) Metadata() (*Metadata, error) {
	raw, err := b.file.HashTable().GetValue(metadataKey)
	if err != nil {
		if errors.Is(err, gvdb.ErrKeyNotFound) {
			return &Metadata{}, nil
		}
		return nil, err
	}
	return unmarshalMetadata(raw)
}

// Enumerate lists the immediate children (leaf names, not full paths)
// of a directory path (spec §4.6, §8 property 8).
func (b *Bundle) Enumerate(dirPath string) ([]string, error) {
	raw, err := b.file.HashTable().GetValue(normalizeDirPath(dirPath))
	if err != nil {
		return nil, err
	}
	arr, err := gvariant.DecodeStringArray(raw, gvariantByteOrder(b.file.ByteOrder()))
	if err != nil {
		return nil, err
	}
	return []string(arr), nil
}
