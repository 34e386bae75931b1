package gresource

import (
	"fmt"

	"github.com/gvdbfs/gvdb/gvariant"
	"github.com/gvdbfs/gvdb/gvdb"
)

// flagCompressed is bit 0 of a file entry's flags field (spec §4.6).
const flagCompressed uint32 = 1 << 0

// gvariantByteOrder translates gvdb's ByteOrder into gvariant's own
// independent enum, the one place this package crosses that boundary.
func gvariantByteOrder(bo gvdb.ByteOrder) gvariant.ByteOrder {
	if bo == gvdb.BigEndian {
		return gvariant.BigEndian
	}
	return gvariant.LittleEndian
}

// EncodeFileValue builds the GVariant "(uuay)" bytes for one GResource
// file entry (spec §4.6): size is always the uncompressed length,
// content carries compressed or raw bytes plus a trailing zero byte not
// counted in size.
func EncodeFileValue(payload []byte, compress bool, bo gvariant.ByteOrder) ([]byte, error) {
	size := uint32(len(payload))
	flags := uint32(0)
	content := payload
	if compress {
		compressed, err := compressZlib(payload)
		if err != nil {
			return nil, err
		}
		content = compressed
		flags |= flagCompressed
	}
	padded := make([]byte, len(content)+1)
	copy(padded, content)
	return gvariant.EncodeUUAY(size, flags, padded, bo), nil
}

// DecodeFileValue parses raw "(uuay)" bytes, strips the trailing zero
// byte, and decompresses if the compressed flag is set, returning the
// original uncompressed size alongside the (now-uncompressed) payload.
func DecodeFileValue(raw []byte, bo gvariant.ByteOrder) (size uint32, compressed bool, payload []byte, err error) {
	size, flags, content, err := gvariant.DecodeUUAY(raw, bo)
	if err != nil {
		return 0, false, nil, err
	}
	if len(content) == 0 || content[len(content)-1] != 0 {
		return 0, false, nil, fmt.Errorf("gresource: file entry missing trailing zero byte")
	}
	content = content[:len(content)-1]
	compressed = flags&flagCompressed != 0
	if compressed {
		content, err = decompressZlib(content)
		if err != nil {
			return 0, false, nil, err
		}
	}
	return size, compressed, content, nil
}
