package gvdb

// HeaderSize is the fixed on-disk size of a GVDB file header.
const HeaderSize = 32

// Two legal magic spellings exist, one per byte order (spec §3, §6):
// little-endian files spell the signature forwards, big-endian files
// spell it backwards. A reader tries both before giving up.
var (
	magicLittleEndian = [8]byte{'G', 'V', 'a', 'r', 'i', 'a', 'n', 't'}
	magicBigEndian    = [8]byte{'t', 'n', 'a', 'i', 'r', 'a', 'V', 'G'}
)

func magicFor(bo ByteOrder) [8]byte {
	if bo == BigEndian {
		return magicBigEndian
	}
	return magicLittleEndian
}

// header is the 32-byte fixed prologue of a GVDB file:
//
//	magic        [8]byte
//	versionFlags uint32  // zero in the current format revision
//	options      uint64  // reserved, zero
//	_            uint32  // padding to a round 32 bytes
//	root         Pointer // 8 bytes
type header struct {
	byteOrder    ByteOrder
	versionFlags uint32
	root         Pointer
}

func parseHeader(data []byte) (header, error) {
	if len(data) < HeaderSize {
		return header{}, dataErrorf("file too short for header: %d bytes", len(data))
	}
	var bo ByteOrder
	switch {
	case [8]byte(data[0:8]) == magicLittleEndian:
		bo = LittleEndian
	case [8]byte(data[0:8]) == magicBigEndian:
		bo = BigEndian
	default:
		return header{}, ErrInvalidMagic
	}
	versionFlags := bo.Uint32(data[8:12])
	if versionFlags != 0 {
		return header{}, ErrInvalidVersion
	}
	root := decodePointer(data[24:32], bo)
	return header{byteOrder: bo, versionFlags: versionFlags, root: root}, nil
}

func (h header) encode(buf []byte) {
	if len(buf) < HeaderSize {
		panic("gvdb: header buffer too small")
	}
	magic := magicFor(h.byteOrder)
	copy(buf[0:8], magic[:])
	h.byteOrder.PutUint32(buf[8:12], 0)  // version/flags
	h.byteOrder.PutUint64(buf[12:20], 0) // options, reserved
	h.byteOrder.PutUint32(buf[20:24], 0) // padding
	h.root.encode(buf[24:32], h.byteOrder)
}
