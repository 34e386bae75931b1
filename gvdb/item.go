package gvdb

// itemSize is the on-disk size of one hash-table item (spec §3).
//
// Layout (32 bytes):
//
//	hashValue uint32
//	parent    uint32
//	keyStart  uint32
//	keySize   uint16
//	type      byte
//	_         byte    // must be written as zero
//	_         [8]byte // reserved, zero (pads the record to a round 32 bytes)
//	value     Pointer // 8 bytes
const itemSize = 32

const parentRoot = 0xffffffff

// Item type tags (spec §3).
const (
	typeValue byte = 'v'
	typeTable byte = 'L'
	typeDir   byte = 'H'
)

// item is the in-memory decoding of one 32-byte hash-table record.
type item struct {
	hashValue uint32
	parent    uint32
	keyStart  uint32
	keySize   uint16
	kind      byte
	value     Pointer
}

func decodeItem(buf []byte, bo ByteOrder) item {
	return item{
		hashValue: bo.Uint32(buf[0:4]),
		parent:    bo.Uint32(buf[4:8]),
		keyStart:  bo.Uint32(buf[8:12]),
		keySize:   getUint16(buf[12:14], bo),
		kind:      buf[14],
		value:     decodePointer(buf[24:32], bo),
	}
}

// encodeItem writes it into buf (which must be itemSize bytes) in the
// given byte order, zero-filling the unused and reserved bytes.
func encodeItem(buf []byte, it item, bo ByteOrder) {
	for i := range buf[:itemSize] {
		buf[i] = 0
	}
	bo.PutUint32(buf[0:4], it.hashValue)
	bo.PutUint32(buf[4:8], it.parent)
	bo.PutUint32(buf[8:12], it.keyStart)
	putUint16(buf[12:14], it.keySize, bo)
	buf[14] = it.kind
	buf[15] = 0
	// buf[16:24] reserved, already zero
	it.value.encode(buf[24:32], bo)
}

func putUint16(buf []byte, v uint16, bo ByteOrder) {
	if bo == BigEndian {
		buf[0] = byte(v >> 8)
		buf[1] = byte(v)
		return
	}
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
}

func getUint16(buf []byte, bo ByteOrder) uint16 {
	if bo == BigEndian {
		return uint16(buf[0])<<8 | uint16(buf[1])
	}
	return uint16(buf[0]) | uint16(buf[1])<<8
}
