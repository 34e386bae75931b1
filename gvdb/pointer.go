package gvdb

// pointerSize is the on-disk size of a Pointer: two u32 file offsets.
const pointerSize = 8

// Pointer is an 8-byte (start, end) file-offset pair denoting a byte
// range within a GVDB file. end is exclusive.
type Pointer struct {
	Start uint32
	End   uint32
}

func (p Pointer) isZero() bool { return p.Start == 0 && p.End == 0 }

func decodePointer(buf []byte, bo ByteOrder) Pointer {
	return Pointer{
		Start: bo.Uint32(buf[0:4]),
		End:   bo.Uint32(buf[4:8]),
	}
}

func (p Pointer) encode(buf []byte, bo ByteOrder) {
	bo.PutUint32(buf[0:4], p.Start)
	bo.PutUint32(buf[4:8], p.End)
}

// deref validates p against the file length and the required alignment
// and returns a copy of the bytes it denotes. alignment is 4 for
// hash-table regions and 1 for value regions (spec §4.1).
func deref(src byteSource, p Pointer, alignment uint32, where string) ([]byte, error) {
	if p.Start > p.End {
		return nil, errInvalidPointer(where, p.Start, p.End)
	}
	if alignment > 1 && p.Start%alignment != 0 {
		return nil, errInvalidPointer(where, p.Start, p.End)
	}
	return readRange(src, int64(p.Start), int64(p.End), where)
}
