package gvdb

import "encoding/binary"

// ByteOrder selects the multi-byte integer encoding used throughout a
// GVDB file. It is carried as a value rather than a type parameter: the
// file format itself is a runtime choice (the header magic says which
// one), so monomorphizing the reader/writer over it would only add
// surface area without buying anything.
type ByteOrder uint8

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

// NativeByteOrder is little-endian on every platform this module targets
// in practice (amd64, arm64); used as FileWriter's default when the
// caller doesn't care.
const NativeByteOrder = LittleEndian

func (bo ByteOrder) stdlib() binary.ByteOrder {
	if bo == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (bo ByteOrder) String() string {
	if bo == BigEndian {
		return "big-endian"
	}
	return "little-endian"
}

func (bo ByteOrder) Uint32(b []byte) uint32 { return bo.stdlib().Uint32(b) }
func (bo ByteOrder) Uint64(b []byte) uint64 { return bo.stdlib().Uint64(b) }

func (bo ByteOrder) PutUint32(b []byte, v uint32) { bo.stdlib().PutUint32(b, v) }
func (bo ByteOrder) PutUint64(b []byte, v uint64) { bo.stdlib().PutUint64(b, v) }
