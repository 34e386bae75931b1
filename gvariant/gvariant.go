// Package gvariant is the minimal GVariant serialization capability GVDB
// depends on externally (spec §1, §9: "the GVariant layer is an external
// capability; the core only moves opaque byte slices"). It implements
// exactly the subset GResource and this module's test corpus use: fixed
// 32-bit unsigned integers, NUL-terminated UTF-8 strings, byte arrays,
// string arrays, and fixed-arity tuples of those — not the full
// GVariant type system.
package gvariant

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

// ByteOrder is independent of gvdb.ByteOrder on purpose: this package
// has no knowledge of GVDB at all, the way a real external GVariant
// crate wouldn't either. Callers on the gvdb side convert at the
// boundary (see gvdb.gvariantByteOrder).
type ByteOrder uint8

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

func (bo ByteOrder) stdlib() binary.ByteOrder {
	if bo == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Value is anything this package knows how to serialize to, and parse
// from, its GVariant byte encoding.
type Value interface {
	// Signature is the GVariant type signature string, e.g. "u", "s",
	// "ay", "as", "(uuay)".
	Signature() string
	// Marshal encodes the value's body (no outer framing; a Value is
	// always serialized as a top-level, self-describing byte string
	// for the signature it carries).
	Marshal(bo ByteOrder) []byte
}

// Uint32 is GVariant signature "u".
type Uint32 uint32

func (Uint32) Signature() string { return "u" }

func (v Uint32) Marshal(bo ByteOrder) []byte {
	var buf bytes.Buffer
	enc := bin.NewBorshEncoder(&buf)
	if err := enc.WriteUint32(uint32(v), bo.stdlib()); err != nil {
		panic(err) // bytes.Buffer never fails a write
	}
	return buf.Bytes()
}

// DecodeUint32 decodes a "u" value. data must be exactly 4 bytes.
func DecodeUint32(data []byte, bo ByteOrder) (Uint32, error) {
	if len(data) != 4 {
		return 0, fmt.Errorf("gvariant: \"u\" expects 4 bytes, got %d", len(data))
	}
	v, err := bin.NewBorshDecoder(data).ReadUint32(bo.stdlib())
	if err != nil {
		return 0, fmt.Errorf("gvariant: \"u\": %w", err)
	}
	return Uint32(v), nil
}

// String is GVariant signature "s": UTF-8 bytes followed by a single
// NUL terminator, no length prefix.
type String string

func (String) Signature() string { return "s" }

func (v String) Marshal(ByteOrder) []byte {
	buf := make([]byte, len(v)+1)
	copy(buf, v)
	buf[len(v)] = 0
	return buf
}

// DecodeString decodes a "s" value: everything up to (and not
// including) the trailing NUL.
func DecodeString(data []byte) (String, error) {
	if len(data) == 0 || data[len(data)-1] != 0 {
		return "", fmt.Errorf("gvariant: \"s\" value missing NUL terminator")
	}
	return String(data[:len(data)-1]), nil
}

// Bytes is GVariant signature "ay": a byte array with no framing at all
// (its element type "y" is fixed-size, so there is nothing to offset).
type Bytes []byte

func (Bytes) Signature() string { return "ay" }

func (v Bytes) Marshal(ByteOrder) []byte { return append([]byte(nil), v...) }

// DecodeBytes decodes an "ay" value: the identity function, since "ay"
// carries no framing.
func DecodeBytes(data []byte) Bytes { return append(Bytes(nil), data...) }

// StringArray is GVariant signature "as": an array of variable-size
// elements, which therefore need a trailing offset table recording the
// end of every element, the last one included (so the final table entry
// equals the start of the table itself). An empty array serializes to
// zero bytes.
type StringArray []string

func (StringArray) Signature() string { return "as" }

func (v StringArray) Marshal(bo ByteOrder) []byte {
	if len(v) == 0 {
		return nil
	}
	var body bytes.Buffer
	offsets := make([]int, len(v))
	for i, s := range v {
		body.WriteString(s)
		body.WriteByte(0)
		offsets[i] = body.Len()
	}
	osz := offsetSize(body.Len())
	for _, off := range offsets {
		writeOffset(&body, off, osz, bo)
	}
	return body.Bytes()
}

// DecodeStringArray decodes an "as" value.
func DecodeStringArray(data []byte, bo ByteOrder) (StringArray, error) {
	if len(data) == 0 {
		return nil, nil
	}
	// We don't know element count up front; the offset table occupies
	// the tail of data. Binary-search-free approach: GVariant readers
	// normally know n from context, but since our only consumer
	// (directory listings) wants the full set, we can recover n by
	// noting every offset table entry is osz bytes and the last offset
	// must equal the start of the offset table itself.
	for osz := 1; osz <= 4; osz *= 2 {
		if n, ok := tryDecodeStringArray(data, osz, bo); ok {
			return n, nil
		}
	}
	return nil, fmt.Errorf("gvariant: could not determine \"as\" framing")
}

func tryDecodeStringArray(data []byte, osz int, bo ByteOrder) (StringArray, bool) {
	for n := 1; n*osz <= len(data); n++ {
		tableStart := len(data) - n*osz
		offs := make([]int, n)
		prevOK := true
		for i := 0; i < n; i++ {
			o := readOffset(data[tableStart+i*osz:tableStart+(i+1)*osz], bo)
			if o > tableStart || (i > 0 && o < offs[i-1]) {
				prevOK = false
				break
			}
			offs[i] = o
		}
		if !prevOK {
			continue
		}
		if offs[n-1] != tableStart {
			continue
		}
		strs := make(StringArray, n)
		start := 0
		ok := true
		for i, end := range offs {
			if end == 0 || end > tableStart || data[end-1] != 0 {
				ok = false
				break
			}
			strs[i] = string(data[start : end-1])
			start = end
		}
		if ok {
			return strs, true
		}
	}
	return nil, false
}

func offsetSize(maxOffset int) int {
	switch {
	case maxOffset <= 1<<8-1:
		return 1
	case maxOffset <= 1<<16-1:
		return 2
	default:
		return 4
	}
}

// writeOffset/readOffset stay on encoding/binary directly rather than
// gagliardetto/binary's encoder/decoder: the offset table's element
// width (1, 2, or 4 bytes) is chosen per call and tryDecodeStringArray
// probes arbitrary byte positions out of order while searching for a
// consistent framing, which doesn't fit the sequential field-at-a-time
// shape the Borsh encoder/decoder is built around.
func writeOffset(buf *bytes.Buffer, off, size int, bo ByteOrder) {
	var tmp [4]byte
	switch size {
	case 1:
		buf.WriteByte(byte(off))
		return
	case 2:
		bo.stdlib().PutUint16(tmp[:2], uint16(off))
		buf.Write(tmp[:2])
	default:
		bo.stdlib().PutUint32(tmp[:4], uint32(off))
		buf.Write(tmp[:4])
	}
}

func readOffset(b []byte, bo ByteOrder) int {
	switch len(b) {
	case 1:
		return int(b[0])
	case 2:
		return int(bo.stdlib().Uint16(b))
	default:
		return int(bo.stdlib().Uint32(b))
	}
}

// Tuple is a fixed-arity tuple of Values. Only the case this module
// needs is supported: every member fixed-size except possibly the last,
// which matches GResource's "(uuay)" exactly (two u32s then a trailing
// byte array) and keeps the framing trivial — no offset table, since a
// variable-size member in final position needs none.
type Tuple []Value

func (t Tuple) Signature() string {
	sig := "("
	for _, v := range t {
		sig += v.Signature()
	}
	return sig + ")"
}

func (t Tuple) Marshal(bo ByteOrder) []byte {
	var buf bytes.Buffer
	for i, v := range t {
		b := v.Marshal(bo)
		if align := fixedAlignment(v.Signature()); align > 1 {
			for buf.Len()%align != 0 {
				buf.WriteByte(0)
			}
		}
		buf.Write(b)
		_ = i
	}
	return buf.Bytes()
}

func fixedAlignment(sig string) int {
	switch sig {
	case "u":
		return 4
	default:
		return 1
	}
}

// DecodeUUAY decodes GResource's "(uuay)" payload tuple directly: two
// little- or big-endian u32s (size, flags) followed by the remaining
// bytes verbatim as the content array. This is the one tuple shape the
// bundle schema actually needs, so it gets a direct decoder instead of
// a generic tuple-schema walker.
func DecodeUUAY(data []byte, bo ByteOrder) (size, flags uint32, content []byte, err error) {
	if len(data) < 8 {
		return 0, 0, nil, fmt.Errorf("gvariant: \"(uuay)\" value too short: %d bytes", len(data))
	}
	dec := bin.NewBorshDecoder(data)
	if size, err = dec.ReadUint32(bo.stdlib()); err != nil {
		return 0, 0, nil, fmt.Errorf("gvariant: \"(uuay)\" size: %w", err)
	}
	if flags, err = dec.ReadUint32(bo.stdlib()); err != nil {
		return 0, 0, nil, fmt.Errorf("gvariant: \"(uuay)\" flags: %w", err)
	}
	content = data[8:]
	return size, flags, content, nil
}

// EncodeUUAY encodes GResource's "(uuay)" payload tuple directly,
// mirroring DecodeUUAY.
func EncodeUUAY(size, flags uint32, content []byte, bo ByteOrder) []byte {
	var buf bytes.Buffer
	enc := bin.NewBorshEncoder(&buf)
	if err := enc.WriteUint32(size, bo.stdlib()); err != nil {
		panic(err)
	}
	if err := enc.WriteUint32(flags, bo.stdlib()); err != nil {
		panic(err)
	}
	buf.Write(content)
	return buf.Bytes()
}
