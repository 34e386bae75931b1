package gvdb

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gvdbfs/gvdb/gvariant"
)

// --- Golden-byte construction helpers, independent of the package's own
// encode/decode functions (mirrors compactindexsized/header_test.go's
// concatBytes-of-named-pieces style). ---

func concatBytes(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func leU16(v uint16) []byte { b := make([]byte, 2); binary.LittleEndian.PutUint16(b, v); return b }
func leU32(v uint32) []byte { b := make([]byte, 4); binary.LittleEndian.PutUint32(b, v); return b }
func beU16(v uint16) []byte { b := make([]byte, 2); binary.BigEndian.PutUint16(b, v); return b }
func beU32(v uint32) []byte { b := make([]byte, 4); binary.BigEndian.PutUint32(b, v); return b }

func zeros(n int) []byte { return make([]byte, n) }

// referenceDigest reimplements the djb2-xor formula spec §8 property 2
// defines, independent of Digest/DigestString, as the expected-value
// piece for golden-byte item records.
func referenceDigest(s string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(s); i++ {
		h = (h * 33) ^ uint32(s[i])
	}
	return h
}

func TestDigestString_MatchesDigest(t *testing.T) {
	for _, key := range []string{"", "a", "/org/gnome/foo.svg", "hello world"} {
		require.Equal(t, Digest([]byte(key)), DigestString(key), "key %q", key)
	}
}

func TestDigest_KnownValue(t *testing.T) {
	// djb2-xor by hand for "ab": h0=5381; h1=(5381*33)^'a'; h2=(h1*33)^'b'.
	h := uint32(5381)
	h = (h * 33) ^ uint32('a')
	h = (h * 33) ^ uint32('b')
	require.Equal(t, h, Digest([]byte("ab")))
}

func TestPointer_EncodeDecodeRoundTrip(t *testing.T) {
	for _, bo := range []ByteOrder{LittleEndian, BigEndian} {
		p := Pointer{Start: 0x1234, End: 0x5678}
		buf := make([]byte, pointerSize)
		p.encode(buf, bo)
		got := decodePointer(buf, bo)
		require.Equal(t, p, got)
	}
}

func TestHeader_EncodeParseRoundTrip(t *testing.T) {
	for _, bo := range []ByteOrder{LittleEndian, BigEndian} {
		h := header{byteOrder: bo, root: Pointer{Start: HeaderSize, End: HeaderSize + 16}}
		buf := make([]byte, HeaderSize)
		h.encode(buf)
		got, err := parseHeader(buf)
		require.NoError(t, err)
		require.Equal(t, h, got)
	}
}

func TestParseHeader_RejectsBadMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	copy(buf, "notgvdb!")
	_, err := parseHeader(buf)
	require.ErrorIs(t, err, ErrInvalidMagic)
}

func TestParseHeader_RejectsShortBuffer(t *testing.T) {
	_, err := parseHeader(make([]byte, HeaderSize-1))
	require.Error(t, err)
}

func TestItem_EncodeDecodeRoundTrip(t *testing.T) {
	for _, bo := range []ByteOrder{LittleEndian, BigEndian} {
		it := item{
			hashValue: 0xdeadbeef,
			parent:    parentRoot,
			keyStart:  100,
			keySize:   12,
			kind:      typeValue,
			value:     Pointer{Start: 200, End: 300},
		}
		buf := make([]byte, itemSize)
		encodeItem(buf, it, bo)
		got := decodeItem(buf, bo)
		require.Equal(t, it, got)
	}
}

func TestFileWriter_WriteAndRead_SimpleValues(t *testing.T) {
	b := NewHashTableBuilder()
	require.NoError(t, b.InsertString("greeting", "hello"))
	require.NoError(t, b.InsertUint32("count", 42))
	require.NoError(t, b.InsertBytes("raw", "ay", []byte{1, 2, 3}))

	data, err := NewFileWriter().WriteToBytes(b)
	require.NoError(t, err)

	f, err := FromBytes(data, false)
	require.NoError(t, err)
	require.Equal(t, NativeByteOrder, f.ByteOrder())

	raw, err := f.HashTable().GetValue("greeting")
	require.NoError(t, err)
	s, err := gvariant.DecodeString(raw)
	require.NoError(t, err)
	require.Equal(t, gvariant.String("hello"), s)

	raw, err = f.HashTable().GetValue("count")
	require.NoError(t, err)
	u, err := gvariant.DecodeUint32(raw, gvariant.LittleEndian)
	require.NoError(t, err)
	require.Equal(t, gvariant.Uint32(42), u)

	raw, err = f.HashTable().GetValue("raw")
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, []byte(gvariant.DecodeBytes(raw)))
}

func TestFileWriter_BigEndianRoundTrip(t *testing.T) {
	b := NewHashTableBuilder()
	require.NoError(t, b.InsertUint32("n", 7))

	data, err := NewFileWriter(WithByteOrder(BigEndian)).WriteToBytes(b)
	require.NoError(t, err)

	f, err := FromBytes(data, false)
	require.NoError(t, err)
	require.Equal(t, BigEndian, f.ByteOrder())

	raw, err := f.HashTable().GetValue("n")
	require.NoError(t, err)
	u, err := gvariant.DecodeUint32(raw, gvariant.BigEndian)
	require.NoError(t, err)
	require.Equal(t, gvariant.Uint32(7), u)
}

func TestFileWriter_NestedTable(t *testing.T) {
	sub := NewHashTableBuilder()
	require.NoError(t, sub.InsertString("name", "nested"))

	root := NewHashTableBuilder()
	require.NoError(t, root.InsertTable("sub", sub))

	data, err := NewFileWriter().WriteToBytes(root)
	require.NoError(t, err)

	f, err := FromBytes(data, false)
	require.NoError(t, err)

	subTable, err := f.HashTable().GetTable("sub")
	require.NoError(t, err)
	raw, err := subTable.GetValue("name")
	require.NoError(t, err)
	s, err := gvariant.DecodeString(raw)
	require.NoError(t, err)
	require.Equal(t, gvariant.String("nested"), s)
}

func TestFileWriter_DirectorySynthesis(t *testing.T) {
	b := NewHashTableBuilder()
	require.NoError(t, b.InsertBytes("/org/gnome/foo.svg", "ay", []byte("x")))

	data, err := NewFileWriter().WriteToBytes(b)
	require.NoError(t, err)

	f, err := FromBytes(data, false)
	require.NoError(t, err)

	keys, err := f.HashTable().Keys()
	require.NoError(t, err)
	require.Contains(t, keys, "/org/gnome/foo.svg")
	require.Contains(t, keys, "/org/gnome/")
	require.Contains(t, keys, "/org/")

	_, _, err = f.HashTable().Lookup("/org/")
	require.NoError(t, err)
}

func TestFileWriter_DuplicateKeyRejected(t *testing.T) {
	b := NewHashTableBuilder()
	require.NoError(t, b.InsertString("k", "v1"))
	err := b.InsertString("k", "v2")
	require.ErrorIs(t, err, ErrConsistency)
}

func TestFileWriter_CyclicTableRejected(t *testing.T) {
	a := NewHashTableBuilder()
	c := NewHashTableBuilder()
	require.NoError(t, a.InsertTable("c", c))
	require.NoError(t, c.InsertTable("a", a))

	_, err := NewFileWriter().WriteToBytes(a)
	require.ErrorIs(t, err, ErrConsistency)
}

func TestFileWriter_ContentDedup(t *testing.T) {
	b := NewHashTableBuilder()
	payload := []byte("identical payload bytes")
	require.NoError(t, b.InsertBytes("a", "ay", payload))
	require.NoError(t, b.InsertBytes("b", "ay", payload))

	withDedup, err := NewFileWriter(WithContentDedup()).WriteToBytes(b)
	require.NoError(t, err)
	withoutDedup, err := NewFileWriter().WriteToBytes(b)
	require.NoError(t, err)
	require.Less(t, len(withDedup), len(withoutDedup))

	f, err := FromBytes(withDedup, false)
	require.NoError(t, err)
	va, err := f.HashTable().GetValue("a")
	require.NoError(t, err)
	vb, err := f.HashTable().GetValue("b")
	require.NoError(t, err)
	require.Equal(t, va, vb)
}

func TestHashTable_PresenceIndex(t *testing.T) {
	b := NewHashTableBuilder()
	require.NoError(t, b.InsertString("present", "v"))

	data, err := NewFileWriter().WriteToBytes(b)
	require.NoError(t, err)
	f, err := FromBytes(data, false)
	require.NoError(t, err)

	idx := f.HashTable().BuildPresenceIndex()
	require.True(t, f.HashTable().MayContain("present", idx))

	_, _, err = f.HashTable().Lookup("absent")
	require.ErrorIs(t, err, ErrKeyNotFound)
}

// TestScenarioA_GoldenBytes is spec §8 scenario A plus property 6: a
// single tuple-valued root key, little-endian, checked both against an
// independently assembled byte-for-byte expected buffer and against the
// decoded round-trip values scenario A names.
func TestScenarioA_GoldenBytes(t *testing.T) {
	root := NewHashTableBuilder()
	require.NoError(t, root.InsertValue("root_key", gvariant.Tuple{
		gvariant.Uint32(1234),
		gvariant.Uint32(98765),
		gvariant.String("TEST_STRING_VALUE"),
	}))

	got, err := NewFileWriter(WithByteOrder(LittleEndian)).WriteToBytes(root)
	require.NoError(t, err)

	// Layout: header(32) | table region[32,84) | key "root_key"[84,92)
	// | pad[92,96) | value[96,122).
	value := concatBytes(
		leU32(1234),
		leU32(98765),
		[]byte("TEST_STRING_VALUE"), []byte{0},
	)
	require.Len(t, value, 26)

	header := concatBytes(
		[]byte("GVariant"),
		leU32(0),    // version/flags
		zeros(8),    // options
		zeros(4),    // padding
		leU32(32),   // root.Start
		leU32(84),   // root.End
	)
	tableRegion := concatBytes(
		leU32(0), leU32(0), leU32(1), leU32(0), // bloom words, shift, n_buckets, reserved
		leU32(0), // bucket_starts[0]
		leU32(referenceDigest("root_key")), // hashValue
		leU32(0xffffffff),                  // parent
		leU32(84),                          // keyStart
		leU16(8), []byte{'v', 0},            // keySize, kind, reserved
		zeros(8),          // reserved
		leU32(96), leU32(122), // value pointer
	)
	expected := concatBytes(header, tableRegion, []byte("root_key"), zeros(4), value)
	require.Equal(t, len(expected), len(got))
	require.Equal(t, expected, got)

	f, err := FromBytes(got, false)
	require.NoError(t, err)
	keys, err := f.HashTable().Keys()
	require.NoError(t, err)
	require.Equal(t, []string{"root_key"}, keys)

	raw, err := f.HashTable().GetValue("root_key")
	require.NoError(t, err)
	u1, err := gvariant.DecodeUint32(raw[0:4], gvariant.LittleEndian)
	require.NoError(t, err)
	u2, err := gvariant.DecodeUint32(raw[4:8], gvariant.LittleEndian)
	require.NoError(t, err)
	s, err := gvariant.DecodeString(raw[8:])
	require.NoError(t, err)
	require.Equal(t, gvariant.Uint32(1234), u1)
	require.Equal(t, gvariant.Uint32(98765), u2)
	require.Equal(t, gvariant.String("TEST_STRING_VALUE"), s)
}

// TestScenarioB_GoldenBytes is spec §8 scenario B: a nested table,
// big-endian, checked both byte-for-byte and via the decoded values.
func TestScenarioB_GoldenBytes(t *testing.T) {
	sub := NewHashTableBuilder()
	require.NoError(t, sub.InsertUint32("int", 42))

	root := NewHashTableBuilder()
	require.NoError(t, root.InsertString("string", "test string"))
	require.NoError(t, root.InsertTable("table", sub))

	got, err := NewFileWriter(WithByteOrder(BigEndian)).WriteToBytes(root)
	require.NoError(t, err)

	// Layout: header(32) | root region[32,116) | sub region[116,168) |
	// keys "string"[168,174) "table"[174,179) "int"[179,182) | pad[182,184)
	// | value "test string\0"[184,196) | pad[196,200) | value 42[200,204).
	header := concatBytes(
		[]byte("tnairaVG"),
		beU32(0),
		zeros(8),
		zeros(4),
		beU32(32), beU32(116),
	)
	rootRegion := concatBytes(
		beU32(0), beU32(0), beU32(1), beU32(0),
		beU32(0), // bucket_starts[0]
		// item 0: "string"
		beU32(referenceDigest("string")), beU32(0xffffffff), beU32(168),
		beU16(6), []byte{'v', 0}, zeros(8), beU32(184), beU32(196),
		// item 1: "table"
		beU32(referenceDigest("table")), beU32(0xffffffff), beU32(174),
		beU16(5), []byte{'L', 0}, zeros(8), beU32(116), beU32(168),
	)
	subRegion := concatBytes(
		beU32(0), beU32(0), beU32(1), beU32(0),
		beU32(0),
		beU32(referenceDigest("int")), beU32(0xffffffff), beU32(179),
		beU16(3), []byte{'v', 0}, zeros(8), beU32(200), beU32(204),
	)
	expected := concatBytes(
		header, rootRegion, subRegion,
		[]byte("string"), []byte("table"), []byte("int"),
		zeros(2), []byte("test string"), []byte{0},
		zeros(4), beU32(42),
	)
	require.Equal(t, len(expected), len(got))
	require.Equal(t, expected, got)

	f, err := FromBytes(got, false)
	require.NoError(t, err)
	require.Equal(t, BigEndian, f.ByteOrder())

	keys, err := f.HashTable().Keys()
	require.NoError(t, err)
	require.Equal(t, []string{"string", "table"}, keys)

	raw, err := f.HashTable().GetValue("string")
	require.NoError(t, err)
	s, err := gvariant.DecodeString(raw)
	require.NoError(t, err)
	require.Equal(t, gvariant.String("test string"), s)

	subTable, err := f.HashTable().GetTable("table")
	require.NoError(t, err)
	raw, err = subTable.GetValue("int")
	require.NoError(t, err)
	u, err := gvariant.DecodeUint32(raw, gvariant.BigEndian)
	require.NoError(t, err)
	require.Equal(t, gvariant.Uint32(42), u)
}

// TestHashTable_BucketAssignmentInvariant is spec §8 property 3: every
// item's flat index falls within its own bucket's [start, end) range,
// and its hash value maps to that same bucket.
func TestHashTable_BucketAssignmentInvariant(t *testing.T) {
	b := NewHashTableBuilder()
	for i := 0; i < 37; i++ {
		require.NoError(t, b.InsertUint32(fmt.Sprintf("key-%02d", i), uint32(i)))
	}
	data, err := NewFileWriter().WriteToBytes(b)
	require.NoError(t, err)

	f, err := FromBytes(data, false)
	require.NoError(t, err)
	ht := f.HashTable()
	require.Greater(t, ht.nBuckets, uint32(1))

	for i, it := range ht.items {
		bucket := it.hashValue % ht.nBuckets
		start, end := ht.bucketRange(bucket)
		require.GreaterOrEqual(t, uint32(i), start, "item %d below its bucket's start", i)
		require.Less(t, uint32(i), end, "item %d at or past its bucket's end", i)
	}
}

// TestFromBytes_TruncatedFileReturnsError is spec §8 scenario C: a
// truncated valid file must error, never panic.
func TestFromBytes_TruncatedFileReturnsError(t *testing.T) {
	b := NewHashTableBuilder()
	require.NoError(t, b.InsertString("k", "a value long enough to push the file well past 128 bytes total"))
	data, err := NewFileWriter().WriteToBytes(b)
	require.NoError(t, err)
	require.Greater(t, len(data), 128)

	_, err = FromBytes(data[:64], false)
	require.Error(t, err)

	_, err = FromBytes(data[:len(data)/2], false)
	require.Error(t, err)
}

// TestFromBytes_RootPointerStartAfterEnd is spec §8 property 4: a
// corrupted root pointer with start > end must error, never panic.
func TestFromBytes_RootPointerStartAfterEnd(t *testing.T) {
	b := NewHashTableBuilder()
	require.NoError(t, b.InsertString("k", "v"))
	data, err := NewFileWriter().WriteToBytes(b)
	require.NoError(t, err)

	corrupt := append([]byte(nil), data...)
	LittleEndian.PutUint32(corrupt[28:32], 0) // root.End, now < root.Start
	_, err = FromBytes(corrupt, false)
	require.Error(t, err)
	var ipe *InvalidPointerError
	require.ErrorAs(t, err, &ipe)
}

// TestFromBytes_RootPointerEndPastEOF is spec §8 property 4: a root
// pointer reaching past EOF must error, never panic.
func TestFromBytes_RootPointerEndPastEOF(t *testing.T) {
	b := NewHashTableBuilder()
	require.NoError(t, b.InsertString("k", "v"))
	data, err := NewFileWriter().WriteToBytes(b)
	require.NoError(t, err)

	corrupt := append([]byte(nil), data...)
	LittleEndian.PutUint32(corrupt[28:32], uint32(len(data))+4096)
	_, err = FromBytes(corrupt, false)
	require.Error(t, err)
	var ipe *InvalidPointerError
	require.ErrorAs(t, err, &ipe)
}

// TestFromBytes_SwappedEndiannessIsRejected is spec §8 property 4's
// "swapped endianness" case: the header claims a byte order that
// contradicts how the body was actually encoded. The root pointer, read
// in the wrong byte order, lands far outside the file and must be caught
// as an error, never trusted.
func TestFromBytes_SwappedEndiannessIsRejected(t *testing.T) {
	b := NewHashTableBuilder()
	for i := 0; i < 5; i++ {
		require.NoError(t, b.InsertUint32(fmt.Sprintf("k%d", i), uint32(i)))
	}
	data, err := NewFileWriter(WithByteOrder(BigEndian)).WriteToBytes(b)
	require.NoError(t, err)

	corrupt := append([]byte(nil), data...)
	copy(corrupt[0:8], magicLittleEndian[:])

	_, err = FromBytes(corrupt, false)
	require.Error(t, err)
}

// TestNewHashTable_RejectsInvalidTypeByte is spec §8 property 4: an
// item with a type byte other than 'v', 'L', or 'H' must error.
func TestNewHashTable_RejectsInvalidTypeByte(t *testing.T) {
	bo := LittleEndian
	key := []byte("k")
	regionStart := uint32(HeaderSize)
	regionEnd := regionStart + tableHeaderSize + 4 + itemSize
	keyStart := regionEnd

	it := item{
		hashValue: DigestString("k"),
		parent:    parentRoot,
		keyStart:  keyStart,
		keySize:   uint16(len(key)),
		kind:      'X',
	}
	itemBuf := make([]byte, itemSize)
	encodeItem(itemBuf, it, bo)

	tableHeader := make([]byte, tableHeaderSize)
	bo.PutUint32(tableHeader[8:12], 1)
	bucketArray := make([]byte, 4)
	bo.PutUint32(bucketArray, 0)

	hdr := header{byteOrder: bo, root: Pointer{Start: regionStart, End: regionEnd}}
	hdrBuf := make([]byte, HeaderSize)
	hdr.encode(hdrBuf)

	data := concatBytes(hdrBuf, tableHeader, bucketArray, itemBuf, key)

	_, err := FromBytes(data, false)
	require.Error(t, err)
	var de *DataError
	require.ErrorAs(t, err, &de)
}

// TestNewHashTable_RejectsCyclicParentChain is spec §8 property 4: two
// items whose parent fields point to each other must be rejected, not
// followed into an infinite loop.
func TestNewHashTable_RejectsCyclicParentChain(t *testing.T) {
	bo := LittleEndian
	items := []item{
		{hashValue: 0, parent: 1, kind: typeValue},
		{hashValue: 0, parent: 0, kind: typeValue},
	}
	itemsBuf := make([]byte, itemSize*len(items))
	for i, it := range items {
		encodeItem(itemsBuf[i*itemSize:(i+1)*itemSize], it, bo)
	}
	tableHeader := make([]byte, tableHeaderSize)
	bo.PutUint32(tableHeader[8:12], 1)
	bucketArray := make([]byte, 4)
	bo.PutUint32(bucketArray, 0)

	regionStart := uint32(HeaderSize)
	regionEnd := regionStart + uint32(len(tableHeader)+len(bucketArray)+len(itemsBuf))
	hdr := header{byteOrder: bo, root: Pointer{Start: regionStart, End: regionEnd}}
	hdrBuf := make([]byte, HeaderSize)
	hdr.encode(hdrBuf)

	data := concatBytes(hdrBuf, tableHeader, bucketArray, itemsBuf)

	_, err := FromBytes(data, false)
	require.Error(t, err)
	var de *DataError
	require.ErrorAs(t, err, &de)
	require.Contains(t, err.Error(), "cyclic")
}

// TestFromBytes_FuzzNoPanic is spec §8 scenario F: random byte inputs
// must always return Ok or Err, never panic or read out of bounds.
func TestFromBytes_FuzzNoPanic(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		n := rng.Intn(4096)
		buf := make([]byte, n)
		rng.Read(buf)
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("FromBytes panicked on random input (len=%d): %v", n, r)
				}
			}()
			_, _ = FromBytes(buf, false)
		}()
	}
}

// TestFromBytesRange_EmbeddedInLargerBuffer exercises NewSectionSource
// via FromBytesRange: a GVDB file embedded inside a larger buffer,
// parsed without copying the surrounding bytes out first.
func TestFromBytesRange_EmbeddedInLargerBuffer(t *testing.T) {
	b := NewHashTableBuilder()
	require.NoError(t, b.InsertString("k", "embedded"))
	inner, err := NewFileWriter().WriteToBytes(b)
	require.NoError(t, err)

	prefix := []byte("JUNK-HEADER-BEFORE-")
	suffix := []byte("-TRAILING-JUNK")
	combined := concatBytes(prefix, inner, suffix)

	f, err := FromBytesRange(combined, len(prefix), len(prefix)+len(inner), false)
	require.NoError(t, err)

	raw, err := f.HashTable().GetValue("k")
	require.NoError(t, err)
	s, err := gvariant.DecodeString(raw)
	require.NoError(t, err)
	require.Equal(t, gvariant.String("embedded"), s)
}

func TestFromFileMmap_RoundTrip(t *testing.T) {
	b := NewHashTableBuilder()
	require.NoError(t, b.InsertString("k", "v"))
	data, err := NewFileWriter().WriteToBytes(b)
	require.NoError(t, err)

	path := t.TempDir() + "/test.gvdb"
	require.NoError(t, os.WriteFile(path, data, 0o600))

	f, err := FromFileMmap(path)
	require.NoError(t, err)
	defer f.Close()

	raw, err := f.HashTable().GetValue("k")
	require.NoError(t, err)
	s, err := gvariant.DecodeString(raw)
	require.NoError(t, err)
	require.Equal(t, gvariant.String("v"), s)
}
