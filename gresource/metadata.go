package gresource

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	bin "github.com/gagliardetto/binary"
)

// metadataKey is the reserved GVDB key a bundle's Metadata is stored
// under, outside the "/"-rooted virtual file namespace so it can never
// collide with a real resource path.
const metadataKey = "__gresource_metadata__"

const (
	maxMetaEntries = 255
	maxMetaKeySize = 255
	maxMetaValSize = 255
)

// Metadata is a small ordered list of byte-string key/value pairs
// attached to a bundle as a whole — build tool identity, a source
// manifest checksum, a generation timestamp — adapted from
// indexmeta.Meta's length-prefixed encoding (one byte count, then
// length-prefixed key/value pairs), since a GResource bundle benefits
// from the same kind of small self-describing sidecar an index file
// does.
type Metadata struct {
	entries []MetaKV
}

// MetaKV is one metadata key/value pair.
type MetaKV struct {
	Key   []byte
	Value []byte
}

// Add appends a key/value pair. Keys are not required to be unique;
// Get returns the first match.
func (m *Metadata) Add(key, value []byte) error {
	if len(m.entries) >= maxMetaEntries {
		return fmt.Errorf("gresource: metadata entry count %d exceeds max %d", len(m.entries)+1, maxMetaEntries)
	}
	if len(key) > maxMetaKeySize {
		return fmt.Errorf("gresource: metadata key size %d exceeds max %d", len(key), maxMetaKeySize)
	}
	if len(value) > maxMetaValSize {
		return fmt.Errorf("gresource: metadata value size %d exceeds max %d", len(value), maxMetaValSize)
	}
	m.entries = append(m.entries, MetaKV{Key: cloneBytes(key), Value: cloneBytes(value)})
	return nil
}

// AddString is Add for a UTF-8 string value.
func (m *Metadata) AddString(key []byte, value string) error {
	return m.Add(key, []byte(value))
}

// AddUint64 is Add for a little-endian-encoded uint64 value.
func (m *Metadata) AddUint64(key []byte, value uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)
	return m.Add(key, buf)
}

// Get returns the first value stored for key.
func (m Metadata) Get(key []byte) ([]byte, bool) {
	for _, kv := range m.entries {
		if bytes.Equal(kv.Key, key) {
			return kv.Value, true
		}
	}
	return nil, false
}

// GetString is Get decoded as a UTF-8 string.
func (m Metadata) GetString(key []byte) (string, bool) {
	v, ok := m.Get(key)
	if !ok {
		return "", false
	}
	return string(v), true
}

// GetUint64 is Get decoded as a little-endian uint64.
func (m Metadata) GetUint64(key []byte) (uint64, bool) {
	v, ok := m.Get(key)
	if !ok || len(v) != 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(v), true
}

func cloneBytes(b []byte) []byte { return append([]byte(nil), b...) }

// marshalMetadata encodes m the way indexmeta.Meta.MarshalBinary does:
// one byte count, then for each entry a length-prefixed key followed by
// a length-prefixed value.
func marshalMetadata(m *Metadata) ([]byte, error) {
	if len(m.entries) > maxMetaEntries {
		return nil, fmt.Errorf("gresource: metadata entry count %d exceeds max %d", len(m.entries), maxMetaEntries)
	}
	var buf bytes.Buffer
	buf.WriteByte(byte(len(m.entries)))
	for _, kv := range m.entries {
		buf.WriteByte(byte(len(kv.Key)))
		buf.Write(kv.Key)
		buf.WriteByte(byte(len(kv.Value)))
		buf.Write(kv.Value)
	}
	return buf.Bytes(), nil
}

// unmarshalMetadata decodes the layout marshalMetadata writes, via
// gagliardetto/binary's Borsh decoder for the length-prefixed reads
// (mirroring indexmeta.Meta.UnmarshalWithDecoder).
func unmarshalMetadata(data []byte) (*Metadata, error) {
	m := &Metadata{}
	if len(data) == 0 {
		return m, nil
	}
	dec := bin.NewBorshDecoder(data)
	n, err := dec.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("gresource: metadata entry count: %w", err)
	}
	for i := 0; i < int(n); i++ {
		key, err := readMetaField(dec)
		if err != nil {
			return nil, fmt.Errorf("gresource: metadata key %d: %w", i, err)
		}
		value, err := readMetaField(dec)
		if err != nil {
			return nil, fmt.Errorf("gresource: metadata value %d: %w", i, err)
		}
		m.entries = append(m.entries, MetaKV{Key: key, Value: value})
	}
	return m, nil
}

func readMetaField(dec interface {
	io.ByteReader
	io.Reader
}) ([]byte, error) {
	size, err := dec.ReadByte()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(dec, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
