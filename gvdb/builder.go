package gvdb

import (
	"fmt"

	"github.com/gvdbfs/gvdb/gvariant"
)

type pendingKind int

const (
	pendingValue pendingKind = iota
	pendingTable
)

// pendingItem is one not-yet-laid-out entry in a HashTableBuilder. Value
// items carry either a gvariant.Value (serialized lazily, once
// FileWriter knows the target byte order) or raw pre-serialized bytes
// from InsertBytes.
type pendingItem struct {
	kind      pendingKind
	signature string
	value     gvariant.Value
	bytes     []byte
	table     *HashTableBuilder
}

// HashTableBuilder accumulates pending inserts for one hash-table region
// (the root table, or any nested 'L' sub-table) keyed by full string
// key. It owns no byte-order choice and performs no layout itself — that
// is FileWriter's job (spec §4.5 step 1: "Builder owns pending items,
// Writer computes layout").
type HashTableBuilder struct {
	order []string
	items map[string]pendingItem
}

// NewHashTableBuilder returns an empty builder.
func NewHashTableBuilder() *HashTableBuilder {
	return &HashTableBuilder{items: make(map[string]pendingItem)}
}

func (b *HashTableBuilder) insert(key string, it pendingItem) error {
	if _, exists := b.items[key]; exists {
		return fmt.Errorf("%w: key %q inserted twice", ErrConsistency, key)
	}
	b.order = append(b.order, key)
	b.items[key] = it
	return nil
}

// InsertValue stores v under key as a 'v' item. Serialization is
// deferred to FileWriter, which knows the target byte order; this keeps
// HashTableBuilder itself byte-order agnostic (spec §4.5: "Endianness is
// chosen at FileWriter construction").
func (b *HashTableBuilder) InsertValue(key string, v gvariant.Value) error {
	return b.insert(key, pendingItem{kind: pendingValue, signature: v.Signature(), value: v})
}

// InsertBytes stores pre-serialized bytes under key as a 'v' item, with
// sig recorded purely as an in-memory annotation (GVDB items carry no
// signature field on disk).
func (b *HashTableBuilder) InsertBytes(key, sig string, data []byte) error {
	return b.insert(key, pendingItem{kind: pendingValue, signature: sig, bytes: append([]byte(nil), data...)})
}

// InsertString is a convenience wrapper over InsertValue for GVariant "s".
func (b *HashTableBuilder) InsertString(key, s string) error {
	return b.InsertValue(key, gvariant.String(s))
}

// InsertUint32 is a convenience wrapper over InsertValue for GVariant "u".
func (b *HashTableBuilder) InsertUint32(key string, v uint32) error {
	return b.InsertValue(key, gvariant.Uint32(v))
}

// InsertStringArray is a convenience wrapper over InsertValue for
// GVariant "as", used directly by BundleBuilder for directory listings.
func (b *HashTableBuilder) InsertStringArray(key string, vs []string) error {
	return b.InsertValue(key, gvariant.StringArray(vs))
}

// InsertTable stores sub as a nested 'L' sub-table under key.
func (b *HashTableBuilder) InsertTable(key string, sub *HashTableBuilder) error {
	return b.insert(key, pendingItem{kind: pendingTable, table: sub})
}

// Remove deletes key, reporting whether it was present.
func (b *HashTableBuilder) Remove(key string) bool {
	if _, ok := b.items[key]; !ok {
		return false
	}
	delete(b.items, key)
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether key has a pending insert.
func (b *HashTableBuilder) Contains(key string) bool {
	_, ok := b.items[key]
	return ok
}

// Len reports the number of directly-inserted (non-synthetic) items.
func (b *HashTableBuilder) Len() int { return len(b.order) }

// gvariantByteOrder translates this package's ByteOrder into
// gvariant's own independent enum at the one boundary where a
// gvariant.Value actually gets marshaled.
func gvariantByteOrder(bo ByteOrder) gvariant.ByteOrder {
	if bo == BigEndian {
		return gvariant.BigEndian
	}
	return gvariant.LittleEndian
}
