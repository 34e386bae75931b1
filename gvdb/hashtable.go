package gvdb

import (
	"fmt"

	"github.com/gvdbfs/gvdb/internal/presence"
)

// tableHeaderSize is the size of the 16-byte header preceding the bloom
// filter, bucket array, and item array within a hash-table region.
//
//	nBloomWords uint32
//	bloomShift  uint32
//	nBuckets    uint32
//	_           uint32 // reserved, zero
const tableHeaderSize = 16

// HashTable is a validated, read-only view over one hash-table region of
// a GVDB file (the root table, or a nested 'L' sub-table). It borrows
// from whatever byteSource backs the File it came from and must not
// outlive it.
type HashTable struct {
	src      byteSource // the whole file; item key/value pointers are absolute offsets into it
	bo       ByteOrder
	nBuckets uint32
	region   []byte // this table's own region, read once at construction
	bucketsOff int
	items      []item
}

func newHashTable(src byteSource, regionStart, regionEnd int64, bo ByteOrder) (*HashTable, error) {
	region, err := readRange(src, regionStart, regionEnd, "hash table region")
	if err != nil {
		return nil, err
	}
	if len(region) < tableHeaderSize {
		return nil, dataErrorf("hash table region too short: %d bytes", len(region))
	}
	nBloom := bo.Uint32(region[0:4])
	nBuckets := bo.Uint32(region[8:12])
	if nBuckets == 0 {
		return nil, dataErrorf("hash table has zero buckets")
	}

	bucketsOff := tableHeaderSize + int(nBloom)*4
	itemsOff := bucketsOff + int(nBuckets)*4
	if itemsOff > len(region) {
		return nil, dataErrorf("hash table bucket array overruns region")
	}
	remaining := len(region) - itemsOff
	if remaining%itemSize != 0 {
		return nil, dataErrorf("hash table item array is not a whole number of items")
	}
	nItems := uint32(remaining / itemSize)

	// Invariant 3: bucket index array is monotone non-decreasing and
	// bounded by nItems.
	starts := make([]uint32, nBuckets+1)
	for b := uint32(0); b < nBuckets; b++ {
		off := bucketsOff + int(b)*4
		starts[b] = bo.Uint32(region[off : off+4])
	}
	starts[nBuckets] = nItems
	for b := uint32(0); b < nBuckets; b++ {
		if starts[b] > starts[b+1] {
			return nil, dataErrorf("bucket array is not monotone non-decreasing at bucket %d", b)
		}
	}

	items := make([]item, nItems)
	for i := uint32(0); i < nItems; i++ {
		off := itemsOff + int(i)*itemSize
		it := decodeItem(region[off:off+itemSize], bo)
		switch it.kind {
		case typeValue, typeTable, typeDir:
		default:
			return nil, dataErrorf("item %d has invalid type byte %q", i, it.kind)
		}
		items[i] = it
	}

	// Invariant 4: each item belongs to the bucket its hash says it does.
	for b := uint32(0); b < nBuckets; b++ {
		for i := starts[b]; i < starts[b+1]; i++ {
			if items[i].hashValue%nBuckets != b {
				return nil, dataErrorf("item %d stored in bucket %d but hashes to bucket %d", i, b, items[i].hashValue%nBuckets)
			}
		}
	}

	// Invariant 2: parent chains are in-range and acyclic.
	for i := range items {
		if err := checkAcyclic(items, uint32(i)); err != nil {
			return nil, err
		}
	}

	return &HashTable{
		src:        src,
		bo:         bo,
		nBuckets:   nBuckets,
		region:     region,
		bucketsOff: bucketsOff,
		items:      items,
	}, nil
}

func checkAcyclic(items []item, start uint32) error {
	slow, fast := start, start
	for {
		var err error
		fast, err = stepParent(items, fast)
		if err != nil {
			return err
		}
		if fast == parentRoot {
			return nil
		}
		fast, err = stepParent(items, fast)
		if err != nil {
			return err
		}
		if fast == parentRoot {
			return nil
		}
		slow, _ = stepParent(items, slow)
		if slow == fast {
			return dataErrorf("cyclic parent chain detected starting at item %d", start)
		}
	}
}

func stepParent(items []item, i uint32) (uint32, error) {
	if i == parentRoot {
		return parentRoot, nil
	}
	if int(i) >= len(items) {
		return 0, dataErrorf("parent index %d out of range (%d items)", i, len(items))
	}
	return items[i].parent, nil
}

// keySuffix returns the raw key-suffix bytes stored for an item, read
// from the file region that backs the whole table (key offsets are
// absolute file offsets, per spec §3).
func (h *HashTable) keySuffix(it item) ([]byte, error) {
	p := Pointer{Start: it.keyStart, End: it.keyStart + uint32(it.keySize)}
	return deref(h.src, p, 1, "item key")
}

// fullKey reconstructs the complete key for item index i by walking the
// parent chain and concatenating suffixes root-to-leaf.
func (h *HashTable) fullKey(idx uint32) (string, error) {
	var chain []uint32
	for idx != parentRoot {
		chain = append(chain, idx)
		idx = h.items[idx].parent
	}
	// chain is leaf-to-root; reverse to root-to-leaf.
	var buf []byte
	for i := len(chain) - 1; i >= 0; i-- {
		suf, err := h.keySuffix(h.items[chain[i]])
		if err != nil {
			return "", err
		}
		buf = append(buf, suf...)
	}
	return string(buf), nil
}

// Keys returns the full key of every item in the table, in on-disk item
// order (stable across reads of the same file, per spec §4.2).
func (h *HashTable) Keys() ([]string, error) {
	keys := make([]string, len(h.items))
	for i := range h.items {
		k, err := h.fullKey(uint32(i))
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}
	return keys, nil
}

// bucketRange returns [start, end) item indices for bucket b.
func (h *HashTable) bucketRange(b uint32) (uint32, uint32) {
	off := h.bucketsOff + int(b)*4
	start := h.bo.Uint32(h.region[off : off+4])
	var end uint32
	if b+1 < h.nBuckets {
		end = h.bo.Uint32(h.region[off+4 : off+8])
	} else {
		end = uint32(len(h.items))
	}
	return start, end
}

// Lookup finds the item for key, or ErrKeyNotFound (wrapped, with the
// key attached) if none exists. An item's hash covers only its key
// suffix, so the whole key is probed first and then every tail of it
// that follows a '/'.
func (h *HashTable) Lookup(key string) (*item, uint32, error) {
	for cut := -1; cut < len(key)-1; cut++ {
		if cut >= 0 && key[cut] != '/' {
			continue
		}
		hv := DigestString(key[cut+1:])
		start, end := h.bucketRange(hv % h.nBuckets)
		for i := start; i < end; i++ {
			if h.items[i].hashValue != hv {
				continue
			}
			full, err := h.fullKey(i)
			if err != nil {
				return nil, 0, err
			}
			if full == key {
				it := h.items[i]
				return &it, i, nil
			}
		}
	}
	return nil, 0, errKeyNotFound(key)
}

// GetValue looks up key, requires it be a value item ('v'), and returns
// the raw GVariant-encoded bytes its value pointer denotes.
func (h *HashTable) GetValue(key string) ([]byte, error) {
	it, _, err := h.Lookup(key)
	if err != nil {
		return nil, err
	}
	if it.kind != typeValue {
		return nil, dataErrorf("key %q is not a value item (type %q)", key, it.kind)
	}
	return deref(h.src, it.value, 1, "item value")
}

// GetTable looks up key, requires it be a sub-table item ('L'), and
// constructs a nested HashTable view over the region it points to.
func (h *HashTable) GetTable(key string) (*HashTable, error) {
	it, _, err := h.Lookup(key)
	if err != nil {
		return nil, err
	}
	if it.kind != typeTable {
		return nil, dataErrorf("key %q is not a sub-table item (type %q)", key, it.kind)
	}
	if it.value.Start > it.value.End || it.value.Start%4 != 0 {
		return nil, errInvalidPointer("sub-table region", it.value.Start, it.value.End)
	}
	return newHashTable(h.src, int64(it.value.Start), int64(it.value.End), h.bo)
}

// ByteOrder reports the byte order items and pointers in this table are
// decoded with.
func (h *HashTable) ByteOrder() ByteOrder { return h.bo }

// BuildPresenceIndex hashes every item's hashValue into a presence.Index
// so repeated MayContain calls against this table (e.g. probing many
// candidate GResource paths against one bundle) can skip the full
// Lookup walk for keys that are certainly absent. The index is built
// from on-disk hash values already computed at parse time, not from the
// keys themselves, so it costs one pass over h.items and no string
// materialization.
func (h *HashTable) BuildPresenceIndex() *presence.Index {
	fps := make([]uint64, len(h.items))
	for i, it := range h.items {
		fps[i] = uint64(it.hashValue)
	}
	return presence.Build(fps)
}

// MayContain reports whether key could be present in h according to
// idx. false is authoritative (Lookup would also miss); true still
// requires a Lookup to confirm, since idx indexes bucket hash values,
// which collide across distinct keys far more often than a wider
// fingerprint would.
func (h *HashTable) MayContain(key string, idx *presence.Index) bool {
	for cut := -1; cut < len(key)-1; cut++ {
		if cut >= 0 && key[cut] != '/' {
			continue
		}
		if idx.Contains(uint64(DigestString(key[cut+1:]))) {
			return true
		}
	}
	return false
}

func (h *HashTable) String() string {
	return fmt.Sprintf("HashTable{buckets=%d items=%d}", h.nBuckets, len(h.items))
}
