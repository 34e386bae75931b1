// Package presence is a cache-friendly exact-membership index over a
// fixed set of 64-bit fingerprints, adapted from bucketteer's sorted
// Eytzinger layout (bucketteer.go's sortWithCompare/eytzinger) but
// dropping its two-level 16-bit bucket prefix: a HashTable's item count
// is small enough (one file, one region) that a single flat Eytzinger
// array is already branch-predictable without it.
//
// HashTable uses this to let a caller skip an on-disk Lookup for a key
// it can already tell isn't present, the in-memory equivalent of GVDB's
// on-disk (currently unpopulated) bloom filter words.
package presence

import "sort"

// Index answers MayContain for a fixed set of fingerprints built once
// via Build.
type Index struct {
	sorted []uint64
}

// Build lays fingerprints out in Eytzinger order after sorting, so
// Contains' binary search visits cache lines in traversal order instead
// of jumping across the whole backing array.
func Build(fingerprints []uint64) *Index {
	a := append([]uint64(nil), fingerprints...)
	sort.Slice(a, func(i, j int) bool { return a[i] < a[j] })
	out := make([]uint64, len(a))
	eytzinger(a, out, 0, 1)
	return &Index{sorted: out}
}

func eytzinger(in, out []uint64, i, k int) int {
	if k <= len(in) {
		i = eytzinger(in, out, i, 2*k)
		out[k-1] = in[i]
		i++
		i = eytzinger(in, out, i, 2*k+1)
	}
	return i
}

// Contains reports whether fp was one of the fingerprints Build saw.
// A false positive is impossible; a false negative is impossible too,
// since this indexes an exact fingerprint set rather than a classic
// probabilistic bloom filter.
func (idx *Index) Contains(fp uint64) bool {
	k := 1
	n := len(idx.sorted)
	for k <= n {
		v := idx.sorted[k-1]
		switch {
		case v == fp:
			return true
		case fp < v:
			k = 2 * k
		default:
			k = 2*k + 1
		}
	}
	return false
}
