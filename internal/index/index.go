// Package index groups discovered files into buckets by a coarse size/mtime hash.
//
// # Overview
//
// The index limits expensive comparisons to plausible candidates. A bucket key is
// derived from the file size, optionally XORed with the modification time, and
// masked into [0, MaxHashes). Unrelated files routinely share a key: collisions
// are resolved by the linear eligibility and content scan in the matcher, never
// by the key itself.
//
//	size, mtime ──► (size ^ mtime) & (MaxHashes-1) ──► Key ──► Bucket [f1, f2, ...]
//
// Buckets keep insertion order, which is traversal order. The matcher relies on
// this for first-fit merge target selection.
package index

import "github.com/ivoronin/linkdog/internal/types"

// MaxHashes is the number of distinct bucket keys. Must be a power of two so
// that masking with MaxHashes-1 is equivalent to modulo.
const MaxHashes = 128 * 1024

// Key identifies a bucket. Always in [0, MaxHashes).
type Key uint32

// Hash computes the bucket key for a file.
// With sizeOnly set (timestamps ignored or content-only matching) the key depends
// on size alone, so files differing only in mtime land in the same bucket.
func Hash(size, mtime int64, sizeOnly bool) Key {
	if sizeOnly {
		return Key(uint64(size) & (MaxHashes - 1))
	}
	return Key(uint64(size^mtime) & (MaxHashes - 1))
}

// Bucket is an ordered sequence of records sharing a Key.
type Bucket []*types.FileInfo

// Index maps bucket keys to buckets. It is not safe for concurrent use.
type Index struct {
	buckets map[Key]Bucket
	records int
}

// New creates an empty Index.
func New() *Index {
	return &Index{buckets: make(map[Key]Bucket)}
}

// Lookup returns the bucket for key and whether it exists.
func (ix *Index) Lookup(key Key) (Bucket, bool) {
	b, ok := ix.buckets[key]
	return b, ok
}

// Insert appends f to the bucket for key, creating the bucket if needed.
func (ix *Index) Insert(key Key, f *types.FileInfo) {
	ix.buckets[key] = append(ix.buckets[key], f)
	ix.records++
}

// Buckets returns the number of non-empty buckets.
func (ix *Index) Buckets() int { return len(ix.buckets) }

// Records returns the total number of records held across all buckets.
func (ix *Index) Records() int { return ix.records }
