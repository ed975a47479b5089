// Package types provides shared types used across the linkdog codebase.
package types

import (
	"cmp"
	"path/filepath"
	"slices"
	"time"
)

// FileInfo holds the metadata snapshot captured for a regular file at discovery time.
// It is never refreshed; the replacer re-stats paths itself before mutating them.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
	Dev     uint64
	Ino     uint64
	Nlink   uint64
	Mode    uint32 // Permission and type bits (st_mode)
	Uid     uint32
	Gid     uint32
}

// Mtime returns the modification time truncated to whole seconds.
func (f *FileInfo) Mtime() int64 { return f.ModTime.Unix() }

// Base returns the final path element.
func (f *FileInfo) Base() string { return filepath.Base(f.Path) }

// SameInode reports whether both records refer to the same dev+ino pair.
func (f *FileInfo) SameInode(o *FileInfo) bool {
	return f.Ino == o.Ino && f.Dev == o.Dev
}

// Sorted is an ordered collection that maintains sort order by a key function.
// T is the element type, K is the comparable key type.
// Once constructed, items are guaranteed to be sorted by key.
type Sorted[T any, K cmp.Ordered] struct {
	items   []T
	keyFunc func(T) K
}

// NewSorted creates a sorted collection from items using keyFunc for ordering.
// Items are copied and sorted at construction time. The sort is stable, so items
// with equal keys keep their input order.
func NewSorted[T any, K cmp.Ordered](items []T, keyFunc func(T) K) Sorted[T, K] {
	sorted := make([]T, len(items))
	copy(sorted, items)
	slices.SortStableFunc(sorted, func(a, b T) int {
		return cmp.Compare(keyFunc(a), keyFunc(b))
	})
	return Sorted[T, K]{items: sorted, keyFunc: keyFunc}
}

// Items returns the sorted items.
func (s Sorted[T, K]) Items() []T { return s.items }

// Len returns the number of items.
func (s Sorted[T, K]) Len() int { return len(s.items) }

// LinkGroup is a set of paths found to already share one inode, keyed by the
// path of the record that represents the inode in the bucket index.
type LinkGroup struct {
	Source string
	Size   int64
	Dests  []string
}

// LinkGroups contains link groups sorted by source path.
type LinkGroups = Sorted[*LinkGroup, string]

// NewLinkGroups creates LinkGroups sorted by source path.
func NewLinkGroups(groups []*LinkGroup) LinkGroups {
	return NewSorted(groups, func(g *LinkGroup) string { return g.Source })
}

// LinkPair records one merge performed this run.
type LinkPair struct {
	Source string
	Dest   string
	Size   int64
}
