// Package screener decides, from metadata alone, whether two files may be merged.
//
// # Overview
//
// The screener is the cheap gate in front of the content comparator. It never
// performs I/O: both records were captured by the scanner.
//
//	a, b *types.FileInfo
//	    │
//	    ├──► same dev+ino?            → not eligible (already one file)
//	    ├──► size equal, >= min size? → else not eligible
//	    ├──► same device?             → else not eligible (links cannot span filesystems)
//	    ├──► mode, uid, gid equal?    → skipped with content-only
//	    └──► mtime equal?             → skipped with content-only or ignore-timestamp
//
// # Why This Design?
//
//   - Metadata checks are O(1) and reject most bucket collisions
//   - Ownership and mode are part of the inode, so merging files that differ in
//     them would silently change one path's attributes
package screener

import (
	"github.com/ivoronin/linkdog/internal/config"
	"github.com/ivoronin/linkdog/internal/types"
)

// AlreadyLinked reports whether a and b are the same inode on the same device.
func AlreadyLinked(a, b *types.FileInfo) bool {
	return a.SameInode(b)
}

// Eligible reports whether a and b pass every metadata precondition for merging
// under policy p.
func Eligible(a, b *types.FileInfo, p config.Policy) bool {
	if AlreadyLinked(a, b) {
		return false
	}
	if a.Size != b.Size || a.Size < p.MinSize || a.Size == 0 {
		return false
	}
	if a.Dev != b.Dev {
		return false
	}
	if p.ContentOnly {
		return true
	}
	if a.Mode != b.Mode || a.Uid != b.Uid || a.Gid != b.Gid {
		return false
	}
	if p.IgnoreTimestamp {
		return true
	}
	return a.Mtime() == b.Mtime()
}
