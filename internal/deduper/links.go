//go:build unix

package deduper

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ivoronin/linkdog/internal/types"
)

const (
	// TempSuffix is appended to a destination path while it is being replaced.
	TempSuffix = ".$$$___cleanit___$$$"

	// orphanedTmpMaxAge is the minimum age for a leftover temp file to be considered orphaned.
	// Files younger than this are assumed to be from an active operation.
	orphanedTmpMaxAge = 1 * time.Minute
)

// TempName returns the reserved temporary sibling name for target.
func TempName(target string) string {
	return target + TempSuffix
}

// FS is the filesystem surface mutated by the replacer.
type FS interface {
	Rename(oldpath, newpath string) error
	Link(oldname, newname string) error
	Remove(name string) error
	Lstat(name string) (os.FileInfo, error)
}

// OSFS implements FS with the os package.
type OSFS struct{}

func (OSFS) Rename(oldpath, newpath string) error   { return os.Rename(oldpath, newpath) }
func (OSFS) Link(oldname, newname string) error     { return os.Link(oldname, newname) }
func (OSFS) Remove(name string) error               { return os.Remove(name) }
func (OSFS) Lstat(name string) (os.FileInfo, error) { return os.Lstat(name) }

// lockTarget opens path and takes an exclusive non-blocking advisory lock.
// The lock is released when the returned file is closed.
func lockTarget(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrInUse
		}
		return nil, err
	}
	return f, nil
}

// checkUnchanged verifies that rec.Path still refers to the scanned inode with
// the scanned size and mtime.
func checkUnchanged(fsys FS, rec *types.FileInfo) error {
	info, err := fsys.Lstat(rec.Path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrChanged, err)
	}
	cur := types.FromStat(rec.Path, info)
	switch {
	case !cur.SameInode(rec):
		return fmt.Errorf("%w: %s now refers to another inode", ErrChanged, rec.Path)
	case cur.Size != rec.Size:
		return fmt.Errorf("%w: %s size is now %d", ErrChanged, rec.Path, cur.Size)
	case !cur.ModTime.Equal(rec.ModTime):
		return fmt.Errorf("%w: %s modified since scan", ErrChanged, rec.Path)
	}
	return nil
}

// tryCleanupOrphanedTmp attempts to clean up an orphaned temp file.
// Returns nil if successfully removed, or an error explaining why cleanup was skipped/failed.
//
// Safety criteria (ALL must be met):
// 1. File is older than maxAge (protects against race with active operations)
// 2. File is a symlink OR regular file with nlink > 1 (protects against data loss)
//
// If nlink == 1, the file is NOT deleted as it may be the only copy of data.
func tryCleanupOrphanedTmp(fsys FS, path string, maxAge time.Duration) error {
	info, err := fsys.Lstat(path)
	if err != nil {
		return fmt.Errorf("lstat: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	if info.ModTime().After(cutoff) {
		return fmt.Errorf("file too recent (mtime %v, cutoff %v)", info.ModTime(), cutoff)
	}

	mode := info.Mode()
	if mode&os.ModeSymlink != 0 {
		return fsys.Remove(path)
	}
	if !mode.IsRegular() {
		return fmt.Errorf("not a regular file or symlink (mode %v)", mode)
	}

	nlink, ok := linkCount(info)
	if !ok {
		return fmt.Errorf("cannot determine link count")
	}
	// If nlink == 1 this IS the only copy
	if nlink <= 1 {
		return fmt.Errorf("nlink=%d, may be only copy of data", nlink)
	}

	return fsys.Remove(path)
}

// linkCount extracts st_nlink from a FileInfo.
func linkCount(info os.FileInfo) (uint64, bool) {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return uint64(st.Nlink), true //nolint:unconvert // platform-dependent type
	}
	return 0, false
}
