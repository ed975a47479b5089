//go:build unix

package types

import (
	"os"
	"syscall"
)

// FromStat creates a FileInfo from an lstat result and its path.
func FromStat(path string, info os.FileInfo) *FileInfo {
	stat := info.Sys().(*syscall.Stat_t)
	return &FileInfo{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Dev:     uint64(stat.Dev), //nolint:unconvert // platform-dependent type
		Ino:     stat.Ino,
		Nlink:   uint64(stat.Nlink), //nolint:unconvert // platform-dependent type
		Mode:    uint32(stat.Mode),  //nolint:unconvert // platform-dependent type
		Uid:     stat.Uid,
		Gid:     stat.Gid,
	}
}
