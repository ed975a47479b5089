//go:build unix

package testfs

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/ivoronin/linkdog/internal/deduper"
)

// -----------------------------------------------------------------------------
// Reap Operations - Capture filesystem state
// -----------------------------------------------------------------------------

// ReapPaths captures the filesystem state for the given paths.
//
// Each path becomes a ReapVolume with files grouped by (device, inode) and
// symlinks captured with their targets. Nested mounts are walked too, so the
// device is part of the grouping key: inode numbers are only unique per device.
//
// The root parameter specifies the base directory to subtract from paths.
// For E2E tests, root is "" or "/" so paths are used as-is.
// For integration tests, root is t.TempDir() so logical paths are computed.
func ReapPaths(root string, paths []string) (*ReapResult, error) {
	result := &ReapResult{}

	for _, path := range paths {
		actualPath := path
		if root != "" && root != "/" {
			actualPath = filepath.Join(root, path)
		}

		vol, err := reapPath(actualPath, path)
		if err != nil {
			return nil, fmt.Errorf("reap %s: %w", path, err)
		}
		result.Volumes = append(result.Volumes, vol)
	}

	return result, nil
}

// ReapToWriter captures filesystem state and writes JSON to the writer.
// Used by testfs-helper CLI tool to write to stdout.
func ReapToWriter(w io.Writer, paths []string) error {
	result, err := ReapPaths("", paths)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

type fileID struct {
	dev uint64
	ino uint64
}

// reapPath scans a directory and returns its state.
// rootPath is the actual filesystem path to scan.
// logicalPath is the path to report in the result (for volume name).
func reapPath(rootPath, logicalPath string) (ReapVolume, error) {
	vol := ReapVolume{Name: logicalPath}
	byID := make(map[fileID]*ReapFile)

	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == rootPath || d.IsDir() {
			return nil
		}
		relPath, _ := filepath.Rel(rootPath, path)

		if strings.HasSuffix(d.Name(), deduper.TempSuffix) {
			vol.Leftovers = append(vol.Leftovers, relPath)
		}

		if d.Type()&fs.ModeSymlink != 0 {
			target, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("readlink %s: %w", path, err)
			}
			vol.Symlinks = append(vol.Symlinks, ReapSymlink{Path: relPath, Target: target})
			return nil
		}

		info, err := os.Lstat(path)
		if err != nil {
			return err
		}
		stat, ok := info.Sys().(*syscall.Stat_t)
		if !ok {
			return fmt.Errorf("cannot get stat for %s", path)
		}

		id := fileID{dev: uint64(stat.Dev), ino: stat.Ino} //nolint:unconvert // platform-dependent type
		if existing, ok := byID[id]; ok {
			existing.Path = append(existing.Path, relPath)
			return nil
		}
		byID[id] = &ReapFile{
			Path:    []string{relPath},
			Dev:     id.dev,
			Inode:   id.ino,
			Nlink:   uint64(stat.Nlink), //nolint:unconvert // platform-dependent type
			Size:    info.Size(),
			Mode:    info.Mode().Perm(),
			ModTime: info.ModTime().Unix(),
		}
		return nil
	})
	if err != nil {
		return vol, err
	}

	for _, rf := range byID {
		vol.Files = append(vol.Files, *rf)
	}
	sort.Slice(vol.Files, func(i, j int) bool { return vol.Files[i].Path[0] < vol.Files[j].Path[0] })
	return vol, nil
}
