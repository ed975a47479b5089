// Package scanner walks directory trees in a fixed order and hands every
// candidate regular file to a handler.
//
// # Traversal
//
// The walk is sequential and uses an explicit LIFO work list instead of
// recursion, so depth is bounded only by memory.
//
//	Run()
//	    │
//	    ├──► push roots in reverse (first root is popped first)
//	    │
//	    └──► while work list not empty:
//	             │
//	             ├──► pop dir, DirectoryVisited()
//	             ├──► list entries sorted by name (error → errCh, skip dir)
//	             ├──► for each entry:
//	             │        excluded path           → skip (never descended)
//	             │        transient dotfile       → skip
//	             │        in-flight temp name     → skip
//	             │        symlink                 → skip
//	             │        directory               → collect
//	             │        regular file            → RegularFileVisited()
//	             │                                   below min size → skip
//	             │                                   otherwise      → handler
//	             │        anything else           → skip
//	             │
//	             └──► push collected subdirs in reverse
//
// Reversing each batch before pushing keeps the overall visiting order
// alphabetical (depth-first, pre-order) despite the LIFO list, which makes the
// matcher's first-fit choices reproducible between runs.
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/sirupsen/logrus"

	"github.com/ivoronin/linkdog/internal/config"
	"github.com/ivoronin/linkdog/internal/deduper"
	"github.com/ivoronin/linkdog/internal/logger"
	"github.com/ivoronin/linkdog/internal/progress"
	"github.com/ivoronin/linkdog/internal/types"
)

// Transient names left by mirroring and sync tools. Only names that start with
// a dot are checked.
var transientPatterns = []*regexp2.Regexp{
	regexp2.MustCompile(`^\.in\.`, regexp2.None),         // mirror.pl
	regexp2.MustCompile(`^\..*\.\?{6,6}$`, regexp2.None), // rsync
}

// Observer receives traversal counters. It is also rendered as the progress
// line.
type Observer interface {
	DirectoryVisited()
	RegularFileVisited()
	fmt.Stringer
}

// HandleFunc receives each file that passed the walker's filters.
type HandleFunc func(f *types.FileInfo)

// Scanner walks root directories and feeds regular files to a handler.
//
// The scanner is designed for single-use: create with New(), call Run() once.
type Scanner struct {
	// Config (immutable, set by New)
	roots    []string
	minSize  int64
	excludes []*regexp2.Regexp
	handle   HandleFunc
	observer Observer
	bar      *progress.Bar
	errCh    chan error // Non-fatal errors (permission denied, etc.)
	log      *logrus.Entry
}

// Options configures a Scanner.
type Options struct {
	Roots    []string
	Policy   config.Policy
	Handle   HandleFunc
	Observer Observer
	Bar      *progress.Bar // May be nil
	Errors   chan error
}

// New creates a Scanner.
func New(opts Options) *Scanner {
	bar := opts.Bar
	if bar == nil {
		bar = progress.New(false, nil)
	}
	return &Scanner{
		roots:    opts.Roots,
		minSize:  opts.Policy.MinSize,
		excludes: opts.Policy.Excludes,
		handle:   opts.Handle,
		observer: opts.Observer,
		bar:      bar,
		errCh:    opts.Errors,
		log:      logger.GetLogger("scanner"),
	}
}

// Run walks every root to completion.
func (s *Scanner) Run() {
	work := make([]string, 0, len(s.roots))
	for i := len(s.roots) - 1; i >= 0; i-- {
		work = append(work, s.roots[i])
	}

	s.bar.Describe(s.observer) // Render progress bar immediately
	for len(work) > 0 {
		dir := work[len(work)-1]
		work = work[:len(work)-1]

		subdirs := s.walkDirectory(dir)
		slices.Reverse(subdirs)
		work = append(work, subdirs...)

		s.bar.Describe(s.observer)
	}
	s.bar.Finish(s.observer)
}

// walkDirectory processes one directory and returns its subdirectories in
// name order.
func (s *Scanner) walkDirectory(dir string) []string {
	s.observer.DirectoryVisited()
	entries, err := os.ReadDir(dir) // Sorted by filename
	if err != nil {
		s.sendError(err)
		return nil
	}
	s.log.Tracef("directory %s: %d entries", dir, len(entries))

	var subdirs []string
	for _, entry := range entries {
		if sub := s.processEntry(dir, entry); sub != "" {
			subdirs = append(subdirs, sub)
		}
	}
	return subdirs
}

// processEntry classifies one entry. It returns the entry's path when it is a
// directory to descend into.
func (s *Scanner) processEntry(dir string, entry os.DirEntry) (subdir string) {
	name := entry.Name()
	fullPath := filepath.Join(dir, name)

	if s.excluded(fullPath) {
		s.log.Debugf("%s: excluded", fullPath)
		return ""
	}
	if isTransient(name) || strings.HasSuffix(name, deduper.TempSuffix) {
		s.log.Debugf("%s: transient file, ignoring", fullPath)
		return ""
	}

	switch typ := entry.Type(); {
	case typ&os.ModeSymlink != 0:
		s.log.Tracef("%s: symbolic link, ignoring", fullPath)
		return ""
	case typ.IsDir():
		return fullPath
	case !typ.IsRegular():
		return ""
	}

	info, err := os.Lstat(fullPath)
	if err != nil {
		s.sendError(err) // Vanished or unreadable since listing
		return ""
	}
	if !info.Mode().IsRegular() {
		return ""
	}

	s.observer.RegularFileVisited()
	if info.Size() < s.minSize {
		return ""
	}
	s.log.Tracef("file %s", fullPath)
	s.handle(types.FromStat(fullPath, info))
	return ""
}

// excluded reports whether any exclusion pattern matches anywhere in path.
func (s *Scanner) excluded(path string) bool {
	for _, re := range s.excludes {
		if ok, err := re.MatchString(path); err != nil {
			s.sendError(fmt.Errorf("exclude %q on %s: %w", re.String(), path, err))
		} else if ok {
			return true
		}
	}
	return false
}

// isTransient reports whether name belongs to a mirroring or sync tool's
// in-progress file.
func isTransient(name string) bool {
	if !strings.HasPrefix(name, ".") {
		return false
	}
	for _, re := range transientPatterns {
		if ok, _ := re.MatchString(name); ok {
			return true
		}
	}
	return false
}

// sendError sends an error to the errors channel if it's not nil.
func (s *Scanner) sendError(err error) {
	if s.errCh != nil {
		s.errCh <- err
	}
}
