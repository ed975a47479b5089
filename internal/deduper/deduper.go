// Package deduper merges two identical files into one inode by replacing the
// destination path with a hardlink to the source.
//
// # Overview
//
// The deduper is the only component that mutates the filesystem. The matcher
// calls Replace once per confirmed duplicate; the bucket member is the source
// (its inode survives) and the newly discovered file is the target.
//
// # Replacement Protocol
//
//	Replace(source, target)
//	    │
//	    ├──► pre-flight: lock target, re-stat both paths
//	    │        └──► changed or locked → Skipped
//	    │
//	    ├──► target.Path + TempSuffix must be free
//	    │        └──► stale orphan (old, nlink>1) is removed, otherwise Aborted
//	    │
//	    ├──► journal.Begin
//	    ├──► rename target → temp                 Renamed   (fail → Aborted)
//	    ├──► link source → target                 Linked    (fail → rename temp back)
//	    │                                                       ├──► RolledBack
//	    │                                                       └──► RollbackFailed
//	    ├──► remove temp                          CleanedUp (ENOENT → warning)
//	    │        └──► other failure → stays Linked, ErrCleanupFailed
//	    └──► journal.Commit
//
// Interruption at any point leaves at most one file under its temporary name.
// The journal records that name so a later run can put it back.
//
// # Dry Run
//
// Dry-run walks the same states with the rename, link and unlink calls
// suppressed, so every decision path can be exercised read-only.
package deduper

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/sirupsen/logrus"

	"github.com/ivoronin/linkdog/internal/logger"
	"github.com/ivoronin/linkdog/internal/types"
)

// Journal persists in-flight replacements so that an interrupted run can be
// recovered. A nil Journal disables journaling.
type Journal interface {
	Begin(target, temp, source string) error
	Commit(target string) error
}

// Deduper performs atomic hardlink replacements.
// Not safe for concurrent use on the same target path.
type Deduper struct {
	dryRun  bool
	fs      FS
	journal Journal
	log     *logrus.Entry
}

// New creates a Deduper operating on the real filesystem.
func New(dryRun bool, journal Journal) *Deduper {
	return NewWithFS(OSFS{}, dryRun, journal)
}

// NewWithFS creates a Deduper that mutates the filesystem through fsys.
func NewWithFS(fsys FS, dryRun bool, journal Journal) *Deduper {
	return &Deduper{
		dryRun:  dryRun,
		fs:      fsys,
		journal: journal,
		log:     logger.GetLogger("deduper"),
	}
}

// Replace makes target.Path a hardlink to source.Path's inode.
// The returned result always carries the last protocol state reached.
func (d *Deduper) Replace(source, target *types.FileInfo) *LinkResult {
	r := &LinkResult{
		Source: source.Path,
		Target: target.Path,
		Temp:   TempName(target.Path),
		State:  StateStart,
		DryRun: d.dryRun,
	}

	unlock, err := d.preflight(source, target)
	if err != nil {
		r.State = StateSkipped
		r.Err = err
		return r
	}
	defer unlock()

	if err := d.reserveTemp(r.Temp); err != nil {
		r.State = StateAborted
		r.Err = err
		return r
	}

	if err := d.begin(r); err != nil {
		r.State = StateAborted
		r.Err = fmt.Errorf("%w: journal: %w", ErrRenameFailed, err)
		return r
	}

	if err := d.rename(r.Target, r.Temp); err != nil {
		r.State = StateAborted
		r.Err = fmt.Errorf("%w: %w", ErrRenameFailed, err)
		d.commit(r)
		return r
	}
	r.State = StateRenamed
	d.log.Tracef("renamed %s to %s", r.Target, r.Temp)

	if err := d.link(r.Source, r.Target); err != nil {
		d.rollback(r, err)
		return r
	}
	r.State = StateLinked
	d.log.Tracef("linked %s to %s", r.Target, r.Source)

	if err := d.remove(r.Temp); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			// The old inode still holds its blocks under the temp name. The
			// journal record stays so that recovery can remove it.
			r.Err = fmt.Errorf("%w: %s: %w", ErrCleanupFailed, r.Temp, err)
			return r
		}
		r.Warning = fmt.Errorf("temporary file %s already gone", r.Temp)
		d.log.Warn(r.Warning)
	}
	r.State = StateCleanedUp
	r.BytesSaved = target.Size
	d.commit(r)
	return r
}

// preflight locks the target and verifies neither path changed since the scan.
// The returned function releases the lock.
func (d *Deduper) preflight(source, target *types.FileInfo) (func(), error) {
	if err := checkUnchanged(d.fs, source); err != nil {
		return nil, err
	}
	lock, err := lockTarget(target.Path)
	if err != nil {
		return nil, err
	}
	if err := checkUnchanged(d.fs, target); err != nil {
		_ = lock.Close()
		return nil, err
	}
	return func() { _ = lock.Close() }, nil
}

// reserveTemp ensures the temporary name is free, removing a stale orphan
// left by an earlier interrupted run when that is provably safe.
func (d *Deduper) reserveTemp(temp string) error {
	if _, err := d.fs.Lstat(temp); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrTempExists, err)
	}
	if d.dryRun {
		return fmt.Errorf("%w: %s", ErrTempExists, temp)
	}
	if err := tryCleanupOrphanedTmp(d.fs, temp, orphanedTmpMaxAge); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTempExists, temp, err)
	}
	d.log.Infof("removed orphaned temporary file %s", temp)
	return nil
}

// rollback restores the original target after a failed link.
func (d *Deduper) rollback(r *LinkResult, linkErr error) {
	if err := d.rename(r.Temp, r.Target); err != nil {
		r.State = StateRollbackFailed
		r.Err = fmt.Errorf("%w: link: %w; restore: %w", ErrRollbackFailed, linkErr, err)
		return
	}
	r.State = StateRolledBack
	r.Err = fmt.Errorf("%w: %w", ErrLinkFailed, linkErr)
	d.commit(r)
}

func (d *Deduper) begin(r *LinkResult) error {
	if d.dryRun || d.journal == nil {
		return nil
	}
	return d.journal.Begin(r.Target, r.Temp, r.Source)
}

// commit drops the journal record. Failures only cost a redundant recovery check.
func (d *Deduper) commit(r *LinkResult) {
	if d.dryRun || d.journal == nil {
		return
	}
	if err := d.journal.Commit(r.Target); err != nil {
		d.log.Warnf("journal commit %s: %v", r.Target, err)
	}
}

func (d *Deduper) rename(oldpath, newpath string) error {
	if d.dryRun {
		return nil
	}
	return d.fs.Rename(oldpath, newpath)
}

func (d *Deduper) link(oldname, newname string) error {
	if d.dryRun {
		return nil
	}
	return d.fs.Link(oldname, newname)
}

func (d *Deduper) remove(name string) error {
	if d.dryRun {
		return nil
	}
	return d.fs.Remove(name)
}
