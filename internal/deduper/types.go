package deduper

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// State is a step of the replacement protocol. A LinkResult carries the last
// state reached.
//
//	Start ──► Renamed ──► Linked ──► CleanedUp
//	  │          │           │
//	  │          │           └──► (temp removal failed: stays Linked, ErrCleanupFailed)
//	  │          └──► RolledBack | RollbackFailed
//	  └──► Skipped (pre-flight) | Aborted (rename-out failed)
type State int

const (
	StateStart State = iota
	StateRenamed
	StateLinked
	StateCleanedUp
	StateSkipped        // Pre-flight check failed, nothing touched
	StateAborted        // Rename-out failed, destination untouched
	StateRolledBack     // Link failed, destination restored
	StateRollbackFailed // Link failed and restore failed: data only under temp name
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateRenamed:
		return "renamed"
	case StateLinked:
		return "linked"
	case StateCleanedUp:
		return "cleaned-up"
	case StateSkipped:
		return "skipped"
	case StateAborted:
		return "aborted"
	case StateRolledBack:
		return "rolled-back"
	case StateRollbackFailed:
		return "rollback-failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Error kinds. LinkResult.Err wraps exactly one of these.
var (
	ErrChanged        = errors.New("file changed since scan")
	ErrInUse          = errors.New("file in use (locked by another process)")
	ErrTempExists     = errors.New("temporary name already taken")
	ErrRenameFailed   = errors.New("rename to temporary name failed")
	ErrLinkFailed     = errors.New("hardlink failed, original restored")
	ErrRollbackFailed = errors.New("hardlink failed and original could not be restored")
	ErrCleanupFailed  = errors.New("hardlink created but temporary file could not be removed")
)

// LinkResult describes the outcome of a single replacement.
type LinkResult struct {
	Source     string // Path kept (its inode survives)
	Target     string // Path replaced with a link to Source
	Temp       string // Reserved temporary name used for Target
	State      State  // Last protocol state reached
	BytesSaved int64  // Bytes reclaimed (0 unless OK)
	DryRun     bool   // No syscalls were made
	Err        error  // Non-nil unless OK
	Warning    error  // Temp file was already gone at cleanup
}

// OK reports whether the replacement completed and the old inode was released.
func (r *LinkResult) OK() bool {
	return r.State == StateCleanedUp
}

// String formats the result for display.
func (r *LinkResult) String() string {
	switch {
	case r.OK() && r.DryRun:
		return fmt.Sprintf("Would link %s to %s, saving %s",
			escapePath(r.Target), escapePath(r.Source), humanize.IBytes(uint64(r.BytesSaved)))
	case r.OK():
		return fmt.Sprintf("Linked %s to %s, saved %s",
			escapePath(r.Target), escapePath(r.Source), humanize.IBytes(uint64(r.BytesSaved)))
	case r.State == StateLinked:
		return fmt.Sprintf("linked %s to %s but %s still holds the old data: %v",
			escapePath(r.Target), escapePath(r.Source), escapePath(r.Temp), r.Err)
	case r.State == StateRollbackFailed:
		return fmt.Sprintf("MANUAL RECOVERY REQUIRED: %s now exists only as %s: %v",
			escapePath(r.Target), escapePath(r.Temp), r.Err)
	default:
		return fmt.Sprintf("skipped %s (%s): %v", escapePath(r.Target), r.State, r.Err)
	}
}

// escapePath escapes special characters in paths for safe terminal output.
func escapePath(path string) string {
	r := strings.NewReplacer(
		"\t", "\\t",
		"\n", "\\n",
		"\r", "\\r",
	)
	return r.Replace(path)
}
