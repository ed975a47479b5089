// Package matcher decides, for every discovered regular file, whether it is
// already linked to a known file, should be merged into one, or becomes a new
// candidate.
//
// # Decision Flow
//
//	Handle(f)
//	    │
//	    ├──► key = index.Hash(size, mtime)
//	    │
//	    ├──► no bucket          → insert f                         Inserted
//	    │
//	    ├──► pass 1: any member shares f's dev+ino
//	    │        └──► record pre-existing link, do not insert       Preexisting
//	    │
//	    ├──► pass 2: first member g in insertion order with
//	    │        eligible(f, g) && (same basename if required) && content equal
//	    │        └──► Replace(source=g, target=f), do not insert    Linked | Failed
//	    │
//	    └──► nothing matched    → append f to the bucket            Inserted
//
// First fit wins: once a member is chosen no other member is tried, even if
// the replacement fails. The bucket member stays the live representative of its
// inode, so later duplicates keep linking to the same source.
package matcher

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ivoronin/linkdog/internal/config"
	"github.com/ivoronin/linkdog/internal/deduper"
	"github.com/ivoronin/linkdog/internal/index"
	"github.com/ivoronin/linkdog/internal/logger"
	"github.com/ivoronin/linkdog/internal/screener"
	"github.com/ivoronin/linkdog/internal/types"
)

// Outcome is the decision taken for one file.
type Outcome int

const (
	OutcomeInserted    Outcome = iota // New candidate in its bucket
	OutcomePreexisting                // Already shares an inode with a bucket member
	OutcomeLinked                     // Replaced with a hardlink to a bucket member
	OutcomeFailed                     // Duplicate found but replacement did not complete
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomePreexisting:
		return "preexisting"
	case OutcomeLinked:
		return "linked"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Comparer reports whether two same-sized files have identical content.
type Comparer interface {
	Compare(pathA, pathB string) (bool, error)
}

// Replacer turns target into a hardlink to source.
type Replacer interface {
	Replace(source, target *types.FileInfo) *deduper.LinkResult
}

// Observer receives merge notifications.
type Observer interface {
	HardlinkCreated(source, dest string, size int64)
	PreexistingHardlinkFound(source, dest string, size int64)
	RollbackFailed()
}

// Matcher owns the bucket index for one run.
type Matcher struct {
	index    *index.Index
	policy   config.Policy
	comparer Comparer
	replacer Replacer
	observer Observer
	onLink   func(*deduper.LinkResult)
	errCh    chan error
	log      *logrus.Entry
}

// Options wires a Matcher to its collaborators.
type Options struct {
	Policy   config.Policy
	Comparer Comparer
	Replacer Replacer
	Observer Observer
	OnLink   func(*deduper.LinkResult) // Called after each successful replacement, may be nil
	Errors   chan error                // Non-fatal errors (comparison and replacement failures)
}

// New creates a Matcher with an empty index.
func New(opts Options) *Matcher {
	return &Matcher{
		index:    index.New(),
		policy:   opts.Policy,
		comparer: opts.Comparer,
		replacer: opts.Replacer,
		observer: opts.Observer,
		onLink:   opts.OnLink,
		errCh:    opts.Errors,
		log:      logger.GetLogger("matcher"),
	}
}

// Index exposes the bucket index for inspection.
func (m *Matcher) Index() *index.Index { return m.index }

// Handle classifies f against the index and performs the resulting action.
func (m *Matcher) Handle(f *types.FileInfo) Outcome {
	key := index.Hash(f.Size, f.Mtime(), m.policy.SizeOnlyHash())
	bucket, ok := m.index.Lookup(key)
	if !ok {
		m.index.Insert(key, f)
		return OutcomeInserted
	}

	for _, g := range bucket {
		if screener.AlreadyLinked(f, g) {
			m.log.Tracef("%s already linked to %s", f.Path, g.Path)
			m.observer.PreexistingHardlinkFound(g.Path, f.Path, g.Size)
			return OutcomePreexisting
		}
	}

	for _, g := range bucket {
		if !m.candidate(f, g) {
			continue
		}
		equal, err := m.comparer.Compare(g.Path, f.Path)
		if err != nil {
			m.sendError(fmt.Errorf("compare %s with %s: %w", g.Path, f.Path, err))
			continue
		}
		if !equal {
			continue
		}
		return m.replace(g, f)
	}

	m.index.Insert(key, f)
	return OutcomeInserted
}

// candidate applies the metadata checks that precede content comparison.
func (m *Matcher) candidate(f, g *types.FileInfo) bool {
	if !screener.Eligible(f, g, m.policy) {
		return false
	}
	return !m.policy.SameName || f.Base() == g.Base()
}

func (m *Matcher) replace(source, target *types.FileInfo) Outcome {
	r := m.replacer.Replace(source, target)
	if !r.OK() {
		if r.State == deduper.StateRollbackFailed {
			m.observer.RollbackFailed()
		}
		m.sendError(&ReplaceError{Result: r})
		return OutcomeFailed
	}

	m.log.Trace(r)
	m.observer.HardlinkCreated(source.Path, target.Path, r.BytesSaved)
	if m.onLink != nil {
		m.onLink(r)
	}
	return OutcomeLinked
}

// ReplaceError reports a replacement that did not complete.
type ReplaceError struct {
	Result *deduper.LinkResult
}

func (e *ReplaceError) Error() string { return e.Result.String() }
func (e *ReplaceError) Unwrap() error { return e.Result.Err }

// sendError sends an error to the errors channel if it's not nil.
func (m *Matcher) sendError(err error) {
	if m.errCh != nil {
		m.errCh <- err
	}
}
