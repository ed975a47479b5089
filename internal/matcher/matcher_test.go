package matcher

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivoronin/linkdog/internal/config"
	"github.com/ivoronin/linkdog/internal/deduper"
	"github.com/ivoronin/linkdog/internal/types"
)

// fakeComparer reports equality by a content label attached to each path.
type fakeComparer struct {
	content map[string]string
	fail    map[string]bool
	calls   [][2]string
}

func (c *fakeComparer) Compare(a, b string) (bool, error) {
	c.calls = append(c.calls, [2]string{a, b})
	if c.fail[a] || c.fail[b] {
		return false, errors.New("read failed")
	}
	return c.content[a] == c.content[b], nil
}

// fakeReplacer records replacements and returns a canned state.
type fakeReplacer struct {
	state deduper.State
	calls [][2]string
}

func (r *fakeReplacer) Replace(source, target *types.FileInfo) *deduper.LinkResult {
	r.calls = append(r.calls, [2]string{source.Path, target.Path})
	res := &deduper.LinkResult{Source: source.Path, Target: target.Path, State: r.state}
	switch {
	case res.OK():
		res.BytesSaved = target.Size
	case r.state == deduper.StateLinked:
		res.Err = deduper.ErrCleanupFailed
	default:
		res.Err = deduper.ErrLinkFailed
	}
	return res
}

type event struct {
	kind      string
	src, dest string
	size      int64
}

type recordingObserver struct {
	events []event
}

func (o *recordingObserver) HardlinkCreated(src, dest string, size int64) {
	o.events = append(o.events, event{"created", src, dest, size})
}

func (o *recordingObserver) PreexistingHardlinkFound(src, dest string, size int64) {
	o.events = append(o.events, event{"preexisting", src, dest, size})
}

func (o *recordingObserver) RollbackFailed() {
	o.events = append(o.events, event{kind: "rollback-failed"})
}

type fixture struct {
	m        *Matcher
	comparer *fakeComparer
	replacer *fakeReplacer
	observer *recordingObserver
	errCh    chan error
	ino      uint64
}

func newFixture(p config.Policy) *fixture {
	fx := &fixture{
		comparer: &fakeComparer{content: map[string]string{}, fail: map[string]bool{}},
		replacer: &fakeReplacer{state: deduper.StateCleanedUp},
		observer: &recordingObserver{},
		errCh:    make(chan error, 100),
	}
	fx.m = New(Options{
		Policy:   p,
		Comparer: fx.comparer,
		Replacer: fx.replacer,
		Observer: fx.observer,
		Errors:   fx.errCh,
	})
	return fx
}

// file creates a record with a fresh inode and the given content label.
func (fx *fixture) file(path, content string, mod func(f *types.FileInfo)) *types.FileInfo {
	fx.ino++
	f := &types.FileInfo{
		Path:    path,
		Size:    100,
		ModTime: time.Unix(1554498398, 0),
		Dev:     1,
		Ino:     fx.ino,
		Nlink:   1,
		Mode:    0o100644,
		Uid:     1000,
		Gid:     1000,
	}
	if mod != nil {
		mod(f)
	}
	fx.comparer.content[path] = content
	return f
}

func defaultPolicy() config.Policy { return config.Policy{MinSize: 1} }

// =============================================================================
// Section 1: Bucket Handling
// =============================================================================

func TestFirstFileInserted(t *testing.T) {
	fx := newFixture(defaultPolicy())

	assert.Equal(t, OutcomeInserted, fx.m.Handle(fx.file("/a", "x", nil)))
	assert.Equal(t, 1, fx.m.Index().Records())
	assert.Empty(t, fx.comparer.calls)
}

func TestIdenticalFilesLinked(t *testing.T) {
	fx := newFixture(defaultPolicy())
	a := fx.file("/a", "x", nil)
	b := fx.file("/b", "x", nil)

	fx.m.Handle(a)
	assert.Equal(t, OutcomeLinked, fx.m.Handle(b))

	require.Len(t, fx.replacer.calls, 1)
	assert.Equal(t, [2]string{"/a", "/b"}, fx.replacer.calls[0], "bucket member is the source")
	assert.Equal(t, []event{{"created", "/a", "/b", 100}}, fx.observer.events)
	assert.Equal(t, 1, fx.m.Index().Records(), "merged file is not inserted")
}

func TestDifferentContentInserted(t *testing.T) {
	fx := newFixture(defaultPolicy())
	fx.m.Handle(fx.file("/a", "x", nil))

	assert.Equal(t, OutcomeInserted, fx.m.Handle(fx.file("/b", "y", nil)))
	assert.Equal(t, 2, fx.m.Index().Records())
	assert.Empty(t, fx.replacer.calls)
}

func TestIneligibleNotCompared(t *testing.T) {
	fx := newFixture(defaultPolicy())
	fx.m.Handle(fx.file("/a", "x", nil))

	outcome := fx.m.Handle(fx.file("/b", "x", func(f *types.FileInfo) { f.Mode = 0o100755 }))

	assert.Equal(t, OutcomeInserted, outcome)
	assert.Empty(t, fx.comparer.calls, "metadata mismatch must short-circuit comparison")
}

// =============================================================================
// Section 2: Pre-existing Links
// =============================================================================

func TestPreexistingLinkRecorded(t *testing.T) {
	fx := newFixture(defaultPolicy())
	a := fx.file("/a", "x", nil)
	b := fx.file("/b", "x", func(f *types.FileInfo) { f.Ino = a.Ino; f.Nlink = 2 })

	fx.m.Handle(a)
	assert.Equal(t, OutcomePreexisting, fx.m.Handle(b))

	assert.Equal(t, []event{{"preexisting", "/a", "/b", 100}}, fx.observer.events)
	assert.Empty(t, fx.comparer.calls)
	assert.Equal(t, 1, fx.m.Index().Records())
}

func TestPreexistingCheckedBeforeMerge(t *testing.T) {
	fx := newFixture(defaultPolicy())
	a := fx.file("/a", "x", nil)
	b := fx.file("/b", "y", nil)
	// c is a link to b; a is an earlier, eligible, identical-looking member
	c := fx.file("/c", "y", func(f *types.FileInfo) { f.Ino = b.Ino })

	fx.m.Handle(a)
	fx.m.Handle(b)
	assert.Equal(t, OutcomePreexisting, fx.m.Handle(c))
	assert.Empty(t, fx.replacer.calls)
}

// =============================================================================
// Section 3: First-Fit Order
// =============================================================================

func TestFirstFitInInsertionOrder(t *testing.T) {
	fx := newFixture(defaultPolicy())
	a := fx.file("/a", "x", nil)
	b := fx.file("/b", "y", nil)
	c := fx.file("/c", "y", nil)
	d := fx.file("/d", "y", nil)

	fx.m.Handle(a)
	fx.m.Handle(b)
	fx.m.Handle(c) // links to b
	fx.m.Handle(d) // links to b again

	assert.Equal(t, [][2]string{{"/b", "/c"}, {"/b", "/d"}}, fx.replacer.calls)
}

func TestFailedReplaceStopsSearch(t *testing.T) {
	fx := newFixture(defaultPolicy())
	fx.replacer.state = deduper.StateRolledBack
	a := fx.file("/a", "x", nil)
	b := fx.file("/b", "x", nil)

	fx.m.Handle(a)
	assert.Equal(t, OutcomeFailed, fx.m.Handle(b))
	assert.Equal(t, 1, fx.m.Index().Records(), "failed duplicate is not inserted")
	assert.Empty(t, fx.observer.events)

	require.Len(t, fx.errCh, 1)
	var re *ReplaceError
	err := <-fx.errCh
	require.ErrorAs(t, err, &re)
	assert.ErrorIs(t, err, deduper.ErrLinkFailed)
}

func TestCleanupFailureNotCountedAsSaved(t *testing.T) {
	fx := newFixture(defaultPolicy())
	fx.replacer.state = deduper.StateLinked

	fx.m.Handle(fx.file("/a", "x", nil))
	assert.Equal(t, OutcomeFailed, fx.m.Handle(fx.file("/b", "x", nil)))
	assert.Empty(t, fx.observer.events, "no bytes are attributed while the temp file remains")

	require.Len(t, fx.errCh, 1)
	assert.ErrorIs(t, <-fx.errCh, deduper.ErrCleanupFailed)
}

func TestRollbackFailureNotified(t *testing.T) {
	fx := newFixture(defaultPolicy())
	fx.replacer.state = deduper.StateRollbackFailed

	fx.m.Handle(fx.file("/a", "x", nil))
	fx.m.Handle(fx.file("/b", "x", nil))

	assert.Equal(t, []event{{kind: "rollback-failed"}}, fx.observer.events)
}

func TestComparisonErrorSkipsMember(t *testing.T) {
	fx := newFixture(defaultPolicy())
	a := fx.file("/a", "x", nil)
	b := fx.file("/b", "y", nil)
	c := fx.file("/c", "x", nil)
	fx.comparer.fail["/a"] = true

	fx.m.Handle(a)
	fx.m.Handle(b)
	assert.Equal(t, OutcomeInserted, fx.m.Handle(c), "unreadable member never causes a merge")
	assert.Empty(t, fx.replacer.calls)
	assert.NotEmpty(t, fx.errCh)
}

// =============================================================================
// Section 4: Policy
// =============================================================================

func TestSameNameRequired(t *testing.T) {
	p := defaultPolicy()
	p.SameName = true
	fx := newFixture(p)

	fx.m.Handle(fx.file("/x/file.txt", "x", nil))
	assert.Equal(t, OutcomeInserted, fx.m.Handle(fx.file("/y/other.txt", "x", nil)))
	assert.Equal(t, OutcomeLinked, fx.m.Handle(fx.file("/z/file.txt", "x", nil)))
	assert.Equal(t, [][2]string{{"/x/file.txt", "/z/file.txt"}}, fx.replacer.calls)
}

func TestContentOnlyIgnoresTimestampInHash(t *testing.T) {
	p := defaultPolicy()
	p.ContentOnly = true
	fx := newFixture(p)

	fx.m.Handle(fx.file("/a", "x", nil))
	outcome := fx.m.Handle(fx.file("/b", "x", func(f *types.FileInfo) {
		f.ModTime = time.Unix(1, 0)
		f.Mode = 0o100600
	}))
	assert.Equal(t, OutcomeLinked, outcome)
}

func TestTimestampSplitsBuckets(t *testing.T) {
	fx := newFixture(defaultPolicy())

	fx.m.Handle(fx.file("/a", "x", nil))
	fx.m.Handle(fx.file("/b", "x", func(f *types.FileInfo) { f.ModTime = time.Unix(1, 0) }))
	assert.Empty(t, fx.comparer.calls)
}

func TestOnLinkCallback(t *testing.T) {
	fx := newFixture(defaultPolicy())
	var got []*deduper.LinkResult
	fx.m.onLink = func(r *deduper.LinkResult) { got = append(got, r) }

	fx.m.Handle(fx.file("/a", "x", nil))
	fx.m.Handle(fx.file("/b", "x", nil))
	require.Len(t, got, 1)
	assert.Equal(t, "/b", got[0].Target)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "linked", OutcomeLinked.String())
	assert.Equal(t, "outcome(9)", Outcome(9).String())
}
